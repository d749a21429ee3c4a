package editor

import (
	"path"
	"strings"
)

// FindReadme picks the README-like path to show when a workspace has no
// remembered file. Exact "readme.md" beats "readme.mdx", which beats a bare
// "readme", which beats any other "readme*" name; ties go to the shallower
// path, then the shorter one. Names compare case-insensitively.
func FindReadme(paths []string) (string, bool) {
	type candidate struct {
		path   string
		weight int
		depth  int
		length int
	}

	var best *candidate
	for _, p := range paths {
		name := strings.ToLower(path.Base(p))
		if !strings.HasPrefix(name, "readme") {
			continue
		}

		c := candidate{
			path:   p,
			weight: readmeWeight(name),
			depth:  strings.Count(p, "/") + 1,
			length: len(p),
		}
		if best == nil || c.weight < best.weight ||
			(c.weight == best.weight && (c.depth < best.depth ||
				(c.depth == best.depth && c.length < best.length))) {
			best = &c
		}
	}

	if best == nil {
		return "", false
	}
	return best.path, true
}

func readmeWeight(name string) int {
	switch name {
	case "readme.md":
		return 0
	case "readme.mdx":
		return 1
	case "readme":
		return 2
	default:
		return 3
	}
}
