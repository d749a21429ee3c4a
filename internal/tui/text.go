package tui

import (
	"strings"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// tabWidth is the display width of a tab character.
const tabWidth = 4

// Cursor positions are byte offsets into the buffer text that always sit on
// a grapheme cluster boundary.

// lineBounds returns the byte range of the line containing pos, excluding
// its line terminator.
func lineBounds(text string, pos int) (start, end int) {
	start = strings.LastIndexByte(text[:pos], '\n') + 1
	end = len(text)
	if i := strings.IndexByte(text[pos:], '\n'); i >= 0 {
		end = pos + i
	}
	if end > start && text[end-1] == '\r' {
		end--
	}
	return start, end
}

// lineColumnOffset returns the byte offset of a 1-based line and character
// column, clamped to text.
func lineColumnOffset(text string, line, col int) int {
	pos := 0
	for i := 1; i < line; i++ {
		next := strings.IndexByte(text[pos:], '\n')
		if next < 0 {
			return len(text)
		}
		pos += next + 1
	}
	for n := 1; n < col && pos < len(text) && text[pos] != '\n'; n++ {
		_, size := utf8.DecodeRuneInString(text[pos:])
		pos += size
	}
	return pos
}

// lineIndex returns the zero-based line number of pos.
func lineIndex(text string, pos int) int {
	return strings.Count(text[:pos], "\n")
}

// prevBoundary returns the start of the grapheme cluster before pos.
func prevBoundary(text string, pos int) int {
	if pos <= 0 {
		return 0
	}
	start, _ := lineBounds(text, pos)
	if start == pos {
		// Step over the previous line's terminator.
		pos--
		if pos > 0 && text[pos-1] == '\r' {
			pos--
		}
		return pos
	}

	prev := start
	gr := uniseg.NewGraphemes(text[start:pos])
	for gr.Next() {
		from, _ := gr.Positions()
		prev = start + from
	}
	return prev
}

// nextBoundary returns the end of the grapheme cluster at pos.
func nextBoundary(text string, pos int) int {
	if pos >= len(text) {
		return len(text)
	}
	cluster, _, _, _ := uniseg.FirstGraphemeClusterInString(text[pos:], -1)
	return pos + len(cluster)
}

// clusterWidth returns the display width of one grapheme cluster.
func clusterWidth(cluster string, width int) int {
	if cluster == "\t" {
		return tabWidth
	}
	return width
}

// displayWidth returns the width of s on screen.
func displayWidth(s string) int {
	w := 0
	state := -1
	for len(s) > 0 {
		var cluster string
		var width int
		cluster, s, width, state = uniseg.FirstGraphemeClusterInString(s, state)
		w += clusterWidth(cluster, width)
	}
	return w
}

// offsetAtColumn returns the boundary in [start, end) whose display column
// is closest to col without passing it.
func offsetAtColumn(text string, start, end, col int) int {
	pos := start
	w := 0
	state := -1
	rest := text[start:end]
	for len(rest) > 0 {
		var cluster string
		var width int
		cluster, rest, width, state = uniseg.FirstGraphemeClusterInString(rest, state)
		width = clusterWidth(cluster, width)
		if w+width > col {
			break
		}
		w += width
		pos += len(cluster)
	}
	return pos
}

// snap moves pos back onto a valid boundary inside text.
func snap(text string, pos int) int {
	if pos > len(text) {
		return len(text)
	}
	if pos <= 0 {
		return 0
	}
	start, _ := lineBounds(text, pos)
	at := start
	for at < pos {
		next := nextBoundary(text, at)
		if next > pos {
			break
		}
		at = next
	}
	return at
}
