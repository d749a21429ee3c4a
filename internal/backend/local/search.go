package local

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/canakyuz-co/fridayx/internal/backend"
)

// Search finds up to max matches of query in a buffer. See SearchText.
func (e *Engine) Search(ctx context.Context, bufferID, query string, opts backend.SearchOptions, max int) ([]backend.SearchMatch, error) {
	content, err := e.Content(ctx, bufferID)
	if err != nil {
		return nil, err
	}
	return SearchText(ctx, content, query, opts, max)
}

// SearchText finds up to max matches of query in content, line by line.
// The query is trimmed; an empty query or max <= 0 returns no matches.
func SearchText(ctx context.Context, content, query string, opts backend.SearchOptions, max int) ([]backend.SearchMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" || max <= 0 {
		return nil, nil
	}

	re, err := compileQuery(query, opts)
	if err != nil {
		return nil, err
	}

	var results []backend.SearchMatch
	for i, line := range strings.Split(content, "\n") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r")
		for _, loc := range re.FindAllStringIndex(line, -1) {
			if opts.WholeWord && !opts.Regex && !isWholeWord(line, loc[0], loc[1]) {
				continue
			}
			results = append(results, backend.SearchMatch{
				Line:      i + 1,
				Column:    utf8.RuneCountInString(line[:loc[0]]) + 1,
				LineText:  line,
				MatchText: line[loc[0]:loc[1]],
			})
			if len(results) >= max {
				return results, nil
			}
		}
	}
	return results, nil
}

func compileQuery(query string, opts backend.SearchOptions) (*regexp.Regexp, error) {
	pattern := query
	if !opts.Regex {
		pattern = regexp.QuoteMeta(query)
	} else if opts.WholeWord {
		pattern = `\b(?:` + query + `)\b`
	}
	if !opts.MatchCase {
		pattern = "(?i)" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidQuery, err)
	}
	return re, nil
}

func isWholeWord(line string, start, end int) bool {
	before, _ := utf8.DecodeLastRuneInString(line[:start])
	after, _ := utf8.DecodeRuneInString(line[end:])
	return !isWordRune(before, start > 0) && !isWordRune(after, end < len(line))
}

func isWordRune(r rune, present bool) bool {
	return present && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
}
