// Package diff computes the single contiguous edit between two text snapshots.
//
// The editor sends one patch per content change. Typing, paste, and
// completion all produce a single contiguous region, for which Compute
// returns the unique minimal replacement. Unrelated edits in several regions
// collapse into one patch spanning all of them; the result is still exact,
// just larger than necessary.
//
// All offsets are character (rune) offsets into the previous text. A byte
// that is not part of valid UTF-8 counts as one character, the same way a
// range loop over the string counts it, and is carried through unchanged.
package diff

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Patch replaces the characters [Start, End) of the previous text with Text.
type Patch struct {
	Start int
	End   int
	Text  string
}

// Apply splices the patch into prev.
// Offsets outside prev are clamped.
func (p Patch) Apply(prev string) string {
	start := runeIndex(prev, p.Start)
	end := runeIndex(prev, p.End)
	if end < start {
		end = start
	}

	var b strings.Builder
	b.Grow(len(prev) + len(p.Text))
	b.WriteString(prev[:start])
	b.WriteString(p.Text)
	b.WriteString(prev[end:])
	return b.String()
}

var dmp = diffmatchpatch.New()

// Compute returns the patch that turns prev into next.
// The second result is false only when the texts are equal.
func Compute(prev, next string) (Patch, bool) {
	if prev == next {
		return Patch{}, false
	}
	if !utf8.ValidString(prev) || !utf8.ValidString(next) {
		return computeBytes(prev, next), true
	}

	prefix := dmp.DiffCommonPrefix(prev, next)

	// The suffix is measured on what remains after the prefix so the two
	// never overlap.
	prevRunes := []rune(prev)
	nextRunes := []rune(next)
	prevRest := string(prevRunes[prefix:])
	nextRest := string(nextRunes[prefix:])
	suffix := dmp.DiffCommonSuffix(prevRest, nextRest)

	return Patch{
		Start: prefix,
		End:   len(prevRunes) - suffix,
		Text:  string(nextRunes[prefix : len(nextRunes)-suffix]),
	}, true
}

// computeBytes compares characters by their raw bytes so that invalid
// sequences, which a rune conversion would collapse to U+FFFD, still differ.
func computeBytes(prev, next string) Patch {
	prefix, prefixBytes := 0, 0
	for prefixBytes < len(prev) && prefixBytes < len(next) {
		_, pn := utf8.DecodeRuneInString(prev[prefixBytes:])
		_, nn := utf8.DecodeRuneInString(next[prefixBytes:])
		if pn != nn || prev[prefixBytes:prefixBytes+pn] != next[prefixBytes:prefixBytes+nn] {
			break
		}
		prefixBytes += pn
		prefix++
	}

	prevRest := widths(prev[prefixBytes:])
	nextRest := widths(next[prefixBytes:])
	prevEnd, nextEnd := len(prev), len(next)
	for len(prevRest) > 0 && len(nextRest) > 0 {
		pn := prevRest[len(prevRest)-1]
		nn := nextRest[len(nextRest)-1]
		if pn != nn || prev[prevEnd-pn:prevEnd] != next[nextEnd-nn:nextEnd] {
			break
		}
		prevRest = prevRest[:len(prevRest)-1]
		nextRest = nextRest[:len(nextRest)-1]
		prevEnd -= pn
		nextEnd -= nn
	}

	return Patch{
		Start: prefix,
		End:   prefix + len(prevRest),
		Text:  next[prefixBytes:nextEnd],
	}
}

// widths returns the byte length of each character of s in order.
func widths(s string) []int {
	var out []int
	for len(s) > 0 {
		_, n := utf8.DecodeRuneInString(s)
		out = append(out, n)
		s = s[n:]
	}
	return out
}

// runeIndex returns the byte index of the char-th character of s, or len(s).
func runeIndex(s string, char int) int {
	if char <= 0 {
		return 0
	}
	n := 0
	for i := range s {
		if n == char {
			return i
		}
		n++
	}
	return len(s)
}
