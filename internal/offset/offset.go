// Package offset translates character positions into the byte offsets a
// buffer backend addresses.
//
// The editor works in characters (runes) while the backend stores encoded
// bytes. A Translator measures text under one encoding; both sides of a
// session must use the same one. Every call re-measures from the start of
// the text, so cost grows with document size.
package offset

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Encoding names a backend byte encoding.
type Encoding string

const (
	// UTF8 is the default backend encoding.
	UTF8 Encoding = "utf-8"

	// UTF16LE is UTF-16 little endian without a BOM.
	UTF16LE Encoding = "utf-16le"

	// UTF16BE is UTF-16 big endian without a BOM.
	UTF16BE Encoding = "utf-16be"
)

var (
	// ErrUnknownEncoding is returned for encodings the translator cannot measure.
	ErrUnknownEncoding = errors.New("unknown encoding")

	// ErrOutOfRange indicates a byte offset past the end of the text.
	ErrOutOfRange = errors.New("offset out of range")

	// ErrNotBoundary indicates a byte offset inside an encoded character.
	ErrNotBoundary = errors.New("offset not on a character boundary")
)

// ParseEncoding parses a configured encoding name.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return UTF8, nil
	case "utf-16le", "utf16le":
		return UTF16LE, nil
	case "utf-16be", "utf16be":
		return UTF16BE, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}

// Translator converts character offsets to byte offsets under one encoding.
// A Translator is immutable and safe for concurrent use.
type Translator struct {
	enc   Encoding
	codec encoding.Encoding
}

// New creates a translator for enc.
func New(enc Encoding) (*Translator, error) {
	t := &Translator{enc: enc}
	switch enc {
	case UTF8:
	case UTF16LE:
		t.codec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case UTF16BE:
		t.codec = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
	return t, nil
}

// Default returns a UTF-8 translator.
func Default() *Translator {
	return &Translator{enc: UTF8}
}

// Encoding returns the translator's encoding.
func (t *Translator) Encoding() Encoding {
	return t.enc
}

// ByteLength returns the encoded length of text in bytes.
func (t *Translator) ByteLength(text string) int {
	if t.codec == nil {
		return len(text)
	}
	encoded, err := t.codec.NewEncoder().String(text)
	if err != nil {
		return t.measure(text)
	}
	return len(encoded)
}

// ByteOffset returns the byte offset of the character at index char.
// Indexes past the end map to the full byte length.
func (t *Translator) ByteOffset(text string, char int) int {
	if char <= 0 {
		return 0
	}
	idx := runeIndex(text, char)
	if t.codec == nil {
		return idx
	}
	return t.ByteLength(text[:idx])
}

// CharOffset is the inverse of ByteOffset. It fails if byteOffset is past
// the end of text or does not fall between two characters.
func (t *Translator) CharOffset(text string, byteOffset int) (int, error) {
	if byteOffset < 0 {
		return 0, ErrOutOfRange
	}
	pos, chars := 0, 0
	for i, r := range text {
		if t.codec == nil {
			pos = i
		}
		if pos == byteOffset {
			return chars, nil
		}
		if pos > byteOffset {
			return 0, ErrNotBoundary
		}
		if t.codec != nil {
			pos += utf16Width(r)
		}
		chars++
	}
	if t.codec == nil {
		pos = len(text)
	}
	switch {
	case pos == byteOffset:
		return chars, nil
	case byteOffset > pos:
		return 0, ErrOutOfRange
	default:
		return 0, ErrNotBoundary
	}
}

// StringIndex converts a backend byte offset into an index usable for
// slicing text.
func (t *Translator) StringIndex(text string, byteOffset int) (int, error) {
	if t.codec == nil {
		if byteOffset < 0 || byteOffset > len(text) {
			return 0, ErrOutOfRange
		}
		if byteOffset < len(text) && !utf8.RuneStart(text[byteOffset]) {
			return 0, ErrNotBoundary
		}
		return byteOffset, nil
	}
	char, err := t.CharOffset(text, byteOffset)
	if err != nil {
		return 0, err
	}
	return runeIndex(text, char), nil
}

func (t *Translator) measure(text string) int {
	n := 0
	for _, r := range text {
		n += utf16Width(r)
	}
	return n
}

func utf16Width(r rune) int {
	n := utf16.RuneLen(r)
	if n < 0 {
		n = 1
	}
	return 2 * n
}

// runeIndex returns the string index of the char-th rune, or len(text).
func runeIndex(text string, char int) int {
	n := 0
	for i := range text {
		if n == char {
			return i
		}
		n++
	}
	return len(text)
}
