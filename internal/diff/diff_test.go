package diff

import (
	"testing"
)

func TestComputeEqual(t *testing.T) {
	for _, text := range []string{"", "a", "hello world", "café ☕", "\n\n"} {
		if p, ok := Compute(text, text); ok {
			t.Errorf("Compute(%q, %q) = %+v, want no patch", text, text, p)
		}
	}
}

func TestComputeMinimal(t *testing.T) {
	tests := []struct {
		name string
		prev string
		next string
		want Patch
	}{
		{"insert middle", "hello world", "hello brave world", Patch{Start: 6, End: 6, Text: "brave "}},
		{"insert start", "world", "hello world", Patch{Start: 0, End: 0, Text: "hello "}},
		{"insert end", "hello", "hello!", Patch{Start: 5, End: 5, Text: "!"}},
		{"delete middle", "hello brave world", "hello world", Patch{Start: 6, End: 12, Text: ""}},
		{"replace word", "hello world", "hello there", Patch{Start: 6, End: 11, Text: "there"}},
		{"empty to text", "", "abc", Patch{Start: 0, End: 0, Text: "abc"}},
		{"text to empty", "abc", "", Patch{Start: 0, End: 3, Text: ""}},
		{"full replace", "abc", "xyz", Patch{Start: 0, End: 3, Text: "xyz"}},
		{"repeated run", "aaa", "aaaa", Patch{Start: 3, End: 3, Text: "a"}},
		{"shrink run", "aaaa", "aa", Patch{Start: 2, End: 4, Text: ""}},
		{"multibyte", "café", "cafés", Patch{Start: 4, End: 4, Text: "s"}},
		{"multibyte replace", "naïve", "naive", Patch{Start: 2, End: 3, Text: "i"}},
		{"emoji", "a😀b", "a😀😀b", Patch{Start: 2, End: 2, Text: "😀"}},
		{"newline", "line1\nline2", "line1\nnew\nline2", Patch{Start: 6, End: 6, Text: "new\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compute(tt.prev, tt.next)
			if !ok {
				t.Fatalf("Compute returned no patch")
			}
			if got != tt.want {
				t.Errorf("Compute(%q, %q) = %+v, want %+v", tt.prev, tt.next, got, tt.want)
			}
		})
	}
}

func TestComputeRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"", "x"},
		{"x", ""},
		{"abc", "abc def"},
		{"the quick brown fox", "the slow brown dog"},
		{"func main() {}\n", "func main() {\n\tprintln(1)\n}\n"},
		{"日本語テキスト", "日本語のテキスト"},
		{"abcabc", "abc"},
		{"abc", "abcabc"},
		{"ab", "ba"},
		{"\u00e9", "e\u0301"},
	}

	for _, pair := range pairs {
		prev, next := pair[0], pair[1]
		p, ok := Compute(prev, next)
		if !ok {
			t.Fatalf("Compute(%q, %q) returned no patch", prev, next)
		}
		if got := p.Apply(prev); got != next {
			t.Errorf("Apply(Compute(%q, %q)) = %q", prev, next, got)
		}
		if p.Start > p.End {
			t.Errorf("Compute(%q, %q) start %d past end %d", prev, next, p.Start, p.End)
		}
	}
}

func TestComputeInvalidUTF8(t *testing.T) {
	tests := []struct {
		name string
		prev string
		next string
		want Patch
	}{
		{"replace invalid byte", "a\xfe", "a\xff", Patch{Start: 1, End: 2, Text: "\xff"}},
		{"latin1 to latin1", "caf\xe9", "caf\xe8", Patch{Start: 3, End: 4, Text: "\xe8"}},
		{"insert before invalid", "\xffb", "a\xffb", Patch{Start: 0, End: 0, Text: "a"}},
		{"valid to invalid", "x\u00e9y", "x\xe9y", Patch{Start: 1, End: 2, Text: "\xe9"}},
		{"append after invalid", "\xfe\xfe", "\xfe\xfe\xfe", Patch{Start: 2, End: 2, Text: "\xfe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compute(tt.prev, tt.next)
			if !ok {
				t.Fatalf("Compute returned no patch")
			}
			if got != tt.want {
				t.Errorf("Compute(%q, %q) = %+v, want %+v", tt.prev, tt.next, got, tt.want)
			}
			if applied := got.Apply(tt.prev); applied != tt.next {
				t.Errorf("Apply = %q, want %q", applied, tt.next)
			}
		})
	}
}

func TestApplyClamps(t *testing.T) {
	p := Patch{Start: 10, End: 20, Text: "!"}
	if got := p.Apply("abc"); got != "abc!" {
		t.Errorf("Apply = %q, want %q", got, "abc!")
	}
}
