package session

import "testing"

func TestWordCount(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   \n\t", 0},
		{"hello", 1},
		{"hello  world\nagain", 3},
		{"你好世界", 4},
		{"go 语言 rocks", 4},
		{"mixed中文words", 4},
	}
	for _, c := range cases {
		if got := WordCount(c.text); got != c.want {
			t.Errorf("WordCount(%q) = %d, want %d", c.text, got, c.want)
		}
	}
}

func TestCharCountCountsGraphemes(t *testing.T) {
	if got := CharCount("héllo"); got != 5 {
		t.Errorf("CharCount(héllo) = %d, want 5", got)
	}
	// Flag emoji is two runes but one grapheme.
	if got := CharCount("🇩🇪!"); got != 2 {
		t.Errorf("CharCount(flag!) = %d, want 2", got)
	}
}

func TestKindFor(t *testing.T) {
	cases := map[string]Kind{
		"notes.md":        KindMarkdown,
		"README.Markdown": KindMarkdown,
		"main.go":         KindText,
		"Untitled":        KindText,
	}
	for name, want := range cases {
		if got := KindFor(name); got != want {
			t.Errorf("KindFor(%q) = %q, want %q", name, got, want)
		}
	}
}
