package channels

import (
	"strings"
	"testing"
)

func TestSplitMessage(t *testing.T) {
	t.Run("short text is one chunk", func(t *testing.T) {
		chunks := SplitMessage("hello", 2000)
		if len(chunks) != 1 || chunks[0] != "hello" {
			t.Errorf("chunks = %q", chunks)
		}
	})

	t.Run("splits on newline boundary", func(t *testing.T) {
		text := "first paragraph\nsecond paragraph"
		chunks := SplitMessage(text, 20)
		if len(chunks) != 2 {
			t.Fatalf("chunks = %q", chunks)
		}
		if chunks[0] != "first paragraph" || chunks[1] != "second paragraph" {
			t.Errorf("chunks = %q", chunks)
		}
	})

	t.Run("falls back to space boundary", func(t *testing.T) {
		text := "one two three four five"
		chunks := SplitMessage(text, 10)
		for i, c := range chunks {
			if len(c) > 10 {
				t.Errorf("chunk %d too long: %q", i, c)
			}
		}
		if got := strings.Join(chunks, " "); got != text {
			t.Errorf("rejoined = %q, want %q", got, text)
		}
	})

	t.Run("hard cut when no boundary", func(t *testing.T) {
		text := strings.Repeat("x", 25)
		chunks := SplitMessage(text, 10)
		if len(chunks) != 3 {
			t.Fatalf("chunks = %d", len(chunks))
		}
		if strings.Join(chunks, "") != text {
			t.Error("content lost on hard cut")
		}
	})

	t.Run("no empty chunks", func(t *testing.T) {
		chunks := SplitMessage("a\n\n\nb", 2)
		for i, c := range chunks {
			if c == "" {
				t.Errorf("chunk %d is empty", i)
			}
		}
	})

	t.Run("zero limit returns text unchanged", func(t *testing.T) {
		chunks := SplitMessage("anything", 0)
		if len(chunks) != 1 || chunks[0] != "anything" {
			t.Errorf("chunks = %q", chunks)
		}
	})
}
