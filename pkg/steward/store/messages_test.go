package store

import (
	"strings"
	"testing"
	"time"
)

func msgAt(t time.Time, content string) Message {
	return Message{Role: "user", Content: content, CreatedAt: t}
}

func TestWindowStart(t *testing.T) {
	midnight := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	yesterday := midnight.Add(-6 * time.Hour)
	today := midnight.Add(9 * time.Hour)

	t.Run("last N wins when today is short", func(t *testing.T) {
		msgs := []Message{
			msgAt(yesterday, "a"),
			msgAt(yesterday, "b"),
			msgAt(yesterday, "c"),
			msgAt(today, "d"),
		}
		// Today starts at index 3, but the last-3 suffix starts at 1.
		if got := windowStart(msgs, 3, midnight); got != 1 {
			t.Errorf("windowStart = %d, want 1", got)
		}
	})

	t.Run("today wins when it reaches further back", func(t *testing.T) {
		msgs := []Message{
			msgAt(yesterday, "a"),
			msgAt(today, "b"),
			msgAt(today, "c"),
			msgAt(today, "d"),
		}
		if got := windowStart(msgs, 2, midnight); got != 1 {
			t.Errorf("windowStart = %d, want 1", got)
		}
	})

	t.Run("no messages today falls back to last N", func(t *testing.T) {
		msgs := []Message{
			msgAt(yesterday, "a"),
			msgAt(yesterday, "b"),
			msgAt(yesterday, "c"),
		}
		if got := windowStart(msgs, 2, midnight); got != 1 {
			t.Errorf("windowStart = %d, want 1", got)
		}
	})

	t.Run("limit larger than history keeps everything", func(t *testing.T) {
		msgs := []Message{msgAt(yesterday, "a"), msgAt(yesterday, "b")}
		if got := windowStart(msgs, 30, midnight); got != 0 {
			t.Errorf("windowStart = %d, want 0", got)
		}
	})

	t.Run("empty history", func(t *testing.T) {
		if got := windowStart(nil, 30, midnight); got != 0 {
			t.Errorf("windowStart = %d, want 0", got)
		}
	})
}

func TestTrimToTokenLimit(t *testing.T) {
	now := time.Now()
	big := strings.Repeat("x", 400) // ~100 tokens

	t.Run("under the cap keeps everything", func(t *testing.T) {
		msgs := []Message{msgAt(now, big), msgAt(now, big)}
		if got := trimToTokenLimit(msgs, 1000); len(got) != 2 {
			t.Errorf("kept %d messages, want 2", len(got))
		}
	})

	t.Run("drops oldest first", func(t *testing.T) {
		msgs := []Message{msgAt(now, "oldest"), msgAt(now, big), msgAt(now, big)}
		got := trimToTokenLimit(msgs, 150)
		if len(got) != 1 {
			t.Fatalf("kept %d messages, want 1", len(got))
		}
		if got[0].Content != big {
			t.Error("kept message is not the newest")
		}
	})

	t.Run("newest always survives even over the cap", func(t *testing.T) {
		msgs := []Message{msgAt(now, big)}
		got := trimToTokenLimit(msgs, 1)
		if len(got) != 1 {
			t.Fatalf("kept %d messages, want 1", len(got))
		}
	})

	t.Run("reasoning counts toward the estimate", func(t *testing.T) {
		withReasoning := Message{Role: "assistant", Content: "hi", Reasoning: strings.Repeat("r", 400), CreatedAt: now}
		msgs := []Message{msgAt(now, "old"), withReasoning}
		got := trimToTokenLimit(msgs, 101)
		if len(got) != 1 {
			t.Fatalf("kept %d messages, want 1", len(got))
		}
	})

	t.Run("zero cap disables trimming", func(t *testing.T) {
		msgs := []Message{msgAt(now, big), msgAt(now, big)}
		if got := trimToTokenLimit(msgs, 0); len(got) != 2 {
			t.Errorf("kept %d messages, want 2", len(got))
		}
	})
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := estimateTokens(tt.text); got != tt.want {
			t.Errorf("estimateTokens(%d chars) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestTokenText(t *testing.T) {
	m := Message{Content: "answer", Reasoning: "thought"}
	want := "[Reasoning: thought]\n\nanswer"
	if got := tokenText(m); got != want {
		t.Errorf("tokenText = %q, want %q", got, want)
	}
	if got := tokenText(Message{Content: "plain"}); got != "plain" {
		t.Errorf("tokenText = %q, want plain", got)
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("short", 500); got != "short" {
		t.Errorf("Snippet = %q", got)
	}
	long := strings.Repeat("a", 600)
	got := Snippet(long, 500)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("Snippet should end with ellipsis, got %q", got[len(got)-10:])
	}
	if len(got) > 504 {
		t.Errorf("Snippet too long: %d", len(got))
	}
}

func TestWithWriteDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	// 1:30 UTC on the 11th is still the 10th in New York.
	now := time.Date(2026, 3, 11, 1, 30, 0, 0, time.UTC).In(ny)

	t.Run("nil metadata gets the local date", func(t *testing.T) {
		got := withWriteDate(nil, now)
		if got["date_est"] != "2026-03-10" {
			t.Errorf("date_est = %v, want 2026-03-10", got["date_est"])
		}
	})

	t.Run("existing keys survive", func(t *testing.T) {
		got := withWriteDate(map[string]any{"role_display": "heartbeat"}, now)
		if got["role_display"] != "heartbeat" {
			t.Errorf("role_display = %v", got["role_display"])
		}
		if got["date_est"] != "2026-03-10" {
			t.Errorf("date_est = %v", got["date_est"])
		}
	})

	t.Run("input map is not mutated", func(t *testing.T) {
		in := map[string]any{"role_display": "heartbeat"}
		withWriteDate(in, now)
		if _, ok := in["date_est"]; ok {
			t.Error("caller's map was modified")
		}
	})
}

func TestSearchQuery(t *testing.T) {
	t.Run("cross-thread orders by time", func(t *testing.T) {
		q := searchQuery("", 10)
		if !strings.Contains(q, "ORDER BY created_at DESC") {
			t.Errorf("query not ordered by created_at: %q", q)
		}
		if strings.Contains(q, "thread_id = $2") {
			t.Errorf("unexpected thread filter: %q", q)
		}
		if !strings.Contains(q, "LIMIT 10") {
			t.Errorf("limit missing: %q", q)
		}
	})

	t.Run("thread-scoped adds the filter", func(t *testing.T) {
		q := searchQuery("main", 5)
		if !strings.Contains(q, "thread_id = $2") {
			t.Errorf("thread filter missing: %q", q)
		}
		if !strings.Contains(q, "ORDER BY created_at DESC") {
			t.Errorf("query not ordered by created_at: %q", q)
		}
	})
}

func TestRoleDisplay(t *testing.T) {
	m := Message{Role: "user", Metadata: map[string]any{"role_display": "heartbeat"}}
	if got := m.RoleDisplay(); got != "heartbeat" {
		t.Errorf("RoleDisplay = %q, want heartbeat", got)
	}
	if got := (Message{Role: "assistant", Metadata: map[string]any{}}).RoleDisplay(); got != "assistant" {
		t.Errorf("RoleDisplay = %q, want assistant", got)
	}
}
