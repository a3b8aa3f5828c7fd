package agent

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jholhewres/steward/pkg/steward/store"
)

func TestClassifyLLMError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"401 status", errors.New("API returned 401: unauthorized"), ErrLLMConfig},
		{"invalid token", errors.New("invalid token provided"), ErrLLMConfig},
		{"authentication", errors.New("Authentication failed"), ErrLLMConfig},
		{"429 status", errors.New("API returned 429: too many requests"), ErrLLMTransient},
		{"rate limit", errors.New("rate limit exceeded"), ErrLLMTransient},
		{"capacity", errors.New("provider at capacity"), ErrLLMTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyLLMError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyLLMError(%v) = %v, want wrapping %v", tt.err, got, tt.want)
			}
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		orig := errors.New("connection refused")
		got := classifyLLMError(orig)
		if got != orig {
			t.Errorf("got %v, want original error", got)
		}
	})

	t.Run("nil", func(t *testing.T) {
		if classifyLLMError(nil) != nil {
			t.Error("nil should stay nil")
		}
	})
}

func TestHistoryToChatMessages(t *testing.T) {
	rows := []store.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi", Reasoning: "greeting back"},
		{Role: "tool", Content: "OK"},
		{Role: "assistant", Content: "done"},
	}
	msgs := historyToChatMessages(rows)
	if len(msgs) != 4 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hello" {
		t.Errorf("user message = %+v", msgs[0])
	}
	want := "<think>\ngreeting back\n</think>\n\nhi"
	if msgs[1].Content != want {
		t.Errorf("reasoning not folded in: %q", msgs[1].Content)
	}
	if msgs[2].Role != "tool" || msgs[2].ToolCallID != "imported-2" {
		t.Errorf("tool message = %+v", msgs[2])
	}
	if msgs[3].Content != "done" {
		t.Errorf("plain assistant message = %q", msgs[3].Content)
	}
}

func TestActivitySentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "last_active.txt")

	if _, ok := ActivityAge(path); ok {
		t.Error("missing sentinel should report ok=false")
	}

	if err := TouchActivity(path); err != nil {
		t.Fatalf("TouchActivity: %v", err)
	}
	age, ok := ActivityAge(path)
	if !ok {
		t.Fatal("sentinel unreadable after write")
	}
	if age < 0 || age > time.Minute {
		t.Errorf("age = %v, want near zero", age)
	}

	t.Run("empty path is a no-op", func(t *testing.T) {
		if err := TouchActivity(""); err != nil {
			t.Errorf("TouchActivity(\"\") = %v", err)
		}
	})
}

func TestSettingsDefaults(t *testing.T) {
	a := New(nil, nil, nil, Settings{}, nil)
	if a.settings.RecentMessagesLimit != 30 {
		t.Errorf("RecentMessagesLimit = %d, want 30", a.settings.RecentMessagesLimit)
	}
	if a.settings.ContextWindowTokens != 200000 {
		t.Errorf("ContextWindowTokens = %d, want 200000", a.settings.ContextWindowTokens)
	}
}

func TestApplyDefaults(t *testing.T) {
	a := New(nil, nil, nil, Settings{
		DefaultUserID:      "local:user",
		DefaultChannelType: "local",
		UserDisplayName:    "User",
	}, nil)

	t.Run("empty request gets the configured identity", func(t *testing.T) {
		got := a.applyDefaults(ChatRequest{UserMessage: "hi"})
		if got.ThreadID != "main" {
			t.Errorf("ThreadID = %q", got.ThreadID)
		}
		if got.UserID != "local:user" {
			t.Errorf("UserID = %q", got.UserID)
		}
		if got.ChannelType != "local" {
			t.Errorf("ChannelType = %q", got.ChannelType)
		}
		if got.UserDisplayName != "User" {
			t.Errorf("UserDisplayName = %q", got.UserDisplayName)
		}
	})

	t.Run("explicit values win", func(t *testing.T) {
		got := a.applyDefaults(ChatRequest{
			ThreadID:        "side",
			UserID:          "telegram:42",
			ChannelType:     "telegram",
			UserDisplayName: "Ana",
		})
		if got.ThreadID != "side" || got.UserID != "telegram:42" ||
			got.ChannelType != "telegram" || got.UserDisplayName != "Ana" {
			t.Errorf("defaults overwrote explicit fields: %+v", got)
		}
	})
}

func TestFormatJobSummary(t *testing.T) {
	lastRun := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	job := &store.CronJob{
		ID:            4,
		Name:          "morning briefing",
		Status:        "active",
		ScheduleDays:  []int{0, 1, 2, 3, 4},
		ScheduleTime:  "7:00 AM",
		Timezone:      "America/New_York",
		Instructions:  strings.Repeat("x", 130),
		LastRunAt:     &lastRun,
		LastRunStatus: "success",
	}
	got := formatJobSummary(job)
	if !strings.Contains(got, "[id=4] morning briefing — ACTIVE") {
		t.Errorf("header wrong: %q", got)
	}
	if !strings.Contains(got, "Weekdays at 7:00 AM (America/New_York)") {
		t.Errorf("schedule wrong: %q", got)
	}
	if !strings.Contains(got, strings.Repeat("x", 120)+"...") {
		t.Error("instructions not truncated at 120")
	}

	oneTime := &store.CronJob{ID: 5, Name: "ship it", Status: "paused", IsOneTime: true, RunDate: "2026-04-01", ScheduleTime: "9:00 AM"}
	got = formatJobSummary(oneTime)
	if !strings.Contains(got, "One-time on 2026-04-01 at 9:00 AM") {
		t.Errorf("one-time schedule wrong: %q", got)
	}
	if !strings.Contains(got, "Last run: Never (N/A)") {
		t.Errorf("never-run rendering wrong: %q", got)
	}
}
