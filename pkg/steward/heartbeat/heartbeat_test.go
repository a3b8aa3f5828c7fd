package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jholhewres/steward/pkg/steward/agent"
)

func TestWithinWakingHours(t *testing.T) {
	tests := []struct {
		hour int
		want bool
	}{
		{4, false},
		{5, true},
		{12, true},
		{21, true},
		{22, false},
		{23, false},
		{0, false},
	}
	for _, tt := range tests {
		if got := withinWakingHours(tt.hour, 5, 22); got != tt.want {
			t.Errorf("withinWakingHours(%d, 5, 22) = %v, want %v", tt.hour, got, tt.want)
		}
	}
}

func TestLoadPrompt(t *testing.T) {
	t.Run("default when unconfigured", func(t *testing.T) {
		h := New(nil, Config{}, nil)
		if got := h.loadPrompt(); got != DefaultPrompt {
			t.Error("expected default prompt")
		}
	})

	t.Run("default when file missing", func(t *testing.T) {
		h := New(nil, Config{PromptFile: filepath.Join(t.TempDir(), "nope.txt")}, nil)
		if got := h.loadPrompt(); got != DefaultPrompt {
			t.Error("expected default prompt for missing file")
		}
	})

	t.Run("custom file used as-is when it asserts autonomy", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.txt")
		content := "Wake up. You have FULL AUTONOMY today."
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		h := New(nil, Config{PromptFile: path}, nil)
		if got := h.loadPrompt(); got != content {
			t.Errorf("got %q", got)
		}
	})

	t.Run("byte order mark stripped", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.txt")
		content := "\ufeffYou have FULL AUTONOMY. Go explore."
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		h := New(nil, Config{PromptFile: path}, nil)
		if got := h.loadPrompt(); got != "You have FULL AUTONOMY. Go explore." {
			t.Errorf("got %q", got)
		}
	})

	t.Run("autonomy emphasis prepended when absent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.txt")
		if err := os.WriteFile(path, []byte("Just check the feeds."), 0o644); err != nil {
			t.Fatal(err)
		}
		h := New(nil, Config{PromptFile: path}, nil)
		got := h.loadPrompt()
		if !strings.HasPrefix(got, "You have FULL AUTONOMY during heartbeats.") {
			t.Errorf("emphasis not prepended: %q", got)
		}
		if !strings.HasSuffix(got, "Just check the feeds.") {
			t.Errorf("original content lost: %q", got)
		}
	})
}

func TestRunOnceSkipsWhenUserActive(t *testing.T) {
	sentinel := filepath.Join(t.TempDir(), "last_active.txt")
	if err := agent.TouchActivity(sentinel); err != nil {
		t.Fatal(err)
	}

	h := New(agent.New(nil, nil, nil, agent.Settings{}, nil), Config{
		SkipWindow:   5 * time.Minute,
		ActivityPath: sentinel,
	}, nil)

	result, err := h.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !result.Skipped {
		t.Fatal("expected skip while user is active")
	}
	if result.Reason != "user_recently_active" {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestConfigDefaults(t *testing.T) {
	h := New(nil, Config{}, nil)
	if h.config.Interval != 60*time.Minute {
		t.Errorf("Interval = %v", h.config.Interval)
	}
	if h.config.SkipWindow != 5*time.Minute {
		t.Errorf("SkipWindow = %v", h.config.SkipWindow)
	}
	if h.config.WakeHour != 5 || h.config.SleepHour != 22 {
		t.Errorf("waking hours = %d-%d", h.config.WakeHour, h.config.SleepHour)
	}
}
