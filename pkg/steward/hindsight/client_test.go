package hindsight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFormatLivedExperience(t *testing.T) {
	t.Run("full exchange", func(t *testing.T) {
		got := formatLivedExperience("hello", "hi there")
		want := `The user and I were in conversation. They said to me: "hello" I responded from our shared context: "hi there"`
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("user only", func(t *testing.T) {
		got := formatLivedExperience("  ping  ", "")
		want := `The user reached out to me. They said: "ping"`
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})
}

func TestBuildTags(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		fallback string
		channel  string
		group    bool
		want     []string
	}{
		{"prefixes bare ids", "alice", "", "discord", false, []string{"user:alice", "channel:discord"}},
		{"keeps qualified ids", "discord:123", "", "Discord", false, []string{"discord:123", "channel:discord"}},
		{"fallback user id", "", "local:me", "", false, []string{"local:me"}},
		{"group tag", "alice", "", "telegram", true, []string{"user:alice", "channel:telegram", "group"}},
		{"nothing", "", "", "", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildTags(tt.userID, tt.fallback, tt.channel, tt.group)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("tag[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRecall(t *testing.T) {
	t.Run("formats results as recollection", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/banks/test-bank/recall") {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Write([]byte(`{"results":[{"text":"we talked about go"},{"text":"  "},{"text":"they like tea"}]}`))
		}))
		defer srv.Close()

		c := New(Config{Enabled: true, BaseURL: srv.URL, BankID: "test-bank"}, nil)
		got := c.Recall(context.Background(), "tea")
		want := "From my experience with the user:\n\nwe talked about go\n\nthey like tea"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("no matches", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"results":[]}`))
		}))
		defer srv.Close()

		c := New(Config{Enabled: true, BaseURL: srv.URL}, nil)
		if got := c.Recall(context.Background(), "x"); got != "I don't have any memories that match that." {
			t.Errorf("got %q", got)
		}
	})

	t.Run("server error is reported, not fatal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := New(Config{Enabled: true, BaseURL: srv.URL}, nil)
		if got := c.Recall(context.Background(), "x"); !strings.HasPrefix(got, "Hindsight recall failed:") {
			t.Errorf("got %q", got)
		}
	})
}

func TestRetainExchangeDisabled(t *testing.T) {
	c := New(Config{Enabled: false, BaseURL: "http://localhost:1"}, nil)
	if c.RetainExchange(context.Background(), Exchange{UserContent: "hi"}) {
		t.Error("disabled client should not retain")
	}
}

func TestReflect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":""}`))
	}))
	defer srv.Close()

	c := New(Config{Enabled: true, BaseURL: srv.URL}, nil)
	if got := c.Reflect(context.Background(), "patterns"); got != "I reflected but have nothing specific to share." {
		t.Errorf("got %q", got)
	}
}
