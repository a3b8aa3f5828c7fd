package telegram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeBotAPI serves getUpdates from a fixed backlog, honoring offset
// and limit the way the Bot API does.
func fakeBotAPI(t *testing.T, backlog int64, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getUpdates") {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		*calls++
		var req struct {
			Offset int64 `json:"offset"`
			Limit  int64 `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		first := req.Offset
		if first < 1 {
			first = 1
		}
		var updates []string
		for id := first; id <= backlog && int64(len(updates)) < req.Limit; id++ {
			updates = append(updates, fmt.Sprintf(`{"update_id":%d}`, id))
		}
		fmt.Fprintf(w, `{"ok":true,"result":[%s]}`, strings.Join(updates, ","))
	}))
}

func TestDrainPending(t *testing.T) {
	t.Run("drains a multi-page backlog", func(t *testing.T) {
		calls := 0
		srv := fakeBotAPI(t, 140, &calls)
		defer srv.Close()

		tg := New(Config{Token: "test"}, nil)
		tg.baseURL = srv.URL

		tg.drainPending()
		if tg.offset != 141 {
			t.Errorf("offset = %d, want 141", tg.offset)
		}
		// 100 + 40 + empty confirmation.
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("no backlog leaves offset alone", func(t *testing.T) {
		calls := 0
		srv := fakeBotAPI(t, 0, &calls)
		defer srv.Close()

		tg := New(Config{Token: "test"}, nil)
		tg.baseURL = srv.URL

		tg.drainPending()
		if tg.offset != 0 {
			t.Errorf("offset = %d, want 0", tg.offset)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}

func TestChatAllowed(t *testing.T) {
	open := New(Config{}, nil)
	if !open.chatAllowed(99) {
		t.Error("empty allow-list should permit every chat")
	}

	restricted := New(Config{AllowedChats: []int64{42}}, nil)
	if !restricted.chatAllowed(42) {
		t.Error("listed chat rejected")
	}
	if restricted.chatAllowed(43) {
		t.Error("unlisted chat allowed")
	}
}
