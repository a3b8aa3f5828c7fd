package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompleteWithTools(t *testing.T) {
	t.Run("parses content and usage", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("path = %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("auth header = %q", got)
			}
			var req chatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			if req.Model != "test-model" {
				t.Errorf("model = %q", req.Model)
			}
			w.Write([]byte(`{
				"choices":[{"message":{"content":"  hello  "},"finish_reason":"stop"}],
				"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}
			}`))
		}))
		defer srv.Close()

		c := NewLLMClient(srv.URL, "test-key", "test-model", nil)
		resp, err := c.CompleteWithTools(context.Background(), []chatMessage{{Role: "user", Content: "hi"}}, nil)
		if err != nil {
			t.Fatalf("CompleteWithTools: %v", err)
		}
		if resp.Content != "hello" {
			t.Errorf("content = %q, want trimmed hello", resp.Content)
		}
		if resp.Usage.TotalTokens != 15 {
			t.Errorf("tokens = %d", resp.Usage.TotalTokens)
		}
	})

	t.Run("surfaces tool calls", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[{"message":{"content":"","tool_calls":[
				{"id":"call-1","type":"function","function":{"name":"get_current_time","arguments":"{}"}}
			]},"finish_reason":"tool_calls"}]}`))
		}))
		defer srv.Close()

		c := NewLLMClient(srv.URL, "", "m", nil)
		resp, err := c.CompleteWithTools(context.Background(), nil, nil)
		if err != nil {
			t.Fatalf("CompleteWithTools: %v", err)
		}
		if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "get_current_time" {
			t.Errorf("tool calls = %+v", resp.ToolCalls)
		}
	})

	t.Run("non-200 includes status and body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewLLMClient(srv.URL, "bad", "m", nil)
		_, err := c.CompleteWithTools(context.Background(), nil, nil)
		if err == nil || !strings.Contains(err.Error(), "API returned 401") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("error payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":{"message":"model overloaded","type":"capacity"}}`))
		}))
		defer srv.Close()

		c := NewLLMClient(srv.URL, "", "m", nil)
		_, err := c.CompleteWithTools(context.Background(), nil, nil)
		if err == nil || !strings.Contains(err.Error(), "model overloaded") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("empty choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		c := NewLLMClient(srv.URL, "", "m", nil)
		_, err := c.CompleteWithTools(context.Background(), nil, nil)
		if err == nil || !strings.Contains(err.Error(), "no response from model") {
			t.Errorf("err = %v", err)
		}
	})
}
