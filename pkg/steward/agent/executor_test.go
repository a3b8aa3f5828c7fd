package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExecuteSingle(t *testing.T) {
	e := NewToolExecutor(nil)
	e.Register(MakeToolDefinition("echo", "Echo the input.", objectSchema(map[string]any{
		"text": map[string]any{"type": "string"},
	}, "text")), func(ctx context.Context, args map[string]any) (any, error) {
		return "echo: " + stringArg(args, "text"), nil
	})
	e.Register(MakeToolDefinition("fail", "Always fails.", nil),
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("boom")
		})

	t.Run("success", func(t *testing.T) {
		results := e.Execute(context.Background(), []ToolCall{{
			ID:       "c1",
			Function: FunctionCall{Name: "echo", Arguments: `{"text":"hi"}`},
		}})
		if len(results) != 1 {
			t.Fatalf("got %d results", len(results))
		}
		if results[0].Content != "echo: hi" {
			t.Errorf("content = %q", results[0].Content)
		}
		if results[0].Error {
			t.Error("unexpected error flag")
		}
	})

	t.Run("handler error becomes content", func(t *testing.T) {
		results := e.Execute(context.Background(), []ToolCall{{
			ID:       "c2",
			Function: FunctionCall{Name: "fail"},
		}})
		if results[0].Content != "Error: boom" {
			t.Errorf("content = %q", results[0].Content)
		}
		if !results[0].Error {
			t.Error("error flag not set")
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		results := e.Execute(context.Background(), []ToolCall{{
			ID:       "c3",
			Function: FunctionCall{Name: "nope"},
		}})
		if !strings.Contains(results[0].Content, `unknown tool "nope"`) {
			t.Errorf("content = %q", results[0].Content)
		}
	})

	t.Run("bad arguments", func(t *testing.T) {
		results := e.Execute(context.Background(), []ToolCall{{
			ID:       "c4",
			Function: FunctionCall{Name: "echo", Arguments: "not json"},
		}})
		if !strings.HasPrefix(results[0].Content, "Error parsing arguments:") {
			t.Errorf("content = %q", results[0].Content)
		}
	})

	t.Run("timeout cancels the handler context", func(t *testing.T) {
		e := NewToolExecutor(nil)
		e.timeout = 10 * time.Millisecond
		e.Register(MakeToolDefinition("slow", "Sleeps.", nil),
			func(ctx context.Context, args map[string]any) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})
		results := e.Execute(context.Background(), []ToolCall{{
			ID:       "c5",
			Function: FunctionCall{Name: "slow"},
		}})
		if !results[0].Error {
			t.Error("expected timeout error")
		}
	})
}

func TestDefinitionsSorted(t *testing.T) {
	e := NewToolExecutor(nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		e.Register(MakeToolDefinition(name, "x", nil), func(ctx context.Context, args map[string]any) (any, error) {
			return nil, nil
		})
	}
	defs := e.Definitions()
	if len(defs) != 3 {
		t.Fatalf("got %d definitions", len(defs))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, d := range defs {
		if d.Function.Name != want[i] {
			t.Errorf("defs[%d] = %q, want %q", i, d.Function.Name, want[i])
		}
	}
}

func TestMakeToolDefinitionSanitizesName(t *testing.T) {
	def := MakeToolDefinition("my tool!", "desc", nil)
	if def.Function.Name != "my_tool_" {
		t.Errorf("name = %q", def.Function.Name)
	}
	if def.Type != "function" {
		t.Errorf("type = %q", def.Type)
	}
}

func TestParseToolArgs(t *testing.T) {
	tests := []struct {
		raw     string
		wantLen int
		wantErr bool
	}{
		{"", 0, false},
		{"{}", 0, false},
		{`{"a":1}`, 1, false},
		{"garbage", 0, true},
	}
	for _, tt := range tests {
		args, err := parseToolArgs(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseToolArgs(%q) err = %v", tt.raw, err)
			continue
		}
		if err == nil && len(args) != tt.wantLen {
			t.Errorf("parseToolArgs(%q) len = %d, want %d", tt.raw, len(args), tt.wantLen)
		}
	}
}

func TestFormatToolOutput(t *testing.T) {
	if got := formatToolOutput(nil); got != "OK" {
		t.Errorf("nil = %q", got)
	}
	if got := formatToolOutput("plain"); got != "plain" {
		t.Errorf("string = %q", got)
	}
	if got := formatToolOutput(map[string]int{"n": 1}); got != `{"n":1}` {
		t.Errorf("map = %q", got)
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"s":    "hello",
		"n":    float64(7),
		"days": []any{float64(0), float64(4)},
	}
	if got := stringArg(args, "s"); got != "hello" {
		t.Errorf("stringArg = %q", got)
	}
	if got := stringArg(args, "missing"); got != "" {
		t.Errorf("missing stringArg = %q", got)
	}
	if got := intArg(args, "n", 0); got != 7 {
		t.Errorf("intArg = %d", got)
	}
	if got := intArg(args, "missing", 42); got != 42 {
		t.Errorf("intArg fallback = %d", got)
	}
	days := intSliceArg(args, "days")
	if len(days) != 2 || days[0] != 0 || days[1] != 4 {
		t.Errorf("intSliceArg = %v", days)
	}
}
