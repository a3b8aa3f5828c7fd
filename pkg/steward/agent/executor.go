package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"
)

// toolNameSanitizer strips characters the API rejects in tool names.
var toolNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// DefaultToolTimeout bounds a single tool execution.
const DefaultToolTimeout = 30 * time.Second

// ToolHandlerFunc executes a tool call with parsed arguments.
type ToolHandlerFunc func(ctx context.Context, args map[string]any) (any, error)

type registeredTool struct {
	Definition ToolDefinition
	Handler    ToolHandlerFunc
}

// ToolResult is the outcome of one tool call.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
	Error      bool
}

// ToolExecutor holds the registered tools and runs model-requested
// calls. Tool failures are returned as result content so the model can
// react; they never abort a turn.
type ToolExecutor struct {
	tools   map[string]registeredTool
	timeout time.Duration
	logger  *slog.Logger
}

// NewToolExecutor creates an empty executor.
func NewToolExecutor(logger *slog.Logger) *ToolExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolExecutor{
		tools:   make(map[string]registeredTool),
		timeout: DefaultToolTimeout,
		logger:  logger.With("component", "tools"),
	}
}

// Register adds a tool. Re-registering a name replaces it.
func (e *ToolExecutor) Register(def ToolDefinition, handler ToolHandlerFunc) {
	e.tools[def.Function.Name] = registeredTool{Definition: def, Handler: handler}
}

// Definitions returns all tool definitions sorted by name, for the API
// payload and the prompt manifest.
func (e *ToolExecutor) Definitions() []ToolDefinition {
	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, e.tools[name].Definition)
	}
	return defs
}

// Execute runs the requested tool calls sequentially.
func (e *ToolExecutor) Execute(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.executeSingle(ctx, call))
	}
	return results
}

func (e *ToolExecutor) executeSingle(ctx context.Context, call ToolCall) ToolResult {
	name := call.Function.Name
	result := ToolResult{ToolCallID: call.ID, Name: name}

	tool, ok := e.tools[name]
	if !ok {
		result.Content = fmt.Sprintf("Error: unknown tool %q", name)
		result.Error = true
		return result
	}

	args, err := parseToolArgs(call.Function.Arguments)
	if err != nil {
		result.Content = fmt.Sprintf("Error parsing arguments: %v", err)
		result.Error = true
		return result
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	out, err := tool.Handler(toolCtx, args)
	if err != nil {
		e.logger.Warn("tool failed", "tool", name, "error", err)
		result.Content = fmt.Sprintf("Error: %v", err)
		result.Error = true
		return result
	}

	e.logger.Info("tool executed", "tool", name, "duration_ms", time.Since(start).Milliseconds(), "args", mapKeys(args))
	result.Content = formatToolOutput(out)
	return result
}

// MakeToolDefinition builds a tool definition from a name, description,
// and JSON-schema parameter map.
func MakeToolDefinition(name, description string, params map[string]any) ToolDefinition {
	name = toolNameSanitizer.ReplaceAllString(name, "_")
	var schema json.RawMessage
	if params != nil {
		schema, _ = json.Marshal(params)
	} else {
		schema = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
	}
}

func parseToolArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func formatToolOutput(out any) string {
	switch v := out.(type) {
	case nil:
		return "OK"
	case string:
		return v
	case []byte:
		return string(v)
	case error:
		return fmt.Sprintf("Error: %v", v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String argument helpers for tool handlers.

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func intSliceArg(args map[string]any, key string) []int {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}
