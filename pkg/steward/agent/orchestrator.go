package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/steward/pkg/steward/hindsight"
	"github.com/jholhewres/steward/pkg/steward/store"
)

// maxToolRounds bounds the ReAct loop for a single turn.
const maxToolRounds = 8

// ErrLLMConfig marks authentication/configuration failures from the
// model endpoint. The HTTP surface maps these to 503.
var ErrLLMConfig = errors.New("llm configuration error")

// ErrLLMTransient marks rate-limit/capacity failures worth retrying.
var ErrLLMTransient = errors.New("llm temporarily unavailable")

// Settings are the orchestrator knobs, copied from config at startup.
type Settings struct {
	RecentMessagesLimit int
	ContextWindowTokens int
	DefaultUserID       string
	DefaultChannelType  string
	UserDisplayName     string

	// ActivityPath is the sentinel file recording when the user last
	// chatted on an external channel.
	ActivityPath string
}

// Agent runs conversation turns: it rebuilds context from storage,
// drives the model and its tools, and persists the exchange.
type Agent struct {
	llm       *LLMClient
	store     *store.Store
	hindsight *hindsight.Client
	executor  *ToolExecutor
	settings  Settings
	logger    *slog.Logger
}

// New creates an agent. Register tools on Executor() before chatting.
func New(llm *LLMClient, st *store.Store, hs *hindsight.Client, settings Settings, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.RecentMessagesLimit == 0 {
		settings.RecentMessagesLimit = 30
	}
	if settings.ContextWindowTokens == 0 {
		settings.ContextWindowTokens = 200000
	}
	return &Agent{
		llm:       llm,
		store:     st,
		hindsight: hs,
		executor:  NewToolExecutor(logger),
		settings:  settings,
		logger:    logger.With("component", "agent"),
	}
}

// Executor exposes the tool registry for registration.
func (a *Agent) Executor() *ToolExecutor {
	return a.executor
}

// Store exposes the storage layer to tool handlers.
func (a *Agent) Store() *store.Store {
	return a.store
}

// Hindsight exposes the episodic memory client to tool handlers.
func (a *Agent) Hindsight() *hindsight.Client {
	return a.hindsight
}

// ChatRequest is one inbound turn.
type ChatRequest struct {
	ThreadID    string
	UserMessage string

	// StoredMessage, when set, is persisted instead of UserMessage while
	// the model still sees UserMessage (heartbeats store a short marker
	// instead of the full wake-up prompt).
	StoredMessage string

	UserDisplayName string
	UserID          string
	ChannelType     string
	IsGroupChat     bool

	// CurrentTime pins the turn timestamp; zero means now.
	CurrentTime time.Time
}

// Chat runs a full turn and returns the assistant's reply.
func (a *Agent) Chat(ctx context.Context, req ChatRequest) (string, error) {
	now := req.CurrentTime
	if now.IsZero() {
		now = time.Now().In(a.store.Location())
	}
	req = a.applyDefaults(req)

	history, err := a.store.LoadWindow(ctx, req.ThreadID, now, store.WindowOptions{
		Limit:     a.settings.RecentMessagesLimit,
		MaxTokens: a.settings.ContextWindowTokens,
	})
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	systemPrompt, err := a.buildSystemPrompt(ctx, now)
	if err != nil {
		return "", err
	}

	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	messages = append(messages, historyToChatMessages(history)...)
	// Prefix the timestamp so it sits right next to the content the
	// model responds to. The raw message is what gets stored.
	messages = append(messages, chatMessage{
		Role:    "user",
		Content: fmt.Sprintf("[%s]\n%s", FormatCurrentTime(now), req.UserMessage),
	})

	reply, err := a.runToolLoop(ctx, messages)
	if err != nil {
		return "", classifyLLMError(err)
	}

	if err := a.persistTurn(ctx, req, reply); err != nil {
		return "", err
	}

	if req.ChannelType != "internal" {
		if err := TouchActivity(a.settings.ActivityPath); err != nil {
			a.logger.Warn("activity sentinel write failed", "error", err)
		}
	}

	a.retainAsync(req, reply)
	return reply, nil
}

// applyDefaults fills per-turn identity fields from settings. Channel
// and scheduler paths set their own; HTTP turns fall back to the
// configured identity, including the display name persisted as
// role_display.
func (a *Agent) applyDefaults(req ChatRequest) ChatRequest {
	if req.ThreadID == "" {
		req.ThreadID = "main"
	}
	if req.UserID == "" {
		req.UserID = a.settings.DefaultUserID
	}
	if req.ChannelType == "" {
		req.ChannelType = a.settings.DefaultChannelType
	}
	if req.UserDisplayName == "" {
		req.UserDisplayName = a.settings.UserDisplayName
	}
	return req
}

// runToolLoop drives the model until it answers without requesting
// tools, executing each round of tool calls in between.
func (a *Agent) runToolLoop(ctx context.Context, messages []chatMessage) (string, error) {
	lastContent := ""
	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.llm.CompleteWithTools(ctx, messages, a.executor.Definitions())
		if err != nil {
			return "", err
		}
		if resp.Content != "" {
			lastContent = resp.Content
		}
		if len(resp.ToolCalls) == 0 {
			return lastContent, nil
		}

		// Some providers omit call IDs; both sides of the pairing need one.
		for i := range resp.ToolCalls {
			if resp.ToolCalls[i].ID == "" {
				resp.ToolCalls[i].ID = "call-" + uuid.NewString()
			}
		}

		messages = append(messages, chatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, result := range a.executor.Execute(ctx, resp.ToolCalls) {
			messages = append(messages, chatMessage{
				Role:       "tool",
				Content:    result.Content,
				ToolCallID: result.ToolCallID,
			})
		}
	}
	a.logger.Warn("tool loop hit round limit", "rounds", maxToolRounds)
	return lastContent, nil
}

func (a *Agent) buildSystemPrompt(ctx context.Context, now time.Time) (string, error) {
	blocks, err := a.store.GetBlocks(ctx)
	if err != nil {
		return "", fmt.Errorf("load core memory: %w", err)
	}
	contents := make(map[string]string, len(blocks))
	for name, b := range blocks {
		contents[name] = b.Content
	}

	instructions, err := a.store.SystemInstructions(ctx)
	if err != nil {
		return "", fmt.Errorf("load system instructions: %w", err)
	}

	// Summaries are nice-to-have context; never fail a turn over them.
	summaries, err := a.store.RecentDailySummaries(ctx, 7)
	if err != nil {
		a.logger.Warn("daily summaries unavailable", "error", err)
		summaries = nil
	}

	return BuildSystemPrompt(PromptData{
		Blocks:             contents,
		SystemInstructions: instructions,
		Summaries:          summaries,
	}, a.executor.Definitions(), now), nil
}

// persistTurn writes the user message and the assistant reply in one
// append so indices stay contiguous.
func (a *Agent) persistTurn(ctx context.Context, req ChatRequest, reply string) error {
	stored := req.StoredMessage
	if stored == "" {
		stored = req.UserMessage
	}

	var userMeta map[string]any
	if req.UserDisplayName != "" {
		userMeta = map[string]any{"role_display": req.UserDisplayName}
	}

	toPersist := []store.NewMessage{{Role: "user", Content: stored, Metadata: userMeta}}
	if reply != "" {
		toPersist = append(toPersist, store.NewMessage{Role: "assistant", Content: reply})
	}
	if err := a.store.Append(ctx, req.ThreadID, toPersist); err != nil {
		return fmt.Errorf("persist turn: %w", err)
	}
	return nil
}

// retainAsync ships the exchange to Hindsight in the background so the
// reply is never blocked on the memory round-trip.
func (a *Agent) retainAsync(req ChatRequest, reply string) {
	if a.hindsight == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.hindsight.RetainExchange(ctx, hindsight.Exchange{
			UserContent:      req.UserMessage,
			AssistantContent: reply,
			ThreadID:         req.ThreadID,
			UserID:           req.UserID,
			ChannelType:      req.ChannelType,
			IsGroupChat:      req.IsGroupChat,
		})
	}()
}

// historyToChatMessages converts stored rows to the wire format.
// Assistant reasoning is folded back in as a <think> prefix; tool rows
// get placeholder call IDs since the original IDs are gone.
func historyToChatMessages(rows []store.Message) []chatMessage {
	out := make([]chatMessage, 0, len(rows))
	for i, row := range rows {
		switch row.Role {
		case "user":
			out = append(out, chatMessage{Role: "user", Content: row.Content})
		case "assistant":
			content := row.Content
			if strings.TrimSpace(row.Reasoning) != "" {
				content = fmt.Sprintf("<think>\n%s\n</think>\n\n%s", row.Reasoning, row.Content)
			}
			out = append(out, chatMessage{Role: "assistant", Content: content})
		case "tool":
			out = append(out, chatMessage{
				Role:       "tool",
				Content:    row.Content,
				ToolCallID: fmt.Sprintf("imported-%d", i),
			})
		}
	}
	return out
}

// classifyLLMError sorts endpoint failures into configuration problems
// (bad key, bad URL) and transient capacity problems, so callers can
// answer with the right status and guidance.
func classifyLLMError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "invalid token"), strings.Contains(msg, "authentication"):
		return fmt.Errorf("%w: LLM authentication failed (401). Check your .env:\n"+
			"  - OPENAI_API_KEY: no extra spaces, not expired\n"+
			"  - OPENAI_BASE_URL: must point at an OpenAI-compatible endpoint\n"+
			"  - OPENAI_MODEL_NAME: a model the endpoint serves", ErrLLMConfig)
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "capacity"):
		return fmt.Errorf("%w: the provider is temporarily at capacity. Please try again in a moment", ErrLLMTransient)
	default:
		return err
	}
}

// TouchActivity records the current time in the activity sentinel file.
func TouchActivity(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return os.WriteFile(path, []byte(ts), 0o644)
}

// ActivityAge returns how long ago the sentinel was written. ok=false
// when the sentinel is missing or unreadable.
func ActivityAge(path string) (time.Duration, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false
	}
	return time.Since(time.Unix(ts, 0)), true
}
