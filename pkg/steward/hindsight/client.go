// Package hindsight talks to a Hindsight server: long-term episodic
// memory the agent retains into after every exchange and recalls from
// on demand. Every operation fails soft — a missing or broken Hindsight
// never breaks a conversation turn.
package hindsight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config mirrors config.HindsightConfig without importing it.
type Config struct {
	Enabled bool
	BaseURL string
	BankID  string
	UserID  string
}

// Client is a Hindsight REST client bound to one memory bank.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Hindsight client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8888"
	}
	if cfg.BankID == "" {
		cfg.BankID = "stateful-agent"
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "hindsight"),
	}
}

// Exchange describes one user/assistant exchange to retain.
type Exchange struct {
	UserContent      string
	AssistantContent string
	ThreadID         string
	UserID           string
	ChannelType      string
	IsGroupChat      bool
}

// RetainExchange stores an exchange as lived experience. Returns true
// when the memory was retained, false when Hindsight is disabled or
// unreachable.
func (c *Client) RetainExchange(ctx context.Context, ex Exchange) bool {
	if !c.config.Enabled {
		return false
	}

	payload := map[string]any{
		"content":   formatLivedExperience(ex.UserContent, ex.AssistantContent),
		"context":   "conversation",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if ex.ThreadID != "" {
		payload["metadata"] = map[string]any{"thread_id": ex.ThreadID}
	}
	if tags := buildTags(ex.UserID, c.config.UserID, ex.ChannelType, ex.IsGroupChat); len(tags) > 0 {
		payload["tags"] = tags
	}

	if err := c.post(ctx, "retain", payload, nil); err != nil {
		c.logger.Warn("retain failed", "error", err)
		return false
	}
	return true
}

// Recall searches episodic memory and formats matches as recollection.
func (c *Client) Recall(ctx context.Context, query string) string {
	var resp struct {
		Results []struct {
			Text string `json:"text"`
		} `json:"results"`
	}
	err := c.post(ctx, "recall", map[string]any{"query": query}, &resp)
	if err != nil {
		return fmt.Sprintf("Hindsight recall failed: %v", err)
	}

	var texts []string
	for _, r := range resp.Results {
		if t := strings.TrimSpace(r.Text); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return "I don't have any memories that match that."
	}
	return "From my experience with the user:\n\n" + strings.Join(texts, "\n\n")
}

// Reflect asks Hindsight for a deeper synthesis across memories:
// patterns, relationships, self-reflection.
func (c *Client) Reflect(ctx context.Context, query string) string {
	var resp struct {
		Text string `json:"text"`
	}
	err := c.post(ctx, "reflect", map[string]any{"query": query}, &resp)
	if err != nil {
		return fmt.Sprintf("Hindsight reflect failed: %v", err)
	}
	if text := strings.TrimSpace(resp.Text); text != "" {
		return text
	}
	return "I reflected but have nothing specific to share."
}

func (c *Client) post(ctx context.Context, op string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/v1/banks/%s/%s", strings.TrimSuffix(c.config.BaseURL, "/"), c.config.BankID, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hindsight returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// formatLivedExperience renders an exchange as first-person narrative
// rather than a transcript.
func formatLivedExperience(userContent, assistantContent string) string {
	userContent = strings.TrimSpace(userContent)
	assistantContent = strings.TrimSpace(assistantContent)

	if assistantContent != "" {
		return fmt.Sprintf(
			"The user and I were in conversation. They said to me: %q I responded from our shared context: %q",
			userContent, assistantContent)
	}
	return fmt.Sprintf("The user reached out to me. They said: %q", userContent)
}

// buildTags assembles identity tags so memories stay linked across
// platforms: user:{id}, channel:{platform}, and group for group chats.
func buildTags(userID, fallbackUserID, channelType string, isGroup bool) []string {
	var tags []string

	id := strings.TrimSpace(userID)
	if id == "" {
		id = strings.TrimSpace(fallbackUserID)
	}
	if id != "" {
		if !strings.Contains(id, ":") {
			id = "user:" + id
		}
		tags = append(tags, id)
	}
	if channelType != "" {
		tags = append(tags, "channel:"+strings.ToLower(channelType))
	}
	if isGroup {
		tags = append(tags, "group")
	}
	return tags
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
