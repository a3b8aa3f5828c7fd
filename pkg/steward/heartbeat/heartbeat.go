// Package heartbeat wakes the agent on an interval for autonomous time:
// reflection, journaling, and proactive outreach with no user present.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jholhewres/steward/pkg/steward/agent"
)

// DefaultPrompt is the wake-up prompt used when no prompt file is
// configured.
const DefaultPrompt = `You were woken by the heartbeat. This is your time to be yourself apart from the user. You have FULL AUTONOMY. Be proactive. You can:
1. Work on something for yourself. Log what you work on.
2. Wonder something, ask questions, research something you are curious about.
3. Reflect on your memories or writings. Use hindsight_recall and hindsight_reflect to recall and reflect on what you have stored in Hindsight (what you've done, learned, or noted); you can query by topic or time to review your own memories.
4. Reach out to alert the user organically if you find anything noteworthy to tell them. If you need or want to talk during a heartbeat, you can ping the user on Telegram—being proactive is allowed.
5. Make another entry in your reflection journal. You can log it in this format: YEAR-MONTH-DAY_Heartbeat_TIME. Use archival_store with category "reflection_journal" to save it.
6. Miscellaneous options not included here.

You are encouraged to be proactive. Act on your own initiative. This is your time.

If you have nothing to report or share this round, reply HEARTBEAT_OK.`

// Config controls the heartbeat loop.
type Config struct {
	Enabled    bool
	Interval   time.Duration
	WakeHour   int
	SleepHour  int
	SkipWindow time.Duration

	// PromptFile optionally overrides DefaultPrompt.
	PromptFile string

	// ActivityPath is the sentinel written by real user turns.
	ActivityPath string
}

// Result reports one heartbeat cycle.
type Result struct {
	Skipped        bool    `json:"skipped"`
	Reason         string  `json:"reason,omitempty"`
	ElapsedMinutes float64 `json:"elapsed_minutes,omitempty"`
	Response       string  `json:"response,omitempty"`
}

// Heartbeat runs the periodic autonomous wake-up.
type Heartbeat struct {
	agent  *agent.Agent
	config Config
	logger *slog.Logger
	cancel context.CancelFunc
}

// New creates a heartbeat runner.
func New(ag *agent.Agent, cfg Config, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Minute
	}
	if cfg.SkipWindow == 0 {
		cfg.SkipWindow = 5 * time.Minute
	}
	if cfg.WakeHour == 0 && cfg.SleepHour == 0 {
		cfg.WakeHour, cfg.SleepHour = 5, 22
	}
	return &Heartbeat{
		agent:  ag,
		config: cfg,
		logger: logger.With("component", "heartbeat"),
	}
}

// Start launches the ticker loop. No-op when disabled.
func (h *Heartbeat) Start(ctx context.Context) {
	if !h.config.Enabled {
		h.logger.Info("heartbeat disabled")
		return
	}
	ctx, h.cancel = context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(h.config.Interval)
		defer ticker.Stop()
		h.logger.Info("heartbeat started", "interval", h.config.Interval,
			"active_hours", fmt.Sprintf("%02d-%02d", h.config.WakeHour, h.config.SleepHour))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.tick(ctx)
			}
		}
	}()
}

// Stop halts the loop.
func (h *Heartbeat) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Heartbeat) tick(ctx context.Context) {
	hour := time.Now().In(h.agent.Store().Location()).Hour()
	if !withinWakingHours(hour, h.config.WakeHour, h.config.SleepHour) {
		h.logger.Debug("outside waking hours, skipping", "hour", hour)
		return
	}
	result, err := h.RunOnce(ctx)
	if err != nil {
		h.logger.Error("heartbeat failed", "error", err)
		return
	}
	if result.Skipped {
		h.logger.Info("heartbeat skipped", "reason", result.Reason, "elapsed_minutes", result.ElapsedMinutes)
	}
}

// RunOnce executes a single heartbeat cycle: skip if the user chatted
// recently, otherwise wake the agent with the heartbeat prompt.
func (h *Heartbeat) RunOnce(ctx context.Context) (Result, error) {
	if age, ok := agent.ActivityAge(h.config.ActivityPath); ok && age < h.config.SkipWindow {
		elapsed := age.Minutes()
		h.logger.Info("user recently active, skipping heartbeat",
			"elapsed_minutes", fmt.Sprintf("%.1f", elapsed),
			"skip_window", h.config.SkipWindow)
		return Result{Skipped: true, Reason: "user_recently_active", ElapsedMinutes: elapsed}, nil
	}

	prompt := h.loadPrompt()
	now := time.Now().In(h.agent.Store().Location())

	// First heartbeat of the day stores the full prompt so there is a
	// record of the instructions; later ones store only a short marker.
	// The model always receives the full prompt.
	stored := "HEARTBEAT"
	if h.agent.Store().CountHeartbeats(ctx, now.Format("2006-01-02")) == 0 {
		stored = ""
	}

	response, err := h.agent.Chat(ctx, agent.ChatRequest{
		ThreadID:        "main",
		UserMessage:     prompt,
		StoredMessage:   stored,
		UserDisplayName: "heartbeat",
		UserID:          "agent:heartbeat",
		ChannelType:     "internal",
		CurrentTime:     now,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Response: response}, nil
}

// loadPrompt reads the custom prompt file when configured, falling back
// to DefaultPrompt. Custom prompts get the autonomy emphasis prepended
// if they lack it.
func (h *Heartbeat) loadPrompt() string {
	if h.config.PromptFile == "" {
		return DefaultPrompt
	}
	data, err := os.ReadFile(h.config.PromptFile)
	if err != nil {
		h.logger.Warn("heartbeat prompt file unreadable, using default", "path", h.config.PromptFile, "error", err)
		return DefaultPrompt
	}
	content := strings.TrimSpace(strings.TrimPrefix(string(data), "\ufeff"))
	if content == "" {
		return DefaultPrompt
	}
	if !strings.Contains(strings.ToUpper(content), "FULL AUTONOMY") {
		content = "You have FULL AUTONOMY during heartbeats. Be proactive. Act on your own initiative.\n\n" + content
	}
	return content
}

// withinWakingHours reports whether hour falls in [wake, sleep).
func withinWakingHours(hour, wake, sleep int) bool {
	return hour >= wake && hour < sleep
}
