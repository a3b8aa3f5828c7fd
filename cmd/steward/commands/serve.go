package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/steward/pkg/steward/agent"
	"github.com/jholhewres/steward/pkg/steward/channels"
	"github.com/jholhewres/steward/pkg/steward/channels/discord"
	"github.com/jholhewres/steward/pkg/steward/channels/telegram"
	"github.com/jholhewres/steward/pkg/steward/config"
	"github.com/jholhewres/steward/pkg/steward/cronengine"
	"github.com/jholhewres/steward/pkg/steward/gateway"
	"github.com/jholhewres/steward/pkg/steward/heartbeat"
	"github.com/jholhewres/steward/pkg/steward/hindsight"
	"github.com/jholhewres/steward/pkg/steward/store"
)

// newServeCmd creates the `steward serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the agent daemon",
		Long: `Start Steward as a daemon: HTTP gateway, cron scheduler, heartbeat
loop, and any configured messaging channels.

Examples:
  steward serve
  steward serve --config ./steward.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cmd, cfg)

	activityPath := filepath.Join(cfg.DataDir, "last_active.txt")

	st, err := store.Open(cfg.DatabaseURL, cfg.Location(), logger, store.Options{})
	if err != nil {
		return err
	}
	defer st.Close()

	llm := agent.NewLLMClient(cfg.API.BaseURL, cfg.API.APIKey, cfg.Model, logger)
	hs := hindsight.New(hindsight.Config{
		Enabled: cfg.Hindsight.Enabled,
		BaseURL: cfg.Hindsight.BaseURL,
		BankID:  cfg.Hindsight.BankID,
		UserID:  cfg.Hindsight.UserID,
	}, logger)

	ag := agent.New(llm, st, hs, agent.Settings{
		RecentMessagesLimit: cfg.RecentMessagesLimit,
		ContextWindowTokens: cfg.ContextWindowTokens,
		DefaultUserID:       cfg.DefaultUserID,
		DefaultChannelType:  cfg.DefaultChannelType,
		UserDisplayName:     cfg.UserDisplayName,
		ActivityPath:        activityPath,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := cronengine.New(st, ag, logger)
	agent.RegisterBuiltinTools(ag, engine)
	if err := engine.Start(ctx); err != nil {
		logger.Error("failed to start cron scheduler", "error", err)
	}

	hb := heartbeat.New(ag, heartbeat.Config{
		Enabled:      cfg.Heartbeat.Enabled,
		Interval:     cfg.Heartbeat.Interval,
		WakeHour:     cfg.Heartbeat.WakeHour,
		SleepHour:    cfg.Heartbeat.SleepHour,
		SkipWindow:   cfg.Heartbeat.SkipWindow,
		PromptFile:   cfg.Heartbeat.PromptFile,
		ActivityPath: activityPath,
	}, logger)
	hb.Start(ctx)

	mgr := channels.NewManager(logger)
	registerChannels(mgr, cfg, logger)
	if mgr.HasChannels() {
		if err := mgr.Start(ctx); err != nil {
			logger.Error("channels failed to start", "error", err)
		}
		go dispatchLoop(ctx, mgr, ag, logger)
	}

	gw := gateway.New(ag, st, engine, mgr, cfg.Gateway, logger)
	if err := gw.Start(ctx); err != nil {
		return err
	}

	logger.Info("steward running, press Ctrl+C to stop",
		"model", cfg.Model, "timezone", cfg.Timezone)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		_ = gw.Stop(shutdownCtx)
		cancelShutdown()
		hb.Stop()
		engine.Stop()
		if mgr.HasChannels() {
			mgr.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}
	return nil
}

// registerChannels adds every channel that has credentials configured.
func registerChannels(mgr *channels.Manager, cfg *config.Config, logger *slog.Logger) {
	if cfg.Discord.Token != "" {
		dc := discord.New(discord.Config{
			Token:      cfg.Discord.Token,
			ChannelID:  cfg.Discord.ChannelID,
			SendTyping: true,
		}, logger)
		if err := mgr.Register(dc); err != nil {
			logger.Error("failed to register Discord", "error", err)
		}
	}
	if cfg.Telegram.Token != "" {
		var allowed []int64
		if cfg.Telegram.ChatID != 0 {
			allowed = []int64{cfg.Telegram.ChatID}
		}
		tg := telegram.New(telegram.Config{
			Token:        cfg.Telegram.Token,
			AllowedChats: allowed,
			SendTyping:   true,
		}, logger)
		if err := mgr.Register(tg); err != nil {
			logger.Error("failed to register Telegram", "error", err)
		}
	}
}

// typingChannel is implemented by channels that can show a typing
// indicator while the agent thinks.
type typingChannel interface {
	SendTyping(ctx context.Context, to string)
}

// dispatchLoop feeds channel messages through the agent and routes the
// replies back. Messages are processed sequentially: the agent is a
// single persona on a single thread.
func dispatchLoop(ctx context.Context, mgr *channels.Manager, ag *agent.Agent, logger *slog.Logger) {
	for msg := range mgr.Messages() {
		if ch, ok := mgr.Channel(msg.Channel); ok {
			if tc, ok := ch.(typingChannel); ok {
				tc.SendTyping(ctx, msg.ChatID)
			}
		}

		reply, err := ag.Chat(ctx, agent.ChatRequest{
			ThreadID:        "main",
			UserMessage:     msg.Content,
			UserDisplayName: msg.FromName,
			UserID:          msg.Channel + ":" + msg.From,
			ChannelType:     msg.Channel,
			IsGroupChat:     msg.IsGroup,
		})
		if err != nil {
			logger.Error("chat turn failed", "channel", msg.Channel, "error", err)
			reply = "Sorry, I ran into a problem handling that message. Please try again."
		}
		if reply == "" {
			continue
		}

		if err := mgr.Send(ctx, msg.Channel, msg.ChatID, &channels.OutgoingMessage{
			Content: reply,
			ReplyTo: msg.ID,
		}); err != nil {
			logger.Error("failed to send reply", "channel", msg.Channel, "error", err)
		}
	}
}
