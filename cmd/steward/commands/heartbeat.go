package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jholhewres/steward/pkg/steward/agent"
	"github.com/jholhewres/steward/pkg/steward/heartbeat"
	"github.com/jholhewres/steward/pkg/steward/hindsight"
	"github.com/jholhewres/steward/pkg/steward/store"
)

// newHeartbeatCmd creates the `steward heartbeat` command: a single
// heartbeat cycle for external schedulers (system cron, launchd).
func newHeartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Run a single heartbeat cycle and exit",
		Long: `Run one heartbeat cycle: wake the agent with the heartbeat prompt
unless the user chatted recently. Prints the result as JSON.

Intended for external schedulers when the in-process heartbeat loop is
disabled.`,
		RunE: runHeartbeat,
	}
}

func runHeartbeat(cmd *cobra.Command, _ []string) error {
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
	agent.RegisterBuiltinTools(ag, nil)

	hb := heartbeat.New(ag, heartbeat.Config{
		WakeHour:     cfg.Heartbeat.WakeHour,
		SleepHour:    cfg.Heartbeat.SleepHour,
		SkipWindow:   cfg.Heartbeat.SkipWindow,
		PromptFile:   cfg.Heartbeat.PromptFile,
		ActivityPath: activityPath,
	}, logger)

	result, err := hb.RunOnce(context.Background())
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
