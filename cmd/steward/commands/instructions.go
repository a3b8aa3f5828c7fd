package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jholhewres/steward/pkg/steward/store"
)

// newInstructionsCmd creates the `steward instructions` command, which
// loads the operator-authored system instructions from a file. The
// agent itself cannot edit this block.
func newInstructionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instructions <file>",
		Short: "Set the system instructions from a file",
		Long: `Read a file and store its contents as the agent's system
instructions. These are injected into every prompt and are read-only to
the agent.

Examples:
  steward instructions ./instructions.md
  steward instructions /dev/null   # clear instructions`,
		Args: cobra.ExactArgs(1),
		RunE: runInstructions,
	}
}

func runInstructions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cmd, cfg)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading instructions file: %w", err)
	}
	content := strings.TrimSpace(strings.TrimPrefix(string(data), "\ufeff"))

	st, err := store.Open(cfg.DatabaseURL, cfg.Location(), logger, store.Options{})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetSystemInstructions(context.Background(), content); err != nil {
		return fmt.Errorf("storing instructions: %w", err)
	}
	if content == "" {
		fmt.Println("System instructions cleared.")
	} else {
		fmt.Printf("System instructions updated (%d characters).\n", len(content))
	}
	return nil
}
