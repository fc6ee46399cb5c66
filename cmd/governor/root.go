package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/SscSPs/agent_governance/internal/platform/config"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "governor",
	Short: "Approval, quota, audit and workflow governance for autonomous agents",
	Long: `governor runs the agent governance API and the operator commands around it.

Examples:
  # Apply database migrations, then serve the API
  governor migrate up
  governor serve

  # Halt every agent action for a user
  governor emergency-stop enable --user 3f1c... --reason "fraud review"

  # Expire lapsed approval requests
  governor approvals expire
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		logger = newLogger(cfg.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(emergencyStopCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(approvalsCmd)
}

// newLogger builds the JSON logger. Unknown levels fall back to info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
