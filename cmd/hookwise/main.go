package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hookwise/internal/config"
)

var (
	// Global flags
	verbose   bool
	workspace string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hookwise",
	Short: "hookwise - lifecycle hook engine for agent host runtimes",
	Long: `hookwise attaches to an agent host's session lifecycle and optimizes it:
pattern-based context activation, capability-server routing with precomputed
fallbacks, quality-gated compression under resource pressure, and a learning
loop that biases future decisions.

Each lifecycle stage is invoked as its own short-lived command reading a JSON
event on stdin and writing a JSON result on stdout, always within the stage's
configured timeout and never failing the host session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	ws, err := config.FindWorkspaceRoot()
	if err != nil {
		ws, _ = os.Getwd()
	}
	return ws
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace root (default: auto-detect)")

	registerHookCommands(rootCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
