package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hookwise/internal/config"
	"hookwise/internal/hook"
)

var watchInterval time.Duration

// watchCmd runs a long-lived maintenance loop: it hot-reloads configuration
// on change and periodically runs the Notify refresh (adaptation
// consolidation, decay, cache snapshots). Useful during development; the
// per-stage commands never require it.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch config for changes and run periodic maintenance",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := resolveWorkspace()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		watcher, err := config.NewWatcher(ws, func(cfg *config.Config) {
			if logger != nil {
				logger.Info("configuration reloaded")
			}
		})
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start config watcher: %w", err)
		}
		defer watcher.Stop()

		fmt.Printf("watching %s (refresh every %s, ctrl-c to stop)\n", ws, watchInterval)

		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				engine := hook.New(ws)
				out := engine.Run(hook.StageNotify, hook.StageInput{Event: hook.StageNotify})
				engine.Close()
				if logger != nil {
					logger.Debug("maintenance pass",
						zap.String("status", out.Status),
						zap.Int("config_reloads", watcher.Reloads()))
				}
			case <-sigCh:
				fmt.Println("stopping")
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Minute, "maintenance refresh interval")
	rootCmd.AddCommand(watchCmd)
}
