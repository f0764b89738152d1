package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hookwise/internal/hook"
)

// hookCommands binds each lifecycle stage to a subcommand name the host's
// settings manifest can call.
var hookCommands = []struct {
	use   string
	stage string
	short string
}{
	{"session-start", hook.StageSessionStart, "Detect the project and propose initial activations"},
	{"pre-capability", hook.StagePreCapabilityUse, "Route the upcoming capability call"},
	{"post-capability", hook.StagePostCapabilityUse, "Feed a capability outcome back into routing"},
	{"pre-compress", hook.StagePreCompress, "Compress content under resource pressure"},
	{"notify", hook.StageNotify, "Refresh caches, patterns, and adaptations"},
	{"stop", hook.StageStop, "Flush session state and emit analytics"},
	{"subtask-stop", hook.StageSubTaskStop, "Record delegated sub-task effectiveness"},
}

func registerHookCommands(root *cobra.Command) {
	for _, hc := range hookCommands {
		stage := hc.stage
		root.AddCommand(&cobra.Command{
			Use:   hc.use,
			Short: hc.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runStage(stage)
			},
		})
	}
}

// runStage reads the stage input from stdin, runs the stage, and writes the
// output to stdout. It always returns nil: a hook that exits non-zero would
// fail the host session, which the engine is built to never do.
func runStage(stage string) error {
	input := readInput(stage)

	engine := hook.New(resolveWorkspace())
	defer engine.Close()

	out := engine.Run(stage, input)

	if logger != nil {
		logger.Debug("stage complete",
			zap.String("stage", stage),
			zap.String("status", out.Status),
			zap.Int64("elapsed_ms", out.Metrics.ElapsedMs))
	}

	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(out); err != nil {
		// Last resort: emit the minimal no-op document by hand.
		os.Stdout.WriteString(`{"status":"degraded","stage":"` + stage + `"}` + "\n")
	}
	return nil
}

// readInput parses stdin. Malformed or absent input yields a zero-value
// input rather than an error, per the degrade-not-fail contract.
func readInput(stage string) hook.StageInput {
	var input hook.StageInput
	data, err := io.ReadAll(io.LimitReader(os.Stdin, 4<<20))
	if err != nil || len(data) == 0 {
		input.Event = stage
		return input
	}
	if err := json.Unmarshal(data, &input); err != nil {
		input = hook.StageInput{Event: stage}
	}
	if input.Event == "" {
		input.Event = stage
	}
	return input
}
