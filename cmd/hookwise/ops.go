package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"hookwise/internal/cache"
	"hookwise/internal/config"
	"hookwise/internal/hook"
	"hookwise/internal/learning"
	"hookwise/internal/pattern"
	"hookwise/internal/session"
)

// manifestCmd emits the static settings manifest binding each stage to its
// command and timeout, ready to paste into the host's hook configuration.
var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Emit the host settings manifest (stage -> command + timeout)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := resolveWorkspace()
		cfg, _ := config.LoadWorkspace(ws)

		exe, err := os.Executable()
		if err != nil {
			exe = "hookwise"
		}

		type binding struct {
			Command   string `json:"command"`
			TimeoutMs int64  `json:"timeout_ms"`
		}
		manifest := map[string]binding{}
		for _, hc := range hookCommands {
			manifest[hc.stage] = binding{
				Command:   fmt.Sprintf("%s %s --workspace %s", exe, hc.use, ws),
				TimeoutMs: cfg.StageTimeout(hc.stage).Milliseconds(),
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	},
}

// statusCmd summarizes the engine's persisted state.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session, cache, pattern, and learning state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := resolveWorkspace()
		cfg, _ := config.LoadWorkspace(ws)
		state := config.StateDir(ws)

		fmt.Printf("workspace:  %s\n", ws)
		fmt.Printf("state dir:  %s\n", state)

		store := pattern.NewStore(filepath.Join(state, cfg.Patterns.DynamicDir))
		for tier, n := range store.Stats() {
			fmt.Printf("patterns.%s: %d\n", tier, n)
		}

		mgr := cache.NewManager(filepath.Join(state, cfg.Cache.Dir), cfg.Cache)
		for k, v := range mgr.Stats() {
			fmt.Printf("cache.%s: %d\n", k, v)
		}

		dbPath := cfg.Learning.DatabasePath
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(state, dbPath)
		}
		if eng, err := learning.NewEngine(dbPath, cfg.Learning); err == nil {
			defer eng.Close()
			for k, v := range eng.Stats() {
				fmt.Printf("learning.%s: %d\n", k, v)
			}
		} else {
			fmt.Printf("learning: unavailable (%v)\n", err)
		}

		sessions, _ := os.ReadDir(filepath.Join(state, "session"))
		fmt.Printf("sessions: %d\n", len(sessions))
		return nil
	},
}

// doctorCmd validates the installation: config parses, the state dir is
// writable, and each subsystem can initialize.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate configuration and state-directory health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := resolveWorkspace()
		state := config.StateDir(ws)
		healthy := true

		report := func(ok bool, what string, detail string) {
			mark := "ok"
			if !ok {
				mark = "FAIL"
				healthy = false
			}
			fmt.Printf("[%-4s] %-24s %s\n", mark, what, detail)
		}

		cfg, err := config.LoadWorkspace(ws)
		report(err == nil, "config", configDetail(ws, err))

		err = os.MkdirAll(state, 0755)
		report(err == nil, "state dir", state)

		probe := filepath.Join(state, ".doctor-probe")
		err = os.WriteFile(probe, []byte("ok"), 0644)
		os.Remove(probe)
		report(err == nil, "state dir writable", "")

		dbPath := cfg.Learning.DatabasePath
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(state, dbPath)
		}
		if eng, lerr := learning.NewEngine(dbPath, cfg.Learning); lerr == nil {
			eng.Close()
			report(true, "learning db", dbPath)
		} else {
			report(false, "learning db", lerr.Error())
		}

		sig := session.DetectSignature(ws)
		report(sig != "", "project signature", sig)

		for _, stage := range hook.Stages {
			fmt.Printf("       %-24s %s\n", stage, cfg.StageTimeout(stage))
		}

		if !healthy {
			return fmt.Errorf("doctor found problems")
		}
		fmt.Println("all checks passed")
		return nil
	},
}

func configDetail(ws string, err error) string {
	path := filepath.Join(config.StateDir(ws), "config.yaml")
	if err != nil {
		return fmt.Sprintf("%s (%v, using defaults)", path, err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return path + " (absent, using defaults)"
	}
	return path
}
