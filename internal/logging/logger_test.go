package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetLogging() {
	CloseAll()
	CloseAudit()
	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
	configMu.Lock()
	config = loggingConfig{}
	configLoaded = false
	configMu.Unlock()
	logsDir = ""
	workspace = ""
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	hw := filepath.Join(dir, ".hookwise")
	if err := os.MkdirAll(hw, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(hw, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestInitializeWithoutConfig(t *testing.T) {
	resetLogging()
	dir := t.TempDir()

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	if IsDebugMode() {
		t.Error("debug mode should default to off without config")
	}

	// No logs directory should exist in production mode
	if _, err := os.Stat(filepath.Join(dir, ".hookwise", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory should not be created when debug mode is off")
	}
}

func TestInitializeDebugMode(t *testing.T) {
	resetLogging()
	dir := t.TempDir()
	writeConfig(t, dir, "logging:\n  debug_mode: true\n  level: debug\n")

	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	if !IsDebugMode() {
		t.Fatal("debug mode should be enabled")
	}

	Pattern("match found: %s", "python-project")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, ".hookwise", "logs", date+"_pattern.log")
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("expected pattern log file: %v", err)
	}
	if !strings.Contains(string(data), "match found: python-project") {
		t.Errorf("log content missing message: %s", data)
	}
}

func TestCategoryFilter(t *testing.T) {
	resetLogging()
	dir := t.TempDir()
	writeConfig(t, dir, "logging:\n  debug_mode: true\n  categories:\n    cache: false\n    routing: true\n")

	if err := Initialize(dir); err != nil {
		t.Fatal(err)
	}

	if IsCategoryEnabled(CategoryCache) {
		t.Error("cache category should be disabled")
	}
	if !IsCategoryEnabled(CategoryRouting) {
		t.Error("routing category should be enabled")
	}
	// Unlisted categories default to enabled in debug mode
	if !IsCategoryEnabled(CategoryHook) {
		t.Error("unlisted category should default to enabled")
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	resetLogging()
	l := Get(CategoryCompress)
	// Must not panic with no backing file
	l.Debug("a")
	l.Info("b")
	l.Warn("c")
	l.Error("d")
}

func TestAuditTrail(t *testing.T) {
	resetLogging()
	dir := t.TempDir()
	writeConfig(t, dir, "logging:\n  debug_mode: true\n")

	if err := Initialize(dir); err != nil {
		t.Fatal(err)
	}

	AuditStage("SessionStart", "sess-1", true, 12*time.Millisecond, "")
	Audit(AuditEvent{EventType: AuditFallbackUsed, Stage: "PreCapabilityUse", Target: "context-server"})
	CloseAudit()

	data, err := os.ReadFile(filepath.Join(dir, ".hookwise", "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("expected audit file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(lines))
	}

	var first AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("audit line is not valid JSON: %v", err)
	}
	if first.EventType != AuditStageComplete || first.Stage != "SessionStart" {
		t.Errorf("unexpected first event: %+v", first)
	}
}

func TestTimer(t *testing.T) {
	resetLogging()
	timer := StartTimer(CategoryHook, "test-op")
	elapsed := timer.Stop()
	if elapsed < 0 {
		t.Error("elapsed should not be negative")
	}
}
