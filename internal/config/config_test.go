package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "hookwise", cfg.Name)
	assert.Equal(t, 3, cfg.Patterns.TopNMinimal)
	assert.Greater(t, cfg.Patterns.LearnedWeight, cfg.Patterns.DynamicWeight)
	assert.Greater(t, cfg.Patterns.DynamicWeight, cfg.Patterns.MinimalWeight)

	// Framework content class must be a strict passthrough
	fw := cfg.Compression.Classes["framework"]
	assert.Equal(t, 0.0, fw.TargetRatio)
	assert.Equal(t, 1.0, fw.QualityFloor)

	// All five pressure levels present
	for _, level := range []string{"minimal", "efficient", "compressed", "critical", "emergency"} {
		_, ok := cfg.Compression.Levels[level]
		assert.True(t, ok, "missing pressure level %s", level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Cache.L1MaxEntries, cfg.Cache.L1MaxEntries)
}

func TestLoadMalformedFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("::: not yaml {{{"), 0644))

	cfg, err := Load(path)
	assert.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultConfig().Routing.DominanceThreshold, cfg.Routing.DominanceThreshold)
}

func TestLoadSanitizesBadFields(t *testing.T) {
	raw := `
patterns:
  top_n_minimal: -5
routing:
  dominance_threshold: 7.5
  ema_alpha: -1
compression:
  classes:
    framework:
      target_ratio: 0.9
      quality_floor: 0.1
    working:
      target_ratio: 0.5
      quality_floor: 0.5
learning:
  effectiveness_threshold: 12
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Patterns.TopNMinimal, cfg.Patterns.TopNMinimal)
	assert.Equal(t, def.Routing.DominanceThreshold, cfg.Routing.DominanceThreshold)
	assert.Equal(t, def.Routing.EMAAlpha, cfg.Routing.EMAAlpha)
	assert.Equal(t, def.Learning.EffectivenessThreshold, cfg.Learning.EffectivenessThreshold)

	// Framework passthrough is enforced even when the file says otherwise
	assert.Equal(t, 0.0, cfg.Compression.Classes["framework"].TargetRatio)
	assert.Equal(t, 1.0, cfg.Compression.Classes["framework"].QualityFloor)

	// Valid custom values survive
	assert.Equal(t, 0.5, cfg.Compression.Classes["working"].TargetRatio)
}

func TestStageTimeout(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 50*time.Millisecond, cfg.StageTimeout("SessionStart"))
	assert.Equal(t, 2*time.Second, cfg.StageTimeout("Stop"))

	// Unparseable duration falls back to documented default
	cfg.Performance.NotifyTimeout = "banana"
	assert.Equal(t, 200*time.Millisecond, cfg.StageTimeout("Notify"))

	// Unknown stage still returns something usable
	assert.Greater(t, cfg.StageTimeout("NoSuchStage"), time.Duration(0))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOOKWISE_DB", "/tmp/alt.db")
	t.Setenv("HOOKWISE_DEBUG", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/alt.db", cfg.Learning.DatabasePath)
	assert.True(t, cfg.Logging.DebugMode)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".hookwise", "config.yaml")

	cfg := DefaultConfig()
	cfg.Cache.L1MaxEntries = 99
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 99, loaded.Cache.L1MaxEntries)
}
