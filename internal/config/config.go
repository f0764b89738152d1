// Package config loads the declarative hookwise configuration.
// Everything lives under .hookwise/config.yaml in the project workspace;
// missing files and malformed fields fall back to documented defaults so a
// broken config can never fail a hook stage.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all hookwise configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Performance targets and stage timeouts
	Performance PerformanceConfig `yaml:"performance"`

	// Pattern store configuration
	Patterns PatternsConfig `yaml:"patterns"`

	// Compression profiles
	Compression CompressionConfig `yaml:"compression"`

	// Capability-server routing
	Routing RoutingConfig `yaml:"routing"`

	// Multi-tier cache
	Cache CacheConfig `yaml:"cache"`

	// Learning engine
	Learning LearningConfig `yaml:"learning"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PerformanceConfig holds stage timeout budgets. Values are duration strings
// ("50ms", "2s"); unparseable values fall back to the per-stage default.
type PerformanceConfig struct {
	SessionStartTimeout      string `yaml:"session_start_timeout"`
	PreCapabilityUseTimeout  string `yaml:"pre_capability_use_timeout"`
	PostCapabilityUseTimeout string `yaml:"post_capability_use_timeout"`
	PreCompressTimeout       string `yaml:"pre_compress_timeout"`
	NotifyTimeout            string `yaml:"notify_timeout"`
	StopTimeout              string `yaml:"stop_timeout"`
	SubTaskStopTimeout       string `yaml:"sub_task_stop_timeout"`
}

// PatternsConfig configures the three-tier pattern store.
type PatternsConfig struct {
	// Directory of dynamic pattern set YAML files, relative to .hookwise/
	DynamicDir string `yaml:"dynamic_dir"`

	// How many top minimal matches key the lazy dynamic/learned load
	TopNMinimal int `yaml:"top_n_minimal"`

	// Tier priority weights used by the match scorer
	MinimalWeight float64 `yaml:"minimal_weight"`
	DynamicWeight float64 `yaml:"dynamic_weight"`
	LearnedWeight float64 `yaml:"learned_weight"`

	// Fallback pattern when nothing matches (never empty activation)
	DefaultPattern string `yaml:"default_pattern"`
}

// ClassProfile is the compression profile for one content class.
type ClassProfile struct {
	TargetRatio  float64 `yaml:"target_ratio"`  // fraction of input to remove (0 = passthrough)
	QualityFloor float64 `yaml:"quality_floor"` // minimum acceptable quality score
}

// LevelProfile adjusts targets per resource-pressure level.
type LevelProfile struct {
	RatioScale float64 `yaml:"ratio_scale"` // multiplies the class target ratio
	FloorScale float64 `yaml:"floor_scale"` // multiplies the class quality floor
}

// CompressionConfig configures the compression engine.
type CompressionConfig struct {
	Classes map[string]ClassProfile `yaml:"classes"`
	Levels  map[string]LevelProfile `yaml:"levels"`
}

// ServerConfig declares one capability server for the router.
type ServerConfig struct {
	Name          string   `yaml:"name"`
	Capabilities  []string `yaml:"capabilities"`
	BaseLatencyMs int      `yaml:"base_latency_ms"`
	Enabled       bool     `yaml:"enabled"`
}

// RoutingConfig configures capability-server selection.
type RoutingConfig struct {
	Servers            []ServerConfig `yaml:"servers"`
	DominanceThreshold float64        `yaml:"dominance_threshold"` // single-server mode cutoff
	EMAAlpha           float64        `yaml:"ema_alpha"`           // latency/load smoothing
	MaxSecondaries     int            `yaml:"max_secondaries"`
	MaxFallbacks       int            `yaml:"max_fallbacks"`
}

// CacheConfig configures the multi-tier cache.
type CacheConfig struct {
	Dir                string `yaml:"dir"` // relative to .hookwise/
	L1MaxEntries       int    `yaml:"l1_max_entries"`
	L3MaxBytes         int64  `yaml:"l3_max_bytes"`
	PromotionThreshold int    `yaml:"promotion_threshold"` // hits before promotion
}

// LearningConfig configures the learning engine.
type LearningConfig struct {
	DatabasePath           string  `yaml:"database_path"` // relative to .hookwise/
	MinSamples             int     `yaml:"min_samples"`
	EffectivenessThreshold float64 `yaml:"effectiveness_threshold"`
	CreationConfidence     float64 `yaml:"creation_confidence"`
	HalfLifeDays           float64 `yaml:"half_life_days"`
	SimilarityThreshold    float64 `yaml:"similarity_threshold"`
	PruneFloor             float64 `yaml:"prune_floor"`
	MaxBiasDelta           float64 `yaml:"max_bias_delta"`
}

// LoggingConfig configures logging. Mirrored by internal/logging to avoid a
// circular import; keep the yaml tags in sync.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "hookwise",
		Version: "1.0.0",

		Performance: PerformanceConfig{
			SessionStartTimeout:      "50ms",
			PreCapabilityUseTimeout:  "50ms",
			PostCapabilityUseTimeout: "100ms",
			PreCompressTimeout:       "500ms",
			NotifyTimeout:            "200ms",
			StopTimeout:              "2s",
			SubTaskStopTimeout:       "500ms",
		},

		Patterns: PatternsConfig{
			DynamicDir:     "patterns",
			TopNMinimal:    3,
			MinimalWeight:  1.0,
			DynamicWeight:  1.2,
			LearnedWeight:  1.5,
			DefaultPattern: "generic-project",
		},

		Compression: CompressionConfig{
			Classes: map[string]ClassProfile{
				"framework": {TargetRatio: 0.0, QualityFloor: 1.0},
				"session":   {TargetRatio: 0.40, QualityFloor: 0.70},
				"user":      {TargetRatio: 0.15, QualityFloor: 0.90},
				"working":   {TargetRatio: 0.60, QualityFloor: 0.55},
			},
			Levels: map[string]LevelProfile{
				"minimal":    {RatioScale: 0.25, FloorScale: 1.00},
				"efficient":  {RatioScale: 0.50, FloorScale: 1.00},
				"compressed": {RatioScale: 0.75, FloorScale: 0.95},
				"critical":   {RatioScale: 1.00, FloorScale: 0.90},
				"emergency":  {RatioScale: 1.15, FloorScale: 0.85},
			},
		},

		Routing: RoutingConfig{
			Servers: []ServerConfig{
				{Name: "context", Capabilities: []string{"docs", "lookup", "library"}, BaseLatencyMs: 120, Enabled: true},
				{Name: "analysis", Capabilities: []string{"analyze", "reason", "debug"}, BaseLatencyMs: 250, Enabled: true},
				{Name: "ui", Capabilities: []string{"component", "design", "frontend"}, BaseLatencyMs: 180, Enabled: true},
				{Name: "automation", Capabilities: []string{"browser", "test", "e2e"}, BaseLatencyMs: 400, Enabled: true},
			},
			DominanceThreshold: 0.90,
			EMAAlpha:           0.30,
			MaxSecondaries:     2,
			MaxFallbacks:       3,
		},

		Cache: CacheConfig{
			Dir:                "cache",
			L1MaxEntries:       64,
			L3MaxBytes:         4 << 20,
			PromotionThreshold: 3,
		},

		Learning: LearningConfig{
			DatabasePath:           "learning.db",
			MinSamples:             5,
			EffectivenessThreshold: 0.70,
			CreationConfidence:     0.60,
			HalfLifeDays:           7.0,
			SimilarityThreshold:    0.50,
			PruneFloor:             0.10,
			MaxBiasDelta:           0.25,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults for a
// missing file and sanitizing out-of-range fields. A parse error returns the
// defaults together with the error so callers can log and continue.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		// Malformed config must not crash a stage: defaults win.
		fresh := DefaultConfig()
		fresh.applyEnvOverrides()
		return fresh, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.sanitize()
	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadWorkspace loads config for a workspace root (.hookwise/config.yaml),
// honoring the HOOKWISE_CONFIG override.
func LoadWorkspace(workspace string) (*Config, error) {
	path := os.Getenv("HOOKWISE_CONFIG")
	if path == "" {
		path = filepath.Join(workspace, ".hookwise", "config.yaml")
	}
	return Load(path)
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// sanitize clamps out-of-range values back to defaults. Individual bad fields
// must not invalidate the rest of the document.
func (c *Config) sanitize() {
	def := DefaultConfig()

	if c.Patterns.TopNMinimal <= 0 {
		c.Patterns.TopNMinimal = def.Patterns.TopNMinimal
	}
	if c.Patterns.MinimalWeight <= 0 {
		c.Patterns.MinimalWeight = def.Patterns.MinimalWeight
	}
	if c.Patterns.DynamicWeight <= 0 {
		c.Patterns.DynamicWeight = def.Patterns.DynamicWeight
	}
	if c.Patterns.LearnedWeight <= 0 {
		c.Patterns.LearnedWeight = def.Patterns.LearnedWeight
	}
	if c.Patterns.DefaultPattern == "" {
		c.Patterns.DefaultPattern = def.Patterns.DefaultPattern
	}

	if c.Compression.Classes == nil {
		c.Compression.Classes = def.Compression.Classes
	}
	if c.Compression.Levels == nil {
		c.Compression.Levels = def.Compression.Levels
	}
	// Framework content is never compressed, whatever the file says.
	fw := c.Compression.Classes["framework"]
	fw.TargetRatio = 0.0
	fw.QualityFloor = 1.0
	c.Compression.Classes["framework"] = fw
	for class, p := range c.Compression.Classes {
		if p.TargetRatio < 0 || p.TargetRatio > 1 {
			p.TargetRatio = def.Compression.Classes[class].TargetRatio
		}
		if p.QualityFloor < 0 || p.QualityFloor > 1 {
			p.QualityFloor = def.Compression.Classes[class].QualityFloor
		}
		c.Compression.Classes[class] = p
	}

	if c.Routing.DominanceThreshold <= 0 || c.Routing.DominanceThreshold > 1 {
		c.Routing.DominanceThreshold = def.Routing.DominanceThreshold
	}
	if c.Routing.EMAAlpha <= 0 || c.Routing.EMAAlpha > 1 {
		c.Routing.EMAAlpha = def.Routing.EMAAlpha
	}
	if c.Routing.MaxSecondaries < 0 {
		c.Routing.MaxSecondaries = def.Routing.MaxSecondaries
	}
	if c.Routing.MaxFallbacks <= 0 {
		c.Routing.MaxFallbacks = def.Routing.MaxFallbacks
	}
	if len(c.Routing.Servers) == 0 {
		c.Routing.Servers = def.Routing.Servers
	}

	if c.Cache.L1MaxEntries <= 0 {
		c.Cache.L1MaxEntries = def.Cache.L1MaxEntries
	}
	if c.Cache.L3MaxBytes <= 0 {
		c.Cache.L3MaxBytes = def.Cache.L3MaxBytes
	}
	if c.Cache.PromotionThreshold <= 0 {
		c.Cache.PromotionThreshold = def.Cache.PromotionThreshold
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = def.Cache.Dir
	}

	if c.Learning.MinSamples <= 0 {
		c.Learning.MinSamples = def.Learning.MinSamples
	}
	if c.Learning.EffectivenessThreshold <= 0 || c.Learning.EffectivenessThreshold > 1 {
		c.Learning.EffectivenessThreshold = def.Learning.EffectivenessThreshold
	}
	if c.Learning.CreationConfidence <= 0 || c.Learning.CreationConfidence > 1 {
		c.Learning.CreationConfidence = def.Learning.CreationConfidence
	}
	if c.Learning.HalfLifeDays <= 0 {
		c.Learning.HalfLifeDays = def.Learning.HalfLifeDays
	}
	if c.Learning.SimilarityThreshold <= 0 || c.Learning.SimilarityThreshold > 1 {
		c.Learning.SimilarityThreshold = def.Learning.SimilarityThreshold
	}
	if c.Learning.PruneFloor < 0 || c.Learning.PruneFloor >= 1 {
		c.Learning.PruneFloor = def.Learning.PruneFloor
	}
	if c.Learning.MaxBiasDelta <= 0 || c.Learning.MaxBiasDelta > 1 {
		c.Learning.MaxBiasDelta = def.Learning.MaxBiasDelta
	}
	if c.Learning.DatabasePath == "" {
		c.Learning.DatabasePath = def.Learning.DatabasePath
	}
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("HOOKWISE_DB"); path != "" {
		c.Learning.DatabasePath = path
	}
	if v := os.Getenv("HOOKWISE_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

// StageTimeout returns the timeout budget for a lifecycle stage.
func (c *Config) StageTimeout(stage string) time.Duration {
	var raw string
	var fallback time.Duration

	switch stage {
	case "SessionStart":
		raw, fallback = c.Performance.SessionStartTimeout, 50*time.Millisecond
	case "PreCapabilityUse":
		raw, fallback = c.Performance.PreCapabilityUseTimeout, 50*time.Millisecond
	case "PostCapabilityUse":
		raw, fallback = c.Performance.PostCapabilityUseTimeout, 100*time.Millisecond
	case "PreCompress":
		raw, fallback = c.Performance.PreCompressTimeout, 500*time.Millisecond
	case "Notify":
		raw, fallback = c.Performance.NotifyTimeout, 200*time.Millisecond
	case "Stop":
		raw, fallback = c.Performance.StopTimeout, 2*time.Second
	case "SubTaskStop":
		raw, fallback = c.Performance.SubTaskStopTimeout, 500*time.Millisecond
	default:
		return 100 * time.Millisecond
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// StateDir returns the .hookwise state directory for a workspace.
func StateDir(workspace string) string {
	return filepath.Join(workspace, ".hookwise")
}

// FindWorkspaceRoot walks up from the current directory looking for an
// existing .hookwise directory, then for a .git directory. Falls back to the
// current directory so a fresh project still works.
func FindWorkspaceRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for _, marker := range []string{".hookwise", ".git"} {
		dir := cwd
		for {
			if fi, err := os.Stat(filepath.Join(dir, marker)); err == nil && fi.IsDir() {
				return dir, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	return cwd, nil
}
