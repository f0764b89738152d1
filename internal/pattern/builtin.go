package pattern

// Minimal-tier corpus. These are compiled in and immutable per release: they
// must be available at SessionStart with zero I/O, and they key the lazy load
// of the dynamic and learned tiers.

// DefaultPatternID is the guaranteed fallback when nothing matches.
const DefaultPatternID = "generic-project"

func minimalPatterns() []*Pattern {
	return []*Pattern{
		{
			ID:   "python-project",
			Tier: TierMinimal,
			Trigger: Trigger{
				Keywords:   []string{"python", "pip", "venv", "pytest"},
				Extensions: []string{".py"},
				Manifests:  []string{"pyproject.toml", "setup.py", "requirements.txt"},
			},
			Modes:      []string{"python-tooling"},
			Servers:    []string{"context", "analysis"},
			Confidence: 0.9,
		},
		{
			ID:   "go-project",
			Tier: TierMinimal,
			Trigger: Trigger{
				Keywords:   []string{"golang", "goroutine", "go test"},
				Extensions: []string{".go"},
				Manifests:  []string{"go.mod"},
			},
			Modes:      []string{"go-tooling"},
			Servers:    []string{"context", "analysis"},
			Confidence: 0.9,
		},
		{
			ID:   "node-project",
			Tier: TierMinimal,
			Trigger: Trigger{
				Keywords:   []string{"npm", "node", "typescript", "javascript"},
				Extensions: []string{".js", ".ts", ".jsx", ".tsx"},
				Manifests:  []string{"package.json", "tsconfig.json"},
			},
			Modes:      []string{"node-tooling"},
			Servers:    []string{"context", "ui"},
			Confidence: 0.9,
		},
		{
			ID:   "rust-project",
			Tier: TierMinimal,
			Trigger: Trigger{
				Keywords:   []string{"rust", "cargo", "crate"},
				Extensions: []string{".rs"},
				Manifests:  []string{"Cargo.toml"},
			},
			Modes:      []string{"rust-tooling"},
			Servers:    []string{"context", "analysis"},
			Confidence: 0.9,
		},
		{
			ID:   "frontend-work",
			Tier: TierMinimal,
			Trigger: Trigger{
				Keywords:   []string{"component", "css", "responsive", "accessibility", "react", "vue"},
				Extensions: []string{".css", ".scss", ".vue", ".svelte"},
			},
			Modes:      []string{"ui-focus"},
			Servers:    []string{"ui"},
			Confidence: 0.8,
		},
		{
			ID:   "testing-work",
			Tier: TierMinimal,
			Trigger: Trigger{
				Keywords: []string{"test", "coverage", "regression", "e2e", "integration test"},
				Regex:    []string{`(?i)\b(unit|e2e|integration)[- ]?tests?\b`},
			},
			Modes:      []string{"test-focus"},
			Servers:    []string{"automation", "analysis"},
			Confidence: 0.75,
		},
		{
			ID:   "debug-work",
			Tier: TierMinimal,
			Trigger: Trigger{
				Keywords: []string{"debug", "stack trace", "panic", "segfault", "root cause", "reproduce"},
				Regex:    []string{`(?i)\b(error|exception|traceback)\b`},
			},
			Modes:      []string{"debug-focus"},
			Servers:    []string{"analysis"},
			Confidence: 0.8,
		},
		{
			ID:   "docs-work",
			Tier: TierMinimal,
			Trigger: Trigger{
				Keywords:   []string{"readme", "documentation", "changelog", "docstring"},
				Extensions: []string{".md", ".rst"},
			},
			Modes:      []string{"docs-focus"},
			Servers:    []string{"context"},
			Confidence: 0.7,
		},
		{
			ID:   DefaultPatternID,
			Tier: TierMinimal,
			// No trigger: matched only as the explicit fallback.
			Modes:      []string{"standard"},
			Servers:    []string{"context"},
			Confidence: 0.5,
		},
	}
}
