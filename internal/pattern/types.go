// Package pattern implements the three-tier pattern corpus and matcher.
// Minimal patterns are compiled in and immutable per release; dynamic patterns
// load lazily from YAML pattern sets; learned patterns are synthesized by the
// learning engine and persist across sessions.
package pattern

import (
	"regexp"
	"time"
)

// Tier identifies which corpus a pattern belongs to.
type Tier string

const (
	TierMinimal Tier = "minimal"
	TierDynamic Tier = "dynamic"
	TierLearned Tier = "learned"
)

// Trigger is the predicate evaluated against context signals. All fields are
// optional; a trigger with no populated field never fires.
type Trigger struct {
	// Keywords matched case-insensitively against free text
	Keywords []string `yaml:"keywords"`

	// File extensions like ".py", ".go"
	Extensions []string `yaml:"extensions"`

	// Manifest file names like "pyproject.toml", "go.mod"
	Manifests []string `yaml:"manifests"`

	// Regex patterns matched against free text
	Regex []string `yaml:"regex"`

	compiled []*regexp.Regexp
}

// Pattern is one entry of the corpus.
type Pattern struct {
	ID      string  `yaml:"id"`
	Tier    Tier    `yaml:"-"`
	Trigger Trigger `yaml:"triggers"`

	// Parents lists minimal pattern IDs this dynamic pattern extends.
	// Dynamic patterns load lazily keyed by top-N minimal matches.
	Parents []string `yaml:"parents"`

	// Activations
	Modes   []string `yaml:"modes"`   // behavioral modes to enable
	Servers []string `yaml:"servers"` // capability-server hints for the router

	Confidence   float64   `yaml:"confidence"`
	ReinforcedAt time.Time `yaml:"-"`
}

// Signals are the inputs to a match: free text plus structural evidence
// assembled by the invoking stage.
type Signals struct {
	Text       string
	Extensions []string
	Manifests  []string
	Directives []string // explicit host directives, matched like keywords
}

// ScoredPattern is one match result.
type ScoredPattern struct {
	Pattern  *Pattern
	Strength float64 // raw predicate match strength in [0,1]
	Score    float64 // strength x confidence x tier weight + bias
}

// BiasFunc returns an additive score delta for a pattern, supplied by the
// learning engine. A nil BiasFunc means no bias.
type BiasFunc func(patternID string) float64

// ClampConfidence forces a confidence into [0,1]. Every ingest path runs
// through this so the invariant holds regardless of source.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// compileRegex compiles the trigger's regex list, dropping entries that fail
// to compile. Safe to call repeatedly.
func (t *Trigger) compileRegex() {
	if t.compiled != nil || len(t.Regex) == 0 {
		return
	}
	t.compiled = make([]*regexp.Regexp, 0, len(t.Regex))
	for _, expr := range t.Regex {
		re, err := regexp.Compile(expr)
		if err != nil {
			continue
		}
		t.compiled = append(t.compiled, re)
	}
}
