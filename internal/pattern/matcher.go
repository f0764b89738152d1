package pattern

import (
	"sort"
	"strings"

	"hookwise/internal/logging"
)

// MatcherConfig holds the tier weights and lazy-load fan-out for a matcher.
type MatcherConfig struct {
	MinimalWeight float64
	DynamicWeight float64
	LearnedWeight float64
	TopNMinimal   int
	DefaultID     string
}

// DefaultMatcherConfig mirrors the config package defaults so the matcher is
// usable standalone in tests.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		MinimalWeight: 1.0,
		DynamicWeight: 1.2,
		LearnedWeight: 1.5,
		TopNMinimal:   3,
		DefaultID:     DefaultPatternID,
	}
}

// Matcher scores patterns against context signals.
type Matcher struct {
	store  *Store
	config MatcherConfig
	bias   BiasFunc
}

// NewMatcher creates a matcher over the given store.
func NewMatcher(store *Store, config MatcherConfig, bias BiasFunc) *Matcher {
	if config.TopNMinimal <= 0 {
		config.TopNMinimal = 3
	}
	return &Matcher{store: store, config: config, bias: bias}
}

// Match evaluates every loaded pattern against the signals and returns them
// ordered by score descending. The result is never empty: when nothing
// matches, the default pattern is returned with a floor score.
//
// Match is read-only over the store, so two calls with identical signals and
// no intervening learning update return identical ordered results.
func (m *Matcher) Match(signals Signals) []ScoredPattern {
	timer := logging.StartTimer(logging.CategoryPattern, "Match")
	defer timer.Stop()

	// Phase 1: minimal tier only, to key the lazy load.
	minimalScored := m.scoreTier(m.store.Minimal(), signals)
	keys := topIDs(minimalScored, m.config.TopNMinimal)
	m.store.EnsureLoaded(keys)

	// Phase 2: full corpus.
	scored := m.scoreTier(m.store.all(), signals)

	if len(scored) == 0 {
		def := m.store.Default(m.config.DefaultID)
		logging.PatternDebug("no match, falling back to %s", def.ID)
		return []ScoredPattern{{
			Pattern:  def,
			Strength: 0,
			Score:    def.Confidence * m.tierWeight(def.Tier),
		}}
	}

	logging.PatternDebug("matched %d patterns, top=%s (%.3f)", len(scored), scored[0].Pattern.ID, scored[0].Score)
	return scored
}

// scoreTier scores a pattern slice, dropping zero-strength entries, and sorts
// the result deterministically.
func (m *Matcher) scoreTier(patterns []*Pattern, signals Signals) []ScoredPattern {
	scored := make([]ScoredPattern, 0, len(patterns))

	for _, p := range patterns {
		strength := matchStrength(p, signals)
		if strength <= 0 {
			continue
		}

		score := strength * ClampConfidence(p.Confidence) * m.tierWeight(p.Tier)
		if m.bias != nil {
			score += m.bias(p.ID)
		}

		scored = append(scored, ScoredPattern{Pattern: p, Strength: strength, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		// Ties: higher confidence, then most recent reinforcement, then ID
		// for a stable total order.
		if a.Pattern.Confidence != b.Pattern.Confidence {
			return a.Pattern.Confidence > b.Pattern.Confidence
		}
		if !a.Pattern.ReinforcedAt.Equal(b.Pattern.ReinforcedAt) {
			return a.Pattern.ReinforcedAt.After(b.Pattern.ReinforcedAt)
		}
		return a.Pattern.ID < b.Pattern.ID
	})

	return scored
}

func (m *Matcher) tierWeight(tier Tier) float64 {
	switch tier {
	case TierLearned:
		return m.config.LearnedWeight
	case TierDynamic:
		return m.config.DynamicWeight
	default:
		return m.config.MinimalWeight
	}
}

// matchStrength computes the raw predicate strength in [0,1]. Each trigger
// dimension contributes independently; manifests are the strongest structural
// evidence, directives are explicit and weighted accordingly.
func matchStrength(p *Pattern, signals Signals) float64 {
	trig := &p.Trigger
	hasPredicate := len(trig.Keywords) > 0 || len(trig.Extensions) > 0 ||
		len(trig.Manifests) > 0 || len(trig.Regex) > 0
	if !hasPredicate {
		return 0
	}

	text := strings.ToLower(signals.Text)
	var strength float64

	// Manifest presence: strongest signal.
	for _, manifest := range trig.Manifests {
		for _, have := range signals.Manifests {
			if strings.EqualFold(manifest, have) {
				strength += 0.5
			}
		}
	}

	// Extensions.
	for _, ext := range trig.Extensions {
		for _, have := range signals.Extensions {
			if strings.EqualFold(ext, have) {
				strength += 0.2
			}
		}
	}

	// Keyword hits against free text, scaled by hit fraction.
	if len(trig.Keywords) > 0 && text != "" {
		hits := 0
		for _, kw := range trig.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				hits++
			}
		}
		strength += 0.4 * float64(hits) / float64(len(trig.Keywords))
	}

	// Explicit directives match keywords exactly.
	for _, directive := range signals.Directives {
		for _, kw := range trig.Keywords {
			if strings.EqualFold(directive, kw) {
				strength += 0.3
			}
		}
	}

	// Regex triggers.
	if len(trig.Regex) > 0 && signals.Text != "" {
		trig.compileRegex()
		for _, re := range trig.compiled {
			if re.MatchString(signals.Text) {
				strength += 0.25
			}
		}
	}

	if strength > 1 {
		strength = 1
	}
	return strength
}

// topIDs returns the IDs of the top n scored patterns.
func topIDs(scored []ScoredPattern, n int) []string {
	if n > len(scored) {
		n = len(scored)
	}
	ids := make([]string, 0, n)
	for _, sp := range scored[:n] {
		ids = append(ids, sp.Pattern.ID)
	}
	return ids
}
