package learning

import (
	"strings"

	"hookwise/internal/pattern"
)

// patternActionPrefix marks adaptations that recommend a pattern activation.
const patternActionPrefix = "pattern:"

// PatternAction builds the record action recommending patternID.
func PatternAction(patternID string) string {
	return patternActionPrefix + patternID
}

// PatternID extracts the pattern id from a pattern-recommending action.
// ok is false for any other action kind.
func PatternID(action string) (string, bool) {
	if !strings.HasPrefix(action, patternActionPrefix) {
		return "", false
	}
	return strings.TrimPrefix(action, patternActionPrefix), true
}

// LearnedPatterns converts pattern-recommending adaptations into learned-tier
// patterns for the matcher. The adaptation's signature tokens become the
// trigger keywords, so a similar future context re-activates the pattern.
func (e *Engine) LearnedPatterns() ([]*pattern.Pattern, error) {
	adaptations, err := e.Adaptations()
	if err != nil {
		return nil, err
	}

	var out []*pattern.Pattern
	for _, a := range adaptations {
		if !strings.HasPrefix(a.Action, patternActionPrefix) {
			continue
		}

		tokens := signatureTokens(a.Signature)
		keywords := make([]string, 0, len(tokens))
		for t := range tokens {
			keywords = append(keywords, t)
		}

		out = append(out, &pattern.Pattern{
			ID:           strings.TrimPrefix(a.Action, patternActionPrefix),
			Tier:         pattern.TierLearned,
			Trigger:      pattern.Trigger{Keywords: keywords},
			Confidence:   a.Confidence,
			ReinforcedAt: a.ReinforcedAt,
		})
	}
	return out, nil
}
