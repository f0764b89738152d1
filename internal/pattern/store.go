package pattern

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"hookwise/internal/logging"

	"gopkg.in/yaml.v3"
)

// Store holds the three pattern tiers. Minimal patterns are loaded eagerly at
// construction; dynamic and learned tiers fill in lazily via EnsureLoaded,
// keyed by the top minimal matches, to bound SessionStart latency.
type Store struct {
	mu sync.RWMutex

	minimal []*Pattern
	dynamic map[string][]*Pattern // parent minimal ID -> extensions
	learned []*Pattern

	dynamicDir    string
	dynamicLoaded map[string]bool // which parent keys have been loaded
}

// patternFile is the on-disk shape of a dynamic pattern set.
type patternFile struct {
	Patterns []*Pattern `yaml:"patterns"`
}

// NewStore creates a store with the built-in minimal corpus. dynamicDir is
// the directory of dynamic pattern set YAML files; it may be empty or absent.
func NewStore(dynamicDir string) *Store {
	minimal := minimalPatterns()
	for _, p := range minimal {
		p.Trigger.compileRegex()
	}
	return &Store{
		minimal:       minimal,
		dynamic:       make(map[string][]*Pattern),
		dynamicDir:    dynamicDir,
		dynamicLoaded: make(map[string]bool),
	}
}

// Minimal returns the minimal-tier corpus.
func (s *Store) Minimal() []*Pattern {
	return s.minimal
}

// Default returns the fallback pattern for id, or the built-in generic
// pattern when id is empty or unknown. Never returns nil.
func (s *Store) Default(id string) *Pattern {
	if id == "" {
		id = DefaultPatternID
	}
	for _, p := range s.minimal {
		if p.ID == id {
			return p
		}
	}
	for _, p := range s.minimal {
		if p.ID == DefaultPatternID {
			return p
		}
	}
	return &Pattern{ID: DefaultPatternID, Tier: TierMinimal, Modes: []string{"standard"}, Confidence: 0.5}
}

// EnsureLoaded lazily loads dynamic patterns whose parents are in keys.
// Called with the top-N minimal match IDs before a full-tier match.
func (s *Store) EnsureLoaded(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if s.dynamicLoaded[key] {
			continue
		}
		s.dynamicLoaded[key] = true
		s.loadDynamicForLocked(key)
	}
}

// loadDynamicForLocked scans the dynamic dir for pattern sets extending key.
// Corrupt or unreadable files are skipped; the dynamic tier is an
// acceleration, never a correctness requirement.
func (s *Store) loadDynamicForLocked(key string) {
	if s.dynamicDir == "" {
		return
	}

	entries, err := os.ReadDir(s.dynamicDir)
	if err != nil {
		return
	}

	loaded := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}

		patterns, err := loadPatternFile(filepath.Join(s.dynamicDir, name))
		if err != nil {
			logging.Get(logging.CategoryPattern).Warn("skipping pattern set %s: %v", name, err)
			continue
		}

		for _, p := range patterns {
			if !hasParent(p, key) {
				continue
			}
			if s.containsLocked(p.ID) {
				continue
			}
			s.dynamic[key] = append(s.dynamic[key], p)
			loaded++
		}
	}

	if loaded > 0 {
		logging.PatternDebug("loaded %d dynamic patterns for key=%s", loaded, key)
	}
}

// loadPatternFile parses one dynamic pattern set file.
func loadPatternFile(path string) ([]*Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern set: %w", err)
	}

	var pf patternFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse pattern set: %w", err)
	}

	var out []*Pattern
	for _, p := range pf.Patterns {
		if p == nil || p.ID == "" {
			continue
		}
		p.Tier = TierDynamic
		p.Confidence = ClampConfidence(p.Confidence)
		if p.Confidence == 0 {
			p.Confidence = 0.6
		}
		p.Trigger.compileRegex()
		out = append(out, p)
	}
	return out, nil
}

// SetLearned replaces the learned tier. Called by the orchestrator after
// pulling learned patterns from the learning store.
func (s *Store) SetLearned(patterns []*Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.learned = s.learned[:0]
	for _, p := range patterns {
		if p == nil || p.ID == "" {
			continue
		}
		p.Tier = TierLearned
		p.Confidence = ClampConfidence(p.Confidence)
		p.Trigger.compileRegex()
		s.learned = append(s.learned, p)
	}
}

// Reinforce bumps a pattern's confidence and reinforcement time. Minimal
// patterns are immutable; reinforcement only touches dynamic/learned tiers.
func (s *Store) Reinforce(id string, delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, group := range s.dynamic {
		for _, p := range group {
			if p.ID == id {
				p.Confidence = ClampConfidence(p.Confidence + delta)
				p.ReinforcedAt = time.Now()
				return
			}
		}
	}
	for _, p := range s.learned {
		if p.ID == id {
			p.Confidence = ClampConfidence(p.Confidence + delta)
			p.ReinforcedAt = time.Now()
			return
		}
	}
}

// all returns every loaded pattern across tiers, learned first so that equal
// scores resolve toward the adaptive tiers deterministically.
func (s *Store) all() []*Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Pattern, 0, len(s.minimal)+len(s.learned)+len(s.dynamic)*2)
	out = append(out, s.learned...)

	keys := make([]string, 0, len(s.dynamic))
	for key := range s.dynamic {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out = append(out, s.dynamic[key]...)
	}

	out = append(out, s.minimal...)
	return out
}

// containsLocked reports whether any tier already holds id.
func (s *Store) containsLocked(id string) bool {
	for _, p := range s.minimal {
		if p.ID == id {
			return true
		}
	}
	for _, p := range s.learned {
		if p.ID == id {
			return true
		}
	}
	for _, group := range s.dynamic {
		for _, p := range group {
			if p.ID == id {
				return true
			}
		}
	}
	return false
}

func hasParent(p *Pattern, key string) bool {
	for _, parent := range p.Parents {
		if parent == key {
			return true
		}
	}
	return false
}

// Stats returns per-tier pattern counts.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dynCount := 0
	for _, group := range s.dynamic {
		dynCount += len(group)
	}
	return map[string]int{
		"minimal": len(s.minimal),
		"dynamic": dynCount,
		"learned": len(s.learned),
	}
}
