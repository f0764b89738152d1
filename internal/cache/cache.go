// Package cache implements the four-tier result cache.
//
// Tiers, fastest first:
//
//	L1 hot      - small fixed entry count, least-frequently-used eviction
//	L2 session  - keyed by session id, lives as long as the session
//	L3 project  - keyed by project signature, LRU under a byte cap
//	L4 learned  - keyed by adaptation signature, low-effectiveness ages out faster
//
// The cache accelerates recomputation and is never the source of truth:
// every caller must produce a correct result from an empty cache.
package cache

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"hookwise/internal/config"
	"hookwise/internal/logging"
)

// Tier identifies one cache level.
type Tier string

const (
	TierHot     Tier = "l1"
	TierSession Tier = "l2"
	TierProject Tier = "l3"
	TierLearned Tier = "l4"
)

// tierOrder is the lookup walk, fastest first.
var tierOrder = []Tier{TierHot, TierSession, TierProject, TierLearned}

// learnedMaxAge bounds L4 residency for a fully effective entry. Entries with
// lower effectiveness age out proportionally sooner.
const learnedMaxAge = 14 * 24 * time.Hour

// Entry is one cached record. An entry lives in exactly one tier; promotion
// moves it, never copies it.
type Entry struct {
	Key           string          `json:"key"`
	Value         json.RawMessage `json:"value"`
	Tier          Tier            `json:"tier"`
	SessionID     string          `json:"session_id,omitempty"`
	Effectiveness float64         `json:"effectiveness,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	LastAccess    time.Time       `json:"last_access"`
	Frequency     int             `json:"frequency"`
}

func (e *Entry) size() int64 {
	return int64(len(e.Key) + len(e.Value))
}

// Manager owns all four tiers. Safe for concurrent use within one invocation;
// cross-invocation safety comes from atomic snapshot writes in persist.go.
type Manager struct {
	mu    sync.RWMutex
	tiers map[Tier]map[string]*Entry

	dir    string
	config config.CacheConfig
	now    func() time.Time

	hits   map[Tier]int64
	misses int64
}

// NewManager loads tier snapshots from dir. A missing or corrupt snapshot
// yields an empty tier, never an error.
func NewManager(dir string, cfg config.CacheConfig) *Manager {
	m := &Manager{
		tiers: map[Tier]map[string]*Entry{
			TierHot:     {},
			TierSession: {},
			TierProject: {},
			TierLearned: {},
		},
		dir:    dir,
		config: cfg,
		now:    time.Now,
		hits:   map[Tier]int64{},
	}
	m.loadSnapshots()
	m.sweepExpired()
	return m
}

// Get walks L1 through L4 for key. A hint skips straight to one tier.
// Hits bump access frequency; crossing the promotion threshold moves the
// entry into L1.
func (m *Manager) Get(key string, hint Tier) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	walk := tierOrder
	if hint != "" {
		walk = []Tier{hint}
	}

	for _, tier := range walk {
		entry, ok := m.tiers[tier][key]
		if !ok {
			continue
		}
		if m.expiredLocked(entry) {
			delete(m.tiers[tier], key)
			continue
		}

		entry.Frequency++
		entry.LastAccess = m.now()
		m.hits[tier]++

		if tier != TierHot && entry.Frequency >= m.config.PromotionThreshold {
			m.promoteLocked(entry)
		}
		return entry.Value, true
	}

	m.misses++
	return nil, false
}

// GetInto unmarshals a hit into out.
func (m *Manager) GetInto(key string, hint Tier, out any) bool {
	raw, ok := m.Get(key, hint)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		logging.Cache("dropping undecodable entry %s: %v", key, err)
		m.Delete(key)
		return false
	}
	return true
}

// Put stores value in tier, evicting the key from every other tier first so
// the single-residency invariant holds.
func (m *Manager) Put(key string, value any, tier Tier, opts ...PutOption) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range tierOrder {
		if t != tier {
			delete(m.tiers[t], key)
		}
	}

	entry := &Entry{
		Key:        key,
		Value:      raw,
		Tier:       tier,
		CreatedAt:  m.now(),
		LastAccess: m.now(),
	}
	for _, opt := range opts {
		opt(entry)
	}

	m.tiers[tier][key] = entry
	m.evictLocked(tier)
	return nil
}

// PutOption attaches tier-specific metadata to a stored entry.
type PutOption func(*Entry)

// WithSession binds an L2 entry to a session id.
func WithSession(id string) PutOption {
	return func(e *Entry) { e.SessionID = id }
}

// WithEffectiveness records the effectiveness backing an L4 entry.
func WithEffectiveness(eff float64) PutOption {
	return func(e *Entry) {
		if eff < 0 {
			eff = 0
		}
		if eff > 1 {
			eff = 1
		}
		e.Effectiveness = eff
	}
}

// Delete removes key from every tier.
func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tier := range tierOrder {
		delete(m.tiers[tier], key)
	}
}

// FlushSession drops all L2 entries belonging to session id and returns how
// many were removed. Called at session end.
func (m *Manager) FlushSession(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.tiers[TierSession] {
		if entry.SessionID == id {
			delete(m.tiers[TierSession], key)
			removed++
		}
	}
	if removed > 0 {
		logging.Cache("flushed %d session entries for %s", removed, id)
	}
	return removed
}

// Stats reports per-tier sizes and hit counters.
func (m *Manager) Stats() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := map[string]int64{"misses": m.misses}
	for _, tier := range tierOrder {
		out[string(tier)+"_entries"] = int64(len(m.tiers[tier]))
		out[string(tier)+"_hits"] = m.hits[tier]
	}
	return out
}

// promoteLocked moves entry into L1 and makes room there.
func (m *Manager) promoteLocked(entry *Entry) {
	delete(m.tiers[entry.Tier], entry.Key)
	from := entry.Tier
	entry.Tier = TierHot
	m.tiers[TierHot][entry.Key] = entry
	m.evictLocked(TierHot)

	logging.CacheDebug("promoted %s from %s (freq=%d)", entry.Key, from, entry.Frequency)
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditCachePromotion,
		Target:    entry.Key + " " + string(from) + "->l1",
		Success:   true,
	})
}

// evictLocked enforces the tier's eviction policy after an insert.
func (m *Manager) evictLocked(tier Tier) {
	switch tier {
	case TierHot:
		// LFU, ties broken by oldest access.
		for len(m.tiers[TierHot]) > m.config.L1MaxEntries {
			victim := m.pickLocked(TierHot, func(a, b *Entry) bool {
				if a.Frequency != b.Frequency {
					return a.Frequency < b.Frequency
				}
				return a.LastAccess.Before(b.LastAccess)
			})
			delete(m.tiers[TierHot], victim.Key)
		}

	case TierProject:
		// LRU under the byte cap.
		for m.bytesLocked(TierProject) > m.config.L3MaxBytes && len(m.tiers[TierProject]) > 0 {
			victim := m.pickLocked(TierProject, func(a, b *Entry) bool {
				return a.LastAccess.Before(b.LastAccess)
			})
			delete(m.tiers[TierProject], victim.Key)
		}

	case TierLearned:
		m.sweepLearnedLocked()
	}
}

// sweepExpired drops dead entries in every tier. Run once at load.
func (m *Manager) sweepExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tier := range tierOrder {
		for key, entry := range m.tiers[tier] {
			if m.expiredLocked(entry) {
				delete(m.tiers[tier], key)
			}
		}
	}
}

func (m *Manager) sweepLearnedLocked() {
	for key, entry := range m.tiers[TierLearned] {
		if m.expiredLocked(entry) {
			delete(m.tiers[TierLearned], key)
		}
	}
}

// expiredLocked applies the tier's age policy to a single entry.
func (m *Manager) expiredLocked(entry *Entry) bool {
	if entry.Tier != TierLearned {
		return false
	}
	age := m.now().Sub(entry.LastAccess)
	eff := entry.Effectiveness
	if eff < 0.1 {
		eff = 0.1
	}
	// Effectiveness scales the allowed age: a 0.1-effectiveness entry lives
	// a tenth as long as a fully effective one.
	return age > time.Duration(float64(learnedMaxAge)*eff)
}

// pickLocked returns the entry minimizing less over a tier. Caller holds the
// lock and guarantees the tier is non-empty.
func (m *Manager) pickLocked(tier Tier, less func(a, b *Entry) bool) *Entry {
	entries := make([]*Entry, 0, len(m.tiers[tier]))
	for _, e := range m.tiers[tier] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if less(entries[i], entries[j]) {
			return true
		}
		if less(entries[j], entries[i]) {
			return false
		}
		return entries[i].Key < entries[j].Key
	})
	return entries[0]
}

func (m *Manager) bytesLocked(tier Tier) int64 {
	var total int64
	for _, e := range m.tiers[tier] {
		total += e.size()
	}
	return total
}
