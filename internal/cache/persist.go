package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"hookwise/internal/logging"
)

// tierSnapshot is the on-disk form of one tier.
type tierSnapshot struct {
	Tier    Tier     `json:"tier"`
	Entries []*Entry `json:"entries"`
}

func (m *Manager) snapshotPath(tier Tier) string {
	return filepath.Join(m.dir, string(tier)+".json")
}

// loadSnapshots restores every tier from disk. A missing, unreadable, or
// corrupt snapshot leaves that tier empty; the engines recompute from cold.
func (m *Manager) loadSnapshots() {
	if m.dir == "" {
		return
	}

	for _, tier := range tierOrder {
		data, err := os.ReadFile(m.snapshotPath(tier))
		if err != nil {
			continue
		}

		var snap tierSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			logging.Cache("discarding corrupt %s snapshot: %v", tier, err)
			continue
		}

		for _, entry := range snap.Entries {
			if entry == nil || entry.Key == "" {
				continue
			}
			entry.Tier = tier
			m.tiers[tier][entry.Key] = entry
		}
	}
}

// Save writes every tier snapshot via temp file + rename so a concurrent
// reader never observes a partial write.
func (m *Manager) Save() error {
	if m.dir == "" {
		return nil
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	m.mu.RLock()
	snaps := make([]tierSnapshot, 0, len(tierOrder))
	for _, tier := range tierOrder {
		snap := tierSnapshot{Tier: tier, Entries: make([]*Entry, 0, len(m.tiers[tier]))}
		for _, entry := range m.tiers[tier] {
			// Get mutates Frequency and LastAccess in place; copy before
			// releasing the lock so Marshal sees a consistent entry.
			cp := *entry
			snap.Entries = append(snap.Entries, &cp)
		}
		snaps = append(snaps, snap)
	}
	m.mu.RUnlock()

	for _, snap := range snaps {
		if err := m.writeSnapshot(snap); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) writeSnapshot(snap tierSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", snap.Tier, err)
	}

	path := m.snapshotPath(snap.Tier)
	tmp, err := os.CreateTemp(m.dir, string(snap.Tier)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s snapshot: %w", snap.Tier, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s snapshot: %w", snap.Tier, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish %s snapshot: %w", snap.Tier, err)
	}
	return nil
}
