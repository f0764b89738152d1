// Package session models one host session and its persisted state.
//
// Lifecycle stages run as independent processes, so the session is
// reconstructed from disk at every stage and written back atomically. A
// missing or corrupt session file yields a fresh session, never an error.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"hookwise/internal/logging"
)

// manifestFiles are the project manifests that anchor a signature, checked
// in this order.
var manifestFiles = []string{
	"go.mod",
	"package.json",
	"pyproject.toml",
	"setup.py",
	"requirements.txt",
	"Cargo.toml",
	"pom.xml",
	"build.gradle",
	"Gemfile",
	"composer.json",
	"Makefile",
}

// Metrics accumulates per-session counters across stages.
type Metrics struct {
	Stages          int     `json:"stages"`
	CapabilityCalls int     `json:"capability_calls"`
	CacheHits       int     `json:"cache_hits"`
	CompressSavings float64 `json:"compress_savings"` // cumulative ratio sum
	Compressions    int     `json:"compressions"`
	Degraded        int     `json:"degraded"` // stages that fell back to no-op
}

// Session is the state shared by all stages of one host session.
type Session struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	ProjectSignature string    `json:"project_signature"`
	ActivePatterns   []string  `json:"active_patterns,omitempty"`
	Metrics          Metrics   `json:"metrics"`
}

// New creates a session, generating an id when the host did not supply one.
func New(id string) *Session {
	if id == "" {
		id = uuid.New().String()
	}
	return &Session{ID: id, StartedAt: time.Now().UTC()}
}

// DetectSignature derives the project signature from manifests and dominant
// source extensions under root. The signature is stable across stages for
// the same tree, so it keys the L3 cache and learning records.
func DetectSignature(root string) string {
	var parts []string
	for _, m := range manifestFiles {
		if _, err := os.Stat(filepath.Join(root, m)); err == nil {
			parts = append(parts, m)
		}
	}

	if ext := dominantExtension(root); ext != "" {
		parts = append(parts, "ext"+ext)
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "+")
}

// dominantExtension counts source files one level deep. Walking the whole
// tree would blow the SessionStart budget on large repos.
func dominantExtension(root string) string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return ""
	}

	counts := map[string]int{}
	for _, entry := range entries {
		if entry.IsDir() {
			sub, err := os.ReadDir(filepath.Join(root, entry.Name()))
			if err != nil {
				continue
			}
			for _, s := range sub {
				countExt(counts, s.Name())
			}
			continue
		}
		countExt(counts, entry.Name())
	}

	best, bestCount := "", 0
	exts := make([]string, 0, len(counts))
	for ext := range counts {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		if counts[ext] > bestCount {
			best, bestCount = ext, counts[ext]
		}
	}
	return best
}

var sourceExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".jsx": true, ".rs": true, ".java": true, ".rb": true, ".php": true,
	".c": true, ".cc": true, ".cpp": true, ".h": true, ".cs": true,
}

func countExt(counts map[string]int, name string) {
	ext := filepath.Ext(name)
	if sourceExtensions[ext] {
		counts[ext]++
	}
}

// =============================================================================
// Persistence
// =============================================================================

// Store reads and writes sessions under a state directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, sanitizeID(id)+".json")
}

// Load returns the persisted session for id, or a fresh one when the file
// is missing or unreadable.
func (s *Store) Load(id string) *Session {
	if id == "" {
		return New("")
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return New(id)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil || sess.ID == "" {
		logging.Session("discarding corrupt session file for %s, starting fresh", id)
		return New(id)
	}
	return &sess
}

// Save writes the session via temp file + rename.
func (s *Store) Save(sess *Session) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close session: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(sess.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish session: %w", err)
	}
	return nil
}

// Delete removes the persisted session. Called at session end.
func (s *Store) Delete(id string) {
	os.Remove(s.path(id))
}

// sanitizeID keeps session filenames path-safe.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
