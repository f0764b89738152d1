// Package learning persists outcome records and consolidates them into
// adaptations that bias future routing and pattern matching.
//
// Records are cheap, synchronous appends. Consolidation (Adapt) clusters
// records by context-signature similarity off the critical path; clusters
// with enough samples and high mean effectiveness become Adaptations whose
// confidence is reinforced by repetition and decays without it.
package learning

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"hookwise/internal/config"
	"hookwise/internal/logging"
)

// Record is one observed outcome.
type Record struct {
	ID            int64
	Signature     string
	Action        string
	Effectiveness float64
	SessionID     string
	RecordedAt    time.Time
}

// Adaptation is a consolidated recommendation for a context signature.
type Adaptation struct {
	ID           string
	Signature    string
	Action       string
	Confidence   float64
	SampleCount  int
	MeanEff      float64
	CreatedAt    time.Time
	ReinforcedAt time.Time
}

// Engine owns the sqlite-backed learning state.
type Engine struct {
	db  *sql.DB
	cfg config.LearningConfig
	mu  sync.Mutex
	now func() time.Time
}

// NewEngine opens (creating if needed) the learning database at path.
func NewEngine(path string, cfg config.LearningConfig) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create learning dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open learning db: %w", err)
	}

	e := &Engine{db: db, cfg: cfg, now: time.Now}
	if err := e.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS learning_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		signature TEXT NOT NULL,
		action TEXT NOT NULL,
		effectiveness REAL NOT NULL,
		session_id TEXT DEFAULT '',
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		consolidated INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_records_signature ON learning_records(signature);
	CREATE INDEX IF NOT EXISTS idx_records_consolidated ON learning_records(consolidated);

	CREATE TABLE IF NOT EXISTS adaptations (
		id TEXT PRIMARY KEY,
		signature TEXT NOT NULL,
		action TEXT NOT NULL,
		confidence REAL NOT NULL,
		sample_count INTEGER NOT NULL,
		mean_effectiveness REAL NOT NULL,
		created_at DATETIME NOT NULL,
		reinforced_at DATETIME NOT NULL,
		UNIQUE(signature, action)
	);
	CREATE INDEX IF NOT EXISTS idx_adaptations_signature ON adaptations(signature);
	`
	if _, err := e.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize learning schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Record appends one outcome. Effectiveness is clamped into [0,1].
func (e *Engine) Record(sig, action string, effectiveness float64) error {
	if sig == "" || action == "" {
		return fmt.Errorf("record needs signature and action")
	}
	if effectiveness < 0 {
		effectiveness = 0
	}
	if effectiveness > 1 {
		effectiveness = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.db.Exec(`
		INSERT INTO learning_records (signature, action, effectiveness, recorded_at)
		VALUES (?, ?, ?, ?)`,
		sig, action, effectiveness, e.now().UTC())
	if err != nil {
		return fmt.Errorf("append learning record: %w", err)
	}
	return nil
}

// Adapt consolidates unprocessed records into adaptations and returns the
// adaptations created or reinforced in this pass.
func (e *Engine) Adapt() ([]Adaptation, error) {
	timer := logging.StartTimer(logging.CategoryLearning, "Adapt")
	defer timer.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()

	records, err := e.pendingRecordsLocked()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	var out []Adaptation
	for _, cluster := range clusterBySignature(records, e.cfg.SimilarityThreshold) {
		if len(cluster.records) < e.cfg.MinSamples {
			continue
		}
		mean := meanEffectiveness(cluster.records)
		if mean < e.cfg.EffectivenessThreshold {
			continue
		}

		action := dominantAction(cluster.records)
		adapted, err := e.upsertAdaptationLocked(cluster.signature, action, len(cluster.records), mean)
		if err != nil {
			logging.Get(logging.CategoryLearning).Error("upsert adaptation failed: %v", err)
			continue
		}
		out = append(out, adapted)

		if err := e.markConsolidatedLocked(cluster.records); err != nil {
			logging.Get(logging.CategoryLearning).Error("mark consolidated failed: %v", err)
		}
	}

	if len(out) > 0 {
		logging.Learning("consolidated %d records into %d adaptations", len(records), len(out))
	}
	return out, nil
}

// upsertAdaptationLocked creates the adaptation at the configured creation
// confidence, or reinforces an existing one.
func (e *Engine) upsertAdaptationLocked(sig, action string, samples int, mean float64) (Adaptation, error) {
	now := e.now().UTC()
	_, err := e.db.Exec(`
		INSERT INTO adaptations (id, signature, action, confidence, sample_count, mean_effectiveness, created_at, reinforced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(signature, action) DO UPDATE SET
			confidence = MIN(1.0, confidence + 0.1),
			sample_count = sample_count + excluded.sample_count,
			mean_effectiveness = excluded.mean_effectiveness,
			reinforced_at = excluded.reinforced_at`,
		uuid.New().String(), sig, action, e.cfg.CreationConfidence, samples, mean, now, now)
	if err != nil {
		return Adaptation{}, err
	}

	var a Adaptation
	row := e.db.QueryRow(`
		SELECT id, signature, action, confidence, sample_count, mean_effectiveness, created_at, reinforced_at
		FROM adaptations WHERE signature = ? AND action = ?`, sig, action)
	if err := row.Scan(&a.ID, &a.Signature, &a.Action, &a.Confidence, &a.SampleCount, &a.MeanEff, &a.CreatedAt, &a.ReinforcedAt); err != nil {
		return Adaptation{}, err
	}

	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditAdaptationCreated,
		Target:    sig + " -> " + action,
		Success:   true,
	})
	return a, nil
}

func (e *Engine) pendingRecordsLocked() ([]Record, error) {
	rows, err := e.db.Query(`
		SELECT id, signature, action, effectiveness, session_id, recorded_at
		FROM learning_records
		WHERE consolidated = 0
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load pending records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Signature, &r.Action, &r.Effectiveness, &r.SessionID, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (e *Engine) markConsolidatedLocked(records []Record) error {
	for _, r := range records {
		if _, err := e.db.Exec(`UPDATE learning_records SET consolidated = 1 WHERE id = ?`, r.ID); err != nil {
			return err
		}
	}
	return nil
}

// Decay applies exponential confidence decay to every adaptation based on
// time since last reinforcement, then prunes those under the floor.
func (e *Engine) Decay() (pruned int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.db.Query(`SELECT id, confidence, reinforced_at FROM adaptations`)
	if err != nil {
		return 0, fmt.Errorf("load adaptations for decay: %w", err)
	}

	type row struct {
		id         string
		confidence float64
		reinforced time.Time
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.confidence, &r.reinforced); err != nil {
			rows.Close()
			return 0, err
		}
		all = append(all, r)
	}
	rows.Close()

	now := e.now().UTC()
	halfLife := e.cfg.HalfLifeDays * 24 * float64(time.Hour)
	for _, r := range all {
		elapsed := float64(now.Sub(r.reinforced))
		if elapsed <= 0 || halfLife <= 0 {
			continue
		}
		decayed := r.confidence * math.Pow(0.5, elapsed/halfLife)

		if decayed < e.cfg.PruneFloor {
			if _, err := e.db.Exec(`DELETE FROM adaptations WHERE id = ?`, r.id); err != nil {
				return pruned, err
			}
			pruned++
			logging.Audit(logging.AuditEvent{
				EventType: logging.AuditAdaptationDecayed,
				Target:    r.id,
				Success:   true,
			})
			continue
		}
		if _, err := e.db.Exec(`UPDATE adaptations SET confidence = ? WHERE id = ?`, decayed, r.id); err != nil {
			return pruned, err
		}
	}

	if pruned > 0 {
		logging.Learning("pruned %d adaptations below confidence floor", pruned)
	}
	return pruned, nil
}

// Bias returns per-action additive deltas for a context signature. Deltas
// are capped at MaxBiasDelta so learned preference can nudge but never
// override availability or safety rules.
func (e *Engine) Bias(sig string) map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.db.Query(`SELECT signature, action, confidence FROM adaptations`)
	if err != nil {
		logging.Get(logging.CategoryLearning).Error("bias query failed: %v", err)
		return nil
	}
	defer rows.Close()

	tokens := signatureTokens(sig)
	out := map[string]float64{}
	for rows.Next() {
		var aSig, action string
		var confidence float64
		if err := rows.Scan(&aSig, &action, &confidence); err != nil {
			continue
		}
		if jaccard(tokens, signatureTokens(aSig)) < e.cfg.SimilarityThreshold {
			continue
		}

		delta := confidence * e.cfg.MaxBiasDelta
		if delta > e.cfg.MaxBiasDelta {
			delta = e.cfg.MaxBiasDelta
		}
		if delta > out[action] {
			out[action] = delta
		}
	}
	return out
}

// BiasFor returns the delta for one action under a signature.
func (e *Engine) BiasFor(sig, action string) float64 {
	return e.Bias(sig)[action]
}

// Adaptations returns every stored adaptation, highest confidence first.
func (e *Engine) Adaptations() ([]Adaptation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.db.Query(`
		SELECT id, signature, action, confidence, sample_count, mean_effectiveness, created_at, reinforced_at
		FROM adaptations
		ORDER BY confidence DESC, reinforced_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("load adaptations: %w", err)
	}
	defer rows.Close()

	var out []Adaptation
	for rows.Next() {
		var a Adaptation
		if err := rows.Scan(&a.ID, &a.Signature, &a.Action, &a.Confidence, &a.SampleCount, &a.MeanEff, &a.CreatedAt, &a.ReinforcedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats returns record and adaptation counters.
func (e *Engine) Stats() map[string]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := map[string]int64{}
	var records, pending, adaptations int64
	e.db.QueryRow(`SELECT COUNT(*) FROM learning_records`).Scan(&records)
	e.db.QueryRow(`SELECT COUNT(*) FROM learning_records WHERE consolidated = 0`).Scan(&pending)
	e.db.QueryRow(`SELECT COUNT(*) FROM adaptations`).Scan(&adaptations)
	out["records"] = records
	out["pending"] = pending
	out["adaptations"] = adaptations
	return out
}

// =============================================================================
// Clustering
// =============================================================================

type cluster struct {
	signature string
	tokens    map[string]bool
	records   []Record
}

// clusterBySignature greedily groups records whose signature-token Jaccard
// similarity meets the threshold. The first record of a cluster provides the
// canonical signature.
func clusterBySignature(records []Record, threshold float64) []*cluster {
	var clusters []*cluster
	for _, r := range records {
		tokens := signatureTokens(r.Signature)

		var home *cluster
		for _, c := range clusters {
			if jaccard(tokens, c.tokens) >= threshold {
				home = c
				break
			}
		}
		if home == nil {
			home = &cluster{signature: r.Signature, tokens: tokens}
			clusters = append(clusters, home)
		}
		home.records = append(home.records, r)
	}
	return clusters
}

func meanEffectiveness(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range records {
		sum += r.Effectiveness
	}
	return sum / float64(len(records))
}

// dominantAction is the most frequent action in the cluster, ties broken by
// higher mean effectiveness then lexical order.
func dominantAction(records []Record) string {
	count := map[string]int{}
	sum := map[string]float64{}
	for _, r := range records {
		count[r.Action]++
		sum[r.Action] += r.Effectiveness
	}

	actions := make([]string, 0, len(count))
	for a := range count {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if count[a] != count[b] {
			return count[a] > count[b]
		}
		ma, mb := sum[a]/float64(count[a]), sum[b]/float64(count[b])
		if ma != mb {
			return ma > mb
		}
		return a < b
	})
	return actions[0]
}

// signatureTokens normalizes a context signature into a lowercase token set.
func signatureTokens(sig string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(sig), func(r rune) bool {
		return r == ':' || r == '/' || r == ' ' || r == ',' || r == ';' || r == '|'
	}) {
		if tok != "" {
			out[tok] = true
		}
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
