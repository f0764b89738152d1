package learning

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"hookwise/internal/config"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(filepath.Join(t.TempDir(), "learning.db"), config.DefaultConfig().Learning)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestRecordClampsEffectiveness(t *testing.T) {
	e := newTestEngine(t)

	if err := e.Record("ctx:go-project", "route:analysis", 1.7); err != nil {
		t.Fatal(err)
	}
	if err := e.Record("ctx:go-project", "route:analysis", -0.5); err != nil {
		t.Fatal(err)
	}

	records, err := e.pendingRecordsLocked()
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range records {
		if r.Effectiveness < 0 || r.Effectiveness > 1 {
			t.Errorf("effectiveness %f outside [0,1]", r.Effectiveness)
		}
	}
}

func TestRecordRejectsEmptyKeys(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Record("", "route:x", 0.5); err == nil {
		t.Error("empty signature must be rejected")
	}
	if err := e.Record("ctx:x", "", 0.5); err == nil {
		t.Error("empty action must be rejected")
	}
}

func TestFiveStrongRecordsYieldOneAdaptation(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i < 5; i++ {
		if err := e.Record("ctx:python-project:testing", "pattern:python-project", 0.85); err != nil {
			t.Fatal(err)
		}
	}

	adapted, err := e.Adapt()
	if err != nil {
		t.Fatal(err)
	}
	if len(adapted) != 1 {
		t.Fatalf("expected exactly one adaptation, got %d", len(adapted))
	}
	a := adapted[0]
	if a.Confidence != 0.60 {
		t.Errorf("new adaptation confidence: got %f, want 0.60", a.Confidence)
	}
	if a.SampleCount != 5 || a.MeanEff < 0.84 {
		t.Errorf("unexpected consolidation: %+v", a)
	}

	// The records are consumed; a second pass creates nothing new.
	again, err := e.Adapt()
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("consolidated records must not re-adapt, got %d", len(again))
	}
}

func TestTooFewOrWeakRecordsDoNotAdapt(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i < 4; i++ {
		e.Record("ctx:few", "route:context", 0.95)
	}
	for i := 0; i < 6; i++ {
		e.Record("ctx:weak", "route:ui", 0.30)
	}

	adapted, err := e.Adapt()
	if err != nil {
		t.Fatal(err)
	}
	if len(adapted) != 0 {
		t.Errorf("expected no adaptations, got %+v", adapted)
	}
}

func TestReinforcementRaisesConfidence(t *testing.T) {
	e := newTestEngine(t)

	for round := 0; round < 2; round++ {
		for i := 0; i < 5; i++ {
			e.Record("ctx:repeat", "route:analysis", 0.9)
		}
		if _, err := e.Adapt(); err != nil {
			t.Fatal(err)
		}
	}

	all, err := e.Adaptations()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one adaptation, got %d", len(all))
	}
	if all[0].Confidence < 0.69 || all[0].Confidence > 0.71 {
		t.Errorf("reinforced confidence: got %f, want 0.70", all[0].Confidence)
	}
}

func TestDecayAndPrune(t *testing.T) {
	e := newTestEngine(t)
	base := time.Now()
	e.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		e.Record("ctx:decay", "route:context", 0.9)
	}
	if _, err := e.Adapt(); err != nil {
		t.Fatal(err)
	}

	// One half-life: 0.60 -> 0.30.
	e.now = func() time.Time { return base.Add(7 * 24 * time.Hour) }
	if _, err := e.Decay(); err != nil {
		t.Fatal(err)
	}
	all, _ := e.Adaptations()
	if len(all) != 1 || all[0].Confidence > 0.31 || all[0].Confidence < 0.29 {
		t.Fatalf("expected confidence near 0.30 after one half-life, got %+v", all)
	}

	// Three more half-lives pushes it under the prune floor.
	e.now = func() time.Time { return base.Add(28 * 24 * time.Hour) }
	pruned, err := e.Decay()
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned adaptation, got %d", pruned)
	}
	if all, _ := e.Adaptations(); len(all) != 0 {
		t.Errorf("pruned adaptation still present: %+v", all)
	}
}

func TestBiasCappedAndSimilarityGated(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i < 10; i++ {
		for j := 0; j < 5; j++ {
			e.Record("ctx:python-project:testing", "route:automation", 0.95)
		}
		if _, err := e.Adapt(); err != nil {
			t.Fatal(err)
		}
	}

	bias := e.Bias("ctx:python-project:testing")
	delta, ok := bias["route:automation"]
	if !ok {
		t.Fatal("expected a bias delta for the reinforced action")
	}
	if delta > 0.25 {
		t.Errorf("bias delta %f exceeds the cap", delta)
	}

	// A dissimilar signature gets nothing.
	if far := e.Bias("ctx:rust-embedded:firmware"); len(far) != 0 {
		t.Errorf("dissimilar signature should carry no bias, got %v", far)
	}
}

func TestLearnedPatternsBridge(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i < 5; i++ {
		e.Record("ctx:django:views", "pattern:django-project", 0.9)
	}
	for i := 0; i < 5; i++ {
		e.Record("ctx:go-project:grpc", "route:analysis", 0.9)
	}
	if _, err := e.Adapt(); err != nil {
		t.Fatal(err)
	}

	patterns, err := e.LearnedPatterns()
	if err != nil {
		t.Fatal(err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected one learned pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.ID != "django-project" {
		t.Errorf("unexpected pattern id %s", p.ID)
	}
	if p.Confidence != 0.60 || len(p.Trigger.Keywords) == 0 {
		t.Errorf("learned pattern not populated: %+v", p)
	}
}

func TestClusteringSeparatesDissimilarSignatures(t *testing.T) {
	records := []Record{
		{Signature: "ctx:python-project:testing", Action: "a"},
		{Signature: "ctx:python-project:debugging", Action: "a"},
		{Signature: "embedded:rust:firmware", Action: "b"},
	}

	clusters := clusterBySignature(records, 0.5)
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	if len(clusters[0].records) != 2 || len(clusters[1].records) != 1 {
		t.Errorf("unexpected grouping: %d/%d", len(clusters[0].records), len(clusters[1].records))
	}
}

func TestFlusherDrainsWithoutLeaking(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "learning.db"), config.DefaultConfig().Learning)
	if err != nil {
		t.Fatal(err)
	}
	f := NewFlusher(e, 16)

	for i := 0; i < 10; i++ {
		f.Enqueue("ctx:flush", "route:context", 0.8)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.Drain(ctx); err != nil {
		t.Fatal(err)
	}

	if got := e.Stats()["records"]; got != 10 {
		t.Errorf("expected 10 flushed records, got %d", got)
	}

	e.Close()
	goleak.VerifyNone(t)
}

func TestPatternActionRoundTrip(t *testing.T) {
	id, ok := PatternID(PatternAction("django-project"))
	if !ok || id != "django-project" {
		t.Errorf("got %q ok=%v", id, ok)
	}
	if _, ok := PatternID("route:context"); ok {
		t.Error("non-pattern action must not parse as a pattern id")
	}
}
