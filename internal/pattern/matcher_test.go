package pattern

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestMatcher(t *testing.T, bias BiasFunc) (*Store, *Matcher) {
	t.Helper()
	store := NewStore("")
	return store, NewMatcher(store, DefaultMatcherConfig(), bias)
}

func TestMatchPythonManifest(t *testing.T) {
	_, m := newTestMatcher(t, nil)

	results := m.Match(Signals{Manifests: []string{"pyproject.toml"}})
	if len(results) == 0 {
		t.Fatal("expected at least one match")
	}
	if results[0].Pattern.ID != "python-project" {
		t.Errorf("expected python-project on top, got %s", results[0].Pattern.ID)
	}
	if len(results[0].Pattern.Modes) == 0 || len(results[0].Pattern.Servers) == 0 {
		t.Error("top match must carry a non-empty activation set")
	}
}

func TestMatchNeverEmpty(t *testing.T) {
	_, m := newTestMatcher(t, nil)

	results := m.Match(Signals{Text: "zzz qqq completely unrelated"})
	if len(results) == 0 {
		t.Fatal("match must never return an empty result")
	}
	if results[0].Pattern.ID != DefaultPatternID {
		t.Errorf("expected default fallback, got %s", results[0].Pattern.ID)
	}
	if len(results[0].Pattern.Modes) == 0 {
		t.Error("fallback activation set must be non-empty")
	}
}

func TestMatchIdempotent(t *testing.T) {
	_, m := newTestMatcher(t, nil)
	signals := Signals{
		Text:       "debug the failing pytest run",
		Extensions: []string{".py"},
		Manifests:  []string{"pyproject.toml"},
	}

	first := ids(m.Match(signals))
	second := ids(m.Match(signals))

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("match is not idempotent (-first +second):\n%s", diff)
	}
}

func TestMatchKeywordStrengthScales(t *testing.T) {
	_, m := newTestMatcher(t, nil)

	weak := m.Match(Signals{Text: "please debug this"})
	strong := m.Match(Signals{Text: "debug the panic, here is the stack trace, need the root cause"})

	ws := scoreOf(weak, "debug-work")
	ss := scoreOf(strong, "debug-work")
	if ss <= ws {
		t.Errorf("more keyword hits should raise the score: weak=%.3f strong=%.3f", ws, ss)
	}
}

func TestBiasAdjustsOrdering(t *testing.T) {
	// Without bias, python wins on the manifest signal. A learned bias toward
	// testing-work should be additive, not an override.
	_, unbiased := newTestMatcher(t, nil)
	_, biased := newTestMatcher(t, func(id string) float64 {
		if id == "testing-work" {
			return 0.2
		}
		return 0
	})

	signals := Signals{Text: "add unit tests", Manifests: []string{"pyproject.toml"}}

	u := scoreOf(unbiased.Match(signals), "testing-work")
	b := scoreOf(biased.Match(signals), "testing-work")
	if b <= u {
		t.Errorf("bias should raise testing-work score: unbiased=%.3f biased=%.3f", u, b)
	}
}

func TestDynamicTierLazyLoad(t *testing.T) {
	dir := t.TempDir()
	set := `
patterns:
  - id: django-project
    parents: [python-project]
    triggers:
      keywords: [django, wsgi]
      manifests: [manage.py]
    modes: [django-tooling]
    servers: [context]
    confidence: 0.8
`
	if err := os.WriteFile(filepath.Join(dir, "python.yaml"), []byte(set), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(dir)
	m := NewMatcher(store, DefaultMatcherConfig(), nil)

	// A non-python match must not load the python dynamic set.
	m.Match(Signals{Manifests: []string{"go.mod"}})
	if store.Stats()["dynamic"] != 0 {
		t.Error("dynamic set loaded without a matching minimal key")
	}

	// A python match keys the lazy load; django then outranks via tier weight.
	results := m.Match(Signals{Text: "django view bug", Manifests: []string{"pyproject.toml", "manage.py"}})
	if store.Stats()["dynamic"] != 1 {
		t.Fatalf("expected 1 dynamic pattern loaded, got %d", store.Stats()["dynamic"])
	}
	if results[0].Pattern.ID != "django-project" {
		t.Errorf("expected django-project on top, got %s", results[0].Pattern.ID)
	}
}

func TestCorruptPatternSetSkipped(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(":::{{"), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(dir)
	m := NewMatcher(store, DefaultMatcherConfig(), nil)

	// Must not panic or fail the match.
	results := m.Match(Signals{Manifests: []string{"pyproject.toml"}})
	if len(results) == 0 {
		t.Fatal("corrupt dynamic set must not break matching")
	}
}

func TestConfidenceAlwaysClamped(t *testing.T) {
	store := NewStore("")
	store.SetLearned([]*Pattern{
		{ID: "hot", Confidence: 3.5, Trigger: Trigger{Keywords: []string{"hot"}}},
		{ID: "cold", Confidence: -1.0, Trigger: Trigger{Keywords: []string{"cold"}}},
	})

	for _, p := range store.all() {
		if p.Confidence < 0 || p.Confidence > 1 {
			t.Errorf("pattern %s confidence %f outside [0,1]", p.ID, p.Confidence)
		}
	}
}

func TestReinforceOnlyMutableTiers(t *testing.T) {
	store := NewStore("")
	store.SetLearned([]*Pattern{{ID: "learned-x", Confidence: 0.5, Trigger: Trigger{Keywords: []string{"x"}}}})

	store.Reinforce("learned-x", 0.8)
	store.Reinforce("python-project", 0.8) // minimal: must be a no-op

	for _, p := range store.all() {
		switch p.ID {
		case "learned-x":
			if p.Confidence != 1.0 {
				t.Errorf("learned-x should be clamped to 1.0, got %f", p.Confidence)
			}
		case "python-project":
			if p.Confidence != 0.9 {
				t.Errorf("minimal pattern must be immutable, got %f", p.Confidence)
			}
		}
	}
}

func ids(scored []ScoredPattern) []string {
	out := make([]string, 0, len(scored))
	for _, sp := range scored {
		out = append(out, sp.Pattern.ID)
	}
	return out
}

func scoreOf(scored []ScoredPattern, id string) float64 {
	for _, sp := range scored {
		if sp.Pattern.ID == id {
			return sp.Score
		}
	}
	return 0
}
