package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hookwise/internal/config"
)

func testConfig() config.CacheConfig {
	return config.CacheConfig{
		Dir:                "cache",
		L1MaxEntries:       4,
		L3MaxBytes:         256,
		PromotionThreshold: 3,
	}
}

func TestColdStartEmpty(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "cache"), testConfig())

	if _, ok := m.Get("anything", ""); ok {
		t.Error("empty cache must miss")
	}
	if m.Stats()["misses"] != 1 {
		t.Errorf("expected 1 miss, got %d", m.Stats()["misses"])
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	m := NewManager(t.TempDir(), testConfig())

	if err := m.Put("plan:abc", map[string]string{"primary": "context"}, TierHot); err != nil {
		t.Fatal(err)
	}

	var out map[string]string
	if !m.GetInto("plan:abc", "", &out) {
		t.Fatal("expected hit")
	}
	if out["primary"] != "context" {
		t.Errorf("got %v", out)
	}
}

func TestSingleResidency(t *testing.T) {
	m := NewManager(t.TempDir(), testConfig())

	m.Put("sig", "v1", TierProject)
	m.Put("sig", "v2", TierSession, WithSession("s1"))

	if _, ok := m.Get("sig", TierProject); ok {
		t.Error("entry must not remain in the old tier after a re-put")
	}
	raw, ok := m.Get("sig", TierSession)
	if !ok || string(raw) != `"v2"` {
		t.Errorf("expected v2 in session tier, got %s ok=%v", raw, ok)
	}
}

func TestPromotionOnThreshold(t *testing.T) {
	m := NewManager(t.TempDir(), testConfig())
	m.Put("hot-key", 42, TierProject)

	for i := 0; i < 3; i++ {
		if _, ok := m.Get("hot-key", ""); !ok {
			t.Fatal("expected hit")
		}
	}

	if _, ok := m.Get("hot-key", TierProject); ok {
		t.Error("promotion must remove the source-tier copy")
	}
	if _, ok := m.Get("hot-key", TierHot); !ok {
		t.Error("expected entry in L1 after crossing the threshold")
	}
}

func TestL1EvictsLeastFrequentlyUsed(t *testing.T) {
	m := NewManager(t.TempDir(), testConfig())

	for _, k := range []string{"a", "b", "c", "d"} {
		m.Put(k, k, TierHot)
	}
	// Touch everything except "c".
	for _, k := range []string{"a", "b", "d"} {
		m.Get(k, TierHot)
	}

	m.Put("e", "e", TierHot)

	if _, ok := m.Get("c", TierHot); ok {
		t.Error("least-frequently-used entry should have been evicted")
	}
	if _, ok := m.Get("a", TierHot); !ok {
		t.Error("frequently used entry should survive")
	}
}

func TestL3ByteCap(t *testing.T) {
	m := NewManager(t.TempDir(), testConfig())

	big := make([]byte, 100)
	m.Put("old", big, TierProject)
	time.Sleep(2 * time.Millisecond)
	m.Put("mid", big, TierProject)
	time.Sleep(2 * time.Millisecond)
	m.Put("new", big, TierProject)

	// 3 base64-encoded 100-byte payloads exceed the 256-byte cap.
	if _, ok := m.Get("old", TierProject); ok {
		t.Error("oldest entry should be evicted by the LRU byte cap")
	}
	if _, ok := m.Get("new", TierProject); !ok {
		t.Error("newest entry should survive")
	}
}

func TestSessionFlush(t *testing.T) {
	m := NewManager(t.TempDir(), testConfig())

	m.Put("k1", 1, TierSession, WithSession("s1"))
	m.Put("k2", 2, TierSession, WithSession("s1"))
	m.Put("k3", 3, TierSession, WithSession("s2"))

	if n := m.FlushSession("s1"); n != 2 {
		t.Errorf("expected 2 flushed, got %d", n)
	}
	if _, ok := m.Get("k3", TierSession); !ok {
		t.Error("other session's entries must survive the flush")
	}
}

func TestLearnedAgeWeightedEviction(t *testing.T) {
	m := NewManager(t.TempDir(), testConfig())
	base := time.Now()
	m.now = func() time.Time { return base }

	m.Put("strong", 1, TierLearned, WithEffectiveness(0.9))
	m.Put("weak", 2, TierLearned, WithEffectiveness(0.1))

	// Three days in: the weak entry's scaled lifetime (1.4 days) is over,
	// the strong one (12.6 days) is not.
	m.now = func() time.Time { return base.Add(3 * 24 * time.Hour) }

	if _, ok := m.Get("weak", TierLearned); ok {
		t.Error("low-effectiveness entry should age out early")
	}
	if _, ok := m.Get("strong", TierLearned); !ok {
		t.Error("high-effectiveness entry should survive")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")

	m1 := NewManager(dir, testConfig())
	m1.Put("persisted", "value", TierProject)
	if err := m1.Save(); err != nil {
		t.Fatal(err)
	}

	m2 := NewManager(dir, testConfig())
	raw, ok := m2.Get("persisted", TierProject)
	if !ok || string(raw) != `"value"` {
		t.Errorf("expected persisted value after reload, got %s ok=%v", raw, ok)
	}
}

func TestSaveConcurrentWithReads(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "cache"), testConfig())
	if err := m.Put("shared", "payload", TierProject); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			m.Get("shared", "")
		}
	}()

	for i := 0; i < 50; i++ {
		if err := m.Save(); err != nil {
			t.Fatalf("save under concurrent reads: %v", err)
		}
	}
	<-done

	m2 := NewManager(m.dir, testConfig())
	if _, ok := m2.Get("shared", ""); !ok {
		t.Error("entry lost across concurrent save")
	}
}

func TestCorruptSnapshotIsColdStart(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "l3.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(dir, testConfig())
	if _, ok := m.Get("anything", TierProject); ok {
		t.Error("corrupt snapshot must load as an empty tier")
	}
	// Still writable afterward.
	if err := m.Put("fresh", 1, TierProject); err != nil {
		t.Fatal(err)
	}
	if err := m.Save(); err != nil {
		t.Fatal(err)
	}
}
