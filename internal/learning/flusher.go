package learning

import (
	"context"
	"sync"

	"hookwise/internal/logging"
)

type queuedRecord struct {
	sig, action   string
	effectiveness float64
}

// Flusher writes learning records off the host-visible path. Enqueue never
// blocks; the queue drops on overflow because losing a record is cheaper
// than stalling a lifecycle stage.
type Flusher struct {
	engine *Engine
	queue  chan queuedRecord

	done chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewFlusher starts the background writer with the given queue depth.
func NewFlusher(engine *Engine, depth int) *Flusher {
	if depth <= 0 {
		depth = 128
	}
	f := &Flusher{
		engine: engine,
		queue:  make(chan queuedRecord, depth),
		done:   make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *Flusher) run() {
	defer close(f.done)
	for r := range f.queue {
		if err := f.engine.Record(r.sig, r.action, r.effectiveness); err != nil {
			logging.Get(logging.CategoryLearning).Error("deferred record failed: %v", err)
		}
	}
}

// Enqueue hands a record to the background writer without blocking. Records
// arriving after Drain are dropped.
func (f *Flusher) Enqueue(sig, action string, effectiveness float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		f.dropped++
		return
	}
	select {
	case f.queue <- queuedRecord{sig, action, effectiveness}:
	default:
		f.dropped++
		logging.LearningDebug("learning queue full, dropped record for %s", sig)
	}
}

// Dropped reports how many records overflowed the queue.
func (f *Flusher) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Drain stops intake and waits for the writer to finish, bounded by ctx.
func (f *Flusher) Drain(ctx context.Context) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
	f.mu.Unlock()

	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
