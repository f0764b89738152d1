// Package hook orchestrates the seven lifecycle stages.
//
// Each stage is a short-lived invocation: the engine reconstructs state from
// disk, runs the stage inside its configured timeout, and emits a structured
// output. A timeout, panic, or internal error degrades to a passthrough
// no-op; a stage never fails the host session.
package hook

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"hookwise/internal/cache"
	"hookwise/internal/compress"
	"hookwise/internal/config"
	"hookwise/internal/learning"
	"hookwise/internal/logging"
	"hookwise/internal/pattern"
	"hookwise/internal/routing"
	"hookwise/internal/session"
)

// Engine binds every subsystem for one invocation.
type Engine struct {
	workspace string
	cfg       *config.Config

	patterns *pattern.Store
	cache    *cache.Manager
	compress *compress.Engine
	router   *routing.Router
	learning *learning.Engine
	flusher  *learning.Flusher
	sessions *session.Store
}

// New builds an engine rooted at workspace. Subsystem failures degrade the
// engine instead of failing it: a broken learning database means no learning
// for this invocation, not a broken stage.
func New(workspace string) *Engine {
	logging.Initialize(workspace)

	cfg, err := config.LoadWorkspace(workspace)
	if err != nil {
		logging.Boot("config load error, using defaults: %v", err)
	}

	state := config.StateDir(workspace)
	e := &Engine{
		workspace: workspace,
		cfg:       cfg,
		patterns:  pattern.NewStore(filepath.Join(state, cfg.Patterns.DynamicDir)),
		cache:     cache.NewManager(filepath.Join(state, cfg.Cache.Dir), cfg.Cache),
		compress:  compress.NewEngine(cfg.Compression),
		sessions:  session.NewStore(filepath.Join(state, "session")),
	}

	dbPath := cfg.Learning.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(state, dbPath)
	}
	learn, err := learning.NewEngine(dbPath, cfg.Learning)
	if err != nil {
		logging.Boot("learning store unavailable, continuing without: %v", err)
	} else {
		e.learning = learn
		e.flusher = learning.NewFlusher(learn, 128)
	}

	e.router = routing.NewRouter(cfg.Routing, e.routingBias, e.recordOutcome)
	return e
}

// Close persists cache state and releases the learning store. Bounded by the
// Stop-stage budget so shutdown can never hang the host.
func (e *Engine) Close() {
	if err := e.cache.Save(); err != nil {
		logging.Get(logging.CategoryHook).Error("cache snapshot failed: %v", err)
	}
	if e.flusher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StageTimeout(StageStop))
		defer cancel()
		if err := e.flusher.Drain(ctx); err != nil {
			logging.HookWarn("learning drain cut short: %v", err)
		}
	}
	if e.learning != nil {
		e.learning.Close()
	}
	logging.CloseAudit()
}

// Run executes one lifecycle stage under its timeout. Any panic, error, or
// budget overrun yields the documented no-op output.
func (e *Engine) Run(stage string, in StageInput) StageOutput {
	start := time.Now()
	timeout := e.cfg.StageTimeout(stage)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	results := make(chan StageOutput, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.HookError("stage %s panicked: %v", stage, r)
				results <- noopOutput(stage, in)
			}
		}()
		results <- e.dispatch(ctx, stage, in)
	}()

	var out StageOutput
	select {
	case out = <-results:
	case <-ctx.Done():
		logging.HookWarn("stage %s exceeded %s budget, degrading", stage, timeout)
		logging.Audit(logging.AuditEvent{
			EventType: logging.AuditStageTimeout,
			Stage:     stage,
			SessionID: in.SessionID,
		})
		out = noopOutput(stage, in)
	}

	out.Stage = stage
	out.Metrics.ElapsedMs = time.Since(start).Milliseconds()
	logging.AuditStage(stage, in.SessionID, out.Status != StatusDegraded, time.Since(start), "")
	return out
}

func (e *Engine) dispatch(ctx context.Context, stage string, in StageInput) StageOutput {
	switch stage {
	case StageSessionStart:
		return e.sessionStart(ctx, in)
	case StagePreCapabilityUse:
		return e.preCapabilityUse(ctx, in)
	case StagePostCapabilityUse:
		return e.postCapabilityUse(ctx, in)
	case StagePreCompress:
		return e.preCompress(ctx, in)
	case StageNotify:
		return e.notify(ctx, in)
	case StageStop:
		return e.stop(ctx, in)
	case StageSubTaskStop:
		return e.subTaskStop(ctx, in)
	default:
		logging.HookWarn("unknown stage %q", stage)
		return noopOutput(stage, in)
	}
}

// routingBias adapts the learning engine's deltas to the router's callback.
func (e *Engine) routingBias(sig, name string) float64 {
	if e.learning == nil {
		return 0
	}
	return e.learning.BiasFor(sig, "route:"+name)
}

// recordOutcome defers the router's learning record off the critical path.
func (e *Engine) recordOutcome(sig, action string, effectiveness float64) {
	if e.flusher == nil {
		return
	}
	e.flusher.Enqueue(sig, action, effectiveness)
}

// matcherFor builds a matcher whose bias closure is bound to sig.
func (e *Engine) matcherFor(sig string) *pattern.Matcher {
	mc := pattern.MatcherConfig{
		MinimalWeight: e.cfg.Patterns.MinimalWeight,
		DynamicWeight: e.cfg.Patterns.DynamicWeight,
		LearnedWeight: e.cfg.Patterns.LearnedWeight,
		TopNMinimal:   e.cfg.Patterns.TopNMinimal,
		DefaultID:     e.cfg.Patterns.DefaultPattern,
	}

	var bias pattern.BiasFunc
	if e.learning != nil {
		deltas := e.learning.Bias(sig)
		bias = func(patternID string) float64 {
			return deltas[learning.PatternAction(patternID)]
		}
	}
	return pattern.NewMatcher(e.patterns, mc, bias)
}

// signalsFrom merges payload signals with the detected project signature,
// whose "+"-joined parts are manifests or "ext"-prefixed extensions.
func signalsFrom(p Payload, projectSig string) pattern.Signals {
	s := pattern.Signals{
		Text:       p.Text,
		Extensions: p.Extensions,
		Manifests:  p.Manifests,
		Directives: p.Directives,
	}
	for _, part := range strings.Split(projectSig, "+") {
		switch {
		case part == "" || part == "unknown":
		case strings.HasPrefix(part, "ext."):
			s.Extensions = append(s.Extensions, strings.TrimPrefix(part, "ext"))
		default:
			s.Manifests = append(s.Manifests, part)
		}
	}
	return s
}
