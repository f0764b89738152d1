package hook

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"hookwise/internal/cache"
	"hookwise/internal/compress"
	"hookwise/internal/learning"
	"hookwise/internal/logging"
	"hookwise/internal/routing"
	"hookwise/internal/session"
)

// maxActivePatterns bounds how many matched patterns a session activates.
const maxActivePatterns = 3

// patternReinforceDelta is the store-side confidence bump applied when an
// adaptation re-recommends an already-known pattern.
const patternReinforceDelta = 0.05

// sessionStart detects the project, loads learned patterns, matches the
// initial pattern set, and proposes the first activation plan.
func (e *Engine) sessionStart(ctx context.Context, in StageInput) StageOutput {
	sess := e.sessions.Load(in.SessionID)
	sess.ProjectSignature = session.DetectSignature(e.workspace)
	sess.Metrics.Stages++

	if e.learning != nil {
		if learned, err := e.learning.LearnedPatterns(); err == nil {
			e.patterns.SetLearned(learned)
		} else {
			logging.HookWarn("learned patterns unavailable: %v", err)
		}
	}

	matcher := e.matcherFor(sess.ProjectSignature)
	scored := matcher.Match(signalsFrom(in.Payload, sess.ProjectSignature))

	sess.ActivePatterns = sess.ActivePatterns[:0]
	var modes []string
	for i, sp := range scored {
		if i >= maxActivePatterns {
			break
		}
		sess.ActivePatterns = append(sess.ActivePatterns, sp.Pattern.ID)
		modes = append(modes, sp.Pattern.Modes...)
	}

	plan := e.router.SelectServers(routing.OperationContext{
		Required:  scored[0].Pattern.Servers,
		Signature: sess.ProjectSignature,
	})

	if err := e.sessions.Save(sess); err != nil {
		logging.HookWarn("session save failed: %v", err)
	}

	return StageOutput{
		Status:           StatusOK,
		SessionID:        sess.ID,
		Plan:             &plan,
		Patterns:         append([]string(nil), sess.ActivePatterns...),
		ContextInjection: "modes: " + strings.Join(dedupe(modes), ", "),
	}
}

// preCapabilityUse routes the upcoming capability call. Plans are cached per
// session so repeated calls inside one session skip scoring.
func (e *Engine) preCapabilityUse(ctx context.Context, in StageInput) StageOutput {
	sess := e.sessions.Load(in.SessionID)
	sig := sess.ProjectSignature
	if sig == "" {
		sig = session.DetectSignature(e.workspace)
	}

	key := "plan:" + sig + ":" + in.Payload.Capability
	var plan routing.ActivationPlan
	if e.cache.GetInto(key, "", &plan) {
		sess.Metrics.CacheHits++
		sess.Metrics.Stages++
		e.sessions.Save(sess)
		return StageOutput{
			Status:    StatusOK,
			SessionID: sess.ID,
			Plan:      &plan,
			Metrics:   StageMetrics{CacheHit: true},
		}
	}

	plan = e.router.SelectServers(routing.OperationContext{
		Capability: in.Payload.Capability,
		Required:   in.Payload.Required,
		Complexity: in.Payload.Complexity,
		Signature:  sig,
	})

	if err := e.cache.Put(key, plan, cache.TierSession, cache.WithSession(sess.ID)); err != nil {
		logging.HookWarn("plan cache write failed: %v", err)
	}

	sess.Metrics.Stages++
	e.sessions.Save(sess)
	return StageOutput{Status: StatusOK, SessionID: sess.ID, Plan: &plan}
}

// postCapabilityUse feeds the observed outcome back into the router's
// estimates; the router emits the learning record.
func (e *Engine) postCapabilityUse(ctx context.Context, in StageInput) StageOutput {
	if in.Payload.Server == "" {
		return noopOutput(StagePostCapabilityUse, in)
	}

	sess := e.sessions.Load(in.SessionID)
	success := in.Payload.Success == nil || *in.Payload.Success

	e.router.ReportOutcome(in.Payload.Server, sess.ProjectSignature, in.Payload.LatencyMs, success)

	sess.Metrics.Stages++
	sess.Metrics.CapabilityCalls++
	e.sessions.Save(sess)
	return StageOutput{Status: StatusOK, SessionID: sess.ID}
}

// preCompress compresses the payload under the measured pressure. Framework
// content and empty payloads pass through.
func (e *Engine) preCompress(ctx context.Context, in StageInput) StageOutput {
	class := compress.Classify(in.Payload.Content, in.Payload.Origin)
	level := compress.LevelForPressure(in.Pressure)
	res := e.compress.Compress(in.Payload.Content, class, level)

	sess := e.sessions.Load(in.SessionID)
	sess.Metrics.Stages++
	if res.Ratio > 0 {
		sess.Metrics.Compressions++
		sess.Metrics.CompressSavings += res.Ratio
	}
	e.sessions.Save(sess)

	return StageOutput{
		Status:    StatusOK,
		SessionID: sess.ID,
		Content:   res.Output,
		Metrics:   StageMetrics{Ratio: res.Ratio, Quality: res.Quality},
	}
}

// notify refreshes the background state: consolidates learning, decays stale
// adaptations, and snapshots the cache. The refreshes run concurrently and
// individually non-fatally.
func (e *Engine) notify(ctx context.Context, in StageInput) StageOutput {
	g, gctx := errgroup.WithContext(ctx)

	if e.learning != nil {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			adapted, err := e.learning.Adapt()
			if err != nil {
				logging.HookWarn("adaptation pass failed: %v", err)
			}
			e.reinforcePatterns(adapted)

			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := e.learning.Decay(); err != nil {
				logging.HookWarn("decay pass failed: %v", err)
			}
			return nil
		})
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if learned, err := e.learning.LearnedPatterns(); err == nil {
				e.patterns.SetLearned(learned)
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		if err := e.cache.Save(); err != nil {
			logging.HookWarn("cache snapshot failed: %v", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logging.HookWarn("notify refresh cut short: %v", err)
		return noopOutput(StageNotify, in)
	}

	return StageOutput{Status: StatusOK, SessionID: in.SessionID}
}

// stop flushes the session tier, drains deferred learning, and emits the
// session analytics summary. The session file is removed afterward.
func (e *Engine) stop(ctx context.Context, in StageInput) StageOutput {
	sess := e.sessions.Load(in.SessionID)
	sess.Metrics.Stages++

	flushed := e.cache.FlushSession(sess.ID)

	// Each active pattern earns an effectiveness record for this session;
	// repeated clean sessions consolidate them into learned-tier patterns.
	if e.flusher != nil {
		sig := sess.ProjectSignature
		if sig == "" {
			sig = session.DetectSignature(e.workspace)
		}
		eff := sessionEffectiveness(sess.Metrics)
		for _, id := range sess.ActivePatterns {
			e.flusher.Enqueue(sig, learning.PatternAction(id), eff)
		}
		if err := e.flusher.Drain(ctx); err != nil {
			logging.HookWarn("learning drain cut short: %v", err)
		}
	}
	if e.learning != nil {
		adapted, err := e.learning.Adapt()
		if err != nil {
			logging.HookWarn("final adaptation pass failed: %v", err)
		}
		e.reinforcePatterns(adapted)
	}
	if err := e.cache.Save(); err != nil {
		logging.HookWarn("cache snapshot failed: %v", err)
	}

	summary := fmt.Sprintf(
		"session %s: stages=%d capability_calls=%d cache_hits=%d compressions=%d flushed_l2=%d degraded=%d",
		sess.ID, sess.Metrics.Stages, sess.Metrics.CapabilityCalls, sess.Metrics.CacheHits,
		sess.Metrics.Compressions, flushed, sess.Metrics.Degraded)
	logging.Session("%s", summary)

	e.sessions.Delete(sess.ID)

	return StageOutput{
		Status:           StatusOK,
		SessionID:        sess.ID,
		ContextInjection: summary,
	}
}

// subTaskStop records how effective the delegated sub-task was.
func (e *Engine) subTaskStop(ctx context.Context, in StageInput) StageOutput {
	sess := e.sessions.Load(in.SessionID)
	sess.Metrics.Stages++

	effectiveness := 0.5
	if in.Payload.Effectiveness != nil {
		effectiveness = *in.Payload.Effectiveness
	}

	action := "delegate:" + in.Payload.Capability
	if in.Payload.Capability == "" {
		action = "delegate:subtask"
	}
	if e.flusher != nil {
		e.flusher.Enqueue(sess.ProjectSignature+":delegation", action, effectiveness)
	}

	e.sessions.Save(sess)
	return StageOutput{Status: StatusOK, SessionID: sess.ID}
}

// sessionEffectiveness scores how well a session served its activated
// patterns. A clean session lands above the consolidation threshold;
// degraded stages pull the score down.
func sessionEffectiveness(m session.Metrics) float64 {
	if m.Stages == 0 {
		return 0.5
	}
	eff := 0.8 - 0.5*float64(m.Degraded)/float64(m.Stages)
	if m.CapabilityCalls > 0 {
		eff += 0.1
	}
	if m.CacheHits > 0 {
		eff += 0.1
	}
	if eff < 0 {
		eff = 0
	}
	if eff > 1 {
		eff = 1
	}
	return eff
}

// reinforcePatterns bumps store confidence for pattern-recommending
// adaptations so reinforcement reaches the matcher between learned-tier
// reloads.
func (e *Engine) reinforcePatterns(adapted []learning.Adaptation) {
	for _, a := range adapted {
		if id, ok := learning.PatternID(a.Action); ok {
			e.patterns.Reinforce(id, patternReinforceDelta)
		}
	}
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
