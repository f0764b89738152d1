// Package routing selects capability servers for an operation and maintains
// their health estimates.
//
// Selection is score-based: capability-tag overlap with the operation's
// requirements, the server's current latency/load estimate, and an additive
// learning bias. Fallback chains are precomputed at plan time so a failing
// primary never triggers a search on the hot path.
package routing

import (
	"sort"
	"sync"

	"hookwise/internal/config"
	"hookwise/internal/logging"
)

// NativeServer is the terminal fallback: run without external capability.
const NativeServer = "native"

// Mode is how the activation plan uses its servers.
type Mode string

const (
	ModeSingle     Mode = "single"
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// complexityCollab is the complexity above which multi-server collaboration
// is considered even when one candidate dominates.
const complexityCollab = 0.7

// unavailableAfter is the consecutive-failure count that marks a server down.
const unavailableAfter = 3

// Server is one capability server with its running health estimate.
type Server struct {
	Name         string
	Capabilities []string
	LatencyMs    float64 // exponential moving average
	Load         float64 // exponential moving average in [0,1]
	Available    bool

	failures int
}

// OperationContext describes the operation a stage is about to perform.
type OperationContext struct {
	Capability string   // primary capability requested
	Required   []string // all required capability tags
	Complexity float64  // 0..1, drives collaboration mode
	Signature  string   // context signature for learning bias
}

// ScoredServer is one candidate with its score breakdown.
type ScoredServer struct {
	Name    string
	Overlap float64
	Speed   float64
	Bias    float64
	Score   float64
}

// ActivationPlan is the ordered routing decision for one operation.
type ActivationPlan struct {
	Primary     string             `json:"primary"`
	Secondaries []string           `json:"secondaries,omitempty"`
	Fallbacks   []string           `json:"fallbacks"`
	Mode        Mode               `json:"mode"`
	Scores      map[string]float64 `json:"scores,omitempty"`
}

// BiasFunc returns the learning engine's additive delta for routing
// signature sig to server name. Nil means no bias.
type BiasFunc func(sig, name string) float64

// RecordFunc receives the outcome record emitted after each server report.
type RecordFunc func(sig, action string, effectiveness float64)

// Router scores and selects capability servers.
type Router struct {
	mu      sync.RWMutex
	servers map[string]*Server
	order   []string // registration order, for deterministic iteration

	cfg    config.RoutingConfig
	bias   BiasFunc
	record RecordFunc
}

// NewRouter builds the registry from the routing config. Disabled servers
// are skipped.
func NewRouter(cfg config.RoutingConfig, bias BiasFunc, record RecordFunc) *Router {
	r := &Router{
		servers: map[string]*Server{},
		cfg:     cfg,
		bias:    bias,
		record:  record,
	}
	for _, sc := range cfg.Servers {
		if !sc.Enabled || sc.Name == "" {
			continue
		}
		r.servers[sc.Name] = &Server{
			Name:         sc.Name,
			Capabilities: sc.Capabilities,
			LatencyMs:    float64(sc.BaseLatencyMs),
			Available:    true,
		}
		r.order = append(r.order, sc.Name)
	}
	return r
}

// SelectServers builds an activation plan for op. The plan always has a
// usable primary: with no viable candidate it degrades to the native
// fallback rather than failing.
func (r *Router) SelectServers(op OperationContext) ActivationPlan {
	timer := logging.StartTimer(logging.CategoryRouting, "SelectServers")
	defer timer.Stop()

	r.mu.RLock()
	scored := r.scoreAllLocked(op)
	r.mu.RUnlock()

	if len(scored) == 0 {
		logging.RoutingDebug("no candidate for %v, native only", op.Required)
		return ActivationPlan{Primary: NativeServer, Fallbacks: []string{NativeServer}, Mode: ModeSingle}
	}

	plan := ActivationPlan{
		Primary: scored[0].Name,
		Mode:    r.pickMode(scored, op),
		Scores:  map[string]float64{},
	}
	for _, s := range scored {
		plan.Scores[s.Name] = s.Score
	}

	if plan.Mode != ModeSingle {
		for _, s := range scored[1:] {
			if len(plan.Secondaries) >= r.cfg.MaxSecondaries {
				break
			}
			plan.Secondaries = append(plan.Secondaries, s.Name)
		}
	}

	// Precompute the fallback chain now; failure time only walks it.
	used := map[string]bool{plan.Primary: true}
	for _, s := range plan.Secondaries {
		used[s] = true
	}
	for _, s := range scored {
		if used[s.Name] || len(plan.Fallbacks) >= r.cfg.MaxFallbacks {
			continue
		}
		plan.Fallbacks = append(plan.Fallbacks, s.Name)
	}
	plan.Fallbacks = append(plan.Fallbacks, NativeServer)

	logging.Routing("plan: primary=%s mode=%s secondaries=%v fallbacks=%v",
		plan.Primary, plan.Mode, plan.Secondaries, plan.Fallbacks)
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditPlanSelected,
		Target:    plan.Primary,
		Success:   true,
	})
	return plan
}

// NextFallback returns the first available entry of the plan's precomputed
// chain after the failed server. NativeServer terminates the walk.
func (r *Router) NextFallback(plan ActivationPlan, failed string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	past := failed == plan.Primary
	for _, name := range plan.Fallbacks {
		if name == failed {
			past = true
			continue
		}
		if !past {
			continue
		}
		if name == NativeServer {
			return NativeServer
		}
		if srv, ok := r.servers[name]; ok && srv.Available {
			logging.Audit(logging.AuditEvent{
				EventType: logging.AuditFallbackUsed,
				Target:    name,
				Success:   true,
			})
			return name
		}
	}
	return NativeServer
}

// ReportOutcome folds one observed call into the server's estimates and
// emits a learning record. alpha-weighted EMA per the routing config.
func (r *Router) ReportOutcome(name, sig string, latencyMs float64, success bool) {
	r.mu.Lock()
	srv, ok := r.servers[name]
	if !ok {
		r.mu.Unlock()
		return
	}

	alpha := r.cfg.EMAAlpha
	priorLatency := srv.LatencyMs
	srv.LatencyMs = alpha*latencyMs + (1-alpha)*priorLatency

	sample := 0.0
	if !success {
		sample = 1.0
	}
	srv.Load = alpha*sample + (1-alpha)*srv.Load

	if success {
		srv.failures = 0
		srv.Available = true
	} else {
		srv.failures++
		if srv.failures >= unavailableAfter {
			srv.Available = false
			logging.Routing("marking %s unavailable after %d failures", name, srv.failures)
			logging.Audit(logging.AuditEvent{
				EventType: logging.AuditServerUnhealthy,
				Target:    name,
			})
		}
	}
	r.mu.Unlock()

	if r.record != nil {
		r.record(sig, "route:"+name, effectiveness(success, latencyMs, priorLatency))
	}
}

// Snapshot returns a copy of the current server estimates.
func (r *Router) Snapshot() []Server {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Server, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.servers[name])
	}
	return out
}

// scoreAllLocked scores every available server against op, dropping
// zero-overlap candidates, sorted best first.
func (r *Router) scoreAllLocked(op OperationContext) []ScoredServer {
	required := op.Required
	if len(required) == 0 && op.Capability != "" {
		required = []string{op.Capability}
	}

	scored := make([]ScoredServer, 0, len(r.order))
	for _, name := range r.order {
		srv := r.servers[name]
		if !srv.Available {
			continue
		}

		overlap := tagOverlap(srv.Capabilities, required)
		if overlap == 0 {
			continue
		}

		s := ScoredServer{
			Name:    name,
			Overlap: overlap,
			Speed:   speedScore(srv),
		}
		if r.bias != nil {
			s.Bias = r.bias(op.Signature, name)
		}
		s.Score = 0.6*s.Overlap + 0.4*s.Speed + s.Bias
		scored = append(scored, s)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Name < scored[j].Name
	})
	return scored
}

// pickMode decides single vs collaboration from dominance and complexity.
func (r *Router) pickMode(scored []ScoredServer, op OperationContext) Mode {
	if len(scored) == 1 {
		return ModeSingle
	}

	dominance := scored[0].Score / (scored[0].Score + scored[1].Score)
	if dominance >= r.cfg.DominanceThreshold && op.Complexity < complexityCollab {
		return ModeSingle
	}
	if op.Complexity >= complexityCollab {
		// Disjoint capability coverage runs in parallel; overlapping
		// candidates hand off sequentially.
		if tagOverlap(r.servers[scored[0].Name].Capabilities, r.servers[scored[1].Name].Capabilities) == 0 {
			return ModeParallel
		}
		return ModeSequential
	}
	if dominance >= r.cfg.DominanceThreshold {
		return ModeSingle
	}
	return ModeSequential
}

// tagOverlap is the fraction of required tags the server covers.
func tagOverlap(have, want []string) float64 {
	if len(want) == 0 {
		return 0
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	hits := 0
	for _, t := range want {
		if set[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}

// speedScore folds latency and load into [0,1], faster and idler is higher.
func speedScore(srv *Server) float64 {
	lat := 1.0 - srv.LatencyMs/1000.0
	if lat < 0 {
		lat = 0
	}
	return 0.7*lat + 0.3*(1.0-srv.Load)
}

// effectiveness derives a learning-record effectiveness from one call.
func effectiveness(success bool, latencyMs, emaLatencyMs float64) float64 {
	if !success {
		return 0.1
	}
	eff := 0.9
	if emaLatencyMs > 0 && latencyMs > 2*emaLatencyMs {
		eff = 0.6
	}
	return eff
}
