package hook

import (
	"hookwise/internal/routing"
)

// Stage names, in lifecycle order.
const (
	StageSessionStart      = "SessionStart"
	StagePreCapabilityUse  = "PreCapabilityUse"
	StagePostCapabilityUse = "PostCapabilityUse"
	StagePreCompress       = "PreCompress"
	StageNotify            = "Notify"
	StageStop              = "Stop"
	StageSubTaskStop       = "SubTaskStop"
)

// Stages lists every lifecycle stage in order.
var Stages = []string{
	StageSessionStart,
	StagePreCapabilityUse,
	StagePostCapabilityUse,
	StagePreCompress,
	StageNotify,
	StageStop,
	StageSubTaskStop,
}

// Output statuses.
const (
	StatusOK       = "ok"
	StatusNoop     = "noop"
	StatusDegraded = "degraded"
)

// Payload carries the stage-specific context from the host.
type Payload struct {
	// Free-text and structural context signals
	Text       string   `json:"text,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
	Manifests  []string `json:"manifests,omitempty"`
	Directives []string `json:"directives,omitempty"`

	// PreCapabilityUse
	Capability string   `json:"capability,omitempty"`
	Required   []string `json:"required,omitempty"`
	Complexity float64  `json:"complexity,omitempty"`

	// PostCapabilityUse
	Server    string  `json:"server,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Success   *bool   `json:"success,omitempty"`

	// PreCompress
	Content string `json:"content,omitempty"`
	Origin  string `json:"origin,omitempty"`

	// SubTaskStop
	TaskID        string   `json:"task_id,omitempty"`
	Effectiveness *float64 `json:"effectiveness,omitempty"`
}

// StageInput is the structured stdin document for one stage invocation.
type StageInput struct {
	Event     string  `json:"event"`
	SessionID string  `json:"session_id"`
	Payload   Payload `json:"payload"`
	Pressure  float64 `json:"pressure,omitempty"`
}

// StageMetrics is the per-invocation measurement block in the output.
type StageMetrics struct {
	ElapsedMs int64   `json:"elapsed_ms"`
	CacheHit  bool    `json:"cache_hit,omitempty"`
	Ratio     float64 `json:"ratio,omitempty"`
	Quality   float64 `json:"quality,omitempty"`
}

// StageOutput is the structured stdout document for one stage invocation.
// A degraded stage passes content through unchanged and activates nothing.
type StageOutput struct {
	Status           string                  `json:"status"`
	Stage            string                  `json:"stage"`
	SessionID        string                  `json:"session_id,omitempty"`
	Plan             *routing.ActivationPlan `json:"plan,omitempty"`
	Patterns         []string                `json:"patterns,omitempty"`
	Content          string                  `json:"content,omitempty"`
	ContextInjection string                  `json:"context_injection,omitempty"`
	Metrics          StageMetrics            `json:"metrics"`
}

// noopOutput is the safe degraded result: content passes through untouched
// and no capability is activated.
func noopOutput(stage string, in StageInput) StageOutput {
	return StageOutput{
		Status:    StatusDegraded,
		Stage:     stage,
		SessionID: in.SessionID,
		Content:   in.Payload.Content,
	}
}
