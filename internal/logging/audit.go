// Audit logging for hook stage invocations. Every stage run appends one
// structured event per significant operation to .hookwise/logs/audit.jsonl.
// The file is append-only JSONL so concurrent stage invocations from parallel
// sessions never corrupt each other's records.
package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event.
type AuditEventType string

const (
	// Stage lifecycle events
	AuditStageStart    AuditEventType = "stage_start"
	AuditStageComplete AuditEventType = "stage_complete"
	AuditStageTimeout  AuditEventType = "stage_timeout"
	AuditStageDegraded AuditEventType = "stage_degraded"

	// Routing events
	AuditPlanSelected    AuditEventType = "plan_selected"
	AuditFallbackUsed    AuditEventType = "fallback_used"
	AuditServerUnhealthy AuditEventType = "server_unhealthy"

	// Compression events
	AuditCompressApplied AuditEventType = "compress_applied"
	AuditCompressHalted  AuditEventType = "compress_halted"

	// Cache events
	AuditCachePromotion AuditEventType = "cache_promotion"
	AuditCacheRebuild   AuditEventType = "cache_rebuild"

	// Learning events
	AuditAdaptationCreated AuditEventType = "adaptation_created"
	AuditAdaptationDecayed AuditEventType = "adaptation_decayed"
)

// AuditEvent is one structured audit record.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	SessionID  string                 `json:"session,omitempty"`
	Stage      string                 `json:"stage,omitempty"`
	Target     string                 `json:"target,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditMu   sync.Mutex
	auditFile *os.File
)

// Audit appends an event to the audit trail. Silent no-op when debug mode is
// off or when the logs directory is unavailable.
func Audit(ev AuditEvent) {
	if !IsDebugMode() || logsDir == "" {
		return
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile == nil {
		path := filepath.Join(logsDir, "audit.jsonl")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		auditFile = f
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	auditFile.Write(append(data, '\n'))
}

// AuditStage records a stage invocation outcome.
func AuditStage(stage, sessionID string, success bool, elapsed time.Duration, errMsg string) {
	ev := AuditEvent{
		EventType:  AuditStageComplete,
		SessionID:  sessionID,
		Stage:      stage,
		Success:    success,
		DurationMs: elapsed.Milliseconds(),
		Error:      errMsg,
	}
	if !success {
		ev.EventType = AuditStageDegraded
	}
	Audit(ev)
}

// CloseAudit closes the audit file (call at stage shutdown).
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}
