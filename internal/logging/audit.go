package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT TRAIL - structured JSONL record of every external interaction
// =============================================================================

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Stage lifecycle
	AuditStageStart    AuditEventType = "stage_start"
	AuditStageComplete AuditEventType = "stage_complete"
	AuditStageError    AuditEventType = "stage_error"
	AuditStageRetry    AuditEventType = "stage_retry"

	// External service calls
	AuditReasoningRequest  AuditEventType = "reasoning_request"
	AuditReasoningResponse AuditEventType = "reasoning_response"
	AuditReasoningError    AuditEventType = "reasoning_error"
	AuditSearchRequest     AuditEventType = "search_request"
	AuditSearchResponse    AuditEventType = "search_response"
	AuditSearchError       AuditEventType = "search_error"

	// Analysis lifecycle
	AuditAnalysisStart    AuditEventType = "analysis_start"
	AuditAnalysisComplete AuditEventType = "analysis_complete"
	AuditAnalysisFailed   AuditEventType = "analysis_failed"
)

// AuditEvent is one JSONL record in the audit trail
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	Type       AuditEventType         `json:"type"`
	AnalysisID string                 `json:"analysis_id,omitempty"`
	Stage      string                 `json:"stage,omitempty"`
	Detail     string                 `json:"detail,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// InitAudit opens the audit trail file. No-op unless debug mode is enabled.
func InitAudit() error {
	if !IsDebugMode() || logsDir == "" {
		return nil
	}
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		return nil
	}
	path := filepath.Join(logsDir, "audit.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit trail: %w", err)
	}
	auditFile = f
	return nil
}

// Audit emits one event to the audit trail. Safe to call when the trail is
// not initialized; the event is dropped.
func Audit(ev AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	auditFile.Write(append(data, '\n'))
}

// AuditStage records a stage lifecycle event for one analysis
func AuditStage(typ AuditEventType, analysisID, stage, detail string) {
	Audit(AuditEvent{Type: typ, AnalysisID: analysisID, Stage: stage, Detail: detail})
}

// AuditService records an external service interaction
func AuditService(typ AuditEventType, analysisID string, fields map[string]interface{}) {
	Audit(AuditEvent{Type: typ, AnalysisID: analysisID, Fields: fields})
}

// CloseAudit closes the audit trail file (call at shutdown)
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}
