package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType names one kind of conversation event.
type AuditEventType string

const (
	// Request lifecycle
	AuditRequestStart AuditEventType = "request_start"
	AuditRequestEnd   AuditEventType = "request_end"

	// Confirmation sub-protocol
	AuditConfirmPresented  AuditEventType = "confirm_presented"
	AuditConfirmResolved   AuditEventType = "confirm_resolved"
	AuditConfirmSuperseded AuditEventType = "confirm_superseded"

	// Artifacts and documents
	AuditArtifactSaved   AuditEventType = "artifact_saved"
	AuditDocumentUpload  AuditEventType = "document_upload"
	AuditTranscriptClear AuditEventType = "transcript_clear"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	Endpoint   string                 `json:"endpoint,omitempty"`
	Target     string                 `json:"target,omitempty"`
	Outcome    string                 `json:"outcome,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger = &AuditLogger{}
)

// AuditLogger writes conversation events as JSON lines to
// <logs dir>/<date>_audit.jsonl. It is a no-op outside debug mode.
type AuditLogger struct{}

// initAudit opens the audit file. Called by Initialize in debug mode.
func initAudit(dir string) error {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}
	date := time.Now().Format("2006-01-02")
	path := filepath.Join(dir, fmt.Sprintf("%s_audit.jsonl", date))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	return auditLogger
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}
	auditFile.Write(append(data, '\n'))
}

// RequestStart logs a backend request being sent.
func (a *AuditLogger) RequestStart(endpoint string) {
	a.Log(AuditEvent{EventType: AuditRequestStart, Endpoint: endpoint, Success: true})
}

// RequestEnd logs how a backend request ended. outcome is one of
// structured, binary, failure, transport or stale.
func (a *AuditLogger) RequestEnd(endpoint, outcome string, duration time.Duration, err error) {
	e := AuditEvent{
		EventType:  AuditRequestEnd,
		Endpoint:   endpoint,
		Outcome:    outcome,
		Success:    err == nil,
		DurationMs: duration.Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	a.Log(e)
}

// ConfirmPresented logs options shown to the user.
func (a *AuditLogger) ConfirmPresented(confirmationID, kind string, options int) {
	a.Log(AuditEvent{
		EventType: AuditConfirmPresented,
		Target:    confirmationID,
		Success:   true,
		Fields:    map[string]interface{}{"kind": kind, "options": options},
	})
}

// ConfirmResolved logs the option the user activated.
func (a *AuditLogger) ConfirmResolved(confirmationID, action string) {
	a.Log(AuditEvent{
		EventType: AuditConfirmResolved,
		Target:    confirmationID,
		Success:   true,
		Fields:    map[string]interface{}{"action": action},
	})
}

// ConfirmSuperseded logs options that expired unanswered.
func (a *AuditLogger) ConfirmSuperseded(confirmationID string) {
	a.Log(AuditEvent{EventType: AuditConfirmSuperseded, Target: confirmationID, Success: true})
}

// ArtifactSaved logs an artifact written to disk.
func (a *AuditLogger) ArtifactSaved(path string, size int) {
	a.Log(AuditEvent{
		EventType: AuditArtifactSaved,
		Target:    path,
		Success:   true,
		Fields:    map[string]interface{}{"bytes": size},
	})
}

// DocumentUpload logs a reference document upload.
func (a *AuditLogger) DocumentUpload(name string, ok bool, message string) {
	e := AuditEvent{EventType: AuditDocumentUpload, Target: name, Success: ok}
	if !ok {
		e.Error = message
	}
	a.Log(e)
}

// TranscriptClear logs the transcript being emptied.
func (a *AuditLogger) TranscriptClear(messages int) {
	a.Log(AuditEvent{
		EventType: AuditTranscriptClear,
		Success:   true,
		Fields:    map[string]interface{}{"messages": messages},
	})
}
