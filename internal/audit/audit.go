// Package audit records a decision entry for every task state change.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fentz26/ntbk/internal/models"
)

// Actions recorded by the task client.
const (
	ActionSubmit   = "task.submit"
	ActionDispatch = "task.dispatch"
	ActionComplete = "task.complete"
	ActionFallback = "task.fallback"
	ActionFail     = "task.fail"
	ActionCancel   = "task.cancel"
)

// Sink persists audit entries. store.Store satisfies it.
type Sink interface {
	WriteAudit(ctx context.Context, entry *models.AuditEntry) error
}

// Writer builds and persists audit entries.
type Writer struct {
	sink Sink
	now  func() time.Time
}

// NewWriter creates a writer backed by sink.
func NewWriter(sink Sink) *Writer {
	return &Writer{sink: sink, now: time.Now}
}

// Record writes an entry for a state-mutating action. inputs are hashed,
// never stored.
func (w *Writer) Record(ctx context.Context, action string, inputs any, outcome, taskID, details string) (*models.AuditEntry, error) {
	entry := &models.AuditEntry{
		ID:         uuid.NewString(),
		Action:     action,
		InputsHash: hashInputs(inputs),
		Outcome:    outcome,
		TaskID:     taskID,
		Details:    details,
		Timestamp:  w.now().UTC(),
	}
	if err := w.sink.WriteAudit(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
