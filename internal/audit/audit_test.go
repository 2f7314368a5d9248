package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/ntbk/internal/models"
	"github.com/fentz26/ntbk/internal/store"
)

func TestRecord(t *testing.T) {
	s := store.NewMemory()
	w := NewWriter(s)
	ctx := context.Background()

	inputs := map[string]string{"intent": "draft", "prompt": "cache"}
	entry, err := w.Record(ctx, ActionSubmit, inputs, "pending", "t-1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Len(t, entry.InputsHash, 64)
	assert.False(t, entry.Timestamp.IsZero())

	again, err := w.Record(ctx, ActionCancel, inputs, "cancelled", "t-1", "user")
	require.NoError(t, err)
	assert.Equal(t, entry.InputsHash, again.InputsHash, "same inputs hash the same")
	assert.NotEqual(t, entry.ID, again.ID)

	entries, err := s.ListAudit(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionSubmit, entries[0].Action)
	assert.Equal(t, ActionCancel, entries[1].Action)
}

func TestHashInputs(t *testing.T) {
	assert.NotEqual(t, hashInputs("a"), hashInputs("b"))
	assert.Equal(t, "hash_error", hashInputs(make(chan int)))
}

type failingSink struct{}

func (failingSink) WriteAudit(context.Context, *models.AuditEntry) error {
	return errors.New("disk full")
}

func TestRecord_SinkError(t *testing.T) {
	_, err := NewWriter(failingSink{}).Record(context.Background(), ActionFail, nil, "failed", "t", "")
	assert.EqualError(t, err, "disk full")
}
