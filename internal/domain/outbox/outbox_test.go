package outbox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	payload := map[string]any{
		"payment_id":    "01HZX3V4J8Q2W5N6M7K8P9R0ST",
		"membership_id": "mem_123",
	}

	entry := NewEntry(AggregatePaymentRecord, "01HZX3V4J8Q2W5N6M7K8P9R0ST", "membership.cancellation.requested", payload)

	require.NotNil(t, entry)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, "payment_record", entry.AggregateType)
	assert.Equal(t, "01HZX3V4J8Q2W5N6M7K8P9R0ST", entry.AggregateID)
	assert.Equal(t, "membership.cancellation.requested", entry.EventType)
	assert.Equal(t, payload, entry.Payload)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Equal(t, 5, entry.MaxRetries)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Nil(t, entry.PublishedAt)
}

func TestNewEntry_UniqueIDs(t *testing.T) {
	a := NewEntry(AggregatePaymentRecord, "x", "e", nil)
	b := NewEntry(AggregatePaymentRecord, "x", "e", nil)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestEntry_CanRetry(t *testing.T) {
	e := NewEntry(AggregatePaymentRecord, "x", "e", nil)

	assert.True(t, e.CanRetry())
	e.RetryCount = 3
	assert.True(t, e.CanRetry())
	e.RetryCount = 4
	assert.False(t, e.CanRetry())
}
