package outbox

import (
	"time"

	"github.com/google/uuid"
)

// AggregatePaymentRecord tags entries emitted for a payment record.
const AggregatePaymentRecord = "payment_record"

const defaultMaxRetries = 5

// Entry is a side effect committed together with the state change that
// caused it and relayed to the broker afterwards.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func NewEntry(aggregateType, aggregateID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		MaxRetries:    defaultMaxRetries,
		CreatedAt:     time.Now(),
	}
}

// CanRetry reports whether a failed relay attempt may be repeated.
func (e *Entry) CanRetry() bool {
	return e.RetryCount+1 < e.MaxRetries
}
