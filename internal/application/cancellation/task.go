// Package cancellation cancels the provider membership created by a one-time
// purchase: it schedules the task, relays it to the delayed queue and runs
// it with a bounded retry budget.
package cancellation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/reconciler/internal/domain/outbox"
)

// EventCancellationRequested is the outbox event type of a scheduled task.
const EventCancellationRequested = "membership.cancellation.requested"

// Task cancels the membership attached to one payment record.
type Task struct {
	PaymentID    string    `json:"payment_id"`
	MembershipID string    `json:"membership_id"`
	Email        string    `json:"email,omitempty"`
	Attempt      int       `json:"attempt"`
	RunAt        time.Time `json:"run_at"`
}

func (t Task) Payload() ([]byte, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal cancellation task: %w", err)
	}
	return b, nil
}

func TaskFromPayload(b []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(b, &t); err != nil {
		return Task{}, fmt.Errorf("unmarshal cancellation task: %w", err)
	}
	if t.PaymentID == "" {
		return Task{}, fmt.Errorf("cancellation task without payment id")
	}
	if t.Attempt < 1 {
		t.Attempt = 1
	}
	return t, nil
}

func (t Task) outboxPayload() map[string]any {
	return map[string]any{
		"payment_id":    t.PaymentID,
		"membership_id": t.MembershipID,
		"email":         t.Email,
		"attempt":       t.Attempt,
		"run_at":        t.RunAt.UTC().Format(time.RFC3339Nano),
	}
}

// TaskFromOutbox decodes the task stored in an outbox entry.
func TaskFromOutbox(e *outbox.Entry) (Task, error) {
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return Task{}, fmt.Errorf("marshal outbox payload %s: %w", e.ID, err)
	}
	t, err := TaskFromPayload(b)
	if err != nil {
		return Task{}, fmt.Errorf("outbox entry %s: %w", e.ID, err)
	}
	return t, nil
}
