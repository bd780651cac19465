package cancellation

import (
	"context"
	"time"

	"github.com/cassiomorais/reconciler/internal/domain/payment"
	infraRedis "github.com/cassiomorais/reconciler/internal/infrastructure/redis"
	"github.com/oklog/ulid/v2"
)

// TransactionManager defines the interface for transaction management.
// This is an application-layer port, not a domain concern.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Queue accepts a task for execution at its RunAt time.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
}

// RecordLoader reloads the payment record a task refers to.
type RecordLoader interface {
	GetByID(ctx context.Context, id ulid.ULID) (*payment.Record, error)
}

// TaskExecutor runs one attempt of a task.
type TaskExecutor interface {
	Run(ctx context.Context, t Task) error
}

// DeadLetter parks tasks that will not be retried.
type DeadLetter interface {
	PublishToDLQ(ctx context.Context, taskID, reason string, payload []byte) error
}

// DelayedScheduler is the Redis sorted-set schedule.
type DelayedScheduler interface {
	Schedule(ctx context.Context, taskID string, runAt time.Time, payload []byte) (bool, error)
}

// DuePromoter moves due tasks onto the ready stream.
type DuePromoter interface {
	PromoteDue(ctx context.Context, now time.Time, limit int64) (int64, error)
	Pending(ctx context.Context) (int64, error)
}

// StreamReader reads ready tasks from a consumer group.
type StreamReader interface {
	Read(ctx context.Context) ([]infraRedis.Message, error)
	ReadPending(ctx context.Context) ([]infraRedis.Message, error)
	Ack(ctx context.Context, messageID string) error
	ReclaimStale(ctx context.Context, minIdle time.Duration) ([]infraRedis.Message, error)
}

// Locker serialises work per key across worker instances.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
