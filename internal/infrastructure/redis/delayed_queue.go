package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CancellationScheduleKey prefixes the sorted set and payload hash backing
// the compensating cancellation schedule.
const CancellationScheduleKey = "cancellations:scheduled"

var (
	// A task id is scheduled at most once until it is promoted.
	scheduleScript = redis.NewScript(`
		local added = redis.call("ZADD", KEYS[1], "NX", ARGV[2], ARGV[1])
		if added == 1 then
			redis.call("HSET", KEYS[2], ARGV[1], ARGV[3])
		end
		return added
	`)

	promoteScript = redis.NewScript(`
		local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
		for _, id in ipairs(ids) do
			local payload = redis.call("HGET", KEYS[2], id)
			redis.call("ZREM", KEYS[1], id)
			redis.call("HDEL", KEYS[2], id)
			if payload then
				redis.call("XADD", KEYS[3], "*", "task_id", id, "payload", payload)
			end
		end
		return #ids
	`)
)

// DelayedQueue holds tasks in a sorted set scored by their due time (unix
// milliseconds) and moves due tasks onto a stream.
type DelayedQueue struct {
	client   *redis.Client
	schedule string
	payloads string
	stream   string
}

func NewDelayedQueue(client *redis.Client, key, stream string) *DelayedQueue {
	return &DelayedQueue{
		client:   client,
		schedule: key,
		payloads: key + ":payloads",
		stream:   stream,
	}
}

// Schedule registers the task to become ready at runAt. It reports false
// when a task with the same id is already waiting.
func (q *DelayedQueue) Schedule(ctx context.Context, taskID string, runAt time.Time, payload []byte) (bool, error) {
	added, err := scheduleScript.Run(ctx, q.client,
		[]string{q.schedule, q.payloads},
		taskID, runAt.UnixMilli(), string(payload),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("schedule task %s: %w", taskID, err)
	}
	return added == 1, nil
}

// PromoteDue moves up to limit tasks due at now onto the stream.
func (q *DelayedQueue) PromoteDue(ctx context.Context, now time.Time, limit int64) (int64, error) {
	if limit <= 0 {
		limit = 100
	}
	n, err := promoteScript.Run(ctx, q.client,
		[]string{q.schedule, q.payloads, q.stream},
		now.UnixMilli(), limit,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("promote due tasks: %w", err)
	}
	return n, nil
}

// Pending returns the number of tasks still waiting.
func (q *DelayedQueue) Pending(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.schedule).Result()
	if err != nil {
		return 0, fmt.Errorf("count scheduled tasks: %w", err)
	}
	return n, nil
}
