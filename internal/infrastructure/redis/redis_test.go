package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/cassiomorais/reconciler/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestNewClient_Connects(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := NewClient(context.Background(), &config.RedisConfig{Host: mr.Host(), Port: port})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestConnectPolicy(t *testing.T) {
	p := connectPolicy(0, 0)
	assert.Equal(t, uint(5), p.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second}, p.Backoff)

	p = connectPolicy(1, time.Second)
	assert.Equal(t, uint(1), p.Attempts)
	assert.Empty(t, p.Backoff)
}

func TestDistributedLock_AcquireRelease(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	first := NewDistributedLock(client, "payment:1", time.Minute)
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:payment:1"))

	second := NewDistributedLock(client, "payment:1", time.Minute)
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, second.Release(ctx), "releasing an unheld lock is a no-op")

	require.NoError(t, first.Extend(ctx, 2*time.Minute))
	assert.Equal(t, 2*time.Minute, mr.TTL("lock:payment:1"))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("lock:payment:1"))
}

func TestDistributedLock_ExpiredLockCannotBeReleased(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	lock := NewDistributedLock(client, "payment:2", time.Second)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	assert.Error(t, lock.Extend(ctx, time.Second))
	assert.Error(t, lock.Release(ctx))
}

func TestLocker_WithLock(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	locker := NewLocker(client, time.Minute)

	ran := false
	err := locker.WithLock(ctx, "cancel:a", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:cancel:a"))

		// A second holder is turned away while the first runs.
		inner := locker.WithLock(ctx, "cancel:a", func(context.Context) error {
			t.Fatal("must not run")
			return nil
		})
		assert.ErrorIs(t, inner, domainErrors.ErrLockAcquisitionFailed)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:cancel:a"))
}

func TestLocker_WithLockExtendsWhileRunning(t *testing.T) {
	mr, client := newTestClient(t)
	locker := &Locker{client: client, ttl: time.Minute, extendEvery: 10 * time.Millisecond}

	err := locker.WithLock(context.Background(), "cancel:b", func(ctx context.Context) error {
		mr.SetTTL("lock:cancel:b", time.Second)
		assert.Eventually(t, func() bool {
			return mr.TTL("lock:cancel:b") == time.Minute
		}, time.Second, 5*time.Millisecond)
		return nil
	})

	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:cancel:b"))
}

func TestDelayedQueue_ScheduleIsDeduplicated(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	q := NewDelayedQueue(client, CancellationScheduleKey, CancellationReadyStream)
	now := time.Now()

	added, err := q.Schedule(ctx, "rec-1", now.Add(5*time.Second), []byte(`{"attempt":1}`))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = q.Schedule(ctx, "rec-1", now.Add(time.Second), []byte(`{"attempt":9}`))
	require.NoError(t, err)
	assert.False(t, added)

	n, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDelayedQueue_PromoteDue(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	q := NewDelayedQueue(client, CancellationScheduleKey, CancellationReadyStream)
	now := time.Now()

	_, err := q.Schedule(ctx, "due", now.Add(-time.Second), []byte(`{"payment_id":"due"}`))
	require.NoError(t, err)
	_, err = q.Schedule(ctx, "later", now.Add(time.Hour), []byte(`{"payment_id":"later"}`))
	require.NoError(t, err)

	moved, err := q.PromoteDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	entries, err := client.XRange(ctx, CancellationReadyStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "due", entries[0].Values["task_id"])
	assert.Equal(t, `{"payment_id":"due"}`, entries[0].Values["payload"])

	// A promoted id may be scheduled again.
	added, err := q.Schedule(ctx, "due", now.Add(10*time.Second), []byte(`{"attempt":2}`))
	require.NoError(t, err)
	assert.True(t, added)
}

func TestStreams_ReadAckAndDLQ(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	consumer := NewStreamConsumer(client, CancellationReadyStream, "workers", "w1", 10, 10*time.Millisecond)
	require.NoError(t, consumer.CreateGroup(ctx))
	require.NoError(t, consumer.CreateGroup(ctx), "existing group is not an error")

	q := NewDelayedQueue(client, CancellationScheduleKey, CancellationReadyStream)
	_, err := q.Schedule(ctx, "rec-1", time.Now().Add(-time.Second), []byte(`{"attempt":1}`))
	require.NoError(t, err)
	_, err = q.PromoteDue(ctx, time.Now(), 10)
	require.NoError(t, err)

	msgs, err := consumer.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "rec-1", msgs[0].TaskID)
	assert.JSONEq(t, `{"attempt":1}`, string(msgs[0].Payload))
	require.NoError(t, consumer.Ack(ctx, msgs[0].ID))

	msgs, err = consumer.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	producer := NewStreamProducer(client)
	require.NoError(t, producer.PublishToDLQ(ctx, "rec-1", "attempts exhausted", []byte(`{}`)))
	dlq, err := client.XRange(ctx, CancellationDLQStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	assert.Equal(t, "attempts exhausted", dlq[0].Values["reason"])
}

func TestStreams_ReclaimStale(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	crashed := NewStreamConsumer(client, CancellationReadyStream, "workers", "crashed", 10, 10*time.Millisecond)
	require.NoError(t, crashed.CreateGroup(ctx))
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: CancellationReadyStream,
		Values: map[string]any{"task_id": "rec-9", "payload": "{}"},
	}).Err())

	msgs, err := crashed.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	survivor := NewStreamConsumer(client, CancellationReadyStream, "workers", "survivor", 10, 10*time.Millisecond)
	claimed, err := survivor.ReclaimStale(ctx, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "rec-9", claimed[0].TaskID)

	// Not yet idle long enough.
	again, err := survivor.ReclaimStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStreams_SameNameRestartRecoversPending(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	first := NewStreamConsumer(client, CancellationReadyStream, "workers", "worker-1", 10, 10*time.Millisecond)
	require.NoError(t, first.CreateGroup(ctx))
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: CancellationReadyStream,
		Values: map[string]any{"task_id": "rec-4", "payload": "{}"},
	}).Err())
	msgs, err := first.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	restarted := NewStreamConsumer(client, CancellationReadyStream, "workers", "worker-1", 10, 10*time.Millisecond)

	fresh, err := restarted.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	pending, err := restarted.ReadPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "rec-4", pending[0].TaskID)

	reclaimed, err := restarted.ReclaimStale(ctx, 0)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, "rec-4", reclaimed[0].TaskID)

	require.NoError(t, restarted.Ack(ctx, reclaimed[0].ID))
	pending, err = restarted.ReadPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
