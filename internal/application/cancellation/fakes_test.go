package cancellation

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	infraRedis "github.com/cassiomorais/reconciler/internal/infrastructure/redis"
)

type fakeQueue struct {
	mu    sync.Mutex
	tasks []Task
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, t)
	return nil
}

type dlqEntry struct {
	taskID  string
	reason  string
	payload []byte
}

type fakeDLQ struct {
	entries []dlqEntry
	err     error
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, taskID, reason string, payload []byte) error {
	if d.err != nil {
		return d.err
	}
	d.entries = append(d.entries, dlqEntry{taskID, reason, payload})
	return nil
}

type fakeExecutor struct {
	runs []Task
	err  error
}

func (e *fakeExecutor) Run(_ context.Context, t Task) error {
	e.runs = append(e.runs, t)
	return e.err
}

type scheduled struct {
	id      string
	runAt   time.Time
	payload []byte
}

type fakeSchedule struct {
	items map[string]scheduled
	due   int64
}

func newFakeSchedule() *fakeSchedule {
	return &fakeSchedule{items: make(map[string]scheduled)}
}

func (s *fakeSchedule) Schedule(_ context.Context, id string, runAt time.Time, payload []byte) (bool, error) {
	if _, ok := s.items[id]; ok {
		return false, nil
	}
	s.items[id] = scheduled{id, runAt, payload}
	return true, nil
}

func (s *fakeSchedule) PromoteDue(_ context.Context, now time.Time, _ int64) (int64, error) {
	var moved int64
	for id, it := range s.items {
		if !it.runAt.After(now) {
			delete(s.items, id)
			moved++
		}
	}
	s.due += moved
	return moved, nil
}

func (s *fakeSchedule) Pending(context.Context) (int64, error) {
	return int64(len(s.items)), nil
}

type fakeStream struct {
	pending []infraRedis.Message
	stale   []infraRedis.Message
	acked   []string
	ackErr  error
}

func (s *fakeStream) Read(context.Context) ([]infraRedis.Message, error) { return nil, nil }

func (s *fakeStream) ReadPending(context.Context) ([]infraRedis.Message, error) {
	return s.pending, nil
}

func (s *fakeStream) Ack(_ context.Context, id string) error {
	if s.ackErr != nil {
		return s.ackErr
	}
	s.acked = append(s.acked, id)
	return nil
}

func (s *fakeStream) ReclaimStale(context.Context, time.Duration) ([]infraRedis.Message, error) {
	return s.stale, nil
}

type fakeLocker struct {
	held map[string]bool
	keys []string
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l.keys = append(l.keys, key)
	if l.held[key] {
		return fmt.Errorf("%w: %s", domainErrors.ErrLockAcquisitionFailed, key)
	}
	return fn(ctx)
}
