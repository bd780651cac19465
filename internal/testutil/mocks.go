package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/cassiomorais/reconciler/internal/domain/outbox"
	"github.com/cassiomorais/reconciler/internal/domain/payment"
	"github.com/cassiomorais/reconciler/internal/domain/user"
	"github.com/cassiomorais/reconciler/internal/notification"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// --- Payment Repository Mock ---

// MockPaymentRepository is an in-memory payment.Repository. Stored records
// are copies, so callers must Update to persist changes.
type MockPaymentRepository struct {
	mu      sync.Mutex
	records map[ulid.ULID]*payment.Record

	CreateFunc                     func(ctx context.Context, r *payment.Record) error
	UpdateFunc                     func(ctx context.Context, r *payment.Record) error
	GetByIDFunc                    func(ctx context.Context, id ulid.ULID) (*payment.Record, error)
	FindByExternalPaymentIDFunc    func(ctx context.Context, id string) (*payment.Record, error)
	FindByExternalMembershipIDFunc func(ctx context.Context, id string) (*payment.Record, error)
	FindLatestPendingFunc          func(ctx context.Context, planSlug string, createdAfter time.Time) (*payment.Record, error)
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{records: make(map[ulid.ULID]*payment.Record)}
}

// Add stores a record without going through Create.
func (m *MockPaymentRepository) Add(r *payment.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = clone(r)
}

// All returns copies of every stored record.
func (m *MockPaymentRepository) All() []*payment.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*payment.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, clone(r))
	}
	return out
}

func (m *MockPaymentRepository) Create(ctx context.Context, r *payment.Record) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.receiptTaken(r) {
		return domainErrors.ErrDuplicateExternalPaymentID
	}
	m.records[r.ID] = clone(r)
	return nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, r *payment.Record) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.ID]; !ok {
		return domainErrors.ErrPaymentNotFound
	}
	if m.receiptTaken(r) {
		return domainErrors.ErrDuplicateExternalPaymentID
	}
	m.records[r.ID] = clone(r)
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id ulid.ULID) (*payment.Record, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clone(r), nil
}

func (m *MockPaymentRepository) FindByExternalPaymentID(ctx context.Context, id string) (*payment.Record, error) {
	if m.FindByExternalPaymentIDFunc != nil {
		return m.FindByExternalPaymentIDFunc(ctx, id)
	}
	return m.newest(func(r *payment.Record) bool { return r.ExternalPaymentID == id })
}

func (m *MockPaymentRepository) FindByExternalMembershipID(ctx context.Context, id string) (*payment.Record, error) {
	if m.FindByExternalMembershipIDFunc != nil {
		return m.FindByExternalMembershipIDFunc(ctx, id)
	}
	return m.newest(func(r *payment.Record) bool { return r.ExternalMembershipID == id })
}

func (m *MockPaymentRepository) FindLatestPending(ctx context.Context, planSlug string, createdAfter time.Time) (*payment.Record, error) {
	if m.FindLatestPendingFunc != nil {
		return m.FindLatestPendingFunc(ctx, planSlug, createdAfter)
	}
	return m.newest(func(r *payment.Record) bool {
		return r.PlanSlug == planSlug && r.Status == payment.StatusPending && r.CreatedAt.After(createdAfter)
	})
}

func (m *MockPaymentRepository) newest(match func(*payment.Record) bool) (*payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *payment.Record
	for _, r := range m.records {
		if !match(r) {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) ||
			(r.CreatedAt.Equal(best.CreatedAt) && r.ID.Compare(best.ID) > 0) {
			best = r
		}
	}
	if best == nil {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clone(best), nil
}

func (m *MockPaymentRepository) receiptTaken(r *payment.Record) bool {
	if r.ExternalPaymentID == "" {
		return false
	}
	for id, other := range m.records {
		if id != r.ID && other.ExternalPaymentID == r.ExternalPaymentID {
			return true
		}
	}
	return false
}

func clone(r *payment.Record) *payment.Record {
	c := *r
	if r.PaidAt != nil {
		t := *r.PaidAt
		c.PaidAt = &t
	}
	return &c
}

// --- User Repository Mock ---

type MockUserRepository struct {
	mu    sync.Mutex
	users map[string]*user.User

	GetByEmailFunc func(ctx context.Context, email string) (*user.User, error)
	UpdateFunc     func(ctx context.Context, u *user.User) error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*user.User)}
}

func (m *MockUserRepository) AddUser(u *user.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *u
	m.users[strings.ToLower(u.Email)] = &c
}

// GetUser returns the stored copy for assertions, or nil.
func (m *MockUserRepository) GetUser(email string) *user.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil
	}
	c := *u
	return &c
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	if u := m.GetUser(email); u != nil {
		return u, nil
	}
	return nil, domainErrors.ErrUserNotFound
}

func (m *MockUserRepository) Update(ctx context.Context, u *user.User) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, u)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := m.users[key]; !ok {
		return domainErrors.ErrUserNotFound
	}
	c := *u
	m.users[key] = &c
	return nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository keeps entries in memory and records state changes.
type MockOutboxRepository struct {
	mu        sync.Mutex
	Entries   []*outbox.Entry
	Published []uuid.UUID
	Failed    []uuid.UUID

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	GetPendingFunc    func(ctx context.Context, limit int) ([]*outbox.Entry, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range m.Entries {
		if e.Status == outbox.StatusPending && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, id)
	for _, e := range m.Entries {
		if e.ID == id {
			e.Status = outbox.StatusPublished
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failed = append(m.Failed, id)
	for _, e := range m.Entries {
		if e.ID == id {
			e.RetryCount++
			if e.RetryCount >= e.MaxRetries {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}

// --- Notifier Mock ---

// MockNotifier records every notification it is asked to send.
type MockNotifier struct {
	mu                 sync.Mutex
	BuyerConfirmations []notification.PurchaseNotice
	OperatorNotices    []notification.PurchaseNotice
	Alerts             []notification.CancellationAlert

	Err error
}

func (m *MockNotifier) SendBuyerConfirmation(_ context.Context, n notification.PurchaseNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BuyerConfirmations = append(m.BuyerConfirmations, n)
	return m.Err
}

func (m *MockNotifier) SendOperatorNotice(_ context.Context, n notification.PurchaseNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OperatorNotices = append(m.OperatorNotices, n)
	return m.Err
}

func (m *MockNotifier) SendCancellationAlert(_ context.Context, a notification.CancellationAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, a)
	return m.Err
}

// --- Membership Canceller Mock ---

type MockCanceller struct {
	mu    sync.Mutex
	Calls []string

	CancelMembershipFunc func(ctx context.Context, membershipID string) bool
}

func (m *MockCanceller) CancelMembership(ctx context.Context, membershipID string) bool {
	m.mu.Lock()
	m.Calls = append(m.Calls, membershipID)
	m.mu.Unlock()
	if m.CancelMembershipFunc != nil {
		return m.CancelMembershipFunc(ctx, membershipID)
	}
	return true
}

// --- Cancellation Scheduler Mock ---

type MockCancellationScheduler struct {
	mu        sync.Mutex
	Scheduled []*payment.Record

	ScheduleCancellationFunc func(ctx context.Context, r *payment.Record) error
}

func (m *MockCancellationScheduler) ScheduleCancellation(ctx context.Context, r *payment.Record) error {
	if m.ScheduleCancellationFunc != nil {
		return m.ScheduleCancellationFunc(ctx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scheduled = append(m.Scheduled, clone(r))
	return nil
}
