package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greetday/greetday/internal/clock"
	"github.com/greetday/greetday/internal/models"
	"github.com/greetday/greetday/internal/mqs"
	"github.com/greetday/greetday/internal/scheduler"
	"github.com/greetday/greetday/internal/store"
	"github.com/greetday/greetday/internal/strategy"
)

type fakeUserRepo struct {
	users []*models.User
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeUserRepo) FindEventCandidates(ctx context.Context) ([]*models.User, error) {
	return f.users, nil
}

type fakeLogStore struct {
	mu        sync.Mutex
	byID      map[string]*models.MessageLog
	byKey     map[string]*models.MessageLog
}

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{byID: map[string]*models.MessageLog{}, byKey: map[string]*models.MessageLog{}}
}

func (f *fakeLogStore) Insert(ctx context.Context, log *models.MessageLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byKey[log.IdempotencyKey]; exists {
		return models.ErrDuplicateKey
	}
	copy := *log
	f.byID[log.ID] = &copy
	f.byKey[log.IdempotencyKey] = &copy
	return nil
}

func (f *fakeLogStore) FindByID(ctx context.Context, id string) (*models.MessageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return m, nil
}

func (f *fakeLogStore) FindByIdempotencyKey(ctx context.Context, key string) (*models.MessageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byKey[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return m, nil
}

func (f *fakeLogStore) FindScheduledDueBy(ctx context.Context, cutoff time.Time) ([]*models.MessageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.MessageLog
	for _, m := range f.byID {
		if m.Status == models.StatusScheduled && !m.ScheduledSendTime.After(cutoff) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeLogStore) FindOverdue(ctx context.Context, cutoff time.Time) ([]*models.MessageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.MessageLog
	for _, m := range f.byID {
		overdueStatus := m.Status == models.StatusScheduled || m.Status == models.StatusQueued || m.Status == models.StatusSending
		if overdueStatus && !m.ScheduledSendTime.After(cutoff) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeLogStore) CompareAndSetStatus(ctx context.Context, id string, expectedCurrent, next models.Status, update store.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok || m.Status != expectedCurrent {
		return models.ErrStatusConflict
	}
	m.Status = next
	if update.EnqueuedAt != nil {
		m.EnqueuedAt = update.EnqueuedAt
	}
	if update.RetryCount != nil {
		m.RetryCount = *update.RetryCount
	}
	if update.ScheduledSendTime != nil {
		m.ScheduledSendTime = *update.ScheduledSendTime
	}
	return nil
}

func (f *fakeLogStore) DeleteFutureNonTerminalForUser(ctx context.Context, userID string, after time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.byID {
		if m.UserID == userID && m.ScheduledSendTime.After(after) && !m.Status.IsTerminal() {
			m.Status = models.StatusCanceled
		}
	}
	return nil
}

type fakeQueue struct {
	mu        sync.Mutex
	published []mqs.Message
}

func (q *fakeQueue) Publish(ctx context.Context, msg mqs.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, msg)
	return nil
}

func (q *fakeQueue) Shutdown(ctx context.Context) error { return nil }

func TestPrecomputer_SchedulesWithinWindow(t *testing.T) {
	mockClock := clock.NewMock(time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC))
	users := &fakeUserRepo{users: []*models.User{
		{ID: "u1", Name: "Ada", Timezone: "UTC", BirthDate: &models.EventDate{Year: 1990, Month: time.June, Day: 15}},
	}}
	logs := newFakeLogStore()
	registry := strategy.NewRegistry()
	registry.Register(strategy.Birthday{})

	p := &scheduler.Precomputer{Users: users, Logs: logs, Registry: registry, Clock: mockClock}
	require.NoError(t, p.Tick(context.Background()))

	all, _ := logs.FindScheduledDueBy(context.Background(), mockClock.Now().Add(48*time.Hour))
	require.Len(t, all, 1)
	assert.Equal(t, "u1", all[0].UserID)
	assert.Equal(t, strategy.MessageTypeBirthday, all[0].MessageType)
}

func TestPrecomputer_IdempotentOnRerun(t *testing.T) {
	mockClock := clock.NewMock(time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC))
	users := &fakeUserRepo{users: []*models.User{
		{ID: "u1", Name: "Ada", Timezone: "UTC", BirthDate: &models.EventDate{Year: 1990, Month: time.June, Day: 15}},
	}}
	logs := newFakeLogStore()
	registry := strategy.NewRegistry()
	registry.Register(strategy.Birthday{})

	p := &scheduler.Precomputer{Users: users, Logs: logs, Registry: registry, Clock: mockClock}
	require.NoError(t, p.Tick(context.Background()))
	require.NoError(t, p.Tick(context.Background()))

	all, _ := logs.FindScheduledDueBy(context.Background(), mockClock.Now().Add(48*time.Hour))
	assert.Len(t, all, 1, "rerunning precompute for the same day must not duplicate the log")
}

func TestPrecomputer_SkipsUserWithoutEventDate(t *testing.T) {
	mockClock := clock.NewMock(time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC))
	users := &fakeUserRepo{users: []*models.User{{ID: "u1", Name: "Ada", Timezone: "UTC"}}}
	logs := newFakeLogStore()
	registry := strategy.NewRegistry()
	registry.Register(strategy.Birthday{})

	p := &scheduler.Precomputer{Users: users, Logs: logs, Registry: registry, Clock: mockClock}
	require.NoError(t, p.Tick(context.Background()))

	all, _ := logs.FindScheduledDueBy(context.Background(), mockClock.Now().Add(48*time.Hour))
	assert.Empty(t, all)
}

func TestEnqueuer_PublishesDueMessagesAndTransitionsStatus(t *testing.T) {
	mockClock := clock.NewMock(time.Date(2025, time.June, 15, 8, 59, 0, 0, time.UTC))
	logs := newFakeLogStore()
	require.NoError(t, logs.Insert(context.Background(), &models.MessageLog{
		ID: "m1", UserID: "u1", MessageType: "BIRTHDAY", IdempotencyKey: "u1|BIRTHDAY|2025-06-15",
		Status: models.StatusScheduled, ScheduledSendTime: mockClock.Now().Add(30 * time.Second),
	}))
	q := &fakeQueue{}

	e := &scheduler.Enqueuer{Logs: logs, Queue: q, Clock: mockClock, Lookahead: 60 * time.Second}
	require.NoError(t, e.Tick(context.Background()))

	assert.Len(t, q.published, 1)
	got, err := logs.FindByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got.Status)
	require.NotNil(t, got.EnqueuedAt)
}

func TestRecoveryLoop_ReclaimsStuckMessage(t *testing.T) {
	mockClock := clock.NewMock(time.Date(2025, time.June, 15, 9, 30, 0, 0, time.UTC))
	logs := newFakeLogStore()
	enqueuedAt := mockClock.Now().Add(-10 * time.Minute)
	require.NoError(t, logs.Insert(context.Background(), &models.MessageLog{
		ID: "m1", UserID: "u1", MessageType: "BIRTHDAY", IdempotencyKey: "u1|BIRTHDAY|2025-06-15",
		Status: models.StatusScheduled, ScheduledSendTime: enqueuedAt,
	}))
	_ = logs.CompareAndSetStatus(context.Background(), "m1", models.StatusScheduled, models.StatusQueued, store.StatusUpdate{EnqueuedAt: &enqueuedAt})

	r := &scheduler.RecoveryLoop{Logs: logs, Clock: mockClock, Grace: 5 * time.Minute, MaxRetries: 5}
	require.NoError(t, r.Tick(context.Background()))

	got, err := logs.FindByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func TestRecoveryLoop_MarksFailedAtMaxRetries(t *testing.T) {
	mockClock := clock.NewMock(time.Date(2025, time.June, 15, 9, 30, 0, 0, time.UTC))
	logs := newFakeLogStore()
	enqueuedAt := mockClock.Now().Add(-10 * time.Minute)
	require.NoError(t, logs.Insert(context.Background(), &models.MessageLog{
		ID: "m1", UserID: "u1", MessageType: "BIRTHDAY", IdempotencyKey: "u1|BIRTHDAY|2025-06-15",
		Status: models.StatusScheduled, ScheduledSendTime: enqueuedAt, RetryCount: 5,
	}))
	_ = logs.CompareAndSetStatus(context.Background(), "m1", models.StatusScheduled, models.StatusQueued, store.StatusUpdate{EnqueuedAt: &enqueuedAt})

	r := &scheduler.RecoveryLoop{Logs: logs, Clock: mockClock, Grace: 5 * time.Minute, MaxRetries: 5}
	require.NoError(t, r.Tick(context.Background()))

	got, err := logs.FindByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestRecoveryLoop_SkipsLogStillScheduled(t *testing.T) {
	mockClock := clock.NewMock(time.Date(2025, time.June, 15, 9, 30, 0, 0, time.UTC))
	logs := newFakeLogStore()
	require.NoError(t, logs.Insert(context.Background(), &models.MessageLog{
		ID: "m1", UserID: "u1", MessageType: "BIRTHDAY", IdempotencyKey: "u1|BIRTHDAY|2025-06-15",
		Status: models.StatusScheduled, ScheduledSendTime: mockClock.Now().Add(-10 * time.Minute),
	}))

	r := &scheduler.RecoveryLoop{Logs: logs, Clock: mockClock, Grace: 5 * time.Minute, MaxRetries: 5}
	require.NoError(t, r.Tick(context.Background()))

	got, err := logs.FindByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, got.Status, "a log still SCHEDULED past grace is the enqueuer's problem, not recovery's to transition")
}
