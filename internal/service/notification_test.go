package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EstouBem/internal/cache"
	"EstouBem/internal/model"
	"EstouBem/internal/repository"
	"EstouBem/pkg/breaker"
	"EstouBem/pkg/email"
	pkgerrors "EstouBem/pkg/errors"
	"EstouBem/pkg/sms"
)

var t0 = time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

type notifyFixture struct {
	store  *repository.MemoryStore
	clock  *fakeClock
	email  *email.MockClient
	sms    *sms.MockClient
	locker *cache.MemoryLocker
	svc    *NotificationService
}

func newNotifyFixture(t *testing.T, mutate func(*NotificationOptions)) *notifyFixture {
	t.Helper()

	f := &notifyFixture{
		store:  repository.NewMemoryStore(),
		clock:  newClock(t0),
		email:  email.NewMockClient(),
		sms:    sms.NewMockClient(),
		locker: cache.NewMemoryLocker(),
	}

	opts := NotificationOptions{
		Threshold:      48 * time.Hour,
		AttemptTimeout: time.Second,
		MaxAttempts:    3,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
		Location:       brt,
		Email:          f.email,
		SMS:            f.sms,
		Locker:         f.locker,
		Now:            f.clock.Now,
		NextID:         sequence(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.svc = NewNotificationService(f.store, opts)

	seedMonitoredUser(t, f.store, "u1", "Maria", t0.Add(-24*time.Hour))
	seedCheckIn(t, f.store, "u1", t0)
	return f
}

func (f *notifyFixture) marker(t *testing.T) *model.NotificationMarker {
	t.Helper()
	m, err := f.store.GetMarker(context.Background(), "u1")
	require.NoError(t, err)
	return m
}

func TestNotifyDeliversOncePerEpisode(t *testing.T) {
	f := newNotifyFixture(t, nil)
	ctx := context.Background()

	f.clock.Set(t0.Add(48 * time.Hour))
	require.NoError(t, f.svc.Notify(ctx, "u1"))

	assert.Equal(t, 1, f.email.CallCount())
	assert.Equal(t, 1, f.sms.CallCount())
	assert.Equal(t, testPhone, f.sms.Calls[0].Phone)
	assert.Equal(t, "ana@example.com", f.email.Calls[0].To)
	assert.Contains(t, f.email.Calls[0].Body, "Maria")
	assert.Contains(t, f.email.Calls[0].Body, "não é um alerta de emergência")

	m := f.marker(t)
	assert.Equal(t, int64(1), m.Version)
	assert.True(t, m.EpisodeStart.Equal(t0.Add(48*time.Hour)))

	f.clock.Set(t0.Add(60 * time.Hour))
	err := f.svc.Notify(ctx, "u1")
	assert.True(t, pkgerrors.IsSkipMessageError(err))
	assert.Equal(t, 1, f.email.CallCount())
	assert.Equal(t, int64(1), f.marker(t).Version)

	tasks := f.store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, model.NotificationTaskStatusSuccess, tasks[0].Status)
}

func TestNotifySkipsUserWhoCheckedIn(t *testing.T) {
	f := newNotifyFixture(t, nil)

	f.clock.Set(t0.Add(47*time.Hour + 59*time.Minute))
	err := f.svc.Notify(context.Background(), "u1")
	assert.True(t, pkgerrors.IsSkipMessageError(err))
	assert.Equal(t, 0, f.email.CallCount())
	assert.Empty(t, f.store.Tasks())
}

func TestNotifyWithoutContact(t *testing.T) {
	f := newNotifyFixture(t, nil)
	_, err := f.store.EnsureUser(context.Background(), "u2", t0)
	require.NoError(t, err)

	f.clock.Set(t0.Add(72 * time.Hour))
	err = f.svc.Notify(context.Background(), "u2")
	assert.ErrorIs(t, err, pkgerrors.NoContactConfigured)
	assert.Equal(t, 0, f.email.CallCount())
}

func TestNotifyRetriesTransientFailure(t *testing.T) {
	f := newNotifyFixture(t, func(o *NotificationOptions) { o.SMS = nil })
	f.email.FailTimes = 1

	f.clock.Set(t0.Add(49 * time.Hour))
	require.NoError(t, f.svc.Notify(context.Background(), "u1"))

	assert.Equal(t, 2, f.email.CallCount())
	assert.Equal(t, int64(1), f.marker(t).Version)

	tasks := f.store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, 1, tasks[0].RetryCount)

	attempts, err := f.store.ListAttempts(context.Background(), tasks[0].TaskCode)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, model.ContactAttemptStatusFailed, attempts[0].Status)
	assert.Equal(t, model.ContactAttemptStatusSuccess, attempts[1].Status)
}

func TestNotifyNonRetryableStopsChannel(t *testing.T) {
	f := newNotifyFixture(t, nil)
	f.email.FailTimes = 10
	f.email.Err = pkgerrors.NewNonRetryableError("MessageRejected", "address blacklisted", "recipient rejected")

	f.clock.Set(t0.Add(49 * time.Hour))
	require.NoError(t, f.svc.Notify(context.Background(), "u1"))

	assert.Equal(t, 1, f.email.CallCount())
	assert.Equal(t, 1, f.sms.CallCount())
	assert.Equal(t, int64(1), f.marker(t).Version)
}

func TestNotifyAllChannelsFailLeavesMarker(t *testing.T) {
	f := newNotifyFixture(t, nil)
	f.email.FailTimes = 10
	f.sms.FailTimes = 10
	ctx := context.Background()

	f.clock.Set(t0.Add(49 * time.Hour))
	err := f.svc.Notify(ctx, "u1")
	assert.ErrorIs(t, err, pkgerrors.DeliveryFailed)
	assert.Equal(t, 3, f.email.CallCount())
	assert.Equal(t, 3, f.sms.CallCount())

	_, err = f.store.GetMarker(ctx, "u1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	tasks := f.store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, model.NotificationTaskStatusFailed, tasks[0].Status)

	// 下一次扫描时服务商恢复
	f.email.FailTimes = 0
	f.sms.FailTimes = 0
	f.clock.Set(t0.Add(49*time.Hour + 15*time.Minute))
	require.NoError(t, f.svc.Notify(ctx, "u1"))

	tasks = f.store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, model.NotificationTaskStatusSuccess, tasks[0].Status)
	assert.Equal(t, int64(1), f.marker(t).Version)
}

type blockingEmail struct {
	mu    sync.Mutex
	calls int
}

func (b *blockingEmail) Send(ctx context.Context, to, subject, body string) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func TestNotifyAttemptTimeoutIsTransient(t *testing.T) {
	slow := &blockingEmail{}
	f := newNotifyFixture(t, func(o *NotificationOptions) {
		o.SMS = nil
		o.Email = slow
		o.AttemptTimeout = 10 * time.Millisecond
		o.MaxAttempts = 2
	})

	f.clock.Set(t0.Add(49 * time.Hour))
	err := f.svc.Notify(context.Background(), "u1")
	assert.ErrorIs(t, err, pkgerrors.DeliveryFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, slow.calls)
}

func TestNotifyOpenBreakerStopsRetries(t *testing.T) {
	f := newNotifyFixture(t, func(o *NotificationOptions) {
		o.SMS = nil
		o.EmailBreaker = breaker.New("email", 1, time.Hour)
	})
	f.email.FailTimes = 10

	f.clock.Set(t0.Add(49 * time.Hour))
	err := f.svc.Notify(context.Background(), "u1")
	assert.ErrorIs(t, err, pkgerrors.DeliveryFailed)
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, 1, f.email.CallCount())
}

func TestNotifyConcurrentSendsOnce(t *testing.T) {
	f := newNotifyFixture(t, nil)
	f.clock.Set(t0.Add(50 * time.Hour))

	const workers = 8
	results := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.svc.Notify(context.Background(), "u1")
		}(i)
	}
	wg.Wait()

	delivered := 0
	for _, err := range results {
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, pkgerrors.MarkerConflict), pkgerrors.IsSkipMessageError(err):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, f.email.CallCount())
	assert.Equal(t, 1, f.sms.CallCount())
	assert.Equal(t, int64(1), f.marker(t).Version)
}

func TestNotifyLockHeldElsewhere(t *testing.T) {
	f := newNotifyFixture(t, nil)
	_, ok, err := f.locker.TryLock(context.Background(), cache.NotifyLockKey("u1"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	f.clock.Set(t0.Add(50 * time.Hour))
	err = f.svc.Notify(context.Background(), "u1")
	assert.ErrorIs(t, err, pkgerrors.MarkerConflict)
	assert.Equal(t, 0, f.email.CallCount())
}

func TestNotifyEpisodeReopensAfterCheckIn(t *testing.T) {
	f := newNotifyFixture(t, nil)
	ctx := context.Background()

	f.clock.Set(t0.Add(48 * time.Hour))
	require.NoError(t, f.svc.Notify(ctx, "u1"))

	seedCheckIn(t, f.store, "u1", t0.Add(50*time.Hour))

	f.clock.Set(t0.Add(60 * time.Hour))
	assert.True(t, pkgerrors.IsSkipMessageError(f.svc.Notify(ctx, "u1")))

	f.clock.Set(t0.Add(98 * time.Hour))
	require.NoError(t, f.svc.Notify(ctx, "u1"))
	assert.True(t, pkgerrors.IsSkipMessageError(f.svc.Notify(ctx, "u1")))

	assert.Equal(t, 2, f.email.CallCount())
	m := f.marker(t)
	assert.Equal(t, int64(2), m.Version)
	assert.True(t, m.EpisodeStart.Equal(t0.Add(98*time.Hour)))
	assert.Len(t, f.store.Tasks(), 2)
}

func TestNotifyNeverCheckedInUsesRegistration(t *testing.T) {
	f := newNotifyFixture(t, nil)
	registered := t0.Add(-24 * time.Hour)
	seedMonitoredUser(t, f.store, "u3", "", registered)

	f.clock.Set(registered.Add(48 * time.Hour))
	require.NoError(t, f.svc.Notify(context.Background(), "u3"))

	require.Equal(t, 1, f.email.CallCount())
	assert.Contains(t, f.email.Calls[0].Body, "nenhum check-in")
	assert.Contains(t, f.email.Calls[0].Body, fallbackDisplayName)
}

type conflictingStore struct {
	*repository.MemoryStore
}

func (conflictingStore) CompareAndSetMarker(ctx context.Context, userID string, expectedVersion int64, episodeStart, notifiedAt time.Time) error {
	return repository.ErrMarkerConflict
}

func TestNotifyMarkerCASLost(t *testing.T) {
	f := newNotifyFixture(t, nil)
	svc := NewNotificationService(conflictingStore{f.store}, NotificationOptions{
		Threshold: 48 * time.Hour,
		Email:     f.email,
		Locker:    f.locker,
		Now:       f.clock.Now,
		NextID:    sequence(),
	})

	f.clock.Set(t0.Add(49 * time.Hour))
	err := svc.Notify(context.Background(), "u1")
	assert.ErrorIs(t, err, pkgerrors.MarkerConflict)

	tasks := f.store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, model.NotificationTaskStatusConflict, tasks[0].Status)
}

func TestNotifyContactWithoutReachableChannel(t *testing.T) {
	f := newNotifyFixture(t, func(o *NotificationOptions) { o.SMS = nil; o.Email = nil })

	f.clock.Set(t0.Add(49 * time.Hour))
	err := f.svc.Notify(context.Background(), "u1")
	assert.ErrorIs(t, err, pkgerrors.DeliveryFailed)
	assert.ErrorIs(t, err, pkgerrors.NoChannelAvailable)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeNotified, OutcomeOf(nil))
	assert.Equal(t, OutcomeSkipped, OutcomeOf(&pkgerrors.SkipMessageError{Reason: "already notified"}))
	assert.Equal(t, OutcomeNoContact, OutcomeOf(pkgerrors.NoContactConfigured))
	assert.Equal(t, OutcomeConflict, OutcomeOf(pkgerrors.MarkerConflict))
	assert.Equal(t, OutcomeFailed, OutcomeOf(pkgerrors.Wrap(pkgerrors.DeliveryFailed, errors.New("smtp down"))))
}

func TestTruncateMessageKeepsRunes(t *testing.T) {
	short := "número inválido"
	assert.Equal(t, short, truncateMessage(short))

	// 每个字符两个字节，按字节截断会切开最后一个字符
	long := strings.Repeat("ã", 300)
	got := truncateMessage(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 255, utf8.RuneCountInString(got))
	assert.Equal(t, strings.Repeat("ã", 255), got)
}
