package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EstouBem/internal/model"
	"EstouBem/internal/repository"
	pkgerrors "EstouBem/pkg/errors"
)

func newCheckInService(store *repository.MemoryStore, clk *fakeClock) *CheckInService {
	return NewCheckInService(store, CheckInOptions{
		Threshold:   48 * time.Hour,
		Location:    brt,
		HistoryDays: 30,
		Now:         clk.Now,
		NextID:      sequence(),
	})
}

func TestRecordAppendsCheckIn(t *testing.T) {
	store := repository.NewMemoryStore()
	clk := newClock(time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC))
	svc := newCheckInService(store, clk)
	ctx := context.Background()

	_, ok, err := svc.LastCheckIn(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := svc.Record(ctx, "u1", clk.Now().Add(-time.Hour))
	require.NoError(t, err)
	second, err := svc.Record(ctx, "u1", clk.Now())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	last, ok, err := svc.LastCheckIn(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, last.Equal(clk.Now()))

	history, err := svc.History(ctx, "u1", clk.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
}

func TestRecordWriteErrorLeavesNoState(t *testing.T) {
	store := repository.NewMemoryStore()
	clk := newClock(time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC))
	svc := newCheckInService(store, clk)
	ctx := context.Background()

	store.FailWrites = errors.New("connection refused")
	_, err := svc.Record(ctx, "u1", clk.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.WriteError)

	store.FailWrites = nil
	_, ok, err := svc.LastCheckIn(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordRejectsEmptyUser(t *testing.T) {
	svc := newCheckInService(repository.NewMemoryStore(), newClock(time.Now()))
	_, err := svc.Record(context.Background(), "  ", time.Now())
	assert.ErrorIs(t, err, pkgerrors.InvalidUserID)
}

func TestCompleteTodayUsesDisplayTimezone(t *testing.T) {
	store := repository.NewMemoryStore()
	// 2025-03-04 01:00 UTC 是圣保罗 3 月 3 日 22:00
	clk := newClock(time.Date(2025, 3, 4, 1, 0, 0, 0, time.UTC))
	svc := newCheckInService(store, clk)
	ctx := context.Background()

	resp, err := svc.CompleteToday(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-03", resp.Date)
	assert.True(t, resp.NextAlertAt.Equal(clk.Now().Add(48*time.Hour)))

	clk.Set(time.Date(2025, 3, 4, 2, 30, 0, 0, time.UTC))
	_, err = svc.CompleteToday(ctx, "u1")
	assert.ErrorIs(t, err, pkgerrors.CheckInAlreadyDone)

	clk.Set(time.Date(2025, 3, 4, 3, 5, 0, 0, time.UTC))
	resp, err = svc.CompleteToday(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-04", resp.Date)
}

func TestCalendarMarksDays(t *testing.T) {
	store := repository.NewMemoryStore()
	clk := newClock(time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))
	svc := newCheckInService(store, clk)

	seedCheckIn(t, store, "u1", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	seedCheckIn(t, store, "u1", time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC))
	seedCheckIn(t, store, "u1", time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC))

	days, err := svc.Calendar(context.Background(), "u1", 3)
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, "2025-03-10", days[0].Date)
	assert.True(t, days[0].HasCheckIn)
	assert.False(t, days[1].HasCheckIn)
	assert.True(t, days[2].HasCheckIn)

	days, err = svc.Calendar(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Len(t, days, 30)
}

func TestStatusReportsSilence(t *testing.T) {
	store := repository.NewMemoryStore()
	registered := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := newClock(registered.Add(10 * time.Hour))
	svc := newCheckInService(store, clk)
	ctx := context.Background()

	_, err := store.EnsureUser(ctx, "u1", registered)
	require.NoError(t, err)

	status, err := svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, status.LastCheckInAt)
	assert.Equal(t, int64(36000), status.SilenceSeconds)
	assert.Equal(t, int64(48*3600), status.ThresholdSeconds)
	assert.True(t, status.AlertAt.Equal(registered.Add(48*time.Hour)))
	assert.False(t, status.Absent)
	assert.False(t, status.ContactConfigured)

	seedMonitoredUser(t, store, "u1", "", registered)
	clk.Set(registered.Add(48 * time.Hour))

	status, err = svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, status.Absent)
	assert.True(t, status.ContactConfigured)
}

// staleReadStore 模拟两个请求同时读到"今天还没打卡"
type staleReadStore struct {
	*repository.MemoryStore
}

func (s staleReadStore) LastCheckIn(ctx context.Context, userID string) (*model.CheckIn, error) {
	return nil, repository.ErrNotFound
}

func TestCompleteTodayStaleReadStillOncePerDay(t *testing.T) {
	mem := repository.NewMemoryStore()
	clk := newClock(time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC))
	svc := NewCheckInService(staleReadStore{mem}, CheckInOptions{
		Threshold: 48 * time.Hour,
		Location:  brt,
		Now:       clk.Now,
		NextID:    sequence(),
	})
	ctx := context.Background()

	_, err := svc.CompleteToday(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.CompleteToday(ctx, "u1")
	assert.ErrorIs(t, err, pkgerrors.CheckInAlreadyDone)

	items, err := mem.ListCheckIns(ctx, "u1", clk.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	// 其他来源的打卡不占用当天名额
	_, err = svc.Record(ctx, "u1", clk.Now().Add(time.Minute))
	require.NoError(t, err)
}

func TestCompleteTodayConcurrentRequests(t *testing.T) {
	store := repository.NewMemoryStore()
	clk := newClock(time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC))
	svc := newCheckInService(store, clk)
	ctx := context.Background()

	const requests = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		already int
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CompleteToday(ctx, "u1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, pkgerrors.CheckInAlreadyDone):
				already++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, requests-1, already)

	items, err := store.ListCheckIns(ctx, "u1", clk.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
