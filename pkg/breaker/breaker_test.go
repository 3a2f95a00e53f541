package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errProvider = errors.New("provider down")

func fail(context.Context) error { return errProvider }
func ok(context.Context) error   { return nil }

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cb := New("sms", 3, 30*time.Second, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Call(ctx, fail), errProvider)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Call(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cb := New("email", 1, 10*time.Second, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	assert.Equal(t, StateOpen, cb.GetState())

	now = now.Add(11 * time.Second)
	assert.NoError(t, cb.Call(ctx, ok))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cb := New("email", 1, 10*time.Second, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	now = now.Add(11 * time.Second)
	_ = cb.Call(ctx, fail)

	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Call(ctx, ok), ErrOpen)
}

func TestBreakerIgnoredErrorsDoNotTrip(t *testing.T) {
	permanent := errors.New("invalid number")
	cb := New("sms", 1, time.Minute, WithIgnore(func(err error) bool { return errors.Is(err, permanent) }))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Call(ctx, func(context.Context) error { return permanent })
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerDisabled(t *testing.T) {
	cb := New("noop", 0, time.Minute)
	for i := 0; i < 10; i++ {
		_ = cb.Call(context.Background(), fail)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}
