package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EstouBem/internal/cache"
	pkgerrors "EstouBem/pkg/errors"
	"EstouBem/storage/redis"
)

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redis.Use(client)
	return mr
}

type stubNotifier struct {
	mu    sync.Mutex
	calls []string
	errs  []error
}

func (s *stubNotifier) Notify(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, userID)
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func encode(t *testing.T, msg AbsenceAlertMessage) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return body
}

var episode = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

func TestAbsenceMessageID(t *testing.T) {
	msg := NewAbsenceAlertMessage("user-1", episode, episode.Add(time.Minute))
	assert.Equal(t, "absence_user-1_1741176000", msg.MessageID)
	assert.Equal(t, "user-1", msg.UserID)
	assert.True(t, msg.EpisodeStart.Equal(episode))
}

func TestHandlerDeliversOnce(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()
	notifier := &stubNotifier{}
	handler := AbsenceAlertHandler(notifier)
	body := encode(t, NewAbsenceAlertMessage("user-1", episode, episode))

	require.NoError(t, handler(ctx, body))

	state, err := cache.MessageState(ctx, AbsenceMessageID("user-1", episode))
	require.NoError(t, err)
	assert.Equal(t, "completed", state)

	err = handler(ctx, body)
	assert.True(t, pkgerrors.IsSkipMessageError(err))
	assert.Equal(t, []string{"user-1"}, notifier.calls)
}

func TestHandlerFailureAllowsRedelivery(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()
	notifier := &stubNotifier{errs: []error{
		pkgerrors.Wrap(pkgerrors.DeliveryFailed, errors.New("provider down")),
	}}
	handler := AbsenceAlertHandler(notifier)
	body := encode(t, NewAbsenceAlertMessage("user-1", episode, episode))

	err := handler(ctx, body)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.DeliveryFailed)
	assert.False(t, pkgerrors.IsSkipMessageError(err))

	state, err := cache.MessageState(ctx, AbsenceMessageID("user-1", episode))
	require.NoError(t, err)
	assert.Empty(t, state)

	require.NoError(t, handler(ctx, body))
	assert.Len(t, notifier.calls, 2)
}

func TestHandlerNoContactIsSkippedButNotMarked(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()
	notifier := &stubNotifier{errs: []error{pkgerrors.NoContactConfigured}}
	handler := AbsenceAlertHandler(notifier)

	err := handler(ctx, encode(t, NewAbsenceAlertMessage("user-2", episode, episode)))
	assert.True(t, pkgerrors.IsSkipMessageError(err))

	state, err := cache.MessageState(ctx, AbsenceMessageID("user-2", episode))
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestHandlerAlreadyNotifiedIsMarked(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()
	notifier := &stubNotifier{errs: []error{&pkgerrors.SkipMessageError{Reason: "episode already notified"}}}
	handler := AbsenceAlertHandler(notifier)

	err := handler(ctx, encode(t, NewAbsenceAlertMessage("user-3", episode, episode)))
	assert.True(t, pkgerrors.IsSkipMessageError(err))

	state, err := cache.MessageState(ctx, AbsenceMessageID("user-3", episode))
	require.NoError(t, err)
	assert.Equal(t, "completed", state)
}

func TestHandlerRejectsMalformedBody(t *testing.T) {
	setupRedis(t)
	handler := AbsenceAlertHandler(&stubNotifier{})

	err := handler(context.Background(), []byte("{not json"))
	require.Error(t, err)
	assert.False(t, pkgerrors.IsSkipMessageError(err))

	err = handler(context.Background(), []byte(`{"message_id":"m1"}`))
	require.Error(t, err)
}
