package mq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfirmation struct {
	acked bool
	err   error
	block bool
}

func (f fakeConfirmation) WaitContext(ctx context.Context) (bool, error) {
	if f.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return f.acked, f.err
}

func TestWaitConfirmAcked(t *testing.T) {
	require.NoError(t, waitConfirm(context.Background(), fakeConfirmation{acked: true}, "absence_u1_1"))
}

func TestWaitConfirmNackedFails(t *testing.T) {
	err := waitConfirm(context.Background(), fakeConfirmation{acked: false}, "absence_u1_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nacked")
	assert.Contains(t, err.Error(), "absence_u1_1")
}

func TestWaitConfirmCancelledFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitConfirm(ctx, fakeConfirmation{block: true}, "absence_u1_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
