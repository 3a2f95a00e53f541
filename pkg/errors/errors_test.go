package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionIsComparable(t *testing.T) {
	err := fmt.Errorf("notify user u1: %w", DeliveryFailed)

	assert.True(t, Is(err, DeliveryFailed))
	assert.False(t, Is(err, MarkerConflict))
}

func TestWrapKeepsCodeAndCause(t *testing.T) {
	err := Wrap(WriteError, context.DeadlineExceeded)

	assert.True(t, Is(err, WriteError))
	assert.True(t, Is(err, context.DeadlineExceeded))

	def, ok := AsDefinition(err)
	require.True(t, ok)
	assert.Equal(t, "WRITE_ERROR", def.Code)

	assert.Equal(t, WriteError, Wrap(WriteError, nil))
}

func TestGet(t *testing.T) {
	assert.Equal(t, NoContactConfigured, Get("NO_CONTACT_CONFIGURED"))

	unknown := Get("SOMETHING_ELSE")
	assert.Equal(t, "SOMETHING_ELSE", unknown.Code)
	assert.Equal(t, "Unexpected error", unknown.Message)
}

func TestSkipAndNonRetryable(t *testing.T) {
	skip := fmt.Errorf("consumer: %w", &SkipMessageError{Reason: "already notified"})
	assert.True(t, IsSkipMessageError(skip))
	assert.False(t, IsNonRetryableError(skip))

	nr := fmt.Errorf("sms: %w", NewNonRetryableError("isv.MOBILE_NUMBER_ILLEGAL", "bad number", "SMS configuration error"))
	assert.True(t, IsNonRetryableError(nr))
	assert.Contains(t, nr.Error(), "isv.MOBILE_NUMBER_ILLEGAL")
}
