package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deliveryConfig() Config {
	return Config{
		NotifyLockTTL:        5 * time.Minute,
		DeliveryTimeout:      10 * time.Second,
		DeliveryMaxAttempts:  5,
		DeliveryBackoffStart: time.Second,
		DeliveryBackoffMax:   30 * time.Second,
	}
}

func TestWorstCaseDelivery(t *testing.T) {
	c := deliveryConfig()
	c.DeliveryMaxAttempts = 3
	c.DeliveryBackoffStart = 2 * time.Second

	// 每个渠道：3 次超时 30s，退避 2s*1.5 + 3s*1.5 = 7.5s
	assert.Equal(t, 2*(30*time.Second+7500*time.Millisecond), c.WorstCaseDelivery())
}

func TestWorstCaseDeliveryCapsBackoff(t *testing.T) {
	c := deliveryConfig()
	c.DeliveryMaxAttempts = 3
	c.DeliveryBackoffStart = time.Minute
	c.DeliveryBackoffMax = 4 * time.Second

	assert.Equal(t, 2*(30*time.Second+12*time.Second), c.WorstCaseDelivery())
}

func TestValidateNotifyLockDefaults(t *testing.T) {
	c := deliveryConfig()
	require.NoError(t, c.ValidateNotifyLock())
}

func TestValidateNotifyLockTooShort(t *testing.T) {
	c := deliveryConfig()
	c.DeliveryMaxAttempts = 10

	err := c.ValidateNotifyLock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MONITOR_NOTIFY_LOCK_TTL")

	c.NotifyLockTTL = 10 * time.Minute
	assert.NoError(t, c.ValidateNotifyLock())
}
