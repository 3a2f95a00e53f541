package utils

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"(11) 98765-4321", "+5511987654321"},
		{"11987654321", "+5511987654321"},
		{"+55 11 3456-7890", "+551134567890"},
	}
	for _, c := range cases {
		got, err := NormalizePhone(c.in, "BR")
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got)
	}

	for _, bad := range []string{"", "   ", "12345", "abc"} {
		_, err := NormalizePhone(bad, "BR")
		assert.ErrorIs(t, err, ErrInvalidPhone, bad)
	}
}

func TestFormatPhoneDisplay(t *testing.T) {
	assert.Equal(t, "(11) 98765-4321", FormatPhoneDisplay("+5511987654321"))
	assert.Equal(t, "(11) 3456-7890", FormatPhoneDisplay("+551134567890"))
	assert.Equal(t, "(11) ****-4321", MaskPhone("+5511987654321"))
}

func TestEncryptRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	raw, err := encryptWithKey(key, "+5511987654321")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "987654321")

	plain, err := decryptWithKey(key, raw)
	require.NoError(t, err)
	assert.Equal(t, "+5511987654321", plain)

	_, err = decryptWithKey(key, raw[:4])
	assert.ErrorIs(t, err, errInvalidCipherText)

	_, err = decryptWithKey([]byte("fedcba9876543210fedcba9876543210"), raw)
	assert.Error(t, err)
}

func TestPortugueseDates(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	// 02:30 UTC 在圣保罗仍是前一天
	ts := time.Date(2025, time.March, 4, 2, 30, 0, 0, time.UTC)

	assert.Equal(t, "2025-03-03", DateKey(ts, loc))
	assert.Equal(t, "3 de março de 2025", FormatDatePT(ts, loc))
	assert.Equal(t, "segunda-feira, 3 de março de 2025 às 23:30", FormatDateTimePT(ts, loc))

	start := StartOfDay(ts, loc)
	assert.Equal(t, 3, start.Day())
	assert.Equal(t, 0, start.Hour())
}
