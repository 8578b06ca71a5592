package idempotency_test

import (
	"testing"

	"github.com/greetday/greetday/internal/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_Deterministic(t *testing.T) {
	k1, err := idempotency.Key("user-1", "BIRTHDAY", "2025-06-15")
	require.NoError(t, err)
	k2, err := idempotency.Key("user-1", "BIRTHDAY", "2025-06-15")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Equal(t, "user-1|BIRTHDAY|2025-06-15", k1)
}

func TestKey_DistinctByMessageType(t *testing.T) {
	k1, err := idempotency.Key("user-1", "BIRTHDAY", "2025-06-15")
	require.NoError(t, err)
	k2, err := idempotency.Key("user-1", "ANNIVERSARY", "2025-06-15")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestKey_RejectsReservedSeparator(t *testing.T) {
	_, err := idempotency.Key("user|1", "BIRTHDAY", "2025-06-15")
	assert.Error(t, err)
}

func TestKey_RejectsMalformedDate(t *testing.T) {
	_, err := idempotency.Key("user-1", "BIRTHDAY", "06/15/2025")
	assert.Error(t, err)
}

func TestKey_RejectsEmptyFields(t *testing.T) {
	_, err := idempotency.Key("", "BIRTHDAY", "2025-06-15")
	assert.Error(t, err)

	_, err = idempotency.Key("user-1", "", "2025-06-15")
	assert.Error(t, err)
}

func TestParse_RoundTrip(t *testing.T) {
	key, err := idempotency.Key("user-1", "BIRTHDAY", "2025-06-15")
	require.NoError(t, err)

	parts, err := idempotency.Parse(key)
	require.NoError(t, err)
	assert.Equal(t, "user-1", parts.UserID)
	assert.Equal(t, "BIRTHDAY", parts.MessageType)
	assert.Equal(t, "2025-06-15", parts.LocalDate)
}

func TestParse_RejectsWrongPartCount(t *testing.T) {
	_, err := idempotency.Parse("user-1|BIRTHDAY")
	assert.Error(t, err)

	_, err = idempotency.Parse("user-1|BIRTHDAY|2025-06-15|extra")
	assert.Error(t, err)
}

func TestParse_RejectsEmptyPart(t *testing.T) {
	_, err := idempotency.Parse("|BIRTHDAY|2025-06-15")
	assert.Error(t, err)
}
