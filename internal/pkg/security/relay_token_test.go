package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayTokenRoundTrip(t *testing.T) {
	t.Parallel()

	token, err := GenerateRelayToken(42, "device-abc", time.Hour, "secret")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := VerifyRelayToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "device-abc", claims.DeviceID)
}

func TestRelayTokenRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	token, err := GenerateRelayToken(42, "device-abc", time.Hour, "secret")
	require.NoError(t, err)

	_, err = VerifyRelayToken(token, "other-secret")
	assert.Error(t, err)
}

func TestRelayTokenRejectsExpired(t *testing.T) {
	t.Parallel()

	token, err := GenerateRelayToken(42, "device-abc", -time.Minute, "secret")
	require.NoError(t, err)

	_, err = VerifyRelayToken(token, "secret")
	assert.Error(t, err)
}

func TestRelayTokenRequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := GenerateRelayToken(42, "device-abc", time.Hour, "")
	assert.Error(t, err)

	_, err = VerifyRelayToken("whatever", "")
	assert.Error(t, err)
}

func TestRelayTokenRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := VerifyRelayToken("not-a-token", "secret")
	assert.Error(t, err)
}
