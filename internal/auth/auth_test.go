package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubifsck/ubifsck/internal/auth"
)

func TestHMACSignerSignVerifyRoundTrip(t *testing.T) {
	s := auth.NewHMACSigner([]byte("secretpin"))
	payload := []byte("superblock bytes")

	tag, err := s.Sign(payload)
	require.NoError(t, err)

	ok, err := s.Verify(payload, tag)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHMACSignerRejectsTamperedPayload(t *testing.T) {
	s := auth.NewHMACSigner([]byte("secretpin"))
	tag, err := s.Sign([]byte("original"))
	require.NoError(t, err)

	ok, err := s.Verify([]byte("tampered"), tag)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewHMACSignerFromEnvMissingPin(t *testing.T) {
	t.Setenv(auth.PinEnvVar, "")
	_, err := auth.NewHMACSignerFromEnv()
	assert.ErrorIs(t, err, auth.ErrNoKey)
}

func TestNewHMACSignerFromEnv(t *testing.T) {
	t.Setenv(auth.PinEnvVar, "1234")
	s, err := auth.NewHMACSignerFromEnv()
	require.NoError(t, err)
	_, err = s.Sign([]byte("x"))
	require.NoError(t, err)
}

func TestNoneSignerAlwaysFails(t *testing.T) {
	var s auth.None
	_, err := s.Sign([]byte("x"))
	assert.ErrorIs(t, err, auth.ErrNoKey)

	_, err = s.Verify([]byte("x"), []byte("y"))
	assert.ErrorIs(t, err, auth.ErrNoKey)
}
