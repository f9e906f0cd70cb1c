package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerSignAndVerify(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("lesson-1", "reports/lesson-1.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	link, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "lesson-1", link.Subject)
	require.Equal(t, "reports/lesson-1.pdf", link.Path)
	require.WithinDuration(t, expiresAt, link.ExpiresAt, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("lesson-1", "reports/lesson-1.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = signer.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("lesson-1", "reports/lesson-1.pdf")
	require.NoError(t, err)

	other := NewSignedURLSigner("other", time.Hour)
	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
