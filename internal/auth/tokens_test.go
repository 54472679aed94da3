package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt-chaining/backend/pkg/models"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret-value", time.Hour)
	require.NoError(t, err)

	raw, err := issuer.Issue("user-1", models.RoleAdmin)
	require.NoError(t, err)

	claims, err := issuer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret-value", time.Hour)
	require.NoError(t, err)
	raw, err := issuer.Issue("user-1", models.RoleUser)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later, err := NewTokenIssuer("test-secret-value", time.Hour)
		require.NoError(t, err)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		_, err = later.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenIssuer("another-secret", time.Hour)
		require.NoError(t, err)

		_, err = other.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewTokenIssuer_EmptySecret(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour)
	assert.Error(t, err)
}
