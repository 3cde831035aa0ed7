package provider

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
)

func TestJWTProvider_RoundTrip(t *testing.T) {
	p := NewJWTProvider("test-key", "gen-live", time.Hour)

	sess, err := p.CreateAnonymousSession(context.Background(), "ana@x.com")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "ana@x.com", sess.Email)
	assert.WithinDuration(t, sess.IssuedAt.Add(time.Hour), sess.ExpiresAt, time.Second)

	claims, err := p.Validate(sess.Token)
	require.NoError(t, err)
	assert.True(t, claims.Anonymous)
	assert.Equal(t, "ana@x.com", claims.Email)

	sessionID, err := p.SessionID(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, sessionID)
}

func TestJWTProvider_SessionsAreDistinct(t *testing.T) {
	p := NewJWTProvider("test-key", "gen-live", time.Hour)
	a, err := p.CreateAnonymousSession(context.Background(), "a@x.com")
	require.NoError(t, err)
	b, err := p.CreateAnonymousSession(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestJWTProvider_Rejects(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewJWTProvider("test-key", "gen-live", time.Minute, WithClock(func() time.Time { return now }))
	sess, err := p.CreateAnonymousSession(context.Background(), "a@x.com")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := NewJWTProvider("test-key", "gen-live", time.Minute,
			WithClock(func() time.Time { return now.Add(2 * time.Minute) }))
		_, err := later.Validate(sess.Token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.Equal(t, "session has expired", dErrors.MessageOf(err))
	})

	t.Run("wrong key", func(t *testing.T) {
		other := NewJWTProvider("other-key", "gen-live", time.Minute, WithClock(func() time.Time { return now }))
		_, err := other.Validate(sess.Token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTProvider("test-key", "someone-else", time.Minute, WithClock(func() time.Time { return now }))
		_, err := other.Validate(sess.Token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("unsigned", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = p.Validate(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
