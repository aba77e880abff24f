package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
)

func newTokenService(t *testing.T) *TokenService {
	t.Helper()
	key, err := LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)
	s, err := NewTokenService(key, time.Hour)
	require.NoError(t, err)
	return s
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	assert.True(t, VerifyPassword(hash, "correct horse"))
	assert.False(t, VerifyPassword(hash, "wrong horse"))
	assert.False(t, VerifyPassword("not-a-hash", "correct horse"))

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestLoadOrGenerateKey(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Len(t, first, keyLength)

	second, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(filepath.Join(dir, keyFileName), []byte("short"), 0o600))
	_, err = LoadOrGenerateKey(dir)
	assert.Error(t, err)
}

func TestTokenService_RoundTrip(t *testing.T) {
	s := newTokenService(t)

	token, exp, err := s.Generate("usr_1", "a@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	uid, err := s.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "usr_1", uid)

	claims, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.NotEmpty(t, claims.TokenID)
}

func TestTokenService_RejectsExpiredAndRevoked(t *testing.T) {
	s := newTokenService(t)

	token, _, err := s.Generate("usr_1", "a@example.com")
	require.NoError(t, err)

	claims, err := s.Parse(token)
	require.NoError(t, err)
	s.Revoke(claims)
	_, err = s.Verify(context.Background(), token)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrUnauthorized))

	fresh, _, err := s.Generate("usr_1", "a@example.com")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Parse(fresh)
	assert.Error(t, err)
}

func TestTokenService_RejectsForeignKey(t *testing.T) {
	a := newTokenService(t)
	b := newTokenService(t)

	token, _, err := a.Generate("usr_1", "a@example.com")
	require.NoError(t, err)
	_, err = b.Parse(token)
	assert.Error(t, err)
}

func TestState(t *testing.T) {
	s := NewState()

	var seen []string
	cancel := s.OnAuthStateChange(func(uid string) { seen = append(seen, uid) })

	s.SignIn("u1")
	s.SignIn("u1")
	uid, ok := s.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "u1", uid)

	s.SignOut()
	_, ok = s.CurrentUserID()
	assert.False(t, ok)

	cancel()
	s.SignIn("u2")

	assert.Equal(t, []string{"", "u1", ""}, seen)
}
