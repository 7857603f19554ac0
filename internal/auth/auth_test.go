package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/seyone-projects/reda-backend/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenManager_IssueAndParse(t *testing.T) {
	m := NewTokenManager(testSecret, 7*24*time.Hour)
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	user := &models.User{ID: 42, Email: "a@example.com", Role: models.RoleEmployee}
	token, session, err := m.Issue(user)
	require.NoError(t, err)
	assert.Equal(t, token, session.Token)
	assert.Equal(t, int64(42), session.UserID)
	assert.Equal(t, now.Add(7*24*time.Hour), session.ExpiresAt)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.ID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, models.RoleEmployee, claims.Role)
	assert.Equal(t, "42", claims.Subject)
}

func TestTokenManager_Expired(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)
	now := time.Now()
	m.now = func() time.Time { return now }

	token, _, err := m.Issue(&models.User{ID: 1})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenManager_Invalid(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)
	other := NewTokenManager("another-secret-another-secret-xx", time.Hour)

	foreign, _, err := other.Issue(&models.User{ID: 1})
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ID: 1})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noID, _, err := m.Issue(&models.User{})
	require.NoError(t, err)

	tests := map[string]string{
		"Garbage":       "not-a-token",
		"WrongSecret":   foreign,
		"NoneAlgorithm": unsigned,
		"MissingID":     noID,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := m.Parse(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.NoError(t, h.Compare(hash, "s3cret"))
	assert.ErrorIs(t, h.Compare(hash, "wrong"), ErrPasswordMismatch)
	assert.Error(t, h.Compare("not-a-hash", "s3cret"))

	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).cost)
}
