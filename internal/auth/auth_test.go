package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret-that-is-long-enough", time.Hour)

	token, err := m.Generate("user-1")
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.WithinDuration(t, time.Now(), claims.IssuedAtTime(), 2*time.Second)
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager("test-secret-that-is-long-enough", time.Minute)
	issued := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return issued }

	token, err := m.Generate("user-1")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestJWTManager_WrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-one-secret-one-secret-one", time.Hour).Generate("user-1")
	require.NoError(t, err)

	_, err = NewJWTManager("secret-two-secret-two-secret-two", time.Hour).Validate(token)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenExpired)
}

func TestJWTManager_RejectsOtherAlgorithms(t *testing.T) {
	claims := &Claims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTManager("test-secret-that-is-long-enough", time.Hour).Validate(token)
	assert.Error(t, err)
}

func TestJWTManager_Garbage(t *testing.T) {
	_, err := NewJWTManager("test-secret-that-is-long-enough", time.Hour).Validate("not.a.token")
	assert.Error(t, err)
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("pass1234")
	require.NoError(t, err)
	assert.NotEqual(t, "pass1234", hash)
	assert.True(t, h.Matches(hash, "pass1234"))
	assert.False(t, h.Matches(hash, "pass12345"))
	assert.False(t, h.Matches("not-a-hash", "pass1234"))
}

func TestNewPasswordHasher_InvalidCostFallsBack(t *testing.T) {
	assert.Equal(t, DefaultCost, NewPasswordHasher(0).cost)
	assert.Equal(t, bcrypt.MinCost, NewPasswordHasher(bcrypt.MinCost).cost)
}
