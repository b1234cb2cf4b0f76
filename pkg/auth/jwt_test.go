package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medhaven/clinicflow/internal/config"
	"github.com/medhaven/clinicflow/internal/domain"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:          "test-secret-at-least-32-characters-long",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "clinicflow-test",
	}
}

func patientClaims() *domain.Claims {
	patientID := uuid.New()
	return &domain.Claims{
		UserID:    uuid.New(),
		Email:     "asha@example.com",
		Role:      domain.RolePatient,
		PatientID: &patientID,
	}
}

func TestTokenPairRoundTrip(t *testing.T) {
	m := NewJWTManager(testJWTConfig())
	claims := patientClaims()

	pair, err := m.GenerateTokenPair(claims)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.ExpiresAt.After(time.Now()))

	got, err := m.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, claims.UserID, got.UserID)
	assert.Equal(t, claims.Email, got.Email)
	assert.Equal(t, domain.RolePatient, got.Role)
	require.NotNil(t, got.PatientID)
	assert.Equal(t, *claims.PatientID, *got.PatientID)
	assert.Nil(t, got.StaffID)

	refreshed, err := m.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, claims.UserID, refreshed.UserID)
}

func TestTokenTypeMismatch(t *testing.T) {
	m := NewJWTManager(testJWTConfig())

	pair, err := m.GenerateTokenPair(patientClaims())
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenTypeMismatch)

	_, err = m.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenTypeMismatch)
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := testJWTConfig()
	cfg.AccessTokenTTL = -time.Minute
	m := NewJWTManager(cfg)

	pair, err := m.GenerateTokenPair(patientClaims())
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestWrongSecretRejected(t *testing.T) {
	m := NewJWTManager(testJWTConfig())

	pair, err := m.GenerateTokenPair(patientClaims())
	require.NoError(t, err)

	other := testJWTConfig()
	other.Secret = "a-completely-different-signing-secret!!"
	_, err = NewJWTManager(other).ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestWrongIssuerRejected(t *testing.T) {
	m := NewJWTManager(testJWTConfig())

	pair, err := m.GenerateTokenPair(patientClaims())
	require.NoError(t, err)

	other := testJWTConfig()
	other.Issuer = "someone-else"
	_, err = NewJWTManager(other).ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestGarbageTokenRejected(t *testing.T) {
	m := NewJWTManager(testJWTConfig())

	_, err := m.ValidateAccessToken("not.a.token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
