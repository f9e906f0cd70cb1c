package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-booking-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
)

func signSession(t *testing.T, secret string, claims models.SessionClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestValidateTokenAcceptsSession(t *testing.T) {
	svc := NewSessionService(SessionConfig{Secret: "secret", Issuer: "identity"})
	token := signSession(t, "secret", models.SessionClaims{
		UserID: "teacher-1",
		Role:   models.RoleTeacher,
		Email:  "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.Actor{UserID: "teacher-1", Role: models.RoleTeacher, Email: "alice@example.com"}, claims.Actor())
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewSessionService(SessionConfig{Secret: "secret", Issuer: "identity"})
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := map[string]string{
		"wrong secret": signSession(t, "other", models.SessionClaims{UserID: "u", Role: models.RoleStudent, RegisteredClaims: jwt.RegisteredClaims{Issuer: "identity", ExpiresAt: future}}),
		"expired":      signSession(t, "secret", models.SessionClaims{UserID: "u", Role: models.RoleStudent, RegisteredClaims: jwt.RegisteredClaims{Issuer: "identity", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}}),
		"wrong issuer": signSession(t, "secret", models.SessionClaims{UserID: "u", Role: models.RoleStudent, RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere", ExpiresAt: future}}),
		"unknown role": signSession(t, "secret", models.SessionClaims{UserID: "u", Role: "owner", RegisteredClaims: jwt.RegisteredClaims{Issuer: "identity", ExpiresAt: future}}),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
		})
	}
}
