package services

import (
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/config"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/dto"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAccessToken(t *testing.T) {
	cfg := &config.Config{JWTSecret: "secret", JWTAccessExpiry: 24 * time.Hour}
	user := &models.User{ID: uuid.New(), Name: "Amara", Email: "amara@example.com", Role: models.RoleNGO}
	now := time.Unix(1_700_000_000, 0)

	signed, err := SignAccessToken(cfg, user, now)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)

	assert.Equal(t, user.ID.String(), claims["sub"])
	assert.Equal(t, "Amara", claims["name"])
	assert.Equal(t, models.RoleNGO, claims["role"])
	assert.EqualValues(t, now.Add(24*time.Hour).Unix(), claims["exp"])
}

func TestRoleFor(t *testing.T) {
	s := NewAuthService(nil, &config.Config{AdminEmails: "Chief@City.gov"})

	assert.Equal(t, models.RoleAdmin, s.roleFor("chief@city.gov", models.RoleCitizen))
	assert.Equal(t, models.RoleNGO, s.roleFor("ngo@example.org", models.RoleNGO))
	assert.Equal(t, models.RoleCitizen, s.roleFor("someone@example.org", ""))
}

func TestRegisterValidation(t *testing.T) {
	s := NewAuthService(nil, &config.Config{})
	tests := []struct {
		name string
		req  dto.RegisterRequest
	}{
		{"short password", dto.RegisterRequest{Name: "A", Email: "a@example.com", Password: "short"}},
		{"bad email", dto.RegisterRequest{Name: "A", Email: "nope", Password: "longenough"}},
		{"admin role", dto.RegisterRequest{Name: "A", Email: "a@example.com", Password: "longenough", Role: models.RoleAdmin}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := s.Register(t.Context(), &req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}
