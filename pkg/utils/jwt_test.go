package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sevaconnect-backend/pkg/models"
)

func TestTokenPairCarriesRole(t *testing.T) {
	j := NewJWTService("secret")
	user := models.User{ID: "ngo-1", Email: "team@seva.org", Role: models.RoleNGO}

	access, refresh, exp, err := j.GenerateTokenPair(user)
	require.NoError(t, err)
	assert.Greater(t, exp, time.Now().Unix())

	claims, err := j.ValidateAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, user, claims.User())

	_, err = j.ValidateAccessToken(refresh)
	assert.Error(t, err)
	_, err = j.ValidateRefreshToken(access)
	assert.Error(t, err)

	fresh, _, err := j.RefreshAccessToken(refresh)
	require.NoError(t, err)
	claims, err = j.ValidateAccessToken(fresh)
	require.NoError(t, err)
	assert.Equal(t, models.RoleNGO, claims.Role)
}

func TestExpiredToken(t *testing.T) {
	j := NewJWTService("secret")
	issued := time.Now().Add(-time.Hour)
	j.now = func() time.Time { return issued }
	access, _, err := j.GenerateAccessToken(models.User{ID: "u", Role: models.RoleDonor})
	require.NoError(t, err)

	j.now = time.Now
	_, err = j.ValidateAccessToken(access)
	assert.Error(t, err)
}

func TestWrongSecret(t *testing.T) {
	access, _, err := NewJWTService("a").GenerateAccessToken(models.User{ID: "u"})
	require.NoError(t, err)
	_, err = NewJWTService("b").ValidateToken(access)
	assert.Error(t, err)
}
