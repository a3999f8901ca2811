package service_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-whiteboard/internal/service"
)

func TestNewAuthService_RequiresSecret(t *testing.T) {
	_, err := service.NewAuthService("", 1)

	assert.Error(t, err, "空密钥应返回错误")
}

func TestAuthService_IssueAndParseGuestToken(t *testing.T) {
	// Arrange
	authService, err := service.NewAuthService("very-secret-key", 1)
	require.NoError(t, err)

	// Act
	token, id, err := authService.IssueGuestToken("  Alice  ")

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "Alice", id.Name, "显示名应去掉首尾空白")
	assert.NotEmpty(t, id.UserID)

	parsed, err := authService.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestAuthService_EachTokenGetsANewUser(t *testing.T) {
	authService, _ := service.NewAuthService("secret", 1)

	_, a, err := authService.IssueGuestToken("Alice")
	require.NoError(t, err)
	_, b, err := authService.IssueGuestToken("Alice")
	require.NoError(t, err)

	assert.NotEqual(t, a.UserID, b.UserID)
}

func TestAuthService_RejectsBadDisplayNames(t *testing.T) {
	authService, _ := service.NewAuthService("secret", 1)

	for _, name := range []string{"", "   ", strings.Repeat("字", 65)} {
		_, _, err := authService.IssueGuestToken(name)
		assert.ErrorIs(t, err, service.ErrInvalidDisplayName, "name=%q", name)
	}
}

func TestAuthService_ParseTokenFailures(t *testing.T) {
	authService, _ := service.NewAuthService("secret", 1)
	other, _ := service.NewAuthService("another-secret", 1)
	foreign, _, err := other.IssueGuestToken("Mallory")
	require.NoError(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u1",
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	expiredStr, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)

	noUser := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	noUserStr, err := noUser.SignedString([]byte("secret"))
	require.NoError(t, err)

	cases := map[string]string{
		"malformed":      "not-a-token",
		"wrong secret":   foreign,
		"expired":        expiredStr,
		"missing userId": noUserStr,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := authService.ParseToken(token)
			assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
		})
	}
}
