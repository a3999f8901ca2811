package service

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
)

// maxDisplayNameLen 是显示名的最大字符数
const maxDisplayNameLen = 64

// Identity 是令牌里携带的用户信息
type Identity struct {
	UserID string
	Name   string
}

// AuthService 为加入画板的访客签发和校验 JWT。
// 画板没有账号体系，userId 在签发时生成，之后作为操作的作者和撤销历史的键。
type AuthService struct {
	jwtSecret []byte
	jwtExpiry time.Duration
	now       func() time.Time
}

// NewAuthService 创建 AuthService 实例，jwtExpiryHours <= 0 时默认 24 小时。
func NewAuthService(jwtSecretKey string, jwtExpiryHours int) (*AuthService, error) {
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24
	}
	return &AuthService{
		jwtSecret: []byte(jwtSecretKey),
		jwtExpiry: time.Duration(jwtExpiryHours) * time.Hour,
		now:       time.Now,
	}, nil
}

// IssueGuestToken 为显示名生成一个新的 userId 并签发令牌
func (s *AuthService) IssueGuestToken(displayName string) (string, Identity, error) {
	name := strings.TrimSpace(displayName)
	if name == "" || utf8.RuneCountInString(name) > maxDisplayNameLen {
		return "", Identity{}, ErrInvalidDisplayName
	}
	id := Identity{UserID: domain.NewID(), Name: name}
	token, err := s.generateJWT(id)
	if err != nil {
		logrus.WithField("display_name", name).WithError(err).Error("Failed to generate JWT token")
		return "", Identity{}, ErrInternalServer
	}
	logrus.WithFields(logrus.Fields{"user_id": id.UserID, "display_name": name}).Info("Guest token issued")
	return token, id, nil
}

// ParseToken 校验令牌并取出身份
func (s *AuthService) ParseToken(tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrAuthenticationFailed
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return Identity{}, fmt.Errorf("%w: missing user_id claim", ErrAuthenticationFailed)
	}
	name, _ := claims["name"].(string)
	return Identity{UserID: userID, Name: name}, nil
}

// generateJWT 签发 HS256 令牌
func (s *AuthService) generateJWT(id Identity) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": id.UserID,
		"name":    id.Name,
		"exp":     now.Add(s.jwtExpiry).Unix(),
		"iat":     now.Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
