package middleware

import (
	"errors"
	"net/http"
	"strings"

	"collaborative-whiteboard/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// TokenParser 解析令牌得到访客身份，由 service.AuthService 实现
type TokenParser interface {
	ParseToken(tokenStr string) (service.Identity, error)
}

// ErrMissingAuthHeader 表示请求既没有 Authorization 头也没有 token 参数
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// Auth 返回一个 Gin 中间件，用于验证 JWT token。
// 浏览器的 WebSocket 无法设置请求头，所以也接受 ?token= 查询参数。
func Auth(parser TokenParser) gin.HandlerFunc {
	if parser == nil {
		panic("TokenParser cannot be nil for Auth middleware")
	}

	return func(c *gin.Context) {
		// 1. 提取 Token
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				logrus.Warn("Auth middleware: Missing Authorization header")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			} else {
				logrus.Warnf("Auth middleware: Malformed token format: %v", err)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			c.Abort()
			return
		}

		// 2. 验证 Token
		ident, err := parser.ParseToken(tokenStr)
		if err != nil {
			logCtx := logrus.WithError(err)
			logCtx.Warn("Auth middleware: Invalid token")
			var validationError *jwt.ValidationError
			if errors.As(err, &validationError) && validationError.Errors&jwt.ValidationErrorExpired != 0 {
				logCtx.Warn("Reason: Token is expired")
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		// 3. 身份写入 Context
		c.Set("user_id", ident.UserID)
		c.Set("user_name", ident.Name)
		logrus.WithField("user_id", ident.UserID).Debug("Auth middleware: User authenticated via JWT")

		c.Next()
	}
}

// extractToken 依次从 Bearer 头和 token 查询参数提取令牌
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if q := c.Query("token"); q != "" {
			return q, nil
		}
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}
