package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"collaborative-whiteboard/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/me", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "name": c.GetString("user_name")})
	})
	return r
}

func TestAuth(t *testing.T) {
	auth, err := service.NewAuthService("test-secret", 1)
	require.NoError(t, err)
	token, ident, err := auth.IssueGuestToken("Ada")
	require.NoError(t, err)
	router := newRouter(Auth(auth))

	cases := []struct {
		name   string
		url    string
		header string
		code   int
	}{
		{"bearer header", "/me", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "/me", "bearer " + token, http.StatusOK},
		{"query parameter", "/me?token=" + token, "", http.StatusOK},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"malformed header", "/me", token, http.StatusUnauthorized},
		{"bad signature", "/me", "Bearer " + token + "x", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.code, w.Code)
			if tc.code == http.StatusOK {
				assert.Contains(t, w.Body.String(), ident.UserID)
				assert.Contains(t, w.Body.String(), "Ada")
			}
		})
	}
}

func TestAuth_PanicsWithoutParser(t *testing.T) {
	assert.Panics(t, func() { Auth(nil) })
}

type countingLimiter struct {
	counts map[string]int
	err    error
}

func (l *countingLimiter) CheckRateLimit(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.counts[key]++
	return l.counts[key] > limit, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{counts: map[string]int{}}
	router := newRouter(RateLimit(limiter, 2, time.Minute))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Len(t, limiter.counts, 1)
}

func TestRateLimit_RedisError(t *testing.T) {
	router := newRouter(RateLimit(&countingLimiter{err: errors.New("redis down")}, 2, time.Minute))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimit_PanicsOnBadConfig(t *testing.T) {
	l := &countingLimiter{}
	assert.Panics(t, func() { RateLimit(nil, 1, time.Second) })
	assert.Panics(t, func() { RateLimit(l, 0, time.Second) })
	assert.Panics(t, func() { RateLimit(l, 1, 0) })
}
