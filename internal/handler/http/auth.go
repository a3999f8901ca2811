package http

import (
	"net/http"

	"collaborative-whiteboard/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthHandler 签发访客令牌
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	if authService == nil {
		panic("AuthService cannot be nil for AuthHandler")
	}
	return &AuthHandler{authService: authService}
}

// GuestRequest 定义访客登录请求
type GuestRequest struct {
	Name string `json:"name" binding:"required"`
}

// GuestResponse 定义访客登录成功的响应
type GuestResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Guest 为显示名签发一个新的访客身份和令牌
func (h *AuthHandler) Guest(c *gin.Context) {
	var req GuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Guest: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: name is required")
		return
	}

	token, ident, err := h.authService.IssueGuestToken(req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithField("user_id", ident.UserID).Info("Handler.Guest: Guest token issued")
	SuccessResponse(c, http.StatusOK, GuestResponse{Token: token, UserID: ident.UserID, Name: ident.Name})
}
