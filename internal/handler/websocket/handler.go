package websocket

import (
	"net/http"

	"collaborative-whiteboard/internal/hub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// RoomURI 绑定并校验路径中的房间 ID
type RoomURI struct {
	RoomID string `uri:"roomId" binding:"required,max=64,printascii"`
}

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。allowedOrigin 为空或 "*" 时允许所有来源。
func NewWebSocketHandler(h *hub.Hub, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}
	return &WebSocketHandler{upgrader: upgrader, hub: h}
}

// HandleConnection 处理 WebSocket 连接请求
// URL 预期格式: /ws/room/{roomId}
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	// 1. 获取认证用户 ID (由 Auth 中间件设置)
	userID := c.GetString("user_id")
	if userID == "" {
		logrus.Warn("WS Handler: User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	// 2. 房间 ID
	var uri RoomURI
	if err := c.ShouldBindUri(&uri); err != nil {
		logCtx.WithError(err).Warn("WS Handler: Invalid room ID")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}
	logCtx = logCtx.WithField("room_id", uri.RoomID)

	// 3. 升级连接。Upgrade 失败时已经写了 HTTP 错误响应
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	// 4. 注册并启动读写 goroutine
	client := hub.NewClient(h.hub, conn, uri.RoomID, userID)
	registerMsg := hub.HubMessage{
		Type:   hub.MsgRegister,
		Client: client,
		RoomID: client.RoomID(),
		UserID: client.UserID(),
	}
	if !h.hub.QueueMessage(registerMsg) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}
	client.Run()
	logCtx.Info("WS Handler: Client registration queued and pumps started")
}
