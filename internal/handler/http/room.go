package http

import (
	"context"
	"net/http"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RoomReader 读取本实例内存中的房间文档，由 hub.Hub 实现
type RoomReader interface {
	RoomState(roomID string) (*domain.WhiteboardState, uint64, bool)
	RoomHistory(roomID, userID string) ([]domain.Action, int, bool)
}

// DocumentLoader 读取持久化的房间文档
type DocumentLoader interface {
	LoadLatest(ctx context.Context, roomID string) (*service.RoomDocument, error)
}

// RoomHandler 提供房间文档的只读接口
type RoomHandler struct {
	rooms RoomReader
	docs  DocumentLoader
}

// NewRoomHandler 创建 RoomHandler 实例。docs 为 nil 时只查询内存中的房间。
func NewRoomHandler(rooms RoomReader, docs DocumentLoader) *RoomHandler {
	if rooms == nil {
		panic("RoomReader cannot be nil for RoomHandler")
	}
	return &RoomHandler{rooms: rooms, docs: docs}
}

type roomURI struct {
	RoomID string `uri:"roomId" binding:"required,max=64,printascii"`
}

// StateResponse 是房间状态接口的响应。Pending 是快照之后尚未合并进状态的归档操作。
type StateResponse struct {
	RoomID  string                  `json:"room_id"`
	State   *domain.WhiteboardState `json:"state"`
	Version uint64                  `json:"version"`
	Live    bool                    `json:"live"`
	Pending []domain.Action         `json:"pending,omitempty"`
}

// HistoryResponse 是个人历史接口的响应
type HistoryResponse struct {
	RoomID  string          `json:"room_id"`
	UserID  string          `json:"user_id"`
	History []domain.Action `json:"history"`
	Cursor  int             `json:"cursor"`
}

// GetState 返回房间当前状态。房间不在内存中时返回最近的快照。
func (h *RoomHandler) GetState(c *gin.Context) {
	var uri roomURI
	if err := c.ShouldBindUri(&uri); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid room ID")
		return
	}
	logCtx := logrus.WithField("room_id", uri.RoomID)

	if state, version, ok := h.rooms.RoomState(uri.RoomID); ok {
		SuccessResponse(c, http.StatusOK, StateResponse{RoomID: uri.RoomID, State: state, Version: version, Live: true})
		return
	}
	if h.docs == nil {
		ErrorResponse(c, http.StatusNotFound, "Room is not open")
		return
	}
	doc, err := h.docs.LoadLatest(c.Request.Context(), uri.RoomID)
	if err != nil {
		logCtx.WithError(err).Error("Handler.GetState: Failed to load room document")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, StateResponse{RoomID: uri.RoomID, State: doc.State, Version: doc.Version, Pending: doc.Tail})
}

// GetHistory 返回某个用户在房间里的个人历史和游标，默认是当前用户
func (h *RoomHandler) GetHistory(c *gin.Context) {
	var uri roomURI
	if err := c.ShouldBindUri(&uri); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid room ID")
		return
	}
	userID := c.Query("user")
	if userID == "" {
		userID = c.GetString("user_id")
	}
	if userID == "" {
		ErrorResponse(c, http.StatusBadRequest, "user is required")
		return
	}

	hist, cursor, ok := h.rooms.RoomHistory(uri.RoomID, userID)
	if !ok {
		ErrorResponse(c, http.StatusNotFound, "Room is not open")
		return
	}
	if hist == nil {
		hist = []domain.Action{}
	}
	SuccessResponse(c, http.StatusOK, HistoryResponse{RoomID: uri.RoomID, UserID: userID, History: hist, Cursor: cursor})
}
