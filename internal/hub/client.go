package hub

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub    *Hub            // 指向其所属的 Hub
	conn   *websocket.Conn // WebSocket 连接
	roomID string          // 客户端所在的房间 ID
	userID string          // 客户端的用户 ID
	send   chan []byte     // 用于向此客户端发送消息的缓冲通道
	log    *logrus.Entry
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, roomID, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		roomID: roomID,
		userID: userID,
		send:   make(chan []byte, 256),
		log:    logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID}),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump 读取客户端消息，校验和限流在这里完成，合格的操作交给 Hub 应用。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	defer func() {
		if !c.hub.queueBlocking(HubMessage{Type: MsgUnregister, RoomID: c.roomID, UserID: c.userID, Client: c}, time.Second) {
			c.log.Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		c.log.Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.log.Debug("WebSocket connection closed normally or read error")
			}
			break
		}
		if messageType != websocket.TextMessage {
			c.log.Debugf("Received non-text message type: %d", messageType)
			continue
		}
		c.log.Debugf("Received raw message (size: %d)", len(message))

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		action, err := c.hub.gate.ProcessIncomingMessage(ctx, c.roomID, c.userID, message)
		cancel()
		msg := HubMessage{Type: MsgAction, RoomID: c.roomID, UserID: c.userID, Client: c, Action: action}
		if err != nil {
			msg = HubMessage{Type: MsgReject, RoomID: c.roomID, UserID: c.userID, Client: c, Reason: err.Error()}
		}
		c.hub.QueueMessage(msg)
	}
}

// WritePump 将消息从 Client 的 send 通道泵送到 WebSocket 连接。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 注销时关闭了 send
				c.log.Info("Hub closed send channel")
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

func (c *Client) RoomID() string { return c.roomID }
func (c *Client) UserID() string { return c.userID }
func (c *Client) CloseConn()     { c.conn.Close() }
