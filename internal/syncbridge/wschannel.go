package syncbridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// WSChannel 是连接到中继服务器的 websocket 客户端通道。
type WSChannel struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	connected atomic.Bool
	log       *logrus.Entry
}

// Dial 连接中继服务器，header 一般携带 Authorization
func Dial(ctx context.Context, url string, header http.Header) (*WSChannel, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("syncbridge: dial %s failed with status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("syncbridge: dial %s: %w", url, err)
	}
	c := &WSChannel{conn: conn, log: logrus.WithFields(logrus.Fields{"component": "wschannel", "url": url})}
	c.connected.Store(true)
	return c, nil
}

// Connected 连接是否仍然可用
func (c *WSChannel) Connected() bool { return c.connected.Load() }

// Publish 写出一条消息；写失败后通道标记为断开
func (c *WSChannel) Publish(ctx context.Context, env Envelope) error {
	if !c.Connected() {
		return ErrDisconnected
	}
	data, err := Encode(env)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.connected.Store(false)
		return fmt.Errorf("syncbridge: write %s envelope: %w", env.Type, err)
	}
	return nil
}

// Run 读取消息直到连接关闭或 ctx 取消，每条合法消息交给 handle。
// 无法解析的消息记录后跳过。
func (c *WSChannel) Run(ctx context.Context, handle func(Envelope)) error {
	defer c.connected.Store(false)
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPingHandler(func(appData string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("syncbridge: read: %w", err)
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != websocket.TextMessage {
			continue
		}
		env, err := Decode(data)
		if err != nil {
			c.log.WithError(err).Warn("Dropping undecodable message")
			continue
		}
		handle(env)
	}
}

// Close 发送关闭帧并断开连接
func (c *WSChannel) Close() error {
	if !c.connected.Swap(false) {
		return nil
	}
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.writeMu.Unlock()
	cerr := c.conn.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return errors.Join(werr, cerr)
	}
	return cerr
}
