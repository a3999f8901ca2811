// Package syncbridge 连接本地文档与多人协作通道：
// 把本地操作发出去，把远端操作、快照和 SYNC_* 补丁按远端来源写入 store。
package syncbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"collaborative-whiteboard/internal/domain"
)

var (
	// ErrDisconnected 通道不可用时发送失败
	ErrDisconnected = errors.New("syncbridge: channel disconnected")
	// ErrBadEnvelope 收到无法识别的消息
	ErrBadEnvelope = errors.New("syncbridge: malformed envelope")
)

// EnvelopeType 是线上消息的类型
type EnvelopeType string

const (
	// EnvelopeAction 携带一条操作
	EnvelopeAction EnvelopeType = "action"
	// EnvelopeSnapshot 加入房间或重新同步时的整体状态，可以附带之后的操作
	EnvelopeSnapshot EnvelopeType = "snapshot"
	// EnvelopeError 服务端拒绝了某条消息
	EnvelopeError EnvelopeType = "error"
)

// Envelope 是 websocket 和 Redis 上传输的 JSON 消息。
type Envelope struct {
	Type EnvelopeType `json:"type"`
	// Sender 标识发出消息的桥或服务实例，用于丢弃自己的回声
	Sender  string                  `json:"sender,omitempty"`
	Action  *domain.Action          `json:"action,omitempty"`
	Actions []domain.Action         `json:"actions,omitempty"`
	State   *domain.WhiteboardState `json:"state,omitempty"`
	Version uint64                  `json:"version,omitempty"`
	Message string                  `json:"message,omitempty"`
}

// Channel 是外部多人传输的抽象。
type Channel interface {
	Publish(ctx context.Context, env Envelope) error
	Connected() bool
}

// Encode 把消息编码为 JSON
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("syncbridge: failed to encode %s envelope: %w", env.Type, err)
	}
	return data, nil
}

// Decode 解析并检查消息的基本形状
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	switch env.Type {
	case EnvelopeAction:
		if env.Action == nil {
			return Envelope{}, fmt.Errorf("%w: action envelope without action", ErrBadEnvelope)
		}
	case EnvelopeSnapshot:
		if env.State == nil && len(env.Actions) == 0 {
			return Envelope{}, fmt.Errorf("%w: empty snapshot", ErrBadEnvelope)
		}
	case EnvelopeError:
	default:
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrBadEnvelope, env.Type)
	}
	return env, nil
}
