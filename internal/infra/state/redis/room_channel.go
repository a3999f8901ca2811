package redisstate

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/syncbridge"
)

// RoomChannel 是基于 Redis 发布订阅的房间通道，多个服务实例通过它交换同一房间的操作。
// 自己发布的消息也会收到，由 Bridge 按 Sender 丢弃。
type RoomChannel struct {
	client    *redis.Client
	channel   string
	pubsub    *redis.PubSub
	connected atomic.Bool
	log       *logrus.Entry
}

// NewRoomChannel 创建房间通道，调用 Subscribe 之后才算连接
func NewRoomChannel(client *redis.Client, keyPrefix, roomID string) *RoomChannel {
	if client == nil {
		panic("redis client cannot be nil for RoomChannel")
	}
	channel := roomPubSubChannel(normalizePrefix(keyPrefix), roomID)
	return &RoomChannel{
		client:  client,
		channel: channel,
		log:     logrus.WithFields(logrus.Fields{"component": "room_channel", "channel": channel}),
	}
}

func roomPubSubChannel(prefix, roomID string) string {
	return roomKey(prefix, roomID, "pubsub")
}

// Name 返回 Redis 频道名
func (c *RoomChannel) Name() string { return c.channel }

// Subscribe 订阅频道并等待 Redis 确认
func (c *RoomChannel) Subscribe(ctx context.Context) error {
	ps := c.client.Subscribe(ctx, c.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis: failed to subscribe to %s: %w", c.channel, err)
	}
	c.pubsub = ps
	c.connected.Store(true)
	c.log.Debug("Subscribed to room channel")
	return nil
}

// Connected 订阅有效且尚未关闭
func (c *RoomChannel) Connected() bool { return c.connected.Load() }

// Publish 把消息发布到房间频道
func (c *RoomChannel) Publish(ctx context.Context, env syncbridge.Envelope) error {
	if !c.Connected() {
		return syncbridge.ErrDisconnected
	}
	data, err := syncbridge.Encode(env)
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, c.channel, data).Err(); err != nil {
		c.log.WithFields(logrus.Fields{
			"payload_size":  len(data),
			"envelope_type": env.Type,
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish to channel %s: %w", c.channel, err)
	}
	return nil
}

// Run 把收到的消息交给 handle，直到 ctx 取消或通道关闭。
func (c *RoomChannel) Run(ctx context.Context, handle func(syncbridge.Envelope)) error {
	if c.pubsub == nil {
		return syncbridge.ErrDisconnected
	}
	defer c.connected.Store(false)
	msgs := c.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			env, err := syncbridge.Decode([]byte(msg.Payload))
			if err != nil {
				c.log.WithError(err).Warn("Dropping undecodable pubsub message")
				continue
			}
			handle(env)
		}
	}
}

// Close 取消订阅
func (c *RoomChannel) Close() error {
	if !c.connected.Swap(false) || c.pubsub == nil {
		return nil
	}
	if err := c.pubsub.Close(); err != nil {
		return fmt.Errorf("redis: failed to close subscription %s: %w", c.channel, err)
	}
	return nil
}
