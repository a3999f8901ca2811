package syncbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"collaborative-whiteboard/internal/actions"
	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/store"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// DefaultSeenWindow 记住最近收发的操作 id 数量
const DefaultSeenWindow = 4096

// Bridge 订阅 store 的本地变更并发送到 Channel，同时把远端消息按远端来源写回 store。
// 远端操作绝不会再次广播。
type Bridge struct {
	store  *store.Store
	ch     Channel
	policy actions.BroadcastPolicy
	sender string
	log    *logrus.Entry

	seen *lru.Cache[string, struct{}]

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	mu     sync.Mutex
	closed bool
}

// Option 配置 Bridge
type Option func(*Bridge)

// WithPolicy 设置广播策略
func WithPolicy(p actions.BroadcastPolicy) Option {
	return func(b *Bridge) { b.policy = p }
}

// WithSender 指定本端标识，默认随机生成
func WithSender(id string) Option {
	return func(b *Bridge) { b.sender = id }
}

// WithLogger 指定日志
func WithLogger(l *logrus.Entry) Option {
	return func(b *Bridge) { b.log = l }
}

// WithSeenWindow 调整回声抑制窗口
func WithSeenWindow(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			if c, err := lru.New[string, struct{}](n); err == nil {
				b.seen = c
			}
		}
	}
}

// New 创建桥并立即订阅 store。ch 为 nil 时只接收远端消息，本地操作不发送。
func New(s *store.Store, ch Channel, opts ...Option) *Bridge {
	if s == nil {
		panic("Store cannot be nil for sync Bridge")
	}
	seen, err := lru.New[string, struct{}](DefaultSeenWindow)
	if err != nil {
		panic(fmt.Sprintf("syncbridge: failed to create seen window: %v", err))
	}
	b := &Bridge{
		store:  s,
		ch:     ch,
		sender: domain.NewID(),
		log:    logrus.WithField("component", "syncbridge"),
		seen:   seen,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.unsubscribe = s.Subscribe(b.onChange)
	return b
}

// Sender 返回本端标识
func (b *Bridge) Sender() string { return b.sender }

// Connected 通道可用且桥未关闭
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	return !closed && b.ch != nil && b.ch.Connected()
}

// onChange 只转发本地 Dispatch 产生的操作；
// 手势中的子操作也实时发出，手势结束时的批次只提交到本地日志。
func (b *Bridge) onChange(c store.Change) {
	if c.Kind != store.ChangeDispatch || c.Origin != store.OriginLocal {
		return
	}
	if !b.policy.ShouldBroadcast(c.Action) || !b.Connected() {
		return
	}
	if err := b.SendAction(b.ctx, c.Action); err != nil {
		b.log.WithError(err).WithFields(logrus.Fields{
			"action_id":   c.Action.ID,
			"action_type": c.Action.Type(),
		}).Warn("Failed to broadcast local action")
	}
}

// SendAction 把一条操作发到通道
func (b *Bridge) SendAction(ctx context.Context, a domain.Action) error {
	if !b.Connected() {
		return ErrDisconnected
	}
	b.seen.Add(a.ID, struct{}{})
	return b.ch.Publish(ctx, Envelope{Type: EnvelopeAction, Sender: b.sender, Action: &a})
}

// ApplyRemoteAction 以远端来源应用一条操作。自己发出过的操作被忽略。
// 返回的错误与 store.Dispatch 相同，只用于诊断。
func (b *Bridge) ApplyRemoteAction(a domain.Action) error {
	if b.seen.Contains(a.ID) {
		return store.ErrDuplicateAction
	}
	_, err := b.store.Dispatch(a, store.OriginRemote)
	if !errors.Is(err, domain.ErrInvalidAction) {
		b.seen.Add(a.ID, struct{}{})
	}
	return err
}

// ApplyRemoteSnapshot 按顺序应用一批远端操作，返回实际生效的条数。
// 单条失败不影响后续操作。
func (b *Bridge) ApplyRemoteSnapshot(list []domain.Action) int {
	applied := 0
	for _, a := range list {
		err := b.ApplyRemoteAction(a)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, store.ErrDuplicateAction):
		default:
			b.log.WithError(err).WithField("action_id", a.ID).Debug("Snapshot action not fully applied")
		}
	}
	return applied
}

// ApplyRemoteState 用服务端的整体状态替换本地文档，历史不变。
func (b *Bridge) ApplyRemoteState(state *domain.WhiteboardState) {
	if state == nil {
		return
	}
	b.store.LoadSnapshot(state)
}

// HandleEnvelope 处理从通道收到的一条消息
func (b *Bridge) HandleEnvelope(env Envelope) error {
	if env.Sender != "" && env.Sender == b.sender {
		return nil
	}
	switch env.Type {
	case EnvelopeAction:
		if env.Action == nil {
			return fmt.Errorf("%w: action envelope without action", ErrBadEnvelope)
		}
		err := b.ApplyRemoteAction(*env.Action)
		if errors.Is(err, store.ErrDuplicateAction) {
			return nil
		}
		return err
	case EnvelopeSnapshot:
		b.ApplyRemoteState(env.State)
		b.ApplyRemoteSnapshot(env.Actions)
		return nil
	case EnvelopeError:
		b.log.WithField("message", env.Message).Warn("Peer rejected a message")
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrBadEnvelope, env.Type)
	}
}

// Close 取消订阅，之后不再发送
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	b.unsubscribe()
	b.cancel()
}
