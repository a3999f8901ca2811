// Package batch 把同一手势产生的连续操作折叠成一条 BATCH_UPDATE，撤销时一步回到手势之前。
package batch

import (
	"sync"
	"time"

	"collaborative-whiteboard/internal/actions"
	"collaborative-whiteboard/internal/domain"

	"github.com/sirupsen/logrus"
)

// Config 批次的超时与大小上限。
type Config struct {
	// Timeout 拖动/绘制类批次从开始到最后一次接收的最长时间，也是空闲自动关闭的时间
	Timeout time.Duration
	// EraseTimeout 擦除批次使用更长的窗口
	EraseTimeout time.Duration
	// MaxBatchSize 达到后强制关闭
	MaxBatchSize int
	// EraseSizeMultiplier 擦除批次的大小上限倍数
	EraseSizeMultiplier int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Timeout:             time.Second,
		EraseTimeout:        5 * time.Second,
		MaxBatchSize:        50,
		EraseSizeMultiplier: 10,
	}
}

// State 是打开中的批次。只存在于开始与关闭之间，不持久化。
type State struct {
	ID         string
	UserID     string
	ActionType domain.ActionType
	ObjectID   string
	StartTime  time.Time
	Actions    []domain.Action
}

// Coordinator 是 Idle/Open 两态状态机，transition 是唯一改变状态的地方。
// 关闭产生的 BATCH_UPDATE 通过 onClose 交给调用方，回调在锁外执行。
type Coordinator struct {
	mu      sync.Mutex
	cfg     Config
	clock   Clock
	log     *logrus.Entry
	onClose func(domain.Action)

	open  *State
	timer Timer
}

// Option 配置 Coordinator
type Option func(*Coordinator)

// WithClock 替换时钟
func WithClock(c Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithLogger 指定日志
func WithLogger(l *logrus.Entry) Option {
	return func(co *Coordinator) { co.log = l }
}

// NewCoordinator 创建协调器。onClose 接收每一个关闭时产生的批次操作。
func NewCoordinator(cfg Config, onClose func(domain.Action), opts ...Option) *Coordinator {
	if onClose == nil {
		panic("batch: onClose callback cannot be nil")
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.EraseTimeout <= 0 {
		cfg.EraseTimeout = def.EraseTimeout
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.EraseSizeMultiplier <= 0 {
		cfg.EraseSizeMultiplier = def.EraseSizeMultiplier
	}
	c := &Coordinator{
		cfg:     cfg,
		clock:   RealClock(),
		log:     logrus.WithField("component", "batch"),
		onClose: onClose,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) timeoutFor(t domain.ActionType) time.Duration {
	if t == domain.ActionErasePath {
		return c.cfg.EraseTimeout
	}
	return c.cfg.Timeout
}

func (c *Coordinator) sizeLimitFor(t domain.ActionType) int {
	if t == domain.ActionErasePath {
		return c.cfg.MaxBatchSize * c.cfg.EraseSizeMultiplier
	}
	return c.cfg.MaxBatchSize
}

// event 是状态机的输入
type event int

const (
	evStart event = iota
	evAdd
	evEnd
	evTimeout
)

type input struct {
	ev         event
	actionType domain.ActionType
	objectID   string
	userID     string
	action     domain.Action
	batchID    string
}

type output struct {
	emitted  []domain.Action
	accepted bool
	batchID  string
}

// transition 在持锁状态下执行一次状态转换。
func (c *Coordinator) transition(in input) output {
	var out output
	switch in.ev {
	case evStart:
		// 已有打开的批次先强制关闭
		if b, ok := c.closeLocked(); ok {
			out.emitted = append(out.emitted, b)
		}
		c.open = &State{
			ID:         domain.NewID(),
			UserID:     in.userID,
			ActionType: in.actionType,
			ObjectID:   in.objectID,
			StartTime:  c.clock.Now(),
		}
		c.armLocked()
		out.batchID = c.open.ID

	case evAdd:
		if c.open == nil {
			return out
		}
		if !c.acceptsLocked(in.action) {
			// 不匹配的操作不加入，当前批次就此结束
			if b, ok := c.closeLocked(); ok {
				out.emitted = append(out.emitted, b)
			}
			return out
		}
		c.open.Actions = append(c.open.Actions, in.action)
		out.accepted = true
		out.batchID = c.open.ID
		if len(c.open.Actions) >= c.sizeLimitFor(c.open.ActionType) {
			if b, ok := c.closeLocked(); ok {
				out.emitted = append(out.emitted, b)
			}
			return out
		}
		c.armLocked()

	case evEnd:
		if b, ok := c.closeLocked(); ok {
			out.emitted = append(out.emitted, b)
		}

	case evTimeout:
		// 过期的定时器：它所属的批次已经关闭或被替换
		if c.open == nil || c.open.ID != in.batchID {
			return out
		}
		if b, ok := c.closeLocked(); ok {
			out.emitted = append(out.emitted, b)
		}
	}
	return out
}

func (c *Coordinator) acceptsLocked(a domain.Action) bool {
	b := c.open
	if a.Type() != b.ActionType || a.UserID != b.UserID {
		return false
	}
	// 一次擦除手势会碰到多个对象
	if b.ActionType != domain.ActionErasePath && actions.ObjectIDOf(a) != b.ObjectID {
		return false
	}
	return c.clock.Now().Sub(b.StartTime) < c.timeoutFor(b.ActionType)
}

// armLocked 重新计时空闲超时
func (c *Coordinator) armLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	id := c.open.ID
	c.timer = c.clock.AfterFunc(c.timeoutFor(c.open.ActionType), func() {
		c.run(input{ev: evTimeout, batchID: id})
	})
}

// closeLocked 关闭当前批次；批次为空时只回到 Idle，不产生操作。
func (c *Coordinator) closeLocked() (domain.Action, bool) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	b := c.open
	c.open = nil
	if b == nil || len(b.Actions) == 0 {
		return domain.Action{}, false
	}
	first := b.Actions[0]
	batch := domain.Action{
		ID:            b.ID,
		Payload:       domain.BatchUpdatePayload{Actions: b.Actions},
		Timestamp:     c.clock.Now().UnixMilli(),
		UserID:        b.UserID,
		PreviousState: first.PreviousState,
	}
	c.log.WithFields(logrus.Fields{
		"batch_id":    b.ID,
		"action_type": b.ActionType,
		"user_id":     b.UserID,
		"size":        len(b.Actions),
	}).Debug("Batch closed")
	return batch, true
}

func (c *Coordinator) run(in input) output {
	c.mu.Lock()
	out := c.transition(in)
	c.mu.Unlock()
	for _, b := range out.emitted {
		c.onClose(b)
	}
	return out
}

// StartBatch 打开新批次并返回其 id；已有批次先被关闭。
func (c *Coordinator) StartBatch(actionType domain.ActionType, objectID, userID string) string {
	return c.run(input{ev: evStart, actionType: actionType, objectID: objectID, userID: userID}).batchID
}

// AddToBatch 尝试把操作加入当前批次。类型、用户、对象（擦除除外）都匹配且未超时才接受；
// 不接受时当前批次会被关闭，调用方应单独处理这个操作。
func (c *Coordinator) AddToBatch(a domain.Action) bool {
	return c.run(input{ev: evAdd, action: a}).accepted
}

// EndBatch 关闭当前批次，返回产生的 BATCH_UPDATE（批次为空时返回 false）。
func (c *Coordinator) EndBatch() (domain.Action, bool) {
	out := c.run(input{ev: evEnd})
	if len(out.emitted) == 0 {
		return domain.Action{}, false
	}
	return out.emitted[0], true
}

// Current 返回打开中的批次副本
func (c *Coordinator) Current() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open == nil {
		return State{}, false
	}
	cp := *c.open
	cp.Actions = append([]domain.Action(nil), c.open.Actions...)
	return cp, true
}

// IsOpen 判断是否有打开的批次
func (c *Coordinator) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open != nil
}
