// Package store 持有画板文档，所有修改都经过 Dispatch，并维护全局操作日志与每个用户的撤销历史。
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"collaborative-whiteboard/internal/actions"
	"collaborative-whiteboard/internal/domain"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

var (
	// ErrStaleReference 表示操作引用的对象已经不存在
	ErrStaleReference = errors.New("store: stale object reference")
	// ErrDuplicateObject 表示新增的对象 id 已存在
	ErrDuplicateObject = errors.New("store: duplicate object id")
	// ErrDuplicateAction 表示相同 id 的操作已经应用过，本次没有任何效果
	ErrDuplicateAction = errors.New("store: action already applied")
	// ErrNoHistoryStep 表示用户历史在该方向上没有可移动的位置
	ErrNoHistoryStep = errors.New("store: no history step available")
)

// Origin 标记操作来自本地还是其他协作者。
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// ChangeKind 区分订阅者收到的变更来源
type ChangeKind int

const (
	// ChangeDispatch 一次 Dispatch（含同步操作）
	ChangeDispatch ChangeKind = iota
	// ChangeCommit 只写入日志、不改变文档的提交（手势结束时的批次）
	ChangeCommit
	// ChangeHistory 撤销或重做直接写入的补丁
	ChangeHistory
	// ChangeReset 整体替换文档（加入房间时的快照）
	ChangeReset
)

// Change 是通知给订阅者的一次变更。
type Change struct {
	Kind      ChangeKind
	Action    domain.Action
	Origin    Origin
	Patch     domain.Patch
	Version   uint64
	Transient bool
}

// Subscriber 在 store 的锁释放后被同步调用，不能在回调里阻塞太久。
type Subscriber func(Change)

// Config 控制历史长度与去重窗口。
type Config struct {
	// MaxHistory 每个用户保留的历史条数，超出时丢弃最旧的
	MaxHistory int
	// MaxActionLog 全局操作日志保留条数
	MaxActionLog int
	// DedupWindow 记住最近多少个操作 id 用于幂等
	DedupWindow int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{MaxHistory: 500, MaxActionLog: 5000, DedupWindow: 10000}
}

// Store 是显式构造的文档实例，由应用根创建并注入给使用方。
type Store struct {
	mu  sync.Mutex
	cfg Config
	log *logrus.Entry
	now func() time.Time

	state      *domain.WhiteboardState
	actionLog  []domain.Action
	histories  map[string][]domain.Action
	cursors    map[string]int
	// seen 记录已应用的操作 id，值表示是否已写入日志
	seen       *lru.Cache[string, bool]
	version    uint64
	lastUpdate time.Time
	lastAction *domain.Action

	subMu   sync.RWMutex
	subs    []subscription
	nextSub int
}

type subscription struct {
	id int
	fn Subscriber
}

// Option 配置 Store
type Option func(*Store)

// WithLogger 指定日志
func WithLogger(l *logrus.Entry) Option {
	return func(s *Store) { s.log = l }
}

// WithClock 指定时间来源（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New 创建空文档的 Store
func New(cfg Config, opts ...Option) *Store {
	def := DefaultConfig()
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = def.MaxHistory
	}
	if cfg.MaxActionLog <= 0 {
		cfg.MaxActionLog = def.MaxActionLog
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = def.DedupWindow
	}
	seen, err := lru.New[string, bool](cfg.DedupWindow)
	if err != nil {
		panic(fmt.Sprintf("store: failed to create dedup window: %v", err))
	}
	s := &Store{
		cfg:       cfg,
		log:       logrus.WithField("component", "store"),
		now:       time.Now,
		state:     domain.NewState(),
		histories: make(map[string][]domain.Action),
		cursors:   make(map[string]int),
		seen:      seen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dispatchOptions struct {
	transient bool
}

// DispatchOption 调整单次 Dispatch 的记录行为
type DispatchOption func(*dispatchOptions)

// Transient 只应用和通知，不写入任何日志或历史。
// 手势进行中的操作使用它，手势结束后整个批次通过 Commit 记录。
func Transient() DispatchOption {
	return func(o *dispatchOptions) { o.transient = true }
}

// Dispatch 校验并应用一个操作，写日志、推进历史、递增版本号，然后通知订阅者。
//
// 返回的错误只是诊断：校验失败和重复操作不产生任何效果；
// 过期引用时文档保持一致，已执行的部分照常生效。
func (s *Store) Dispatch(a domain.Action, origin Origin, opts ...DispatchOption) (domain.Patch, error) {
	var o dispatchOptions
	for _, opt := range opts {
		opt(&o)
	}
	logCtx := s.log.WithFields(logrus.Fields{
		"action_id":   a.ID,
		"action_type": a.Type(),
		"user_id":     a.UserID,
		"origin":      origin.String(),
	})

	if err := actions.Validate(a); err != nil {
		logCtx.WithError(err).Warn("Rejected invalid action")
		return domain.Patch{}, err
	}

	s.mu.Lock()
	if s.seen.Contains(a.ID) {
		s.mu.Unlock()
		logCtx.Debug("Ignoring already applied action")
		return domain.Patch{}, ErrDuplicateAction
	}

	patch, rerr := Reduce(s.state, a)
	if errors.Is(rerr, domain.ErrInvalidAction) {
		s.mu.Unlock()
		logCtx.WithError(rerr).Warn("Rejected action that would corrupt the document")
		return domain.Patch{}, rerr
	}
	if rerr != nil {
		logCtx.WithError(rerr).Warn("Reducer reported a no-op")
	}
	s.state.Apply(patch)
	s.seen.Add(a.ID, !o.transient)

	if !o.transient && actions.ShouldRecordInHistory(a) {
		s.appendLog(a)
		// 完全没有生效的操作没有可撤销的内容
		if rerr == nil || !patch.IsEmpty() {
			s.record(a, origin)
		}
	}
	change := s.bump(a, origin, patch, ChangeDispatch)
	change.Transient = o.transient
	s.mu.Unlock()

	s.notify(change)
	return patch, rerr
}

// Commit 把已经以 Transient 方式应用过的操作（或由它们组成的批次）写入日志和历史，不再次改变文档。
// 同一个 id 只能写入一次。
func (s *Store) Commit(a domain.Action, origin Origin) error {
	if err := actions.Validate(a); err != nil {
		return err
	}
	if !actions.ShouldRecordInHistory(a) {
		return fmt.Errorf("%w: %s cannot be committed", domain.ErrInvalidAction, a.Type())
	}
	s.mu.Lock()
	if logged, ok := s.seen.Get(a.ID); ok && logged {
		s.mu.Unlock()
		return ErrDuplicateAction
	}
	s.seen.Add(a.ID, true)
	s.appendLog(a)
	s.record(a, origin)
	change := Change{Kind: ChangeCommit, Action: a, Origin: origin, Version: s.version}
	s.mu.Unlock()

	s.notify(change)
	return nil
}

// Derive 根据当前文档和历史中的操作计算要应用的补丁
type Derive func(state *domain.WhiteboardState, a domain.Action) (domain.Patch, error)

// StepHistory 在一把锁内完成一次撤销(step<0)或重做(step>0)：
// 取出游标处的操作，计算补丁，直接写入文档（不经过 Dispatch、不写历史），移动游标。
// derive 返回错误时什么都不改变。
func (s *Store) StepHistory(userID string, step int, derive Derive) (domain.Action, domain.Patch, error) {
	s.mu.Lock()
	hist := s.histories[userID]
	cursor := s.cursorLocked(userID)

	var target int
	switch {
	case step < 0 && cursor >= 0:
		target = cursor
	case step > 0 && cursor < len(hist)-1:
		target = cursor + 1
	default:
		s.mu.Unlock()
		return domain.Action{}, domain.Patch{}, ErrNoHistoryStep
	}

	a := hist[target]
	patch, err := derive(s.state, a)
	if err != nil {
		s.mu.Unlock()
		return a, domain.Patch{}, err
	}
	s.state.Apply(patch)
	if step < 0 {
		s.cursors[userID] = cursor - 1
	} else {
		s.cursors[userID] = cursor + 1
	}
	change := s.bump(a, OriginLocal, patch, ChangeHistory)
	s.mu.Unlock()

	s.notify(change)
	return a, patch, nil
}

// LoadSnapshot 用快照整体替换文档，历史保持不变。
func (s *Store) LoadSnapshot(state *domain.WhiteboardState) {
	cp := state.Clone()
	if cp.Objects == nil {
		cp.Objects = make(map[string]*domain.WhiteboardObject)
	}
	cp.SelectedObjectIDs = cp.FilterSelection(cp.SelectedObjectIDs)

	s.mu.Lock()
	s.state = cp
	s.version++
	s.lastUpdate = s.now()
	change := Change{Kind: ChangeReset, Origin: OriginRemote, Version: s.version}
	s.mu.Unlock()

	s.notify(change)
}

// appendLog 追加到全局日志并保持上限
func (s *Store) appendLog(a domain.Action) {
	s.actionLog = append(s.actionLog, a)
	if over := len(s.actionLog) - s.cfg.MaxActionLog; over > 0 {
		s.actionLog = append([]domain.Action(nil), s.actionLog[over:]...)
	}
}

// record 写入操作者的个人历史。
// 本地操作先截掉游标之后的重做分支再追加并推进游标；
// 远端操作只追加，游标只由“那个用户自己的客户端”移动。
func (s *Store) record(a domain.Action, origin Origin) {
	hist := s.histories[a.UserID]
	cursor := s.cursorLocked(a.UserID)
	if origin == OriginLocal {
		hist = append(hist[:cursor+1:cursor+1], a)
		cursor = len(hist) - 1
	} else {
		hist = append(hist, a)
	}
	if over := len(hist) - s.cfg.MaxHistory; over > 0 {
		hist = append([]domain.Action(nil), hist[over:]...)
		cursor -= over
		if cursor < -1 {
			cursor = -1
		}
	}
	s.histories[a.UserID] = hist
	s.cursors[a.UserID] = cursor
}

func (s *Store) cursorLocked(userID string) int {
	if c, ok := s.cursors[userID]; ok {
		return c
	}
	return -1
}

func (s *Store) bump(a domain.Action, origin Origin, patch domain.Patch, kind ChangeKind) Change {
	s.version++
	s.lastUpdate = s.now()
	last := a
	s.lastAction = &last
	return Change{Kind: kind, Action: a, Origin: origin, Patch: patch, Version: s.version}
}

// Subscribe 注册变更回调，按注册顺序调用，返回取消函数
func (s *Store) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify(c Change) {
	s.subMu.RLock()
	subs := append([]subscription(nil), s.subs...)
	s.subMu.RUnlock()
	for _, sub := range subs {
		sub.fn(c)
	}
}
