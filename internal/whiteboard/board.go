// Package whiteboard 把文档、批次、撤销和同步组合成一个用户视角的画板。
// 工具层只调用这里的便捷方法，每个方法构造一条带旧状态的操作并交给 store。
package whiteboard

import (
	"context"
	"errors"
	"fmt"

	"collaborative-whiteboard/internal/actions"
	"collaborative-whiteboard/internal/batch"
	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/eraser"
	"collaborative-whiteboard/internal/store"
	"collaborative-whiteboard/internal/syncbridge"
	"collaborative-whiteboard/internal/undo"

	"github.com/sirupsen/logrus"
)

// ErrNoEffect 表示没有任何对象受影响，因此没有产生操作
var ErrNoEffect = errors.New("whiteboard: nothing to change")

// Config 汇总各组件的配置
type Config struct {
	Store  store.Config
	Batch  batch.Config
	Policy actions.BroadcastPolicy
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Store: store.DefaultConfig(), Batch: batch.DefaultConfig()}
}

// Board 是一个用户连接到一份文档的入口
type Board struct {
	user    string
	store   *store.Store
	factory actions.Factory
	batches *batch.Coordinator
	undo    *undo.Manager
	bridge  *syncbridge.Bridge
	log     *logrus.Entry
}

type options struct {
	clock batch.Clock
	log   *logrus.Entry
}

// Option 配置 Board
type Option func(*options)

// WithClock 替换时钟，批次定时器和时间戳都从这里取
func WithClock(c batch.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger 指定日志
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) { o.log = l }
}

// New 为 userID 创建画板。ch 为 nil 时是单机模式。
func New(userID string, ch syncbridge.Channel, cfg Config, opts ...Option) *Board {
	if userID == "" {
		panic("whiteboard: userID cannot be empty")
	}
	o := options{clock: batch.RealClock(), log: logrus.WithField("component", "whiteboard")}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.WithField("user_id", userID)

	b := &Board{
		user:    userID,
		factory: actions.Factory{UserID: userID, Now: o.clock.Now},
		log:     log,
	}
	b.store = store.New(cfg.Store, store.WithClock(o.clock.Now), store.WithLogger(log.WithField("component", "store")))
	b.bridge = syncbridge.New(b.store, ch,
		syncbridge.WithPolicy(cfg.Policy),
		syncbridge.WithLogger(log.WithField("component", "syncbridge")))
	b.undo = undo.NewManager(b.store,
		undo.WithBroadcaster(b.bridge),
		undo.WithClock(o.clock.Now),
		undo.WithLogger(log.WithField("component", "undo")))
	b.batches = batch.NewCoordinator(cfg.Batch, b.commitBatch,
		batch.WithClock(o.clock),
		batch.WithLogger(log.WithField("component", "batch")))
	return b
}

// UserID 返回画板所属用户
func (b *Board) UserID() string { return b.user }

// Store 返回底层文档，供渲染层订阅
func (b *Board) Store() *store.Store { return b.store }

// Bridge 返回同步桥，传输层把收到的消息交给它
func (b *Board) Bridge() *syncbridge.Bridge { return b.bridge }

// State 返回当前文档的副本
func (b *Board) State() *domain.WhiteboardState { return b.store.State() }

// commitBatch 把手势结束时的批次写入历史；子操作已经应用并广播过
func (b *Board) commitBatch(a domain.Action) {
	if err := b.store.Commit(a, store.OriginLocal); err != nil {
		b.log.WithError(err).WithField("batch_id", a.ID).Error("Failed to commit gesture batch")
	}
}

func (b *Board) create(payload domain.Payload) (domain.Action, error) {
	return b.factory.New(b.store.State(), payload)
}

// dispatch 在手势进行中以临时方式应用操作并尝试加入批次，批次不接受时单独记录；
// 没有手势时就是普通的 Dispatch。
func (b *Board) dispatch(a domain.Action) error {
	if !b.batches.IsOpen() {
		_, err := b.store.Dispatch(a, store.OriginLocal)
		return err
	}
	patch, err := b.store.Dispatch(a, store.OriginLocal, store.Transient())
	if err != nil && (patch.IsEmpty() || errors.Is(err, domain.ErrInvalidAction)) {
		return err
	}
	if !b.batches.AddToBatch(a) {
		if cerr := b.store.Commit(a, store.OriginLocal); cerr != nil {
			return errors.Join(err, cerr)
		}
	}
	return err
}

func (b *Board) apply(payload domain.Payload) (domain.Action, error) {
	a, err := b.create(payload)
	if err != nil {
		return domain.Action{}, err
	}
	return a, b.dispatch(a)
}

// AddObject 新增对象，id 为空时自动生成
func (b *Board) AddObject(obj domain.WhiteboardObject) (domain.Action, error) {
	if obj.ID == "" {
		obj.ID = domain.NewID()
	}
	return b.apply(domain.AddObjectPayload{Object: obj})
}

// UpdateObject 浅合并对象属性
func (b *Board) UpdateObject(id string, updates domain.ObjectUpdates) (domain.Action, error) {
	return b.apply(domain.UpdateObjectPayload{ID: id, Updates: updates})
}

// DeleteObject 删除对象
func (b *Board) DeleteObject(id string) (domain.Action, error) {
	return b.apply(domain.DeleteObjectPayload{ID: id})
}

// SelectObjects 替换选区
func (b *Board) SelectObjects(ids ...string) (domain.Action, error) {
	if ids == nil {
		ids = []string{}
	}
	return b.apply(domain.SelectObjectsPayload{IDs: ids})
}

// UpdateViewport 平移或缩放
func (b *Board) UpdateViewport(u domain.ViewportUpdate) (domain.Action, error) {
	return b.apply(domain.UpdateViewportPayload{Viewport: u})
}

// UpdateSettings 修改画板设置
func (b *Board) UpdateSettings(u domain.SettingsUpdate) (domain.Action, error) {
	return b.apply(domain.UpdateSettingsPayload{Settings: u})
}

// ClearCanvas 清空画布
func (b *Board) ClearCanvas() (domain.Action, error) {
	return b.apply(domain.ClearCanvasPayload{})
}

// DeleteObjectsInArea 删除包围盒与 area 相交的所有对象
func (b *Board) DeleteObjectsInArea(area domain.Rect) (domain.Action, error) {
	var payload domain.DeleteObjectsInAreaPayload
	b.store.View(func(state *domain.WhiteboardState) {
		payload = actions.AreaPayload(state, area)
	})
	if len(payload.ObjectIDs) == 0 {
		return domain.Action{}, ErrNoEffect
	}
	return b.apply(payload)
}

// ErasePixels 用一组橡皮擦切分所有被触及的笔画。
// 手势进行中每条 ERASE_PATH 加入当前批次；否则多条结果合成一条 BATCH_UPDATE，一次撤销即可恢复。
func (b *Board) ErasePixels(erasers ...eraser.Eraser) ([]domain.Action, error) {
	var payloads []domain.ErasePathPayload
	b.store.View(func(state *domain.WhiteboardState) {
		payloads = actions.ErasePayloads(state, erasers)
	})
	if len(payloads) == 0 {
		return nil, ErrNoEffect
	}

	out := make([]domain.Action, 0, len(payloads))
	if b.batches.IsOpen() || len(payloads) == 1 {
		var errs []error
		for _, p := range payloads {
			a, err := b.apply(p)
			if a.ID != "" {
				out = append(out, a)
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
		return out, errors.Join(errs...)
	}

	state := b.store.State()
	for _, p := range payloads {
		a, err := b.factory.New(state, p)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	batchAction, err := b.factory.Batch(out)
	if err != nil {
		return nil, fmt.Errorf("whiteboard: erase batch: %w", err)
	}
	_, err = b.store.Dispatch(batchAction, store.OriginLocal)
	return []domain.Action{batchAction}, err
}

// BeginGesture 开始一次拖动、绘制或擦除手势，之后同类操作会被折叠成一步。
// 擦除手势的 objectID 可以为空。
func (b *Board) BeginGesture(t domain.ActionType, objectID string) string {
	return b.batches.StartBatch(t, objectID, b.user)
}

// EndGesture 结束手势，返回记录到历史的批次
func (b *Board) EndGesture() (domain.Action, bool) {
	return b.batches.EndBatch()
}

// InGesture 是否有未结束的手势
func (b *Board) InGesture() bool { return b.batches.IsOpen() }

// Undo 撤销自己最近的一步。未结束的手势先被关闭。
func (b *Board) Undo(ctx context.Context) error {
	b.batches.EndBatch()
	return b.undo.Undo(ctx, b.user)
}

// Redo 重做自己撤销过的一步
func (b *Board) Redo(ctx context.Context) error {
	b.batches.EndBatch()
	return b.undo.Redo(ctx, b.user)
}

// CanUndo 自己是否有可撤销的操作
func (b *Board) CanUndo() bool { return b.undo.CanUndo(b.user) }

// CanRedo 自己是否有可重做的操作
func (b *Board) CanRedo() bool { return b.undo.CanRedo(b.user) }

// Close 结束手势并断开同步
func (b *Board) Close() {
	b.batches.EndBatch()
	b.bridge.Close()
}
