package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/service"
	"collaborative-whiteboard/internal/store"
	"collaborative-whiteboard/internal/syncbridge"
	"collaborative-whiteboard/internal/tasks"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 擦除批次会携带较多路径点。
	maxMessageSize = 512 * 1024

	// openRoomTimeout 是打开房间时加载快照的超时
	openRoomTimeout = 5 * time.Second
)

// MessageType 是 Hub 内部事件的类型
type MessageType string

const (
	MsgRegister   MessageType = "register"
	MsgUnregister MessageType = "unregister"
	MsgAction     MessageType = "action" // 客户端发来的已校验操作
	MsgReject     MessageType = "reject" // 告诉客户端某条消息被拒绝
	MsgRemote     MessageType = "remote" // 其他实例经 Redis 发来的消息
)

// HubMessage 定义了在 Hub 内部通道传递的消息
type HubMessage struct {
	Type     MessageType
	RoomID   string
	UserID   string
	Client   *Client
	Action   domain.Action
	Envelope syncbridge.Envelope
	Reason   string
}

// Gatekeeper 校验客户端消息并在操作应用后做计数和归档，由 service.CollaborationService 实现
type Gatekeeper interface {
	ProcessIncomingMessage(ctx context.Context, roomID, userID string, raw []byte) (domain.Action, error)
	RecordApplied(ctx context.Context, roomID string, a domain.Action)
}

// DocumentLoader 加载房间的持久化文档，由 service.SnapshotService 实现
type DocumentLoader interface {
	LoadLatest(ctx context.Context, roomID string) (*service.RoomDocument, error)
}

// RoomChannel 是跨实例的房间通道
type RoomChannel interface {
	syncbridge.Channel
	Run(ctx context.Context, handle func(syncbridge.Envelope)) error
	Close() error
}

// ChannelFactory 为房间打开跨实例通道
type ChannelFactory func(ctx context.Context, roomID string) (RoomChannel, error)

// Config 是 Hub 的配置
type Config struct {
	Store store.Config
	// IdleRooms 是无人房间在内存里保留的数量，IdleTTL 是保留时长
	IdleRooms int
	IdleTTL   time.Duration
	// InstanceID 标识本实例发到房间频道的消息，带同一标识的回声会被忽略；为空时每个房间随机生成
	InstanceID string
	// SeenWindow 是跨实例回声抑制记住的操作数，0 使用默认值
	SeenWindow int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Store: store.DefaultConfig(), IdleRooms: 128, IdleTTL: 10 * time.Minute}
}

// room 是一个打开的房间：服务端副本文档、通道和在线客户端
type room struct {
	id            string
	store         *store.Store
	bridge        *syncbridge.Bridge
	channel       RoomChannel
	cancel        context.CancelFunc
	clients       map[*Client]bool
	loadedVersion uint64
}

// Hub 维护房间和客户端，所有房间事件在 Run 的一个 goroutine 里按顺序处理。
type Hub struct {
	messageChan chan HubMessage
	done        chan struct{}
	finished    chan struct{}
	stopOnce    sync.Once

	rooms   map[string]*room
	roomsMu sync.RWMutex

	// 无人房间的文档，再次打开时直接复用
	idle *expirable.LRU[string, *store.Store]

	cfg      Config
	gate     Gatekeeper
	docs     DocumentLoader
	channels ChannelFactory
	tasks    service.TaskEnqueuer
	log      *logrus.Entry
}

// Option 配置 Hub
type Option func(*Hub)

// WithDocumentLoader 打开房间时从快照恢复
func WithDocumentLoader(d DocumentLoader) Option {
	return func(h *Hub) { h.docs = d }
}

// WithChannelFactory 启用跨实例同步
func WithChannelFactory(f ChannelFactory) Option {
	return func(h *Hub) { h.channels = f }
}

// WithTaskEnqueuer 房间关闭时投递快照保存任务
func WithTaskEnqueuer(t service.TaskEnqueuer) Option {
	return func(h *Hub) { h.tasks = t }
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(cfg Config, gate Gatekeeper, opts ...Option) *Hub {
	if gate == nil {
		panic("Gatekeeper cannot be nil for Hub")
	}
	if cfg.IdleRooms <= 0 {
		cfg.IdleRooms = DefaultConfig().IdleRooms
	}
	h := &Hub{
		messageChan: make(chan HubMessage, 512),
		done:        make(chan struct{}),
		finished:    make(chan struct{}),
		rooms:       make(map[string]*room),
		cfg:         cfg,
		gate:        gate,
		log:         logrus.WithField("component", "hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.idle = expirable.NewLRU[string, *store.Store](cfg.IdleRooms, func(roomID string, _ *store.Store) {
		h.log.WithField("room_id", roomID).Debug("Idle room evicted from memory")
	}, cfg.IdleTTL)
	return h
}

// Run 启动 Hub 的主事件处理循环，直到 Stop 被调用。
func (h *Hub) Run() {
	h.log.Info("Hub is running...")
	defer close(h.finished)
	for {
		select {
		case <-h.done:
			h.closeAllRooms()
			h.log.Info("Hub stopped")
			return
		case msg := <-h.messageChan:
			h.handle(msg)
		}
	}
}

// stopWait 是 Stop 等待事件循环关闭房间的最长时间
const stopWait = 5 * time.Second

// Stop 停止事件循环，等待所有房间关闭
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
	select {
	case <-h.finished:
	case <-time.After(stopWait):
		h.log.Warn("Hub did not stop in time")
	}
}

func (h *Hub) handle(msg HubMessage) {
	switch msg.Type {
	case MsgRegister:
		h.registerClient(msg.Client)
	case MsgUnregister:
		h.unregisterClient(msg.Client)
	case MsgAction:
		h.handleClientAction(msg)
	case MsgReject:
		h.sendTo(msg.Client, syncbridge.Envelope{Type: syncbridge.EnvelopeError, Message: msg.Reason})
	case MsgRemote:
		h.handleRemote(msg)
	default:
		h.log.Warnf("Hub: Received unknown message type: %s from user %s in room %s", msg.Type, msg.UserID, msg.RoomID)
	}
}

// registerClient 把客户端加入房间并发送当前文档
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		h.log.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := h.log.WithFields(logrus.Fields{"room_id": client.RoomID(), "user_id": client.UserID()})

	h.roomsMu.Lock()
	r, ok := h.rooms[client.RoomID()]
	if !ok {
		r = h.openRoom(client.RoomID())
		h.rooms[r.id] = r
	}
	r.clients[client] = true
	h.roomsMu.Unlock()
	logCtx.WithField("clients", len(r.clients)).Info("Client registered to Hub")

	state, version := r.store.Snapshot()
	h.sendTo(client, syncbridge.Envelope{Type: syncbridge.EnvelopeSnapshot, State: state, Version: version})
}

// openRoom 依次从空闲缓存、持久化快照恢复文档，都没有时新建空文档。
// 调用方持有 roomsMu。
func (h *Hub) openRoom(roomID string) *room {
	logCtx := h.log.WithField("room_id", roomID)
	ctx, cancel := context.WithCancel(context.Background())
	r := &room{id: roomID, cancel: cancel, clients: make(map[*Client]bool)}

	st, cached := h.idle.Get(roomID)
	if cached {
		h.idle.Remove(roomID)
	} else {
		st = store.New(h.cfg.Store, store.WithLogger(logCtx.WithField("component", "store")))
	}
	r.store = st

	var ch syncbridge.Channel
	if h.channels != nil {
		rc, err := h.channels(ctx, roomID)
		if err != nil {
			logCtx.WithError(err).Warn("Failed to open cross-instance channel, room is local to this instance")
		} else {
			r.channel = rc
			ch = rc
		}
	}
	bridgeOpts := []syncbridge.Option{syncbridge.WithLogger(logCtx.WithField("component", "syncbridge"))}
	if h.cfg.InstanceID != "" {
		bridgeOpts = append(bridgeOpts, syncbridge.WithSender(h.cfg.InstanceID))
	}
	if h.cfg.SeenWindow > 0 {
		bridgeOpts = append(bridgeOpts, syncbridge.WithSeenWindow(h.cfg.SeenWindow))
	}
	r.bridge = syncbridge.New(st, ch, bridgeOpts...)

	if !cached && h.docs != nil {
		loadCtx, cancelLoad := context.WithTimeout(ctx, openRoomTimeout)
		doc, err := h.docs.LoadLatest(loadCtx, roomID)
		cancelLoad()
		if err != nil {
			logCtx.WithError(err).Error("Failed to load room document, starting empty")
		} else {
			r.bridge.ApplyRemoteState(doc.State)
			applied := r.bridge.ApplyRemoteSnapshot(doc.Tail)
			logCtx.WithFields(logrus.Fields{"objects": len(doc.State.Objects), "replayed": applied}).Info("Room document restored")
		}
	}
	r.loadedVersion = st.Version()

	if r.channel != nil {
		go func(rc RoomChannel) {
			err := rc.Run(ctx, func(env syncbridge.Envelope) {
				h.QueueMessage(HubMessage{Type: MsgRemote, RoomID: roomID, Envelope: env})
			})
			if err != nil {
				logCtx.WithError(err).Warn("Cross-instance channel stopped")
			}
		}(r.channel)
	}
	logCtx.WithField("from_cache", cached).Info("Room opened")
	return r
}

// unregisterClient 移除客户端，房间空了就关闭
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		h.log.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := h.log.WithFields(logrus.Fields{"room_id": client.RoomID(), "user_id": client.UserID()})

	h.roomsMu.Lock()
	r, ok := h.rooms[client.RoomID()]
	if !ok || !r.clients[client] {
		h.roomsMu.Unlock()
		logCtx.Warn("Client not found during unregister")
		return
	}
	delete(r.clients, client)
	close(client.send)
	empty := len(r.clients) == 0
	if empty {
		delete(h.rooms, r.id)
	}
	h.roomsMu.Unlock()
	logCtx.Info("Client unregistered from Hub")

	if empty {
		h.closeRoom(r)
	}
}

// closeRoom 断开跨实例通道，文档进入空闲缓存，有改动时投递快照任务
func (h *Hub) closeRoom(r *room) {
	logCtx := h.log.WithField("room_id", r.id)
	r.bridge.Close()
	r.cancel()
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			logCtx.WithError(err).Warn("Failed to close cross-instance channel")
		}
	}
	h.idle.Add(r.id, r.store)

	state, version := r.store.Snapshot()
	if version > r.loadedVersion && h.tasks != nil {
		task, err := tasks.NewSnapshotSaveTask(r.id, version, state)
		if err == nil {
			_, err = h.tasks.EnqueueContext(context.Background(), task)
		}
		if err != nil {
			logCtx.WithError(err).Error("Failed to enqueue snapshot save")
		}
	}
	logCtx.WithField("version", version).Info("Room closed")
}

func (h *Hub) closeAllRooms() {
	h.roomsMu.Lock()
	rooms := make([]*room, 0, len(h.rooms))
	for id, r := range h.rooms {
		for c := range r.clients {
			close(c.send)
		}
		r.clients = nil
		rooms = append(rooms, r)
		delete(h.rooms, id)
	}
	h.roomsMu.Unlock()
	for _, r := range rooms {
		h.closeRoom(r)
	}
}

// handleClientAction 以远端来源应用客户端的操作，然后转发给房间内其他客户端和其他实例
func (h *Hub) handleClientAction(msg HubMessage) {
	r := h.room(msg.RoomID)
	if r == nil || !r.clients[msg.Client] {
		return
	}
	a := msg.Action
	logCtx := h.log.WithFields(logrus.Fields{
		"room_id":     msg.RoomID,
		"user_id":     msg.UserID,
		"action_id":   a.ID,
		"action_type": a.Type(),
	})

	err := r.bridge.ApplyRemoteAction(a)
	switch {
	case errors.Is(err, store.ErrDuplicateAction):
		logCtx.Debug("Duplicate action ignored")
		return
	case errors.Is(err, domain.ErrInvalidAction):
		logCtx.WithError(err).Warn("Action rejected by store")
		h.sendTo(msg.Client, syncbridge.Envelope{Type: syncbridge.EnvelopeError, Message: err.Error()})
		return
	case err != nil:
		// 过期引用等诊断：其他端会得到同样的结果，照常转发
		logCtx.WithError(err).Debug("Action applied with diagnostics")
	}

	h.broadcast(r, syncbridge.Envelope{Type: syncbridge.EnvelopeAction, Action: &a}, msg.Client)

	if r.bridge.Connected() {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		if err := r.bridge.SendAction(ctx, a); err != nil {
			logCtx.WithError(err).Warn("Failed to publish action to other instances")
		}
		cancel()
	}
	go h.gate.RecordApplied(context.Background(), msg.RoomID, a)
}

// handleRemote 处理其他实例发来的消息，生效的操作转发给本实例的客户端
func (h *Hub) handleRemote(msg HubMessage) {
	r := h.room(msg.RoomID)
	if r == nil {
		return
	}
	env := msg.Envelope
	if env.Sender == r.bridge.Sender() {
		return
	}
	if env.Type != syncbridge.EnvelopeAction || env.Action == nil {
		if err := r.bridge.HandleEnvelope(env); err != nil {
			h.log.WithField("room_id", r.id).WithError(err).Warn("Failed to handle remote envelope")
		}
		return
	}
	err := r.bridge.ApplyRemoteAction(*env.Action)
	if errors.Is(err, store.ErrDuplicateAction) || errors.Is(err, domain.ErrInvalidAction) {
		return
	}
	h.broadcast(r, syncbridge.Envelope{Type: syncbridge.EnvelopeAction, Action: env.Action}, nil)
}

func (h *Hub) room(roomID string) *room {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return h.rooms[roomID]
}

// sendTo 非阻塞地把消息放入客户端的发送队列，客户端已离开时忽略
func (h *Hub) sendTo(c *Client, env syncbridge.Envelope) {
	if c == nil {
		return
	}
	r := h.room(c.RoomID())
	if r == nil || !r.clients[c] {
		return
	}
	data, err := syncbridge.Encode(env)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode message for client")
		return
	}
	select {
	case c.send <- data:
	default:
		h.log.WithFields(logrus.Fields{"room_id": c.RoomID(), "user_id": c.UserID()}).Warn("Client send channel full, message dropped")
	}
}

// broadcast 将消息发送给房间内除 sender 之外的所有客户端
func (h *Hub) broadcast(r *room, env syncbridge.Envelope, sender *Client) {
	data, err := syncbridge.Encode(env)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode broadcast message")
		return
	}
	h.roomsMu.RLock()
	recipients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		if c != sender {
			recipients = append(recipients, c)
		}
	}
	h.roomsMu.RUnlock()
	if len(recipients) == 0 {
		return
	}

	logCtx := h.log.WithFields(logrus.Fields{
		"room_id":         r.id,
		"message_size":    len(data),
		"recipient_count": len(recipients),
	})
	logCtx.Debug("Broadcasting message to clients")
	for _, c := range recipients {
		select {
		case c.send <- data:
		default:
			logCtx.WithField("receiver_user_id", c.UserID()).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// --- 公共方法 ---

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。队列满或 Hub 已停止时返回 false。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.messageChan <- msg:
		return true
	default:
		h.log.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"room_id":      msg.RoomID,
			"user_id":      msg.UserID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}

// queueBlocking 最多等待 timeout 把消息放入队列，用于不能丢的注销消息
func (h *Hub) queueBlocking(msg HubMessage, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case h.messageChan <- msg:
		return true
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// GetActiveRoomIDs 返回本实例当前有客户端的房间
func (h *Hub) GetActiveRoomIDs() []string {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

// roomStore 返回打开或空闲房间的文档
func (h *Hub) roomStore(roomID string) (*store.Store, bool) {
	if r := h.room(roomID); r != nil {
		return r.store, true
	}
	return h.idle.Peek(roomID)
}

// RoomState 返回房间文档的副本和版本，房间不在本实例内存中时 ok 为 false
func (h *Hub) RoomState(roomID string) (*domain.WhiteboardState, uint64, bool) {
	st, ok := h.roomStore(roomID)
	if !ok {
		return nil, 0, false
	}
	state, version := st.Snapshot()
	return state, version, true
}

// RoomHistory 返回房间里某个用户的个人历史和游标
func (h *Hub) RoomHistory(roomID, userID string) ([]domain.Action, int, bool) {
	st, ok := h.roomStore(roomID)
	if !ok {
		return nil, -1, false
	}
	hist, cursor := st.History(userID)
	return hist, cursor, true
}
