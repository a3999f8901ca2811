package syncbridge

import (
	"context"
	"errors"
	"testing"

	"collaborative-whiteboard/internal/actions"
	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/store"
	"collaborative-whiteboard/internal/undo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memNet 同步地把消息经过一次编解码投递给其他所有端
type memNet struct {
	peers []*memPeer
}

type memPeer struct {
	net       *memNet
	bridge    *Bridge
	connected bool
	sent      []Envelope
}

func (p *memPeer) Connected() bool { return p.connected }

func (p *memPeer) Publish(_ context.Context, env Envelope) error {
	if !p.connected {
		return errors.New("offline")
	}
	p.sent = append(p.sent, env)
	data, err := Encode(env)
	if err != nil {
		return err
	}
	for _, q := range p.net.peers {
		if q == p || !q.connected {
			continue
		}
		dec, err := Decode(data)
		if err != nil {
			return err
		}
		_ = q.bridge.HandleEnvelope(dec)
	}
	return nil
}

type peer struct {
	user   string
	store  *store.Store
	undo   *undo.Manager
	bridge *Bridge
	link   *memPeer
}

func (n *memNet) join(user string, opts ...Option) *peer {
	s := store.New(store.DefaultConfig())
	link := &memPeer{net: n, connected: true}
	b := New(s, link, opts...)
	link.bridge = b
	n.peers = append(n.peers, link)
	return &peer{user: user, store: s, bridge: b, link: link, undo: undo.NewManager(s, undo.WithBroadcaster(b))}
}

func (p *peer) do(t *testing.T, payload domain.Payload) domain.Action {
	t.Helper()
	a, err := actions.NewFactory(p.user).New(p.store.State(), payload)
	require.NoError(t, err)
	_, err = p.store.Dispatch(a, store.OriginLocal)
	require.NoError(t, err)
	return a
}

func f64(v float64) *float64 { return &v }

func rect(id string) domain.AddObjectPayload {
	return domain.AddObjectPayload{Object: domain.WhiteboardObject{ID: id, Type: domain.ObjectRectangle, Width: f64(10), Height: f64(10)}}
}

func move(id string, x float64) domain.UpdateObjectPayload {
	return domain.UpdateObjectPayload{ID: id, Updates: domain.ObjectUpdates{X: &x}}
}

func TestBridge_TwoClientsConverge(t *testing.T) {
	net := &memNet{}
	alice := net.join("alice")
	bob := net.join("bob")

	alice.do(t, rect("r1"))
	bob.do(t, rect("r2"))
	bob.do(t, move("r1", 40))
	alice.do(t, domain.SelectObjectsPayload{IDs: []string{"r1", "r2"}})
	alice.do(t, domain.DeleteObjectPayload{ID: "r2"})
	bob.do(t, domain.UpdateSettingsPayload{Settings: domain.SettingsUpdate{ShowGrid: new(bool)}})

	assert.Equal(t, alice.store.State(), bob.store.State())
	assert.Equal(t, 40.0, bob.store.Object("r1").X)
	assert.Equal(t, []string{"r1"}, alice.store.State().SelectedObjectIDs)

	// 远端操作进入作者的历史，但不移动本端游标，也不会再次广播
	hist, cursor := bob.store.History("alice")
	assert.Len(t, hist, 3)
	assert.Equal(t, -1, cursor)
	assert.Len(t, bob.link.sent, 3)
}

func TestBridge_RemoteUndoAppliesExactPatch(t *testing.T) {
	net := &memNet{}
	alice := net.join("alice")
	bob := net.join("bob")
	ctx := context.Background()

	alice.do(t, rect("r"))
	bob.do(t, move("r", 10))
	require.Equal(t, 10.0, alice.store.Object("r").X)

	// bob 撤销自己的移动，alice 直接应用同一份补丁
	require.NoError(t, bob.undo.Undo(ctx, "bob"))
	assert.Equal(t, 0.0, alice.store.Object("r").X)
	assert.Equal(t, alice.store.State(), bob.store.State())

	require.NoError(t, alice.undo.Undo(ctx, "alice"))
	assert.Nil(t, bob.store.Object("r"))
	assert.Equal(t, alice.store.State(), bob.store.State())

	require.NoError(t, alice.undo.Redo(ctx, "alice"))
	require.NotNil(t, bob.store.Object("r"))
	assert.Equal(t, alice.store.State(), bob.store.State())

	// SYNC_* 不进入任何一端的日志
	for _, a := range bob.store.Actions() {
		assert.False(t, a.Type().IsSync())
	}
}

func TestBridge_PolicyKeepsSelectionLocal(t *testing.T) {
	net := &memNet{}
	alice := net.join("alice", WithPolicy(actions.BroadcastPolicy{LocalSelection: true}))
	bob := net.join("bob")

	alice.do(t, rect("r"))
	alice.do(t, domain.SelectObjectsPayload{IDs: []string{"r"}})

	assert.Equal(t, []string{"r"}, alice.store.State().SelectedObjectIDs)
	assert.Empty(t, bob.store.State().SelectedObjectIDs)
	assert.Len(t, alice.link.sent, 1)
}

func TestBridge_DisconnectedDoesNotSend(t *testing.T) {
	net := &memNet{}
	alice := net.join("alice")
	bob := net.join("bob")
	alice.link.connected = false

	alice.do(t, rect("r"))

	assert.False(t, alice.bridge.Connected())
	assert.Empty(t, alice.link.sent)
	assert.Nil(t, bob.store.Object("r"))
	assert.ErrorIs(t, alice.bridge.SendAction(context.Background(), domain.Action{ID: "x"}), ErrDisconnected)
}

func TestBridge_IgnoresOwnEchoAndReplays(t *testing.T) {
	net := &memNet{}
	alice := net.join("alice")
	a := alice.do(t, rect("r"))
	version := alice.store.Version()

	// 自己的消息被中继回来
	require.NoError(t, alice.bridge.HandleEnvelope(Envelope{Type: EnvelopeAction, Sender: alice.bridge.Sender(), Action: &a}))
	require.NoError(t, alice.bridge.HandleEnvelope(Envelope{Type: EnvelopeAction, Sender: "relay", Action: &a}))

	assert.Equal(t, version, alice.store.Version())
}

func TestBridge_SnapshotEnvelopeLoadsStateThenActions(t *testing.T) {
	net := &memNet{}
	bob := net.join("bob")
	state := domain.NewState()
	state.Objects["r"] = &domain.WhiteboardObject{ID: "r", Type: domain.ObjectRectangle}
	state.SelectedObjectIDs = []string{"r", "gone"}
	later := domain.Action{
		ID:      domain.NewID(),
		UserID:  "alice",
		Payload: move("r", 7),
	}

	err := bob.bridge.HandleEnvelope(Envelope{Type: EnvelopeSnapshot, State: state, Actions: []domain.Action{later, later}, Version: 9})

	require.NoError(t, err)
	got := bob.store.State()
	assert.Equal(t, 7.0, got.Objects["r"].X)
	assert.Equal(t, []string{"r"}, got.SelectedObjectIDs)
	assert.Equal(t, 1, len(bob.store.Actions()))
}

func TestBridge_ApplyRemoteSnapshotCountsEffectiveActions(t *testing.T) {
	net := &memNet{}
	bob := net.join("bob")
	add := domain.Action{ID: "a1", UserID: "alice", Payload: rect("r")}
	stale := domain.Action{ID: "a2", UserID: "alice", Payload: domain.DeleteObjectPayload{ID: "missing"}}
	bad := domain.Action{ID: "a3", UserID: "alice", Payload: domain.DeleteObjectPayload{}}

	n := bob.bridge.ApplyRemoteSnapshot([]domain.Action{add, add, stale, bad})

	assert.Equal(t, 1, n)
	assert.NotNil(t, bob.store.Object("r"))
}

func TestBridge_CloseStopsBroadcasting(t *testing.T) {
	net := &memNet{}
	alice := net.join("alice")
	alice.bridge.Close()
	alice.bridge.Close()

	alice.do(t, rect("r"))

	assert.Empty(t, alice.link.sent)
	assert.False(t, alice.bridge.Connected())
}

func TestDecode_RejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":            `{`,
		"unknown type":        `{"type":"cursor"}`,
		"action without body": `{"type":"action"}`,
		"empty snapshot":      `{"type":"snapshot"}`,
		"unknown action tag":  `{"type":"action","action":{"id":"1","type":"ROTATE","payload":{}}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.Error(t, err)
		})
	}
}
