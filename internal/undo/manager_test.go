package undo

import (
	"context"
	"errors"
	"testing"

	"collaborative-whiteboard/internal/actions"
	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/eraser"
	"collaborative-whiteboard/internal/geometry"
	"collaborative-whiteboard/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroadcaster struct {
	connected bool
	err       error
	sent      []domain.Action
}

func (f *fakeBroadcaster) Connected() bool { return f.connected }

func (f *fakeBroadcaster) SendAction(_ context.Context, a domain.Action) error {
	f.sent = append(f.sent, a)
	return f.err
}

func f64(v float64) *float64 { return &v }
func str(v string) *string    { return &v }

func do(t *testing.T, s *store.Store, f actions.Factory, p domain.Payload) domain.Action {
	t.Helper()
	a, err := f.New(s.State(), p)
	require.NoError(t, err)
	_, err = s.Dispatch(a, store.OriginLocal)
	require.NoError(t, err)
	return a
}

func rect(id string, x float64) domain.AddObjectPayload {
	return domain.AddObjectPayload{Object: domain.WhiteboardObject{ID: id, Type: domain.ObjectRectangle, X: x}}
}

func TestUndoRedo_RoundTripsEveryActionType(t *testing.T) {
	s := store.New(store.DefaultConfig())
	m := NewManager(s)
	f := actions.NewFactory("alice")
	initial := s.State()

	payloads := []domain.Payload{
		rect("r1", 0),
		rect("r2", 50),
		domain.UpdateObjectPayload{ID: "r1", Updates: domain.ObjectUpdates{Fill: str("#f00")}},
		domain.SelectObjectsPayload{IDs: []string{"r1", "r2"}},
		domain.UpdateViewportPayload{Viewport: domain.ViewportUpdate{Zoom: f64(2)}},
		domain.UpdateSettingsPayload{Settings: domain.SettingsUpdate{BackgroundColor: str("#000")}},
		domain.DeleteObjectPayload{ID: "r2"},
		domain.ClearCanvasPayload{},
	}
	for _, p := range payloads {
		do(t, s, f, p)
	}
	final := s.State()
	require.Empty(t, final.Objects)

	ctx := context.Background()
	for range payloads {
		require.NoError(t, m.Undo(ctx, "alice"))
	}
	assert.Equal(t, initial, s.State())
	assert.False(t, m.CanUndo("alice"))
	assert.ErrorIs(t, m.Undo(ctx, "alice"), ErrNothingToUndo)

	for range payloads {
		require.NoError(t, m.Redo(ctx, "alice"))
	}
	assert.Equal(t, final, s.State())
	assert.False(t, m.CanRedo("alice"))
	assert.ErrorIs(t, m.Redo(ctx, "alice"), ErrNothingToRedo)
}

func TestUndo_BatchRevertsWholeGesture(t *testing.T) {
	s := store.New(store.DefaultConfig())
	m := NewManager(s)
	f := actions.NewFactory("alice")
	do(t, s, f, rect("r", 0))

	var children []domain.Action
	for i := 1; i <= 5; i++ {
		a, err := f.New(s.State(), domain.UpdateObjectPayload{ID: "r", Updates: domain.ObjectUpdates{X: f64(float64(i * 10))}})
		require.NoError(t, err)
		_, err = s.Dispatch(a, store.OriginLocal, store.Transient())
		require.NoError(t, err)
		children = append(children, a)
	}
	b, err := f.Batch(children)
	require.NoError(t, err)
	require.NoError(t, s.Commit(b, store.OriginLocal))
	assert.Equal(t, 50.0, s.Object("r").X)

	require.NoError(t, m.Undo(context.Background(), "alice"))

	assert.Equal(t, 0.0, s.Object("r").X)
	hist, cursor := s.History("alice")
	assert.Len(t, hist, 2)
	assert.Equal(t, 0, cursor, "一次撤销只退一步")

	require.NoError(t, m.Redo(context.Background(), "alice"))
	assert.Equal(t, 50.0, s.Object("r").X)
}

func TestUndo_MissingPreviousStateIsRefused(t *testing.T) {
	s := store.New(store.DefaultConfig())
	m := NewManager(s)
	do(t, s, actions.NewFactory("alice"), rect("r", 0))

	// 没有捕获旧状态的更新仍会被记录，但无法撤销
	_, err := s.Dispatch(domain.Action{
		ID:      domain.NewID(),
		UserID:  "alice",
		Payload: domain.UpdateObjectPayload{ID: "r", Updates: domain.ObjectUpdates{X: f64(9)}},
	}, store.OriginLocal)
	require.NoError(t, err)
	before, version := s.Snapshot()

	err = m.Undo(context.Background(), "alice")

	assert.ErrorIs(t, err, ErrUndoUnavailable)
	after, v2 := s.Snapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, version, v2)
	_, cursor := s.History("alice")
	assert.Equal(t, 1, cursor)
}

func TestUndo_OnlyTouchesOwnHistory(t *testing.T) {
	s := store.New(store.DefaultConfig())
	m := NewManager(s)
	do(t, s, actions.NewFactory("alice"), rect("a", 0))
	bob := do(t, s, actions.NewFactory("bob"), rect("b", 0))

	require.NoError(t, m.Undo(context.Background(), "alice"))

	state := s.State()
	assert.NotContains(t, state.Objects, "a")
	assert.Contains(t, state.Objects, "b")
	hist, cursor := s.History("bob")
	assert.Equal(t, []domain.Action{bob}, hist)
	assert.Equal(t, 0, cursor)
}

func TestUndo_EmitsSyncActionWhenConnected(t *testing.T) {
	s := store.New(store.DefaultConfig())
	out := &fakeBroadcaster{connected: true}
	m := NewManager(s, WithBroadcaster(out))
	add := do(t, s, actions.NewFactory("alice"), rect("r", 0))
	ctx := context.Background()

	require.NoError(t, m.Undo(ctx, "alice"))
	require.NoError(t, m.Redo(ctx, "alice"))

	require.Len(t, out.sent, 2)
	undo := out.sent[0].Payload.(domain.SyncUndoPayload)
	assert.Equal(t, add.ID, undo.OriginalActionID)
	assert.Nil(t, undo.StateChange.Objects["r"])
	assert.Contains(t, undo.StateChange.Objects, "r")
	redo := out.sent[1].Payload.(domain.SyncRedoPayload)
	assert.Equal(t, add.ID, redo.OriginalActionID)
	require.NotNil(t, redo.StateChange.Objects["r"])
	assert.Equal(t, "alice", out.sent[1].UserID)

	// 同步操作本身不进入任何历史
	assert.Len(t, s.Actions(), 1)
}

func TestUndo_DisconnectedOrFailingBroadcasterStillUndoes(t *testing.T) {
	s := store.New(store.DefaultConfig())
	out := &fakeBroadcaster{}
	m := NewManager(s)
	m.SetBroadcaster(out)
	f := actions.NewFactory("alice")
	do(t, s, f, rect("r1", 0))
	do(t, s, f, rect("r2", 0))

	require.NoError(t, m.Undo(context.Background(), "alice"))
	assert.Empty(t, out.sent)

	out.connected = true
	out.err = errors.New("socket closed")
	require.NoError(t, m.Undo(context.Background(), "alice"))
	assert.Len(t, out.sent, 1)
	assert.Empty(t, s.State().Objects)
}

func TestInverse_EraseRestoresOriginal(t *testing.T) {
	orig := &domain.WhiteboardObject{ID: "p", Type: domain.ObjectPath}
	a := domain.Action{
		ID: "e1",
		Payload: domain.ErasePathPayload{OriginalID: "p", Segments: []eraser.PathSegment{
			{ID: "p-1", Points: []geometry.Point{{X: 0, Y: 0}, {X: 5, Y: 0}}},
			{ID: "p-2", Points: []geometry.Point{{X: 9, Y: 0}}},
		}},
		PreviousState: &domain.PreviousState{Object: orig, SelectedObjectIDs: &[]string{"p"}},
	}

	p, err := Inverse(a)

	require.NoError(t, err)
	assert.Equal(t, orig, p.Objects["p"])
	assert.Contains(t, p.Objects, "p-1")
	assert.Nil(t, p.Objects["p-1"])
	assert.NotContains(t, p.Objects, "p-2", "少于两个点的片段从未被创建")
	assert.Equal(t, []string{"p"}, *p.SelectedObjectIDs)
}

func TestInverse_SyncActionsCannotBeUndone(t *testing.T) {
	_, err := Inverse(domain.Action{
		ID:            "s",
		Payload:       domain.SyncUndoPayload{},
		PreviousState: &domain.PreviousState{},
	})
	assert.ErrorIs(t, err, ErrUndoUnavailable)
}
