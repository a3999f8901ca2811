package store

import (
	"testing"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/eraser"
	"collaborative-whiteboard/internal/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextID() string { return domain.NewID() }

func f64(v float64) *float64 { return &v }
func str(v string) *string    { return &v }

func addRect(user, id string) domain.Action {
	return domain.Action{
		ID:            nextID(),
		UserID:        user,
		Timestamp:     1,
		Payload:       domain.AddObjectPayload{Object: domain.WhiteboardObject{ID: id, Type: domain.ObjectRectangle}},
		PreviousState: &domain.PreviousState{},
	}
}

func updateFill(user, id, fill string) domain.Action {
	return domain.Action{
		ID:        nextID(),
		UserID:    user,
		Timestamp: 2,
		Payload:   domain.UpdateObjectPayload{ID: id, Updates: domain.ObjectUpdates{Fill: str(fill)}},
	}
}

func TestDispatch_IdempotentByActionID(t *testing.T) {
	s := New(DefaultConfig())
	a := addRect("alice", "r1")

	_, err := s.Dispatch(a, OriginLocal)
	require.NoError(t, err)
	before, version := s.Snapshot()

	_, err = s.Dispatch(a, OriginLocal)
	assert.ErrorIs(t, err, ErrDuplicateAction)

	after, v2 := s.Snapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, version, v2)
	hist, cursor := s.History("alice")
	assert.Len(t, hist, 1)
	assert.Equal(t, 0, cursor)
	assert.Len(t, s.Actions(), 1)
}

func TestDispatch_InvalidActionHasNoEffect(t *testing.T) {
	s := New(DefaultConfig())

	_, err := s.Dispatch(domain.Action{ID: "x", UserID: "alice", Payload: domain.DeleteObjectPayload{}}, OriginLocal)

	assert.ErrorIs(t, err, domain.ErrInvalidAction)
	assert.Equal(t, uint64(0), s.Version())
	assert.Empty(t, s.Actions())
}

func TestDispatch_UpdateWithUnparsablePathRejected(t *testing.T) {
	s := New(DefaultConfig())
	add := domain.Action{
		ID: nextID(), UserID: "alice", Timestamp: 1,
		Payload: domain.AddObjectPayload{Object: domain.WhiteboardObject{
			ID: "p", Type: domain.ObjectPath, Data: &domain.ObjectData{Path: "M 0 0 L 10 0"},
		}},
		PreviousState: &domain.PreviousState{},
	}
	_, err := s.Dispatch(add, OriginLocal)
	require.NoError(t, err)
	version := s.Version()

	bad := domain.Action{
		ID: nextID(), UserID: "bob", Timestamp: 2,
		Payload: domain.UpdateObjectPayload{ID: "p", Updates: domain.ObjectUpdates{Data: &domain.ObjectData{Path: "garbage!"}}},
	}
	_, err = s.Dispatch(bad, OriginRemote)

	assert.ErrorIs(t, err, domain.ErrInvalidAction)
	state, v := s.Snapshot()
	assert.Equal(t, version, v)
	assert.Equal(t, "M 0 0 L 10 0", state.Objects["p"].Data.Path)
	assert.Len(t, s.Actions(), 1)

	// 同一批次里带坏路径的子操作让整个批次被拒绝
	batch := domain.Action{ID: nextID(), UserID: "bob", Payload: domain.BatchUpdatePayload{Actions: []domain.Action{
		updateFill("bob", "p", "red"),
		{ID: nextID(), UserID: "bob", Payload: domain.UpdateObjectPayload{ID: "p", Updates: domain.ObjectUpdates{Data: &domain.ObjectData{}}}},
	}}}
	_, err = s.Dispatch(batch, OriginRemote)

	assert.ErrorIs(t, err, domain.ErrInvalidAction)
	state, _ = s.Snapshot()
	assert.Nil(t, state.Objects["p"].Fill)
	assert.Equal(t, version, s.Version())
}

func TestDispatch_LocalTruncatesRedoTailRemoteLeavesCursor(t *testing.T) {
	s := New(DefaultConfig())
	_, _ = s.Dispatch(addRect("alice", "a"), OriginLocal)
	_, _ = s.Dispatch(addRect("alice", "b"), OriginLocal)

	// 把游标退到第一条之后，模拟撤销
	_, _, err := s.StepHistory("alice", -1, func(*domain.WhiteboardState, domain.Action) (domain.Patch, error) {
		return domain.Patch{}, nil
	})
	require.NoError(t, err)
	assert.True(t, s.CanRedo("alice"))

	_, _ = s.Dispatch(addRect("alice", "c"), OriginLocal)
	hist, cursor := s.History("alice")
	require.Len(t, hist, 2)
	assert.Equal(t, "c", hist[1].Payload.(domain.AddObjectPayload).Object.ID)
	assert.Equal(t, 1, cursor)
	assert.False(t, s.CanRedo("alice"))

	// 远端操作追加到对方的历史，游标不动
	_, _ = s.Dispatch(addRect("bob", "d"), OriginRemote)
	_, _ = s.Dispatch(addRect("bob", "e"), OriginRemote)
	bobHist, bobCursor := s.History("bob")
	assert.Len(t, bobHist, 2)
	assert.Equal(t, -1, bobCursor)
	assert.False(t, s.CanUndo("bob"))
	assert.Len(t, s.Actions(), 5)
}

func TestDispatch_StaleReferenceLoggedButNotRecorded(t *testing.T) {
	s := New(DefaultConfig())

	_, err := s.Dispatch(updateFill("alice", "ghost", "red"), OriginLocal)

	assert.ErrorIs(t, err, ErrStaleReference)
	hist, cursor := s.History("alice")
	assert.Empty(t, hist)
	assert.Equal(t, -1, cursor)
	assert.Len(t, s.Actions(), 1)
	assert.Equal(t, uint64(1), s.Version())
}

func TestDispatch_SyncActionsBypassLogs(t *testing.T) {
	s := New(DefaultConfig())
	_, _ = s.Dispatch(addRect("bob", "x"), OriginLocal)

	var change domain.Patch
	change.DeleteObject("x")
	sync := domain.Action{
		ID: nextID(), UserID: "alice",
		Payload: domain.SyncUndoPayload{SyncChange: domain.SyncChange{OriginalActionID: "orig", StateChange: change}},
	}
	_, err := s.Dispatch(sync, OriginRemote)
	require.NoError(t, err)

	assert.Nil(t, s.Object("x"))
	assert.Len(t, s.Actions(), 1)
	bobHist, bobCursor := s.History("bob")
	assert.Len(t, bobHist, 1)
	assert.Equal(t, 0, bobCursor)
	aliceHist, _ := s.History("alice")
	assert.Empty(t, aliceHist)
}

func TestDispatch_SelectionInvariantAfterDeleteAndClear(t *testing.T) {
	s := New(DefaultConfig())
	_, _ = s.Dispatch(addRect("alice", "a"), OriginLocal)
	_, _ = s.Dispatch(addRect("alice", "b"), OriginLocal)
	_, _ = s.Dispatch(domain.Action{ID: nextID(), UserID: "alice",
		Payload: domain.SelectObjectsPayload{IDs: []string{"a", "b", "missing"}}}, OriginLocal)
	assert.Equal(t, []string{"a", "b"}, s.State().SelectedObjectIDs)

	_, err := s.Dispatch(domain.Action{ID: nextID(), UserID: "alice", Payload: domain.DeleteObjectPayload{ID: "a"}}, OriginLocal)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, s.State().SelectedObjectIDs)

	_, err = s.Dispatch(domain.Action{ID: nextID(), UserID: "alice", Payload: domain.ClearCanvasPayload{}}, OriginLocal)
	require.NoError(t, err)
	st := s.State()
	assert.Empty(t, st.Objects)
	assert.Empty(t, st.SelectedObjectIDs)
}

func TestDispatch_HistoryIsBounded(t *testing.T) {
	s := New(Config{MaxHistory: 3, MaxActionLog: 4})
	for i := 0; i < 6; i++ {
		_, err := s.Dispatch(addRect("alice", string(rune('a'+i))), OriginLocal)
		require.NoError(t, err)
	}

	hist, cursor := s.History("alice")
	assert.Len(t, hist, 3)
	assert.Equal(t, 2, cursor)
	assert.Equal(t, "d", hist[0].Payload.(domain.AddObjectPayload).Object.ID)
	assert.Len(t, s.Actions(), 4)
}

func TestTransientThenCommit(t *testing.T) {
	s := New(DefaultConfig())
	var kinds []ChangeKind
	unsubscribe := s.Subscribe(func(c Change) { kinds = append(kinds, c.Kind) })
	defer unsubscribe()

	add := addRect("alice", "r")
	_, err := s.Dispatch(add, OriginLocal, Transient())
	require.NoError(t, err)
	assert.NotNil(t, s.Object("r"))
	assert.Empty(t, s.Actions())

	batch := domain.Action{ID: nextID(), UserID: "alice", Payload: domain.BatchUpdatePayload{Actions: []domain.Action{add}}}
	require.NoError(t, s.Commit(batch, OriginLocal))
	assert.ErrorIs(t, s.Commit(batch, OriginLocal), ErrDuplicateAction)

	hist, cursor := s.History("alice")
	require.Len(t, hist, 1)
	assert.Equal(t, domain.ActionBatchUpdate, hist[0].Type())
	assert.Equal(t, 0, cursor)
	assert.Equal(t, []ChangeKind{ChangeDispatch, ChangeCommit}, kinds)
}

func TestCommit_SingleTransientActionOnce(t *testing.T) {
	s := New(DefaultConfig())
	add := addRect("alice", "r")
	_, err := s.Dispatch(add, OriginLocal, Transient())
	require.NoError(t, err)

	require.NoError(t, s.Commit(add, OriginLocal))
	assert.ErrorIs(t, s.Commit(add, OriginLocal), ErrDuplicateAction)
	_, err = s.Dispatch(add, OriginLocal)
	assert.ErrorIs(t, err, ErrDuplicateAction)

	hist, cursor := s.History("alice")
	assert.Len(t, hist, 1)
	assert.Equal(t, 0, cursor)
}

func TestSubscribe_ReceivesChangesInOrderAndUnsubscribes(t *testing.T) {
	s := New(DefaultConfig())
	var versions []uint64
	unsubscribe := s.Subscribe(func(c Change) { versions = append(versions, c.Version) })

	_, _ = s.Dispatch(addRect("alice", "a"), OriginLocal)
	_, _ = s.Dispatch(addRect("bob", "b"), OriginRemote)
	unsubscribe()
	_, _ = s.Dispatch(addRect("bob", "c"), OriginRemote)

	assert.Equal(t, []uint64{1, 2}, versions)
	last, ok := s.LastAction()
	require.True(t, ok)
	assert.Equal(t, "bob", last.UserID)
	assert.True(t, s.ChangedSince(2))
}

func TestLoadSnapshotAndClearHistory(t *testing.T) {
	s := New(DefaultConfig())
	_, _ = s.Dispatch(addRect("alice", "a"), OriginLocal)

	snap := domain.NewState()
	snap.Objects["z"] = &domain.WhiteboardObject{ID: "z", Type: domain.ObjectCircle}
	snap.SelectedObjectIDs = []string{"z", "gone"}
	s.LoadSnapshot(snap)

	st := s.State()
	assert.Contains(t, st.Objects, "z")
	assert.NotContains(t, st.Objects, "a")
	assert.Equal(t, []string{"z"}, st.SelectedObjectIDs)

	s.ClearHistory("alice")
	assert.False(t, s.CanUndo("alice"))
	s.ClearHistory("")
	assert.Empty(t, s.Actions())
}

func TestReduce_ErasePathSplitsStroke(t *testing.T) {
	state := domain.NewState()
	state.Objects["p"] = &domain.WhiteboardObject{
		ID: "p", Type: domain.ObjectPath, X: 10, Y: 10,
		Stroke: str("#000"), StrokeWidth: f64(3),
		Data: &domain.ObjectData{Path: "M 0 0 L 100 0"},
	}
	state.SelectedObjectIDs = []string{"p"}
	a := domain.Action{ID: "e1", UserID: "alice", Timestamp: 77, Payload: domain.ErasePathPayload{
		OriginalID: "p",
		Segments: []eraser.PathSegment{
			{ID: "s1", Points: []geometry.Point{{X: 10, Y: 10}, {X: 30, Y: 10}}},
			{ID: "s2", Points: []geometry.Point{{X: 80, Y: 10}}},
			{ID: "s3", Points: []geometry.Point{{X: 90, Y: 10}, {X: 110, Y: 10}}},
		},
	}}

	p, err := Reduce(state, a)
	require.NoError(t, err)
	state.Apply(p)

	assert.NotContains(t, state.Objects, "p")
	assert.NotContains(t, state.Objects, "s2", "单点段被丢弃")
	s1 := state.Objects["s1"]
	require.NotNil(t, s1)
	assert.Equal(t, "M 0 0 L 20 0", s1.Data.Path)
	assert.Equal(t, "#000", *s1.Stroke)
	assert.Equal(t, 3.0, *s1.StrokeWidth)
	assert.Equal(t, int64(77), s1.CreatedAt)
	assert.Equal(t, "M 80 0 L 100 0", state.Objects["s3"].Data.Path)
	assert.Empty(t, state.SelectedObjectIDs)
}

func TestReduce_BatchFoldsInOrder(t *testing.T) {
	state := domain.NewState()
	batch := domain.Action{ID: "b", UserID: "alice", Payload: domain.BatchUpdatePayload{Actions: []domain.Action{
		addRect("alice", "r"),
		updateFill("alice", "r", "red"),
		updateFill("alice", "r", "blue"),
		updateFill("alice", "ghost", "green"),
	}}}

	p, err := Reduce(state, batch)

	assert.ErrorIs(t, err, ErrStaleReference)
	state.Apply(p)
	assert.Equal(t, "blue", *state.Objects["r"].Fill)
}

func TestReduce_DeleteInAreaSkipsMissing(t *testing.T) {
	state := domain.NewState()
	state.Objects["a"] = &domain.WhiteboardObject{ID: "a", Type: domain.ObjectCircle}

	p, err := Reduce(state, domain.Action{Payload: domain.DeleteObjectsInAreaPayload{ObjectIDs: []string{"a", "gone"}}})
	require.NoError(t, err)
	state.Apply(p)
	assert.Empty(t, state.Objects)

	_, err = Reduce(state, domain.Action{Payload: domain.DeleteObjectsInAreaPayload{ObjectIDs: []string{"gone"}}})
	assert.ErrorIs(t, err, ErrStaleReference)
}

func TestReduce_ViewportAndSettingsMerge(t *testing.T) {
	state := domain.NewState()

	p, err := Reduce(state, domain.Action{Payload: domain.UpdateViewportPayload{Viewport: domain.ViewportUpdate{X: f64(5)}}})
	require.NoError(t, err)
	assert.Equal(t, domain.Viewport{X: 5, Zoom: 1}, *p.Viewport)

	grid := true
	p, err = Reduce(state, domain.Action{Payload: domain.UpdateSettingsPayload{Settings: domain.SettingsUpdate{ShowGrid: &grid}}})
	require.NoError(t, err)
	assert.True(t, p.Settings.ShowGrid)
	assert.Equal(t, "#ffffff", p.Settings.BackgroundColor)
}

func TestView_ReadsDocumentWithoutCopy(t *testing.T) {
	s := New(DefaultConfig())
	_, err := s.Dispatch(addRect("alice", "r1"), OriginLocal)
	require.NoError(t, err)

	var ids []string
	s.View(func(state *domain.WhiteboardState) {
		ids = state.IDs()
	})

	assert.Equal(t, []string{"r1"}, ids)
}
