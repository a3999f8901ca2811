package domain

import (
	"encoding/json"
	"testing"

	"collaborative-whiteboard/internal/eraser"
	"collaborative-whiteboard/internal/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func str(v string) *string    { return &v }

func TestAction_JSONUsesTypeTag(t *testing.T) {
	a := Action{
		ID:        "a1",
		Payload:   UpdateObjectPayload{ID: "obj", Updates: ObjectUpdates{Fill: str("red")}},
		Timestamp: 42,
		UserID:    "u1",
	}

	raw, err := json.Marshal(a)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, "UPDATE_OBJECT", wire["type"])
	assert.Equal(t, "obj", wire["payload"].(map[string]any)["id"])
	assert.NotContains(t, wire, "previousState")

	var back Action
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, a, back)
}

func TestAction_NestedBatchAndSyncPayloads(t *testing.T) {
	sel := []string{"x"}
	batch := Action{
		ID: "b1",
		Payload: BatchUpdatePayload{Actions: []Action{
			{ID: "c1", Payload: ErasePathPayload{OriginalID: "p", Segments: []eraser.PathSegment{
				{ID: "s1", Points: []geometry.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}},
			}}},
			{ID: "c2", Payload: SyncUndoPayload{SyncChange{
				OriginalActionID: "c1",
				StateChange:      Patch{Objects: map[string]*WhiteboardObject{"s1": nil}, SelectedObjectIDs: &sel},
			}}},
		}},
	}

	raw, err := json.Marshal(batch)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"originalActionId":"c1"`)
	assert.Contains(t, string(raw), `"s1":null`)

	var back Action
	require.NoError(t, json.Unmarshal(raw, &back))
	children := back.Payload.(BatchUpdatePayload).Actions
	require.Len(t, children, 2)
	assert.Equal(t, ActionErasePath, children[0].Type())
	sync := children[1].Payload.(SyncUndoPayload)
	require.Contains(t, sync.StateChange.Objects, "s1")
	assert.Nil(t, sync.StateChange.Objects["s1"])
}

func TestAction_UnknownTypeRejected(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"id":"x","type":"DRAW_PIXEL","payload":{}}`), &a)
	assert.ErrorIs(t, err, ErrUnknownActionType)

	_, err = json.Marshal(Action{ID: "empty"})
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestState_ApplyKeepsSelectionConsistent(t *testing.T) {
	s := NewState()
	var p Patch
	p.SetObject(&WhiteboardObject{ID: "a", Type: ObjectRectangle})
	p.SetObject(&WhiteboardObject{ID: "b", Type: ObjectCircle})
	p.SetSelection([]string{"a", "b", "a", "ghost"})
	s.Apply(p)
	assert.Equal(t, []string{"a", "b"}, s.SelectedObjectIDs)

	var del Patch
	del.DeleteObject("a")
	s.Apply(del)
	assert.Equal(t, []string{"b"}, s.SelectedObjectIDs)
	assert.NotContains(t, s.Objects, "a")

	s.Apply(Patch{ReplaceObjects: true})
	assert.Empty(t, s.Objects)
	assert.Empty(t, s.SelectedObjectIDs)
}

func TestState_ApplyCopiesObjects(t *testing.T) {
	s := NewState()
	obj := &WhiteboardObject{ID: "a", Type: ObjectRectangle, Fill: str("red")}
	var p Patch
	p.SetObject(obj)
	s.Apply(p)

	*obj.Fill = "blue"
	assert.Equal(t, "red", *s.Objects["a"].Fill)

	got := s.Object("a")
	*got.Fill = "green"
	assert.Equal(t, "red", *s.Objects["a"].Fill)
}

func TestPatch_MergeIsSequentialApply(t *testing.T) {
	var first Patch
	first.SetObject(&WhiteboardObject{ID: "a"})
	first.SetObject(&WhiteboardObject{ID: "b"})
	var second Patch
	second.DeleteObject("a")
	second.Viewport = &Viewport{Zoom: 2}

	merged := first.Merge(second)

	sequential := NewState()
	sequential.Apply(first)
	sequential.Apply(second)
	viaMerge := NewState()
	viaMerge.Apply(merged)
	assert.Equal(t, sequential, viaMerge)

	cleared := merged.Merge(Patch{ReplaceObjects: true})
	assert.True(t, cleared.ReplaceObjects)
	assert.Empty(t, cleared.Objects)
}

func TestObject_BoundsAndUpdates(t *testing.T) {
	path := &WhiteboardObject{
		ID: "p", Type: ObjectPath, X: 100, Y: 100, StrokeWidth: f64(4),
		Data: &ObjectData{Path: "M 0 0 L 10 20"},
	}
	assert.Equal(t, Rect{X: 98, Y: 98, Width: 14, Height: 24}, path.Bounds())

	rect := &WhiteboardObject{ID: "r", Type: ObjectRectangle, X: 10, Y: 10, Width: f64(-5), Height: f64(5)}
	assert.Equal(t, Rect{X: 5, Y: 10, Width: 5, Height: 5}, rect.Bounds())
	assert.True(t, rect.Bounds().Intersects(Rect{X: 10, Y: 15, Width: 1, Height: 1}))
	assert.False(t, rect.Bounds().Intersects(Rect{X: 11, Y: 10, Width: 1, Height: 1}))

	ObjectUpdates{X: f64(7), Fill: str("red")}.ApplyTo(rect, 99)
	assert.Equal(t, 7.0, rect.X)
	assert.Equal(t, "red", *rect.Fill)
	assert.Equal(t, int64(99), rect.UpdatedAt)
	assert.True(t, ObjectUpdates{}.IsEmpty())
}

func TestSnapshot_StateRoundTrip(t *testing.T) {
	state := NewState()
	state.Objects["a"] = &WhiteboardObject{ID: "a", Type: ObjectText, Data: &ObjectData{Text: "hi"}}
	state.SelectedObjectIDs = []string{"a"}

	var snap Snapshot
	require.NoError(t, snap.SetState(state))
	back, err := snap.ParseState()
	require.NoError(t, err)
	assert.Equal(t, state, back)

	empty, err := (&Snapshot{}).ParseState()
	require.NoError(t, err)
	assert.Equal(t, NewState(), empty)
}
