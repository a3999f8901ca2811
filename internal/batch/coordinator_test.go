package batch_test

import (
	"testing"
	"time"

	"collaborative-whiteboard/internal/batch"
	"collaborative-whiteboard/internal/batch/batchtest"
	"collaborative-whiteboard/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	batches []domain.Action
}

func (r *recorder) onClose(a domain.Action) { r.batches = append(r.batches, a) }

func newTestCoordinator(cfg batch.Config) (*batch.Coordinator, *batchtest.ManualClock, *recorder) {
	clock := batchtest.NewManualClock(time.UnixMilli(1_000_000))
	rec := &recorder{}
	return batch.NewCoordinator(cfg, rec.onClose, batch.WithClock(clock)), clock, rec
}

func move(user, id string, x float64) domain.Action {
	return domain.Action{
		ID:            domain.NewID(),
		UserID:        user,
		Payload:       domain.UpdateObjectPayload{ID: id, Updates: domain.ObjectUpdates{X: &x}},
		PreviousState: &domain.PreviousState{Object: &domain.WhiteboardObject{ID: id, X: x - 1}},
	}
}

func erase(user, id string) domain.Action {
	return domain.Action{ID: domain.NewID(), UserID: user, Payload: domain.ErasePathPayload{OriginalID: id}}
}

func TestCoordinator_CollapsesGesture(t *testing.T) {
	c, clock, rec := newTestCoordinator(batch.DefaultConfig())

	id := c.StartBatch(domain.ActionUpdateObject, "r", "alice")
	for i := 1; i <= 5; i++ {
		clock.Advance(50 * time.Millisecond)
		require.True(t, c.AddToBatch(move("alice", "r", float64(i))))
	}
	b, ok := c.EndBatch()

	require.True(t, ok)
	assert.Equal(t, id, b.ID)
	assert.Equal(t, domain.ActionBatchUpdate, b.Type())
	assert.Len(t, b.Payload.(domain.BatchUpdatePayload).Actions, 5)
	// 批次的撤销快照来自第一条操作
	assert.Equal(t, 0.0, b.PreviousState.Object.X)
	assert.Len(t, rec.batches, 1)
	assert.False(t, c.IsOpen())
	assert.Equal(t, 0, clock.Pending())
}

func TestCoordinator_RejectsMismatchAndCloses(t *testing.T) {
	cases := map[string]domain.Action{
		"other user":   move("bob", "r", 2),
		"other object": move("alice", "q", 2),
		"other type":   erase("alice", "r"),
	}
	for name, second := range cases {
		t.Run(name, func(t *testing.T) {
			c, _, rec := newTestCoordinator(batch.DefaultConfig())
			c.StartBatch(domain.ActionUpdateObject, "r", "alice")
			require.True(t, c.AddToBatch(move("alice", "r", 1)))

			assert.False(t, c.AddToBatch(second))

			assert.False(t, c.IsOpen())
			require.Len(t, rec.batches, 1)
			assert.Len(t, rec.batches[0].Payload.(domain.BatchUpdatePayload).Actions, 1)
		})
	}
}

func TestCoordinator_EraseAcceptsAnyObject(t *testing.T) {
	c, _, rec := newTestCoordinator(batch.DefaultConfig())
	c.StartBatch(domain.ActionErasePath, "", "alice")

	assert.True(t, c.AddToBatch(erase("alice", "p1")))
	assert.True(t, c.AddToBatch(erase("alice", "p2")))
	assert.False(t, c.AddToBatch(erase("bob", "p3")))

	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0].Payload.(domain.BatchUpdatePayload).Actions, 2)
}

func TestCoordinator_StartWhileOpenForceCloses(t *testing.T) {
	c, _, rec := newTestCoordinator(batch.DefaultConfig())
	first := c.StartBatch(domain.ActionUpdateObject, "r", "alice")
	c.AddToBatch(move("alice", "r", 1))

	second := c.StartBatch(domain.ActionUpdateObject, "q", "alice")

	assert.NotEqual(t, first, second)
	require.Len(t, rec.batches, 1)
	assert.Equal(t, first, rec.batches[0].ID)
	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "q", cur.ObjectID)
	assert.Empty(t, cur.Actions)
}

func TestCoordinator_IdleTimeoutClosesBatch(t *testing.T) {
	c, clock, rec := newTestCoordinator(batch.DefaultConfig())
	c.StartBatch(domain.ActionUpdateObject, "r", "alice")
	c.AddToBatch(move("alice", "r", 1))

	clock.Advance(999 * time.Millisecond)
	assert.True(t, c.IsOpen())
	clock.Advance(time.Millisecond)

	assert.False(t, c.IsOpen())
	assert.Len(t, rec.batches, 1)
}

func TestCoordinator_EraseUsesLongerTimeout(t *testing.T) {
	c, clock, rec := newTestCoordinator(batch.DefaultConfig())
	c.StartBatch(domain.ActionErasePath, "", "alice")
	c.AddToBatch(erase("alice", "p1"))

	clock.Advance(2 * time.Second)
	assert.True(t, c.IsOpen())
	assert.True(t, c.AddToBatch(erase("alice", "p2")))

	// 从批次开始算起超过擦除窗口后不再接受
	clock.Advance(3 * time.Second)
	assert.False(t, c.AddToBatch(erase("alice", "p3")))
	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0].Payload.(domain.BatchUpdatePayload).Actions, 2)
	assert.False(t, c.IsOpen())
}

func TestCoordinator_ElapsedSinceStartBoundsAcceptance(t *testing.T) {
	cfg := batch.DefaultConfig()
	c, clock, rec := newTestCoordinator(cfg)
	c.StartBatch(domain.ActionUpdateObject, "r", "alice")
	for i := 0; i < 3; i++ {
		clock.Advance(400 * time.Millisecond)
		if i < 2 {
			assert.True(t, c.AddToBatch(move("alice", "r", float64(i))))
		} else {
			// 1.2s 已超过 1s 的批次窗口
			assert.False(t, c.AddToBatch(move("alice", "r", float64(i))))
		}
	}
	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0].Payload.(domain.BatchUpdatePayload).Actions, 2)
}

func TestCoordinator_SizeLimit(t *testing.T) {
	cfg := batch.Config{MaxBatchSize: 3, EraseSizeMultiplier: 2}
	c, _, rec := newTestCoordinator(cfg)

	c.StartBatch(domain.ActionUpdateObject, "r", "alice")
	for i := 0; i < 3; i++ {
		assert.True(t, c.AddToBatch(move("alice", "r", float64(i))))
	}
	assert.False(t, c.IsOpen())
	require.Len(t, rec.batches, 1)

	c.StartBatch(domain.ActionErasePath, "", "alice")
	for i := 0; i < 5; i++ {
		c.AddToBatch(erase("alice", "p"))
	}
	assert.True(t, c.IsOpen(), "擦除批次的上限是 3 x 2")
	c.AddToBatch(erase("alice", "p"))
	assert.False(t, c.IsOpen())
	assert.Len(t, rec.batches, 2)
}

func TestCoordinator_EmptyBatchEmitsNothing(t *testing.T) {
	c, clock, rec := newTestCoordinator(batch.DefaultConfig())
	c.StartBatch(domain.ActionUpdateObject, "r", "alice")

	_, ok := c.EndBatch()
	assert.False(t, ok)

	c.StartBatch(domain.ActionUpdateObject, "r", "alice")
	clock.Advance(2 * time.Second)
	assert.Empty(t, rec.batches)
	assert.False(t, c.AddToBatch(move("alice", "r", 1)), "没有打开的批次")
}

func TestCoordinator_StaleTimerIgnored(t *testing.T) {
	c, clock, rec := newTestCoordinator(batch.DefaultConfig())
	c.StartBatch(domain.ActionUpdateObject, "r", "alice")
	c.AddToBatch(move("alice", "r", 1))
	clock.Advance(500 * time.Millisecond)
	// 新批次替换旧批次，旧定时器已被取消
	c.StartBatch(domain.ActionUpdateObject, "r", "alice")
	c.AddToBatch(move("alice", "r", 2))

	clock.Advance(600 * time.Millisecond)
	assert.True(t, c.IsOpen(), "新批次从自己的开始时间计时")
	assert.Len(t, rec.batches, 1)
}
