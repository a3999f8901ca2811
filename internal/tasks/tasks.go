package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"collaborative-whiteboard/internal/domain"
)

// 任务类型
const (
	TypeActionArchive = "action:archive" // 归档一条已应用的操作
	TypeSnapshotSave  = "snapshot:save"  // 保存房间文档快照
	TypeSnapshotCheck = "snapshot:check" // 周期性检查活跃房间是否需要快照
)

// 队列名
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// ActionArchivePayload 是归档任务的数据
type ActionArchivePayload struct {
	RoomID string        `json:"room_id"`
	Action domain.Action `json:"action"`
}

// SnapshotSavePayload 是快照保存任务的数据，携带房间关闭时的完整文档
type SnapshotSavePayload struct {
	RoomID  string                  `json:"room_id"`
	Version uint64                  `json:"version"`
	State   *domain.WhiteboardState `json:"state"`
}

// NewActionArchiveTask 创建归档任务
func NewActionArchiveTask(roomID string, a domain.Action) (*asynq.Task, error) {
	payload, err := json.Marshal(ActionArchivePayload{RoomID: roomID, Action: a})
	if err != nil {
		return nil, fmt.Errorf("tasks: failed to marshal archive payload for action %s: %w", a.ID, err)
	}
	// 以操作 id 作为任务 id，同一条操作只会排队一次
	return asynq.NewTask(TypeActionArchive, payload,
		asynq.Queue(QueueDefault), asynq.MaxRetry(5), asynq.TaskID("archive:"+a.ID)), nil
}

// NewSnapshotSaveTask 创建快照保存任务
func NewSnapshotSaveTask(roomID string, version uint64, state *domain.WhiteboardState) (*asynq.Task, error) {
	payload, err := json.Marshal(SnapshotSavePayload{RoomID: roomID, Version: version, State: state})
	if err != nil {
		return nil, fmt.Errorf("tasks: failed to marshal snapshot payload for room %s: %w", roomID, err)
	}
	return asynq.NewTask(TypeSnapshotSave, payload, asynq.Queue(QueueCritical), asynq.MaxRetry(3)), nil
}

// NewSnapshotCheckTask 创建周期性快照检查任务
func NewSnapshotCheckTask() *asynq.Task {
	return asynq.NewTask(TypeSnapshotCheck, nil, asynq.Queue(QueueLow), asynq.MaxRetry(0))
}

// ParseActionArchive 解析归档任务
func ParseActionArchive(t *asynq.Task) (ActionArchivePayload, error) {
	var p ActionArchivePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("tasks: failed to unmarshal %s payload: %w", t.Type(), err)
	}
	if p.RoomID == "" || p.Action.ID == "" {
		return p, fmt.Errorf("tasks: %s payload missing room or action id", t.Type())
	}
	return p, nil
}

// ParseSnapshotSave 解析快照保存任务
func ParseSnapshotSave(t *asynq.Task) (SnapshotSavePayload, error) {
	var p SnapshotSavePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("tasks: failed to unmarshal %s payload: %w", t.Type(), err)
	}
	if p.RoomID == "" {
		return p, fmt.Errorf("tasks: %s payload missing room id", t.Type())
	}
	if p.State == nil {
		p.State = domain.NewState()
	}
	return p, nil
}
