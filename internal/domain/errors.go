package domain

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrInvalidAction 表示操作结构不完整，不能进入 store
	ErrInvalidAction = errors.New("domain: invalid action")
	// ErrUnknownActionType 表示类型标签不在已知集合内
	ErrUnknownActionType = errors.New("domain: unknown action type")
	// ErrNotAPath 表示对象不是可擦除的 path
	ErrNotAPath = errors.New("domain: object is not a path")
)

// NewID 生成对象、操作、批次共用的唯一 id
func NewID() string {
	return uuid.NewString()
}
