package batch

import "time"

// Timer 是可取消的定时器
type Timer interface {
	Stop() bool
}

// Clock 提供当前时间和延迟回调，测试中替换成手动推进的实现。
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock 返回基于 time 包的时钟
func RealClock() Clock { return realClock{} }
