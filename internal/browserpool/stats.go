package browserpool

import "sync/atomic"

// Stats 会话池运行统计
type Stats struct {
	Created  atomic.Int64 // 新建会话数
	Reused   atomic.Int64 // 空闲会话复用次数
	Recycled atomic.Int64 // 因超龄/失效销毁的会话数
	Reaped   atomic.Int64 // 被维护循环强制回收的卡死会话数
	Timeouts atomic.Int64 // Acquire超时次数
}

// StatsSnapshot 统计快照,用于日志和结果展示
type StatsSnapshot struct {
	Created  int64 `json:"created"`
	Reused   int64 `json:"reused"`
	Recycled int64 `json:"recycled"`
	Reaped   int64 `json:"reaped"`
	Timeouts int64 `json:"timeouts"`
}

// Stats 返回当前统计快照
func (p *Pool) Stats() StatsSnapshot {
	return StatsSnapshot{
		Created:  p.stats.Created.Load(),
		Reused:   p.stats.Reused.Load(),
		Recycled: p.stats.Recycled.Load(),
		Reaped:   p.stats.Reaped.Load(),
		Timeouts: p.stats.Timeouts.Load(),
	}
}
