package browserpool

import (
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ResourceState 会话资源状态
type ResourceState int

const (
	StateIdle   ResourceState = iota // 空闲,可被复用
	StateLeased                      // 已租出,调用方正在使用
	StateInvalid                     // 失效,等待销毁
)

// String 返回状态的可读名称
func (s ResourceState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLeased:
		return "leased"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Resource 一个外部管理的浏览器会话句柄
// ID在创建时生成,与内存地址无关,作为activeMap的唯一键
type Resource struct {
	// ID 会话唯一标识(uuid)
	ID string

	// Browser 底层rod浏览器实例
	Browser *rod.Browser

	// launcher 启动该浏览器的launcher,销毁时需要清理
	launcher *launcher.Launcher

	// CreatedAt 创建时间,跨复用累计,归还时不重置
	CreatedAt time.Time

	// LastUsedAt 最近一次租出时间,由池在租出时更新
	LastUsedAt time.Time

	// state 当前状态,仅在池锁内修改
	state ResourceState
}

// Age 返回资源自创建以来的累计寿命
func (r *Resource) Age() time.Duration {
	return time.Since(r.CreatedAt)
}

// State 返回资源当前状态
func (r *Resource) State() ResourceState {
	return r.state
}
