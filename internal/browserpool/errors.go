package browserpool

import "errors"

// 池对外暴露的错误类型
// 只有获取超时、池已关闭和会话创建失败会传播给调用方,
// 校验失败、未知资源归还、维护异常均在内部处理
var (
	// ErrAcquireTimeout 在超时时间内没有可用会话
	ErrAcquireTimeout = errors.New("获取浏览器会话超时")

	// ErrPoolClosed 池已关闭,不再接受获取请求
	ErrPoolClosed = errors.New("会话池已关闭")

	// ErrSessionCreate 底层浏览器无法启动
	ErrSessionCreate = errors.New("创建浏览器会话失败")
)
