// Package browserpool 提供有上限的浏览器会话池管理
//
// # 概述
//
// browserpool包管理一组昂贵的外部浏览器会话(go-rod),在并发调用方之间复用。
// 核心特性: 容量上限、空闲复用、健康校验、超龄淘汰、卡死租约后台回收、有序关闭。
//
// # 核心组件
//
// ## Pool (会话池)
//
// Acquire/Release契约的实现者。所有簿记(count/idle/active)由单一互斥锁保护,
// 存活探测和销毁在资源脱离共享结构后于锁外执行,避免慢I/O阻塞其他调用方。
//
//	factory := browserpool.NewRodFactory(browserpool.DefaultBrowserConfig())
//	pool := browserpool.NewPool(factory, browserpool.DefaultConfig(), nil)
//	defer pool.Shutdown()
//
//	res, err := pool.Acquire(30 * time.Second)
//	if err != nil {
//		return err
//	}
//	defer pool.Release(res)
//
// ## Factory (会话工厂)
//
// 创建/探测/销毁会话的抽象。RodFactory基于go-rod,每个会话是独立的浏览器进程。
// 销毁永远尽力而为,错误只记录不传播。
//
// ## 维护循环 (reaper)
//
// 随池启动的后台goroutine,周期性回收长期未归还的卡死租约,
// 并校验修复计数漂移。单次清扫的异常不会终止循环。
//
// ## ResourceMonitor (资源监控器)
//
// 可选组件,周期采样系统可用内存与CPU负载。资源不足时池暂缓创建新会话,
// 表现与容量已满一致(轮询等待),不向调用方报错。
package browserpool
