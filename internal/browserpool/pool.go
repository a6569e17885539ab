package browserpool

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config 会话池配置
type Config struct {
	MaxSessions         int           // 最大并发会话数
	MaxSessionAge       time.Duration // 会话最大累计寿命,超龄强制淘汰
	PollInterval        time.Duration // Acquire轮询间隔
	MaintenanceInterval time.Duration // 维护清扫周期
	StuckLeaseThreshold time.Duration // 租约卡死判定阈值
}

// DefaultConfig 默认会话池配置
func DefaultConfig() Config {
	return Config{
		MaxSessions:         2,
		MaxSessionAge:       30 * time.Minute,
		PollInterval:        500 * time.Millisecond,
		MaintenanceInterval: 30 * time.Second,
		StuckLeaseThreshold: 5 * time.Minute,
	}
}

// Pool 浏览器会话池
// 职责: 限制并发会话数,跨请求复用健康会话,淘汰失效/超龄会话,
// 后台回收卡死租约,保证关闭时所有会话恰好销毁一次
//
// 不变量(由单一互斥锁维护):
//   - count == len(idle) + len(active)
//   - count <= MaxSessions
//   - 每个会话ID只出现在idle或active其中之一
//
// 进程生命周期内只构造一个Pool实例,注入所有调用方共享
type Pool struct {
	factory Factory
	config  Config
	monitor *ResourceMonitor // 可为nil,表示不做系统资源检查

	// 以下字段均受mu保护
	mu      sync.Mutex
	idle    []*Resource          // 空闲队列,FIFO
	active  map[string]*Resource // 已租出会话: ID -> Resource
	count   int                  // 当前持有的会话总数(空闲+租出)
	running bool

	stopCh     chan struct{} // 关闭时通知维护循环退出
	reaperDone chan struct{} // 维护循环退出后关闭

	stats Stats
}

// NewPool 创建会话池并启动后台维护循环
// monitor可为nil;非nil时创建新会话前会检查系统资源余量
func NewPool(factory Factory, config Config, monitor *ResourceMonitor) *Pool {
	if config.MaxSessions <= 0 {
		config.MaxSessions = DefaultConfig().MaxSessions
	}
	if config.MaxSessionAge <= 0 {
		config.MaxSessionAge = DefaultConfig().MaxSessionAge
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.MaintenanceInterval <= 0 {
		config.MaintenanceInterval = DefaultConfig().MaintenanceInterval
	}
	if config.StuckLeaseThreshold <= 0 {
		config.StuckLeaseThreshold = DefaultConfig().StuckLeaseThreshold
	}

	p := &Pool{
		factory:    factory,
		config:     config,
		monitor:    monitor,
		idle:       make([]*Resource, 0, config.MaxSessions),
		active:     make(map[string]*Resource),
		running:    true,
		stopCh:     make(chan struct{}),
		reaperDone: make(chan struct{}),
	}

	go p.reaperLoop()

	log.Info().
		Int("max_sessions", config.MaxSessions).
		Dur("max_session_age", config.MaxSessionAge).
		Dur("stuck_lease_threshold", config.StuckLeaseThreshold).
		Msg("浏览器会话池已初始化")

	return p
}

// Acquire 获取一个可用会话
// 优先复用空闲会话(逐个校验,失效的销毁后立即重试);
// 空闲队列为空且未达容量上限时创建新会话;
// 容量已满时按PollInterval轮询,超过timeout返回ErrAcquireTimeout
// 创建失败(ErrSessionCreate)直接上抛,不占用容量
func (p *Pool) Acquire(timeout time.Duration) (*Resource, error) {
	deadline := time.Now().Add(timeout)

	for {
		res, err := p.tryAcquire()
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}

		// 容量已满且无空闲会话,轮询等待
		if time.Now().After(deadline) {
			p.stats.Timeouts.Add(1)
			log.Warn().Dur("timeout", timeout).Msg("获取会话超时,无可用会话")
			return nil, ErrAcquireTimeout
		}

		wait := p.config.PollInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		time.Sleep(wait)
	}
}

// tryAcquire 单轮获取尝试
// 返回(nil, nil)表示当前无可用会话且不可创建,调用方应轮询重试
func (p *Pool) tryAcquire() (*Resource, error) {
	for {
		p.mu.Lock()
		if !p.running {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if len(p.idle) > 0 {
			// 弹出队首,校验在锁外进行,避免探测I/O阻塞其他调用方
			res := p.idle[0]
			p.idle = p.idle[1:]
			p.mu.Unlock()

			if !p.factory.IsValid(res) {
				p.factory.Destroy(res)
				p.mu.Lock()
				if p.running {
					p.count--
				}
				p.mu.Unlock()
				p.stats.Recycled.Add(1)
				log.Debug().Str("session_id", res.ID).Msg("空闲会话已失效,销毁后重试")
				continue
			}

			p.mu.Lock()
			if !p.running {
				// 校验期间池已关闭,该会话不再登记,就地销毁
				p.mu.Unlock()
				p.factory.Destroy(res)
				return nil, ErrPoolClosed
			}
			res.state = StateLeased
			res.LastUsedAt = time.Now()
			p.active[res.ID] = res
			p.mu.Unlock()

			p.stats.Reused.Add(1)
			log.Debug().Str("session_id", res.ID).Msg("复用空闲会话")
			return res, nil
		}

		// 空闲队列为空,容量允许时创建新会话
		if p.count < p.config.MaxSessions {
			if p.monitor != nil {
				if ok, reason := p.monitor.CheckResourceAvailability(); !ok {
					p.mu.Unlock()
					log.Warn().Msgf("系统资源不足,暂缓创建新会话: %s", reason)
					return nil, nil
				}
			}

			// 持锁创建: 容量判定与登记必须原子,防止并发超卖
			res, err := p.factory.Create()
			if err != nil {
				p.mu.Unlock()
				return nil, err
			}
			res.state = StateLeased
			res.LastUsedAt = time.Now()
			p.count++
			p.active[res.ID] = res
			current := p.count
			p.mu.Unlock()

			p.stats.Created.Add(1)
			log.Info().Str("session_id", res.ID).Int("pool_size", current).Msg("创建新会话")
			return res, nil
		}

		p.mu.Unlock()
		return nil, nil
	}
}

// Release 归还会话
// 未登记的会话直接销毁且不影响计数(可恢复异常,只告警);
// 超龄或失效的会话销毁并递减计数,否则推入空闲队列尾部
// 会话的CreatedAt跨复用保留,寿命累计计算
func (p *Pool) Release(res *Resource) {
	if res == nil {
		return
	}

	p.mu.Lock()
	if _, ok := p.active[res.ID]; !ok {
		p.mu.Unlock()
		log.Warn().Str("session_id", res.ID).Msg("归还了未登记的会话,直接销毁(不计入池)")
		p.factory.Destroy(res)
		return
	}
	delete(p.active, res.ID)
	p.mu.Unlock()

	// 超龄或失效: 销毁并释放容量
	age := time.Since(res.CreatedAt)
	if age > p.config.MaxSessionAge || !p.factory.IsValid(res) {
		p.factory.Destroy(res)
		p.mu.Lock()
		if p.running {
			p.count--
		}
		current := p.count
		p.mu.Unlock()
		p.stats.Recycled.Add(1)
		log.Debug().
			Str("session_id", res.ID).
			Dur("age", age).
			Int("pool_size", current).
			Msg("会话超龄或失效,已销毁")
		return
	}

	p.mu.Lock()
	if !p.running {
		// 归还途中池已关闭,就地销毁
		p.mu.Unlock()
		p.factory.Destroy(res)
		return
	}
	res.state = StateIdle
	p.idle = append(p.idle, res)
	p.mu.Unlock()

	log.Debug().Str("session_id", res.ID).Msg("会话已归还空闲队列")
}

// Shutdown 关闭会话池,销毁所有持有的会话
// 幂等: 重复调用是空操作;可与进行中的Acquire/Release并发执行
// main中同时挂接到SIGINT/SIGTERM信号处理
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)

	doomed := make([]*Resource, 0, len(p.idle)+len(p.active))
	doomed = append(doomed, p.idle...)
	for _, res := range p.active {
		doomed = append(doomed, res)
	}
	p.idle = nil
	p.active = make(map[string]*Resource)
	p.count = 0
	p.mu.Unlock()

	// 等维护循环退出,避免与清扫并发操作
	<-p.reaperDone

	for _, res := range doomed {
		p.factory.Destroy(res)
	}

	log.Info().Int("destroyed", len(doomed)).Msg("会话池已关闭")
}

// Count 返回当前持有的会话总数(空闲+租出)
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// IdleCount 返回空闲会话数
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// ActiveCount 返回已租出会话数
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}
