package browserpool

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeFactory 测试用假工厂,不启动真实浏览器
// 记录创建/销毁次数,可按ID注入失效状态和创建失败
type fakeFactory struct {
	mu        sync.Mutex
	nextID    int
	created   []string
	destroyed map[string]int
	invalid   map[string]bool
	panicky   map[string]bool // 销毁时panic的ID,模拟有缺陷的工厂
	createErr error

	// 非nil时IsValid进入后先发信号再阻塞等待,用于在锁外探测窗口中暂停调用方
	validEntered chan struct{}
	validRelease chan struct{}
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		destroyed: make(map[string]int),
		invalid:   make(map[string]bool),
		panicky:   make(map[string]bool),
	}
}

func (f *fakeFactory) Create() (*Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}

	f.nextID++
	id := fmt.Sprintf("session-%03d", f.nextID)
	f.created = append(f.created, id)

	now := time.Now()
	return &Resource{ID: id, CreatedAt: now, LastUsedAt: now}, nil
}

func (f *fakeFactory) IsValid(res *Resource) bool {
	f.mu.Lock()
	entered, release := f.validEntered, f.validRelease
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return res != nil && !f.invalid[res.ID]
}

func (f *fakeFactory) Destroy(res *Resource) {
	if res == nil {
		return
	}
	f.mu.Lock()
	panicky := f.panicky[res.ID]
	f.destroyed[res.ID]++
	f.mu.Unlock()
	if panicky {
		panic("工厂销毁异常: " + res.ID)
	}
}

func (f *fakeFactory) markInvalid(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalid[id] = true
}

func (f *fakeFactory) setCreateErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

func (f *fakeFactory) destroyCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed[id]
}

func (f *fakeFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// testConfig 短周期配置,避免测试等待过久
func testConfig() Config {
	return Config{
		MaxSessions:         1,
		MaxSessionAge:       30 * time.Minute,
		PollInterval:        20 * time.Millisecond,
		MaintenanceInterval: time.Hour, // 默认关闭周期清扫,需要时直接调用sweep
		StuckLeaseThreshold: 5 * time.Minute,
	}
}

func TestPoolAcquireCreateAndReuse(t *testing.T) {
	factory := newFakeFactory()
	pool := NewPool(factory, testConfig(), nil)
	defer pool.Shutdown()

	// 空池获取: 立即创建并返回,不应有可感知的延迟
	start := time.Now()
	r1, err := pool.Acquire(10 * time.Second)
	if err != nil {
		t.Fatalf("空池获取失败: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("空池获取耗时过长: %v", elapsed)
	}
	if pool.Count() != 1 || pool.ActiveCount() != 1 {
		t.Errorf("期望count=1 active=1, 实际count=%d active=%d", pool.Count(), pool.ActiveCount())
	}

	// 健康归还: 进入空闲队列
	pool.Release(r1)
	if pool.IdleCount() != 1 || pool.ActiveCount() != 0 {
		t.Errorf("归还后期望idle=1 active=0, 实际idle=%d active=%d", pool.IdleCount(), pool.ActiveCount())
	}

	// 再次获取: 复用同一会话,不新建
	r2, err := pool.Acquire(10 * time.Second)
	if err != nil {
		t.Fatalf("复用获取失败: %v", err)
	}
	if r2.ID != r1.ID {
		t.Errorf("期望复用会话%s, 实际返回%s", r1.ID, r2.ID)
	}
	if factory.createdCount() != 1 {
		t.Errorf("期望只创建1个会话, 实际创建%d个", factory.createdCount())
	}
}

func TestPoolAcquireTimeout(t *testing.T) {
	factory := newFakeFactory()
	pool := NewPool(factory, testConfig(), nil)
	defer pool.Shutdown()

	r1, err := pool.Acquire(time.Second)
	if err != nil {
		t.Fatalf("获取失败: %v", err)
	}
	defer pool.Release(r1)

	// 容量=1且会话被占用,第二次获取应在约定时间附近超时
	timeout := 300 * time.Millisecond
	start := time.Now()
	_, err = pool.Acquire(timeout)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("期望ErrAcquireTimeout, 实际: %v", err)
	}
	if elapsed < timeout {
		t.Errorf("超时提前返回: %v < %v", elapsed, timeout)
	}
	if elapsed > timeout+time.Second {
		t.Errorf("超时严重滞后: %v", elapsed)
	}
	if got := pool.Stats().Timeouts; got != 1 {
		t.Errorf("期望超时统计=1, 实际=%d", got)
	}
}

func TestPoolAcquireConcurrent(t *testing.T) {
	factory := newFakeFactory()
	config := testConfig()
	config.MaxSessions = 3
	pool := NewPool(factory, config, nil)
	defer pool.Shutdown()

	// 3个并发获取应拿到3个不同的会话
	var mu sync.Mutex
	ids := make(map[string]bool)
	var wg sync.WaitGroup
	resources := make([]*Resource, 3)

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := pool.Acquire(5 * time.Second)
			if err != nil {
				t.Errorf("并发获取%d失败: %v", i, err)
				return
			}
			mu.Lock()
			ids[res.ID] = true
			resources[i] = res
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(ids) != 3 {
		t.Fatalf("期望3个不同会话, 实际%d个", len(ids))
	}
	if pool.Count() != 3 {
		t.Errorf("期望count=3, 实际%d", pool.Count())
	}

	// 第4个获取阻塞,直到有会话归还
	done := make(chan *Resource, 1)
	go func() {
		res, err := pool.Acquire(5 * time.Second)
		if err != nil {
			t.Errorf("等待中的获取失败: %v", err)
			done <- nil
			return
		}
		done <- res
	}()

	select {
	case <-done:
		t.Fatal("第4个获取不应在归还前返回")
	case <-time.After(150 * time.Millisecond):
	}

	pool.Release(resources[0])

	select {
	case res := <-done:
		if res != nil && res.ID != resources[0].ID {
			t.Errorf("期望复用归还的会话%s, 实际%s", resources[0].ID, res.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("归还后等待中的获取仍未返回")
	}
}

func TestPoolReleaseUnknownSession(t *testing.T) {
	factory := newFakeFactory()
	pool := NewPool(factory, testConfig(), nil)
	defer pool.Shutdown()

	r1, err := pool.Acquire(time.Second)
	if err != nil {
		t.Fatalf("获取失败: %v", err)
	}

	// 重复归还: 第二次时会话已不在activeMap,应直接销毁且不影响计数
	pool.Release(r1)
	countBefore := pool.Count()
	pool.Release(r1)

	if pool.Count() != countBefore {
		t.Errorf("未登记归还不应影响计数: %d -> %d", countBefore, pool.Count())
	}
	if factory.destroyCount(r1.ID) != 1 {
		t.Errorf("期望防御性销毁1次, 实际%d次", factory.destroyCount(r1.ID))
	}

	// 归还nil是空操作
	pool.Release(nil)
}

func TestPoolReleaseInvalidSession(t *testing.T) {
	factory := newFakeFactory()
	pool := NewPool(factory, testConfig(), nil)
	defer pool.Shutdown()

	r1, err := pool.Acquire(time.Second)
	if err != nil {
		t.Fatalf("获取失败: %v", err)
	}

	// 归还时探测失败 → 销毁,计数归零
	factory.markInvalid(r1.ID)
	pool.Release(r1)

	if pool.Count() != 0 {
		t.Errorf("失效归还后期望count=0, 实际%d", pool.Count())
	}
	if factory.destroyCount(r1.ID) != 1 {
		t.Errorf("期望销毁1次, 实际%d次", factory.destroyCount(r1.ID))
	}

	// 后续获取创建全新会话
	r2, err := pool.Acquire(time.Second)
	if err != nil {
		t.Fatalf("重建获取失败: %v", err)
	}
	if r2.ID == r1.ID {
		t.Errorf("失效会话%s不应被再次返回", r1.ID)
	}
}

func TestPoolReleaseExpiredSession(t *testing.T) {
	factory := newFakeFactory()
	config := testConfig()
	config.MaxSessionAge = 50 * time.Millisecond
	pool := NewPool(factory, config, nil)
	defer pool.Shutdown()

	r1, err := pool.Acquire(time.Second)
	if err != nil {
		t.Fatalf("获取失败: %v", err)
	}

	// 寿命跨复用累计: 等到超龄后归还,即使健康也淘汰
	time.Sleep(80 * time.Millisecond)
	pool.Release(r1)

	if pool.Count() != 0 {
		t.Errorf("超龄归还后期望count=0, 实际%d", pool.Count())
	}
	if factory.destroyCount(r1.ID) != 1 {
		t.Errorf("期望超龄销毁1次, 实际%d次", factory.destroyCount(r1.ID))
	}

	r2, err := pool.Acquire(time.Second)
	if err != nil {
		t.Fatalf("获取失败: %v", err)
	}
	if r2.ID == r1.ID {
		t.Errorf("超龄会话%s不应被再次返回", r1.ID)
	}
}

func TestPoolAcquireRetryOnInvalidIdle(t *testing.T) {
	factory := newFakeFactory()
	pool := NewPool(factory, testConfig(), nil)
	defer pool.Shutdown()

	r1, err := pool.Acquire(time.Second)
	if err != nil {
		t.Fatalf("获取失败: %v", err)
	}
	pool.Release(r1)

	// 会话在空闲队列中失效: 获取时探测失败,销毁后立即新建
	factory.markInvalid(r1.ID)

	start := time.Now()
	r2, err := pool.Acquire(5 * time.Second)
	if err != nil {
		t.Fatalf("获取失败: %v", err)
	}
	if r2.ID == r1.ID {
		t.Errorf("失效的空闲会话%s不应被返回", r1.ID)
	}
	// 失效重试不含轮询睡眠,应立即完成
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("失效重试耗时过长: %v", elapsed)
	}
	if factory.destroyCount(r1.ID) != 1 {
		t.Errorf("期望失效会话销毁1次, 实际%d次", factory.destroyCount(r1.ID))
	}
	if pool.Count() != 1 {
		t.Errorf("期望count=1, 实际%d", pool.Count())
	}
}

func TestPoolAcquireCreateError(t *testing.T) {
	factory := newFakeFactory()
	pool := NewPool(factory, testConfig(), nil)
	defer pool.Shutdown()

	errBoom := errors.New("浏览器启动失败")
	factory.setCreateErr(errBoom)

	_, err := pool.Acquire(time.Second)
	if !errors.Is(err, errBoom) {
		t.Fatalf("期望创建错误上抛, 实际: %v", err)
	}
	if pool.Count() != 0 {
		t.Errorf("创建失败不应占用容量, count=%d", pool.Count())
	}

	// 故障恢复后获取应成功
	factory.setCreateErr(nil)
	if _, err := pool.Acquire(time.Second); err != nil {
		t.Fatalf("恢复后获取失败: %v", err)
	}
	if pool.Count() != 1 {
		t.Errorf("期望count=1, 实际%d", pool.Count())
	}
}

func TestPoolShutdownIdempotent(t *testing.T) {
	factory := newFakeFactory()
	config := testConfig()
	config.MaxSessions = 2
	pool := NewPool(factory, config, nil)

	r1, err := pool.Acquire(time.Second)
	if err != nil {
		t.Fatalf("获取失败: %v", err)
	}
	r2, err := pool.Acquire(time.Second)
	if err != nil {
		t.Fatalf("获取失败: %v", err)
	}
	pool.Release(r1) // r1空闲, r2租出

	pool.Shutdown()

	if pool.Count() != 0 || pool.IdleCount() != 0 || pool.ActiveCount() != 0 {
		t.Errorf("关闭后期望全空, 实际count=%d idle=%d active=%d",
			pool.Count(), pool.IdleCount(), pool.ActiveCount())
	}

	// 每个创建过的会话恰好销毁一次
	for _, id := range []string{r1.ID, r2.ID} {
		if n := factory.destroyCount(id); n != 1 {
			t.Errorf("会话%s期望销毁1次, 实际%d次", id, n)
		}
	}

	// 重复关闭是空操作,不会二次销毁
	pool.Shutdown()
	for _, id := range []string{r1.ID, r2.ID} {
		if n := factory.destroyCount(id); n != 1 {
			t.Errorf("重复关闭后会话%s销毁%d次", id, n)
		}
	}

	// 关闭后获取快速失败
	if _, err := pool.Acquire(time.Second); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("关闭后获取期望ErrPoolClosed, 实际: %v", err)
	}
}

func TestPoolConcurrentInvariants(t *testing.T) {
	factory := newFakeFactory()
	config := testConfig()
	config.MaxSessions = 3
	pool := NewPool(factory, config, nil)

	const workers = 8
	const rounds = 20

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				res, err := pool.Acquire(5 * time.Second)
				if err != nil {
					t.Errorf("并发获取失败: %v", err)
					return
				}
				time.Sleep(time.Millisecond)
				pool.Release(res)
			}
		}()
	}

	// 采样检查不变量: count <= 容量,且count不小于idle+active
	// 锁外探测期间会话短暂脱离两个结构,此窗口内count可以大于idle+active,
	// 严格相等只在静止点成立,收尾处再检查
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			pool.mu.Lock()
			count := pool.count
			total := len(pool.idle) + len(pool.active)
			pool.mu.Unlock()
			if count < total {
				t.Errorf("不变量破坏: count=%d < idle+active=%d", count, total)
			}
			if count > config.MaxSessions {
				t.Errorf("容量超限: count=%d > %d", count, config.MaxSessions)
			}
			time.Sleep(time.Millisecond)
		}
	}()

	wg.Wait()
	close(stop)

	if pool.Count() != pool.IdleCount()+pool.ActiveCount() {
		t.Errorf("收尾不变量破坏: count=%d idle=%d active=%d",
			pool.Count(), pool.IdleCount(), pool.ActiveCount())
	}

	// 关闭后每个创建过的会话恰好销毁一次
	pool.Shutdown()
	factory.mu.Lock()
	defer factory.mu.Unlock()
	for _, id := range factory.created {
		if factory.destroyed[id] != 1 {
			t.Errorf("会话%s销毁%d次, 期望恰好1次", id, factory.destroyed[id])
		}
	}
}

func TestPoolReleaseValidationWindow(t *testing.T) {
	factory := newFakeFactory()
	pool := NewPool(factory, testConfig(), nil)
	defer pool.Shutdown()

	r1, err := pool.Acquire(time.Second)
	if err != nil {
		t.Fatalf("获取失败: %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	factory.mu.Lock()
	factory.validEntered = entered
	factory.validRelease = release
	factory.mu.Unlock()

	go pool.Release(r1)
	<-entered

	// 归还中的会话正处于锁外探测窗口: 已从active摘除且尚未回到idle,
	// 但容量计数仍然占用。此时count大于idle+active是合法的中间状态
	pool.mu.Lock()
	count := pool.count
	total := len(pool.idle) + len(pool.active)
	pool.mu.Unlock()
	if count != 1 || total != 0 {
		t.Errorf("探测窗口期望count=1 idle+active=0, 实际count=%d total=%d", count, total)
	}

	factory.mu.Lock()
	factory.validEntered = nil
	factory.validRelease = nil
	factory.mu.Unlock()
	close(release)

	// 探测放行后归还完成,静止点恢复严格相等
	deadline := time.Now().Add(2 * time.Second)
	for pool.IdleCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("归还未完成: count=%d idle=%d active=%d",
				pool.Count(), pool.IdleCount(), pool.ActiveCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if pool.Count() != pool.IdleCount()+pool.ActiveCount() {
		t.Errorf("静止点不变量破坏: count=%d idle=%d active=%d",
			pool.Count(), pool.IdleCount(), pool.ActiveCount())
	}
}
