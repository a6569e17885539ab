package browserpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源监控器
// 职责: 周期采样系统可用内存和CPU负载,供池在创建新会话前做余量检查
// 每个浏览器进程消耗数百MB内存,资源不足时暂缓创建比OOM后回收便宜得多
type ResourceMonitor struct {
	config MonitorConfig

	// 缓存的采样结果
	mu              sync.RWMutex
	availableMemory uint64
	cpuUsage        float64

	// 监控控制
	cancelFunc context.CancelFunc
	isRunning  bool
}

// MonitorConfig 资源监控器配置
type MonitorConfig struct {
	MinAvailableMemory uint64        // 可用内存低于该值时暂停创建(字节)
	CPULoadThreshold   int           // CPU负载阈值(%), >=200视为禁用检查
	SampleInterval     time.Duration // 采样周期
}

// DefaultMonitorConfig 默认监控配置
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		MinAvailableMemory: 500 * 1024 * 1024, // 500MB
		CPULoadThreshold:   80,
		SampleInterval:     time.Second,
	}
}

// NewResourceMonitor 创建资源监控器实例并完成一次初始采样
func NewResourceMonitor(config MonitorConfig) *ResourceMonitor {
	if config.SampleInterval <= 0 {
		config.SampleInterval = time.Second
	}

	rm := &ResourceMonitor{config: config}

	// 初始采样,避免Start前的检查读到零值
	if vmStat, err := mem.VirtualMemory(); err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,资源检查降级为放行")
		rm.availableMemory = config.MinAvailableMemory + 1
	} else {
		rm.availableMemory = vmStat.Available
		log.Info().Msgf("系统总内存: %.2f GB, 当前可用: %.2f GB",
			float64(vmStat.Total)/(1024*1024*1024),
			float64(vmStat.Available)/(1024*1024*1024))
	}

	return rm
}

// Start 启动后台采样goroutine(幂等)
func (rm *ResourceMonitor) Start() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.isRunning = true

	go rm.sampleLoop(ctx)
}

// Stop 停止后台采样(幂等)
func (rm *ResourceMonitor) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning && rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.isRunning = false
		rm.cancelFunc = nil
	}
}

// sampleLoop 后台采样循环
func (rm *ResourceMonitor) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(rm.config.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.sample()
		}
	}
}

// sample 采样一次内存和CPU
func (rm *ResourceMonitor) sample() {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		log.Warn().Err(err).Msg("采样系统内存失败")
		return
	}

	// 100毫秒采样间隔,避免阻塞过久; perCPU=false返回所有核心的平均值
	usage := 0.0
	if percentages, err := cpu.Percent(100*time.Millisecond, false); err != nil {
		log.Warn().Err(err).Msg("采样CPU使用率失败")
	} else if len(percentages) > 0 {
		usage = percentages[0]
	}

	rm.mu.Lock()
	rm.availableMemory = vmStat.Available
	rm.cpuUsage = usage
	rm.mu.Unlock()
}

// CheckResourceAvailability 检查当前资源是否允许创建新会话
// 返回canCreate(是否允许)和reason(不允许时的原因)
func (rm *ResourceMonitor) CheckResourceAvailability() (canCreate bool, reason string) {
	rm.mu.RLock()
	available := rm.availableMemory
	cpuUsage := rm.cpuUsage
	rm.mu.RUnlock()

	if available < rm.config.MinAvailableMemory {
		return false, fmt.Sprintf("可用内存不足(当前%dMB)", available/(1024*1024))
	}

	if rm.config.CPULoadThreshold < 200 && cpuUsage > float64(rm.config.CPULoadThreshold) {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", cpuUsage)
	}

	return true, ""
}

// AvailableMemory 返回最近采样的系统可用内存(字节)
func (rm *ResourceMonitor) AvailableMemory() uint64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.availableMemory
}
