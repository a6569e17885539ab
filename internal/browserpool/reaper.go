package browserpool

import (
	"time"

	"github.com/rs/zerolog/log"
)

// reaperLoop 后台维护循环
// 按MaintenanceInterval周期清扫,Shutdown通过stopCh通知退出
func (p *Pool) reaperLoop() {
	defer close(p.reaperDone)

	ticker := time.NewTicker(p.config.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep 单次维护清扫: 强制回收卡死租约,修复计数漂移
// 清扫中的任何异常只记录日志,维护循环本身永不因此退出
func (p *Pool) sweep() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("维护清扫异常(已忽略,下个周期继续): %v", r)
		}
	}()

	now := time.Now()

	// 回收卡死租约: 租出后长期未归还的会话,持有方大概率已崩溃
	p.mu.Lock()
	var stuck []*Resource
	for id, res := range p.active {
		if now.Sub(res.LastUsedAt) > p.config.StuckLeaseThreshold {
			stuck = append(stuck, res)
			delete(p.active, id)
			p.count--
		}
	}
	p.mu.Unlock()

	for _, res := range stuck {
		log.Warn().
			Str("session_id", res.ID).
			Dur("leased_for", now.Sub(res.LastUsedAt)).
			Msg("发现卡死会话(超过阈值未归还),强制回收")
		p.factory.Destroy(res)
		p.stats.Reaped.Add(1)
	}

	// 修复计数漂移: count必须等于空闲数+租出数
	p.mu.Lock()
	expected := len(p.idle) + len(p.active)
	if p.running && expected != p.count {
		log.Warn().
			Int("tracked", p.count).
			Int("actual", expected).
			Msg("会话计数不一致,已自动修复")
		p.count = expected
	}
	p.mu.Unlock()
}
