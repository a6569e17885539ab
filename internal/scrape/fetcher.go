package scrape

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/EmberTrace/marketseek/internal/browserpool"
)

// Config 抓取配置
type Config struct {
	AcquireTimeout  time.Duration // 等待可用会话的上限
	PageLoadTimeout time.Duration // 页面导航+加载超时
	WaitTime        time.Duration // 加载完成后等待动态内容渲染的时间
}

// DefaultConfig 默认抓取配置
func DefaultConfig() Config {
	return Config{
		AcquireTimeout:  30 * time.Second,
		PageLoadTimeout: 30 * time.Second,
		WaitTime:        3 * time.Second,
	}
}

// Page 一次抓取的渲染结果
type Page struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	HTML      string    `json:"-"`
	Size      int       `json:"size"`
	SessionID string    `json:"session_id"`
	FetchedAt time.Time `json:"fetched_at"`
	Duration  float64   `json:"duration"`
}

// Fetcher 页面抓取器,会话池的消费方
// 每次抓取从池租借一个会话,用完归还;会话由池独占管理,
// 抓取器只持有租约,绝不自行销毁或长期持有
type Fetcher struct {
	pool   *browserpool.Pool
	config Config
}

// NewFetcher 创建页面抓取器
// pool必须是进程级共享的同一个实例,每次调用新建池会使复用和容量约束失效
func NewFetcher(pool *browserpool.Pool, config Config) *Fetcher {
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = DefaultConfig().AcquireTimeout
	}
	if config.PageLoadTimeout <= 0 {
		config.PageLoadTimeout = DefaultConfig().PageLoadTimeout
	}
	return &Fetcher{pool: pool, config: config}
}

// Fetch 渲染一个页面并返回其HTML
func (f *Fetcher) Fetch(targetURL string) (*Page, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("目标URL格式无效: %s", targetURL)
	}

	res, err := f.pool.Acquire(f.config.AcquireTimeout)
	if err != nil {
		return nil, fmt.Errorf("获取浏览器会话失败: %w", err)
	}
	defer f.pool.Release(res)

	start := time.Now()

	page, err := res.Browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("创建标签页失败(浏览器可能已崩溃): %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Warn().Err(err).Str("session_id", res.ID).Msg("关闭标签页失败")
		}
	}()

	page = page.Timeout(f.config.PageLoadTimeout)

	if err := page.Navigate(targetURL); err != nil {
		return nil, fmt.Errorf("导航失败 [%s]: %w", targetURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("等待页面加载失败 [%s]: %w", targetURL, err)
	}

	// 给动态内容(懒加载商品卡片等)留出渲染时间
	if f.config.WaitTime > 0 {
		time.Sleep(f.config.WaitTime)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("读取页面内容失败 [%s]: %w", targetURL, err)
	}

	title := ""
	if info, err := page.Info(); err == nil {
		title = info.Title
	}

	result := &Page{
		URL:       targetURL,
		Title:     title,
		HTML:      html,
		Size:      len(html),
		SessionID: res.ID,
		FetchedAt: start,
		Duration:  time.Since(start).Seconds(),
	}

	log.Debug().
		Str("url", targetURL).
		Str("session_id", res.ID).
		Int("size", result.Size).
		Float64("duration", result.Duration).
		Msg("页面抓取完成")

	return result, nil
}
