package scrape

import (
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/EmberTrace/marketseek/internal/utils"
)

// PageFetcher 单页抓取接口,便于批量逻辑独立测试
type PageFetcher interface {
	Fetch(targetURL string) (*Page, error)
}

// BatchResult 单个URL的批量抓取结果
type BatchResult struct {
	URL         string    `json:"url"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Page        *Page     `json:"page,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
	Duration    float64   `json:"duration"`
}

// BatchSummary 批量抓取摘要
type BatchSummary struct {
	TotalURLs     int           `json:"total_urls"`
	SuccessCount  int           `json:"success_count"`
	FailCount     int           `json:"fail_count"`
	TotalBytes    int64         `json:"total_bytes"`
	TotalDuration float64       `json:"total_duration"`
	Results       []BatchResult `json:"results"`
}

// BatchFetcher 批量抓取器
// 顺序处理URL列表,URL之间加延迟降低目标站压力
type BatchFetcher struct {
	fetcher       PageFetcher
	batchDelay    time.Duration
	continueOnErr bool
	showProgress  bool
}

// NewBatchFetcher 创建批量抓取器
func NewBatchFetcher(fetcher PageFetcher, batchDelay time.Duration, continueOnErr bool, showProgress bool) *BatchFetcher {
	return &BatchFetcher{
		fetcher:       fetcher,
		batchDelay:    batchDelay,
		continueOnErr: continueOnErr,
		showProgress:  showProgress,
	}
}

// FetchAll 依次抓取所有URL
// continueOnErr为false时首个失败即中止,已完成的结果仍然返回
func (b *BatchFetcher) FetchAll(urls []string) (*BatchSummary, error) {
	summary := &BatchSummary{
		TotalURLs: len(urls),
		Results:   make([]BatchResult, 0, len(urls)),
	}

	var bar *progressbar.ProgressBar
	if b.showProgress {
		bar = utils.NewProgressBar(len(urls), "抓取页面")
	}

	startTime := time.Now()

	for i, targetURL := range urls {
		utils.Infof("[%d/%d] 抓取: %s", i+1, len(urls), targetURL)

		processStart := time.Now()
		page, err := b.fetcher.Fetch(targetURL)

		result := BatchResult{
			URL:         targetURL,
			ProcessedAt: processStart,
			Duration:    time.Since(processStart).Seconds(),
		}

		if err != nil {
			result.Success = false
			result.Error = err.Error()
			summary.FailCount++
			utils.Warnf("抓取失败 [%s]: %v", targetURL, err)
		} else {
			result.Success = true
			result.Page = page
			summary.SuccessCount++
			summary.TotalBytes += int64(page.Size)
		}
		summary.Results = append(summary.Results, result)

		if bar != nil {
			bar.Add(1)
		}

		if err != nil && !b.continueOnErr {
			summary.TotalDuration = time.Since(startTime).Seconds()
			return summary, err
		}

		// URL间延迟,最后一个之后不等
		if i < len(urls)-1 && b.batchDelay > 0 {
			time.Sleep(b.batchDelay)
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()
	return summary, nil
}
