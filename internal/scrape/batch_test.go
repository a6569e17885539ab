package scrape

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// stubFetcher 测试桩,按URL注入失败
type stubFetcher struct {
	fail  map[string]bool
	calls []string
}

func (s *stubFetcher) Fetch(targetURL string) (*Page, error) {
	s.calls = append(s.calls, targetURL)
	if s.fail[targetURL] {
		return nil, errors.New("模拟抓取失败")
	}
	html := "<html><body>" + targetURL + "</body></html>"
	return &Page{
		URL:       targetURL,
		Title:     "测试页面",
		HTML:      html,
		Size:      len(html),
		SessionID: "session-001",
		FetchedAt: time.Now(),
	}, nil
}

func TestFetchAllSuccess(t *testing.T) {
	stub := &stubFetcher{fail: map[string]bool{}}
	batch := NewBatchFetcher(stub, 0, true, false)

	urls := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}

	summary, err := batch.FetchAll(urls)
	if err != nil {
		t.Fatalf("批量抓取失败: %v", err)
	}

	if summary.TotalURLs != 3 || summary.SuccessCount != 3 || summary.FailCount != 0 {
		t.Errorf("期望3/3/0, 实际total=%d success=%d fail=%d",
			summary.TotalURLs, summary.SuccessCount, summary.FailCount)
	}
	if summary.TotalBytes <= 0 {
		t.Error("期望累计字节数大于0")
	}
	if len(summary.Results) != 3 {
		t.Errorf("期望3条结果, 实际%d条", len(summary.Results))
	}
}

func TestFetchAllContinueOnError(t *testing.T) {
	stub := &stubFetcher{fail: map[string]bool{"https://example.com/b": true}}
	batch := NewBatchFetcher(stub, 0, true, false)

	urls := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}

	summary, err := batch.FetchAll(urls)
	if err != nil {
		t.Fatalf("continue-on-error模式不应返回错误: %v", err)
	}

	if summary.SuccessCount != 2 || summary.FailCount != 1 {
		t.Errorf("期望success=2 fail=1, 实际success=%d fail=%d",
			summary.SuccessCount, summary.FailCount)
	}
	if len(stub.calls) != 3 {
		t.Errorf("期望3个URL都被处理, 实际%d个", len(stub.calls))
	}
	if summary.Results[1].Error == "" {
		t.Error("失败结果应记录错误信息")
	}
}

func TestFetchAllAbortOnError(t *testing.T) {
	stub := &stubFetcher{fail: map[string]bool{"https://example.com/b": true}}
	batch := NewBatchFetcher(stub, 0, false, false)

	urls := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}

	summary, err := batch.FetchAll(urls)
	if err == nil {
		t.Fatal("期望首个失败即返回错误")
	}

	if len(stub.calls) != 2 {
		t.Errorf("中止后不应继续处理, 实际调用%d次", len(stub.calls))
	}
	if len(summary.Results) != 2 {
		t.Errorf("已完成的结果应保留, 实际%d条", len(summary.Results))
	}
}

func TestReporterSavePagesAndSummary(t *testing.T) {
	tempDir := t.TempDir()

	stub := &stubFetcher{fail: map[string]bool{"https://shop.example.com/b": true}}
	batch := NewBatchFetcher(stub, 0, true, false)
	summary, err := batch.FetchAll([]string{
		"https://shop.example.com/a",
		"https://shop.example.com/b",
	})
	if err != nil {
		t.Fatalf("批量抓取失败: %v", err)
	}

	reporter := NewReporter(tempDir)

	saved, err := reporter.SavePages(summary)
	if err != nil {
		t.Fatalf("保存页面失败: %v", err)
	}
	if saved != 1 {
		t.Errorf("期望保存1个页面, 实际%d个", saved)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "pages", "001_shop.example.com.html")); err != nil {
		t.Errorf("页面文件未生成: %v", err)
	}

	if err := reporter.SaveSummary(summary); err != nil {
		t.Fatalf("保存摘要失败: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tempDir, "fetch_report.json"))
	if err != nil {
		t.Fatalf("读取摘要失败: %v", err)
	}
	var loaded BatchSummary
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("摘要JSON解析失败: %v", err)
	}
	if loaded.SuccessCount != 1 || loaded.FailCount != 1 {
		t.Errorf("摘要内容不符: success=%d fail=%d", loaded.SuccessCount, loaded.FailCount)
	}
}

func TestHostLabel(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"普通域名", "https://www.vinted.com/catalog?q=x", "www.vinted.com"},
		{"带端口", "http://localhost:8080/page", "localhost_8080"},
		{"无效URL", "::::", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hostLabel(tt.url); got != tt.expected {
				t.Errorf("期望%s, 实际%s", tt.expected, got)
			}
		})
	}
}
