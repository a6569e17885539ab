package scrape

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/EmberTrace/marketseek/internal/utils"
)

// Reporter 抓取结果落盘器
// 渲染后的HTML写入pages/子目录,摘要写为JSON报告
type Reporter struct {
	outputDir string
}

// NewReporter 创建结果落盘器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// SavePages 保存所有成功抓取的页面HTML,返回写入的文件数
func (r *Reporter) SavePages(summary *BatchSummary) (int, error) {
	pagesDir := filepath.Join(r.outputDir, "pages")
	if err := os.MkdirAll(pagesDir, 0755); err != nil {
		return 0, fmt.Errorf("创建页面目录失败: %w", err)
	}

	saved := 0
	for i, result := range summary.Results {
		if !result.Success || result.Page == nil || result.Page.HTML == "" {
			continue
		}

		filename := fmt.Sprintf("%03d_%s.html", i+1, hostLabel(result.URL))
		path := filepath.Join(pagesDir, filename)
		if err := os.WriteFile(path, []byte(result.Page.HTML), 0644); err != nil {
			return saved, fmt.Errorf("写入页面文件失败 [%s]: %w", path, err)
		}
		saved++
		utils.Debugf("保存页面: %s", path)
	}

	return saved, nil
}

// SaveSummary 保存批量抓取摘要JSON
func (r *Reporter) SaveSummary(summary *BatchSummary) error {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化摘要失败: %w", err)
	}

	path := filepath.Join(r.outputDir, "fetch_report.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入摘要失败: %w", err)
	}

	utils.Infof("✅ 抓取报告已生成: %s", path)
	return nil
}

// hostLabel 从URL提取可安全用作文件名的主机标签
func hostLabel(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	host := strings.ReplaceAll(parsed.Host, ":", "_")
	return strings.ReplaceAll(host, "..", "_")
}
