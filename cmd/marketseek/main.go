package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/EmberTrace/marketseek/internal/browserpool"
	"github.com/EmberTrace/marketseek/internal/core"
	"github.com/EmberTrace/marketseek/internal/scrape"
	"github.com/EmberTrace/marketseek/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// 抓取参数
	targetURL      string
	urlFile        string
	outputDir      string
	waitTime       int
	headless       bool
	acquireTimeout int
	poolSize       int

	// 批量处理参数
	batchDelay      int
	continueOnError bool
)

var rootCmd = &cobra.Command{
	Use:   "marketseek",
	Short: "基于浏览器会话池的电商页面抓取工具",
	Long: `MarketSeek - 电商市场页面渲染抓取工具

通过有上限的无头浏览器会话池渲染页面,会话跨请求复用:
  • 会话数量有硬上限,避免浏览器进程泛滥
  • 健康会话跨请求复用,失效/超龄会话自动淘汰
  • 后台维护循环回收未归还的卡死会话
  • 退出时有序销毁全部会话

使用示例:
  # 抓取单个页面
  marketseek -u "https://www.vinted.com/catalog?search_text=jacket"

  # 批量抓取URL文件
  marketseek -f urls.txt -o output --pool-size 3

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := utils.LogConfig{
			Level:      config.Logging.Level,
			LogDir:     config.Logging.LogDir,
			MaxSize:    config.Logging.Rotation.MaxSize,
			MaxBackups: config.Logging.Rotation.MaxBackups,
			MaxAge:     config.Logging.Rotation.MaxAge,
			Compress:   config.Logging.Rotation.Compress,
		}

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if verbose {
			logConfig.Level = "debug"
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if targetURL == "" && urlFile == "" {
			return cmd.Help()
		}

		if err := ValidateFlags(targetURL, poolSize, waitTime, acquireTimeout); err != nil {
			return err
		}

		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		config.MergeCLIFlags(poolSize, acquireTimeout, waitTime, headless, outputDir)

		// 资源监控器: 内存/CPU不足时暂缓创建新会话
		var monitor *browserpool.ResourceMonitor
		if config.Resource.MonitorEnabled {
			monitor = browserpool.NewResourceMonitor(config.MonitorSettings())
			monitor.Start()
			defer monitor.Stop()
		}

		// 会话池为进程级单例,所有抓取共享
		factory := browserpool.NewRodFactory(config.BrowserSettings())
		pool := browserpool.NewPool(factory, config.PoolSettings(), monitor)
		defer pool.Shutdown()

		// Ctrl+C / SIGTERM时有序关闭会话池,避免浏览器进程残留
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			utils.Warnf("收到中断信号: %v, 正在关闭会话池...", sig)
			pool.Shutdown()
			os.Exit(1)
		}()

		fetcher := scrape.NewFetcher(pool, config.ScrapeSettings())

		// 组装URL列表
		var urls []string
		if urlFile != "" {
			urls, err = utils.ReadURLsFromFile(urlFile)
			if err != nil {
				return fmt.Errorf("读取URL文件失败: %w", err)
			}
		} else {
			urls = []string{targetURL}
		}

		batch := scrape.NewBatchFetcher(
			fetcher,
			time.Duration(batchDelay)*time.Second,
			continueOnError,
			len(urls) > 1,
		)

		startTime := time.Now()
		summary, fetchErr := batch.FetchAll(urls)

		// 即使中途失败,已完成的结果也落盘
		reporter := scrape.NewReporter(config.Output.BaseDir)
		if saved, err := reporter.SavePages(summary); err != nil {
			utils.Errorf("保存页面失败: %v", err)
		} else {
			utils.Infof("已保存 %d 个页面到 %s", saved, config.Output.BaseDir)
		}
		if err := reporter.SaveSummary(summary); err != nil {
			utils.Errorf("保存摘要失败: %v", err)
		}

		printSummary(summary, pool.Stats(), time.Since(startTime))

		if fetchErr != nil {
			return fmt.Errorf("抓取中止: %w", fetchErr)
		}
		utils.Info("✨ 抓取任务完成!")
		return nil
	},
}

// printSummary 打印抓取与会话池统计
func printSummary(summary *scrape.BatchSummary, stats browserpool.StatsSnapshot, elapsed time.Duration) {
	fmt.Println("\n==================================================")
	fmt.Println("📊 抓取统计")
	fmt.Println("==================================================")
	fmt.Printf("✅ 成功: %d\n", summary.SuccessCount)
	fmt.Printf("❌ 失败: %d\n", summary.FailCount)
	fmt.Printf("📦 总大小: %s\n", utils.FormatBytes(summary.TotalBytes))
	fmt.Printf("⏱️  总耗时: %.2f秒\n", elapsed.Seconds())
	fmt.Println("--------------------------------------------------")
	fmt.Println("🧩 会话池统计")
	fmt.Printf("   新建会话: %d\n", stats.Created)
	fmt.Printf("   复用次数: %d\n", stats.Reused)
	fmt.Printf("   淘汰会话: %d\n", stats.Recycled)
	fmt.Printf("   强制回收: %d\n", stats.Reaped)
	fmt.Printf("   获取超时: %d\n", stats.Timeouts)
	fmt.Println("==================================================")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("MarketSeek %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// 抓取参数
	rootCmd.Flags().StringVarP(&targetURL, "url", "u", "", "目标URL (必需,除非使用 --url-file)")
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含URL列表的文件路径")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "输出目录")
	rootCmd.Flags().IntVarP(&waitTime, "wait", "w", 3, "页面渲染等待时间(秒)")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().IntVar(&acquireTimeout, "timeout", 30, "等待可用会话的超时(秒)")
	rootCmd.Flags().IntVar(&poolSize, "pool-size", 0, "会话池容量上限(默认取配置文件)")

	// 批量处理参数
	rootCmd.Flags().IntVar(&batchDelay, "batch-delay", 1, "批量处理URL间延迟(秒)")
	rootCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "遇到错误继续处理")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
