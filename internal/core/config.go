package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/EmberTrace/marketseek/internal/browserpool"
	"github.com/EmberTrace/marketseek/internal/scrape"
)

// Config 应用程序配置
type Config struct {
	Pool     PoolConfig     `mapstructure:"pool"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Resource ResourceConfig `mapstructure:"resource"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Output   OutputConfig   `mapstructure:"output"`
}

// PoolConfig 会话池配置(时间类字段单位为秒,轮询间隔为毫秒)
type PoolConfig struct {
	MaxSessions         int `mapstructure:"max_sessions"`
	MaxSessionAge       int `mapstructure:"max_session_age"`
	PollIntervalMs      int `mapstructure:"poll_interval_ms"`
	MaintenanceInterval int `mapstructure:"maintenance_interval"`
	StuckLeaseThreshold int `mapstructure:"stuck_lease_threshold"`
	AcquireTimeout      int `mapstructure:"acquire_timeout"`
}

// BrowserConfig 浏览器启动配置
// Options中的参数原样转发给浏览器启动器,覆盖同名默认参数
type BrowserConfig struct {
	Headless     bool              `mapstructure:"headless"`
	WindowWidth  int               `mapstructure:"window_width"`
	WindowHeight int               `mapstructure:"window_height"`
	UserAgent    string            `mapstructure:"user_agent"`
	BinPath      string            `mapstructure:"bin_path"`
	Options      map[string]string `mapstructure:"options"`
}

// ScrapeConfig 抓取配置
type ScrapeConfig struct {
	WaitTime        int  `mapstructure:"wait_time"`
	PageLoadTimeout int  `mapstructure:"page_load_timeout"`
	BatchDelay      int  `mapstructure:"batch_delay"`
	ContinueOnError bool `mapstructure:"continue_on_error"`
}

// ResourceConfig 系统资源监控配置
type ResourceConfig struct {
	MonitorEnabled       bool `mapstructure:"monitor_enabled"`
	MinAvailableMemoryMB int  `mapstructure:"min_available_memory_mb"`
	CPULoadThreshold     int  `mapstructure:"cpu_load_threshold"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// LoadConfig 加载配置文件
// 未指定路径时依次搜索./configs、当前目录和~/.marketseek;
// 找不到配置文件不是错误,使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".marketseek"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 会话池默认值
	v.SetDefault("pool.max_sessions", 2)
	v.SetDefault("pool.max_session_age", 1800)
	v.SetDefault("pool.poll_interval_ms", 500)
	v.SetDefault("pool.maintenance_interval", 30)
	v.SetDefault("pool.stuck_lease_threshold", 300)
	v.SetDefault("pool.acquire_timeout", 30)

	// 浏览器默认值
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)

	// 抓取默认值
	v.SetDefault("scrape.wait_time", 3)
	v.SetDefault("scrape.page_load_timeout", 30)
	v.SetDefault("scrape.batch_delay", 1)
	v.SetDefault("scrape.continue_on_error", true)

	// 资源监控默认值
	v.SetDefault("resource.monitor_enabled", true)
	v.SetDefault("resource.min_available_memory_mb", 500)
	v.SetDefault("resource.cpu_load_threshold", 80)

	// 日志默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 输出默认值
	v.SetDefault("output.base_dir", "output")
}

// PoolSettings 转换为会话池配置
func (c *Config) PoolSettings() browserpool.Config {
	return browserpool.Config{
		MaxSessions:         c.Pool.MaxSessions,
		MaxSessionAge:       time.Duration(c.Pool.MaxSessionAge) * time.Second,
		PollInterval:        time.Duration(c.Pool.PollIntervalMs) * time.Millisecond,
		MaintenanceInterval: time.Duration(c.Pool.MaintenanceInterval) * time.Second,
		StuckLeaseThreshold: time.Duration(c.Pool.StuckLeaseThreshold) * time.Second,
	}
}

// BrowserSettings 转换为浏览器工厂配置
func (c *Config) BrowserSettings() browserpool.BrowserConfig {
	return browserpool.BrowserConfig{
		Headless:     c.Browser.Headless,
		WindowWidth:  c.Browser.WindowWidth,
		WindowHeight: c.Browser.WindowHeight,
		UserAgent:    c.Browser.UserAgent,
		BinPath:      c.Browser.BinPath,
		Options:      c.Browser.Options,
	}
}

// MonitorSettings 转换为资源监控器配置
func (c *Config) MonitorSettings() browserpool.MonitorConfig {
	return browserpool.MonitorConfig{
		MinAvailableMemory: uint64(c.Resource.MinAvailableMemoryMB) * 1024 * 1024,
		CPULoadThreshold:   c.Resource.CPULoadThreshold,
		SampleInterval:     time.Second,
	}
}

// ScrapeSettings 转换为抓取配置
func (c *Config) ScrapeSettings() scrape.Config {
	return scrape.Config{
		AcquireTimeout:  time.Duration(c.Pool.AcquireTimeout) * time.Second,
		PageLoadTimeout: time.Duration(c.Scrape.PageLoadTimeout) * time.Second,
		WaitTime:        time.Duration(c.Scrape.WaitTime) * time.Second,
	}
}

// MergeCLIFlags 合并命令行参数到配置,命令行优先于配置文件
func (c *Config) MergeCLIFlags(
	poolSize int,
	acquireTimeout int,
	waitTime int,
	headless bool,
	outputDir string,
) {
	if poolSize > 0 {
		c.Pool.MaxSessions = poolSize
	}
	if acquireTimeout > 0 {
		c.Pool.AcquireTimeout = acquireTimeout
	}
	if waitTime >= 0 {
		c.Scrape.WaitTime = waitTime
	}
	c.Browser.Headless = headless
	if outputDir != "" {
		c.Output.BaseDir = outputDir
	}
}
