package browserpool

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Factory 会话工厂接口
// 职责: 创建新会话、探测存活、销毁会话(尽力而为)
// 池本身不关心会话的具体实现,测试中可注入假工厂
type Factory interface {
	// Create 创建一个新会话,底层驱动无法启动时返回错误
	Create() (*Resource, error)

	// IsValid 对存活会话做轻量探测,断连类错误一律返回false,不抛出
	IsValid(res *Resource) bool

	// Destroy 请求终止会话,出错只记录日志,不向上传播
	Destroy(res *Resource)
}

// BrowserConfig 浏览器会话的固定配置
// Options中的额外启动参数原样转发给launcher
type BrowserConfig struct {
	Headless     bool              // 无头模式
	WindowWidth  int               // 窗口宽度
	WindowHeight int               // 窗口高度
	UserAgent    string            // 自定义User-Agent,为空时使用浏览器默认值
	BinPath      string            // 浏览器可执行文件路径,为空时自动探测
	Options      map[string]string // 额外启动参数: 参数名 -> 值(空字符串表示开关型参数)
}

// DefaultBrowserConfig 默认浏览器配置
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:     true,
		WindowWidth:  1920,
		WindowHeight: 1080,
	}
}

// RodFactory 基于go-rod的会话工厂
// 每个会话是一个独立的浏览器进程,崩溃互不影响
type RodFactory struct {
	config BrowserConfig
}

// NewRodFactory 创建rod会话工厂
func NewRodFactory(config BrowserConfig) *RodFactory {
	if config.WindowWidth <= 0 {
		config.WindowWidth = 1920
	}
	if config.WindowHeight <= 0 {
		config.WindowHeight = 1080
	}
	return &RodFactory{config: config}
}

// Create 启动一个新的浏览器进程并建立连接
func (f *RodFactory) Create() (*Resource, error) {
	l := launcher.New().Headless(f.config.Headless)

	// 服务器环境的稳定性参数
	l = l.Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("disable-extensions").
		Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", f.config.WindowWidth, f.config.WindowHeight))

	if f.config.UserAgent != "" {
		l = l.Set(flags.Flag("user-agent"), f.config.UserAgent)
	}
	if f.config.BinPath != "" {
		l = l.Bin(f.config.BinPath)
	}

	// 用户自定义参数原样转发,覆盖同名默认参数
	for name, value := range f.config.Options {
		if value == "" {
			l = l.Set(flags.Flag(name))
		} else {
			l = l.Set(flags.Flag(name), value)
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: 启动浏览器进程: %v", ErrSessionCreate, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: 连接浏览器: %v", ErrSessionCreate, err)
	}

	now := time.Now()
	res := &Resource{
		ID:         uuid.NewString(),
		Browser:    browser,
		launcher:   l,
		CreatedAt:  now,
		LastUsedAt: now,
		state:      StateIdle,
	}

	log.Debug().Str("session_id", res.ID).Str("control_url", controlURL).Msg("浏览器会话已创建")
	return res, nil
}

// IsValid 通过一次轻量CDP调用探测会话是否存活
// 断连、进程退出等预期故障返回false;意外panic同样视为失效
func (f *RodFactory) IsValid(res *Resource) (ok bool) {
	if res == nil || res.Browser == nil {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("session_id", res.ID).Msgf("会话探测panic,视为失效: %v", r)
			ok = false
		}
	}()

	if _, err := res.Browser.Version(); err != nil {
		log.Debug().Err(err).Str("session_id", res.ID).Msg("会话探测失败")
		return false
	}
	return true
}

// Destroy 终止浏览器进程并清理临时目录
// 所有错误只记录不传播,资源无论如何都视为已销毁
func (f *RodFactory) Destroy(res *Resource) {
	if res == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("session_id", res.ID).Msgf("销毁会话panic(已忽略): %v", r)
		}
	}()

	res.state = StateInvalid

	if res.Browser != nil {
		if err := res.Browser.Close(); err != nil {
			log.Warn().Err(err).Str("session_id", res.ID).Msg("关闭浏览器失败(已忽略)")
		}
	}
	if res.launcher != nil {
		res.launcher.Kill()
		res.launcher.Cleanup()
	}

	log.Debug().Str("session_id", res.ID).Msg("浏览器会话已销毁")
}
