package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  MarketSeek 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查可用的Chromium系浏览器
	browsers := []string{"google-chrome", "chromium", "chromium-browser", "chrome"}
	found := ""
	for _, name := range browsers {
		if path, err := exec.LookPath(name); err == nil {
			found = path
			break
		}
	}
	if found != "" {
		version := getCommandOutput(found, "--version")
		fmt.Printf("✅ 浏览器已安装: %s\n", strings.TrimSpace(version))
	} else {
		fmt.Println("⚠️  未找到系统浏览器 - go-rod将在首次运行时自动下载Chromium")
	}

	// 检查可用内存(每个浏览器会话约需数百MB)
	if runtime.GOOS == "linux" {
		if data, err := os.ReadFile("/proc/meminfo"); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "MemAvailable:") {
					fmt.Printf("✅ %s\n", strings.Join(strings.Fields(line), " "))
					break
				}
			}
		}
	}

	fmt.Println()
	if allOK {
		fmt.Println("✅ 环境验证通过")
	} else {
		fmt.Println("❌ 环境验证失败,请处理上述问题")
		os.Exit(1)
	}
}

func getCommandOutput(name string, args ...string) string {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return "unknown"
	}
	return string(out)
}
