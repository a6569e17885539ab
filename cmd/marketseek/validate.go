package main

import (
	"fmt"

	"github.com/EmberTrace/marketseek/internal/utils"
)

// ValidateFlags 验证命令行标志
func ValidateFlags(targetURL string, poolSize int, waitTime int, acquireTimeout int) error {
	if targetURL != "" {
		if err := utils.ValidateURL(targetURL); err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
	}

	// 0表示使用配置文件中的值
	if poolSize < 0 || poolSize > 20 {
		return fmt.Errorf("会话池容量必须在0-20之间,当前值: %d", poolSize)
	}

	if waitTime < 0 || waitTime > 60 {
		return fmt.Errorf("等待时间必须在0-60秒之间,当前值: %d", waitTime)
	}

	if acquireTimeout < 1 || acquireTimeout > 600 {
		return fmt.Errorf("会话获取超时必须在1-600秒之间,当前值: %d", acquireTimeout)
	}

	return nil
}
