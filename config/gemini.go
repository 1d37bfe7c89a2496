package config

import (
	"sync"
)

var (
	geminiOnce   sync.Once
	geminiConfig *GeminiConfig
)

// GeminiConfig AI 比对配置。APIKey 为空表示未启用，
// 比对服务会拒绝 ai 方法的请求。
type GeminiConfig struct {
	APIKey string
	Model  string
}

func GetGeminiConfig() *GeminiConfig {
	geminiOnce.Do(func() {
		loadEnv()
		geminiConfig = &GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		}
	})
	return geminiConfig
}

// Enabled reports whether the AI comparator can be constructed.
func (c *GeminiConfig) Enabled() bool {
	return c.APIKey != ""
}
