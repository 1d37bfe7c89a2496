package config

import (
	"log"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	appOnce   sync.Once
	appConfig *AppConfig
)

// AppConfig 服务端和 worker 的运行参数，来自 app.yaml。
// 文件缺失时全部用默认值。
type AppConfig struct {
	Server struct {
		Port            int      `yaml:"port"`
		AllowedOrigins  []string `yaml:"allowedOrigins"`
		MaxFileSizeMB   int      `yaml:"maxFileSizeMB"`
		SignedURLTTLMin int      `yaml:"signedUrlTtlMin"`
	} `yaml:"server"`
	Worker struct {
		Concurrency int `yaml:"concurrency"`
		DrainBatch  int `yaml:"drainBatch"`
	} `yaml:"worker"`
}

func defaultAppConfig() *AppConfig {
	cfg := &AppConfig{}
	cfg.Server.Port = 8080
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Server.MaxFileSizeMB = 50
	cfg.Server.SignedURLTTLMin = 15
	cfg.Worker.Concurrency = 5
	cfg.Worker.DrainBatch = 0
	return cfg
}

func GetAppConfig() *AppConfig {
	appOnce.Do(func() {
		loadEnv()
		appConfig = defaultAppConfig()

		path := getEnv("APP_CONFIG", "app.yaml")
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: app config not found at %s, using defaults", path)
			return
		}
		if err := yaml.Unmarshal(data, appConfig); err != nil {
			log.Printf("Warning: failed to parse %s, using defaults: %v", path, err)
			appConfig = defaultAppConfig()
		}
	})
	return appConfig
}
