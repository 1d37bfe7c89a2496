package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/wenhao0221/contract-compare/config"
	"github.com/wenhao0221/contract-compare/internal/app"
	"github.com/wenhao0221/contract-compare/pkg/logger"
	"github.com/wenhao0221/contract-compare/pkg/worker"
)

func main() {
	// 初始化日志
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 装配服务
	application, err := app.New(ctx, app.Options{WithDispatcher: true}, log)
	if err != nil {
		log.Error("Failed to bootstrap application", logger.Error(err))
		os.Exit(1)
	}
	defer application.Close()

	redisCfg := config.GetRedisConfig()
	appCfg := config.GetAppConfig()

	// 创建 worker 配置
	workerCfg := &worker.Config{
		Redis: worker.RedisConfig{
			Addr: redisCfg.Addr,
			DB:   redisCfg.DB,
		},
		Concurrency: appCfg.Worker.Concurrency,
		DrainBatch:  appCfg.Worker.DrainBatch,
	}

	queueWorker := worker.NewQueueWorker(workerCfg, application.Queue, application.Dispatcher, log)

	// 启动 worker
	if err := queueWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// 优雅关闭
	log.Info("Shutting down worker...")
	queueWorker.Stop()
	log.Info("Worker stopped")
}
