package app

import (
	"context"
	"fmt"
	"time"

	"github.com/wenhao0221/contract-compare/config"
	"github.com/wenhao0221/contract-compare/internal/compare"
	"github.com/wenhao0221/contract-compare/internal/extract"
	"github.com/wenhao0221/contract-compare/internal/queue"
	"github.com/wenhao0221/contract-compare/internal/repository"
	"github.com/wenhao0221/contract-compare/internal/service/comparison"
	"github.com/wenhao0221/contract-compare/internal/service/document"
	"github.com/wenhao0221/contract-compare/pkg/logger"
	"github.com/wenhao0221/contract-compare/pkg/storage"
	"github.com/wenhao0221/contract-compare/pkg/worker"
)

// Options 装配开关
type Options struct {
	// WithDispatcher 建 asynq 客户端。单进程部署（没有独立 worker
	// 和 redis）关掉它，队列靠 API 同步 drain。
	WithDispatcher bool
}

// App 进程级装配结果，server 和 worker 共用
type App struct {
	Repos       *repository.Repositories
	Storage     storage.Storage
	Queue       *queue.Queue
	Dispatcher  *worker.Dispatcher
	Documents   *document.Service
	Comparisons *comparison.Service
	AI          *compare.GeminiComparator
	Logger      logger.Logger
}

// New wires repositories, storage, queue and services from config.
func New(ctx context.Context, opts Options, log logger.Logger) (*App, error) {
	a := &App{Logger: log}

	// 持久层：默认 postgres，DB_MEMORY=true 时用内存仓库
	dbCfg := config.GetDatabaseConfig()
	if dbCfg.Memory {
		a.Repos = repository.NewMemoryRepositories(repository.NewMemoryStore())
		log.Info("Using in-memory repositories")
	} else {
		db, err := repository.NewPostgresDB(dbCfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		a.Repos = repository.NewPostgresRepositories(db)
	}

	store, err := storage.NewStorage(config.GetStorageConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	a.Storage = store

	extractor := extract.NewService(log)
	a.Queue = queue.New(a.Repos.Tasks, a.Repos.Documents, store, extractor, log)

	if opts.WithDispatcher {
		redisCfg := config.GetRedisConfig()
		a.Dispatcher = worker.NewDispatcher(&worker.RedisConfig{
			Addr: redisCfg.Addr,
			DB:   redisCfg.DB,
		}, log)
	}

	appCfg := config.GetAppConfig()
	docCfg := document.DefaultConfig()
	if appCfg.Server.MaxFileSizeMB > 0 {
		docCfg.MaxFileSize = int64(appCfg.Server.MaxFileSizeMB) * 1024 * 1024
	}
	if appCfg.Server.SignedURLTTLMin > 0 {
		docCfg.SignedURLTTL = time.Duration(appCfg.Server.SignedURLTTLMin) * time.Minute
	}

	var notifier document.DrainNotifier
	if a.Dispatcher != nil {
		notifier = a.Dispatcher
	}
	a.Documents = document.NewService(a.Repos, store, a.Queue, notifier, log, docCfg)

	// AI 比对按配置可选，没配 key 时只有统计比对可用
	statistical := compare.NewStatisticalComparator(log)
	var ai compare.Comparator
	geminiCfg := config.GetGeminiConfig()
	if geminiCfg.Enabled() {
		gemini, err := compare.NewGeminiComparator(ctx, &compare.GeminiConfig{
			APIKey: geminiCfg.APIKey,
			Model:  geminiCfg.Model,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init gemini comparator: %w", err)
		}
		a.AI = gemini
		ai = gemini
	}
	a.Comparisons = comparison.NewService(a.Repos, statistical, ai, log)

	return a, nil
}

// Close releases external clients.
func (a *App) Close() {
	if a.AI != nil {
		if err := a.AI.Close(); err != nil {
			a.Logger.Warn("Gemini client close failed", logger.Error(err))
		}
	}
	if a.Dispatcher != nil {
		if err := a.Dispatcher.Close(); err != nil {
			a.Logger.Warn("Dispatcher close failed", logger.Error(err))
		}
	}
}
