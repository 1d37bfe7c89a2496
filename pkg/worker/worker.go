package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wenhao0221/contract-compare/internal/queue"
	"github.com/wenhao0221/contract-compare/pkg/logger"
)

// Config worker 配置
type Config struct {
	Redis       RedisConfig
	Concurrency int
	// DrainBatch 一次触发最多消费的任务条数，0 表示清空为止
	DrainBatch int
}

// QueueWorker 消费 drain 信号并驱动数据库队列的 asynq worker。
// 核心里没有常驻轮询，队列只在收到显式触发时前进。
type QueueWorker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	queue      *queue.Queue
	dispatcher *Dispatcher
	drainBatch int
	logger     logger.Logger
}

// NewQueueWorker creates the drain consumer.
func NewQueueWorker(cfg *Config, q *queue.Queue, dispatcher *Dispatcher, log logger.Logger) *QueueWorker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB},
		asynq.Config{
			Concurrency: concurrency,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
		},
	)

	w := &QueueWorker{
		server:     server,
		mux:        asynq.NewServeMux(),
		queue:      q,
		dispatcher: dispatcher,
		drainBatch: cfg.DrainBatch,
		logger:     log,
	}
	w.mux.HandleFunc(TypeQueueDrain, w.handleDrain)
	return w
}

func (w *QueueWorker) handleDrain(ctx context.Context, t *asynq.Task) error {
	processed, err := w.queue.Drain(ctx, w.drainBatch)
	if err != nil {
		w.logger.Error("Queue drain failed", logger.Error(err))
		return err
	}

	w.logger.Info("Queue drained", logger.Int("processed", processed))
	w.publishSnapshots(ctx)
	return nil
}

// publishSnapshots 把剩余待处理任务的状态镜像进 redis
func (w *QueueWorker) publishSnapshots(ctx context.Context) {
	if w.dispatcher == nil {
		return
	}
	pending, err := w.queue.FindPending(ctx, 50)
	if err != nil {
		w.logger.Warn("Pending snapshot refresh failed", logger.Error(err))
		return
	}
	for _, task := range pending {
		snap := &TaskSnapshot{
			TaskID:     task.ID,
			DocumentID: task.DocumentID,
			Status:     task.Status,
			Attempts:   task.Attempts,
			Error:      task.ErrorMessage,
		}
		if err := w.dispatcher.SaveSnapshot(ctx, snap); err != nil {
			w.logger.Warn("Snapshot save failed",
				logger.Uint("taskId", task.ID),
				logger.Error(err),
			)
		}
	}
}

// Start runs the worker until the context is cancelled.
func (w *QueueWorker) Start(ctx context.Context) error {
	go func() {
		if err := w.server.Run(w.mux); err != nil {
			w.logger.Error("Worker server stopped", logger.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}

// Stop shuts the worker down.
func (w *QueueWorker) Stop() {
	w.server.Stop()
	w.server.Shutdown()
}
