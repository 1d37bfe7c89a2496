package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/pkg/logger"
)

// TypeQueueDrain 触发一轮队列消费的消息类型。任务本体躺在
// 数据库里，redis 只负责"该干活了"的信号和状态快照。
const TypeQueueDrain = "queue:drain"

// snapshotTTL 状态快照的过期时间
const snapshotTTL = 24 * time.Hour

// RedisConfig redis 连接配置
type RedisConfig struct {
	Addr string
	DB   int
}

// TaskSnapshot API 轮询用的任务状态快照
type TaskSnapshot struct {
	TaskID     uint              `json:"taskId"`
	DocumentID uint              `json:"documentId"`
	Status     models.TaskStatus `json:"status"`
	Attempts   int               `json:"attempts"`
	Error      string            `json:"error,omitempty"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Dispatcher 入队后的下游通知方：发 asynq 消息踢醒 worker，
// 顺手把任务状态快照写进 redis
type Dispatcher struct {
	client *asynq.Client
	redis  *redis.Client
	logger logger.Logger
}

// NewDispatcher creates the drain dispatcher.
func NewDispatcher(cfg *RedisConfig, log logger.Logger) *Dispatcher {
	redisOpt := asynq.RedisClientOpt{Addr: cfg.Addr, DB: cfg.DB}
	return &Dispatcher{
		client: asynq.NewClient(redisOpt),
		redis:  redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB}),
		logger: log,
	}
}

// NotifyDrain 发一条消费触发消息。幂等：worker 醒来后按库里
// 的待处理任务干活，多发几条无害。
func (d *Dispatcher) NotifyDrain(ctx context.Context) error {
	task := asynq.NewTask(TypeQueueDrain, nil)
	_, err := d.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue drain signal: %w", err)
	}
	return nil
}

// SaveSnapshot 把任务状态快照写进 redis 供 API 轮询
func (d *Dispatcher) SaveSnapshot(ctx context.Context, snap *TaskSnapshot) error {
	snap.UpdatedAt = time.Now()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	key := fmt.Sprintf("task_status:%d", snap.TaskID)
	if err := d.redis.Set(ctx, key, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot 读任务状态快照，没有时返回 (nil, nil)
func (d *Dispatcher) GetSnapshot(ctx context.Context, taskID uint) (*TaskSnapshot, error) {
	key := fmt.Sprintf("task_status:%d", taskID)
	data, err := d.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap TaskSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Close releases both clients.
func (d *Dispatcher) Close() error {
	if err := d.client.Close(); err != nil {
		return err
	}
	return d.redis.Close()
}
