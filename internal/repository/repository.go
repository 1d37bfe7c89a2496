package repository

import (
	"context"
	"time"

	"github.com/wenhao0221/contract-compare/internal/models"
)

// DocumentRepository 文档的持久化操作
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id uint) (*models.Document, error)
	FindByUser(ctx context.Context, userID string) ([]*models.Document, error)
	FindByHash(ctx context.Context, contentHash string) (*models.Document, error)
	Update(ctx context.Context, id uint, update *models.DocumentUpdate) error
	Delete(ctx context.Context, id uint) error
}

// ComparisonRepository 比对记录的持久化操作
type ComparisonRepository interface {
	Create(ctx context.Context, cmp *models.Comparison) error
	FindByID(ctx context.Context, id uint) (*models.Comparison, error)
	FindByUser(ctx context.Context, userID string) ([]*models.Comparison, error)
	// FindByPair 按无序对查找：(A,B) 与 (B,A) 命中同一条记录
	FindByPair(ctx context.Context, doc1ID, doc2ID uint) (*models.Comparison, error)
	CountByDocument(ctx context.Context, docID uint) (int64, error)
	Update(ctx context.Context, cmp *models.Comparison) error
	Delete(ctx context.Context, id uint) error
}

// TaskRepository 队列任务的持久化操作
type TaskRepository interface {
	Create(ctx context.Context, task *models.QueueTask) error
	FindByID(ctx context.Context, id uint) (*models.QueueTask, error)
	FindByUser(ctx context.Context, userID string) ([]*models.QueueTask, error)
	FindByDocument(ctx context.Context, docID uint) ([]*models.QueueTask, error)
	// FindPending 返回所有已到期的 Pending 任务，优先级降序、
	// 计划/创建时间升序。两个后端必须产出相同的顺序。
	FindPending(ctx context.Context, limit int) ([]*models.QueueTask, error)
	// ClaimNext 原子地认领最高优先级的到期任务并置为 Processing。
	// 没有可认领任务时返回 (nil, nil)。
	ClaimNext(ctx context.Context) (*models.QueueTask, error)
	UpdateStatus(ctx context.Context, id uint, status models.TaskStatus, completedAt *time.Time) error
	// IncrementAttempts 失败计数加一；到达 max_attempts 时置为
	// Failed 并盖完成时间戳，否则回到 Pending 等待下次认领。
	IncrementAttempts(ctx context.Context, id uint, errorMessage string) (*models.QueueTask, error)
	Delete(ctx context.Context, id uint) error
}

// Repositories 三个实体仓库的组合，启动时按配置一次性选定后端
type Repositories struct {
	Documents   DocumentRepository
	Comparisons ComparisonRepository
	Tasks       TaskRepository
}
