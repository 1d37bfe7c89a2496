package queue

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/wenhao0221/contract-compare/internal/extract"
	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/internal/repository"
	"github.com/wenhao0221/contract-compare/pkg/logger"
	"github.com/wenhao0221/contract-compare/pkg/storage"
)

// Queue 基于任务仓库的处理队列。认领的原子性由仓库保证
//（关系库走条件更新加行锁，内存库在互斥锁临界区内完成）。
type Queue struct {
	tasks     repository.TaskRepository
	documents repository.DocumentRepository
	storage   storage.Storage
	extractor extract.Extractor
	logger    logger.Logger
}

// New creates the queue service.
func New(
	tasks repository.TaskRepository,
	documents repository.DocumentRepository,
	store storage.Storage,
	extractor extract.Extractor,
	log logger.Logger,
) *Queue {
	return &Queue{
		tasks:     tasks,
		documents: documents,
		storage:   store,
		extractor: extractor,
		logger:    log,
	}
}

// EnqueueOptions 入队参数
type EnqueueOptions struct {
	Priority    int
	MaxAttempts int
	ScheduledAt *time.Time
	UserID      string
	Metadata    models.JSONMap
}

// Enqueue 为文档创建一条待处理任务
func (q *Queue) Enqueue(ctx context.Context, docID uint, taskType models.TaskType, opts EnqueueOptions) (*models.QueueTask, error) {
	task := &models.QueueTask{
		DocumentID:  docID,
		Type:        taskType,
		Status:      models.TaskPending,
		Priority:    opts.Priority,
		MaxAttempts: opts.MaxAttempts,
		ScheduledAt: opts.ScheduledAt,
		UserID:      opts.UserID,
		Metadata:    opts.Metadata,
	}
	if task.MaxAttempts <= 0 {
		task.MaxAttempts = models.DefaultMaxAttempts
	}

	if err := q.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.Info("Task enqueued",
		logger.Uint("taskId", task.ID),
		logger.Uint("documentId", docID),
		logger.String("type", string(taskType)),
		logger.Int("priority", task.Priority),
	)
	return task, nil
}

// GetTask 查询一条任务
func (q *Queue) GetTask(ctx context.Context, id uint) (*models.QueueTask, error) {
	return q.tasks.FindByID(ctx, id)
}

// FindPending 返回到期的待处理任务，权威顺序见仓库契约
func (q *Queue) FindPending(ctx context.Context, limit int) ([]*models.QueueTask, error) {
	return q.tasks.FindPending(ctx, limit)
}

// FindByUser 该用户名下的全部任务，创建时间升序
func (q *Queue) FindByUser(ctx context.Context, userID string) ([]*models.QueueTask, error) {
	return q.tasks.FindByUser(ctx, userID)
}

// Cancel 取消一条还没被认领的任务
func (q *Queue) Cancel(ctx context.Context, id uint) error {
	task, err := q.tasks.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if task.Status != models.TaskPending {
		return fmt.Errorf("%w: task %d is %s, only pending tasks can be cancelled",
			models.ErrValidation, id, task.Status)
	}
	now := time.Now()
	return q.tasks.UpdateStatus(ctx, id, models.TaskCancelled, &now)
}

// Complete 标记任务完成
func (q *Queue) Complete(ctx context.Context, id uint) error {
	now := time.Now()
	return q.tasks.UpdateStatus(ctx, id, models.TaskCompleted, &now)
}

// Fail 记一次失败。没到重试上限回到 Pending 等待下次认领，
// 到了上限转终态 Failed。
func (q *Queue) Fail(ctx context.Context, id uint, cause error) (*models.QueueTask, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return q.tasks.IncrementAttempts(ctx, id, msg)
}

// ProcessNext 认领并执行一条任务。没有可执行任务时返回 (false, nil)。
func (q *Queue) ProcessNext(ctx context.Context) (bool, error) {
	task, err := q.tasks.ClaimNext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	q.logger.Info("Task claimed",
		logger.Uint("taskId", task.ID),
		logger.String("type", string(task.Type)),
		logger.Int("attempt", task.Attempts+1),
	)

	var execErr error
	switch task.Type {
	case models.TaskExtractText:
		execErr = q.runExtraction(ctx, task)
	default:
		execErr = fmt.Errorf("%w: no handler for task type %s", models.ErrValidation, task.Type)
	}

	if execErr != nil {
		if _, failErr := q.Fail(ctx, task.ID, execErr); failErr != nil {
			q.logger.Error("Failed to record task failure",
				logger.Uint("taskId", task.ID),
				logger.Error(failErr),
			)
		}
		return true, execErr
	}

	if err := q.Complete(ctx, task.ID); err != nil {
		return true, fmt.Errorf("task executed but completion not recorded: %w", err)
	}
	return true, nil
}

// Drain 逐条执行到期任务，最多 max 条。显式触发，不做轮询。
func (q *Queue) Drain(ctx context.Context, max int) (int, error) {
	processed := 0
	for max <= 0 || processed < max {
		ran, err := q.ProcessNext(ctx)
		if !ran {
			break
		}
		processed++
		if err != nil {
			q.logger.Warn("Task execution failed during drain",
				logger.Error(err),
			)
		}
	}
	return processed, nil
}

// runExtraction 下载 blob、抽文本、回写文档。失败时文档进入
// Error 状态再上抛，磁盘上的状态始终反映最后一次已知失败。
func (q *Queue) runExtraction(ctx context.Context, task *models.QueueTask) error {
	doc, err := q.documents.FindByID(ctx, task.DocumentID)
	if err != nil {
		return fmt.Errorf("extraction target: %w", err)
	}

	processing := models.DocumentProcessing
	if err := q.documents.Update(ctx, doc.ID, &models.DocumentUpdate{Status: &processing}); err != nil {
		return fmt.Errorf("failed to mark document processing: %w", err)
	}

	markError := func(cause error) {
		errStatus := models.DocumentError
		if updErr := q.documents.Update(ctx, doc.ID, &models.DocumentUpdate{
			Status:   &errStatus,
			Metadata: models.JSONMap{"last_error": cause.Error()},
		}); updErr != nil {
			q.logger.Error("Failed to mark document errored",
				logger.Uint("documentId", doc.ID),
				logger.Error(updErr),
			)
		}
	}

	reader, _, err := q.storage.Get(ctx, doc.StorageKey)
	if err != nil {
		err = fmt.Errorf("failed to download blob %s: %w", doc.StorageKey, err)
		markError(err)
		return err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		err = fmt.Errorf("failed to read blob %s: %w", doc.StorageKey, err)
		markError(err)
		return err
	}

	result, err := q.extractor.Extract(ctx, data, doc.OriginalName)
	if err != nil {
		markError(err)
		return err
	}

	processed := models.DocumentProcessed
	update := &models.DocumentUpdate{
		Status:        &processed,
		ExtractedText: &result.Text,
		Metadata: models.JSONMap{
			"extraction_method":     result.Method,
			"extraction_pages":      result.PageCount,
			"extraction_confidence": result.Confidence,
			"extracted_at":          result.ExtractedAt.Format(time.RFC3339),
		},
	}
	if err := q.documents.Update(ctx, doc.ID, update); err != nil {
		return fmt.Errorf("extraction succeeded but document update failed: %w", err)
	}

	q.logger.Info("Document text extracted",
		logger.Uint("documentId", doc.ID),
		logger.String("method", result.Method),
		logger.Int("pages", result.PageCount),
	)
	return nil
}
