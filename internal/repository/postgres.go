package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wenhao0221/contract-compare/internal/models"
)

// NewPostgresDB 建立数据库连接并迁移三张表。唯一索引
//（documents.content_hash、comparisons 规范化对）和级联外键
// 在 schema 层面兜底仓库约束。
func NewPostgresDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Document{},
		&models.Comparison{},
		&models.QueueTask{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

// NewPostgresRepositories 在同一个 gorm.DB 上构造三个仓库
func NewPostgresRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Documents:   &pgDocumentRepo{db: db},
		Comparisons: &pgComparisonRepo{db: db},
		Tasks:       &pgTaskRepo{db: db},
	}
}

// translate 把 gorm 错误映射到领域错误分类
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, models.ErrDuplicate)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %v", what, models.ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

// --- documents ---

type pgDocumentRepo struct {
	db *gorm.DB
}

func (r *pgDocumentRepo) Create(ctx context.Context, doc *models.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return translate(err, fmt.Sprintf("create document (hash %s)", doc.ContentHash))
	}
	return nil
}

func (r *pgDocumentRepo) FindByID(ctx context.Context, id uint) (*models.Document, error) {
	var doc models.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("document %d", id))
	}
	return &doc, nil
}

func (r *pgDocumentRepo) FindByUser(ctx context.Context, userID string) ([]*models.Document, error) {
	var docs []*models.Document
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("uploaded_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("documents for user %s", userID))
	}
	return docs, nil
}

func (r *pgDocumentRepo) FindByHash(ctx context.Context, contentHash string) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).
		Where("content_hash = ?", contentHash).
		First(&doc).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("document with hash %s", contentHash))
	}
	return &doc, nil
}

func (r *pgDocumentRepo) Update(ctx context.Context, id uint, update *models.DocumentUpdate) error {
	values := map[string]interface{}{}
	if update.Status != nil {
		values["status"] = *update.Status
	}
	if update.ExtractedText != nil {
		values["extracted_text"] = *update.ExtractedText
	}
	if update.IsStandard != nil {
		values["is_standard"] = *update.IsStandard
	}
	if update.OriginalName != nil {
		values["original_name"] = *update.OriginalName
	}
	if update.Metadata != nil {
		// 元数据整列覆盖前先并入已有键
		var doc models.Document
		if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
			return translate(err, fmt.Sprintf("document %d", id))
		}
		merged := doc.Metadata
		if merged == nil {
			merged = models.JSONMap{}
		}
		for k, v := range update.Metadata {
			merged[k] = v
		}
		values["metadata"] = merged
	}
	if len(values) == 0 {
		return nil
	}

	res := r.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("update document %d", id))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *pgDocumentRepo) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Document{}, id)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("delete document %d", id))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// --- comparisons ---

type pgComparisonRepo struct {
	db *gorm.DB
}

func (r *pgComparisonRepo) Create(ctx context.Context, cmp *models.Comparison) error {
	// 入库前规范化，唯一索引建立在 (小id, 大id) 上
	cmp.Document1ID, cmp.Document2ID = models.NormalizedPair(cmp.Document1ID, cmp.Document2ID)
	if err := r.db.WithContext(ctx).Create(cmp).Error; err != nil {
		return translate(err, fmt.Sprintf("create comparison (%d,%d)", cmp.Document1ID, cmp.Document2ID))
	}
	return nil
}

func (r *pgComparisonRepo) FindByID(ctx context.Context, id uint) (*models.Comparison, error) {
	var cmp models.Comparison
	if err := r.db.WithContext(ctx).First(&cmp, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("comparison %d", id))
	}
	return &cmp, nil
}

func (r *pgComparisonRepo) FindByUser(ctx context.Context, userID string) ([]*models.Comparison, error) {
	var cmps []*models.Comparison
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&cmps).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("comparisons for user %s", userID))
	}
	return cmps, nil
}

func (r *pgComparisonRepo) FindByPair(ctx context.Context, doc1ID, doc2ID uint) (*models.Comparison, error) {
	a, b := models.NormalizedPair(doc1ID, doc2ID)
	var cmp models.Comparison
	err := r.db.WithContext(ctx).
		Where("document1_id = ? AND document2_id = ?", a, b).
		First(&cmp).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("comparison for pair (%d,%d)", a, b))
	}
	return &cmp, nil
}

func (r *pgComparisonRepo) CountByDocument(ctx context.Context, docID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Comparison{}).
		Where("document1_id = ? OR document2_id = ?", docID, docID).
		Count(&count).Error
	if err != nil {
		return 0, translate(err, fmt.Sprintf("count comparisons for document %d", docID))
	}
	return count, nil
}

func (r *pgComparisonRepo) Update(ctx context.Context, cmp *models.Comparison) error {
	res := r.db.WithContext(ctx).Save(cmp)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("update comparison %d", cmp.ID))
	}
	return nil
}

func (r *pgComparisonRepo) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Comparison{}, id)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("delete comparison %d", id))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("comparison %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// --- queue tasks ---

type pgTaskRepo struct {
	db *gorm.DB
}

// pendingOrder 权威排序：优先级降序，再按计划/创建时间升序
const pendingOrder = "priority DESC, COALESCE(scheduled_at, created_at) ASC, id ASC"

func (r *pgTaskRepo) Create(ctx context.Context, task *models.QueueTask) error {
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	if task.MaxAttempts <= 0 {
		task.MaxAttempts = models.DefaultMaxAttempts
	}
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return translate(err, fmt.Sprintf("create task for document %d", task.DocumentID))
	}
	return nil
}

func (r *pgTaskRepo) FindByID(ctx context.Context, id uint) (*models.QueueTask, error) {
	var task models.QueueTask
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("task %d", id))
	}
	return &task, nil
}

func (r *pgTaskRepo) FindByUser(ctx context.Context, userID string) ([]*models.QueueTask, error) {
	var tasks []*models.QueueTask
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("tasks for user %s", userID))
	}
	return tasks, nil
}

func (r *pgTaskRepo) FindByDocument(ctx context.Context, docID uint) ([]*models.QueueTask, error) {
	var tasks []*models.QueueTask
	err := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("created_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("tasks for document %d", docID))
	}
	return tasks, nil
}

func (r *pgTaskRepo) FindPending(ctx context.Context, limit int) ([]*models.QueueTask, error) {
	var tasks []*models.QueueTask
	q := r.db.WithContext(ctx).
		Where("status = ?", models.TaskPending).
		Where("scheduled_at IS NULL OR scheduled_at <= ?", time.Now()).
		Order(pendingOrder)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&tasks).Error; err != nil {
		return nil, translate(err, "pending tasks")
	}
	return tasks, nil
}

func (r *pgTaskRepo) ClaimNext(ctx context.Context) (*models.QueueTask, error) {
	var claimed *models.QueueTask

	// SELECT ... FOR UPDATE SKIP LOCKED 加上同一事务里的状态翻转，
	// 并发认领方各自拿到不同的行
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.QueueTask
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", models.TaskPending).
			Where("scheduled_at IS NULL OR scheduled_at <= ?", time.Now()).
			Order(pendingOrder).
			First(&task).Error
		if err != nil {
			return err
		}

		now := time.Now()
		res := tx.Model(&models.QueueTask{}).
			Where("id = ? AND status = ?", task.ID, models.TaskPending).
			Updates(map[string]interface{}{
				"status":     models.TaskProcessing,
				"started_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 行锁下不应发生；发生了就当本轮没有可认领任务
			return gorm.ErrRecordNotFound
		}

		task.Status = models.TaskProcessing
		task.StartedAt = &now
		claimed = &task
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, translate(err, "claim next task")
	}
	return claimed, nil
}

func (r *pgTaskRepo) UpdateStatus(ctx context.Context, id uint, status models.TaskStatus, completedAt *time.Time) error {
	values := map[string]interface{}{"status": status}
	if completedAt != nil {
		values["completed_at"] = *completedAt
	}
	res := r.db.WithContext(ctx).Model(&models.QueueTask{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("update task %d", id))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *pgTaskRepo) IncrementAttempts(ctx context.Context, id uint, errorMessage string) (*models.QueueTask, error) {
	var updated *models.QueueTask

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.QueueTask
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&task, id).Error
		if err != nil {
			return err
		}

		task.Attempts++
		task.ErrorMessage = errorMessage
		if task.Attempts >= task.MaxAttempts {
			now := time.Now()
			task.Status = models.TaskFailed
			task.CompletedAt = &now
		} else {
			task.Status = models.TaskPending
		}

		if err := tx.Save(&task).Error; err != nil {
			return err
		}
		updated = &task
		return nil
	})
	if err != nil {
		return nil, translate(err, fmt.Sprintf("increment attempts for task %d", id))
	}
	return updated, nil
}

func (r *pgTaskRepo) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.QueueTask{}, id)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("delete task %d", id))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %d: %w", id, models.ErrNotFound)
	}
	return nil
}
