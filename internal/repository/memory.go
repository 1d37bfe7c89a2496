package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wenhao0221/contract-compare/internal/models"
)

// MemoryStore 进程内后备存储。显式构造、显式注入，只适合
// 单实例/开发部署：状态不跨实例共享，重启即丢失。
// 关系库由 schema 保证的约束（哈希唯一、对唯一、待处理排序、
// 认领原子性）在这里必须由代码在锁内重新实现。
type MemoryStore struct {
	mu sync.Mutex

	documents   map[uint]*models.Document
	comparisons map[uint]*models.Comparison
	tasks       map[uint]*models.QueueTask

	docSeq  uint
	cmpSeq  uint
	taskSeq uint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:   make(map[uint]*models.Document),
		comparisons: make(map[uint]*models.Comparison),
		tasks:       make(map[uint]*models.QueueTask),
	}
}

// NewMemoryRepositories 在同一个 MemoryStore 上构造三个仓库
func NewMemoryRepositories(store *MemoryStore) *Repositories {
	return &Repositories{
		Documents:   &memoryDocumentRepo{store: store},
		Comparisons: &memoryComparisonRepo{store: store},
		Tasks:       &memoryTaskRepo{store: store},
	}
}

func copyDocument(d *models.Document) *models.Document {
	cp := *d
	if d.Metadata != nil {
		cp.Metadata = make(models.JSONMap, len(d.Metadata))
		for k, v := range d.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func copyComparison(c *models.Comparison) *models.Comparison {
	cp := *c
	cp.Document1 = nil
	cp.Document2 = nil
	if c.KeyDifferences != nil {
		cp.KeyDifferences = append(models.DifferenceList(nil), c.KeyDifferences...)
	}
	if c.Suggestions != nil {
		cp.Suggestions = append(models.StringList(nil), c.Suggestions...)
	}
	return &cp
}

func copyTask(t *models.QueueTask) *models.QueueTask {
	cp := *t
	cp.Document = nil
	if t.Metadata != nil {
		cp.Metadata = make(models.JSONMap, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// --- documents ---

type memoryDocumentRepo struct {
	store *MemoryStore
}

func (r *memoryDocumentRepo) Create(ctx context.Context, doc *models.Document) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	// 内容哈希唯一性在这里守门，关系库靠唯一索引
	for _, existing := range s.documents {
		if existing.ContentHash == doc.ContentHash {
			return fmt.Errorf("document with hash %s: %w", doc.ContentHash, models.ErrDuplicate)
		}
	}

	s.docSeq++
	doc.ID = s.docSeq
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now()
	}
	if doc.Status == "" {
		doc.Status = models.DocumentUploaded
	}
	s.documents[doc.ID] = copyDocument(doc)
	return nil
}

func (r *memoryDocumentRepo) FindByID(ctx context.Context, id uint) (*models.Document, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, models.ErrNotFound)
	}
	return copyDocument(doc), nil
}

func (r *memoryDocumentRepo) FindByUser(ctx context.Context, userID string) ([]*models.Document, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Document
	for _, doc := range s.documents {
		if doc.UserID == userID {
			out = append(out, copyDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

func (r *memoryDocumentRepo) FindByHash(ctx context.Context, contentHash string) (*models.Document, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range s.documents {
		if doc.ContentHash == contentHash {
			return copyDocument(doc), nil
		}
	}
	return nil, fmt.Errorf("document with hash %s: %w", contentHash, models.ErrNotFound)
}

func (r *memoryDocumentRepo) Update(ctx context.Context, id uint, update *models.DocumentUpdate) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return fmt.Errorf("document %d: %w", id, models.ErrNotFound)
	}
	if update.Status != nil {
		doc.Status = *update.Status
	}
	if update.ExtractedText != nil {
		doc.ExtractedText = *update.ExtractedText
	}
	if update.IsStandard != nil {
		doc.IsStandard = *update.IsStandard
	}
	if update.OriginalName != nil {
		doc.OriginalName = *update.OriginalName
	}
	if update.Metadata != nil {
		if doc.Metadata == nil {
			doc.Metadata = models.JSONMap{}
		}
		for k, v := range update.Metadata {
			doc.Metadata[k] = v
		}
	}
	return nil
}

func (r *memoryDocumentRepo) Delete(ctx context.Context, id uint) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("document %d: %w", id, models.ErrNotFound)
	}
	delete(s.documents, id)
	// 关系库里靠级联删除，这里手动清掉引用它的比对和任务
	for cid, cmp := range s.comparisons {
		if cmp.Document1ID == id || cmp.Document2ID == id {
			delete(s.comparisons, cid)
		}
	}
	for tid, task := range s.tasks {
		if task.DocumentID == id {
			delete(s.tasks, tid)
		}
	}
	return nil
}

// --- comparisons ---

type memoryComparisonRepo struct {
	store *MemoryStore
}

func (r *memoryComparisonRepo) Create(ctx context.Context, cmp *models.Comparison) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	a, b := models.NormalizedPair(cmp.Document1ID, cmp.Document2ID)
	for _, existing := range s.comparisons {
		ea, eb := models.NormalizedPair(existing.Document1ID, existing.Document2ID)
		if ea == a && eb == b {
			return fmt.Errorf("comparison for pair (%d,%d): %w", a, b, models.ErrDuplicate)
		}
	}

	s.cmpSeq++
	cmp.ID = s.cmpSeq
	if cmp.CreatedAt.IsZero() {
		cmp.CreatedAt = time.Now()
	}
	if cmp.Status == "" {
		cmp.Status = models.ComparisonPending
	}
	s.comparisons[cmp.ID] = copyComparison(cmp)
	return nil
}

func (r *memoryComparisonRepo) FindByID(ctx context.Context, id uint) (*models.Comparison, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	cmp, ok := s.comparisons[id]
	if !ok {
		return nil, fmt.Errorf("comparison %d: %w", id, models.ErrNotFound)
	}
	return copyComparison(cmp), nil
}

func (r *memoryComparisonRepo) FindByUser(ctx context.Context, userID string) ([]*models.Comparison, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Comparison
	for _, cmp := range s.comparisons {
		if cmp.UserID == userID {
			out = append(out, copyComparison(cmp))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryComparisonRepo) FindByPair(ctx context.Context, doc1ID, doc2ID uint) (*models.Comparison, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	a, b := models.NormalizedPair(doc1ID, doc2ID)
	for _, cmp := range s.comparisons {
		ea, eb := models.NormalizedPair(cmp.Document1ID, cmp.Document2ID)
		if ea == a && eb == b {
			return copyComparison(cmp), nil
		}
	}
	return nil, fmt.Errorf("comparison for pair (%d,%d): %w", a, b, models.ErrNotFound)
}

func (r *memoryComparisonRepo) CountByDocument(ctx context.Context, docID uint) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, cmp := range s.comparisons {
		if cmp.Document1ID == docID || cmp.Document2ID == docID {
			count++
		}
	}
	return count, nil
}

func (r *memoryComparisonRepo) Update(ctx context.Context, cmp *models.Comparison) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comparisons[cmp.ID]; !ok {
		return fmt.Errorf("comparison %d: %w", cmp.ID, models.ErrNotFound)
	}
	s.comparisons[cmp.ID] = copyComparison(cmp)
	return nil
}

func (r *memoryComparisonRepo) Delete(ctx context.Context, id uint) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comparisons[id]; !ok {
		return fmt.Errorf("comparison %d: %w", id, models.ErrNotFound)
	}
	delete(s.comparisons, id)
	return nil
}

// --- queue tasks ---

type memoryTaskRepo struct {
	store *MemoryStore
}

func (r *memoryTaskRepo) Create(ctx context.Context, task *models.QueueTask) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taskSeq++
	task.ID = s.taskSeq
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	if task.MaxAttempts <= 0 {
		task.MaxAttempts = models.DefaultMaxAttempts
	}
	s.tasks[task.ID] = copyTask(task)
	return nil
}

func (r *memoryTaskRepo) FindByID(ctx context.Context, id uint) (*models.QueueTask, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, models.ErrNotFound)
	}
	return copyTask(task), nil
}

func (r *memoryTaskRepo) FindByUser(ctx context.Context, userID string) ([]*models.QueueTask, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.QueueTask
	for _, task := range s.tasks {
		if task.UserID == userID {
			out = append(out, copyTask(task))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryTaskRepo) FindByDocument(ctx context.Context, docID uint) ([]*models.QueueTask, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.QueueTask
	for _, task := range s.tasks {
		if task.DocumentID == docID {
			out = append(out, copyTask(task))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// pendingLocked 调用方必须持有 s.mu
func (s *MemoryStore) pendingLocked(now time.Time) []*models.QueueTask {
	var due []*models.QueueTask
	for _, task := range s.tasks {
		if task.Status == models.TaskPending && task.Due(now) {
			due = append(due, task)
		}
	}
	// 权威排序：优先级降序，再按计划/创建时间升序
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		ti := due[i].CreatedAt
		if due[i].ScheduledAt != nil {
			ti = *due[i].ScheduledAt
		}
		tj := due[j].CreatedAt
		if due[j].ScheduledAt != nil {
			tj = *due[j].ScheduledAt
		}
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return due[i].ID < due[j].ID
	})
	return due
}

func (r *memoryTaskRepo) FindPending(ctx context.Context, limit int) ([]*models.QueueTask, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	due := s.pendingLocked(time.Now())
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]*models.QueueTask, 0, len(due))
	for _, task := range due {
		out = append(out, copyTask(task))
	}
	return out, nil
}

func (r *memoryTaskRepo) ClaimNext(ctx context.Context) (*models.QueueTask, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	// 选取和状态翻转在同一个临界区内完成，并发认领方
	// 不可能拿到同一个任务
	due := s.pendingLocked(time.Now())
	if len(due) == 0 {
		return nil, nil
	}
	task := due[0]
	now := time.Now()
	task.Status = models.TaskProcessing
	task.StartedAt = &now
	return copyTask(task), nil
}

func (r *memoryTaskRepo) UpdateStatus(ctx context.Context, id uint, status models.TaskStatus, completedAt *time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, models.ErrNotFound)
	}
	task.Status = status
	if completedAt != nil {
		task.CompletedAt = completedAt
	}
	return nil
}

func (r *memoryTaskRepo) IncrementAttempts(ctx context.Context, id uint, errorMessage string) (*models.QueueTask, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, models.ErrNotFound)
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
	return copyTask(task), nil
}

func (r *memoryTaskRepo) Delete(ctx context.Context, id uint) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("task %d: %w", id, models.ErrNotFound)
	}
	delete(s.tasks, id)
	return nil
}
