package queue

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenhao0221/contract-compare/internal/extract"
	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/internal/repository"
	"github.com/wenhao0221/contract-compare/pkg/logger"
	"github.com/wenhao0221/contract-compare/pkg/storage"
)

type queueFixture struct {
	queue *Queue
	repos *repository.Repositories
	store storage.Storage
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	log := logger.NewTestLogger()
	repos := repository.NewMemoryRepositories(repository.NewMemoryStore())
	store, err := storage.NewLocalStorage(&storage.LocalConfig{BaseDir: t.TempDir()}, log)
	require.NoError(t, err)

	return &queueFixture{
		queue: New(repos.Tasks, repos.Documents, store, extract.NewService(log), log),
		repos: repos,
		store: store,
	}
}

// seedDocument 建一条带落盘 blob 的文档
func (f *queueFixture) seedDocument(t *testing.T, name, content string) *models.Document {
	t.Helper()
	ctx := context.Background()

	key := "documents/" + name
	if content != "" {
		_, err := f.store.Put(ctx, key, strings.NewReader(content), storage.PutOptions{})
		require.NoError(t, err)
	}

	doc := &models.Document{
		ContentHash:  "hash-" + name,
		StorageKey:   key,
		OriginalName: name,
		UserID:       "u1",
		Status:       models.DocumentUploaded,
	}
	require.NoError(t, f.repos.Documents.Create(ctx, doc))
	return doc
}

func TestEnqueueDefaultsMaxAttempts(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	task, err := f.queue.Enqueue(ctx, 1, models.TaskExtractText, EnqueueOptions{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, task.Status)
	assert.Equal(t, models.DefaultMaxAttempts, task.MaxAttempts)
}

func TestProcessNextOnEmptyQueue(t *testing.T) {
	f := newQueueFixture(t)

	ran, err := f.queue.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestExtractionTaskUpdatesDocument(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	doc := f.seedDocument(t, "a.txt", "The agreement covers payment terms and conditions.")
	task, err := f.queue.Enqueue(ctx, doc.ID, models.TaskExtractText, EnqueueOptions{UserID: "u1"})
	require.NoError(t, err)

	ran, err := f.queue.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	got, err := f.repos.Documents.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentProcessed, got.Status)
	assert.Equal(t, "The agreement covers payment terms and conditions.", got.ExtractedText)
	assert.Equal(t, "plain_text", got.Metadata["extraction_method"])

	done, err := f.repos.Tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
}

func TestFailedExtractionRetriesUntilBound(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	// blob 不落盘，下载永远失败
	doc := f.seedDocument(t, "ghost.txt", "")
	task, err := f.queue.Enqueue(ctx, doc.ID, models.TaskExtractText, EnqueueOptions{
		UserID:      "u1",
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	// 前两次失败后任务回到待处理
	for i := 1; i < 3; i++ {
		ran, err := f.queue.ProcessNext(ctx)
		assert.True(t, ran)
		require.Error(t, err)

		got, findErr := f.repos.Tasks.FindByID(ctx, task.ID)
		require.NoError(t, findErr)
		assert.Equal(t, models.TaskPending, got.Status)
		assert.Equal(t, i, got.Attempts)
		assert.NotEmpty(t, got.ErrorMessage)
	}

	// 第三次到达上限，任务终态失败，文档标错
	ran, err := f.queue.ProcessNext(ctx)
	assert.True(t, ran)
	require.Error(t, err)

	got, err := f.repos.Tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, got.Status)
	assert.Equal(t, 3, got.Attempts)

	gotDoc, err := f.repos.Documents.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentError, gotDoc.Status)
	assert.NotEmpty(t, gotDoc.Metadata["last_error"])

	// 队列里不再有可执行任务
	ran, err = f.queue.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestDrainProcessesInPriorityOrder(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	low := f.seedDocument(t, "low.txt", "low priority contract body")
	high := f.seedDocument(t, "high.txt", "high priority contract body")

	_, err := f.queue.Enqueue(ctx, low.ID, models.TaskExtractText, EnqueueOptions{UserID: "u1", Priority: 1})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, high.ID, models.TaskExtractText, EnqueueOptions{UserID: "u1", Priority: 9})
	require.NoError(t, err)

	processed, err := f.queue.Drain(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// 高优先级先被消费
	gotHigh, err := f.repos.Documents.FindByID(ctx, high.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentProcessed, gotHigh.Status)

	gotLow, err := f.repos.Documents.FindByID(ctx, low.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentUploaded, gotLow.Status)

	processed, err = f.queue.Drain(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
}

func TestCancelOnlyPendingTasks(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	doc := f.seedDocument(t, "a.txt", "contract body for cancellation test")
	task, err := f.queue.Enqueue(ctx, doc.ID, models.TaskExtractText, EnqueueOptions{UserID: "u1"})
	require.NoError(t, err)

	require.NoError(t, f.queue.Cancel(ctx, task.ID))

	got, err := f.repos.Tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCancelled, got.Status)

	// 已取消的任务不能再取消
	err = f.queue.Cancel(ctx, task.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestUnknownTaskTypeFails(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	doc := f.seedDocument(t, "a.txt", "body")
	_, err := f.queue.Enqueue(ctx, doc.ID, models.TaskType("mystery"), EnqueueOptions{UserID: "u1", MaxAttempts: 1})
	require.NoError(t, err)

	ran, err := f.queue.ProcessNext(ctx)
	assert.True(t, ran)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
}
