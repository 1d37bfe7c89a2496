package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenhao0221/contract-compare/internal/models"
)

func newTestRepos() *Repositories {
	return NewMemoryRepositories(NewMemoryStore())
}

func TestDocumentCreateRejectsDuplicateHash(t *testing.T) {
	repos := newTestRepos()
	ctx := context.Background()

	doc := &models.Document{
		ContentHash:  "abc123",
		StorageKey:   "documents/a.pdf",
		OriginalName: "a.pdf",
		UserID:       "u1",
	}
	require.NoError(t, repos.Documents.Create(ctx, doc))
	assert.NotZero(t, doc.ID)

	dup := &models.Document{
		ContentHash:  "abc123",
		StorageKey:   "documents/b.pdf",
		OriginalName: "b.pdf",
		UserID:       "u1",
	}
	err := repos.Documents.Create(ctx, dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDuplicate)
}

func TestDocumentFindByHash(t *testing.T) {
	repos := newTestRepos()
	ctx := context.Background()

	doc := &models.Document{ContentHash: "hash1", OriginalName: "a.pdf", UserID: "u1"}
	require.NoError(t, repos.Documents.Create(ctx, doc))

	found, err := repos.Documents.FindByHash(ctx, "hash1")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, found.ID)

	_, err = repos.Documents.FindByHash(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDocumentUpdateIsPartial(t *testing.T) {
	repos := newTestRepos()
	ctx := context.Background()

	doc := &models.Document{ContentHash: "h", OriginalName: "a.pdf", UserID: "u1", Status: models.DocumentUploaded}
	require.NoError(t, repos.Documents.Create(ctx, doc))

	text := "extracted body"
	processed := models.DocumentProcessed
	require.NoError(t, repos.Documents.Update(ctx, doc.ID, &models.DocumentUpdate{
		Status:        &processed,
		ExtractedText: &text,
	}))

	got, err := repos.Documents.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentProcessed, got.Status)
	assert.Equal(t, "extracted body", got.ExtractedText)
	// 没更新的字段保持原样
	assert.Equal(t, "a.pdf", got.OriginalName)
}

func TestDocumentDeleteCascades(t *testing.T) {
	repos := newTestRepos()
	ctx := context.Background()

	doc1 := &models.Document{ContentHash: "h1", UserID: "u1"}
	doc2 := &models.Document{ContentHash: "h2", UserID: "u1"}
	require.NoError(t, repos.Documents.Create(ctx, doc1))
	require.NoError(t, repos.Documents.Create(ctx, doc2))

	cmp := &models.Comparison{Document1ID: doc1.ID, Document2ID: doc2.ID, UserID: "u1"}
	require.NoError(t, repos.Comparisons.Create(ctx, cmp))

	task := &models.QueueTask{DocumentID: doc1.ID, Type: models.TaskExtractText}
	require.NoError(t, repos.Tasks.Create(ctx, task))

	require.NoError(t, repos.Documents.Delete(ctx, doc1.ID))

	_, err := repos.Comparisons.FindByID(ctx, cmp.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = repos.Tasks.FindByID(ctx, task.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestComparisonPairUniqueness(t *testing.T) {
	repos := newTestRepos()
	ctx := context.Background()

	require.NoError(t, repos.Comparisons.Create(ctx, &models.Comparison{
		Document1ID: 1, Document2ID: 2, UserID: "u1",
	}))

	// 同一对反过来也算重复
	err := repos.Comparisons.Create(ctx, &models.Comparison{
		Document1ID: 2, Document2ID: 1, UserID: "u1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDuplicate)
}

func TestComparisonFindByPairIsOrderInsensitive(t *testing.T) {
	repos := newTestRepos()
	ctx := context.Background()

	cmp := &models.Comparison{Document1ID: 7, Document2ID: 3, UserID: "u1"}
	require.NoError(t, repos.Comparisons.Create(ctx, cmp))

	found, err := repos.Comparisons.FindByPair(ctx, 3, 7)
	require.NoError(t, err)
	assert.Equal(t, cmp.ID, found.ID)

	found, err = repos.Comparisons.FindByPair(ctx, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, cmp.ID, found.ID)
}

func TestComparisonCountByDocument(t *testing.T) {
	repos := newTestRepos()
	ctx := context.Background()

	require.NoError(t, repos.Comparisons.Create(ctx, &models.Comparison{Document1ID: 1, Document2ID: 2, UserID: "u1"}))
	require.NoError(t, repos.Comparisons.Create(ctx, &models.Comparison{Document1ID: 1, Document2ID: 3, UserID: "u1"}))

	count, err := repos.Comparisons.CountByDocument(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	count, err = repos.Comparisons.CountByDocument(ctx, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestPendingOrderByPriorityThenTime(t *testing.T) {
	repos := newTestRepos()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	mk := func(priority int, created time.Time) *models.QueueTask {
		task := &models.QueueTask{
			DocumentID: 1,
			Type:       models.TaskExtractText,
			Priority:   priority,
			CreatedAt:  created,
		}
		require.NoError(t, repos.Tasks.Create(ctx, task))
		return task
	}

	low := mk(1, base)
	high := mk(5, base.Add(10*time.Minute))
	mid := mk(3, base.Add(5*time.Minute))

	pending, err := repos.Tasks.FindPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, high.ID, pending[0].ID)
	assert.Equal(t, mid.ID, pending[1].ID)
	assert.Equal(t, low.ID, pending[2].ID)
}

func TestScheduledTasksNotDueAreSkipped(t *testing.T) {
	repos := newTestRepos()
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	require.NoError(t, repos.Tasks.Create(ctx, &models.QueueTask{
		DocumentID:  1,
		Type:        models.TaskExtractText,
		ScheduledAt: &future,
	}))

	pending, err := repos.Tasks.FindPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	claimed, err := repos.Tasks.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaimNextFlipsStatusAtomically(t *testing.T) {
	repos := newTestRepos()
	ctx := context.Background()

	task := &models.QueueTask{DocumentID: 1, Type: models.TaskExtractText}
	require.NoError(t, repos.Tasks.Create(ctx, task))

	claimed, err := repos.Tasks.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, models.TaskProcessing, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)

	// 已被认领，第二次认领拿不到
	again, err := repos.Tasks.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestConcurrentClaimsNeverShareATask(t *testing.T) {
	repos := newTestRepos()
	ctx := context.Background()

	const total = 20
	for i := 0; i < total; i++ {
		require.NoError(t, repos.Tasks.Create(ctx, &models.QueueTask{
			DocumentID: uint(i + 1),
			Type:       models.TaskExtractText,
		}))
	}

	var mu sync.Mutex
	seen := make(map[uint]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := repos.Tasks.ClaimNext(ctx)
				if !assert.NoError(t, err) || task == nil {
					return
				}
				mu.Lock()
				seen[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equalf(t, 1, n, "task %d claimed %d times", id, n)
	}
}

func TestIncrementAttemptsRetriesThenFails(t *testing.T) {
	repos := newTestRepos()
	ctx := context.Background()

	task := &models.QueueTask{DocumentID: 1, Type: models.TaskExtractText, MaxAttempts: 3}
	require.NoError(t, repos.Tasks.Create(ctx, task))

	// 前两次失败回到待处理
	for i := 1; i < 3; i++ {
		updated, err := repos.Tasks.IncrementAttempts(ctx, task.ID, "boom")
		require.NoError(t, err)
		assert.Equal(t, i, updated.Attempts)
		assert.Equal(t, models.TaskPending, updated.Status)
		assert.Equal(t, "boom", updated.ErrorMessage)
	}

	// 第三次到达上限，进入终态
	updated, err := repos.Tasks.IncrementAttempts(ctx, task.ID, "boom again")
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Attempts)
	assert.Equal(t, models.TaskFailed, updated.Status)
	assert.NotNil(t, updated.CompletedAt)
	assert.True(t, updated.Terminal())
}

func TestRepositoriesReturnCopies(t *testing.T) {
	repos := newTestRepos()
	ctx := context.Background()

	doc := &models.Document{ContentHash: "h", OriginalName: "a.pdf", UserID: "u1"}
	require.NoError(t, repos.Documents.Create(ctx, doc))

	got, err := repos.Documents.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	got.OriginalName = "mutated.pdf"

	fresh, err := repos.Documents.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", fresh.OriginalName)
}
