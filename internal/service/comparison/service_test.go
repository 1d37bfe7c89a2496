package comparison

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenhao0221/contract-compare/internal/compare"
	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/internal/repository"
	"github.com/wenhao0221/contract-compare/pkg/logger"
)

// failingComparator 模拟上游失败的比对器
type failingComparator struct {
	err error
}

func (f *failingComparator) Compare(ctx context.Context, text1, text2 string) (*compare.Result, error) {
	return nil, f.err
}

type cmpFixture struct {
	service *Service
	repos   *repository.Repositories
}

func newCmpFixture(t *testing.T, ai compare.Comparator) *cmpFixture {
	t.Helper()
	log := logger.NewTestLogger()
	repos := repository.NewMemoryRepositories(repository.NewMemoryStore())
	return &cmpFixture{
		service: NewService(repos, compare.NewStatisticalComparator(log), ai, log),
		repos:   repos,
	}
}

func (f *cmpFixture) seedDocument(t *testing.T, hash, text string) *models.Document {
	t.Helper()
	doc := &models.Document{
		ContentHash:   hash,
		OriginalName:  hash + ".txt",
		UserID:        "u1",
		Status:        models.DocumentProcessed,
		ExtractedText: text,
	}
	require.NoError(t, f.repos.Documents.Create(context.Background(), doc))
	return doc
}

func TestCompareStatisticalHappyPath(t *testing.T) {
	f := newCmpFixture(t, nil)
	ctx := context.Background()

	doc1 := f.seedDocument(t, "h1", "This agreement covers payment terms between parties.")
	doc2 := f.seedDocument(t, "h2", "This agreement covers delivery terms between parties.")

	cmp, err := f.service.Compare(ctx, &Request{
		UserID:      "u1",
		Document1ID: doc1.ID,
		Document2ID: doc2.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ComparisonCompleted, cmp.Status)
	assert.Equal(t, compare.MethodStatistical, cmp.Method)
	assert.Greater(t, cmp.SimilarityScore, 0.0)
	assert.NotEmpty(t, cmp.SimilarityLabel)
	assert.NotEmpty(t, cmp.Summary)
	assert.GreaterOrEqual(t, cmp.ProcessingMs, int64(0))
}

func TestCompareRejectsSelfComparison(t *testing.T) {
	f := newCmpFixture(t, nil)
	doc := f.seedDocument(t, "h1", "body text")

	_, err := f.service.Compare(context.Background(), &Request{
		UserID:      "u1",
		Document1ID: doc.ID,
		Document2ID: doc.ID,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCompareRejectsMissingExtraction(t *testing.T) {
	f := newCmpFixture(t, nil)
	ctx := context.Background()

	ready := f.seedDocument(t, "h1", "extracted body")
	pending := f.seedDocument(t, "h2", "")

	_, err := f.service.Compare(ctx, &Request{
		UserID:      "u1",
		Document1ID: ready.ID,
		Document2ID: pending.ID,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCompareRejectsForeignDocuments(t *testing.T) {
	f := newCmpFixture(t, nil)
	doc1 := f.seedDocument(t, "h1", "body one")
	doc2 := f.seedDocument(t, "h2", "body two")

	_, err := f.service.Compare(context.Background(), &Request{
		UserID:      "intruder",
		Document1ID: doc1.ID,
		Document2ID: doc2.ID,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCompareRejectsUnknownMethod(t *testing.T) {
	f := newCmpFixture(t, nil)

	_, err := f.service.Compare(context.Background(), &Request{
		UserID:      "u1",
		Document1ID: 1,
		Document2ID: 2,
		Method:      "quantum",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCompareAIWithoutConfiguration(t *testing.T) {
	f := newCmpFixture(t, nil)

	_, err := f.service.Compare(context.Background(), &Request{
		UserID:      "u1",
		Document1ID: 1,
		Document2ID: 2,
		Method:      compare.MethodAI,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCompareReusesCompletedPair(t *testing.T) {
	f := newCmpFixture(t, nil)
	ctx := context.Background()

	doc1 := f.seedDocument(t, "h1", "shared agreement body one")
	doc2 := f.seedDocument(t, "h2", "shared agreement body two")

	first, err := f.service.Compare(ctx, &Request{UserID: "u1", Document1ID: doc1.ID, Document2ID: doc2.ID})
	require.NoError(t, err)

	// 同一对反序再来，命中同一条记录
	second, err := f.service.Compare(ctx, &Request{UserID: "u1", Document1ID: doc2.ID, Document2ID: doc1.ID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	all, err := f.service.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCompareFailurePersistsErrorRecord(t *testing.T) {
	upstream := errors.New("model quota exceeded")
	f := newCmpFixture(t, &failingComparator{err: upstream})
	ctx := context.Background()

	doc1 := f.seedDocument(t, "h1", "body one")
	doc2 := f.seedDocument(t, "h2", "body two")

	cmp, err := f.service.Compare(ctx, &Request{
		UserID:      "u1",
		Document1ID: doc1.ID,
		Document2ID: doc2.ID,
		Method:      compare.MethodAI,
	})
	// 失败固化为 Error 记录而不是裸错误
	require.NoError(t, err)
	require.NotNil(t, cmp)
	assert.Equal(t, models.ComparisonError, cmp.Status)
	assert.Contains(t, cmp.ErrorMessage, "model quota exceeded")

	persisted, err := f.service.Get(ctx, "u1", cmp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ComparisonError, persisted.Status)
}

func TestFailedPairIsSupersededOnRetry(t *testing.T) {
	upstream := errors.New("transient upstream failure")
	failing := &failingComparator{err: upstream}
	f := newCmpFixture(t, failing)
	ctx := context.Background()

	doc1 := f.seedDocument(t, "h1", "body one agreement")
	doc2 := f.seedDocument(t, "h2", "body two agreement")

	failed, err := f.service.Compare(ctx, &Request{
		UserID: "u1", Document1ID: doc1.ID, Document2ID: doc2.ID, Method: compare.MethodAI,
	})
	require.NoError(t, err)
	require.Equal(t, models.ComparisonError, failed.Status)

	// 失败记录不挡路，重试用统计方法成功并顶替旧行
	redone, err := f.service.Compare(ctx, &Request{
		UserID: "u1", Document1ID: doc1.ID, Document2ID: doc2.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ComparisonCompleted, redone.Status)
	assert.NotEqual(t, failed.ID, redone.ID)

	all, err := f.service.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetAndDeleteEnforceOwnership(t *testing.T) {
	f := newCmpFixture(t, nil)
	ctx := context.Background()

	doc1 := f.seedDocument(t, "h1", "body one text")
	doc2 := f.seedDocument(t, "h2", "body two text")

	cmp, err := f.service.Compare(ctx, &Request{UserID: "u1", Document1ID: doc1.ID, Document2ID: doc2.ID})
	require.NoError(t, err)

	_, err = f.service.Get(ctx, "intruder", cmp.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = f.service.Delete(ctx, "intruder", cmp.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, f.service.Delete(ctx, "u1", cmp.ID))
	_, err = f.service.Get(ctx, "u1", cmp.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
