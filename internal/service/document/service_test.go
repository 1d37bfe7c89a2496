package document

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenhao0221/contract-compare/internal/extract"
	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/internal/queue"
	"github.com/wenhao0221/contract-compare/internal/repository"
	"github.com/wenhao0221/contract-compare/pkg/logger"
	"github.com/wenhao0221/contract-compare/pkg/storage"
)

type fixture struct {
	service *Service
	repos   *repository.Repositories
	store   storage.Storage
	queue   *queue.Queue
	drains  int
}

func (f *fixture) NotifyDrain(ctx context.Context) error {
	f.drains++
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewTestLogger()
	repos := repository.NewMemoryRepositories(repository.NewMemoryStore())
	store, err := storage.NewLocalStorage(&storage.LocalConfig{BaseDir: t.TempDir()}, log)
	require.NoError(t, err)
	q := queue.New(repos.Tasks, repos.Documents, store, extract.NewService(log), log)

	f := &fixture{repos: repos, store: store, queue: q}
	f.service = NewService(repos, store, q, f, log, nil)
	return f
}

func upload(t *testing.T, f *fixture, name, content string) *UploadResult {
	t.Helper()
	result, err := f.service.Upload(context.Background(), &UploadInput{
		Filename: name,
		Size:     int64(len(content)),
		Reader:   strings.NewReader(content),
		UserID:   "u1",
	})
	require.NoError(t, err)
	return result
}

func TestUploadStoresBlobAndQueuesExtraction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := upload(t, f, "contract.txt", "This agreement covers payment.")
	require.False(t, result.Duplicate)
	doc := result.Document
	assert.NotZero(t, doc.ID)
	assert.Equal(t, models.DocumentUploaded, doc.Status)
	assert.Len(t, doc.ContentHash, 64)

	exists, err := f.store.Exists(ctx, doc.StorageKey)
	require.NoError(t, err)
	assert.True(t, exists)

	tasks, err := f.repos.Tasks.FindByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskExtractText, tasks[0].Type)
	assert.Equal(t, 1, f.drains)
}

func TestUploadDeduplicatesByContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := upload(t, f, "original.txt", "identical bytes")
	second := upload(t, f, "renamed-copy.txt", "identical bytes")

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Document.ID, second.Document.ID)
	// 去重命中保留原名，不入第二条任务
	assert.Equal(t, "original.txt", second.Document.OriginalName)
	tasks, err := f.repos.Tasks.FindByDocument(ctx, first.Document.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.Equal(t, 1, f.drains)
}

func TestUploadDifferentContentIsNotDuplicate(t *testing.T) {
	f := newFixture(t)

	first := upload(t, f, "a.txt", "first body")
	second := upload(t, f, "a.txt", "second body")

	assert.False(t, second.Duplicate)
	assert.NotEqual(t, first.Document.ID, second.Document.ID)
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input *UploadInput
	}{
		{"missing filename", &UploadInput{Filename: "", UserID: "u1", Reader: strings.NewReader("x")}},
		{"missing user", &UploadInput{Filename: "a.txt", UserID: "", Reader: strings.NewReader("x")}},
		{"bad extension", &UploadInput{Filename: "a.exe", UserID: "u1", Reader: strings.NewReader("x")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Upload(ctx, tc.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestUploadEnforcesSizeLimit(t *testing.T) {
	f := newFixture(t)
	f.service.config.MaxFileSize = 10

	_, err := f.service.Upload(context.Background(), &UploadInput{
		Filename: "big.txt",
		Reader:   strings.NewReader("this body is longer than ten bytes"),
		UserID:   "u1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestUploadBatch(t *testing.T) {
	f := newFixture(t)

	inputs := []*UploadInput{
		{Filename: "a.txt", Reader: strings.NewReader("body a"), UserID: "u1"},
		{Filename: "b.txt", Reader: strings.NewReader("body b"), UserID: "u1"},
		{Filename: "c.txt", Reader: strings.NewReader("body c"), UserID: "u1"},
	}
	results, err := f.service.UploadBatch(context.Background(), inputs)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestListDocumentsFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		upload(t, f, fmt.Sprintf("contract-%d.txt", i), fmt.Sprintf("body %d", i))
	}
	std := upload(t, f, "standard.txt", "the reference body")
	require.NoError(t, f.service.SetStandard(ctx, "u1", std.Document.ID, true))

	page, err := f.service.ListDocuments(ctx, "u1", ListOptions{Page: 1, PageSize: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	assert.Equal(t, 2, page.PageCount)
	assert.Len(t, page.Documents, 4)

	page2, err := f.service.ListDocuments(ctx, "u1", ListOptions{Page: 2, PageSize: 4})
	require.NoError(t, err)
	assert.Len(t, page2.Documents, 2)

	standards, err := f.service.ListDocuments(ctx, "u1", ListOptions{Type: "standard"})
	require.NoError(t, err)
	require.Len(t, standards.Documents, 1)
	assert.Equal(t, std.Document.ID, standards.Documents[0].ID)

	search, err := f.service.ListDocuments(ctx, "u1", ListOptions{Search: "contract-3"})
	require.NoError(t, err)
	assert.Len(t, search.Documents, 1)
}

func TestGetDocumentEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := upload(t, f, "a.txt", "body").Document

	_, err := f.service.GetDocument(ctx, "someone-else", doc.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetEnhancedUsesStreamPathOnLocalStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := upload(t, f, "a.txt", "body").Document

	enhanced, err := f.service.GetEnhanced(ctx, "u1", doc.ID)
	require.NoError(t, err)
	assert.False(t, enhanced.DownloadSigned)
	assert.Equal(t, fmt.Sprintf("/api/v1/documents/%d/content", doc.ID), enhanced.DownloadURL)
	require.NotNil(t, enhanced.StorageInfo)
	assert.True(t, enhanced.StorageInfo.Exists)
	assert.EqualValues(t, 4, enhanced.StorageInfo.Size)
}

func TestDeleteBlockedWhileComparisonsExist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc1 := upload(t, f, "a.txt", "body a").Document
	doc2 := upload(t, f, "b.txt", "body b").Document
	require.NoError(t, f.repos.Comparisons.Create(ctx, &models.Comparison{
		Document1ID: doc1.ID,
		Document2ID: doc2.ID,
		UserID:      "u1",
	}))

	err := f.service.Delete(ctx, "u1", doc1.ID)
	require.Error(t, err)
	var inUse *InUseError
	require.ErrorAs(t, err, &inUse)
	assert.EqualValues(t, 1, inUse.Blockers)

	// 比对删掉之后可以删文档
	cmp, err := f.repos.Comparisons.FindByPair(ctx, doc1.ID, doc2.ID)
	require.NoError(t, err)
	require.NoError(t, f.repos.Comparisons.Delete(ctx, cmp.ID))

	require.NoError(t, f.service.Delete(ctx, "u1", doc1.ID))

	_, err = f.repos.Documents.FindByID(ctx, doc1.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	exists, err := f.store.Exists(ctx, doc1.StorageKey)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := upload(t, f, "a.txt", "body").Document
	require.NoError(t, f.service.Rename(ctx, "u1", doc.ID, "renamed.txt"))

	got, err := f.service.GetDocument(ctx, "u1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed.txt", got.OriginalName)

	err = f.service.Rename(ctx, "u1", doc.ID, "   ")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestValidateForComparison(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc1 := upload(t, f, "a.txt", "the first agreement body").Document
	doc2 := upload(t, f, "b.txt", "the second agreement body").Document

	// 自比对直接拒绝
	_, err := f.service.ValidateForComparison(ctx, "u1", doc1.ID, doc1.ID)
	assert.ErrorIs(t, err, models.ErrValidation)

	// 还没抽取文本
	readiness, err := f.service.ValidateForComparison(ctx, "u1", doc1.ID, doc2.ID)
	require.NoError(t, err)
	assert.False(t, readiness.Document1Ready)
	assert.ElementsMatch(t, []uint{doc1.ID, doc2.ID}, readiness.MissingExtraction)

	// 队列消费完成后两边都就绪
	_, err = f.queue.Drain(ctx, 0)
	require.NoError(t, err)

	readiness, err = f.service.ValidateForComparison(ctx, "u1", doc1.ID, doc2.ID)
	require.NoError(t, err)
	assert.True(t, readiness.Document1Ready)
	assert.True(t, readiness.Document2Ready)
	assert.Empty(t, readiness.MissingExtraction)
}

func TestStreamReturnsContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := upload(t, f, "a.txt", "streamable body").Document

	reader, contentType, name, err := f.service.Stream(ctx, "u1", doc.ID)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "a.txt", name)
	assert.Contains(t, contentType, "text/plain")
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "streamable body", string(data))
}
