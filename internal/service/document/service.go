package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/internal/queue"
	"github.com/wenhao0221/contract-compare/internal/repository"
	"github.com/wenhao0221/contract-compare/pkg/logger"
	"github.com/wenhao0221/contract-compare/pkg/storage"
)

// DrainNotifier 入队后用来踢一脚队列消费方的通知口。通知失败
// 不影响上传结果，任务仍然躺在库里等下一次显式触发。
type DrainNotifier interface {
	NotifyDrain(ctx context.Context) error
}

// Config 文档服务配置
type Config struct {
	MaxFileSize       int64
	AllowedExtensions []string
	SignedURLTTL      time.Duration
	// StreamPathFormat 本地后端的内部下载路径模板，%d 填文档 id
	StreamPathFormat string
}

// DefaultConfig returns the service defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxFileSize:       50 * 1024 * 1024, // 50MB
		AllowedExtensions: []string{".pdf", ".docx", ".txt", ".md"},
		SignedURLTTL:      15 * time.Minute,
		StreamPathFormat:  "/api/v1/documents/%d/content",
	}
}

// Service 上传去重、读视图和删除保护的编排层
type Service struct {
	documents   repository.DocumentRepository
	comparisons repository.ComparisonRepository
	storage     storage.Storage
	queue       *queue.Queue
	notifier    DrainNotifier
	logger      logger.Logger
	config      *Config
}

// NewService creates the document service. notifier may be nil.
func NewService(
	repos *repository.Repositories,
	store storage.Storage,
	q *queue.Queue,
	notifier DrainNotifier,
	log logger.Logger,
	cfg *Config,
) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Service{
		documents:   repos.Documents,
		comparisons: repos.Comparisons,
		storage:     store,
		queue:       q,
		notifier:    notifier,
		logger:      log,
		config:      cfg,
	}
}

// UploadInput 一次上传的输入
type UploadInput struct {
	Filename   string
	Size       int64
	Reader     io.Reader
	UserID     string
	IsStandard bool
}

// UploadResult 上传结果。Duplicate 为真表示相同内容已经入库，
// 返回的是已有文档。
type UploadResult struct {
	Document  *models.Document `json:"document"`
	Duplicate bool             `json:"duplicate"`
}

// Upload 校验、算内容哈希、按哈希去重，未命中时落 blob、建行、
// 入抽取任务队列
func (s *Service) Upload(ctx context.Context, in *UploadInput) (*UploadResult, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(in.Reader, s.config.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.config.MaxFileSize {
		return nil, models.NewValidationError("size",
			fmt.Sprintf("file exceeds maximum of %d bytes", s.config.MaxFileSize))
	}

	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])

	// 内容寻址：同样的字节第二次上传解析到已有行
	if existing, err := s.documents.FindByHash(ctx, contentHash); err == nil {
		s.logger.Info("Duplicate upload resolved to existing document",
			logger.Uint("documentId", existing.ID),
			logger.String("hash", contentHash),
		)
		return &UploadResult{Document: existing, Duplicate: true}, nil
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	key := fmt.Sprintf("documents/%s%s", uuid.New().String(), ext)

	stored, err := s.storage.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}

	doc := &models.Document{
		ContentHash:  contentHash,
		StorageKey:   stored.Key,
		OriginalName: in.Filename,
		FileSize:     int64(len(data)),
		UserID:       in.UserID,
		Status:       models.DocumentUploaded,
		IsStandard:   in.IsStandard,
		Metadata:     models.JSONMap{"extension": ext},
		UploadedAt:   time.Now(),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		// 并发上传撞了同一个哈希：另一个请求赢了，读回它的行
		if existing, findErr := s.documents.FindByHash(ctx, contentHash); findErr == nil {
			s.deleteBlobQuietly(ctx, stored.Key)
			return &UploadResult{Document: existing, Duplicate: true}, nil
		}
		s.deleteBlobQuietly(ctx, stored.Key)
		return nil, err
	}

	if _, err := s.queue.Enqueue(ctx, doc.ID, models.TaskExtractText, queue.EnqueueOptions{
		UserID:   in.UserID,
		Metadata: models.JSONMap{"filename": in.Filename},
	}); err != nil {
		return nil, fmt.Errorf("document stored but extraction not queued: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyDrain(ctx); err != nil {
			s.logger.Warn("Queue drain notification failed", logger.Error(err))
		}
	}

	s.logger.Info("Document uploaded",
		logger.Uint("documentId", doc.ID),
		logger.String("filename", in.Filename),
		logger.Int64("size", doc.FileSize),
	)
	return &UploadResult{Document: doc}, nil
}

// UploadBatch 并发处理多个上传
func (s *Service) UploadBatch(ctx context.Context, inputs []*UploadInput) ([]*UploadResult, error) {
	results := make([]*UploadResult, 0, len(inputs))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, in := range inputs {
		in := in
		g.Go(func() error {
			res, err := s.Upload(ctx, in)
			if err != nil {
				return fmt.Errorf("upload %s: %w", in.Filename, err)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *Service) deleteBlobQuietly(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn("Orphaned blob not removed",
			logger.String("key", key),
			logger.Error(err),
		)
	}
}

func (s *Service) validate(in *UploadInput) error {
	if in.Filename == "" {
		return models.NewValidationError("filename", "filename is required")
	}
	if in.UserID == "" {
		return models.NewValidationError("user_id", "user id is required")
	}
	if in.Size > s.config.MaxFileSize {
		return models.NewValidationError("size",
			fmt.Sprintf("file exceeds maximum of %d bytes", s.config.MaxFileSize))
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	for _, allowed := range s.config.AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return models.NewValidationError("extension",
		fmt.Sprintf("file type %q is not allowed", ext))
}

// ListOptions 分页列表参数
type ListOptions struct {
	Page     int
	PageSize int
	// Type 过滤：standard、third_party 或空（全部）
	Type   string
	Search string
}

// DocumentPage 一页文档和总量信息
type DocumentPage struct {
	Documents []*models.Document `json:"documents"`
	Total     int                `json:"total"`
	Page      int                `json:"page"`
	PageSize  int                `json:"pageSize"`
	PageCount int                `json:"pageCount"`
}

// ListDocuments 按标准/第三方标记和文件名子串过滤，上传时间
// 降序，切片分页
func (s *Service) ListDocuments(ctx context.Context, userID string, opts ListOptions) (*DocumentPage, error) {
	docs, err := s.documents.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	filtered := docs[:0:0]
	search := strings.ToLower(opts.Search)
	for _, doc := range docs {
		switch opts.Type {
		case "standard":
			if !doc.IsStandard {
				continue
			}
		case "third_party":
			if doc.IsStandard {
				continue
			}
		}
		if search != "" && !strings.Contains(strings.ToLower(doc.OriginalName), search) {
			continue
		}
		filtered = append(filtered, doc)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].UploadedAt.After(filtered[j].UploadedAt)
	})

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	total := len(filtered)
	pageCount := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &DocumentPage{
		Documents: filtered[start:end],
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
		PageCount: pageCount,
	}, nil
}

// GetDocument 按属主取文档
func (s *Service) GetDocument(ctx context.Context, userID string, id uint) (*models.Document, error) {
	doc, err := s.documents.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, fmt.Errorf("document %d: %w", id, models.ErrNotFound)
	}
	return doc, nil
}

// StorageInfo 文档对应 blob 的元数据
type StorageInfo struct {
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
	Exists      bool   `json:"exists"`
}

// EnhancedDocument 文档加下载地址和存储元数据的富视图
type EnhancedDocument struct {
	*models.Document
	DownloadURL     string       `json:"download_url"`
	DownloadSigned  bool         `json:"download_signed"`
	StorageInfo     *StorageInfo `json:"storage_info"`
	ComparisonCount int64        `json:"comparison_count"`
}

// GetEnhanced 组合下载 URL（远端后端给签名 URL，本地后端给内部
// 流式路径）、blob 元数据和关联比对数
func (s *Service) GetEnhanced(ctx context.Context, userID string, id uint) (*EnhancedDocument, error) {
	doc, err := s.GetDocument(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	enhanced := &EnhancedDocument{Document: doc}

	if s.storage.SupportsSignedURLs() {
		url, err := s.storage.SignedURL(ctx, doc.StorageKey, storage.OperationGet, s.config.SignedURLTTL)
		if err != nil {
			s.logger.Warn("Signed URL generation failed, falling back to stream path",
				logger.Uint("documentId", id),
				logger.Error(err),
			)
			enhanced.DownloadURL = fmt.Sprintf(s.config.StreamPathFormat, doc.ID)
		} else {
			enhanced.DownloadURL = url
			enhanced.DownloadSigned = true
		}
	} else {
		enhanced.DownloadURL = fmt.Sprintf(s.config.StreamPathFormat, doc.ID)
	}

	info := &StorageInfo{}
	if head, err := s.storage.Head(ctx, doc.StorageKey); err == nil {
		info.Size = head.Size
		info.ContentType = head.ContentType
		info.Exists = true
	}
	enhanced.StorageInfo = info

	if count, err := s.comparisons.CountByDocument(ctx, doc.ID); err == nil {
		enhanced.ComparisonCount = count
	}

	return enhanced, nil
}

// Stream 打开文档 blob 供内部下载端点转发
func (s *Service) Stream(ctx context.Context, userID string, id uint) (io.ReadCloser, string, string, error) {
	doc, err := s.GetDocument(ctx, userID, id)
	if err != nil {
		return nil, "", "", err
	}
	reader, contentType, err := s.storage.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, "", "", err
	}
	return reader, contentType, doc.OriginalName, nil
}

// InUseError 文档仍被比对引用时的删除拒绝
type InUseError struct {
	DocumentID uint
	Blockers   int64
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("document %d is referenced by %d comparison(s)", e.DocumentID, e.Blockers)
}

// Delete 删除文档。被比对引用时拒绝并报告数量；blob 删除是
// 尽力而为，存储失败不阻塞持久化行的移除。
func (s *Service) Delete(ctx context.Context, userID string, id uint) error {
	doc, err := s.GetDocument(ctx, userID, id)
	if err != nil {
		return err
	}

	blockers, err := s.comparisons.CountByDocument(ctx, id)
	if err != nil {
		return err
	}
	if blockers > 0 {
		return &InUseError{DocumentID: id, Blockers: blockers}
	}

	s.deleteBlobQuietly(ctx, doc.StorageKey)

	if err := s.documents.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Document deleted",
		logger.Uint("documentId", id),
		logger.String("userId", userID),
	)
	return nil
}

// SetStandard 切换基准文档标记
func (s *Service) SetStandard(ctx context.Context, userID string, id uint, standard bool) error {
	if _, err := s.GetDocument(ctx, userID, id); err != nil {
		return err
	}
	return s.documents.Update(ctx, id, &models.DocumentUpdate{IsStandard: &standard})
}

// Rename 修改展示名
func (s *Service) Rename(ctx context.Context, userID string, id uint, name string) error {
	if strings.TrimSpace(name) == "" {
		return models.NewValidationError("name", "display name is required")
	}
	if _, err := s.GetDocument(ctx, userID, id); err != nil {
		return err
	}
	return s.documents.Update(ctx, id, &models.DocumentUpdate{OriginalName: &name})
}

// ComparisonReadiness 两份文档可比对与否的检查结果
type ComparisonReadiness struct {
	Document1Ready    bool   `json:"document1_ready"`
	Document2Ready    bool   `json:"document2_ready"`
	MissingExtraction []uint `json:"missing_extraction,omitempty"`
}

// ValidateForComparison 确认两份文档都属于该用户并且都有抽取
// 文本，缺文本的 id 汇总在 MissingExtraction 里直接可用于报错
func (s *Service) ValidateForComparison(ctx context.Context, userID string, id1, id2 uint) (*ComparisonReadiness, error) {
	if id1 == id2 {
		return nil, models.NewValidationError("documents", "cannot compare a document with itself")
	}

	doc1, err := s.GetDocument(ctx, userID, id1)
	if err != nil {
		return nil, err
	}
	doc2, err := s.GetDocument(ctx, userID, id2)
	if err != nil {
		return nil, err
	}

	readiness := &ComparisonReadiness{
		Document1Ready: doc1.HasExtractedText(),
		Document2Ready: doc2.HasExtractedText(),
	}
	if !readiness.Document1Ready {
		readiness.MissingExtraction = append(readiness.MissingExtraction, id1)
	}
	if !readiness.Document2Ready {
		readiness.MissingExtraction = append(readiness.MissingExtraction, id2)
	}
	return readiness, nil
}
