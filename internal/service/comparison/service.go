package comparison

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wenhao0221/contract-compare/internal/compare"
	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/internal/repository"
	"github.com/wenhao0221/contract-compare/pkg/logger"
)

// Service 比对请求的编排层：校验输入、按无序对去重、跑选定的
// 比对策略、把结果固化成 Comparison 记录。
type Service struct {
	comparisons repository.ComparisonRepository
	documents   repository.DocumentRepository
	statistical compare.Comparator
	ai          compare.Comparator
	logger      logger.Logger
}

// NewService creates the comparison service. ai may be nil when the
// AI collaborator is not configured.
func NewService(
	repos *repository.Repositories,
	statistical compare.Comparator,
	ai compare.Comparator,
	log logger.Logger,
) *Service {
	return &Service{
		comparisons: repos.Comparisons,
		documents:   repos.Documents,
		statistical: statistical,
		ai:          ai,
		logger:      log,
	}
}

// Request 一次比对请求
type Request struct {
	UserID      string
	Document1ID uint
	Document2ID uint
	// Method compare.MethodStatistical 或 compare.MethodAI，
	// 空值取统计比对
	Method string
}

func (s *Service) comparator(method string) (compare.Comparator, string, error) {
	switch method {
	case "", compare.MethodStatistical:
		return s.statistical, compare.MethodStatistical, nil
	case compare.MethodAI:
		if s.ai == nil {
			return nil, "", fmt.Errorf("%w: ai comparison is not configured", models.ErrValidation)
		}
		return s.ai, compare.MethodAI, nil
	default:
		return nil, "", fmt.Errorf("%w: unknown comparison method %q", models.ErrValidation, method)
	}
}

// Compare 执行一次比对。失败也返回一条 Error 状态的 Comparison
// 记录而不是裸错误，历史始终可查。
func (s *Service) Compare(ctx context.Context, req *Request) (*models.Comparison, error) {
	comparator, method, err := s.comparator(req.Method)
	if err != nil {
		return nil, err
	}

	if req.Document1ID == req.Document2ID {
		return nil, models.NewValidationError("documents", "cannot compare a document with itself")
	}

	doc1, err := s.ownedDocument(ctx, req.UserID, req.Document1ID)
	if err != nil {
		return nil, err
	}
	doc2, err := s.ownedDocument(ctx, req.UserID, req.Document2ID)
	if err != nil {
		return nil, err
	}

	var missing []uint
	if !doc1.HasExtractedText() {
		missing = append(missing, doc1.ID)
	}
	if !doc2.HasExtractedText() {
		missing = append(missing, doc2.ID)
	}
	if len(missing) > 0 {
		return nil, models.NewValidationError("documents",
			fmt.Sprintf("text extraction is not finished for documents %v", missing))
	}

	// 无序对去重：同方法的已完成结果直接返回，旧的失败或
	// 过期记录让位给新比对
	if existing, err := s.comparisons.FindByPair(ctx, doc1.ID, doc2.ID); err == nil {
		if existing.Status == models.ComparisonCompleted && existing.Method == method {
			s.logger.Info("Comparison pair already completed",
				logger.Uint("comparisonId", existing.ID),
			)
			return existing, nil
		}
		if err := s.comparisons.Delete(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to supersede comparison %d: %w", existing.ID, err)
		}
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	cmp := &models.Comparison{
		Document1ID: doc1.ID,
		Document2ID: doc2.ID,
		UserID:      req.UserID,
		Status:      models.ComparisonProcessing,
		Method:      method,
	}
	if err := s.comparisons.Create(ctx, cmp); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := comparator.Compare(ctx, doc1.ExtractedText, doc2.ExtractedText)
	cmp.ProcessingMs = time.Since(start).Milliseconds()

	if err != nil {
		// 上游失败固化为 Error 记录，消息保留，不退回统计策略
		cmp.Status = models.ComparisonError
		cmp.ErrorMessage = err.Error()
		if updErr := s.comparisons.Update(ctx, cmp); updErr != nil {
			s.logger.Error("Failed to persist comparison error",
				logger.Uint("comparisonId", cmp.ID),
				logger.Error(updErr),
			)
		}
		s.logger.Warn("Comparison failed",
			logger.Uint("comparisonId", cmp.ID),
			logger.String("method", method),
			logger.Error(err),
		)
		return cmp, nil
	}

	cmp.Status = models.ComparisonCompleted
	cmp.SimilarityScore = result.SimilarityScore
	cmp.SimilarityLabel = result.SimilarityLabel
	cmp.Summary = result.Summary
	cmp.RiskLevel = result.RiskLevel
	cmp.KeyDifferences = result.Differences
	cmp.Suggestions = result.Suggestions
	if err := s.comparisons.Update(ctx, cmp); err != nil {
		return nil, fmt.Errorf("comparison finished but result not persisted: %w", err)
	}

	s.logger.Info("Comparison completed",
		logger.Uint("comparisonId", cmp.ID),
		logger.String("method", method),
		logger.Float64("similarity", cmp.SimilarityScore),
		logger.Int64("elapsedMs", cmp.ProcessingMs),
	)
	return cmp, nil
}

func (s *Service) ownedDocument(ctx context.Context, userID string, id uint) (*models.Document, error) {
	doc, err := s.documents.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, fmt.Errorf("document %d: %w", id, models.ErrNotFound)
	}
	return doc, nil
}

// Get 按属主取一条比对记录
func (s *Service) Get(ctx context.Context, userID string, id uint) (*models.Comparison, error) {
	cmp, err := s.comparisons.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cmp.UserID != userID {
		return nil, fmt.Errorf("comparison %d: %w", id, models.ErrNotFound)
	}
	return cmp, nil
}

// List 该用户的全部比对记录，新的在前
func (s *Service) List(ctx context.Context, userID string) ([]*models.Comparison, error) {
	return s.comparisons.FindByUser(ctx, userID)
}

// Delete 删除一条比对记录
func (s *Service) Delete(ctx context.Context, userID string, id uint) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.comparisons.Delete(ctx, id)
}
