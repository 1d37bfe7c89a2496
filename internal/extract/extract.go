package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/pkg/logger"
)

// Extraction 一次文本抽取的结果
type Extraction struct {
	Text        string    `json:"text"`
	PageCount   int       `json:"pageCount"`
	Confidence  float64   `json:"confidence"`
	Method      string    `json:"method"`
	ExtractedAt time.Time `json:"extractedAt"`
}

// Extractor 文本抽取协作方。不支持的格式必须返回描述性错误，
// 绝不能用空文本充当成功。
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) (*Extraction, error)
}

// Service 按扩展名分发到具体抽取器
type Service struct {
	logger logger.Logger
}

// NewService creates the extraction service.
func NewService(log logger.Logger) *Service {
	return &Service{logger: log}
}

// Extract implements Extractor.
func (s *Service) Extract(ctx context.Context, data []byte, filename string) (*Extraction, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	var (
		result *Extraction
		err    error
	)
	switch ext {
	case ".pdf":
		result, err = extractPDF(ctx, data)
	case ".docx":
		result, err = extractDOCX(data)
	case ".txt", ".md":
		result, err = extractTXT(data)
	default:
		return nil, fmt.Errorf("%w: unsupported file format %q", models.ErrUpstream, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUpstream, err)
	}

	if strings.TrimSpace(result.Text) == "" {
		return nil, fmt.Errorf("%w: no extractable text in %s", models.ErrUpstream, filename)
	}

	result.ExtractedAt = time.Now()
	s.logger.Info("Text extracted",
		logger.String("filename", filename),
		logger.String("method", result.Method),
		logger.Int("pages", result.PageCount),
		logger.Int("chars", len(result.Text)),
	)
	return result, nil
}
