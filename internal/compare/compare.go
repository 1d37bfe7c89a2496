package compare

import (
	"context"

	"github.com/wenhao0221/contract-compare/internal/models"
)

// Method 比对策略标识
const (
	MethodStatistical = "statistical"
	MethodAI          = "ai"
)

// TextStats 单个文档的统计画像
type TextStats struct {
	WordCount      int `json:"wordCount"`
	CharCount      int `json:"charCount"`
	SentenceCount  int `json:"sentenceCount"`
	ParagraphCount int `json:"paragraphCount"`
	SectionCount   int `json:"sectionCount"`
}

// Result 一次比对的结构化结果。两个策略产出同一形状，
// 调用方不需要按策略分支。
type Result struct {
	SimilarityScore float64               `json:"similarityScore"`
	SimilarityLabel string                `json:"similarityLabel"`
	Summary         string                `json:"summary"`
	RiskLevel       string                `json:"riskLevel,omitempty"`
	Confidence      float64               `json:"confidence"`
	Method          string                `json:"method"`
	Differences     models.DifferenceList `json:"differences"`
	Suggestions     models.StringList     `json:"suggestions,omitempty"`
	Stats1          *TextStats            `json:"stats1,omitempty"`
	Stats2          *TextStats            `json:"stats2,omitempty"`
}

// Comparator 把两段文本变成结构化差异的策略接口
type Comparator interface {
	Compare(ctx context.Context, text1, text2 string) (*Result, error)
}
