package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ComparisonStatus 比对生命周期状态
type ComparisonStatus string

const (
	ComparisonPending    ComparisonStatus = "pending"
	ComparisonProcessing ComparisonStatus = "processing"
	ComparisonCompleted  ComparisonStatus = "completed"
	ComparisonError      ComparisonStatus = "error"
)

// Severity 差异严重程度
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Difference 两份文档之间的一处关键差异。统计比对和 AI 比对
// 共用同一结构，调用方不需要区分结果来自哪个策略。
type Difference struct {
	Section        string   `json:"section"`
	Classification string   `json:"classification,omitempty"`
	Severity       Severity `json:"severity"`
	Excerpt1       string   `json:"excerpt1"`
	Excerpt2       string   `json:"excerpt2"`
	Suggestion     string   `json:"suggestion,omitempty"`
}

// DifferenceList 以 JSON 存储的差异列表
type DifferenceList []Difference

// Value implements driver.Valuer
func (l DifferenceList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal differences: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (l *DifferenceList) Scan(value interface{}) error {
	if value == nil {
		*l = DifferenceList{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported differences column type %T", value)
	}

	if len(data) == 0 {
		*l = DifferenceList{}
		return nil
	}
	return json.Unmarshal(data, l)
}

// Comparison 一次两文档比对的持久化结果。无序对 (Document1ID,
// Document2ID) 唯一：(A,B) 与 (B,A) 是同一次比对。
type Comparison struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	Document1ID     uint             `gorm:"not null;uniqueIndex:idx_comparison_pair" json:"document1_id"`
	Document2ID     uint             `gorm:"not null;uniqueIndex:idx_comparison_pair" json:"document2_id"`
	Document1       *Document        `gorm:"foreignKey:Document1ID;constraint:OnDelete:CASCADE" json:"document1,omitempty"`
	Document2       *Document        `gorm:"foreignKey:Document2ID;constraint:OnDelete:CASCADE" json:"document2,omitempty"`
	UserID          string           `gorm:"size:64;index;not null" json:"user_id"`
	Status          ComparisonStatus `gorm:"size:20;default:'pending'" json:"status"`
	Method          string           `gorm:"size:32" json:"method"`
	SimilarityScore float64          `json:"similarity_score"`
	SimilarityLabel string           `gorm:"size:32" json:"similarity_label,omitempty"`
	Summary         string           `gorm:"type:text" json:"summary,omitempty"`
	RiskLevel       string           `gorm:"size:16" json:"risk_level,omitempty"`
	KeyDifferences  DifferenceList   `gorm:"type:text" json:"key_differences"`
	Suggestions     StringList       `gorm:"type:text" json:"suggestions,omitempty"`
	ErrorMessage    string           `gorm:"type:text" json:"error_message,omitempty"`
	ProcessingMs    int64            `json:"processing_ms"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// NormalizedPair 返回排好序的文档对，小 id 在前。对的唯一性
// 建立在这个规范化形式上。
func NormalizedPair(id1, id2 uint) (uint, uint) {
	if id2 < id1 {
		return id2, id1
	}
	return id1, id2
}
