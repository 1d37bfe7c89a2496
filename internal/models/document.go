package models

import (
	"time"
)

// DocumentStatus 文档生命周期状态
type DocumentStatus string

const (
	DocumentUploaded   DocumentStatus = "uploaded"
	DocumentProcessing DocumentStatus = "processing"
	DocumentProcessed  DocumentStatus = "processed"
	DocumentError      DocumentStatus = "error"
)

// Document 已入库的合同文档。ContentHash 全局唯一，相同内容的
// 第二次上传必须解析到已有行而不是新建一行。
type Document struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	ContentHash   string         `gorm:"size:64;uniqueIndex;not null" json:"content_hash"`
	StorageKey    string         `gorm:"size:512;not null" json:"storage_key"`
	OriginalName  string         `gorm:"size:255;not null" json:"original_name"`
	FileSize      int64          `json:"file_size"`
	UserID        string         `gorm:"size:64;index;not null" json:"user_id"`
	Status        DocumentStatus `gorm:"size:20;default:'uploaded'" json:"status"`
	IsStandard    bool           `gorm:"default:false" json:"is_standard"`
	ExtractedText string         `gorm:"type:text" json:"extracted_text,omitempty"`
	Metadata      JSONMap        `gorm:"type:text" json:"metadata"`
	UploadedAt    time.Time      `gorm:"autoCreateTime" json:"uploaded_at"`
}

// HasExtractedText reports whether extraction has produced usable text.
func (d *Document) HasExtractedText() bool {
	return d.ExtractedText != ""
}

// DocumentUpdate 文档的部分更新，nil 字段保持不变
type DocumentUpdate struct {
	Status        *DocumentStatus
	ExtractedText *string
	IsStandard    *bool
	OriginalName  *string
	Metadata      JSONMap
}
