package models

import (
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	TaskExtractText TaskType = "extract_text"
	TaskCompare     TaskType = "compare"
	TaskExport      TaskType = "export"
)

// TaskStatus 任务生命周期状态
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// DefaultMaxAttempts 任务的默认重试上限
const DefaultMaxAttempts = 3

// QueueTask 一条待处理的后台任务。attempts 到达 max_attempts 后
// 再次失败即终态 Failed，不会回到 Pending。
type QueueTask struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	DocumentID   uint       `gorm:"not null;index" json:"document_id"`
	Document     *Document  `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
	Type         TaskType   `gorm:"size:32;not null" json:"type"`
	Status       TaskStatus `gorm:"size:20;default:'pending';index" json:"status"`
	Priority     int        `gorm:"default:0" json:"priority"`
	Attempts     int        `gorm:"default:0" json:"attempts"`
	MaxAttempts  int        `gorm:"default:3" json:"max_attempts"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	UserID       string     `gorm:"size:64;index" json:"user_id"`
	Metadata     JSONMap    `gorm:"type:text" json:"metadata"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Due reports whether the task is eligible to run at the given time.
func (t *QueueTask) Due(now time.Time) bool {
	return t.ScheduledAt == nil || !t.ScheduledAt.After(now)
}

// Terminal reports whether the task can no longer change state.
func (t *QueueTask) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed || t.Status == TaskCancelled
}
