package models

import (
	"errors"
	"fmt"
)

// 领域错误分类。下层（存储、持久化）只负责包装后原样上抛，
// 服务层把它们翻译成状态迁移再继续传播。
var (
	// ErrValidation 输入不合法：超大文件、不支持的类型、缺字段。不重试。
	ErrValidation = errors.New("validation failed")

	// ErrNotFound 未知 id 或缺失的对象。
	ErrNotFound = errors.New("not found")

	// ErrDuplicate 重复的内容哈希或重复的比对文档对。
	ErrDuplicate = errors.New("already exists")

	// ErrUnavailable 后端连接类瞬时故障，调用方可重试。
	ErrUnavailable = errors.New("backend unavailable")

	// ErrUpstream 外部协作方（抽取、AI 比对）失败。引擎不重试。
	ErrUpstream = errors.New("upstream service error")
)

// ValidationError 带字段信息的输入校验错误
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a field-scoped validation error.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
