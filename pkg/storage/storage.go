package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wenhao0221/contract-compare/pkg/logger"
)

// Kind 存储后端类型
type Kind string

const (
	KindLocal Kind = "local"
	KindMinio Kind = "minio"
	KindS3    Kind = "s3"
)

// Operation 签名 URL 的目标操作
type Operation string

const (
	OperationGet Operation = "get"
	OperationPut Operation = "put"
)

var (
	// ErrObjectNotFound key 下没有对象
	ErrObjectNotFound = errors.New("object not found")

	// ErrSignedURLUnsupported 后端不支持签名 URL。本地文件系统
	// 后端必须返回它而不是报错，调用方改用内部流式下载路径。
	ErrSignedURLUnsupported = errors.New("signed urls not supported by this backend")
)

// PutOptions 写入对象时的附加选项
type PutOptions struct {
	ContentType string
}

// StoredObject 写入成功后的对象回执
type StoredObject struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
	ETag        string `json:"etag,omitempty"`
}

// ObjectInfo 对象元数据
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	LastModified time.Time `json:"lastModified"`
	ETag         string    `json:"etag,omitempty"`
}

// Storage 统一的 blob 操作接口。除 Copy 外任何操作的副作用都
// 限制在被寻址的 key 上。
type Storage interface {
	Put(ctx context.Context, key string, reader io.Reader, opts PutOptions) (*StoredObject, error)
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error)
	Copy(ctx context.Context, src, dst string) error
	SignedURL(ctx context.Context, key string, op Operation, ttl time.Duration) (string, error)
	// SupportsSignedURLs 显式声明能力，调用方不做类型嗅探
	SupportsSignedURLs() bool
}

// Config 各后端的配置集合，按 Kind 取用对应的段
type Config struct {
	Kind  Kind
	Local LocalConfig
	Minio MinioConfig
	S3    S3Config
	Retry RetryPolicy
}

// NewStorage 按配置选择后端并套上重试包装的工厂方法
func NewStorage(cfg *Config, log logger.Logger) (Storage, error) {
	var (
		backend Storage
		err     error
	)
	switch cfg.Kind {
	case KindLocal:
		backend, err = NewLocalStorage(&cfg.Local, log)
	case KindMinio:
		backend, err = NewMinioStorage(&cfg.Minio, log)
	case KindS3:
		backend, err = NewS3Storage(&cfg.S3, log)
	default:
		return nil, fmt.Errorf("unsupported storage kind: %s", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(backend, cfg.Retry, log), nil
}
