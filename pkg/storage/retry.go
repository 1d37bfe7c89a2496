package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wenhao0221/contract-compare/pkg/logger"
)

// RetryPolicy 有界重试加递增退避
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 200 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 5 * time.Second
	}
	return p
}

// retryStorage 给每个存储操作套上重试策略的包装。永久性错误
//（不存在、不支持、非法 key）直接上抛；瞬时错误按退避重试，
// 用尽后返回最后一次的错误并标注尝试次数和总耗时。
type retryStorage struct {
	inner  Storage
	policy RetryPolicy
	logger logger.Logger
}

// WithRetry wraps a backend with the given retry policy.
func WithRetry(inner Storage, policy RetryPolicy, log logger.Logger) Storage {
	return &retryStorage{
		inner:  inner,
		policy: policy.normalize(),
		logger: log,
	}
}

// permanent 判断错误是否不值得重试
func permanent(err error) bool {
	if errors.Is(err, ErrObjectNotFound) ||
		errors.Is(err, ErrSignedURLUnsupported) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	// 非法 key 和拒绝访问不会因为重试变好
	msg := err.Error()
	return strings.Contains(msg, "invalid storage key") ||
		strings.Contains(msg, "AccessDenied") ||
		strings.Contains(msg, "access denied")
}

func (r *retryStorage) do(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	backoff := r.policy.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if permanent(lastErr) {
			return lastErr
		}

		if attempt == r.policy.MaxAttempts {
			break
		}

		r.logger.Warn("Storage operation failed, retrying",
			logger.String("operation", op),
			logger.Int("attempt", attempt),
			logger.Duration("backoff", backoff),
			logger.Error(lastErr),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > r.policy.MaxBackoff {
			backoff = r.policy.MaxBackoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts in %s: %w",
		op, r.policy.MaxAttempts, time.Since(start).Round(time.Millisecond), lastErr)
}

// Put implements Storage.Put. The payload is buffered once so every
// attempt replays the same bytes.
func (r *retryStorage) Put(ctx context.Context, key string, reader io.Reader, opts PutOptions) (*StoredObject, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer payload for %s: %w", key, err)
	}

	var stored *StoredObject
	err = r.do(ctx, "put", func() error {
		var opErr error
		stored, opErr = r.inner.Put(ctx, key, bytes.NewReader(data), opts)
		return opErr
	})
	return stored, err
}

// Get implements Storage.Get
func (r *retryStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	var (
		rc          io.ReadCloser
		contentType string
	)
	err := r.do(ctx, "get", func() error {
		var opErr error
		rc, contentType, opErr = r.inner.Get(ctx, key)
		return opErr
	})
	return rc, contentType, err
}

// Delete implements Storage.Delete
func (r *retryStorage) Delete(ctx context.Context, key string) error {
	return r.do(ctx, "delete", func() error {
		return r.inner.Delete(ctx, key)
	})
}

// Exists implements Storage.Exists
func (r *retryStorage) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.do(ctx, "exists", func() error {
		var opErr error
		exists, opErr = r.inner.Exists(ctx, key)
		return opErr
	})
	return exists, err
}

// Head implements Storage.Head
func (r *retryStorage) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	var info *ObjectInfo
	err := r.do(ctx, "head", func() error {
		var opErr error
		info, opErr = r.inner.Head(ctx, key)
		return opErr
	})
	return info, err
}

// List implements Storage.List
func (r *retryStorage) List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := r.do(ctx, "list", func() error {
		var opErr error
		objects, opErr = r.inner.List(ctx, prefix, limit)
		return opErr
	})
	return objects, err
}

// Copy implements Storage.Copy
func (r *retryStorage) Copy(ctx context.Context, src, dst string) error {
	return r.do(ctx, "copy", func() error {
		return r.inner.Copy(ctx, src, dst)
	})
}

// SignedURL implements Storage.SignedURL
func (r *retryStorage) SignedURL(ctx context.Context, key string, op Operation, ttl time.Duration) (string, error) {
	var u string
	err := r.do(ctx, "signed_url", func() error {
		var opErr error
		u, opErr = r.inner.SignedURL(ctx, key, op, ttl)
		return opErr
	})
	return u, err
}

// SupportsSignedURLs implements Storage.SupportsSignedURLs
func (r *retryStorage) SupportsSignedURLs() bool {
	return r.inner.SupportsSignedURLs()
}
