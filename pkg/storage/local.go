package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wenhao0221/contract-compare/pkg/logger"
)

// LocalConfig 文件系统后端配置
type LocalConfig struct {
	// BaseDir blob 根目录，key 映射为它下面的相对路径
	BaseDir string
}

// LocalStorage 把 key 映射到基目录下相对路径的文件系统后端。
// 不支持签名 URL，调用方应改用内部流式下载端点。
type LocalStorage struct {
	baseDir string
	logger  logger.Logger
}

// NewLocalStorage creates a filesystem-rooted backend.
func NewLocalStorage(cfg *LocalConfig, log logger.Logger) (*LocalStorage, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage: base directory is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: cfg.BaseDir, logger: log}, nil
}

// resolve 把 key 解析成基目录下的安全路径
func (l *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.baseDir, clean), nil
}

// Put implements Storage.Put
func (l *LocalStorage) Put(ctx context.Context, key string, reader io.Reader, opts PutOptions) (*StoredObject, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create object directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create object file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, reader)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write object: %w", err)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(key))
	}

	return &StoredObject{Key: key, Size: size, ContentType: contentType}, nil
}

// Get implements Storage.Get
func (l *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("key %s: %w", key, ErrObjectNotFound)
		}
		return nil, "", fmt.Errorf("failed to open object: %w", err)
	}

	return f, mime.TypeByExtension(filepath.Ext(key)), nil
}

// Delete implements Storage.Delete
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("key %s: %w", key, ErrObjectNotFound)
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists implements Storage.Exists
func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	path, err := l.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

// Head implements Storage.Head
func (l *LocalStorage) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("key %s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         info.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(key)),
		LastModified: info.ModTime(),
	}, nil
}

// List implements Storage.List
func (l *LocalStorage) List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := filepath.Walk(l.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		objects = append(objects, ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			ContentType:  mime.TypeByExtension(filepath.Ext(key)),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key < objects[j].Key
	})
	if limit > 0 && len(objects) > limit {
		objects = objects[:limit]
	}
	return objects, nil
}

// Copy implements Storage.Copy
func (l *LocalStorage) Copy(ctx context.Context, src, dst string) error {
	reader, contentType, err := l.Get(ctx, src)
	if err != nil {
		return err
	}
	defer reader.Close()

	if _, err := l.Put(ctx, dst, reader, PutOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// SignedURL implements Storage.SignedURL; the filesystem backend has
// no notion of signed access and reports unsupported instead of failing.
func (l *LocalStorage) SignedURL(ctx context.Context, key string, op Operation, ttl time.Duration) (string, error) {
	return "", ErrSignedURLUnsupported
}

// SupportsSignedURLs implements Storage.SupportsSignedURLs
func (l *LocalStorage) SupportsSignedURLs() bool {
	return false
}
