package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/wenhao0221/contract-compare/pkg/logger"
)

// MinioConfig MinIO 后端配置
type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Region     string
	BucketName string
}

// MinioStorage 把 key 映射到 bucket 对象名的远端后端
type MinioStorage struct {
	client     *minio.Client
	bucketName string
	logger     logger.Logger
}

// NewMinioStorage creates the MinIO backend, creating the bucket when missing.
func NewMinioStorage(cfg *MinioConfig, log logger.Logger) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(context.Background(), cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		err = client.MakeBucket(context.Background(), cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioStorage{
		client:     client,
		bucketName: cfg.BucketName,
		logger:     log,
	}, nil
}

func minioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject"
}

// Put implements Storage.Put
func (m *MinioStorage) Put(ctx context.Context, key string, reader io.Reader, opts PutOptions) (*StoredObject, error) {
	info, err := m.client.PutObject(ctx, m.bucketName, key, reader, -1, minio.PutObjectOptions{
		ContentType: opts.ContentType,
	})
	if err != nil {
		m.logger.Error("Failed to store object to MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to store object: %w", err)
	}

	return &StoredObject{
		Key:         key,
		Size:        info.Size,
		ContentType: opts.ContentType,
		ETag:        info.ETag,
	}, nil
}

// Get implements Storage.Get
func (m *MinioStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get object: %w", err)
	}

	// GetObject 是惰性的，Stat 才能发现对象不存在
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minioNotFound(err) {
			return nil, "", fmt.Errorf("key %s: %w", key, ErrObjectNotFound)
		}
		return nil, "", fmt.Errorf("failed to get object: %w", err)
	}

	return obj, stat.ContentType, nil
}

// Delete implements Storage.Delete
func (m *MinioStorage) Delete(ctx context.Context, key string) error {
	err := m.client.RemoveObject(ctx, m.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil {
		m.logger.Error("Failed to delete object from MinIO",
			logger.String("bucket", m.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists implements Storage.Exists
func (m *MinioStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		if minioNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

// Head implements Storage.Head
func (m *MinioStorage) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	stat, err := m.client.StatObject(ctx, m.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		if minioNotFound(err) {
			return nil, fmt.Errorf("key %s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
		ETag:         stat.ETag,
	}, nil
}

// List implements Storage.List
func (m *MinioStorage) List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error) {
	objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var objects []ObjectInfo
	for obj := range objectCh {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
			ETag:         obj.ETag,
		})
		if limit > 0 && len(objects) >= limit {
			break
		}
	}
	return objects, nil
}

// Copy implements Storage.Copy
func (m *MinioStorage) Copy(ctx context.Context, src, dst string) error {
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.bucketName, Object: dst},
		minio.CopySrcOptions{Bucket: m.bucketName, Object: src},
	)
	if err != nil {
		if minioNotFound(err) {
			return fmt.Errorf("key %s: %w", src, ErrObjectNotFound)
		}
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// SignedURL implements Storage.SignedURL
func (m *MinioStorage) SignedURL(ctx context.Context, key string, op Operation, ttl time.Duration) (string, error) {
	var (
		u   *url.URL
		err error
	)
	switch op {
	case OperationGet:
		u, err = m.client.PresignedGetObject(ctx, m.bucketName, key, ttl, url.Values{})
	case OperationPut:
		u, err = m.client.PresignedPutObject(ctx, m.bucketName, key, ttl)
	default:
		return "", fmt.Errorf("unsupported signed url operation: %s", op)
	}
	if err != nil {
		return "", fmt.Errorf("failed to presign %s for %s: %w", op, key, err)
	}
	return u.String(), nil
}

// SupportsSignedURLs implements Storage.SupportsSignedURLs
func (m *MinioStorage) SupportsSignedURLs() bool {
	return true
}
