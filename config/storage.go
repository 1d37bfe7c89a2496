package config

import (
	"sync"

	"github.com/wenhao0221/contract-compare/pkg/storage"
)

var (
	storageOnce   sync.Once
	storageConfig *storage.Config
)

// GetStorageConfig 按 STORAGE_KIND 装配存储后端配置，
// 默认本地磁盘
func GetStorageConfig() *storage.Config {
	storageOnce.Do(func() {
		loadEnv()
		storageConfig = &storage.Config{
			Kind: storage.Kind(getEnv("STORAGE_KIND", string(storage.KindLocal))),
			Local: storage.LocalConfig{
				BaseDir: getEnv("STORAGE_LOCAL_DIR", "./data/blobs"),
			},
			Minio: storage.MinioConfig{
				Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
				AccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey:  getEnv("MINIO_SECRET_KEY", ""),
				UseSSL:     getEnvBool("MINIO_USE_SSL", false),
				Region:     getEnv("MINIO_REGION", ""),
				BucketName: getEnv("MINIO_BUCKET_NAME", "contracts"),
			},
			S3: storage.S3Config{
				BucketName: getEnv("AWS_S3_BUCKET_NAME", "contracts"),
				Region:     getEnv("AWS_REGION", "us-east-1"),
				Endpoint:   getEnv("AWS_ENDPOINT", ""),
				AccessKey:  getEnv("AWS_ACCESS_KEY", ""),
				SecretKey:  getEnv("AWS_SECRET_KEY", ""),
			},
			Retry: storage.DefaultRetryPolicy(),
		}
	})
	return storageConfig
}
