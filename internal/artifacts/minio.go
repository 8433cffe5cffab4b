package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig — параметры подключения к object storage.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
	Logger    *slog.Logger
}

// MinIOUploader публикует итоговые артефакты в S3-совместимое хранилище.
type MinIOUploader struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewMinIOUploader создаёт uploader. Бакет создаётся при первой загрузке.
func NewMinIOUploader(cfg MinIOConfig) (*MinIOUploader, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &MinIOUploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// Upload загружает файл как <prefix>/<task-id>/<basename> и возвращает s3:// URI.
func (u *MinIOUploader) Upload(ctx context.Context, taskID uuid.UUID, localPath string) (string, error) {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return "", fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("make bucket: %w", err)
		}
	}

	objectName := ObjectName(u.prefix, taskID, localPath)
	info, err := u.client.FPutObject(ctx, u.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: ContentType(localPath),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	u.logger.Info("artifact uploaded",
		"task_id", taskID,
		"bucket", u.bucket,
		"object", objectName,
		"size", info.Size,
	)

	return fmt.Sprintf("s3://%s/%s", u.bucket, objectName), nil
}

// ObjectName строит имя объекта для артефакта task.
func ObjectName(prefix string, taskID uuid.UUID, localPath string) string {
	name := taskID.String() + "/" + filepath.Base(localPath)
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// ContentType определяет MIME тип артефакта по расширению.
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
