package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"cv-ingest-go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinIO 保存规范化后的简历文本，便于事后核对模型输入
type MinIO struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

// NewMinIO 创建MinIO客户端并确保存储桶存在
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig, logger zerolog.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("MinIO endpoint 不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
	}
	if err := m.ensureBucketExists(ctx, cfg.Location); err != nil {
		return nil, err
	}

	logger.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.Bucket).Msg("MinIO 客户端初始化成功")
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, location string) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", m.bucket, err)
	}
	m.logger.Info().Str("bucket", m.bucket).Msg("已创建存储桶")
	return nil
}

// ArchiveObjectName 文本归档的对象键: <岗位>/<来源>/<文件名>.txt
func ArchiveObjectName(jobTitle, source, fileName string) string {
	base := strings.TrimSuffix(fileName, path.Ext(fileName)) + ".txt"
	return path.Join(sanitizeSegment(jobTitle), sanitizeSegment(source), sanitizeSegment(base))
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "/", "_"))
	if s == "" {
		return "_"
	}
	return s
}

// ArchiveText 上传规范化文本，返回对象键
func (m *MinIO) ArchiveText(ctx context.Context, objectName, text string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, objectName, strings.NewReader(text), int64(len(text)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.bucket, objectName, err)
	}
	return objectName, nil
}
