package storage

import (
	"context"
	"fmt"

	"cv-ingest-go/internal/config"

	"github.com/rs/zerolog"
)

// Storage 存储管理器，聚合所有存储相关依赖。
// Lark 是唯一必需的组件，其余按配置开关启用，未启用时为 nil。
type Storage struct {
	// 远端记录存储（多维表格 + 云空间）
	Lark *LarkClient

	// 内容去重账本
	Redis *Redis

	// 规范化文本归档
	MinIO *MinIO

	// 入库事件通知
	RabbitMQ *RabbitMQ

	logger zerolog.Logger
}

// NewStorage 创建存储管理器。已开启的可选组件初始化失败时返回错误。
func NewStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{logger: logger}
	var err error

	s.Lark, err = NewLarkClient(cfg.Lark, WithLarkLogger(logger.With().Str("component", "lark").Logger()))
	if err != nil {
		return nil, fmt.Errorf("初始化Lark客户端失败: %w", err)
	}

	if cfg.Ingest.ContentDedup {
		logger.Info().Str("address", cfg.Redis.Address).Msg("初始化Redis...")
		if s.Redis, err = NewRedisAdapter(&cfg.Redis); err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化Redis失败: %w", err)
		}
	}

	if cfg.Ingest.ArchiveText {
		if s.MinIO, err = NewMinIO(ctx, &cfg.MinIO, logger.With().Str("component", "minio").Logger()); err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化MinIO失败: %w", err)
		}
	}

	if cfg.Ingest.NotifyOnPublish {
		if s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ, logger.With().Str("component", "rabbitmq").Logger()); err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化RabbitMQ失败: %w", err)
		}
	}

	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
	// MinIO 客户端无需显式关闭
}
