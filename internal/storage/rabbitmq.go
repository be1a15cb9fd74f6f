package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cv-ingest-go/internal/config"
	"cv-ingest-go/internal/types"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// RabbitMQ 发布"简历已入库"事件，供下游系统订阅
type RabbitMQ struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	mu         sync.Mutex // amqp.Channel 不是并发安全的
	exchange   string
	routingKey string
	logger     zerolog.Logger
}

// NewRabbitMQ 连接服务器并声明 topic 交换机
func NewRabbitMQ(cfg *config.RabbitMQConfig, logger zerolog.Logger) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // exchange名称
		"topic",      // exchange类型
		true,         // 持久化
		false,        // 自动删除
		false,        // 内部专用
		false,        // 非阻塞
		nil,          // 参数
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明exchange失败: %w", err)
	}

	logger.Info().Str("exchange", cfg.Exchange).Str("routing_key", cfg.RoutingKey).Msg("成功连接到RabbitMQ服务器")
	return &RabbitMQ{
		conn:       conn,
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// PublishJSON 发布JSON格式的持久化消息
func (r *RabbitMQ) PublishJSON(ctx context.Context, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.ch.PublishWithContext(
		ctx,
		r.exchange,   // exchange名
		r.routingKey, // 路由键
		false,        // 强制
		false,        // 立即
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// NotifyPublished 发布入库事件
func (r *RabbitMQ) NotifyPublished(ctx context.Context, event types.PublishedEvent) error {
	return r.PublishJSON(ctx, event)
}

// Close 关闭通道和连接
func (r *RabbitMQ) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	return r.conn.Close()
}
