package tracing

import (
	"context"
	"fmt"

	"cv-ingest-go/internal/config"
	"cv-ingest-go/internal/constants"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ShutdownFunc 退出前调用，刷新未导出的 span
type ShutdownFunc func(context.Context) error

// Tracer 本应用统一使用的 tracer
func Tracer() trace.Tracer {
	return otel.Tracer(constants.AppName)
}

// Init 配置了 endpoint 时安装 OTLP/gRPC 导出器，否则保留全局的 noop provider
func Init(ctx context.Context, cfg config.TracingConfig, runID string) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建 OTLP 导出器失败: %w", err)
	}

	// 不绑定 semconv 版本
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", constants.AppName),
		attribute.String("cvingest.run_id", runID),
	))
	if err != nil {
		return nil, fmt.Errorf("创建 tracing resource 失败: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
