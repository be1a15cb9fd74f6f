// Package retry 提供有界重试策略，把"循环+计数器"式的重试逻辑从业务代码中抽离出来。
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExhausted 重试次数用尽
	ErrExhausted = errors.New("retry attempts exhausted")
	// ErrDegenerate 调用成功但结果不可用（例如模型返回的字段全部为空），需要重试
	ErrDegenerate = errors.New("degenerate result")
)

// Policy 重试策略
type Policy struct {
	// MaxAttempts 总尝试次数（包含第一次），小于 1 时按 1 处理
	MaxAttempts int
	// Wait 两次尝试之间的等待时间，0 表示立即重试
	Wait time.Duration
	// OnRetry 每次失败后回调，attempt 从 0 开始
	OnRetry func(attempt int, err error)
}

// ExhaustedError 所有尝试都失败，Last 为最后一次的错误
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", ErrExhausted, e.Attempts, e.Last)
}

// Unwrap 同时暴露 ErrExhausted 和最后一次的错误
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Last}
}

// Do 按策略执行 fn，返回第一次成功的结果。
// fn 返回任何错误（包括 ErrDegenerate）都计入同一个重试上限。
// ctx 被取消时立即返回 ctx.Err()。
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		if attempt == maxAttempts-1 || p.Wait <= 0 {
			continue
		}
		timer := time.NewTimer(p.Wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, &ExhaustedError{Attempts: maxAttempts, Last: lastErr}
}
