package parser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"cv-ingest-go/internal/constants"
	"cv-ingest-go/internal/retry"
	"cv-ingest-go/internal/tracing"
	"cv-ingest-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// ErrUnparseable 模型回复中找不到可解析的 JSON
var ErrUnparseable = errors.New("no valid JSON found in model response")

var reEmbeddedPhone = regexp.MustCompile(fmt.Sprintf(`\d{%d,}`, constants.SuspiciousEmailDigits))

// Generator 抽取只需要 eino ChatModel 的 Generate 能力
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// CVExtractor 调用大模型从简历文本中抽取候选人信息，带有限次数的重试。
type CVExtractor struct {
	model          Generator
	maxAttempts    int
	retryWait      time.Duration
	promptTemplate string
	logger         zerolog.Logger
}

// CVExtractorOption CVExtractor 的配置选项
type CVExtractorOption func(*CVExtractor)

// WithMaxAttempts 设置最大尝试次数
func WithMaxAttempts(n int) CVExtractorOption {
	return func(e *CVExtractor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithRetryWait 设置两次尝试之间的等待
func WithRetryWait(d time.Duration) CVExtractorOption {
	return func(e *CVExtractor) {
		e.retryWait = d
	}
}

// WithPromptTemplate 使用自定义 prompt 模板
func WithPromptTemplate(tpl string) CVExtractorOption {
	return func(e *CVExtractor) {
		e.promptTemplate = tpl
	}
}

// WithExtractorLogger 设置日志记录器
func WithExtractorLogger(logger zerolog.Logger) CVExtractorOption {
	return func(e *CVExtractor) {
		e.logger = logger
	}
}

// NewCVExtractor 创建抽取器
func NewCVExtractor(m Generator, opts ...CVExtractorOption) *CVExtractor {
	e := &CVExtractor{
		model:       m,
		maxAttempts: constants.DefaultMaxAttempts,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract 从简历文本抽取候选人记录。该方法永远返回完整记录，不返回错误:
//   - cvText 为 nil（PDF 读取失败）时不调用模型，所有字段为 "No CV text provided"
//   - 解析失败、调用失败或回复全为 NO DATA 都会重试，用尽后所有字段为 "Failed to extract data"
//   - 成功时 Job Title 一律使用调用方传入的 jobTitle
func (e *CVExtractor) Extract(ctx context.Context, cvText *string, jobTitle string) types.CandidateRecord {
	if cvText == nil {
		e.logger.Warn().Str("job_title", jobTitle).Msg("没有可用的简历文本，跳过模型调用")
		return types.NoTextRecord(jobTitle)
	}

	prompt := BuildCVPrompt(e.promptTemplate, *cvText)
	policy := retry.Policy{
		MaxAttempts: e.maxAttempts,
		Wait:        e.retryWait,
		OnRetry: func(attempt int, err error) {
			var ev *zerolog.Event
			if errors.Is(err, retry.ErrDegenerate) {
				ev = e.logger.Warn()
			} else {
				ev = e.logger.Error().Err(err)
			}
			ev.Int("attempt", attempt+1).Int("max_attempts", e.maxAttempts).Msg("抽取简历信息失败")
		},
	}

	fields, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (map[string]string, error) {
		return e.attempt(ctx, prompt)
	})
	if err != nil {
		if ctx.Err() != nil {
			e.logger.Warn().Err(err).Str("job_title", jobTitle).Msg("抽取被取消，使用失败记录")
		} else {
			e.logger.Error().Err(err).Str("job_title", jobTitle).Msg("重试耗尽，使用失败记录")
		}
		return types.FailedRecord(jobTitle)
	}

	record := types.RecordFromFields(fields, jobTitle)
	if record.Email.IsPresent() && reEmbeddedPhone.MatchString(record.Email.Text) {
		// 只告警不修复，由人工核对
		e.logger.Warn().Str("email", tracing.MaskPII(record.Email.Text)).Msg("邮箱中可能混入了电话号码")
	}
	return record
}

func (e *CVExtractor) attempt(ctx context.Context, prompt string) (map[string]string, error) {
	resp, err := e.model.Generate(ctx, []*schema.Message{
		{Role: schema.User, Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("调用模型失败: %w", err)
	}
	if resp == nil {
		return nil, ErrUnparseable
	}

	fields := ParseResponse(resp.Content)
	if fields == nil {
		e.logger.Debug().Str("response", truncate(resp.Content, 500)).Msg("模型回复无法解析")
		return nil, ErrUnparseable
	}
	if IsDegenerate(fields) {
		return nil, fmt.Errorf("all fields are %q: %w", constants.NoData, retry.ErrDegenerate)
	}
	return fields, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
