package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cv-ingest-go/internal/constants"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrToolsUnsupported 简历抽取只需要纯文本补全，不绑定工具
var ErrToolsUnsupported = errors.New("tool calling is not supported by this chat model")

// APIError 接口返回非 200 状态或 error 对象
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat completion API error (status %d): %s", e.StatusCode, e.Message)
}

// --- OpenAI Compatible Request/Response Structures ---

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	Temperature *float32                `json:"temperature,omitempty"`
	MaxTokens   *int                    `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// ChatModel 通过 OpenAI 兼容的 chat/completions 接口调用大模型（默认 Gemini）。
// 实现了 eino 的 model.ChatModel，调用前经过令牌桶限流。
type ChatModel struct {
	apiKey    string
	modelName string
	apiURL    string
	timeout   time.Duration
	client    *client.Client
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// ChatModelOption ChatModel 的配置选项
type ChatModelOption func(*ChatModel)

// WithRateLimit 每分钟最多 qpm 次调用，qpm<=0 表示不限流
func WithRateLimit(qpm int) ChatModelOption {
	return func(m *ChatModel) {
		if qpm <= 0 {
			m.limiter = nil
			return
		}
		burst := qpm / 2
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(float64(qpm)/60.0), burst)
	}
}

// WithTimeout 单次调用超时
func WithTimeout(d time.Duration) ChatModelOption {
	return func(m *ChatModel) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger zerolog.Logger) ChatModelOption {
	return func(m *ChatModel) {
		m.logger = logger
	}
}

// NewChatModel 创建一个新的 ChatModel 实例。modelName、apiURL 为空时使用默认值。
func NewChatModel(apiKey, modelName, apiURL string, opts ...ChatModelOption) (*ChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = constants.DefaultLLMModel
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = constants.DefaultLLMAPIURL
	}

	c, err := client.NewClient(
		client.WithDialTimeout(10 * time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 客户端失败: %w", err)
	}

	m := &ChatModel{
		apiKey:    apiKey,
		modelName: modelName,
		apiURL:    apiURL,
		timeout:   constants.DefaultLLMTimeout,
		client:    c,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.logger.Info().Str("api_url", apiURL).Str("model", modelName).Msg("LLM 客户端已初始化")
	return m, nil
}

// Generate 实现 model.ChatModel 接口
func (m *ChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("等待限流令牌失败: %w", err)
		}
	}

	common := model.GetCommonOptions(&model.Options{Model: &m.modelName}, options...)
	payload := chatCompletionRequest{
		Model:       m.modelName,
		Temperature: common.Temperature,
		MaxTokens:   common.MaxTokens,
	}
	if common.Model != nil && *common.Model != "" {
		payload.Model = *common.Model
	}
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		payload.Messages = append(payload.Messages, chatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(m.apiURL)
	req.SetMethod(consts.MethodPost)
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.SetBody(body)

	start := time.Now()
	if err := m.client.DoTimeout(ctx, req, resp, m.timeout); err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}

	respBody := resp.Body()
	m.logger.Debug().
		Int("status", resp.StatusCode()).
		Dur("duration", time.Since(start)).
		Int("body_bytes", len(respBody)).
		Msg("收到 LLM 响应")

	var parsed chatCompletionResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode() != consts.StatusOK {
		msg := string(respBody)
		if decodeErr == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w", decodeErr)
	}
	if parsed.Error != nil {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项")
	}

	choice := parsed.Choices[0].Message
	out := &schema.Message{Role: schema.RoleType(choice.Role)}
	if choice.Content != nil {
		out.Content = *choice.Content
	}
	if out.Role == "" {
		out.Role = schema.Assistant
	}
	return out, nil
}

// Stream 实现 model.ChatModel 接口。批处理场景只需要一次性结果，复用 Generate 包装成单元素流。
func (m *ChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, messages, options...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools 实现 model.ChatModel 接口
func (m *ChatModel) BindTools(tools []*schema.ToolInfo) error {
	if len(tools) == 0 {
		return nil
	}
	return ErrToolsUnsupported
}

var _ model.ChatModel = (*ChatModel)(nil)
