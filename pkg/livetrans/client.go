package livetrans

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client 翻译客户端接口：翻译单个分段
type Client interface {
	// Translate 翻译一个分段，失败时返回带分类的 *TranslateError
	Translate(ctx context.Context, segmentText, fileName string, prompt *Prompt) (*RawResult, error)
}

// ClientFunc 函数适配器
type ClientFunc func(ctx context.Context, segmentText, fileName string, prompt *Prompt) (*RawResult, error)

// Translate 实现Client接口
func (f ClientFunc) Translate(ctx context.Context, segmentText, fileName string, prompt *Prompt) (*RawResult, error) {
	return f(ctx, segmentText, fileName, prompt)
}

// OpenAIClient 基于 chat completions API 的翻译客户端
type OpenAIClient struct {
	client *openai.Client
	cfg    *Config
	logger *zap.Logger
}

// NewOpenAIClient 创建客户端
func NewOpenAIClient(cfg *Config, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = strings.TrimSuffix(cfg.APIBaseURL, "/")
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(apiCfg),
		cfg:    cfg,
		logger: logger,
	}
}

// Translate 执行单个分段的翻译
// 系统消息为插值后的指令文本，用户消息为分段原文，要求纯文本输出
func (c *OpenAIClient) Translate(ctx context.Context, segmentText, fileName string, prompt *Prompt) (*RawResult, error) {
	instructions := RenderPrompt(prompt.Instructions, c.cfg.TargetLanguage, fileName)

	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instructions},
			{Role: openai.ChatMessageRoleUser, Content: segmentText},
		},
		Stream: false,
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	latency := time.Since(start)

	if err != nil {
		terr := classifyClientError(err)
		c.logger.Debug("completion request failed",
			zap.String("code", string(terr.Code)),
			zap.Duration("latency", latency),
			zap.Error(err))
		return nil, terr
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, NewTranslateError(CodeInvalidResponse, "empty completion response", nil)
	}

	providerID := resp.Model
	if providerID == "" {
		providerID = c.cfg.Model
	}

	return &RawResult{
		Markdown:   strings.TrimSpace(resp.Choices[0].Message.Content),
		ProviderID: providerID,
		Latency:    latency,
	}, nil
}

// classifyClientError 将SDK错误归入错误分类
func classifyClientError(err error) *TranslateError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ClassifyStatus(apiErr.HTTPStatusCode)
		return NewTranslateError(code, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		code := ClassifyStatus(reqErr.HTTPStatusCode)
		return NewTranslateError(code, err.Error(), err)
	}

	if errors.Is(err, context.Canceled) {
		return NewTranslateError(CodeUnknown, "request canceled", err)
	}

	// 传输层错误：超时或连接失败
	code := ClassifyTransport(err)
	if code == CodeUnknown {
		// http.Client 的超时错误有时只能通过错误文本识别
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
			code = CodeTimeout
		case strings.Contains(msg, "connection refused"),
			strings.Contains(msg, "connection reset"),
			strings.Contains(msg, "no such host"),
			strings.Contains(msg, "broken pipe"),
			strings.Contains(msg, "network is unreachable"):
			code = CodeNetwork
		}
	}
	return NewTranslateError(code, err.Error(), err)
}
