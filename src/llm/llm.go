// Package llm streams natural-language explanations for selected text from
// an OpenAI-compatible chat-completion endpoint and generates follow-up
// questions. It owns the privacy gate, the response cache and the mapping of
// transport failures to user-facing messages.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"select-explain-llm/src/logutil"
	"select-explain-llm/src/privacy"
)

const (
	// maxInputRunes bounds what one selection may cost.
	maxInputRunes = 5000

	// Cached responses are replayed in small chunks with a short pause so
	// the overlay still reads as streaming.
	replayChunkRunes = 20
	replayChunkDelay = 10 * time.Millisecond
)

const systemPrompt = "你是一个专业的问答助手。你的任务是解释用户提供的文本。\n" +
	"要求：\n" +
	"1. 必须使用**中文**进行解释。\n" +
	"2. 解释要简洁明了，直接指出核心含义。\n" +
	"3. 如果是专有名词，先给出中文翻译，再解释其用途。\n" +
	"4. 使用 Markdown 格式，重点内容可以使用粗体。\n" +
	"5. 控制字数在300字以内，不要输出长篇大论，只解释最核心的概念。"

// EmitFunc receives explanation fragments in arrival order. It is called
// from the goroutine running the stream; implementations hand chunks off to
// the UI thread.
type EmitFunc func(chunk string)

// Client is what the rest of the application sees of the AI layer.
type Client interface {
	StreamExplanation(ctx context.Context, text string, emit EmitFunc) error
	GenerateFollowUpQuestions(ctx context.Context, originalText, explanation string) []string
}

type Config struct {
	APIKey              string
	BaseURL             string
	Model               string
	Timeout             time.Duration
	MaxTokens           int
	Temperature         float32
	EnableCache         bool
	CacheMaxSize        int
	EnablePrivacyFilter bool
}

// OpenAIClient talks to any OpenAI-compatible endpoint.
type OpenAIClient struct {
	cfg   Config
	api   *openai.Client
	cache *responseCache
}

func New(cfg Config) *OpenAIClient {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	// The transport timeout is the hard bound on the whole round trip;
	// per-phase connect/read tuning is left to the default transport.
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	log.Printf("LLM client initialized: model=%s, timeout=%s, key=%s",
		cfg.Model, cfg.Timeout, logutil.RedactKey(cfg.APIKey))

	return &OpenAIClient{
		cfg:   cfg,
		api:   openai.NewClientWithConfig(apiCfg),
		cache: newResponseCache(cfg.EnableCache, cfg.CacheMaxSize),
	}
}

// StreamExplanation runs one explanation request: privacy gate, credential
// check, truncation, cache lookup, then a streaming completion. Every
// fragment is emitted the moment it arrives. Failures are classified,
// rendered as additional chunks after any partial output, and returned as a
// *StreamError; a nil return means the stream completed.
func (c *OpenAIClient) StreamExplanation(ctx context.Context, text string, emit EmitFunc) error {
	if c.cfg.EnablePrivacyFilter && privacy.ContainsSensitiveData(text) {
		log.Printf("Sensitive data detected, aborting AI request")
		emit("⚠️ **检测到敏感信息**\n\n")
		emit("为保护您的隐私，此请求已被拦截。\n\n")
		emit("可能包含：信用卡号、密码、API Key 等敏感数据。")
		return &StreamError{Kind: KindSensitiveDataBlocked}
	}

	if c.cfg.APIKey == "" {
		log.Printf("API key not configured")
		emit("❌ **配置错误**\n\n未配置 API Key，请检查 .env 文件。")
		return &StreamError{Kind: KindMissingCredential}
	}

	if runes := []rune(text); len(runes) > maxInputRunes {
		log.Printf("Input text truncated: %d -> %d chars", len(runes), maxInputRunes)
		text = string(runes[:maxInputRunes])
		emit("⚠️ *输入文本过长，已自动截断至 5000 字符*\n\n")
	}

	key := cacheKey(text)
	if cached, ok := c.cache.get(key); ok {
		log.Printf("Using cached response for key %s...", key[:8])
		return c.replayCached(ctx, cached, emit)
	}

	log.Printf("Making API request: model=%s, input_length=%d", c.cfg.Model, len(text))
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Stream:      true,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return c.failStream(err, emit)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return c.failStream(err, emit)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if content := resp.Choices[0].Delta.Content; content != "" {
			full.WriteString(content)
			emit(content)
		}
	}

	if full.Len() > 0 {
		c.cache.put(key, full.String())
		log.Printf("API request completed: %d chars", full.Len())
	}
	return nil
}

// replayCached emits a cached response in fixed-size chunks with a small
// delay, checking for cancellation between chunks.
func (c *OpenAIClient) replayCached(ctx context.Context, cached string, emit EmitFunc) error {
	runes := []rune(cached)
	for i := 0; i < len(runes); i += replayChunkRunes {
		select {
		case <-ctx.Done():
			return &StreamError{Kind: KindCanceled, Err: ctx.Err()}
		default:
		}
		end := i + replayChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		emit(string(runes[i:end]))
		time.Sleep(replayChunkDelay)
	}
	return nil
}

// failStream classifies err, appends the matching user-facing message as
// chunks (partial output stays visible above it) and reports the terminal
// state.
func (c *OpenAIClient) failStream(err error, emit EmitFunc) error {
	kind := classify(err)
	log.Printf("AI request failed (%s): %v", kind, err)

	switch kind {
	case KindCanceled:
		// The requesting overlay is gone; nothing to render.
	case KindTimeout:
		emit("\n\n❌ **请求超时**\n\n")
		emit(fmt.Sprintf("服务器响应时间超过 %d 秒，请检查网络连接或稍后重试。", int(c.cfg.Timeout.Seconds())))
	case KindConnectionFailure:
		emit("\n\n❌ **无法连接到 AI 服务**\n\n")
		emit(fmt.Sprintf("请检查：\n1. 网络连接是否正常\n2. API Base URL 是否正确\n3. 当前配置: %s", c.cfg.BaseURL))
	case KindAuthenticationFailure:
		emit("\n\n❌ **认证失败**\n\n")
		emit("API Key 无效或已过期，请检查 .env 文件中的 OPENAI_API_KEY。")
	case KindRateLimited:
		emit("\n\n❌ **请求频率超限**\n\n")
		emit("API 调用次数已达上限，请稍后再试。")
	case KindInvalidRequest:
		emit("\n\n❌ **请求参数错误**\n\n")
		emit(fmt.Sprintf("请检查模型配置是否正确。当前模型: %s", c.cfg.Model))
	default:
		emit("\n\n❌ **发生未知错误**\n\n")
		emit(err.Error())
	}

	return &StreamError{Kind: kind, Err: err}
}

// classify maps transport and API errors onto the failure taxonomy.
func classify(err error) FailureKind {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return kindForStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode > 0 {
			return kindForStatus(reqErr.HTTPStatusCode)
		}
		return KindConnectionFailure
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindConnectionFailure
	}
	return KindUnknown
}

func kindForStatus(status int) FailureKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuthenticationFailure
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}

// Ping issues a minimal non-streaming completion to validate the credential
// and endpoint at startup.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("API key is required")
	}
	_, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("LLM ping failed: %w", err)
	}
	return nil
}
