package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// streamBackend is a fake chat-completion endpoint that streams the given
// fragments as SSE and counts how many requests it served.
type streamBackend struct {
	fragments []string
	calls     atomic.Int32
	lastReq   atomic.Pointer[openai.ChatCompletionRequest]
}

func (b *streamBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			b.lastReq.Store(&req)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, f := range b.fragments {
			chunk := openai.ChatCompletionStreamResponse{
				Object: "chat.completion.chunk",
				Model:  req.Model,
				Choices: []openai.ChatCompletionStreamChoice{
					{Delta: openai.ChatCompletionStreamChoiceDelta{Content: f}},
				},
			}
			payload, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			fl.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		fl.Flush()
	}
}

func newTestClient(baseURL string, mutate func(*Config)) *OpenAIClient {
	cfg := Config{
		APIKey:              "test_api_key_long_enough",
		BaseURL:             baseURL,
		Model:               "test_model",
		Timeout:             5 * time.Second,
		MaxTokens:           500,
		Temperature:         0.7,
		EnableCache:         true,
		CacheMaxSize:        10,
		EnablePrivacyFilter: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func collect(chunks *[]string) EmitFunc {
	return func(chunk string) { *chunks = append(*chunks, chunk) }
}

func TestStreamEmitsFragmentsInOrder(t *testing.T) {
	backend := &streamBackend{fragments: []string{"He", "llo"}}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client := newTestClient(srv.URL+"/v1", func(c *Config) { c.EnableCache = false })

	var chunks []string
	if err := client.StreamExplanation(context.Background(), "what is Go", collect(&chunks)); err != nil {
		t.Fatalf("StreamExplanation failed: %v", err)
	}
	if len(chunks) != 2 || chunks[0] != "He" || chunks[1] != "llo" {
		t.Errorf("Expected chunks [He llo] in order, got %v", chunks)
	}

	// With caching disabled an identical request must hit the network again.
	chunks = nil
	if err := client.StreamExplanation(context.Background(), "what is Go", collect(&chunks)); err != nil {
		t.Fatalf("Second StreamExplanation failed: %v", err)
	}
	if got := backend.calls.Load(); got != 2 {
		t.Errorf("Expected 2 network calls with cache disabled, got %d", got)
	}
}

func TestCacheIdempotence(t *testing.T) {
	backend := &streamBackend{fragments: []string{"Go ", "是一门", "编程语言"}}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client := newTestClient(srv.URL+"/v1", nil)

	var first []string
	if err := client.StreamExplanation(context.Background(), "golang", collect(&first)); err != nil {
		t.Fatalf("First call failed: %v", err)
	}

	var second []string
	if err := client.StreamExplanation(context.Background(), "golang", collect(&second)); err != nil {
		t.Fatalf("Second call failed: %v", err)
	}

	if got := backend.calls.Load(); got != 1 {
		t.Errorf("Expected exactly 1 network call, got %d", got)
	}
	if strings.Join(first, "") != strings.Join(second, "") {
		t.Errorf("Cached replay differs: %q vs %q", strings.Join(first, ""), strings.Join(second, ""))
	}
}

func TestSensitiveDataBlocked(t *testing.T) {
	backend := &streamBackend{fragments: []string{"never"}}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client := newTestClient(srv.URL+"/v1", nil)

	var chunks []string
	err := client.StreamExplanation(context.Background(), "key: sk-"+strings.Repeat("a", 48), collect(&chunks))

	var se *StreamError
	if !errors.As(err, &se) || se.Kind != KindSensitiveDataBlocked {
		t.Fatalf("Expected SensitiveDataBlocked, got %v", err)
	}
	if backend.calls.Load() != 0 {
		t.Errorf("Expected no network call for blocked input")
	}
	if !strings.Contains(strings.Join(chunks, ""), "检测到敏感信息") {
		t.Errorf("Expected sensitive-data warning, got %v", chunks)
	}
}

func TestMissingCredential(t *testing.T) {
	backend := &streamBackend{fragments: []string{"never"}}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client := newTestClient(srv.URL+"/v1", func(c *Config) { c.APIKey = "" })

	var chunks []string
	err := client.StreamExplanation(context.Background(), "anything", collect(&chunks))

	var se *StreamError
	if !errors.As(err, &se) || se.Kind != KindMissingCredential {
		t.Fatalf("Expected MissingCredential, got %v", err)
	}
	if backend.calls.Load() != 0 {
		t.Errorf("Expected no network call without a credential")
	}
	if len(chunks) != 1 || !strings.Contains(chunks[0], "配置错误") {
		t.Errorf("Expected a single configuration-error chunk, got %v", chunks)
	}
}

func TestInputTruncation(t *testing.T) {
	backend := &streamBackend{fragments: []string{"ok"}}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client := newTestClient(srv.URL+"/v1", nil)

	input := strings.Repeat("x", 6000)
	var chunks []string
	if err := client.StreamExplanation(context.Background(), input, collect(&chunks)); err != nil {
		t.Fatalf("StreamExplanation failed: %v", err)
	}

	if len(chunks) == 0 || !strings.Contains(chunks[0], "已自动截断") {
		t.Fatalf("Expected truncation notice before content, got %v", chunks)
	}

	req := backend.lastReq.Load()
	if req == nil {
		t.Fatal("Backend saw no request")
	}
	userMsg := req.Messages[len(req.Messages)-1].Content
	if len([]rune(userMsg)) != 5000 {
		t.Errorf("Expected 5000-char user message, got %d", len([]rune(userMsg)))
	}

	// A different 6000-char input sharing the 5000-char prefix must hit the
	// cache: the key is taken after truncation.
	other := strings.Repeat("x", 5000) + strings.Repeat("y", 1000)
	var replay []string
	if err := client.StreamExplanation(context.Background(), other, collect(&replay)); err != nil {
		t.Fatalf("Replay call failed: %v", err)
	}
	if got := backend.calls.Load(); got != 1 {
		t.Errorf("Expected cache hit for identical truncated prefix, got %d calls", got)
	}
}

func TestFailureClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind FailureKind
		wantMsg  string
	}{
		{"auth", http.StatusUnauthorized, KindAuthenticationFailure, "认证失败"},
		{"forbidden", http.StatusForbidden, KindAuthenticationFailure, "认证失败"},
		{"rate limited", http.StatusTooManyRequests, KindRateLimited, "请求频率超限"},
		{"bad model", http.StatusNotFound, KindInvalidRequest, "请求参数错误"},
		{"bad request", http.StatusBadRequest, KindInvalidRequest, "请求参数错误"},
		{"server error", http.StatusInternalServerError, KindUnknown, "发生未知错误"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error":{"message":"simulated","type":"test_error"}}`)
			}))
			defer srv.Close()

			client := newTestClient(srv.URL+"/v1", func(c *Config) { c.EnableCache = false })

			var chunks []string
			err := client.StreamExplanation(context.Background(), "text", collect(&chunks))

			var se *StreamError
			if !errors.As(err, &se) || se.Kind != tt.wantKind {
				t.Fatalf("Expected kind %v, got %v", tt.wantKind, err)
			}
			if !strings.Contains(strings.Join(chunks, ""), tt.wantMsg) {
				t.Errorf("Expected message containing %q, got %v", tt.wantMsg, chunks)
			}
		})
	}
}

func TestConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing is listening any more

	client := newTestClient(srv.URL+"/v1", func(c *Config) { c.EnableCache = false })

	var chunks []string
	err := client.StreamExplanation(context.Background(), "text", collect(&chunks))

	var se *StreamError
	if !errors.As(err, &se) || se.Kind != KindConnectionFailure {
		t.Fatalf("Expected ConnectionFailure, got %v", err)
	}
	if !strings.Contains(strings.Join(chunks, ""), "无法连接到 AI 服务") {
		t.Errorf("Expected connection-failure message, got %v", chunks)
	}
}

func TestTimeoutClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL+"/v1", func(c *Config) {
		c.EnableCache = false
		c.Timeout = 50 * time.Millisecond
	})

	var chunks []string
	err := client.StreamExplanation(context.Background(), "text", collect(&chunks))

	var se *StreamError
	if !errors.As(err, &se) || se.Kind != KindTimeout {
		t.Fatalf("Expected Timeout, got %v", err)
	}
	if !strings.Contains(strings.Join(chunks, ""), "请求超时") {
		t.Errorf("Expected timeout message, got %v", chunks)
	}
}

func TestPartialOutputPreservedOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		chunk := openai.ChatCompletionStreamResponse{
			Object: "chat.completion.chunk",
			Choices: []openai.ChatCompletionStreamChoice{
				{Delta: openai.ChatCompletionStreamChoiceDelta{Content: "partial"}},
			},
		}
		payload, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", payload)
		fl.Flush()
		// Drop the connection mid-stream without a [DONE] marker.
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, _ := hj.Hijack()
			conn.Close()
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL+"/v1", func(c *Config) { c.EnableCache = false })

	var chunks []string
	err := client.StreamExplanation(context.Background(), "text", collect(&chunks))
	if err == nil {
		t.Fatal("Expected an error from a dropped stream")
	}
	joined := strings.Join(chunks, "")
	if !strings.HasPrefix(joined, "partial") {
		t.Errorf("Partial output must come before the failure message, got %q", joined)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: "pong"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL+"/v1", nil)
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	noKey := newTestClient(srv.URL+"/v1", func(c *Config) { c.APIKey = "" })
	if err := noKey.Ping(context.Background()); err == nil {
		t.Error("Expected Ping to fail without a credential")
	}
}
