package clients

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/llm/models"
	"resty.dev/v3"
)

const (
	DefaultGatewayURL   = "https://ai.gateway.lovable.dev/v1/chat/completions"
	DefaultModel        = "google/gemini-3-flash-preview"
	DefaultSystemPrompt = "You are a helpful AI assistant. Be concise, accurate, and friendly in your responses."
	DefaultAPIKeyEnv    = "AI_GATEWAY_API_KEY"
	DefaultMaxBodyBytes = 4 << 20
)

// Config 对应配置文件里的 [upstream]
type Config struct {
	GatewayURL          string `json:"gateway_url" toml:"gateway_url"`
	DefaultModel        string `json:"default_model" toml:"default_model"`
	DefaultSystemPrompt string `json:"default_system_prompt" toml:"default_system_prompt"`
	APIKeyEnv           string `json:"api_key_env" toml:"api_key_env"`
	MaxBodyBytes        int64  `json:"max_body_bytes" toml:"max_body_bytes"` // 请求体上限, 默认 4MB
}

// WithDefaults 补全未配置的字段
func (m Config) WithDefaults() Config {
	if m.GatewayURL == "" {
		m.GatewayURL = DefaultGatewayURL
	}
	if m.DefaultModel == "" {
		m.DefaultModel = DefaultModel
	}
	if m.DefaultSystemPrompt == "" {
		m.DefaultSystemPrompt = DefaultSystemPrompt
	}
	if m.APIKeyEnv == "" {
		m.APIKeyEnv = DefaultAPIKeyEnv
	}
	if m.MaxBodyBytes <= 0 {
		m.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return m
}

// StreamResponse 上游响应, Body 由调用方关闭
type StreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

type IGatewayClient interface {
	StreamCompletion(ctx context.Context, apiKey string, req *models.CompletionRequest) (*StreamResponse, error)
}

type gatewayClient struct {
	url    string
	client *resty.Client
}

// NewGatewayClient 不做重试, 流式响应不设整体超时
func NewGatewayClient(url string) IGatewayClient {
	if url == "" {
		url = DefaultGatewayURL
	}
	c := resty.New().
		SetRetryCount(0).
		SetDisableWarn(true)
	return &gatewayClient{url: url, client: c}
}

func (m *gatewayClient) StreamCompletion(ctx context.Context, apiKey string, req *models.CompletionRequest) (*StreamResponse, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetDoNotParseResponse(true).
		Post(m.url)
	if err != nil {
		return nil, errors.Wrap(err, "gateway request")
	}
	return &StreamResponse{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body,
	}, nil
}
