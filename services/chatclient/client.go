// Package chatclient 调用代理的 /api/chat 并把 SSE 流解码成增量文本
package chatclient

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/llm/models"
	"github.com/stardustagi/ChatRelay/stream"
	"go.uber.org/zap"
	"resty.dev/v3"
)

var (
	ErrRateLimited     = errors.New("Rate limit exceeded")
	ErrPaymentRequired = errors.New("Payment required")
	ErrNoResponseBody  = errors.New("No response body")
)

const defaultFailure = "Failed to get AI response"

// ResponseError 代理返回的其它非 2xx 响应
type ResponseError struct {
	Status  int
	Message string
}

func (e *ResponseError) Error() string {
	return e.Message
}

type StreamChatParams struct {
	Messages     []models.ChatMessage
	SystemPrompt string
	Model        string
	OnDelta      func(string)
	OnDone       func()
}

type chatBody struct {
	Messages     []models.ChatMessage `json:"messages"`
	SystemPrompt string               `json:"systemPrompt,omitempty"`
	Model        string               `json:"model,omitempty"`
}

type Config struct {
	URL            string `json:"url" toml:"url"`
	PublishableKey string `json:"publishable_key" toml:"publishable_key"`
	SystemPrompt   string `json:"system_prompt" toml:"system_prompt"`
}

type Client struct {
	cfg       Config
	http      *resty.Client
	streaming atomic.Int32
	onError   func(error)
	logger    *zap.Logger
}

type Option func(*Client)

// WithOnError 每次 StreamChat 失败时回调
func WithOnError(f func(error)) Option {
	return func(c *Client) { c.onError = f }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = resty.NewWithClient(hc) }
}

func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		logger: logs.GetLogger("chatclient"),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = resty.New()
	}
	c.http.SetRetryCount(0).SetDisableWarn(true)
	return c
}

// IsStreaming 是否有请求在进行
func (c *Client) IsStreaming() bool {
	return c.streaming.Load() > 0
}

// StreamChat 成功时 OnDone 恰好调用一次; 失败时返回错误且不调用 OnDone
func (c *Client) StreamChat(ctx context.Context, p StreamChatParams) (err error) {
	c.streaming.Add(1)
	defer func() {
		c.streaming.Add(-1)
		if err != nil {
			c.logger.Error("Stream chat error", logs.ErrorInfo(err))
			if c.onError != nil {
				c.onError(err)
			}
		}
	}()

	prompt := p.SystemPrompt
	if prompt == "" {
		prompt = c.cfg.SystemPrompt
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+c.cfg.PublishableKey).
		SetBody(chatBody{Messages: p.Messages, SystemPrompt: prompt, Model: p.Model}).
		SetDoNotParseResponse(true).
		Post(c.cfg.URL)
	if err != nil {
		return errors.Wrap(err, "post chat")
	}
	if resp.Body == nil {
		return ErrNoResponseBody
	}
	defer resp.Body.Close()

	if status := resp.StatusCode(); status < 200 || status > 299 {
		return responseError(status, resp.Body)
	}
	return stream.Decode(resp.Body, p.OnDelta, p.OnDone)
}

func responseError(status int, body io.Reader) error {
	switch status {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusPaymentRequired:
		return ErrPaymentRequired
	}
	var data struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	msg := defaultFailure
	if json.Unmarshal(raw, &data) == nil && data.Error != "" {
		msg = data.Error
	}
	return &ResponseError{Status: status, Message: msg}
}
