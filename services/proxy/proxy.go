// Package proxy 把客户端的聊天请求转发给上游网关, 并原样回传 SSE 流
package proxy

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/chat"
	"github.com/stardustagi/ChatRelay/libs/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/metrics"
	"github.com/stardustagi/ChatRelay/libs/nats"
	"github.com/stardustagi/ChatRelay/libs/server"
	"github.com/stardustagi/ChatRelay/libs/uuid"
	"github.com/stardustagi/ChatRelay/llm/clients"
	"github.com/stardustagi/ChatRelay/llm/models"
	"github.com/stardustagi/ChatRelay/protocol"
	"go.uber.org/zap"
)

const (
	relayBufferSize = 4096
	// 上游错误 body 只记录前面一段
	maxErrorBodyLog = 64 << 10
)

type Service struct {
	cfg       clients.Config
	gateway   clients.IGatewayClient
	lookupEnv func(string) (string, bool)
	logger    *zap.Logger
	metrics   *metrics.Metrics
	events    nats.IEventPublisher
}

type Option func(*Service)

// WithGateway 替换上游客户端
func WithGateway(g clients.IGatewayClient) Option {
	return func(s *Service) { s.gateway = g }
}

// WithEnvLookup 替换环境变量读取
func WithEnvLookup(f func(string) (string, bool)) Option {
	return func(s *Service) { s.lookupEnv = f }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithEventPublisher(p nats.IEventPublisher) Option {
	return func(s *Service) { s.events = p }
}

func NewService(cfg clients.Config, opts ...Option) *Service {
	cfg = cfg.WithDefaults()
	s := &Service{
		cfg:       cfg,
		lookupEnv: os.LookupEnv,
		logger:    logs.GetLogger("chat"),
		events:    nats.NopEventPublisher(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.gateway == nil {
		s.gateway = clients.NewGatewayClient(cfg.GatewayURL)
	}
	return s
}

// upstream 一次成功打开的上游流
type upstream struct {
	body         io.ReadCloser
	model        string
	messageCount int
}

// Open 校验请求并打开上游流, 调用方负责关闭返回的 ReadCloser
func (m *Service) Open(ctx context.Context, body []byte) (io.ReadCloser, *errors.StackError) {
	up, serr := m.open(ctx, body)
	if serr != nil {
		return nil, serr
	}
	return up.body, nil
}

func (m *Service) open(ctx context.Context, raw []byte) (*upstream, *errors.StackError) {
	apiKey, serr := m.apiKey()
	if serr != nil {
		return nil, serr
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		m.logger.Error("Request parsing failed", logs.ErrorInfo(err))
		return nil, errors.InvalidJSON(err)
	}
	if res := chat.Validate(body); !res.IsValid {
		m.logger.Warn("Validation failed", logs.String("error", res.Error))
		return nil, errors.Validation(res.Error)
	}

	req := chat.FromBody(body, m.cfg.DefaultModel)
	messages := chat.BuildMessages(req, m.cfg.DefaultSystemPrompt)
	m.logger.Info("Processing chat request",
		logs.Int("messageCount", len(messages)),
		logs.String("model", req.Model))

	resp, err := m.gateway.StreamCompletion(ctx, apiKey, &models.CompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		m.logger.Error("AI gateway call failed", logs.ErrorInfo(err))
		return nil, errors.UpstreamUnavailable(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, m.gatewayError(resp)
	}
	m.logger.Info("AI gateway response received", logs.Int("status", resp.StatusCode))
	return &upstream{body: resp.Body, model: req.Model, messageCount: len(messages)}, nil
}

// apiKey 每次请求都重新读取, 运行中修改环境变量可以生效
func (m *Service) apiKey() (string, *errors.StackError) {
	key, ok := m.lookupEnv(m.cfg.APIKeyEnv)
	if !ok || key == "" {
		m.logger.Error("API key not configured", logs.String("env", m.cfg.APIKeyEnv))
		return "", errors.Configuration()
	}
	return key, nil
}

func (m *Service) gatewayError(resp *clients.StreamResponse) *errors.StackError {
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		m.logger.Warn("Rate limit exceeded")
		return errors.RateLimited()
	case http.StatusPaymentRequired:
		m.logger.Warn("Payment required")
		return errors.PaymentRequired()
	}
	text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLog))
	m.logger.Error("AI gateway error",
		logs.Int("status", resp.StatusCode),
		logs.String("error", string(text)))
	return errors.UpstreamUnavailable(nil)
}

// Handle 注册到 /api/chat, 接收所有方法
func (m *Service) Handle(c echo.Context) error {
	server.SetCorsHeaders(c.Response().Header())
	r := c.Request()
	if r.Method == http.MethodOptions {
		return c.NoContent(http.StatusOK)
	}

	start := time.Now()
	requestID := uuid.RequestID()
	logger := m.logger.With(logs.String("requestId", requestID))
	ev := nats.ChatEvent{RequestID: requestID}

	fail := func(serr *errors.StackError) error {
		m.metrics.ObserveRequest(serr.Status())
		ev.Type = nats.EventChatFailed
		ev.Status = serr.Status()
		ev.Code = serr.Code()
		ev.DurationMs = time.Since(start).Milliseconds()
		m.publish(logger, ev)
		return protocol.Error(c, serr)
	}

	if r.Method != http.MethodPost {
		return fail(errors.MethodNotAllowed())
	}
	// 请求体是否合法都先报配置错误
	if _, serr := m.apiKey(); serr != nil {
		return fail(serr)
	}
	raw, err := io.ReadAll(http.MaxBytesReader(c.Response(), r.Body, m.cfg.MaxBodyBytes))
	if err != nil {
		if _, ok := err.(*http.MaxBytesError); ok {
			logger.Warn("Request body too large", logs.Int64("limit", m.cfg.MaxBodyBytes))
			return fail(errors.PayloadTooLarge(err))
		}
		logger.Error("Request parsing failed", logs.ErrorInfo(err))
		return fail(errors.InvalidJSON(err))
	}

	up, serr := m.open(r.Context(), raw)
	if serr != nil {
		return fail(serr)
	}
	defer up.body.Close()
	ev.Model = up.model
	ev.MessageCount = up.messageCount

	n, err := m.relay(c, up.body)
	elapsed := time.Since(start)
	m.metrics.ObserveRequest(http.StatusOK)
	m.metrics.ObserveStream(elapsed, n)
	if err != nil {
		// 响应头已经发出, 只能记录
		logger.Warn("Stream relay interrupted", logs.Int64("bytes", n), logs.ErrorInfo(err))
	}
	ev.Type = nats.EventChatCompleted
	ev.Status = http.StatusOK
	ev.Bytes = n
	ev.DurationMs = elapsed.Milliseconds()
	m.publish(logger, ev)
	return nil
}

// relay 每读到一块就写出并 flush, 不缓存整个流
func (m *Service) relay(c echo.Context, body io.Reader) (int64, error) {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	var total int64
	buf := make([]byte, relayBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := resp.Write(buf[:n]); werr != nil {
				return total, werr
			}
			resp.Flush()
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

func (m *Service) publish(logger *zap.Logger, ev nats.ChatEvent) {
	if err := m.events.PublishChatEvent(ev); err != nil {
		logger.Warn("publish chat event failed", logs.ErrorInfo(err))
	}
}
