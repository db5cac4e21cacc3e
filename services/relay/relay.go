// Package relay 通过 websocket 把上游的增量逐条推给客户端
package relay

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/codec"
	"github.com/stardustagi/ChatRelay/libs/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/metrics"
	"github.com/stardustagi/ChatRelay/libs/server"
	"github.com/stardustagi/ChatRelay/libs/uuid"
	"github.com/stardustagi/ChatRelay/protocol"
	"github.com/stardustagi/ChatRelay/stream"
	"go.uber.org/zap"
)

// SubSend 客户端发起一次对话, payload 为与 /api/chat 相同的请求体
const SubSend = "send"

const msgBusy = "A response is already streaming"

// IOpener 打开一个已校验的上游流, proxy.Service 实现了它
type IOpener interface {
	Open(ctx context.Context, body []byte) (io.ReadCloser, *errors.StackError)
}

type Relay struct {
	opener   IOpener
	manager  server.IClientManager
	config   server.HttpWebSocketConfig
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu   sync.Mutex
	busy map[string]bool
}

func New(opener IOpener, manager server.IClientManager, config server.HttpWebSocketConfig, m *metrics.Metrics) *Relay {
	config = config.WithDefaults()
	return &Relay{
		opener:  opener,
		manager: manager,
		config:  config,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: time.Duration(config.HandshakeTimeout) * time.Second,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		metrics: m,
		logger:  logs.GetLogger("relay"),
		busy:    make(map[string]bool),
	}
}

// Handle 升级为 websocket 并阻塞到连接断开
func (m *Relay) Handle(c echo.Context) error {
	conn, err := m.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade 已经写过错误响应
		m.logger.Warn("websocket upgrade failed", logs.ErrorInfo(err))
		return nil
	}
	userID := server.NewContext(c).UserID()
	client := server.NewClient(context.Background(), userID, uuid.RequestID(), conn, codec.NewJsonCodec(), m.config, m, m.manager)
	if m.manager != nil {
		m.manager.RegisterClient(client)
	}
	client.Listen()
	return nil
}

func (m *Relay) acquire(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy[sessionID] {
		return false
	}
	m.busy[sessionID] = true
	return true
}

func (m *Relay) release(sessionID string) {
	m.mu.Lock()
	delete(m.busy, sessionID)
	m.mu.Unlock()
}

func sendError(client server.IClient, serr *errors.StackError) error {
	return client.Send(protocol.NewJsonMessage(protocol.MainChat, protocol.SubError, protocol.NewErrorResponse(serr)))
}

// HandlerMessage 每个连接同一时间只处理一次对话
func (m *Relay) HandlerMessage(ctx context.Context, client server.IClient, msg protocol.IMessage) error {
	if msg.GetMain() != protocol.MainChat || msg.GetSub() != SubSend {
		return sendError(client, errors.Validation("Unsupported message"))
	}
	if !m.acquire(client.GetSessionID()) {
		return sendError(client, errors.Conflict(msgBusy))
	}
	defer m.release(client.GetSessionID())

	start := time.Now()
	body, serr := m.opener.Open(ctx, []byte(msg.GetPayload()))
	if serr != nil {
		m.metrics.ObserveRequest(serr.Status())
		return sendError(client, serr)
	}
	defer body.Close()
	m.metrics.ObserveRequest(http.StatusOK)

	counter := &countingReader{r: body}
	var sendErr error
	err := stream.Decode(counter,
		func(delta string) {
			if sendErr == nil {
				sendErr = client.Send(protocol.NewMessage(protocol.MainChat, protocol.SubDelta, delta))
			}
		},
		func() {
			if sendErr == nil {
				sendErr = client.Send(protocol.NewMessage(protocol.MainChat, protocol.SubDone, ""))
			}
		})
	m.metrics.ObserveStream(time.Since(start), counter.n)
	if err != nil {
		if ctx.Err() != nil {
			// 客户端已断开
			return nil
		}
		m.logger.Warn("upstream stream interrupted", logs.String("sessionId", client.GetSessionID()), logs.ErrorInfo(err))
		return sendError(client, errors.UpstreamUnavailable(err))
	}
	return sendErr
}

type countingReader struct {
	r io.Reader
	n int64
}

func (m *countingReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	m.n += int64(n)
	return n, err
}
