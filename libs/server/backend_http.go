package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/metrics"
	"github.com/stardustagi/ChatRelay/libs/option"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type Backend struct {
	Ctx        context.Context
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	httpServer *HttpServer
}

func NewBackend(opts *option.Options) (*Backend, error) {
	httpServer, err := NewHttpServer(opts)
	if err != nil {
		return nil, err
	}
	bk := &Backend{
		Ctx:        context.Background(),
		Logger:     logs.GetLogger("http_backend"),
		httpServer: httpServer,
	}
	if opts.Http.Metrics {
		bk.Metrics = metrics.New()
		httpServer.AddNativeHandler(http.MethodGet, "/metrics", echo.WrapHandler(bk.Metrics.Handler()))
	}
	return bk, nil
}

func (m *Backend) Engine() *echo.Echo {
	return m.httpServer.Engine()
}

func (m *Backend) AddGroup(group string, middleware ...echo.MiddlewareFunc) {
	m.httpServer.AddGroup(group, middleware...)
}

func (m *Backend) AddPostHandler(group string, h IHandler) {
	m.httpServer.Post(h.GetName(), group, h)
}

func (m *Backend) AddGetHandler(group string, h IHandler) {
	m.httpServer.Get(h.GetName(), group, h)
}

func (m *Backend) AddPutHandler(group string, h IHandler) {
	m.httpServer.Put(h.GetName(), group, h)
}

func (m *Backend) AddDeleteHandler(group string, h IHandler) {
	m.httpServer.Delete(h.GetName(), group, h)
}

func (m *Backend) AddHandler(method, path string, h IHandler) {
	m.httpServer.Handle(method, path, h)
}

// AddAnyHandler 同一路径接收所有方法
func (m *Backend) AddAnyHandler(path string, h IHandler) {
	m.httpServer.Any(path, h)
}

func (m *Backend) AddNativeHandler(method string, path string, handler echo.HandlerFunc) {
	m.httpServer.AddNativeHandler(method, path, handler)
}

func (m *Backend) Start() error {
	return m.httpServer.Startup()
}

func (m *Backend) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	m.httpServer.Stop(ctx)
}
