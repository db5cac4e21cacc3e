package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/option"
	"go.uber.org/zap"
)

type HttpServer struct {
	addr   string
	path   string
	logger *zap.Logger
	engine *echo.Echo
	group  map[string]*RouteGroup
}

func NewHttpServer(opts *option.Options) (*HttpServer, error) {
	if opts.Http.Path != "" && opts.Http.Path[0] != '/' {
		return nil, errors.New("the http.path must start with a /")
	}
	engine := echo.New()
	engine.HideBanner = true
	engine.HidePort = true
	engine.Validator = NewCustomValidator()
	engine.Use(middleware.Recover())
	if opts.Http.Cors {
		engine.Use(Cors())
	}
	if opts.Http.RequestLog {
		engine.Use(Request())
	}
	if opts.Http.Access {
		engine.Use(Access())
	}
	engine.Server.IdleTimeout = time.Duration(opts.Http.IdleTimeout) * time.Second
	engine.Server.ReadTimeout = time.Duration(opts.Http.ReadTimeout) * time.Second
	// 0 表示不限制, 流式响应可能持续很久
	engine.Server.WriteTimeout = time.Duration(opts.Http.WriteTimeout) * time.Second

	srv := &HttpServer{
		logger: logs.GetLogger("httpServer"),
		engine: engine,
		group:  make(map[string]*RouteGroup),
		addr:   fmt.Sprintf("%s:%d", opts.Http.Address, opts.Http.Port),
		path:   opts.Http.Path,
	}
	return srv, nil
}

func (m *HttpServer) Engine() *echo.Echo {
	return m.engine
}

func (m *HttpServer) Addr() string {
	return m.addr
}

func (m *HttpServer) Use(middleware ...echo.MiddlewareFunc) *HttpServer {
	m.engine.Use(middleware...)
	return m
}

// Startup 阻塞直到服务关闭
func (m *HttpServer) Startup() error {
	m.logger.Info("http server listened on:", zap.String("addr", m.addr))
	// 打印路由
	for _, route := range m.engine.Routes() {
		m.logger.Info("http route registered:", logs.String("method", route.Method), logs.String("path", route.Path))
	}
	if err := m.engine.Start(m.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *HttpServer) Stop(ctx context.Context) {
	if err := m.engine.Shutdown(ctx); err != nil {
		m.logger.Error("shutdown http server:", zap.Error(err))
		_ = m.engine.Close()
	}
}

func (m *HttpServer) apiPath(path string) string {
	p, _ := url.JoinPath("/", m.path, "api", path)
	return p
}

// Handle registers a new route under <path>/api.
func (m *HttpServer) Handle(method string, path string, handler IHandler) {
	m.engine.Add(method, m.apiPath(path), handler.GetFunc())
}

// Any 注册所有方法, 由 handler 自己判断
func (m *HttpServer) Any(path string, handler IHandler) {
	m.engine.Any(m.apiPath(path), handler.GetFunc())
}

func (m *HttpServer) Internal(method string, path string, handler IHandler) {
	p, _ := url.JoinPath("/", m.path, "internal", path)
	m.engine.Add(method, p, handler.GetFunc())
}

func (m *HttpServer) AddNativeHandler(method string, path string, handler echo.HandlerFunc) {
	m.engine.Add(method, path, handler)
}

func (m *HttpServer) AddGroup(path string, middleware ...echo.MiddlewareFunc) {
	urlPath := m.apiPath(path)
	m.group[path] = NewRouteGroup(path, m.engine.Group(urlPath, middleware...))
	m.logger.Info("http group registered:", logs.String("path", urlPath))
}

func (m *HttpServer) route(method, path, group string, handler IHandler) {
	if group == "" {
		m.Handle(method, path, handler)
		return
	}
	g, exists := m.group[group]
	if !exists {
		m.logger.Error("group not found", logs.String("group", group))
		return
	}
	g.Group.Add(method, "/"+path, handler.GetFunc())
	m.logger.Debug("http handler registered to group:", logs.String("path", path), logs.String("prefix", g.Prefix))
}

func (m *HttpServer) Get(path string, group string, handler IHandler) {
	m.route(http.MethodGet, path, group, handler)
}

func (m *HttpServer) Post(path string, group string, handler IHandler) {
	m.route(http.MethodPost, path, group, handler)
}

func (m *HttpServer) Put(path string, group string, handler IHandler) {
	m.route(http.MethodPut, path, group, handler)
}

func (m *HttpServer) Delete(path string, group string, handler IHandler) {
	m.route(http.MethodDelete, path, group, handler)
}
