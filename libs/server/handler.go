package server

import (
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/libs/errors"
	"github.com/stardustagi/ChatRelay/protocol"
)

type Handler[Req any, Resp any] struct {
	Path string // 路径
	Name string
	Tags []string
	Func func(echo.Context, Req, Resp) error
}

// 抽象接口
type IHandler interface {
	GetName() string
	GetTags() []string
	GetFunc() func(echo.Context) error
}

func NewHandler[Req any, Resp any](
	name string,
	tags []string,
	f func(echo.Context, Req, Resp) error,
) *Handler[Req, Resp] {
	return &Handler[Req, Resp]{
		Path: name,
		Name: name,
		Tags: tags,
		Func: f,
	}
}

func (h *Handler[Req, Resp]) GetName() string {
	return h.Name
}

func (h *Handler[Req, Resp]) GetTags() []string {
	return h.Tags
}

func (h *Handler[Req, Resp]) GetFunc() func(echo.Context) error {
	return func(c echo.Context) error {
		// 每个请求独立的 req/resp
		var req Req
		var resp Resp
		// 绑定
		if err := c.Bind(&req); err != nil {
			return protocol.Error(c, errors.InvalidJSON(err))
		}
		// 验证
		if err := c.Validate(&req); err != nil {
			return protocol.Error(c, errors.Validation(ValidationMessage(err)))
		}
		// 执行体
		return h.Func(c, req, resp)
	}
}

// nativeHandler 直接包装 echo.HandlerFunc, 不做绑定
type nativeHandler struct {
	name string
	tags []string
	f    echo.HandlerFunc
}

func NewNativeHandler(name string, tags []string, f echo.HandlerFunc) IHandler {
	return &nativeHandler{name: name, tags: tags, f: f}
}

func (h *nativeHandler) GetName() string                   { return h.name }
func (h *nativeHandler) GetTags() []string                 { return h.tags }
func (h *nativeHandler) GetFunc() func(echo.Context) error { return h.f }

// 句柄管理器抽象接口
type IHandlers interface {
	GetHandlers() []IHandler
	AddHandlers(handler IHandler)
	GetHandlersLen() int
}

// 句柄管理器
type Handlers struct {
	handlers []IHandler
}

func NewHandlers() IHandlers {
	return &Handlers{
		handlers: make([]IHandler, 0),
	}
}

func (h *Handlers) GetHandlers() []IHandler {
	return h.handlers
}

func (h *Handlers) AddHandlers(handler IHandler) {
	h.handlers = append(h.handlers, handler)
}

func (h *Handlers) GetHandlersLen() int {
	return len(h.handlers)
}

type RouteGroup struct {
	Prefix string
	Group  *echo.Group
}

func NewRouteGroup(prefix string, group *echo.Group) *RouteGroup {
	return &RouteGroup{
		Prefix: prefix,
		Group:  group,
	}
}
