package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/utils"
)

const (
	ClientIDKey = "x-client-info"

	CorsAllowOrigin  = "*"
	CorsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	CorsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
)

// SetCorsHeaders 所有响应都带同一组 CORS 头
func SetCorsHeaders(h http.Header) {
	h.Set(echo.HeaderAccessControlAllowOrigin, CorsAllowOrigin)
	h.Set(echo.HeaderAccessControlAllowHeaders, CorsAllowHeaders)
	h.Set(echo.HeaderAccessControlAllowMethods, CorsAllowMethods)
}

// Cors 预检请求直接 200 返回, 不带 body
func Cors() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			SetCorsHeaders(c.Response().Header())
			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}

// Request 记录请求进入
func Request() echo.MiddlewareFunc {
	logger := logs.GetLogger("request")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			logger.Debug("request",
				logs.String("method", r.Method),
				logs.String("uri", r.RequestURI),
				logs.String("remote", utils.GetRemoteAddr(r)),
				logs.String("client", r.Header.Get(ClientIDKey)),
				logs.Int64("length", r.ContentLength))
			return next(c)
		}
	}
}

// Access 请求结束后记录状态码和耗时
func Access() echo.MiddlewareFunc {
	logger := logs.GetLogger("access")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info("access",
				logs.String("method", c.Request().Method),
				logs.String("path", c.Path()),
				logs.Int("status", c.Response().Status),
				logs.Int64("size", c.Response().Size),
				logs.Duration("latency", time.Since(start)))
			return nil
		}
	}
}
