package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/utils"
)

// UserIDKey 鉴权中间件写入 echo.Context 的键
const UserIDKey = "user_id"

type Context struct {
	echo.Context
	RemoteAddr string
	ClientId   string
	Header     http.Header
}

func NewContext(c echo.Context) *Context {
	return &Context{
		Context:    c,
		RemoteAddr: utils.GetRemoteAddr(c.Request()),
		ClientId:   c.Request().Header.Get(ClientIDKey),
		Header:     c.Request().Header,
	}
}

// UserID 鉴权通过后的用户ID, 未登录时为空
func (m *Context) UserID() string {
	id, _ := m.Get(UserIDKey).(string)
	return id
}
