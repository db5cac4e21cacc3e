package auth

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/libs/errors"
	"github.com/stardustagi/ChatRelay/libs/server"
	"github.com/stardustagi/ChatRelay/protocol"
	"github.com/stardustagi/ChatRelay/utils"
)

type SignUpReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name"`
}

type SignInReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type EmptyReq struct{}

// Register 注册/登录不需要鉴权, 挂在公开分组下
func (m *Service) Register(bk *server.Backend, group string) {
	bk.AddPostHandler(group, server.NewHandler("auth/signup", nil, m.signUp))
	bk.AddPostHandler(group, server.NewHandler("auth/signin", nil, m.signIn))
	bk.AddPostHandler(group, server.NewHandler("auth/signout", nil, m.signOut))
	bk.AddGetHandler(group, server.NewHandler("auth/session", nil, m.session))
}

// bearerToken 浏览器的 websocket 不能带请求头, 退回到 access_token 参数
func bearerToken(c echo.Context) string {
	if token := utils.BearerToken(c.Request()); token != "" {
		return token
	}
	return c.QueryParam("access_token")
}

func (m *Service) signUp(c echo.Context, req SignUpReq, resp *Session) error {
	resp, err := m.SignUp(c.Request().Context(), req.Email, req.Password, req.Name)
	return protocol.Response(c, errors.From(err), resp)
}

func (m *Service) signIn(c echo.Context, req SignInReq, resp *Session) error {
	resp, err := m.SignIn(c.Request().Context(), req.Email, req.Password)
	return protocol.Response(c, errors.From(err), resp)
}

func (m *Service) signOut(c echo.Context, _ EmptyReq, _ struct{}) error {
	return protocol.Response(c, errors.From(m.SignOut(c.Request().Context(), bearerToken(c))), nil)
}

func (m *Service) session(c echo.Context, _ EmptyReq, resp *Session) error {
	resp, err := m.GetSession(c.Request().Context(), bearerToken(c))
	return protocol.Response(c, errors.From(err), resp)
}

// Middleware 校验 Bearer 令牌, 通过后把用户ID写入 server.UserIDKey
func (m *Service) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodOptions {
				return next(c)
			}
			sess, err := m.GetSession(c.Request().Context(), bearerToken(c))
			if err != nil {
				return protocol.Error(c, errors.From(err))
			}
			c.Set(server.UserIDKey, strconv.FormatInt(sess.User.ID, 10))
			return next(c)
		}
	}
}
