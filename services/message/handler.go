package message

import (
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/libs/errors"
	"github.com/stardustagi/ChatRelay/libs/server"
	"github.com/stardustagi/ChatRelay/protocol"
)

type ProjectReq struct {
	ProjectID int64 `param:"id" validate:"required"`
}

type ClearResp struct {
	Deleted int64 `json:"deleted"`
}

func (m *Service) Register(bk *server.Backend, group string) {
	bk.AddGetHandler(group, server.NewHandler("projects/:id/messages", nil, m.list))
	bk.AddPostHandler(group, server.NewHandler("projects/:id/messages", nil, m.create))
	bk.AddDeleteHandler(group, server.NewHandler("projects/:id/messages", nil, m.clear))
	bk.AddPostHandler(group, server.NewHandler("projects/:id/session", nil, m.session))
}

func (m *Service) list(c echo.Context, req ProjectReq, resp []Message) error {
	ctx := server.NewContext(c)
	if err := m.checkProject(c.Request().Context(), ctx.UserID(), req.ProjectID); err != nil {
		return protocol.Error(c, errors.From(err))
	}
	resp, err := m.List(c.Request().Context(), ctx.UserID(), req.ProjectID)
	return protocol.Response(c, errors.From(err), resp)
}

func (m *Service) create(c echo.Context, req CreateMessageReq, resp *Message) error {
	ctx := server.NewContext(c)
	resp, err := m.Create(c.Request().Context(), ctx.UserID(), req)
	return protocol.Response(c, errors.From(err), resp)
}

func (m *Service) clear(c echo.Context, req ProjectReq, resp ClearResp) error {
	ctx := server.NewContext(c)
	n, err := m.Clear(c.Request().Context(), ctx.UserID(), req.ProjectID)
	if err != nil {
		return protocol.Error(c, errors.From(err))
	}
	resp.Deleted = n
	return protocol.Response(c, nil, resp)
}

func (m *Service) session(c echo.Context, req ProjectReq, resp *ChatSession) error {
	ctx := server.NewContext(c)
	resp, err := m.GetOrCreateSession(c.Request().Context(), ctx.UserID(), req.ProjectID)
	return protocol.Response(c, errors.From(err), resp)
}
