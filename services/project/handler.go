package project

import (
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/libs/errors"
	"github.com/stardustagi/ChatRelay/libs/server"
	"github.com/stardustagi/ChatRelay/protocol"
)

type ListProjectsReq struct{}

type DeleteProjectReq struct {
	ID int64 `param:"id" validate:"required"`
}

// Register 挂到已带鉴权中间件的分组下
func (m *Service) Register(bk *server.Backend, group string) {
	bk.AddGetHandler(group, server.NewHandler("projects", nil, m.list))
	bk.AddPostHandler(group, server.NewHandler("projects", nil, m.create))
	bk.AddPutHandler(group, server.NewHandler("projects/:id", nil, m.update))
	bk.AddDeleteHandler(group, server.NewHandler("projects/:id", nil, m.delete))
}

func (m *Service) list(c echo.Context, _ ListProjectsReq, resp []Project) error {
	ctx := server.NewContext(c)
	resp, err := m.List(c.Request().Context(), ctx.UserID())
	return protocol.Response(c, errors.From(err), resp)
}

func (m *Service) create(c echo.Context, req CreateProjectReq, resp *Project) error {
	ctx := server.NewContext(c)
	resp, err := m.Create(c.Request().Context(), ctx.UserID(), req)
	return protocol.Response(c, errors.From(err), resp)
}

func (m *Service) update(c echo.Context, req UpdateProjectReq, resp *Project) error {
	ctx := server.NewContext(c)
	resp, err := m.Update(c.Request().Context(), ctx.UserID(), req.ID, req)
	return protocol.Response(c, errors.From(err), resp)
}

func (m *Service) delete(c echo.Context, req DeleteProjectReq, _ struct{}) error {
	ctx := server.NewContext(c)
	return protocol.Response(c, errors.From(m.Delete(c.Request().Context(), ctx.UserID(), req.ID)), nil)
}
