package file

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/libs/errors"
	"github.com/stardustagi/ChatRelay/libs/server"
	"github.com/stardustagi/ChatRelay/protocol"
)

const formField = "file"

type DeleteFileReq struct {
	Path string `query:"path" validate:"required"`
}

func (m *Service) Register(bk *server.Backend, group string) {
	bk.AddPostHandler(group, server.NewNativeHandler("files", nil, m.upload))
	bk.AddDeleteHandler(group, server.NewHandler("files", nil, m.delete))
}

// upload multipart/form-data, 字段名 file
func (m *Service) upload(c echo.Context) error {
	ctx := server.NewContext(c)
	fh, err := c.FormFile(formField)
	if err != nil {
		return protocol.Error(c, errors.Validation("File is required"))
	}
	contentType := fh.Header.Get(echo.HeaderContentType)
	if msg := Validate(fh.Filename, contentType, fh.Size); msg != "" {
		return protocol.Error(c, errors.Validation(msg))
	}
	f, err := fh.Open()
	if err != nil {
		return protocol.Error(c, errors.Internal(err))
	}
	defer f.Close()
	att, err := m.Upload(c.Request().Context(), ctx.UserID(), fh.Filename, contentType, fh.Size, f)
	return protocol.Response(c, errors.From(err), att)
}

// delete 只能删除自己目录下的对象
func (m *Service) delete(c echo.Context, req DeleteFileReq, _ struct{}) error {
	ctx := server.NewContext(c)
	if ctx.UserID() == "" || !strings.HasPrefix(req.Path, ctx.UserID()+"/") {
		return protocol.Error(c, errors.New(http.StatusForbidden, errors.CodeUnauthorized, "Not allowed to delete this file"))
	}
	return protocol.Response(c, errors.From(m.Delete(c.Request().Context(), req.Path)), nil)
}
