package message

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/libs/databases"
	"github.com/stardustagi/ChatRelay/libs/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/server"
	"github.com/stardustagi/ChatRelay/llm/models"
	"github.com/stardustagi/ChatRelay/services/file"
	"github.com/stardustagi/ChatRelay/services/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	svc      *Service
	projects *project.Service
	dao      databases.BaseDao
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logs.SetLogger(zaptest.NewLogger(t))
	t.Cleanup(func() { logs.SetLogger(nil) })

	engine, err := databases.OpenWith(databases.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "message.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	dao := databases.NewBaseDao(engine)
	require.NoError(t, dao.Migrations(nil, append(project.Tables(), Tables()...)))

	projects := project.NewService(dao)
	svc := NewService(dao, projects)
	clock := time.UnixMilli(1_700_000_000_000)
	svc.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return &fixture{svc: svc, projects: projects, dao: dao}
}

func (f *fixture) project(t *testing.T, userID string) int64 {
	p, err := f.projects.Create(context.Background(), userID, project.CreateProjectReq{Name: "p"})
	require.NoError(t, err)
	return p.ID
}

func TestGetOrCreateSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.project(t, "u1")

	first, err := f.svc.GetOrCreateSession(ctx, "u1", pid)
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionTitle, first.Title)

	again, err := f.svc.GetOrCreateSession(ctx, "u1", pid)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// 有多个会话时取最新的
	newer := &ChatSession{ID: first.ID + 1, ProjectID: pid, UserID: "u1", Title: "newer", CreatedAt: first.CreatedAt + 1000}
	_, err = f.dao.InsertOne(newer)
	require.NoError(t, err)
	latest, err := f.svc.GetOrCreateSession(ctx, "u1", pid)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	_, err = f.svc.GetOrCreateSession(ctx, "u2", pid)
	assert.ErrorIs(t, err, errors.NotFound(""))
}

func TestCreateAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.project(t, "u1")

	att := []file.Attachment{{ID: "u1/1-abcdefg.png", Name: "a.png", URL: "http://x/u1/1-abcdefg.png", Type: "image/png", Size: 3}}
	m1, err := f.svc.Create(ctx, "u1", CreateMessageReq{ProjectID: pid, Role: models.RoleUser, Content: "hi", Attachments: att})
	require.NoError(t, err)
	assert.NotZero(t, m1.SessionID)

	m2, err := f.svc.Create(ctx, "u1", CreateMessageReq{ProjectID: pid, SessionID: m1.SessionID, Role: models.RoleAssistant, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, m1.SessionID, m2.SessionID)

	_, err = f.svc.Create(ctx, "u1", CreateMessageReq{ProjectID: pid, Role: models.RoleSystem, Content: "x"})
	assert.ErrorIs(t, err, errors.Validation(""))

	list, err := f.svc.List(ctx, "u1", pid)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, m1.ID, list[0].ID)
	assert.Equal(t, att, list[0].Attachments)
	assert.Empty(t, list[1].Attachments)

	assert.Equal(t, []models.ChatMessage{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}, History(list))
}

func TestClearOnlyOwnMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.project(t, "u1")
	other := f.project(t, "u1")

	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, "u1", CreateMessageReq{ProjectID: pid, Role: models.RoleUser, Content: strconv.Itoa(i)})
		require.NoError(t, err)
	}
	_, err := f.svc.Create(ctx, "u1", CreateMessageReq{ProjectID: other, Role: models.RoleUser, Content: "keep"})
	require.NoError(t, err)

	n, err := f.svc.Clear(ctx, "u1", pid)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	list, err := f.svc.List(ctx, "u1", pid)
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = f.svc.List(ctx, "u1", other)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.Clear(ctx, "u2", other)
	assert.ErrorIs(t, err, errors.NotFound(""))
}

func TestHandlers(t *testing.T) {
	f := newFixture(t)
	pid := strconv.FormatInt(f.project(t, "u1"), 10)

	e := echo.New()
	e.Validator = server.NewCustomValidator()
	g := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(server.UserIDKey, "u1")
			return next(c)
		}
	})
	g.GET("/projects/:id/messages", server.NewHandler("", nil, f.svc.list).GetFunc())
	g.POST("/projects/:id/messages", server.NewHandler("", nil, f.svc.create).GetFunc())
	g.DELETE("/projects/:id/messages", server.NewHandler("", nil, f.svc.clear).GetFunc())
	g.POST("/projects/:id/session", server.NewHandler("", nil, f.svc.session).GetFunc())

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if body != "" {
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/api/v1/projects/"+pid+"/session", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"title":"Chat Session"`)

	rec = do(http.MethodPost, "/api/v1/projects/"+pid+"/messages", `{"role":"bot","content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"role must be one of user assistant","code":"validation_error"}`, rec.Body.String())

	rec = do(http.MethodPost, "/api/v1/projects/"+pid+"/messages", `{"role":"user","content":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(http.MethodGet, "/api/v1/projects/"+pid+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Data []Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Data, 1)
	assert.Equal(t, "hi", listed.Data[0].Content)

	rec = do(http.MethodGet, "/api/v1/projects/999/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(http.MethodDelete, "/api/v1/projects/"+pid+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"errcode":0,"errmsg":"ok","data":{"deleted":1}}`, rec.Body.String())
}
