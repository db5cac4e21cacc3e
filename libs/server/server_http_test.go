package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/codec"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/option"
	"github.com/stardustagi/ChatRelay/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type HelloReq struct {
	Name string `json:"name" validate:"required"`
}

type HelloResp struct {
	Message string `json:"message"`
}

func newTestBackend(t *testing.T) *Backend {
	logs.SetLogger(zaptest.NewLogger(t))
	t.Cleanup(func() { logs.SetLogger(nil) })
	opts := &option.Options{
		Http: option.Http{
			Port:    8080,
			Path:    "/",
			Cors:    true,
			Access:  true,
			Metrics: true,
		},
	}
	bk, err := NewBackend(opts)
	require.NoError(t, err)
	return bk
}

func do(bk *Backend, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	bk.Engine().ServeHTTP(rec, req)
	return rec
}

func TestHandler(t *testing.T) {
	bk := newTestBackend(t)
	h := NewHandler(
		"hello",
		[]string{"greet"},
		func(ctx echo.Context, req HelloReq, resp HelloResp) error {
			resp.Message = "Hello " + req.Name
			return ctx.JSON(http.StatusOK, resp)
		},
	)
	bk.AddGroup("test")
	bk.AddPostHandler("test", h)

	t.Run("OK", func(t *testing.T) {
		rec := do(bk, http.MethodPost, "/api/test/hello", `{"name":"relay"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Hello relay"}`, rec.Body.String())
	})
	t.Run("RequestsDoNotShareState", func(t *testing.T) {
		do(bk, http.MethodPost, "/api/test/hello", `{"name":"first"}`)
		rec := do(bk, http.MethodPost, "/api/test/hello", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("ValidationError", func(t *testing.T) {
		rec := do(bk, http.MethodPost, "/api/test/hello", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body protocol.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "name is required", body.Error)
		assert.Equal(t, "validation_error", body.Code)
	})
	t.Run("InvalidJSON", func(t *testing.T) {
		rec := do(bk, http.MethodPost, "/api/test/hello", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `"invalid_json"`)
	})
	t.Run("CorsOnEveryResponse", func(t *testing.T) {
		rec := do(bk, http.MethodPost, "/api/test/hello", `{"name":"x"}`)
		assert.Equal(t, CorsAllowOrigin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
		assert.Equal(t, CorsAllowHeaders, rec.Header().Get(echo.HeaderAccessControlAllowHeaders))
		assert.Equal(t, CorsAllowMethods, rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	})
	t.Run("Preflight", func(t *testing.T) {
		rec := do(bk, http.MethodOptions, "/api/test/hello", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
		assert.Equal(t, CorsAllowOrigin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	})
	t.Run("Metrics", func(t *testing.T) {
		rec := do(bk, http.MethodGet, "/metrics", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}

func TestNewHttpServerRejectsRelativePath(t *testing.T) {
	_, err := NewHttpServer(&option.Options{Http: option.Http{Path: "api"}})
	assert.Error(t, err)
}

func TestApiPath(t *testing.T) {
	srv, err := NewHttpServer(&option.Options{Http: option.Http{Path: "/v1"}})
	require.NoError(t, err)
	assert.Equal(t, "/v1/api/chat", srv.apiPath("chat"))

	srv, err = NewHttpServer(&option.Options{})
	require.NoError(t, err)
	assert.Equal(t, "/api/chat", srv.apiPath("chat"))
}

type echoProcessor struct{}

func (echoProcessor) HandlerMessage(_ context.Context, client IClient, msg protocol.IMessage) error {
	if err := client.Send(protocol.NewMessage(msg.GetMain(), "delta", strings.ToUpper(msg.GetPayload()))); err != nil {
		return err
	}
	return client.Send(protocol.NewMessage(msg.GetMain(), "done", ""))
}

func TestWebsocketClient(t *testing.T) {
	logs.SetLogger(zaptest.NewLogger(t))
	t.Cleanup(func() { logs.SetLogger(nil) })

	manager := NewClientManager(logs.GetLogger("websocketClientManager"), nil)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		client := NewClient(context.Background(), "u1", "s1", conn, codec.NewJsonCodec(), HttpWebSocketConfig{}, echoProcessor{}, manager)
		manager.RegisterClient(client)
		client.Listen()
		return nil
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(protocol.Message{Main: "chat", Sub: "send", Payload: "hi"}))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first, second protocol.Message
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, protocol.Message{Main: "chat", Sub: "delta", Payload: "HI"}, first)
	assert.Equal(t, "done", second.Sub)

	assert.Eventually(t, func() bool { return manager.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, manager.SendToUser("u1", protocol.NewMessage("chat", "ping", "")))

	var pushed protocol.Message
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, "ping", pushed.Sub)

	manager.KickClientByUserId("u1")
	assert.Equal(t, 0, manager.ClientCount())
}
