package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/stardustagi/ChatRelay/libs/conf"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const appConfig = `
[global]
app_name = "chatrelay"
app_version = "test"

[upstream]
api_key_env = "CHATRELAY_TEST_UNSET_KEY"

[database]
driver = "sqlite"
dsn = %q

[redis]
addr = %q

[storage]
driver = "local"
root = %q
public_base_url = "/files"

[auth]
jwt_secret = "app-secret"
token_ttl = "1h"
`

func newTestOptions() *option.Options {
	return &option.Options{Http: option.Http{Port: 8080, Path: "/", Metrics: true}}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	logs.SetLogger(zaptest.NewLogger(t))
	t.Cleanup(func() { logs.SetLogger(nil) })

	dir := t.TempDir()
	mr := miniredis.RunT(t)
	cfg := fmt.Sprintf(appConfig, filepath.Join(dir, "app.db"), mr.Addr(), filepath.Join(dir, "files"))
	require.NoError(t, conf.LoadBytes([]byte(cfg)))

	app, err := NewApp(context.Background(), newTestOptions())
	require.NoError(t, err)
	t.Cleanup(app.Stop)
	return app
}

func serve(app *App, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Backend().Engine().ServeHTTP(rec, req)
	return rec
}

func TestNewApp(t *testing.T) {
	app := newTestApp(t)
	assert.NotNil(t, app.Proxy)
	assert.NotNil(t, app.Relay)
	assert.NotNil(t, app.Auth)
	assert.NotNil(t, app.Projects)
	assert.NotNil(t, app.Messages)
	assert.NotNil(t, app.Files)
	assert.False(t, app.IsRunning())
}

func TestAppRoutes(t *testing.T) {
	app := newTestApp(t)

	t.Run("chat without api key", func(t *testing.T) {
		rec := serve(app, http.MethodPost, "/api/chat", "", `{"messages":[]}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"API key is not configured","code":"configuration_error"}`, rec.Body.String())
	})

	t.Run("records require a session", func(t *testing.T) {
		rec := serve(app, http.MethodGet, "/api/v1/projects", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("signup then create project", func(t *testing.T) {
		rec := serve(app, http.MethodPost, "/api/auth/signup", "", `{"email":"amy@example.com","password":"secret1"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var signed struct {
			Data struct {
				AccessToken string `json:"access_token"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signed))
		token := signed.Data.AccessToken
		require.NotEmpty(t, token)

		rec = serve(app, http.MethodPost, "/api/v1/projects", token, `{"name":"Notes"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = serve(app, http.MethodGet, "/api/v1/projects", token, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var listed struct {
			Data []struct {
				Name string `json:"name"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
		require.Len(t, listed.Data, 1)
		assert.Equal(t, "Notes", listed.Data[0].Name)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := serve(app, http.MethodGet, "/metrics", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "chatrelay_proxy_requests_total")
	})
}

func TestNewAppWithoutAuth(t *testing.T) {
	logs.SetLogger(zaptest.NewLogger(t))
	t.Cleanup(func() { logs.SetLogger(nil) })
	require.NoError(t, conf.LoadBytes([]byte("[global]\napp_name = \"chatrelay\"\n")))

	app, err := NewApp(context.Background(), newTestOptions())
	require.NoError(t, err)
	t.Cleanup(app.Stop)
	assert.Nil(t, app.Auth)
	assert.Nil(t, app.Projects)

	rec := serve(app, http.MethodGet, "/api/v1/projects", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewAppAuthNeedsStores(t *testing.T) {
	logs.SetLogger(zaptest.NewLogger(t))
	t.Cleanup(func() { logs.SetLogger(nil) })
	require.NoError(t, conf.LoadBytes([]byte("[global]\napp_name = \"chatrelay\"\n[auth]\njwt_secret = \"x\"\n")))

	_, err := NewApp(context.Background(), newTestOptions())
	assert.Error(t, err)
}
