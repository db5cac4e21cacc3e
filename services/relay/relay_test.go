package relay

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/codec"
	"github.com/stardustagi/ChatRelay/libs/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/server"
	"github.com/stardustagi/ChatRelay/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type openFunc func(ctx context.Context, body []byte) (io.ReadCloser, *errors.StackError)

func (f openFunc) Open(ctx context.Context, body []byte) (io.ReadCloser, *errors.StackError) {
	return f(ctx, body)
}

func sse(t *testing.T, parts ...string) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		frame, err := codec.EncodeContentChunk(p)
		require.NoError(t, err)
		buf.Write(frame)
	}
	buf.Write(codec.EncodeDone())
	return buf.Bytes()
}

func dial(t *testing.T, opener IOpener) (*websocket.Conn, server.IClientManager) {
	t.Helper()
	logs.SetLogger(zaptest.NewLogger(t))
	t.Cleanup(func() { logs.SetLogger(nil) })

	manager := server.NewClientManager(logs.GetLogger("websocketClientManager"), nil)
	r := New(opener, manager, server.HttpWebSocketConfig{}, nil)
	e := echo.New()
	e.GET("/api/chat/ws", r.Handle, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(server.UserIDKey, "u1")
			return next(c)
		}
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/chat/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn, manager
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	require.NoError(t, conn.WriteJSON(protocol.Message{Main: protocol.MainChat, Sub: SubSend, Payload: payload}))
}

func read(t *testing.T, conn *websocket.Conn) protocol.Message {
	var msg protocol.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRelayDeltas(t *testing.T) {
	var gotBody string
	conn, manager := dial(t, openFunc(func(_ context.Context, body []byte) (io.ReadCloser, *errors.StackError) {
		gotBody = string(body)
		return io.NopCloser(bytes.NewReader(sse(t, "Hel", "lo", " 世界"))), nil
	}))
	req := `{"messages":[{"role":"user","content":"hi"}]}`
	send(t, conn, req)

	var deltas []string
	for {
		msg := read(t, conn)
		if msg.Sub == protocol.SubDone {
			break
		}
		require.Equal(t, protocol.SubDelta, msg.Sub)
		deltas = append(deltas, msg.Payload)
	}
	assert.Equal(t, []string{"Hel", "lo", " 世界"}, deltas)
	assert.Equal(t, req, gotBody)
	assert.Eventually(t, func() bool { return manager.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, manager.SendToUser("u1", protocol.NewMessage(protocol.MainChat, "notice", "x")))
	assert.Equal(t, "notice", read(t, conn).Sub)
}

func TestRelayErrors(t *testing.T) {
	conn, _ := dial(t, openFunc(func(context.Context, []byte) (io.ReadCloser, *errors.StackError) {
		return nil, errors.RateLimited()
	}))

	send(t, conn, `{}`)
	msg := read(t, conn)
	assert.Equal(t, protocol.SubError, msg.Sub)
	assert.JSONEq(t, `{"error":"Rate limit exceeded. Please try again later.","code":"rate_limited"}`, msg.Payload)

	require.NoError(t, conn.WriteJSON(protocol.Message{Main: "other", Sub: "x"}))
	msg = read(t, conn)
	assert.Equal(t, protocol.SubError, msg.Sub)
	var body protocol.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &body))
	assert.Equal(t, errors.CodeValidation, body.Code)
}

type failingReader struct{ data []byte }

func (m *failingReader) Read(p []byte) (int, error) {
	if len(m.data) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(p, m.data)
	m.data = m.data[n:]
	return n, nil
}

func TestRelayUpstreamInterrupted(t *testing.T) {
	frame, err := codec.EncodeContentChunk("part")
	require.NoError(t, err)
	conn, _ := dial(t, openFunc(func(context.Context, []byte) (io.ReadCloser, *errors.StackError) {
		return io.NopCloser(&failingReader{data: frame}), nil
	}))
	send(t, conn, `{}`)
	assert.Equal(t, protocol.Message{Main: protocol.MainChat, Sub: protocol.SubDelta, Payload: "part"}, read(t, conn))
	msg := read(t, conn)
	assert.Equal(t, protocol.SubError, msg.Sub)
	assert.Contains(t, msg.Payload, errors.CodeUpstreamUnavailable)
}

func TestRelayOneStreamPerConnection(t *testing.T) {
	pr, pw := io.Pipe()
	opened := make(chan struct{})
	conn, _ := dial(t, openFunc(func(context.Context, []byte) (io.ReadCloser, *errors.StackError) {
		close(opened)
		return pr, nil
	}))
	send(t, conn, `{}`)
	<-opened
	send(t, conn, `{}`)

	msg := read(t, conn)
	assert.Equal(t, protocol.SubError, msg.Sub)
	assert.Contains(t, msg.Payload, msgBusy)

	frame, err := codec.EncodeContentChunk("ok")
	require.NoError(t, err)
	_, _ = pw.Write(frame)
	_, _ = pw.Write(codec.EncodeDone())
	_ = pw.Close()
	assert.Equal(t, "ok", read(t, conn).Payload)
	assert.Equal(t, protocol.SubDone, read(t, conn).Sub)
}
