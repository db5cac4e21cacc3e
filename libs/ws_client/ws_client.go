// Package wsclient 连接 /api/chat/ws 的客户端, 把推送的增量交给回调
package wsclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/codec"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/protocol"
	"go.uber.org/zap"
)

const (
	SubSend = "send"

	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4 << 20
)

var ErrClosed = errors.New("websocket client closed")

// ServerError 服务端推送的 error 消息
type ServerError struct {
	protocol.ErrorResponse
}

func (e *ServerError) Error() string {
	return e.ErrorResponse.Error
}

type WSClient struct {
	conn     *websocket.Conn
	codec    codec.ICodec
	logger   *zap.Logger
	sendChan chan []byte
	incoming chan protocol.IMessage
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
	chatMu   sync.Mutex
}

func Dial(ctx context.Context, serverURL string, header http.Header) (*WSClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, header)
	if err != nil {
		return nil, errors.Wrap(err, "dial failed")
	}
	cctx, cancel := context.WithCancel(context.Background())
	client := &WSClient{
		conn:     conn,
		codec:    codec.NewJsonCodec(),
		logger:   logs.GetLogger("wsclient"),
		sendChan: make(chan []byte, 16),
		incoming: make(chan protocol.IMessage, 256),
		done:     make(chan struct{}),
		ctx:      cctx,
		cancel:   cancel,
	}
	go client.readPump()
	go client.writePump()
	return client, nil
}

// Done 连接断开后关闭
func (c *WSClient) Done() <-chan struct{} {
	return c.done
}

func (c *WSClient) readPump() {
	defer func() {
		close(c.done)
		_ = c.Close()
	}()
	c.conn.SetReadLimit(readLimit)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("read error", logs.ErrorInfo(err))
			}
			return
		}
		msg, err := c.codec.Decode(data)
		if err != nil {
			c.logger.Warn("decode message error", logs.ErrorInfo(err))
			continue
		}
		select {
		case c.incoming <- msg:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case message := <-c.sendChan:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("write message failed", logs.ErrorInfo(err))
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			// 等对端回关闭帧, 超时直接断开
			select {
			case <-c.done:
			case <-time.After(writeWait):
			}
			_ = c.conn.Close()
			return
		}
	}
}

// SendMessage 发送消息
func (c *WSClient) SendMessage(main, sub, payload string) error {
	data, err := c.codec.Encode(protocol.NewMessage(main, sub, payload))
	if err != nil {
		return errors.Wrap(err, "marshal message error")
	}
	select {
	case c.sendChan <- []byte(data):
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// Chat 发送一次对话并阻塞到 done / error; 同一连接上串行执行
func (c *WSClient) Chat(ctx context.Context, body []byte, onDelta func(string)) error {
	c.chatMu.Lock()
	defer c.chatMu.Unlock()

	if err := c.SendMessage(protocol.MainChat, SubSend, string(body)); err != nil {
		return err
	}
	for {
		select {
		case msg := <-c.incoming:
			if msg.GetMain() != protocol.MainChat {
				continue
			}
			switch msg.GetSub() {
			case protocol.SubDelta:
				if onDelta != nil {
					onDelta(msg.GetPayload())
				}
			case protocol.SubDone:
				return nil
			case protocol.SubError:
				se := &ServerError{}
				if err := json.Unmarshal([]byte(msg.GetPayload()), &se.ErrorResponse); err != nil {
					return errors.Wrap(err, "decode error payload")
				}
				return se
			}
		case <-c.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close 可以重复调用, 连接由 writePump 在发出关闭帧后断开
func (c *WSClient) Close() error {
	c.once.Do(c.cancel)
	return nil
}
