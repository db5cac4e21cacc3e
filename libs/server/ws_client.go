package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/codec"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/protocol"
	"go.uber.org/zap"
)

// ErrClientClosed 连接已关闭后继续发送
var ErrClientClosed = errors.New("websocket client closed")

// IMessageProcessor 处理客户端发来的一条消息, 可以通过 client 推送任意多条回复
type IMessageProcessor interface {
	HandlerMessage(ctx context.Context, client IClient, msg protocol.IMessage) error
}

type IClient interface {
	GetSessionID() string
	GetUserID() string
	Context() context.Context
	Send(msg protocol.IMessage) error
	Close() error
	Listen()
}

type Client struct {
	sessionId string          // 客户端ID
	userId    string          // 用户ID,方便根据用户ID获取客户端
	conn      *websocket.Conn // WebSocket连接
	codec     codec.ICodec    // 编解码器
	config    HttpWebSocketConfig
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	handler   IMessageProcessor
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	cm        IClientManager // 客户端管理器接口
	wg        sync.WaitGroup
}

func NewClient(ctx context.Context, userId, sessionId string, conn *websocket.Conn, c codec.ICodec, config HttpWebSocketConfig, handler IMessageProcessor, cm IClientManager) IClient {
	cctx, cancel := context.WithCancel(ctx)
	return &Client{
		sessionId: sessionId,
		userId:    userId,
		conn:      conn,
		codec:     c,
		config:    config.WithDefaults(),
		logger:    logs.GetLogger("websocketClient").With(logs.String("sessionId", sessionId)),
		ctx:       cctx,
		cancel:    cancel,
		handler:   handler,
		send:      make(chan []byte, 256),
		closed:    make(chan struct{}),
		cm:        cm,
	}
}

func (c *Client) GetSessionID() string {
	return c.sessionId
}

func (c *Client) GetUserID() string {
	return c.userId
}

// Context 连接关闭时取消
func (c *Client) Context() context.Context {
	return c.ctx
}

func (c *Client) Send(msg protocol.IMessage) error {
	data, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- []byte(data):
		return nil
	case <-c.closed:
		return ErrClientClosed
	}
}

// 发送数据
func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.writeWait()))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("write message failed", logs.ErrorInfo(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.writeWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			// 尽量把已排队的消息写完
			for {
				select {
				case message := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.writeWait()))
					if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
						return
					}
				default:
					_ = c.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(c.config.writeWait()))
					return
				}
			}
		}
	}
}

// 接收数据
func (c *Client) readPump() {
	defer func() {
		if c.cm != nil {
			c.cm.UnregisterClient(c)
		}
		c.cancel()
		c.logger.Info("Connection closed")
	}()

	c.conn.SetReadLimit(int64(c.config.ReadLimit))
	_ = c.conn.SetReadDeadline(time.Now().Add(c.config.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.pongWait()))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("read error:", logs.ErrorInfo(err))
			}
			return
		}
		if len(msg) == 0 {
			continue
		}
		message, err := c.codec.Decode(msg)
		if err != nil {
			c.logger.Info("decode error:", logs.ErrorInfo(err))
			continue
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.handler.HandlerMessage(c.ctx, c, message); err != nil {
				c.logger.Error("message handler error:", logs.ErrorInfo(err))
			}
		}()
	}
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
	})
	return nil
}

// Listen 阻塞到连接断开, 并等待进行中的消息处理结束
func (c *Client) Listen() {
	c.logger.Info("Client listening", logs.String("userId", c.userId))
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
		// 写端退出后不再无限等待对端的关闭帧
		_ = c.conn.SetReadDeadline(time.Now().Add(c.config.writeWait()))
	}()
	c.readPump()
	c.wg.Wait()
	_ = c.Close()
	<-done
	_ = c.conn.Close()
}
