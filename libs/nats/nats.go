package nats

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/utils"
	"go.uber.org/zap"
)

// NatsConfig 对应配置文件里的 [nats]
type NatsConfig struct {
	Name       string   `json:"name" toml:"name"`
	Url        string   `json:"url" toml:"url"`
	UseStream  bool     `json:"use_stream" toml:"use_stream"`
	StreamName string   `json:"stream_name" toml:"stream_name"`
	Subject    []string `json:"subjects" toml:"subjects"`
	Username   string   `json:"username" toml:"username"`
	Password   string   `json:"password" toml:"password"`
}

type NatsConnection struct {
	mu        sync.Mutex
	conn      *nats.Conn
	config    *NatsConfig
	js        nats.JetStreamContext
	subs      []*nats.Subscription
	useStream bool
	logger    *zap.Logger
}

// ParseConfig 解析 [nats] 段, 未配置 subjects 时使用聊天事件主题
func ParseConfig(data []byte) (*NatsConfig, error) {
	cfg, err := utils.Bytes2Struct[NatsConfig](data)
	if err != nil {
		return nil, errors.Wrap(err, "parse nats config")
	}
	if cfg.Url == "" {
		cfg.Url = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "chatrelay"
	}
	if len(cfg.Subject) == 0 {
		cfg.Subject = []string{DefaultChatSubject}
	}
	return &cfg, nil
}

func NewNatsConnect(natsConfig *NatsConfig) (*NatsConnection, error) {
	if natsConfig == nil {
		return nil, errors.New("nats config is nil")
	}
	if natsConfig.UseStream && natsConfig.StreamName == "" {
		return nil, errNoStreamConfig
	}
	logger := logs.GetLogger("nats").With(logs.String("name", natsConfig.Name))
	opts := []nats.Option{
		nats.Name(natsConfig.Name),
		nats.MaxReconnects(10),
		nats.ReconnectWait(5 * time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", logs.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", logs.ErrorInfo(err))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}
	if natsConfig.Username != "" && natsConfig.Password != "" {
		opts = append(opts, nats.UserInfo(natsConfig.Username, natsConfig.Password))
	}
	conn, err := nats.Connect(natsConfig.Url, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "connect nats %s", natsConfig.Url)
	}

	s := &NatsConnection{
		conn:      conn,
		config:    natsConfig,
		useStream: natsConfig.UseStream,
		logger:    logger,
	}
	if natsConfig.UseStream {
		js, err := conn.JetStream(nats.PublishAsyncMaxPending(100))
		if err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "jetstream context")
		}
		s.js = js
		if err := s.EnsureStream(); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *NatsConnection) IsConnected() bool {
	return s.conn.IsConnected()
}

func (s *NatsConnection) GetConfig() *NatsConfig {
	return s.config
}

func (s *NatsConnection) GetNativeConn() *nats.Conn {
	return s.conn
}

// EnsureStream 不存在时创建 Stream; 聊天事件只做审计, 使用 limits 策略保留
func (s *NatsConnection) EnsureStream() error {
	if !s.useStream {
		return nil
	}
	stream, err := s.js.StreamInfo(s.config.StreamName)
	if err == nil && stream != nil {
		return nil
	}
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return errors.Wrap(err, "stream info")
	}
	s.logger.Info("Stream not found, creating a new one", logs.String("stream", s.config.StreamName))
	_, err = s.js.AddStream(&nats.StreamConfig{
		Name:      s.config.StreamName,
		Subjects:  s.config.Subject,
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		s.logger.Error("Failed to create stream", logs.ErrorInfo(err))
		return errors.Wrap(err, "add stream")
	}
	return nil
}

// Subscribe 普通订阅, 只用于观察事件
func (s *NatsConnection) Subscribe(subject string, handler func(*nats.Msg)) error {
	if subject == "" {
		return errEmptySubject
	}
	sub, err := s.conn.Subscribe(subject, handler)
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", subject)
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	s.logger.Info("Subscribed to subject", logs.String("subject", subject))
	return nil
}

func (s *NatsConnection) Unsubscribe(subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.Subject == subject {
			if err := sub.Unsubscribe(); err != nil {
				return err
			}
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return nil
		}
	}
	return errNotSubscribed
}

// Stop 先 drain 再关闭, 保证已发布的消息送达
func (s *NatsConnection) Stop() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn("NATS drain failed", logs.ErrorInfo(err))
		s.conn.Close()
	}
}
