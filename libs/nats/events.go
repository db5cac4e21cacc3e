package nats

import (
	"time"

	"github.com/goccy/go-json"
)

// 聊天事件类型
const (
	EventChatCompleted = "chat.completed"
	EventChatFailed    = "chat.failed"
)

// ChatEvent 每次代理请求结束后发布一条, 不含消息内容
type ChatEvent struct {
	Type         string `json:"type"`
	RequestID    string `json:"request_id"`
	Model        string `json:"model,omitempty"`
	MessageCount int    `json:"message_count,omitempty"`
	Status       int    `json:"status"`
	Code         string `json:"code,omitempty"`
	Bytes        int64  `json:"bytes,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	At           int64  `json:"at"`
}

type IEventPublisher interface {
	PublishChatEvent(ev ChatEvent) error
}

// IPublisher NatsConnection 满足该接口, 测试里可替换
type IPublisher interface {
	PublishAsync(subject string, data []byte) error
}

type eventPublisher struct {
	pub     IPublisher
	subject string
}

func NewEventPublisher(pub IPublisher, subject string) IEventPublisher {
	if subject == "" {
		subject = DefaultChatSubject
	}
	return &eventPublisher{pub: pub, subject: subject}
}

func (m *eventPublisher) PublishChatEvent(ev ChatEvent) error {
	if ev.At == 0 {
		ev.At = time.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return m.pub.PublishAsync(m.subject, data)
}

type nopPublisher struct{}

// NopEventPublisher 未配置 nats 时使用
func NopEventPublisher() IEventPublisher {
	return nopPublisher{}
}

func (nopPublisher) PublishChatEvent(ChatEvent) error { return nil }
