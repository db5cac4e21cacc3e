package nats

import (
	"errors"

	"github.com/nats-io/nats.go"
)

var (
	errEmptySubject   = errors.New("empty subject")
	errNotSubscribed  = errors.New("subject not found")
	errNoStreamConfig = errors.New("stream name is required when use_stream is set")
)

// DefaultChatSubject 聊天事件默认主题
const DefaultChatSubject = "chatrelay.chat.events"

type Subscription = nats.Subscription
type Msg = nats.Msg
