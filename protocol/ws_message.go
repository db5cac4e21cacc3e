package protocol

import (
	"github.com/stardustagi/ChatRelay/utils"
)

// websocket 上的消息主类型/子类型
const (
	MainChat = "chat"

	SubDelta = "delta"
	SubDone  = "done"
	SubError = "error"
)

type Message struct {
	Main    string `json:"main"`
	Sub     string `json:"sub"`
	Payload string `json:"payload"`
}

type IMessage interface {
	GetPayload() string
	GetMain() string
	GetSub() string
}

func (m *Message) GetPayload() string {
	return m.Payload
}

func (m *Message) GetMain() string {
	return m.Main
}

func (m *Message) GetSub() string {
	return m.Sub
}

// NewMessage 创建一个纯文本消息
func NewMessage(main, sub, payload string) IMessage {
	return &Message{
		Main:    main,
		Sub:     sub,
		Payload: payload,
	}
}

// NewJsonMessage 创建一个 payload 为 JSON 的消息
func NewJsonMessage[T any](main, sub string, data T) IMessage {
	payload, err := utils.Struct2Bytes(data)
	if err != nil {
		return nil // 处理错误
	}
	return &Message{
		Main:    main,
		Sub:     sub,
		Payload: payload,
	}
}
