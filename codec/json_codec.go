package codec

import (
	"github.com/goccy/go-json"
	"github.com/stardustagi/ChatRelay/protocol"
)

// ICodec websocket 消息编解码
type ICodec interface {
	// Decode 解码
	Decode(data []byte) (protocol.IMessage, error)
	Encode(message protocol.IMessage) (string, error)
}

type JsonCodec struct {
}

func NewJsonCodec() ICodec {
	return &JsonCodec{}
}

func (c *JsonCodec) Decode(data []byte) (protocol.IMessage, error) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *JsonCodec) Encode(message protocol.IMessage) (string, error) {
	byteInfo, err := json.Marshal(message)
	if err != nil {
		return "", err
	}
	return string(byteInfo), nil
}
