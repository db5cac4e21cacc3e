package codec

import (
	"bytes"
	"errors"

	"github.com/goccy/go-json"
	"github.com/stardustagi/ChatRelay/llm/models"
)

// FrameKind 一行 SSE 文本的分类
type FrameKind int

const (
	FrameSkip FrameKind = iota // 空行、注释、非 data 行
	FrameData
	FrameDone
)

var (
	dataPrefix = []byte("data: ")
	doneMarker = []byte("[DONE]")
)

// ErrIncompleteFrame data 行里的 JSON 还不完整
var ErrIncompleteFrame = errors.New("incomplete frame")

type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// ParseLine 解析一行(不含换行符), 会去掉末尾一个 \r
func ParseLine(line []byte) Frame {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(line) == 0 || line[0] == ':' || len(bytes.TrimSpace(line)) == 0 {
		return Frame{Kind: FrameSkip}
	}
	if !bytes.HasPrefix(line, dataPrefix) {
		return Frame{Kind: FrameSkip}
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if bytes.Equal(payload, doneMarker) {
		return Frame{Kind: FrameDone}
	}
	return Frame{Kind: FrameData, Payload: payload}
}

// DecodeDelta 解析 data 帧的 JSON; 语法不完整时返回 ErrIncompleteFrame,
// 结构不符时视为没有增量
func DecodeDelta(payload []byte) (models.StreamDelta, error) {
	if !json.Valid(payload) {
		return models.StreamDelta{}, ErrIncompleteFrame
	}
	var chunk models.StreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return models.StreamDelta{}, nil
	}
	return chunk.Delta(), nil
}

// EncodeData 编码成一帧 "data: <json>\n\n"
func EncodeData(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(b)+len(dataPrefix)+2)
	out = append(out, dataPrefix...)
	out = append(out, b...)
	out = append(out, '\n', '\n')
	return out, nil
}

// EncodeDone 结束帧
func EncodeDone() []byte {
	return []byte("data: [DONE]\n\n")
}

// EncodeContentChunk 构造一个只带 content 的 OpenAI 风格增量帧
func EncodeContentChunk(content string) ([]byte, error) {
	return EncodeData(models.StreamChunk{
		Object: "chat.completion.chunk",
		Choices: []models.ChunkChoice{
			{Delta: models.ChunkDelta{Content: &content}},
		},
	})
}
