package codec

import (
	"testing"

	"github.com/stardustagi/ChatRelay/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		kind    FrameKind
		payload string
	}{
		{"Empty", "", FrameSkip, ""},
		{"Whitespace", "   ", FrameSkip, ""},
		{"CarriageReturnOnly", "\r", FrameSkip, ""},
		{"Comment", ": keep-alive", FrameSkip, ""},
		{"EventLine", "event: message", FrameSkip, ""},
		{"NoSpaceAfterColon", "data:{}", FrameSkip, ""},
		{"Done", "data: [DONE]", FrameDone, ""},
		{"DoneWithCR", "data: [DONE]\r", FrameDone, ""},
		{"DonePadded", "data:  [DONE]  ", FrameDone, ""},
		{"Data", `data: {"a":1}`, FrameData, `{"a":1}`},
		{"DataWithCR", "data: {\"a\":1}\r", FrameData, `{"a":1}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := ParseLine([]byte(c.line))
			assert.Equal(t, c.kind, f.Kind)
			if c.kind == FrameData {
				assert.Equal(t, c.payload, string(f.Payload))
			}
		})
	}
}

func TestDecodeDelta(t *testing.T) {
	t.Run("Content", func(t *testing.T) {
		d, err := DecodeDelta([]byte(`{"choices":[{"delta":{"content":"Hel"}}]}`))
		require.NoError(t, err)
		assert.Equal(t, "Hel", d.Content)
	})
	t.Run("FinishReason", func(t *testing.T) {
		d, err := DecodeDelta([]byte(`{"choices":[{"delta":{},"finish_reason":"stop"}]}`))
		require.NoError(t, err)
		assert.Equal(t, "", d.Content)
		assert.Equal(t, "stop", d.FinishReason)
	})
	t.Run("Incomplete", func(t *testing.T) {
		_, err := DecodeDelta([]byte(`{"choices":[{"delta":{"content":"Hel`))
		assert.ErrorIs(t, err, ErrIncompleteFrame)
	})
	t.Run("WrongShape", func(t *testing.T) {
		d, err := DecodeDelta([]byte(`{"choices":"nope"}`))
		require.NoError(t, err)
		assert.Equal(t, "", d.Content)
	})
	t.Run("NoChoices", func(t *testing.T) {
		d, err := DecodeDelta([]byte(`{"choices":[]}`))
		require.NoError(t, err)
		assert.Equal(t, "", d.Content)
	})
}

func TestEncodeContentChunk(t *testing.T) {
	b, err := EncodeContentChunk("Hello")
	require.NoError(t, err)
	f := ParseLine(b[:len(b)-2])
	require.Equal(t, FrameData, f.Kind)
	d, err := DecodeDelta(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, "Hello", d.Content)
	assert.Equal(t, "data: [DONE]\n\n", string(EncodeDone()))
}

func TestJsonCodec(t *testing.T) {
	c := NewJsonCodec()
	s, err := c.Encode(protocol.NewMessage(protocol.MainChat, protocol.SubDelta, "hi"))
	require.NoError(t, err)
	msg, err := c.Decode([]byte(s))
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.GetPayload())
	assert.Equal(t, protocol.SubDelta, msg.GetSub())

	_, err = c.Decode([]byte("{"))
	assert.Error(t, err)
}
