package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stardustagi/ChatRelay/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader 按给定的块依次返回数据
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func chunksOf(parts ...string) *chunkReader {
	r := &chunkReader{}
	for _, p := range parts {
		r.chunks = append(r.chunks, []byte(p))
	}
	return r
}

func frame(t *testing.T, content string) string {
	b, err := codec.EncodeContentChunk(content)
	require.NoError(t, err)
	return string(b)
}

func collect(t *testing.T, r io.Reader) ([]string, int) {
	var deltas []string
	done := 0
	err := Decode(r, func(s string) {
		deltas = append(deltas, s)
	}, func() {
		done++
	})
	require.NoError(t, err)
	return deltas, done
}

func sampleStream(t *testing.T) string {
	return ": keep-alive\n" +
		frame(t, "Hel") +
		"\r\n" +
		strings.TrimSuffix(frame(t, "lo"), "\n\n") + "\r\n\r\n" +
		"event: ignored\n" +
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		frame(t, " 世界") +
		frame(t, "🙂!") +
		"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n" +
		"data: [DONE]\n\n" +
		frame(t, "after done")
}

func TestDecodeSingleChunk(t *testing.T) {
	deltas, done := collect(t, strings.NewReader(sampleStream(t)))
	assert.Equal(t, []string{"Hel", "lo", " 世界", "🙂!"}, deltas)
	assert.Equal(t, 1, done)
}

func TestDecodeChunkingInvariance(t *testing.T) {
	raw := sampleStream(t)
	want, _ := collect(t, strings.NewReader(raw))

	t.Run("EveryTwoWaySplit", func(t *testing.T) {
		for i := 1; i < len(raw); i++ {
			got, done := collect(t, chunksOf(raw[:i], raw[i:]))
			require.Equal(t, want, got, "split at byte %d", i)
			require.Equal(t, 1, done)
		}
	})
	t.Run("ThreeWaySplits", func(t *testing.T) {
		for i := 1; i < len(raw); i += 7 {
			for j := i + 1; j < len(raw); j += 11 {
				got, _ := collect(t, chunksOf(raw[:i], raw[i:j], raw[j:]))
				require.Equal(t, want, got, "split at %d/%d", i, j)
			}
		}
	})
	t.Run("OneByteReader", func(t *testing.T) {
		got, done := collect(t, iotest.OneByteReader(strings.NewReader(raw)))
		assert.Equal(t, want, got)
		assert.Equal(t, 1, done)
	})
}

func TestDecodeSplitJSON(t *testing.T) {
	var calls []string
	r := chunksOf(`data: {"choices":[{"delta":{"content":"Hel`, `lo"}}]}`+"\n\n")
	err := Decode(r, func(s string) {
		calls = append(calls, s)
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello"}, calls)
}

func TestDecodeNoPartialEmission(t *testing.T) {
	first := `data: {"choices":[{"delta":{"content":"Hel`
	var calls []string
	d := &decoder{emit: func(s string) bool {
		calls = append(calls, s)
		return true
	}}
	d.buf = append(d.buf, first...)
	d.drain()
	assert.Empty(t, calls)
	d.buf = append(d.buf, `lo"}}]}`+"\n\n"...)
	d.drain()
	assert.Equal(t, []string{"Hello"}, calls)
}

func TestDecodeDoneStopsEmission(t *testing.T) {
	raw := frame(t, "a") + "data: [DONE]\n" + frame(t, "b")
	deltas, done := collect(t, strings.NewReader(raw))
	assert.Equal(t, []string{"a"}, deltas)
	assert.Equal(t, 1, done)
}

func TestDecodeCommentsAndBlankLines(t *testing.T) {
	raw := ":\n: ping\n\n   \n\r\n"
	deltas, done := collect(t, strings.NewReader(raw))
	assert.Empty(t, deltas)
	assert.Equal(t, 1, done)
}

func TestDecodeFinalFlush(t *testing.T) {
	t.Run("TrailingLineWithoutNewline", func(t *testing.T) {
		raw := frame(t, "a") + strings.TrimSuffix(frame(t, "b"), "\n\n")
		deltas, done := collect(t, strings.NewReader(raw))
		assert.Equal(t, []string{"a", "b"}, deltas)
		assert.Equal(t, 1, done)
	})
	t.Run("TrailingGarbageDropped", func(t *testing.T) {
		raw := frame(t, "a") + `data: {"choices":[{"delta":`
		deltas, done := collect(t, strings.NewReader(raw))
		assert.Equal(t, []string{"a"}, deltas)
		assert.Equal(t, 1, done)
	})
	t.Run("MalformedLineMidStream", func(t *testing.T) {
		raw := frame(t, "a") + "data: {\"choices\":[\n" + frame(t, "b") + "data: [DONE]\n\n" + frame(t, "c")
		want := []string{"a", "b"}
		deltas, done := collect(t, strings.NewReader(raw))
		assert.Equal(t, want, deltas)
		assert.Equal(t, 1, done)
		for i := 1; i < len(raw); i += 5 {
			got, _ := collect(t, chunksOf(raw[:i], raw[i:]))
			require.Equal(t, want, got, "split at %d", i)
		}
	})
}

func TestDecodeReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := &chunkReader{chunks: [][]byte{[]byte(frame(t, "a"))}, err: boom}
	var deltas []string
	doneCalled := false
	err := Decode(r, func(s string) {
		deltas = append(deltas, s)
	}, func() {
		doneCalled = true
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, doneCalled)
	assert.Equal(t, []string{"a"}, deltas)
}

func TestDeltas(t *testing.T) {
	t.Run("Iterate", func(t *testing.T) {
		var got []string
		for s, err := range Deltas(strings.NewReader(sampleStream(t))) {
			require.NoError(t, err)
			got = append(got, s)
		}
		assert.Equal(t, []string{"Hel", "lo", " 世界", "🙂!"}, got)
	})
	t.Run("BreakStopsReading", func(t *testing.T) {
		r := chunksOf(frame(t, "a"), frame(t, "b"), frame(t, "c"))
		var got []string
		for s := range Deltas(r) {
			got = append(got, s)
			break
		}
		assert.Equal(t, []string{"a"}, got)
		assert.Len(t, r.chunks, 2)
	})
	t.Run("Error", func(t *testing.T) {
		boom := errors.New("boom")
		var gotErr error
		for _, err := range Deltas(iotest.ErrReader(boom)) {
			gotErr = err
		}
		assert.ErrorIs(t, gotErr, boom)
	})
}

func TestAggregate(t *testing.T) {
	s, err := Aggregate(strings.NewReader(sampleStream(t)))
	require.NoError(t, err)
	assert.Equal(t, "Hello 世界🙂!", s)
}
