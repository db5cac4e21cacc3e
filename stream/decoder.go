// Package stream 增量解码上游 chat-completions 的 SSE 字节流.
//
// 每次调用独立持有自己的缓冲区, 只在读取下一块数据时挂起;
// 调用方停止消费(Deltas 中 break)后不会再有回调.
package stream

import (
	"bytes"
	"io"
	"iter"
	"strings"

	"github.com/stardustagi/ChatRelay/codec"
)

const readBufferSize = 4096

type decoder struct {
	buf     []byte
	done    bool
	stopped bool
	emit    func(string) bool
}

// Decode 读取 r 直到 EOF 或 [DONE], 每个非空增量同步调用一次 onDelta.
// 成功时在最后调用一次 onDone; 读取出错时直接返回错误, 不调用 onDone.
func Decode(r io.Reader, onDelta func(string), onDone func()) error {
	d := &decoder{emit: func(s string) bool {
		if onDelta != nil {
			onDelta(s)
		}
		return true
	}}
	if err := d.run(r); err != nil {
		return err
	}
	if onDone != nil {
		onDone()
	}
	return nil
}

// Deltas 拉取式的等价接口, 流只能遍历一次
func Deltas(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		d := &decoder{emit: func(s string) bool {
			return yield(s, nil)
		}}
		if err := d.run(r); err != nil && !d.stopped {
			yield("", err)
		}
	}
}

// Aggregate 把全部增量拼成完整回答
func Aggregate(r io.Reader) (string, error) {
	var sb strings.Builder
	err := Decode(r, func(s string) {
		sb.WriteString(s)
	}, nil)
	return sb.String(), err
}

func (m *decoder) run(r io.Reader) error {
	chunk := make([]byte, readBufferSize)
	for !m.done && !m.stopped {
		n, err := r.Read(chunk)
		if n > 0 {
			m.buf = append(m.buf, chunk[:n]...)
			m.drain()
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if m.stopped || m.done {
		return nil
	}
	m.flush()
	return nil
}

// drain 处理缓冲区里所有完整的行
func (m *decoder) drain() {
	for !m.done && !m.stopped {
		idx := bytes.IndexByte(m.buf, '\n')
		if idx < 0 {
			return
		}
		frame := codec.ParseLine(m.buf[:idx])
		switch frame.Kind {
		case codec.FrameSkip:
			m.buf = m.buf[idx+1:]
		case codec.FrameDone:
			m.buf = m.buf[idx+1:]
			m.done = true
		case codec.FrameData:
			delta, err := codec.DecodeDelta(frame.Payload)
			if err != nil {
				// JSON 被中间层截断, 整行留在缓冲区等更多数据
				return
			}
			m.buf = m.buf[idx+1:]
			m.deliver(delta.Content)
		}
	}
}

// flush 流结束后处理剩余数据, 仍无法解析的行直接丢弃
func (m *decoder) flush() {
	if len(bytes.TrimSpace(m.buf)) == 0 {
		return
	}
	rest := m.buf
	m.buf = nil
	for _, raw := range bytes.Split(rest, []byte{'\n'}) {
		if m.stopped {
			return
		}
		frame := codec.ParseLine(raw)
		switch frame.Kind {
		case codec.FrameDone:
			return
		case codec.FrameData:
			delta, err := codec.DecodeDelta(frame.Payload)
			if err != nil {
				continue
			}
			m.deliver(delta.Content)
		}
	}
}

func (m *decoder) deliver(content string) {
	if content == "" {
		return
	}
	if !m.emit(content) {
		m.stopped = true
	}
}
