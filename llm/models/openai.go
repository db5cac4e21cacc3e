package models

// 角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`    // "user", "assistant", "system"
	Content string `json:"content"` // e.g., "Hello!"
}

// ChatRequest 客户端发给代理的请求
type ChatRequest struct {
	Messages     []ChatMessage `json:"messages"`
	SystemPrompt string        `json:"systemPrompt,omitempty"`
	Model        string        `json:"model,omitempty"`
}

// CompletionRequest 代理发给上游网关的请求
type CompletionRequest struct {
	Model       string        `json:"model"`                 // e.g., "gpt-4"
	Messages    []ChatMessage `json:"messages"`              // message history
	Temperature float32       `json:"temperature,omitempty"` // creativity level
	MaxTokens   int           `json:"max_tokens,omitempty"`  // optional
	Stream      bool          `json:"stream"`                // for streaming
}

type ChunkDelta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason,omitempty"`
}

// StreamChunk 上游 SSE 中一帧 data 的 JSON
type StreamChunk struct {
	ID      string        `json:"id,omitempty"`
	Object  string        `json:"object,omitempty"`
	Created int64         `json:"created,omitempty"`
	Model   string        `json:"model,omitempty"`
	Choices []ChunkChoice `json:"choices"`
}

// StreamDelta 一帧里真正被消费的部分
type StreamDelta struct {
	Content      string
	FinishReason string
}

// Delta 取 choices[0] 的增量
func (m *StreamChunk) Delta() StreamDelta {
	var d StreamDelta
	if len(m.Choices) == 0 {
		return d
	}
	c := m.Choices[0]
	if c.Delta.Content != nil {
		d.Content = *c.Delta.Content
	}
	if c.FinishReason != nil {
		d.FinishReason = *c.FinishReason
	}
	return d
}
