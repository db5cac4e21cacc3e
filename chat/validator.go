// Package chat 校验并清洗客户端发来的聊天请求
package chat

import (
	"fmt"

	"github.com/stardustagi/ChatRelay/llm/models"
	"github.com/stardustagi/ChatRelay/utils"
)

// MaxContentLength 单条消息内容的最大字符数
const MaxContentLength = 32000

const (
	ErrBodyRequired       = "Request body is required"
	ErrMessagesRequired   = "Messages array is required"
	ErrMessagesEmpty      = "At least one message is required"
	ErrSystemPromptString = "System prompt must be a string"
)

type ValidationResult struct {
	IsValid bool
	Error   string
}

func invalid(msg string) ValidationResult {
	return ValidationResult{Error: msg}
}

var validRoles = map[string]struct{}{
	models.RoleUser:      {},
	models.RoleAssistant: {},
	models.RoleSystem:    {},
}

// Validate 按顺序检查请求体, 遇到第一个错误即返回.
// body 为 JSON 解码到 any 之后的值.
func Validate(body any) ValidationResult {
	obj, ok := body.(map[string]any)
	if !ok || obj == nil {
		return invalid(ErrBodyRequired)
	}
	messages, ok := obj["messages"].([]any)
	if !ok {
		return invalid(ErrMessagesRequired)
	}
	if len(messages) == 0 {
		return invalid(ErrMessagesEmpty)
	}
	for i, raw := range messages {
		msg, _ := raw.(map[string]any)
		role, _ := msg["role"].(string)
		if _, ok := validRoles[role]; !ok {
			return invalid(fmt.Sprintf("Invalid role at message %d", i))
		}
		if _, ok := msg["content"].(string); !ok {
			return invalid(fmt.Sprintf("Invalid content at message %d", i))
		}
	}
	if sp, present := obj["systemPrompt"]; present {
		if _, ok := sp.(string); !ok {
			return invalid(ErrSystemPromptString)
		}
	}
	return ValidationResult{IsValid: true}
}

// Sanitize 去掉首尾空白并截断过长的内容, 重复调用结果不变
func Sanitize(messages []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, len(messages))
	for i, m := range messages {
		content := utils.TrimSpace(m.Content)
		content = utils.TruncateRunes(content, MaxContentLength)
		out[i] = models.ChatMessage{
			Role:    m.Role,
			Content: utils.TrimSpace(content),
		}
	}
	return out
}

// FromBody 把已通过 Validate 的请求体转成类型化的请求.
// model 不是字符串或为空时使用 defaultModel.
func FromBody(body any, defaultModel string) models.ChatRequest {
	obj, _ := body.(map[string]any)
	req := models.ChatRequest{Model: defaultModel}
	if raw, ok := obj["messages"].([]any); ok {
		req.Messages = make([]models.ChatMessage, 0, len(raw))
		for _, item := range raw {
			msg, _ := item.(map[string]any)
			role, _ := msg["role"].(string)
			content, _ := msg["content"].(string)
			req.Messages = append(req.Messages, models.ChatMessage{Role: role, Content: content})
		}
	}
	if sp, ok := obj["systemPrompt"].(string); ok {
		req.SystemPrompt = sp
	}
	if model, ok := obj["model"].(string); ok && model != "" {
		req.Model = model
	}
	return req
}

// BuildMessages 生成发往上游的消息列表: 系统消息在前, 之后是清洗过的对话
func BuildMessages(req models.ChatRequest, defaultPrompt string) []models.ChatMessage {
	prompt := req.SystemPrompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	out := make([]models.ChatMessage, 0, len(req.Messages)+1)
	out = append(out, models.ChatMessage{Role: models.RoleSystem, Content: prompt})
	return append(out, Sanitize(req.Messages)...)
}
