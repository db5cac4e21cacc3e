// Package message 项目下的聊天记录和会话
package message

import (
	"context"
	"time"

	"github.com/stardustagi/ChatRelay/libs/databases"
	"github.com/stardustagi/ChatRelay/libs/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/uuid"
	"github.com/stardustagi/ChatRelay/llm/models"
	"github.com/stardustagi/ChatRelay/services/file"
	"go.uber.org/zap"
)

const DefaultSessionTitle = "Chat Session"

type Message struct {
	ID          int64             `json:"id,string" xorm:"pk bigint"`
	SessionID   int64             `json:"sessionId,string" xorm:"bigint notnull index"`
	ProjectID   int64             `json:"projectId,string" xorm:"bigint notnull index"`
	UserID      string            `json:"-" xorm:"varchar(64) notnull index"`
	Role        string            `json:"role" xorm:"varchar(16) notnull"`
	Content     string            `json:"content" xorm:"text notnull"`
	Attachments []file.Attachment `json:"attachments,omitempty" xorm:"json text"`
	CreatedAt   int64             `json:"createdAt" xorm:"bigint notnull index"`
}

func (Message) TableName() string { return "messages" }

type ChatSession struct {
	ID        int64  `json:"id,string" xorm:"pk bigint"`
	ProjectID int64  `json:"projectId,string" xorm:"bigint notnull index"`
	UserID    string `json:"-" xorm:"varchar(64) notnull index"`
	Title     string `json:"title" xorm:"varchar(255)"`
	CreatedAt int64  `json:"createdAt" xorm:"bigint notnull index"`
}

func (ChatSession) TableName() string { return "chat_sessions" }

func Tables() []map[string]interface{} {
	return []map[string]interface{}{
		{"id": "202601010002_chat_sessions", "name": new(ChatSession)},
		{"id": "202601010003_messages", "name": new(Message)},
	}
}

type CreateMessageReq struct {
	ProjectID   int64             `json:"-" param:"id" validate:"required"`
	SessionID   int64             `json:"sessionId,string"`
	Role        string            `json:"role" validate:"required,oneof=user assistant"`
	Content     string            `json:"content"`
	Attachments []file.Attachment `json:"attachments"`
}

// IProjects 用来确认项目属于当前用户
type IProjects interface {
	Exists(ctx context.Context, userID string, projectID int64) (bool, error)
}

type Service struct {
	dao      databases.BaseDao
	projects IProjects
	logger   *zap.Logger
	now      func() time.Time
}

// NewService projects 为 nil 时不检查项目归属
func NewService(dao databases.BaseDao, projects IProjects) *Service {
	return &Service{
		dao:      dao,
		projects: projects,
		logger:   logs.GetLogger("message"),
		now:      time.Now,
	}
}

func (m *Service) checkProject(ctx context.Context, userID string, projectID int64) error {
	if m.projects == nil {
		return nil
	}
	ok, err := m.projects.Exists(ctx, userID, projectID)
	if err != nil {
		return errors.Internal(err)
	}
	if !ok {
		return errors.NotFound("Project not found")
	}
	return nil
}

// List 项目下的消息, 旧的在前
func (m *Service) List(ctx context.Context, userID string, projectID int64) ([]Message, error) {
	msgs := make([]Message, 0)
	err := m.dao.WithContext(ctx).FindMany(&msgs, "created_at asc, id asc", &Message{ProjectID: projectID, UserID: userID})
	if err != nil {
		return nil, errors.Internal(err)
	}
	return msgs, nil
}

// History 转成发给代理的消息格式
func History(msgs []Message) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, models.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}

func (m *Service) Create(ctx context.Context, userID string, req CreateMessageReq) (*Message, error) {
	if req.Role != models.RoleUser && req.Role != models.RoleAssistant {
		return nil, errors.Validation("Invalid role")
	}
	if err := m.checkProject(ctx, userID, req.ProjectID); err != nil {
		return nil, err
	}
	if req.SessionID == 0 {
		sess, err := m.GetOrCreateSession(ctx, userID, req.ProjectID)
		if err != nil {
			return nil, err
		}
		req.SessionID = sess.ID
	}
	attachments := req.Attachments
	if attachments == nil {
		attachments = []file.Attachment{}
	}
	msg := &Message{
		ID:          uuid.NextID(),
		SessionID:   req.SessionID,
		ProjectID:   req.ProjectID,
		UserID:      userID,
		Role:        req.Role,
		Content:     req.Content,
		Attachments: attachments,
		CreatedAt:   m.now().UnixMilli(),
	}
	if _, err := m.dao.WithContext(ctx).InsertOne(msg); err != nil {
		return nil, errors.Internal(err)
	}
	return msg, nil
}

// GetOrCreateSession 返回最近的会话, 没有就新建一个
func (m *Service) GetOrCreateSession(ctx context.Context, userID string, projectID int64) (*ChatSession, error) {
	if err := m.checkProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	sess := &ChatSession{ProjectID: projectID, UserID: userID}
	ok, err := m.dao.WithContext(ctx).FindOne(sess, "created_at desc, id desc")
	if err != nil {
		return nil, errors.Internal(err)
	}
	if ok {
		return sess, nil
	}
	sess = &ChatSession{
		ID:        uuid.NextID(),
		ProjectID: projectID,
		UserID:    userID,
		Title:     DefaultSessionTitle,
		CreatedAt: m.now().UnixMilli(),
	}
	if _, err := m.dao.WithContext(ctx).InsertOne(sess); err != nil {
		return nil, errors.Internal(err)
	}
	m.logger.Info("chat session created", logs.Int64("session", sess.ID), logs.Int64("project", projectID))
	return sess, nil
}

// Clear 只删除该用户在该项目下的消息, 会话保留
func (m *Service) Clear(ctx context.Context, userID string, projectID int64) (int64, error) {
	if err := m.checkProject(ctx, userID, projectID); err != nil {
		return 0, err
	}
	n, err := m.dao.Native().Context(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(new(Message))
	if err != nil {
		return 0, errors.Internal(err)
	}
	m.logger.Info("messages cleared", logs.Int64("project", projectID), logs.Int64("count", n))
	return n, nil
}
