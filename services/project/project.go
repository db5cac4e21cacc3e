// Package project 项目的增删改查, 每个项目带自己的系统提示词
package project

import (
	"context"
	"time"

	"github.com/stardustagi/ChatRelay/libs/databases"
	"github.com/stardustagi/ChatRelay/libs/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/uuid"
	"go.uber.org/zap"
)

const DefaultSystemPrompt = "You are a helpful AI assistant. Be concise, accurate, and friendly in your responses."

const msgProjectNotFound = "Project not found"

type Project struct {
	ID           int64  `json:"id,string" xorm:"pk bigint"`
	UserID       string `json:"userId" xorm:"varchar(64) notnull index"`
	Name         string `json:"name" xorm:"varchar(255) notnull"`
	Description  string `json:"description,omitempty" xorm:"text"`
	SystemPrompt string `json:"systemPrompt" xorm:"text notnull"`
	CreatedAt    int64  `json:"createdAt" xorm:"bigint notnull index"`
	UpdatedAt    int64  `json:"updatedAt" xorm:"bigint notnull"`
}

func (Project) TableName() string { return "projects" }

type CreateProjectReq struct {
	Name         string `json:"name" validate:"required,max=255"`
	Description  string `json:"description"`
	SystemPrompt string `json:"systemPrompt"`
}

// UpdateProjectReq nil 字段保持不变
type UpdateProjectReq struct {
	ID           int64   `json:"-" param:"id" validate:"required"`
	Name         *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description  *string `json:"description"`
	SystemPrompt *string `json:"systemPrompt"`
}

// Tables 迁移用
func Tables() []map[string]interface{} {
	return []map[string]interface{}{
		{"id": "202601010001_projects", "name": new(Project)},
	}
}

type Service struct {
	dao    databases.BaseDao
	logger *zap.Logger
	now    func() time.Time
}

func NewService(dao databases.BaseDao) *Service {
	return &Service{
		dao:    dao,
		logger: logs.GetLogger("project"),
		now:    time.Now,
	}
}

// List 当前用户的项目, 新建的在前
func (m *Service) List(ctx context.Context, userID string) ([]Project, error) {
	projects := make([]Project, 0)
	if err := m.dao.WithContext(ctx).FindMany(&projects, "created_at desc, id desc", &Project{UserID: userID}); err != nil {
		return nil, errors.Internal(err)
	}
	return projects, nil
}

func (m *Service) Get(ctx context.Context, userID string, id int64) (*Project, error) {
	p := &Project{ID: id, UserID: userID}
	ok, err := m.dao.WithContext(ctx).FindOne(p)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if !ok {
		return nil, errors.NotFound(msgProjectNotFound)
	}
	return p, nil
}

func (m *Service) Exists(ctx context.Context, userID string, id int64) (bool, error) {
	return m.dao.WithContext(ctx).Exists(&Project{ID: id, UserID: userID})
}

func (m *Service) Create(ctx context.Context, userID string, req CreateProjectReq) (*Project, error) {
	now := m.now().UnixMilli()
	p := &Project{
		ID:           uuid.NextID(),
		UserID:       userID,
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.SystemPrompt == "" {
		p.SystemPrompt = DefaultSystemPrompt
	}
	if _, err := m.dao.WithContext(ctx).InsertOne(p); err != nil {
		return nil, errors.Internal(err)
	}
	m.logger.Info("project created", logs.Int64("id", p.ID), logs.String("user", userID))
	return p, nil
}

// Update 只更新请求里给出的字段, updated_at 总是刷新
func (m *Service) Update(ctx context.Context, userID string, id int64, req UpdateProjectReq) (*Project, error) {
	bean := &Project{UpdatedAt: m.now().UnixMilli()}
	cols := []string{"updated_at"}
	if req.Name != nil {
		bean.Name = *req.Name
		cols = append(cols, "name")
	}
	if req.Description != nil {
		bean.Description = *req.Description
		cols = append(cols, "description")
	}
	if req.SystemPrompt != nil {
		bean.SystemPrompt = *req.SystemPrompt
		cols = append(cols, "system_prompt")
	}
	n, err := m.dao.Native().Context(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Cols(cols...).
		Update(bean)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if n == 0 {
		return nil, errors.NotFound(msgProjectNotFound)
	}
	return m.Get(ctx, userID, id)
}

func (m *Service) Delete(ctx context.Context, userID string, id int64) error {
	n, err := m.dao.Native().Context(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(new(Project))
	if err != nil {
		return errors.Internal(err)
	}
	if n == 0 {
		return errors.NotFound(msgProjectNotFound)
	}
	m.logger.Info("project deleted", logs.Int64("id", id), logs.String("user", userID))
	return nil
}
