// Package file 聊天附件的校验、上传和删除
package file

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/stardustagi/ChatRelay/libs/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/storage"
	"github.com/stardustagi/ChatRelay/libs/uuid"
	"go.uber.org/zap"
)

const (
	MaxFileSize  = 10 * 1024 * 1024
	CacheControl = "3600"
)

var AllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Attachment 消息里保存的附件信息, ID 即存储路径
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type Service struct {
	store  storage.IStorage
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store storage.IStorage) *Service {
	return &Service{
		store:  store,
		logger: logs.GetLogger("file"),
		now:    time.Now,
	}
}

// Validate 返回空串表示通过
func Validate(name, contentType string, size int64) string {
	if size > MaxFileSize {
		return fmt.Sprintf("File \"%s\" is too large. Maximum size is 10MB.", name)
	}
	if !slices.Contains(AllowedTypes, contentType) {
		return fmt.Sprintf("File type \"%s\" is not supported.", contentType)
	}
	return ""
}

// objectPath <userID>/<毫秒>-<7位随机>.<扩展名>, 没有点时整个文件名当扩展名
func (m *Service) objectPath(userID, name string) string {
	ext := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		ext = name[i+1:]
	}
	return path.Join(userID, strconv.FormatInt(m.now().UnixMilli(), 10)+"-"+uuid.GenString(7)+"."+ext)
}

func (m *Service) Upload(ctx context.Context, userID, name, contentType string, size int64, r io.Reader) (*Attachment, error) {
	if msg := Validate(name, contentType, size); msg != "" {
		return nil, errors.Validation(msg)
	}
	p := m.objectPath(userID, name)
	// 多读一个字节用来发现 size 不实
	lr := &io.LimitedReader{R: r, N: MaxFileSize + 1}
	if err := m.store.Put(ctx, p, lr, storage.PutOptions{ContentType: contentType, CacheControl: "max-age=" + CacheControl}); err != nil {
		m.logger.Error("upload failed", logs.String("path", p), logs.ErrorInfo(err))
		if stderrors.Is(err, storage.ErrExists) {
			return nil, errors.Conflict("The resource already exists")
		}
		return nil, errors.Internal(err)
	}
	if lr.N == 0 {
		_ = m.store.Delete(ctx, p)
		return nil, errors.Validation(Validate(name, contentType, MaxFileSize+1))
	}
	m.logger.Info("file uploaded", logs.String("path", p), logs.Int64("size", size))
	return &Attachment{
		ID:   p,
		Name: name,
		URL:  m.store.PublicURL(p),
		Type: contentType,
		Size: size,
	}, nil
}

func (m *Service) Delete(ctx context.Context, p string) error {
	if err := m.store.Delete(ctx, p); err != nil {
		if stderrors.Is(err, storage.ErrNotExist) || stderrors.Is(err, storage.ErrInvalidPath) {
			return errors.NotFound("Object not found")
		}
		return errors.Internal(err)
	}
	return nil
}
