// Package storage 附件的对象存储, 支持本地目录和 GCS
package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/utils"
)

var (
	ErrExists      = errors.New("object already exists")
	ErrNotExist    = errors.New("object does not exist")
	ErrInvalidPath = errors.New("invalid object path")
)

const (
	DriverLocal = "local"
	DriverGCS   = "gcs"
)

// Config 对应配置文件里的 [storage]
type Config struct {
	Driver          string `json:"driver" toml:"driver"`
	Bucket          string `json:"bucket" toml:"bucket"`
	Root            string `json:"root" toml:"root"`
	PublicBaseURL   string `json:"public_base_url" toml:"public_base_url"`
	CredentialsFile string `json:"credentials_file" toml:"credentials_file"`
}

type PutOptions struct {
	ContentType  string
	CacheControl string
}

// IStorage Put 不覆盖已有对象
type IStorage interface {
	Put(ctx context.Context, path string, r io.Reader, opts PutOptions) error
	Delete(ctx context.Context, path string) error
	PublicURL(path string) string
	Close() error
}

func New(ctx context.Context, config []byte) (IStorage, error) {
	cfg, err := utils.Bytes2Struct[Config](config)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse storage config")
	}
	return NewWith(ctx, cfg)
}

func NewWith(ctx context.Context, cfg Config) (IStorage, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverGCS:
		return NewGCS(ctx, cfg)
	case DriverLocal, "":
		return NewLocal(cfg)
	default:
		return nil, pkgerrors.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// cleanPath 拒绝绝对路径和 ..
func cleanPath(p string) (string, error) {
	p = strings.TrimPrefix(p, "/")
	if p == "" || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return p, nil
}

func joinURL(base, p string) string {
	return strings.TrimRight(base, "/") + "/" + p
}
