package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"go.uber.org/zap"
)

// Local 文件写在 Root 下, 由 http 服务以 PublicBaseURL 对外提供
type Local struct {
	root    string
	baseURL string
	logger  *zap.Logger
}

func NewLocal(cfg Config) (*Local, error) {
	root := cfg.Root
	if root == "" {
		root = "data/attachments"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, pkgerrors.Wrap(err, "create storage root")
	}
	base := cfg.PublicBaseURL
	if base == "" {
		base = "/files"
	}
	return &Local{root: root, baseURL: base, logger: logs.GetLogger("storage")}, nil
}

func (m *Local) Root() string {
	return m.root
}

func (m *Local) Put(ctx context.Context, path string, r io.Reader, _ PutOptions) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	full := filepath.Join(m.root, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return pkgerrors.Wrap(err, "create object dir")
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrExists
		}
		return pkgerrors.Wrap(err, "create object")
	}
	if _, err := io.Copy(f, readerWithContext(ctx, r)); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return pkgerrors.Wrap(err, "write object")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return pkgerrors.Wrap(err, "close object")
	}
	m.logger.Debug("object stored", logs.String("path", p))
	return nil
}

func (m *Local) Delete(_ context.Context, path string) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(m.root, filepath.FromSlash(p))); err != nil {
		if os.IsNotExist(err) {
			return ErrNotExist
		}
		return pkgerrors.Wrap(err, "remove object")
	}
	return nil
}

func (m *Local) PublicURL(path string) string {
	return joinURL(m.baseURL, path)
}

func (m *Local) Close() error { return nil }

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (m *ctxReader) Read(p []byte) (int, error) {
	if err := m.ctx.Err(); err != nil {
		return 0, err
	}
	return m.r.Read(p)
}
