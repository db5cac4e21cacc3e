package storage

import (
	"context"
	"errors"
	"io"
	"net/http"

	gcs "cloud.google.com/go/storage"
	pkgerrors "github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type GCS struct {
	client  *gcs.Client
	bucket  string
	baseURL string
	logger  *zap.Logger
}

// NewGCS extra 追加在凭据之后, 测试里用来指向本地 endpoint
func NewGCS(ctx context.Context, cfg Config, extra ...option.ClientOption) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, pkgerrors.New("gcs bucket is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, extra...)
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create gcs client")
	}
	base := cfg.PublicBaseURL
	if base == "" {
		base = "https://storage.googleapis.com/" + cfg.Bucket
	}
	return &GCS{client: client, bucket: cfg.Bucket, baseURL: base, logger: logs.GetLogger("storage")}, nil
}

func (m *GCS) Put(ctx context.Context, path string, r io.Reader, opts PutOptions) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	// 对象已存在时 412
	w := m.client.Bucket(m.bucket).Object(p).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.CacheControl = opts.CacheControl
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return pkgerrors.Wrapf(err, "upload gs://%s/%s", m.bucket, p)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return ErrExists
		}
		return pkgerrors.Wrapf(err, "upload gs://%s/%s", m.bucket, p)
	}
	m.logger.Debug("object stored", logs.String("bucket", m.bucket), logs.String("path", p))
	return nil
}

func (m *GCS) Delete(ctx context.Context, path string) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	if err := m.client.Bucket(m.bucket).Object(p).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return ErrNotExist
		}
		return pkgerrors.Wrapf(err, "delete gs://%s/%s", m.bucket, p)
	}
	return nil
}

func (m *GCS) PublicURL(path string) string {
	return joinURL(m.baseURL, path)
}

func (m *GCS) Close() error {
	return m.client.Close()
}
