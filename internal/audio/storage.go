package audio

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bandcoach/bandcoach/internal/transport"
)

// Storage resolves a content reference (a listening set's audio_ref or a
// writing task's image_ref) to something the transport can send.
type Storage interface {
	Resolve(ctx context.Context, ref string) (transport.Media, error)

	// Load reads the referenced file itself, for callers that pass the
	// bytes on (a chart attached to a scoring request).
	Load(ctx context.Context, ref string) (Blob, error)
}

// Blob is a loaded media file.
type Blob struct {
	Data        []byte
	ContentType string
}

// maxBlobSize bounds Load. Vision APIs reject larger images anyway.
const maxBlobSize = 5 << 20

func readBlob(r io.Reader, ref, contentType string) (Blob, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBlobSize+1))
	if err != nil {
		return Blob{}, fmt.Errorf("read %q: %w", ref, err)
	}
	if len(data) > maxBlobSize {
		return Blob{}, fmt.Errorf("media %q exceeds %d bytes", ref, maxBlobSize)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mime.TypeByExtension(path.Ext(ref))
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return Blob{Data: data, ContentType: contentType}, nil
}

// StorageConfig selects and configures the media backend.
type StorageConfig struct {
	Backend   string        `mapstructure:"backend"` // "local" or "minio"
	LocalPath string        `mapstructure:"local_path"`
	Endpoint  string        `mapstructure:"endpoint"`
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	Bucket    string        `mapstructure:"bucket"`
	Region    string        `mapstructure:"region"`
	UseSSL    bool          `mapstructure:"use_ssl"`
	URLExpiry time.Duration `mapstructure:"url_expiry"`
}

// NewStorage builds the configured backend.
func NewStorage(cfg StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case "", "local":
		return &LocalStorage{Root: cfg.LocalPath}, nil
	case "minio":
		return NewMinioStorage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// isRemote reports whether ref is already an absolute http(s) URL.
func isRemote(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// LocalStorage serves files from a directory. Remote URLs pass through.
type LocalStorage struct {
	Root string
}

func (s *LocalStorage) Resolve(_ context.Context, ref string) (transport.Media, error) {
	if ref == "" {
		return transport.Media{}, fmt.Errorf("empty media ref")
	}
	if isRemote(ref) {
		return transport.Media{URL: ref}, nil
	}
	clean := filepath.Clean("/" + ref)
	p := filepath.Join(s.Root, clean)
	if _, err := os.Stat(p); err != nil {
		return transport.Media{}, fmt.Errorf("media %q: %w", ref, err)
	}
	return transport.Media{Path: p}, nil
}

func (s *LocalStorage) Load(ctx context.Context, ref string) (Blob, error) {
	if isRemote(ref) {
		return Blob{}, fmt.Errorf("media %q is remote", ref)
	}
	m, err := s.Resolve(ctx, ref)
	if err != nil {
		return Blob{}, err
	}
	f, err := os.Open(m.Path)
	if err != nil {
		return Blob{}, fmt.Errorf("media %q: %w", ref, err)
	}
	defer f.Close()
	return readBlob(f, ref, "")
}

// MinioStorage hands out presigned GET URLs for objects in a bucket.
type MinioStorage struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewMinioStorage connects to an S3-compatible endpoint.
func NewMinioStorage(cfg StorageConfig) (*MinioStorage, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio storage requires endpoint and bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &MinioStorage{client: client, bucket: cfg.Bucket, expiry: expiry}, nil
}

func (s *MinioStorage) Resolve(ctx context.Context, ref string) (transport.Media, error) {
	if ref == "" {
		return transport.Media{}, fmt.Errorf("empty media ref")
	}
	if isRemote(ref) {
		return transport.Media{URL: ref}, nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, strings.TrimPrefix(ref, "/"), s.expiry, nil)
	if err != nil {
		return transport.Media{}, fmt.Errorf("presign %q: %w", ref, err)
	}
	return transport.Media{URL: u.String()}, nil
}

func (s *MinioStorage) Load(ctx context.Context, ref string) (Blob, error) {
	if ref == "" || isRemote(ref) {
		return Blob{}, fmt.Errorf("media %q is not a bucket object", ref)
	}
	key := strings.TrimPrefix(ref, "/")
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return Blob{}, fmt.Errorf("get %q: %w", ref, err)
	}
	defer obj.Close()
	info, err := obj.Stat()
	if err != nil {
		return Blob{}, fmt.Errorf("stat %q: %w", ref, err)
	}
	return readBlob(obj, ref, info.ContentType)
}

// Upload stores a local file under key. Used by the content tooling to
// publish listening recordings.
func (s *MinioStorage) Upload(ctx context.Context, key, localPath, contentType string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %q: %w", key, err)
	}
	return nil
}
