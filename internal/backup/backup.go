// Package backup snapshots the SQLite store and optionally ships the
// snapshot to S3-compatible object storage.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/garnizeh/medequip/internal/config"
	"github.com/garnizeh/medequip/internal/db"
)

const keyPrefix = "medequip/"

// ObjectStore is the part of the S3 client the backup uses.
type ObjectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds a client with static credentials. A non-empty
// endpoint targets an S3-compatible service such as R2 or MinIO.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Result describes a finished backup. Key is empty when nothing was
// uploaded.
type Result struct {
	Path string
	Key  string
	Size int64
}

type Manager struct {
	conn    *db.DB
	dir     string
	objects ObjectStore
	bucket  string
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Manager)

// WithObjectStore uploads snapshots to bucket after they are written.
func WithObjectStore(objects ObjectStore, bucket string) Option {
	return func(m *Manager) {
		m.objects = objects
		m.bucket = bucket
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func New(conn *db.DB, dir string, opts ...Option) *Manager {
	m := &Manager{conn: conn, dir: dir, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run writes a consistent snapshot of the database into the backup
// directory and uploads it when an object store is configured.
func (m *Manager) Run(ctx context.Context) (*Result, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("medequip-%s.db", m.now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(m.dir, name)
	if _, err := m.conn.Exec(ctx, "VACUUM INTO ?", path); err != nil {
		return nil, fmt.Errorf("snapshot database: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}
	res := &Result{Path: path, Size: info.Size()}
	m.logger.Info("database snapshot written", zap.String("path", path), zap.Int64("bytes", res.Size))

	if m.objects == nil {
		return res, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	key := keyPrefix + name
	_, err = m.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(res.Size),
		ContentType:   aws.String("application/vnd.sqlite3"),
	})
	if err != nil {
		return nil, fmt.Errorf("upload snapshot: %w", err)
	}

	res.Key = key
	m.logger.Info("database snapshot uploaded", zap.String("bucket", m.bucket), zap.String("key", key))
	return res, nil
}

// Restore copies a snapshot over the database file at dst. src is a local
// path, or an object key when an object store is configured and no such
// file exists. The server must not be running against dst.
func (m *Manager) Restore(ctx context.Context, src, dst string) error {
	r, err := m.open(ctx, src)
	if err != nil {
		return err
	}
	defer r.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".restore-*.db")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("copy snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := verify(ctx, tmp.Name()); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}

	m.logger.Info("database restored", zap.String("from", src), zap.String("to", dst))
	return nil
}

func (m *Manager) open(ctx context.Context, src string) (io.ReadCloser, error) {
	f, err := os.Open(src)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, os.ErrNotExist) || m.objects == nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}

	out, err := m.objects.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(m.bucket), Key: aws.String(src)})
	if err != nil {
		return nil, fmt.Errorf("download snapshot %q: %w", src, err)
	}
	return out.Body, nil
}

// verify opens the file as SQLite and runs an integrity check.
func verify(ctx context.Context, path string) error {
	conn, err := db.New(ctx, "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open restored snapshot: %w", err)
	}
	defer conn.Close()

	var result string
	if err := conn.QueryRow(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("snapshot integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("snapshot integrity check: %s", result)
	}
	return nil
}
