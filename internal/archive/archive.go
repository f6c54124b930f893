package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/kinship/internal/config"
	"github.com/dukerupert/kinship/internal/family"
	"github.com/dukerupert/kinship/internal/metrics"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/store"
)

var (
	ErrDisabled = errors.New("archives not configured: S3 settings missing")
	ErrNotFound = errors.New("archive not found")
	ErrBusy     = errors.New("an archive is already running")
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Config struct {
	S3            config.S3Config
	Passphrase    string
	Interval      time.Duration
	RetentionDays int
}

// State represents the archive manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State       State      `json:"state"`
	LastArchive *time.Time `json:"last_archive,omitempty"`
	Error       string     `json:"error,omitempty"`
	InProgress  bool       `json:"in_progress"`
}

// StatusCallback is called whenever the archive state changes.
type StatusCallback func(Status)

// Manager writes encrypted GEDCOM snapshots to S3-compatible storage on a
// schedule and on demand.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback

	graphs   *store.GraphStore
	archives *store.ArchiveStore
	exporter *family.Exporter
	client   s3Client
	metrics  *metrics.Metrics
	logger   *slog.Logger

	run chan struct{}
}

func NewManager(cfg Config, gs *store.GraphStore, as *store.ArchiveStore, exporter *family.Exporter, m *metrics.Metrics, logger *slog.Logger) *Manager {
	mgr := &Manager{
		cfg:      cfg,
		graphs:   gs,
		archives: as,
		exporter: exporter,
		metrics:  m,
		logger:   logger.With("component", "archive"),
		run:      make(chan struct{}, 1),
		status:   Status{State: StateDisabled},
	}
	if cfg.S3.Enabled() && cfg.Passphrase != "" {
		mgr.client = newS3Client(cfg.S3)
		mgr.status.State = StateIdle
	}
	return mgr
}

func newS3Client(cfg config.S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// OnStatus registers the state-change callback.
func (m *Manager) OnStatus(cb StatusCallback) {
	m.mu.Lock()
	m.callback = cb
	m.mu.Unlock()
}

func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// Status returns the current archive status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if s.LastArchive == nil {
		s.LastArchive = m.status.LastArchive
	}
	m.status = s
	cb := m.callback
	m.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// Run executes the schedule until ctx is cancelled: one snapshot and a
// retention sweep per interval. It returns immediately when disabled.
func (m *Manager) Run(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	interval := m.cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.RunNow(ctx, nil); err != nil && !errors.Is(err, ErrBusy) {
				m.logger.Error("scheduled archive", "error", err)
			}
			if n, err := m.Cleanup(ctx); err != nil {
				m.logger.Error("archive retention", "error", err)
			} else if n > 0 {
				m.logger.Info("archive retention", "deleted", n)
			}
		}
	}
}

// RunNow exports the current graph, encrypts it and uploads it. Only one
// archive runs at a time; a concurrent call gets ErrBusy.
func (m *Manager) RunNow(ctx context.Context, createdBy *int64) (*model.Archive, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	prefix := m.cfg.S3.Prefix
	passphrase := m.cfg.Passphrase
	m.mu.RUnlock()

	if client == nil {
		return nil, ErrDisabled
	}

	select {
	case m.run <- struct{}{}:
		defer func() { <-m.run }()
	default:
		return nil, ErrBusy
	}

	m.setStatus(Status{State: StateRunning, InProgress: true})

	filename := fmt.Sprintf("family-%s.ged.enc", time.Now().UTC().Format("2006-01-02T150405Z"))
	key := path.Join(prefix, filename)

	record, err := m.archives.Create(filename, key, createdBy)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, fmt.Errorf("create archive record: %w", err)
	}

	fail := func(err error) (*model.Archive, error) {
		if uerr := m.archives.UpdateStatus(record.ID, model.ArchiveStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("mark archive failed", "id", record.ID, "error", uerr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		m.metrics.ObserveExport("archive", err)
		return nil, err
	}

	g, err := m.graphs.Load()
	if err != nil {
		return fail(fmt.Errorf("load graph: %w", err))
	}

	var doc bytes.Buffer
	if err := m.exporter.Write(&doc, g); err != nil {
		// A degraded skeleton is not worth keeping as a snapshot.
		return fail(fmt.Errorf("export gedcom: %w", err))
	}

	sealed, err := Encrypt(doc.Bytes(), passphrase)
	if err != nil {
		return fail(fmt.Errorf("encrypt: %w", err))
	}

	if err := m.archives.UpdateStatus(record.ID, model.ArchiveStatusUploading, ""); err != nil {
		return fail(err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fail(fmt.Errorf("upload to s3: %w", err))
	}

	if err := m.archives.UpdateCompleted(record.ID, int64(len(sealed)), g.Len()); err != nil {
		return fail(err)
	}

	now := time.Now().UTC()
	m.setStatus(Status{State: StateIdle, LastArchive: &now})
	m.metrics.ObserveExport("archive", nil)
	m.logger.Info("archive uploaded", "id", record.ID, "key", key, "people", g.Len(), "bytes", len(sealed))

	return m.archives.GetByID(record.ID)
}

// Open downloads an archive and returns the decrypted GEDCOM document.
func (m *Manager) Open(ctx context.Context, id int64) ([]byte, *model.Archive, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	passphrase := m.cfg.Passphrase
	m.mu.RUnlock()

	if client == nil {
		return nil, nil, ErrDisabled
	}

	record, err := m.archives.GetByID(id)
	if err != nil {
		return nil, nil, err
	}
	if record == nil || record.Status != model.ArchiveStatusCompleted {
		return nil, nil, ErrNotFound
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(record.ObjectKey),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	sealed, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read archive body: %w", err)
	}
	doc, err := Decrypt(sealed, passphrase)
	if err != nil {
		return nil, nil, err
	}
	return doc, record, nil
}

// Cleanup deletes archives older than the retention period from the
// database and the bucket. Object deletion failures are logged.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	days := m.cfg.RetentionDays
	m.mu.RUnlock()

	if client == nil {
		return 0, nil
	}
	if days <= 0 {
		days = 30
	}

	before := time.Now().UTC().AddDate(0, 0, -days)
	keys, err := m.archives.DeleteOlderThan(before)
	if err != nil {
		return 0, fmt.Errorf("delete old archives: %w", err)
	}

	for _, key := range keys {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete archive object", "key", key, "error", err)
		}
	}
	return len(keys), nil
}
