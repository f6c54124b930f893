package archive

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/kinship/internal/config"
	"github.com/dukerupert/kinship/internal/database"
	"github.com/dukerupert/kinship/internal/family"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

const testPassphrase = "correct horse battery staple"

type fixture struct {
	mgr      *Manager
	mock     *mockS3Client
	people   *store.PersonStore
	archives *store.ArchiveStore
	db       *sql.DB
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := Config{
		S3:            config.S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret", Region: "us-east-1", Prefix: "kinship/"},
		Passphrase:    testPassphrase,
		RetentionDays: 30,
	}
	as := store.NewArchiveStore(db)
	mgr := NewManager(cfg, store.NewGraphStore(db), as, family.NewExporter("kinship", "Kinship"), nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	mock := newMockS3()
	mgr.client = mock

	return &fixture{mgr: mgr, mock: mock, people: store.NewPersonStore(db), archives: as, db: db}
}

func TestManagerDisabledWithoutS3(t *testing.T) {
	m := NewManager(Config{}, nil, nil, nil, nil, slog.Default())
	if m.Status().State != StateDisabled {
		t.Errorf("state = %q, want %q", m.Status().State, StateDisabled)
	}
	if m.Enabled() {
		t.Error("Enabled() = true, want false")
	}
	if _, err := m.RunNow(context.Background(), nil); !errors.Is(err, ErrDisabled) {
		t.Errorf("RunNow err = %v, want ErrDisabled", err)
	}
	// Run returns at once when disabled.
	if err := m.Run(context.Background()); err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestManagerIdleWithS3(t *testing.T) {
	m := NewManager(Config{
		S3:         config.S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret", Region: "us-east-1"},
		Passphrase: testPassphrase,
	}, nil, nil, nil, nil, slog.Default())
	if m.Status().State != StateIdle {
		t.Errorf("state = %q, want %q", m.Status().State, StateIdle)
	}
}

func TestRunNowUploadsEncryptedGEDCOM(t *testing.T) {
	f := setup(t)
	if _, err := f.people.Create(&model.Person{FirstName: "Ada", LastName: "Smith", Gender: model.GenderFemale}); err != nil {
		t.Fatal(err)
	}

	var states []State
	f.mgr.OnStatus(func(s Status) { states = append(states, s.State) })

	rec, err := f.mgr.RunNow(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if rec.Status != model.ArchiveStatusCompleted {
		t.Errorf("status = %q, want completed", rec.Status)
	}
	if rec.PeopleCount != 1 {
		t.Errorf("people = %d, want 1", rec.PeopleCount)
	}
	if !strings.HasPrefix(rec.ObjectKey, "kinship/family-") {
		t.Errorf("key = %q, want kinship/family-*", rec.ObjectKey)
	}

	stored := f.mock.objects[rec.ObjectKey]
	if int64(len(stored)) != rec.SizeBytes {
		t.Errorf("stored %d bytes, record says %d", len(stored), rec.SizeBytes)
	}
	if bytes.Contains(stored, []byte("Smith")) {
		t.Error("object is not encrypted")
	}

	doc, got, err := f.mgr.Open(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("Open record id = %d, want %d", got.ID, rec.ID)
	}
	if !strings.Contains(string(doc), "1 NAME Ada /Smith/") {
		t.Errorf("decrypted document missing individual:\n%s", doc)
	}

	if len(states) != 2 || states[0] != StateRunning || states[1] != StateIdle {
		t.Errorf("states = %v, want [running idle]", states)
	}
	if f.mgr.Status().LastArchive == nil {
		t.Error("LastArchive not set")
	}
}

func TestRunNowUploadFailure(t *testing.T) {
	f := setup(t)
	f.mock.putErr = errors.New("bucket unreachable")

	if _, err := f.mgr.RunNow(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	list, _ := f.archives.List(10)
	if len(list) != 1 || list[0].Status != model.ArchiveStatusFailed {
		t.Fatalf("archives = %+v, want one failed", list)
	}
	if !strings.Contains(list[0].ErrorMessage, "bucket unreachable") {
		t.Errorf("error message = %q", list[0].ErrorMessage)
	}
	if f.mgr.Status().State != StateError {
		t.Errorf("state = %q, want error", f.mgr.Status().State)
	}
}

func TestRunNowBusy(t *testing.T) {
	f := setup(t)
	f.mgr.run <- struct{}{}
	defer func() { <-f.mgr.run }()

	if _, err := f.mgr.RunNow(context.Background(), nil); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
}

func TestOpenUnknown(t *testing.T) {
	f := setup(t)
	if _, _, err := f.mgr.Open(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCleanupRemovesExpiredObjects(t *testing.T) {
	f := setup(t)
	rec, err := f.mgr.RunNow(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	n, err := f.mgr.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 0 {
		t.Errorf("fresh archive deleted: n = %d", n)
	}

	f.mgr.cfg.RetentionDays = 1
	// Shift the row into the past rather than sleeping.
	old := time.Now().UTC().AddDate(0, 0, -2).Format("2006-01-02 15:04:05")
	if _, err := f.db.Exec(`UPDATE archives SET created_at = ? WHERE id = ?`, old, rec.ID); err != nil {
		t.Fatal(err)
	}

	n, err = f.mgr.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if _, ok := f.mock.objects[rec.ObjectKey]; ok {
		t.Error("object still in bucket")
	}
}
