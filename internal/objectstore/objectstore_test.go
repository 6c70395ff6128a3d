package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kjstillabower/flight-listing-service/internal/circuitbreaker"
)

func TestFilesystemStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFilesystemStore(dir)
	if err != nil {
		t.Fatalf("NewFilesystemStore() error = %v", err)
	}
	ctx := context.Background()

	if _, err := fs.Get(ctx, "flights.db"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if err := fs.Put(ctx, "flights.db", []byte("v1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := fs.Put(ctx, "flights.db", []byte("v2")); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}
	got, err := fs.Get(ctx, "flights.db")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Get() = %q, want v2", got)
	}
	if err := fs.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1 (temp files must be cleaned up)", len(entries))
	}
}

func TestWriteFileAtomic_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "flights.db")
	if err := WriteFileAtomic(path, []byte("restored")); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "restored" {
		t.Errorf("ReadFile() = %q, %v; want restored", got, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1 (temp file left behind)", len(entries))
	}
}

// TestFilesystemStore_KeyStaysInsideDir verifies keys cannot escape the root.
func TestFilesystemStore_KeyStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewFilesystemStore(filepath.Join(dir, "root"))
	if err := fs.Put(context.Background(), "../escape.db", []byte("x")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.db")); !os.IsNotExist(err) {
		t.Error("key escaped store root")
	}
	if _, err := fs.Get(context.Background(), "/"); err == nil {
		t.Error("Get(\"/\") expected error")
	}
}

type fakeS3 struct {
	objects map[string][]byte
	getErr  error
	putErr  error
	headErr error
	lastPut *s3.PutObjectInput
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	f.lastPut = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestS3Store_GetPut(t *testing.T) {
	fake := &fakeS3{}
	st := newS3Store(fake, "bucket", time.Second)
	ctx := context.Background()

	if _, err := st.Get(ctx, "flights.db"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if err := st.Put(ctx, "flights.db", []byte("sqlite bytes")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if got := *fake.lastPut.ContentLength; got != int64(len("sqlite bytes")) {
		t.Errorf("ContentLength = %d", got)
	}
	got, err := st.Get(ctx, "flights.db")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "sqlite bytes" {
		t.Errorf("Get() = %q", got)
	}
	if st.Name() != "s3" {
		t.Errorf("Name() = %q", st.Name())
	}
}

func TestS3Store_Errors(t *testing.T) {
	boom := errors.New("connection reset")
	st := newS3Store(&fakeS3{getErr: boom, putErr: boom, headErr: boom}, "bucket", 0)
	ctx := context.Background()
	if _, err := st.Get(ctx, "k"); !errors.Is(err, boom) || errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want wrapped boom", err)
	}
	if err := st.Put(ctx, "k", nil); !errors.Is(err, boom) {
		t.Errorf("Put() error = %v, want wrapped boom", err)
	}
	if err := st.Ping(ctx); !errors.Is(err, boom) {
		t.Errorf("Ping() error = %v, want wrapped boom", err)
	}
	if st.timeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", st.timeout)
	}
}

// TestGuarded_NotFoundDoesNotTrip verifies missing keys never open the circuit
// while real failures do.
func TestGuarded_NotFoundDoesNotTrip(t *testing.T) {
	fake := &fakeS3{}
	cb := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Hour, IsFailure: IsFailure})
	g := NewGuarded(newS3Store(fake, "bucket", time.Second), cb)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := g.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get() error = %v, want ErrNotFound", err)
		}
	}
	if cb.State() != circuitbreaker.StateClosed {
		t.Fatalf("State() = %v after not-found reads, want closed", cb.State())
	}

	fake.putErr = errors.New("timeout")
	_ = g.Put(ctx, "k", []byte("x"))
	_ = g.Put(ctx, "k", []byte("x"))
	if err := g.Put(ctx, "k", []byte("x")); !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("Put() error = %v, want ErrOpen", err)
	}
	if g.Breaker() != cb || g.Name() != "s3" {
		t.Error("Guarded accessors do not expose wrapped breaker/name")
	}
}
