package sweep

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"quizshow/internal/storage"
)

func newTestJanitor(t *testing.T, objects storage.ObjectStore) *Janitor {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	j, err := NewJanitor(Config{
		Addr:       redisSrv.Addr(),
		Stream:     "test:sweep",
		Consumer:   "janitor-test",
		MaxRetries: 2,
	}, objects)
	if err != nil {
		t.Fatalf("new janitor: %v", err)
	}
	return j
}

func TestJanitorSweepsParkedObject(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewMemoryObjectStore()
	j := newTestJanitor(t, objects)

	url, err := objects.Upload(ctx, "show_backgrounds/s1/1.png", strings.NewReader("bytes"), 5, "image/png")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := j.Enqueue(ctx, url); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	settled, err := j.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if settled != 1 {
		t.Fatalf("settled = %d, want 1", settled)
	}
	if objects.Has(url) {
		t.Fatalf("object should have been removed")
	}
}

func TestJanitorSettlesMissingObject(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewMemoryObjectStore()
	j := newTestJanitor(t, objects)

	if err := j.Enqueue(ctx, "https://objects.local/quizshow/show_backgrounds/gone/1.png"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	settled, err := j.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if settled != 1 {
		t.Fatalf("missing object should settle without error, settled = %d", settled)
	}
}

func TestJanitorRequeuesOnFailureThenGivesUp(t *testing.T) {
	ctx := context.Background()
	objects := &failingObjectStore{}
	j := newTestJanitor(t, objects)

	if err := j.Enqueue(ctx, "https://objects.local/quizshow/show_backgrounds/s1/1.png"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// First pass fails and requeues with attempts=1.
	settled, err := j.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if settled != 0 {
		t.Fatalf("failing delete should not settle, settled = %d", settled)
	}

	// Second pass hits MaxRetries and gives up, settling the message.
	settled, err = j.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if settled != 1 {
		t.Fatalf("exhausted retries should settle, settled = %d", settled)
	}
	if objects.calls != 2 {
		t.Fatalf("delete attempts = %d, want 2", objects.calls)
	}
}

func TestJanitorRejectsEmptyURL(t *testing.T) {
	j := newTestJanitor(t, storage.NewMemoryObjectStore())
	if err := j.Enqueue(context.Background(), "  "); err == nil {
		t.Fatalf("expected enqueue error for empty url")
	}
}

type failingObjectStore struct {
	calls int
}

func (f *failingObjectStore) Upload(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *failingObjectStore) DeleteByURL(context.Context, string) (bool, error) {
	f.calls++
	return false, errors.New("storage unavailable")
}
