package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Additional-Code/loom/internal/config"
)

func TestLocalStorePutOpen(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(nil, config.Config{Storage: config.Storage{Driver: "local", LocalDir: t.TempDir()}}, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	body := "defects: 2 of 50"
	if err := store.Put(ctx, "inspections/qc-1/report.txt", strings.NewReader(body), int64(len(body)), "text/plain"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	rc, obj, err := store.Open(ctx, "inspections/qc-1/report.txt")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != body || obj.Size != int64(len(body)) || !strings.HasPrefix(obj.ContentType, "text/plain") {
		t.Fatalf("object = %+v, body = %q", obj, got)
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())
	if err := store.Put(context.Background(), "../outside.txt", strings.NewReader("x"), 1, ""); err == nil {
		t.Fatal("expected key outside the root to be rejected")
	}
	if _, _, err := store.Open(context.Background(), "missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open(missing) err = %v", err)
	}
}
