package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"
)

func TestFailedCommandClosesStore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ocr.db")
	t.Setenv("OCR_STORE", "bolt")
	t.Setenv("OCR_BOLT_PATH", dbPath)
	t.Setenv("OCR_MEDIA_ROOT", filepath.Join(dir, "media"))
	t.Setenv("OCR_ENGINE", "ocrmypdf")
	t.Setenv("OCR_BUCKET", "")
	t.Setenv("OCR_INDEX_URL", "")

	saved := opts
	t.Cleanup(func() { opts = saved })
	opts = defaultOptions
	opts.EnvFile = filepath.Join(dir, "missing.env")
	opts.File = filepath.Join(dir, "missing.pdf")

	var err error
	commands{ctx: context.Background(), err: &err}.importFile()
	if err == nil {
		t.Fatal("import of a missing file succeeded")
	}

	db, openErr := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 200 * time.Millisecond})
	if openErr != nil {
		t.Fatalf("store still locked after failed command: %v", openErr)
	}
	db.Close()
}
