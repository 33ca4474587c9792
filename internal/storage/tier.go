package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"golang.org/x/sync/errgroup"
)

// Remote is the secondary object tier.
type Remote interface {
	Exists(ctx context.Context, key string) (bool, error)
	Download(ctx context.Context, key string, w io.Writer) error
	UploadFile(ctx context.Context, localPath, key string, ifAbsent bool) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Tier serves artifacts from the local media root and falls back to the
// remote tier on a miss. A nil remote means local-only operation.
type Tier struct {
	root   string
	remote Remote
	prefix string
}

func New(root string, remote Remote, prefix string) *Tier {
	return &Tier{root: root, remote: remote, prefix: prefix}
}

func (t *Tier) Root() string { return t.root }

func (t *Tier) RemoteEnabled() bool { return t.remote != nil }

// Abs resolves a media-root-relative path.
func (t *Tier) Abs(rel string) string {
	return filepath.Join(t.root, rel)
}

// Key is the remote object key of rel.
func (t *Tier) Key(rel string) string {
	return path.Join(t.prefix, filepath.ToSlash(rel))
}

// Ensure makes rel available on local disk and returns its absolute path.
// A local hit never contacts the remote tier.
func (t *Tier) Ensure(ctx context.Context, rel string) (string, error) {
	abs := t.Abs(rel)
	if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
		return abs, nil
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to stat %s: %w", abs, err)
	}

	if t.remote == nil {
		return "", &models.NotFoundError{What: "file", ID: rel, Detail: "not on local disk and no remote storage is configured"}
	}

	key := t.Key(rel)
	exists, err := t.remote.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", &models.NotFoundError{What: "file", ID: rel, Detail: "not on local disk nor in remote storage"}
	}

	if err := t.download(ctx, key, abs); err != nil {
		return "", err
	}
	slog.Info("Fetched file from remote storage.", "key", key, "path", abs)
	return abs, nil
}

func (t *Tier) download(ctx context.Context, key, abs string) error {
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("failed to create parent dir of %s: %w", abs, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := t.remote.Download(ctx, key, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}
	return nil
}

// Publish uploads rel to the remote tier. Failures are logged and swallowed:
// the local copy stays authoritative for this worker.
func (t *Tier) Publish(ctx context.Context, rel string) {
	t.publish(ctx, rel, false)
}

// PublishImmutable is Publish for write-once artifacts such as version files.
func (t *Tier) PublishImmutable(ctx context.Context, rel string) {
	t.publish(ctx, rel, true)
}

func (t *Tier) publish(ctx context.Context, rel string, ifAbsent bool) {
	if t.remote == nil {
		return
	}
	key := t.Key(rel)
	if err := t.remote.UploadFile(ctx, t.Abs(rel), key, ifAbsent); err != nil {
		slog.Warn("Remote upload failed, continuing with local copy.", "key", key, "error", err)
	}
}

// PublishDir uploads every regular file directly under relDir.
func (t *Tier) PublishDir(ctx context.Context, relDir string) {
	if t.remote == nil {
		return
	}
	entries, err := os.ReadDir(t.Abs(relDir))
	if err != nil {
		slog.Warn("Could not list directory for upload.", "dir", relDir, "error", err)
		return
	}

	var eg errgroup.Group
	eg.SetLimit(4)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		rel := filepath.Join(relDir, entry.Name())
		eg.Go(func() error {
			t.Publish(ctx, rel)
			return nil
		})
	}
	_ = eg.Wait()
}

// RemoveDir deletes the directory relDir from both tiers.
func (t *Tier) RemoveDir(ctx context.Context, relDir string) error {
	if err := os.RemoveAll(t.Abs(relDir)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", relDir, err)
	}
	if t.remote == nil {
		return nil
	}
	return t.remote.DeletePrefix(ctx, t.Key(relDir)+"/")
}

// RemoveFile deletes rel from both tiers. A missing file is not an error.
func (t *Tier) RemoveFile(ctx context.Context, rel string) error {
	if err := os.Remove(t.Abs(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	if t.remote == nil {
		return nil
	}
	return t.remote.DeletePrefix(ctx, t.Key(rel))
}
