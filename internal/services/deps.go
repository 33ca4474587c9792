package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/ocrworker/internal/config"
	"github.com/Lllllllleong/ocrworker/internal/gcp"
	"github.com/Lllllllleong/ocrworker/internal/recognizer"
	"github.com/Lllllllleong/ocrworker/internal/storage"
	"github.com/Lllllllleong/ocrworker/internal/store"
)

// Deps is the execution context shared by every stage. It is built once per
// process and passed explicitly.
type Deps struct {
	Config   *config.Config
	Store    store.VersionStore
	Tier     *storage.Tier
	Engine   recognizer.Engine
	Notifier Notifier

	closers []io.Closer
}

// NewDeps wires clients according to cfg.
func NewDeps(ctx context.Context, cfg *config.Config) (*Deps, error) {
	d := &Deps{Config: cfg}

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	d.Store = st
	d.closers = append(d.closers, st)

	var remote storage.Remote
	if cfg.Bucket != "" {
		gcs, err := gcp.NewGCSRemote(ctx, cfg.Bucket)
		if err != nil {
			d.Close()
			return nil, err
		}
		remote = gcs
		d.closers = append(d.closers, gcs)
	}
	d.Tier = storage.New(cfg.MediaRoot, remote, cfg.Prefix)

	engine, err := recognizer.New(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to create OCR engine: %w", err)
	}
	d.Engine = engine
	if c, ok := engine.(io.Closer); ok {
		d.closers = append(d.closers, c)
	}

	notifier, err := NewNotifier(cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Notifier = notifier

	slog.Info("Pipeline dependencies initialized.",
		"store", cfg.Store,
		"engine", engine.Name(),
		"remoteStorage", d.Tier.RemoteEnabled(),
	)
	return d, nil
}

func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
