package store

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/ocrworker/internal/config"
	"github.com/Lllllllleong/ocrworker/internal/gcp"
)

// Open returns the backend selected by cfg.Store.
func Open(ctx context.Context, cfg *config.Config) (VersionStore, error) {
	switch cfg.Store {
	case config.StoreFirestore:
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
		if err != nil {
			return nil, err
		}
		return NewFirestoreStore(client), nil
	case config.StoreBolt:
		s, err := NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorePostgres:
		s, err := NewPostgresStore(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
