package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCSRemote is the remote object tier backed by a single bucket.
type GCSRemote struct {
	client *storage.Client
	bucket string
}

// NewGCSRemote creates a storage client bound to bucket.
func NewGCSRemote(ctx context.Context, bucket string) (*GCSRemote, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a storage remote")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return &GCSRemote{client: client, bucket: bucket}, nil
}

func (r *GCSRemote) Bucket() string { return r.bucket }

// Exists reports whether the object is present.
func (r *GCSRemote) Exists(ctx context.Context, key string) (bool, error) {
	_, err := r.client.Bucket(r.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat gs://%s/%s: %w", r.bucket, key, err)
	}
	return true, nil
}

// Download streams the object into w.
func (r *GCSRemote) Download(ctx context.Context, key string, w io.Writer) error {
	gcsReader, err := r.client.Bucket(r.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", r.bucket, key, err)
	}
	defer gcsReader.Close()
	if _, err := io.Copy(w, gcsReader); err != nil {
		return fmt.Errorf("failed to copy GCS object gs://%s/%s: %w", r.bucket, key, err)
	}
	return nil
}

// UploadFile copies a local file to key, retrying with exponential backoff.
// With ifAbsent the write is conditional and an existing object counts as
// success, which is what immutable artifacts want on redelivery.
func (r *GCSRemote) UploadFile(ctx context.Context, localPath, key string, ifAbsent bool) error {
	const maxRetries = 4
	var backoff = 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := r.uploadOnce(ctx, localPath, key, ifAbsent)
		if err == nil {
			return nil
		}
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping upload.", "gcsObject", key)
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return err
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", key,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", key, "error", ctx.Err())
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for %s failed after all retries: %w", key, lastErr)
}

func (r *GCSRemote) uploadOnce(ctx context.Context, localPath, key string, ifAbsent bool) error {
	localFileReader, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer localFileReader.Close()

	writeCtx, cancel := context.WithTimeout(ctx, time.Second*50)
	defer cancel()

	obj := r.client.Bucket(r.bucket).Object(key)
	if ifAbsent {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	gcsWriter := obj.NewWriter(writeCtx)

	if _, err := io.Copy(gcsWriter, localFileReader); err != nil {
		_ = gcsWriter.Close()
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}
	if err := gcsWriter.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}

// DeletePrefix removes every object under prefix.
func (r *GCSRemote) DeletePrefix(ctx context.Context, prefix string) error {
	bucket := r.client.Bucket(r.bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("failed to delete %s: %w", attrs.Name, err)
		}
	}
	return nil
}

func (r *GCSRemote) Close() error {
	return r.client.Close()
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
