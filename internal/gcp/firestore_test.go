package gcp

import (
	"context"
	"testing"
)

func TestNewFirestoreClientRequiresProject(t *testing.T) {
	if _, err := NewFirestoreClient(context.Background(), "", "ocr"); err == nil {
		t.Fatal("NewFirestoreClient() with no project succeeded")
	}
}
