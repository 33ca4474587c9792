package store

import (
	"context"
	"os"
	"testing"

	"github.com/Lllllllleong/ocrworker/internal/gcp"
)

// Runs against the Firestore emulator only:
//
//	gcloud emulators firestore start --host-port=localhost:8088
//	FIRESTORE_EMULATOR_HOST=localhost:8088 go test ./internal/store/
func TestFirestoreStore(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	runStoreSuite(t, func(t *testing.T) VersionStore {
		client, err := gcp.NewFirestoreClient(context.Background(), "ocrworker-test", "")
		if err != nil {
			t.Fatalf("NewFirestoreClient() error = %v", err)
		}
		s := NewFirestoreStore(client)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
