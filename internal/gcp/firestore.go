package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
)

// NewFirestoreClient opens the Firestore database that holds documents,
// versions, pages and run records. An empty databaseID selects the project's
// default database. FIRESTORE_EMULATOR_HOST redirects the client to the
// emulator.
func NewFirestoreClient(ctx context.Context, projectID, databaseID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to open the version store")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to open firestore database %s/%s: %w", projectID, databaseID, err)
	}
	return client, nil
}
