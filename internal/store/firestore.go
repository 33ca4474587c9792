package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/ocrworker/internal/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	fsDocuments = "documents"
	fsVersions  = "documentVersions"
	fsPages     = "pages"
	fsRuns      = "ocrRuns"

	// Head pointer fields on the document. The commit transaction reads and
	// rewrites them, so concurrent commits for one document conflict and retry.
	fieldLatestVersionID     = "latestVersionId"
	fieldLatestVersionNumber = "latestVersionNumber"
)

// FirestoreStore keeps documents and runs in top-level collections and the
// pages of a version in a subcollection of the version document.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *FirestoreStore) docRef(id string) *firestore.DocumentRef {
	return s.client.Collection(fsDocuments).Doc(id)
}

func (s *FirestoreStore) versionRef(id string) *firestore.DocumentRef {
	return s.client.Collection(fsVersions).Doc(id)
}

func decodeVersion(snap *firestore.DocumentSnapshot) (*models.DocumentVersion, error) {
	var v models.DocumentVersion
	if err := snap.DataTo(&v); err != nil {
		return nil, fmt.Errorf("failed to decode version %s: %w", snap.Ref.ID, err)
	}
	v.ID = snap.Ref.ID
	return &v, nil
}

func decodePages(snaps []*firestore.DocumentSnapshot) ([]models.Page, error) {
	pages := make([]models.Page, 0, len(snaps))
	for _, snap := range snaps {
		var p models.Page
		if err := snap.DataTo(&p); err != nil {
			return nil, fmt.Errorf("failed to decode page %s: %w", snap.Ref.ID, err)
		}
		p.ID = snap.Ref.ID
		pages = append(pages, p)
	}
	return pages, nil
}

func (s *FirestoreStore) pagesQuery(versionID string) firestore.Query {
	return s.versionRef(versionID).Collection(fsPages).OrderBy("number", firestore.Asc)
}

func (s *FirestoreStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	snap, err := s.docRef(id).Get(ctx)
	if isNotFound(err) {
		return nil, &models.NotFoundError{What: "document", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc.ID = id
	return &doc, nil
}

// headVersionID reads the latest version pointer from a document snapshot.
func headVersionID(snap *firestore.DocumentSnapshot) string {
	v, err := snap.DataAt(fieldLatestVersionID)
	if err != nil {
		return ""
	}
	id, _ := v.(string)
	return id
}

func (s *FirestoreStore) LatestVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	snap, err := s.docRef(documentID).Get(ctx)
	if isNotFound(err) {
		return nil, &models.NotFoundError{What: "document", ID: documentID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", documentID, err)
	}
	head := headVersionID(snap)
	if head == "" {
		return nil, &models.NotFoundError{What: "latest version of document", ID: documentID}
	}
	return s.GetVersion(ctx, head)
}

func (s *FirestoreStore) GetVersion(ctx context.Context, versionID string) (*models.DocumentVersion, error) {
	snap, err := s.versionRef(versionID).Get(ctx)
	if isNotFound(err) {
		return nil, &models.NotFoundError{What: "document version", ID: versionID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version %s: %w", versionID, err)
	}
	return decodeVersion(snap)
}

func (s *FirestoreStore) Pages(ctx context.Context, versionID string) ([]models.Page, error) {
	if _, err := s.GetVersion(ctx, versionID); err != nil {
		return nil, err
	}
	snaps, err := s.pagesQuery(versionID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list pages of %s: %w", versionID, err)
	}
	if len(snaps) == 0 {
		return nil, noPages(versionID)
	}
	return decodePages(snaps)
}

func (s *FirestoreStore) CommitNewVersion(ctx context.Context, documentID, targetVersionID string, targetPageIDs []string, lang string) (*models.DocumentVersion, error) {
	var result *models.DocumentVersion
	docRef := s.docRef(documentID)
	targetRef := s.versionRef(targetVersionID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = nil
		docSnap, err := tx.Get(docRef)
		if isNotFound(err) {
			return &models.NotFoundError{What: "document", ID: documentID}
		}
		if err != nil {
			return err
		}

		targetSnap, err := tx.Get(targetRef)
		if err != nil && !isNotFound(err) {
			return err
		}
		if err == nil && targetSnap.Exists() {
			existing, err := decodeVersion(targetSnap)
			if err != nil {
				return err
			}
			pageSnaps, err := tx.Documents(s.pagesQuery(targetVersionID)).GetAll()
			if err != nil {
				return err
			}
			pages, err := decodePages(pageSnaps)
			if err != nil {
				return err
			}
			if err := checkReplay(existing, pages, documentID, targetPageIDs); err != nil {
				return err
			}
			result = existing
			return nil
		}

		head := headVersionID(docSnap)
		if head == "" {
			return &models.NotFoundError{What: "latest version of document", ID: documentID}
		}
		latestSnap, err := tx.Get(s.versionRef(head))
		if err != nil {
			return fmt.Errorf("failed to read latest version %s: %w", head, err)
		}
		latest, err := decodeVersion(latestSnap)
		if err != nil {
			return err
		}

		version, pages, err := buildCommit(latest, targetVersionID, targetPageIDs, lang)
		if err != nil {
			return err
		}
		if err := tx.Create(targetRef, version); err != nil {
			return err
		}
		for _, p := range pages {
			if err := tx.Create(targetRef.Collection(fsPages).Doc(p.ID), p); err != nil {
				return err
			}
		}
		if err := tx.Update(docRef, []firestore.Update{
			{Path: fieldLatestVersionID, Value: version.ID},
			{Path: fieldLatestVersionNumber, Value: version.Number},
		}); err != nil {
			return err
		}
		result = &version
		return nil
	})
	if err != nil {
		return nil, wrapTxErr("commit new version", err)
	}
	return result, nil
}

// wrapTxErr keeps domain errors recognisable after a transaction.
func wrapTxErr(op string, err error) error {
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrValidation) || errors.Is(err, models.ErrConflict) {
		return err
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func (s *FirestoreStore) WritePageTexts(ctx context.Context, versionID string, texts map[int]string) error {
	versionRef := s.versionRef(versionID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(versionRef); isNotFound(err) {
			return &models.NotFoundError{What: "document version", ID: versionID}
		} else if err != nil {
			return err
		}
		snaps, err := tx.Documents(s.pagesQuery(versionID)).GetAll()
		if err != nil {
			return err
		}
		pages, err := decodePages(snaps)
		if err != nil {
			return err
		}
		if err := checkTexts(versionID, pages, texts); err != nil {
			return err
		}
		for _, snap := range snaps {
			number, err := snap.DataAt("number")
			if err != nil {
				return err
			}
			n, _ := number.(int64)
			if err := tx.Update(snap.Ref, []firestore.Update{{Path: "text", Value: texts[int(n)]}}); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapTxErr("write page texts", err)
}

func (s *FirestoreStore) InsertDocument(ctx context.Context, doc models.Document, version models.DocumentVersion, pages []models.Page) error {
	if len(pages) != version.PageCount {
		return &models.ValidationError{Field: "pages", Value: len(pages), Reason: fmt.Sprintf("version declares %d pages", version.PageCount)}
	}
	version.DocumentID = doc.ID
	docRef := s.docRef(doc.ID)
	versionRef := s.versionRef(version.ID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil && !isNotFound(err) {
			return err
		}
		if err == nil && snap.Exists() && headVersionID(snap) != "" {
			return fmt.Errorf("document %s already has versions: %w", doc.ID, models.ErrConflict)
		}
		if err := tx.Set(docRef, map[string]any{
			"title":                  doc.Title,
			"ownerId":                doc.OwnerID,
			"language":               doc.Language,
			"createdAt":              doc.CreatedAt,
			fieldLatestVersionID:     version.ID,
			fieldLatestVersionNumber: version.Number,
		}); err != nil {
			return err
		}
		if err := tx.Create(versionRef, version); err != nil {
			return err
		}
		for _, p := range pages {
			p.DocumentVersionID = version.ID
			if err := tx.Create(versionRef.Collection(fsPages).Doc(p.ID), p); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapTxErr("insert document", err)
}

func (s *FirestoreStore) RecordRun(ctx context.Context, run models.OCRRun) error {
	ref := s.client.Collection(fsRuns).Doc(run.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case err == nil && snap.Exists():
			var existing models.OCRRun
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			touchRun(&run, &existing)
		case err == nil || isNotFound(err):
			touchRun(&run, nil)
		default:
			return err
		}
		return tx.Set(ref, run)
	})
	return wrapTxErr("record run", err)
}

func (s *FirestoreStore) GetRun(ctx context.Context, id string) (*models.OCRRun, error) {
	snap, err := s.client.Collection(fsRuns).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, &models.NotFoundError{What: "ocr run", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	var run models.OCRRun
	if err := snap.DataTo(&run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	run.ID = id
	return &run, nil
}

func (s *FirestoreStore) ListRuns(ctx context.Context, state models.WorkflowState) ([]models.OCRRun, error) {
	q := s.client.Collection(fsRuns).Query
	if state != "" {
		q = q.Where("state", "==", string(state))
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	runs := make([]models.OCRRun, 0, len(snaps))
	for _, snap := range snaps {
		var run models.OCRRun
		if err := snap.DataTo(&run); err != nil {
			return nil, fmt.Errorf("failed to decode run %s: %w", snap.Ref.ID, err)
		}
		run.ID = snap.Ref.ID
		runs = append(runs, run)
	}
	return runs, nil
}

var _ VersionStore = (*FirestoreStore)(nil)
