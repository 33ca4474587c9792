package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"go.etcd.io/bbolt"
)

var (
	bucketDocs        = []byte("documents")
	bucketVersions    = []byte("versions")
	bucketDocVersions = []byte("doc_versions")
	bucketPages       = []byte("pages")
	bucketRuns        = []byte("runs")
)

// BoltStore is an embedded VersionStore. bbolt allows a single writer at a
// time, which serializes commits for every document.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketDocs, bucketVersions, bucketDocVersions, bucketPages, bucketRuns} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// doc_versions keys sort by number: "<docID>/<number>".
func docVersionKey(documentID string, number int) []byte {
	return []byte(fmt.Sprintf("%s/%010d", documentID, number))
}

// pages keys sort by page number: "<versionID>/<number>".
func pageKey(versionID string, number int) []byte {
	return []byte(fmt.Sprintf("%s/%06d", versionID, number))
}

func getJSON(b *bbolt.Bucket, key []byte, v any) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func (s *BoltStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketDocs), []byte(id), &doc)
		if err != nil {
			return err
		}
		if !found {
			return &models.NotFoundError{What: "document", ID: id}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *BoltStore) LatestVersion(_ context.Context, documentID string) (*models.DocumentVersion, error) {
	var v *models.DocumentVersion
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		v, err = latestVersionTx(tx, documentID)
		return err
	})
	return v, err
}

func latestVersionTx(tx *bbolt.Tx, documentID string) (*models.DocumentVersion, error) {
	prefix := []byte(documentID + "/")
	c := tx.Bucket(bucketDocVersions).Cursor()
	var versionID []byte
	for k, val := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, val = c.Next() {
		versionID = val
	}
	if versionID == nil {
		return nil, &models.NotFoundError{What: "latest version of document", ID: documentID}
	}
	return versionTx(tx, string(versionID))
}

func versionTx(tx *bbolt.Tx, versionID string) (*models.DocumentVersion, error) {
	var v models.DocumentVersion
	found, err := getJSON(tx.Bucket(bucketVersions), []byte(versionID), &v)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &models.NotFoundError{What: "document version", ID: versionID}
	}
	return &v, nil
}

func pagesTx(tx *bbolt.Tx, versionID string) ([]models.Page, error) {
	prefix := []byte(versionID + "/")
	c := tx.Bucket(bucketPages).Cursor()
	var pages []models.Page
	for k, val := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, val = c.Next() {
		var p models.Page
		if err := json.Unmarshal(val, &p); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

func (s *BoltStore) GetVersion(_ context.Context, versionID string) (*models.DocumentVersion, error) {
	var v *models.DocumentVersion
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		v, err = versionTx(tx, versionID)
		return err
	})
	return v, err
}

func (s *BoltStore) Pages(_ context.Context, versionID string) ([]models.Page, error) {
	var pages []models.Page
	err := s.db.View(func(tx *bbolt.Tx) error {
		if _, err := versionTx(tx, versionID); err != nil {
			return err
		}
		var err error
		pages, err = pagesTx(tx, versionID)
		if err != nil {
			return err
		}
		if len(pages) == 0 {
			return noPages(versionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

func (s *BoltStore) CommitNewVersion(_ context.Context, documentID, targetVersionID string, targetPageIDs []string, lang string) (*models.DocumentVersion, error) {
	var result *models.DocumentVersion
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var existing models.DocumentVersion
		found, err := getJSON(tx.Bucket(bucketVersions), []byte(targetVersionID), &existing)
		if err != nil {
			return err
		}
		if found {
			pages, err := pagesTx(tx, targetVersionID)
			if err != nil {
				return err
			}
			if err := checkReplay(&existing, pages, documentID, targetPageIDs); err != nil {
				return err
			}
			result = &existing
			return nil
		}

		latest, err := latestVersionTx(tx, documentID)
		if err != nil {
			return err
		}
		version, pages, err := buildCommit(latest, targetVersionID, targetPageIDs, lang)
		if err != nil {
			return err
		}
		if err := putVersionTx(tx, version, pages); err != nil {
			return err
		}
		result = &version
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func putVersionTx(tx *bbolt.Tx, version models.DocumentVersion, pages []models.Page) error {
	if err := putJSON(tx.Bucket(bucketVersions), []byte(version.ID), version); err != nil {
		return err
	}
	if err := tx.Bucket(bucketDocVersions).Put(docVersionKey(version.DocumentID, version.Number), []byte(version.ID)); err != nil {
		return err
	}
	for _, p := range pages {
		if err := putJSON(tx.Bucket(bucketPages), pageKey(version.ID, p.Number), p); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) WritePageTexts(_ context.Context, versionID string, texts map[int]string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := versionTx(tx, versionID); err != nil {
			return err
		}
		pages, err := pagesTx(tx, versionID)
		if err != nil {
			return err
		}
		if err := checkTexts(versionID, pages, texts); err != nil {
			return err
		}
		for _, p := range pages {
			p.Text = texts[p.Number]
			if err := putJSON(tx.Bucket(bucketPages), pageKey(versionID, p.Number), p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) InsertDocument(_ context.Context, doc models.Document, version models.DocumentVersion, pages []models.Page) error {
	if len(pages) != version.PageCount {
		return &models.ValidationError{Field: "pages", Value: len(pages), Reason: fmt.Sprintf("version declares %d pages", version.PageCount)}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketVersions).Get([]byte(version.ID)) != nil {
			return fmt.Errorf("version %s already exists: %w", version.ID, models.ErrConflict)
		}
		if tx.Bucket(bucketDocVersions).Get(docVersionKey(doc.ID, version.Number)) != nil {
			return fmt.Errorf("document %s already has version %d: %w", doc.ID, version.Number, models.ErrConflict)
		}
		if err := putJSON(tx.Bucket(bucketDocs), []byte(doc.ID), doc); err != nil {
			return err
		}
		version.DocumentID = doc.ID
		return putVersionTx(tx, version, pages)
	})
}

func (s *BoltStore) RecordRun(_ context.Context, run models.OCRRun) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		var existing models.OCRRun
		found, err := getJSON(b, []byte(run.ID), &existing)
		if err != nil {
			return err
		}
		if found {
			touchRun(&run, &existing)
		} else {
			touchRun(&run, nil)
		}
		return putJSON(b, []byte(run.ID), run)
	})
}

func (s *BoltStore) GetRun(_ context.Context, id string) (*models.OCRRun, error) {
	var run models.OCRRun
	err := s.db.View(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketRuns), []byte(id), &run)
		if err != nil {
			return err
		}
		if !found {
			return &models.NotFoundError{What: "ocr run", ID: id}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *BoltStore) ListRuns(_ context.Context, state models.WorkflowState) ([]models.OCRRun, error) {
	var runs []models.OCRRun
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, val []byte) error {
			var run models.OCRRun
			if err := json.Unmarshal(val, &run); err != nil {
				return err
			}
			if state == "" || run.State == state {
				runs = append(runs, run)
			}
			return nil
		})
	})
	return runs, err
}

var _ VersionStore = (*BoltStore)(nil)
