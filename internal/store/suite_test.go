package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/google/uuid"
)

// seedDocument stores a document with a first version of pageCount pages.
func seedDocument(t *testing.T, s VersionStore, fileName string, pageCount int) (models.Document, models.DocumentVersion) {
	t.Helper()
	doc := models.Document{ID: uuid.NewString(), Title: fileName, CreatedAt: time.Now().UTC()}
	version := models.DocumentVersion{
		ID:        uuid.NewString(),
		Number:    1,
		FileName:  fileName,
		PageCount: pageCount,
		Language:  "deu",
		CreatedAt: time.Now().UTC(),
	}
	pages := make([]models.Page, pageCount)
	for i := range pages {
		pages[i] = models.Page{ID: uuid.NewString(), DocumentVersionID: version.ID, Number: i + 1, Language: "deu"}
	}
	if err := s.InsertDocument(context.Background(), doc, version, pages); err != nil {
		t.Fatalf("InsertDocument() error = %v", err)
	}
	version.DocumentID = doc.ID
	return doc, version
}

func newIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	return ids
}

// runStoreSuite exercises the VersionStore contract against any backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) VersionStore) {
	ctx := context.Background()

	t.Run("LatestVersionAndPages", func(t *testing.T) {
		s := newStore(t)
		doc, v1 := seedDocument(t, s, "receipt_001.pdf", 3)

		latest, err := s.LatestVersion(ctx, doc.ID)
		if err != nil {
			t.Fatalf("LatestVersion() error = %v", err)
		}
		if latest.ID != v1.ID || latest.Number != 1 {
			t.Errorf("LatestVersion() = %+v", latest)
		}

		pages, err := s.Pages(ctx, v1.ID)
		if err != nil {
			t.Fatalf("Pages() error = %v", err)
		}
		for i, p := range pages {
			if p.Number != i+1 {
				t.Errorf("page %d has number %d", i, p.Number)
			}
		}
	})

	t.Run("CommitNewVersion", func(t *testing.T) {
		s := newStore(t)
		doc, v1 := seedDocument(t, s, "receipt_001.pdf", 2)
		target := uuid.NewString()
		pageIDs := newIDs(2)

		v2, err := s.CommitNewVersion(ctx, doc.ID, target, pageIDs, "deu")
		if err != nil {
			t.Fatalf("CommitNewVersion() error = %v", err)
		}
		if v2.ID != target || v2.Number != v1.Number+1 {
			t.Errorf("new version = %+v", v2)
		}
		if v2.FileName != "receipt_001.pdf" || v2.PageCount != 2 {
			t.Errorf("file name/page count not copied: %+v", v2)
		}
		if v2.ShortDescription != models.ShortDescriptionOCR {
			t.Errorf("ShortDescription = %q", v2.ShortDescription)
		}

		latest, err := s.LatestVersion(ctx, doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if latest.ID != target {
			t.Errorf("latest = %s, want %s", latest.ID, target)
		}

		pages, err := s.Pages(ctx, target)
		if err != nil {
			t.Fatal(err)
		}
		got := make([]string, len(pages))
		for i, p := range pages {
			got[i] = p.ID
			if p.Language != "deu" {
				t.Errorf("page %d language = %q", p.Number, p.Language)
			}
		}
		want := append([]string(nil), pageIDs...)
		sort.Strings(got)
		sort.Strings(want)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("page ids = %v, want %v", got, want)
			}
		}
	})

	t.Run("CommitReplayIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		doc, _ := seedDocument(t, s, "a.pdf", 2)
		target := uuid.NewString()
		pageIDs := newIDs(2)

		first, err := s.CommitNewVersion(ctx, doc.ID, target, pageIDs, "eng")
		if err != nil {
			t.Fatal(err)
		}
		again, err := s.CommitNewVersion(ctx, doc.ID, target, pageIDs, "eng")
		if err != nil {
			t.Fatalf("replay error = %v", err)
		}
		if again.ID != first.ID || again.Number != first.Number {
			t.Errorf("replay returned %+v, want %+v", again, first)
		}
		latest, _ := s.LatestVersion(ctx, doc.ID)
		if latest.Number != 2 {
			t.Errorf("replay created another version: latest number %d", latest.Number)
		}

		_, err = s.CommitNewVersion(ctx, doc.ID, target, newIDs(2), "eng")
		if !errors.Is(err, models.ErrConflict) {
			t.Errorf("replay with other page ids: error = %v, want conflict", err)
		}
	})

	t.Run("CommitPageCountMismatchWritesNothing", func(t *testing.T) {
		s := newStore(t)
		doc, v1 := seedDocument(t, s, "a.pdf", 2)
		target := uuid.NewString()

		_, err := s.CommitNewVersion(ctx, doc.ID, target, newIDs(3), "deu")
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("CommitNewVersion() error = %v, want validation error", err)
		}
		if _, err := s.GetVersion(ctx, target); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("target version exists after failed commit: %v", err)
		}
		latest, err := s.LatestVersion(ctx, doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if latest.ID != v1.ID {
			t.Errorf("latest moved to %s", latest.ID)
		}
	})

	t.Run("ConcurrentCommitsGetDistinctNumbers", func(t *testing.T) {
		s := newStore(t)
		doc, _ := seedDocument(t, s, "a.pdf", 1)

		var wg sync.WaitGroup
		numbers := make([]int, 2)
		errs := make([]error, 2)
		for i := range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := s.CommitNewVersion(ctx, doc.ID, uuid.NewString(), newIDs(1), "deu")
				errs[i] = err
				if err == nil {
					numbers[i] = v.Number
				}
			}()
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				t.Fatalf("concurrent commit error = %v", err)
			}
		}
		sort.Ints(numbers)
		if numbers[0] != 2 || numbers[1] != 3 {
			t.Errorf("version numbers = %v, want [2 3]", numbers)
		}
	})

	t.Run("WritePageTexts", func(t *testing.T) {
		s := newStore(t)
		_, v1 := seedDocument(t, s, "a.pdf", 2)

		if err := s.WritePageTexts(ctx, v1.ID, map[int]string{1: "Hallo", 2: ""}); err != nil {
			t.Fatalf("WritePageTexts() error = %v", err)
		}
		pages, err := s.Pages(ctx, v1.ID)
		if err != nil {
			t.Fatal(err)
		}
		if pages[0].Text != "Hallo" || pages[1].Text != "" {
			t.Errorf("texts = %q, %q", pages[0].Text, pages[1].Text)
		}

		err = s.WritePageTexts(ctx, v1.ID, map[int]string{1: "x", 3: "y"})
		if !errors.Is(err, models.ErrValidation) {
			t.Errorf("mismatched page numbers: error = %v, want validation error", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.LatestVersion(ctx, uuid.NewString()); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("LatestVersion() error = %v", err)
		}
		if _, err := s.GetVersion(ctx, uuid.NewString()); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("GetVersion() error = %v", err)
		}
		if _, err := s.Pages(ctx, uuid.NewString()); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("Pages() error = %v", err)
		}

		_, empty := seedDocument(t, s, "empty.pdf", 0)
		_, err := s.Pages(ctx, empty.ID)
		var nf *models.NotFoundError
		if !errors.As(err, &nf) || nf.Detail == "" {
			t.Errorf("Pages() on a version without pages: error = %v, want detailed not found", err)
		}
	})

	t.Run("Runs", func(t *testing.T) {
		s := newStore(t)
		run := models.OCRRun{
			ID:              uuid.NewString(),
			DocumentID:      "doc",
			SourceVersionID: "v1",
			TargetPageIDs:   newIDs(2),
			FileName:        "a.pdf",
			Language:        "deu",
			State:           models.StateStarted,
		}
		if err := s.RecordRun(ctx, run); err != nil {
			t.Fatalf("RecordRun() error = %v", err)
		}
		first, err := s.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatal(err)
		}

		run.State = models.StateFailed
		run.ErrorDetails = "boom"
		if err := s.RecordRun(ctx, run); err != nil {
			t.Fatal(err)
		}
		got, err := s.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.State != models.StateFailed || got.ErrorDetails != "boom" {
			t.Errorf("run = %+v", got)
		}
		if !got.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("CreatedAt changed from %v to %v", first.CreatedAt, got.CreatedAt)
		}
		if len(got.TargetPageIDs) != 2 {
			t.Errorf("TargetPageIDs = %v", got.TargetPageIDs)
		}

		failed, err := s.ListRuns(ctx, models.StateFailed)
		if err != nil {
			t.Fatal(err)
		}
		found := false
		for _, r := range failed {
			if r.ID == run.ID {
				found = true
			}
			if r.State != models.StateFailed {
				t.Errorf("ListRuns(FAILED) returned %s", r.State)
			}
		}
		if !found {
			t.Error("failed run not listed")
		}

		if _, err := s.GetRun(ctx, uuid.NewString()); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("GetRun() unknown id error = %v", err)
		}
	})
}
