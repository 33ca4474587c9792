package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	owner_id   TEXT NOT NULL DEFAULT '',
	language   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS document_versions (
	id                TEXT PRIMARY KEY,
	document_id       TEXT NOT NULL REFERENCES documents(id),
	number            INTEGER NOT NULL,
	file_name         TEXT NOT NULL,
	page_count        INTEGER NOT NULL,
	language          TEXT NOT NULL DEFAULT '',
	short_description TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, number)
);
CREATE TABLE IF NOT EXISTS pages (
	id                  TEXT PRIMARY KEY,
	document_version_id TEXT NOT NULL REFERENCES document_versions(id),
	number              INTEGER NOT NULL,
	language            TEXT NOT NULL DEFAULT '',
	text                TEXT NOT NULL DEFAULT '',
	UNIQUE (document_version_id, number)
);
CREATE TABLE IF NOT EXISTS ocr_runs (
	id                TEXT PRIMARY KEY,
	document_id       TEXT NOT NULL,
	source_version_id TEXT NOT NULL,
	target_page_ids   TEXT[] NOT NULL,
	file_name         TEXT NOT NULL DEFAULT '',
	language          TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL,
	error_details     TEXT NOT NULL DEFAULT '',
	execution_id      TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);`

// PostgresStore implements VersionStore on PostgreSQL. Commits lock the
// document row, which serializes them per document.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database and creates the tables if needed.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTables() error {
	_, err := s.db.Exec(schema)
	return err
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const versionColumns = `id, document_id, number, file_name, page_count, language, short_description, created_at`

func scanVersion(row *sql.Row) (*models.DocumentVersion, error) {
	v := &models.DocumentVersion{}
	err := row.Scan(&v.ID, &v.DocumentID, &v.Number, &v.FileName, &v.PageCount, &v.Language, &v.ShortDescription, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc := &models.Document{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, owner_id, language, created_at FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.Title, &doc.OwnerID, &doc.Language, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{What: "document", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func latestVersion(ctx context.Context, q querier, documentID string) (*models.DocumentVersion, error) {
	v, err := scanVersion(q.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM document_versions WHERE document_id = $1 ORDER BY number DESC LIMIT 1`, documentID))
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{What: "latest version of document", ID: documentID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest version: %w", err)
	}
	return v, nil
}

func getVersion(ctx context.Context, q querier, versionID string) (*models.DocumentVersion, error) {
	v, err := scanVersion(q.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM document_versions WHERE id = $1`, versionID))
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{What: "document version", ID: versionID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return v, nil
}

func listPages(ctx context.Context, q querier, versionID string) ([]models.Page, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, document_version_id, number, language, text FROM pages WHERE document_version_id = $1 ORDER BY number`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []models.Page
	for rows.Next() {
		var p models.Page
		if err := rows.Scan(&p.ID, &p.DocumentVersionID, &p.Number, &p.Language, &p.Text); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return pages, nil
}

func (s *PostgresStore) LatestVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	return latestVersion(ctx, s.db, documentID)
}

func (s *PostgresStore) GetVersion(ctx context.Context, versionID string) (*models.DocumentVersion, error) {
	return getVersion(ctx, s.db, versionID)
}

func (s *PostgresStore) Pages(ctx context.Context, versionID string) ([]models.Page, error) {
	if _, err := getVersion(ctx, s.db, versionID); err != nil {
		return nil, err
	}
	pages, err := listPages(ctx, s.db, versionID)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, noPages(versionID)
	}
	return pages, nil
}

func (s *PostgresStore) CommitNewVersion(ctx context.Context, documentID, targetVersionID string, targetPageIDs []string, lang string) (*models.DocumentVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE id = $1 FOR UPDATE`, documentID).Scan(&locked)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{What: "document", ID: documentID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock document: %w", err)
	}

	existing, err := getVersion(ctx, tx, targetVersionID)
	switch {
	case err == nil:
		pages, err := listPages(ctx, tx, targetVersionID)
		if err != nil {
			return nil, err
		}
		if err := checkReplay(existing, pages, documentID, targetPageIDs); err != nil {
			return nil, err
		}
		return existing, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	latest, err := latestVersion(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}
	version, pages, err := buildCommit(latest, targetVersionID, targetPageIDs, lang)
	if err != nil {
		return nil, err
	}
	if err := insertVersion(ctx, tx, version, pages); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit new version: %w", err)
	}
	return &version, nil
}

func insertVersion(ctx context.Context, tx *sql.Tx, v models.DocumentVersion, pages []models.Page) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO document_versions (`+versionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.DocumentID, v.Number, v.FileName, v.PageCount, v.Language, v.ShortDescription, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}
	for _, p := range pages {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pages (id, document_version_id, number, language, text) VALUES ($1, $2, $3, $4, $5)`,
			p.ID, v.ID, p.Number, p.Language, p.Text)
		if err != nil {
			return fmt.Errorf("failed to insert page %d: %w", p.Number, err)
		}
	}
	return nil
}

func (s *PostgresStore) WritePageTexts(ctx context.Context, versionID string, texts map[int]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := getVersion(ctx, tx, versionID); err != nil {
		return err
	}
	pages, err := listPages(ctx, tx, versionID)
	if err != nil {
		return err
	}
	if err := checkTexts(versionID, pages, texts); err != nil {
		return err
	}
	for _, p := range pages {
		if _, err := tx.ExecContext(ctx, `UPDATE pages SET text = $1 WHERE id = $2`, texts[p.Number], p.ID); err != nil {
			return fmt.Errorf("failed to update page %d: %w", p.Number, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc models.Document, version models.DocumentVersion, pages []models.Page) error {
	if len(pages) != version.PageCount {
		return &models.ValidationError{Field: "pages", Value: len(pages), Reason: fmt.Sprintf("version declares %d pages", version.PageCount)}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, owner_id, language, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		doc.ID, doc.Title, doc.OwnerID, doc.Language, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	version.DocumentID = doc.ID
	if err := insertVersion(ctx, tx, version, pages); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("version %s: %w", version.ID, models.ErrConflict)
		}
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) RecordRun(ctx context.Context, run models.OCRRun) error {
	touchRun(&run, nil)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ocr_runs (id, document_id, source_version_id, target_page_ids, file_name, language, state, error_details, execution_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			error_details = EXCLUDED.error_details,
			execution_id = EXCLUDED.execution_id,
			updated_at = EXCLUDED.updated_at`,
		run.ID, run.DocumentID, run.SourceVersionID, pq.Array(run.TargetPageIDs), run.FileName, run.Language,
		string(run.State), run.ErrorDetails, run.ExecutionID, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

const runColumns = `id, document_id, source_version_id, target_page_ids, file_name, language, state, error_details, execution_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.OCRRun, error) {
	run := &models.OCRRun{}
	var state string
	err := row.Scan(&run.ID, &run.DocumentID, &run.SourceVersionID, pq.Array(&run.TargetPageIDs), &run.FileName,
		&run.Language, &state, &run.ErrorDetails, &run.ExecutionID, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	run.State = models.WorkflowState(state)
	return run, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.OCRRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM ocr_runs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{What: "ocr run", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, state models.WorkflowState) ([]models.OCRRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM ocr_runs WHERE ($1 = '' OR state = $1) ORDER BY updated_at`, string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.OCRRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return runs, nil
}

// Compile-time check that PostgresStore implements VersionStore.
var _ VersionStore = (*PostgresStore)(nil)
