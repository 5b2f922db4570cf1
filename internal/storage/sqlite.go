// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/pageid"
	"github.com/hyperjump/tanya/internal/vector"
)

const busyTimeoutMillis = 5000

// SQLiteStorage implements Storage using SQLite. Cosine distance runs inside
// SQLite through the vec_cosine_distance function.
type SQLiteStorage struct {
	db         *sql.DB
	dimensions int
	now        func() time.Time
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. Every stored and queried
// embedding must have exactly dimensions values.
func NewSQLiteStorage(dbPath string, dimensions int) (*SQLiteStorage, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open(driverName, dataSourceName(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, dimensions: dimensions, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		title TEXT,
		lang TEXT NOT NULL DEFAULT 'en',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS segments (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		segment_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		token_count INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE,
		UNIQUE (document_id, segment_index)
	);

	CREATE INDEX IF NOT EXISTS idx_segments_document_id ON segments(document_id);
	`
	_, err := db.Exec(schema)
	return err
}

// InTx runs fn inside an immediate transaction, so concurrent writers
// serialize on the database write lock.
func (s *SQLiteStorage) InTx(ctx context.Context, fn func(w Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteWriter{q: tx, s: s}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertDocument runs a single upsert in its own transaction.
func (s *SQLiteStorage) UpsertDocument(ctx context.Context, url, title string) (string, error) {
	var id string
	err := s.InTx(ctx, func(w Writer) error {
		var err error
		id, err = w.UpsertDocument(ctx, url, title)
		return err
	})
	return id, err
}

// ReplaceSegments runs a single replace in its own transaction.
func (s *SQLiteStorage) ReplaceSegments(ctx context.Context, documentID string, segments []models.SegmentInput) error {
	return s.InTx(ctx, func(w Writer) error {
		return w.ReplaceSegments(ctx, documentID, segments)
	})
}

type sqliteWriter struct {
	q queryer
	s *SQLiteStorage
}

func (w *sqliteWriter) UpsertDocument(ctx context.Context, url, title string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("%w: url is required", models.ErrInvalidInput)
	}
	now := w.s.now().UnixNano()
	var id string
	err := w.q.QueryRowContext(ctx,
		`INSERT INTO documents (id, url, title, lang, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
			title = COALESCE(excluded.title, documents.title),
			updated_at = excluded.updated_at
		 RETURNING id`,
		pageid.DocID(url), url, nullString(title), models.DefaultLang, now, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert document: %w", err)
	}
	return id, nil
}

func (w *sqliteWriter) ReplaceSegments(ctx context.Context, documentID string, segments []models.SegmentInput) error {
	if err := validateSegments(segments, w.s.dimensions); err != nil {
		return err
	}
	var exists int
	err := w.q.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, documentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up document: %w", err)
	}

	if _, err := w.q.ExecContext(ctx, `DELETE FROM segments WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete segments: %w", err)
	}
	if len(segments) == 0 {
		return nil
	}

	stmt, err := w.q.PrepareContext(ctx,
		`INSERT INTO segments (id, document_id, segment_index, content, token_count, embedding)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare segment insert: %w", err)
	}
	defer stmt.Close()

	for i, seg := range segments {
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), documentID, i, seg.Content,
			utf8.RuneCountInString(seg.Content), vector.Encode(seg.Embedding),
		); err != nil {
			return fmt.Errorf("failed to insert segment %d: %w", i, err)
		}
	}
	return nil
}

// QueryTopK ranks the document's segments by cosine similarity to query.
func (s *SQLiteStorage) QueryTopK(ctx context.Context, documentID string, query []float32, k int) ([]*models.ScoredSegment, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", models.ErrDimensionMismatch, len(query), s.dimensions)
	}
	results := make([]*models.ScoredSegment, 0)
	if k <= 0 {
		return results, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, segment_index, content, 1 - `+cosineDistanceFunc+`(embedding, ?) AS score
		 FROM segments
		 WHERE document_id = ?
		 ORDER BY score DESC, segment_index ASC
		 LIMIT ?`,
		vector.Encode(query), documentID, k,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.ScoredSegment
		if err := rows.Scan(&r.ID, &r.Index, &r.Content, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT id, url, title, lang, created_at, updated_at FROM documents WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	return doc, err
}

// GetDocumentByURL returns the document stored for a canonical URL.
func (s *SQLiteStorage) GetDocumentByURL(ctx context.Context, url string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT id, url, title, lang, created_at, updated_at FROM documents WHERE url = ?`, url,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document for %s: %w", url, models.ErrNotFound)
	}
	return doc, err
}

// ListDocuments returns documents newest first with offset and limit.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, title, lang, created_at, updated_at
		 FROM documents ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document; its segments go with it through the foreign key.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// GetSegmentsByDocumentID returns all segments for a document ordered by index.
func (s *SQLiteStorage) GetSegmentsByDocumentID(ctx context.Context, documentID string) ([]*models.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, segment_index, content, token_count, embedding
		 FROM segments WHERE document_id = ? ORDER BY segment_index`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := make([]*models.Segment, 0)
	for rows.Next() {
		var seg models.Segment
		var blob []byte
		if err := rows.Scan(&seg.ID, &seg.DocumentID, &seg.Index, &seg.Content, &seg.TokenCount, &blob); err != nil {
			return nil, err
		}
		if seg.Embedding, err = vector.Decode(blob); err != nil {
			return nil, fmt.Errorf("segment %s: %w", seg.ID, err)
		}
		segments = append(segments, &seg)
	}
	return segments, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountSegments returns the total number of segments.
func (s *SQLiteStorage) CountSegments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&count)
	return count, err
}

// Close refreshes query planner statistics and closes the database connection.
func (s *SQLiteStorage) Close() error {
	_, _ = s.db.Exec(`PRAGMA optimize`)
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var title sql.NullString
	var created, updated int64
	if err := row.Scan(&doc.ID, &doc.URL, &title, &doc.Lang, &created, &updated); err != nil {
		return nil, err
	}
	doc.Title = title.String
	doc.CreatedAt = time.Unix(0, created).UTC()
	doc.UpdatedAt = time.Unix(0, updated).UTC()
	return &doc, nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func validateSegments(segments []models.SegmentInput, dimensions int) error {
	for i, seg := range segments {
		if strings.TrimSpace(seg.Content) == "" {
			return fmt.Errorf("%w: segment %d is empty", models.ErrInvalidInput, i)
		}
		if len(seg.Embedding) != dimensions {
			return fmt.Errorf("%w: segment %d has %d, expected %d",
				models.ErrDimensionMismatch, i, len(seg.Embedding), dimensions)
		}
	}
	return nil
}
