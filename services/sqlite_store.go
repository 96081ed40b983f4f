package services

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/itish2003/ragkb/models"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore keeps the whole index in a single SQLite file and ranks by
// brute-force cosine distance. Suitable for knowledge bases of up to a few
// hundred thousand chunks.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	dimension int
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	text        TEXT NOT NULL,
	vector      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_document ON entries(document_id);
CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// NewSQLiteStore opens (or creates) the index at path. Reopening an index
// with a different dimension is a configuration error.
func NewSQLiteStore(path string, dimension int) (*SQLiteStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive, got %d", ErrConfiguration, dimension)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer; keeps transactions serialised without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &SQLiteStore{db: db, path: path, dimension: dimension}
	if err := s.checkDimension(); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("STORE: Opened SQLite index at %s (dimension %d)", path, dimension)
	return s, nil
}

func (s *SQLiteStore) checkDimension() error {
	var stored string
	err := s.db.QueryRow(`SELECT value FROM store_meta WHERE key = 'dimension'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec(`INSERT INTO store_meta (key, value) VALUES ('dimension', ?)`, strconv.Itoa(s.dimension))
		if err != nil {
			return fmt.Errorf("recording index dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("reading index dimension: %w", err)
	}
	if stored != strconv.Itoa(s.dimension) {
		return fmt.Errorf("%w: index %s was built with dimension %s, configured %d",
			ErrConfiguration, s.path, stored, s.dimension)
	}
	return nil
}

func (s *SQLiteStore) Dimension() int { return s.dimension }

// Add writes the batch in one transaction.
func (s *SQLiteStore) Add(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.write(ctx, "", entries)
}

// ReplaceDocument deletes every entry of documentID and adds entries in the
// same transaction; on failure the previous entries stay.
func (s *SQLiteStore) ReplaceDocument(ctx context.Context, documentID string, entries []models.IndexEntry) error {
	return s.write(ctx, documentID, entries)
}

func (s *SQLiteStore) write(ctx context.Context, replaced string, entries []models.IndexEntry) error {
	if err := validateBatch(entries, s.dimension); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrStoreWrite, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if replaced != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE document_id = ?`, replaced); err != nil {
			return fmt.Errorf("%w: clearing %s: %v", ErrStoreWrite, replaced, err)
		}
	}
	for _, e := range entries {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE id = ?`, e.ID).Scan(&exists)
		if err == nil {
			return fmt.Errorf("%w: entry %q already exists", ErrStoreWrite, e.ID)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: checking entry %q: %v", ErrStoreWrite, e.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entries (id, document_id, chunk_index, text, vector) VALUES (?, ?, ?, ?, ?)`,
			e.ID, e.DocumentID, e.ChunkIndex, e.Text, float32SliceToBytes(e.Vector))
		if err != nil {
			return fmt.Errorf("%w: inserting entry %q: %v", ErrStoreWrite, e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStoreWrite, err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int) ([]models.Passage, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrConfiguration, k)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index has %d",
			ErrConfiguration, len(vector), s.dimension)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, chunk_index, text, vector FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var passages []models.Passage
	for rows.Next() {
		var (
			p    models.Passage
			blob []byte
		)
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.ChunkIndex, &p.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		p.Distance = cosineDistance(vector, bytesToFloat32Slice(blob))
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return rankPassages(passages, k), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, filter models.Filter) error {
	var (
		res sql.Result
		err error
	)
	switch filter.Key {
	case models.MetaDocumentID:
		res, err = s.db.ExecContext(ctx, `DELETE FROM entries WHERE document_id = ?`, filter.Value)
	case models.MetaChunkIndex:
		idx, convErr := strconv.Atoi(filter.Value)
		if convErr != nil {
			return fmt.Errorf("%w: chunk_index filter %q is not a number", ErrConfiguration, filter.Value)
		}
		res, err = s.db.ExecContext(ctx, `DELETE FROM entries WHERE chunk_index = ?`, idx)
	default:
		return fmt.Errorf("%w: unsupported filter key %q", ErrConfiguration, filter.Key)
	}
	if err != nil {
		return fmt.Errorf("%w: deleting %s=%s: %v", ErrStoreWrite, filter.Key, filter.Value, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("STORE: Deleted %d entries where %s=%s", n, filter.Key, filter.Value)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// validateBatch rejects a batch with a wrong-sized vector or a repeated id.
func validateBatch(entries []models.IndexEntry, dimension int) error {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if len(e.Vector) != dimension {
			return fmt.Errorf("%w: entry %q has dimension %d, store has %d",
				ErrStoreWrite, e.ID, len(e.Vector), dimension)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: entry %q appears twice in the batch", ErrStoreWrite, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
