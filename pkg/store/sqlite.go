package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dotsetgreg/personakit/pkg/embedding"
)

// SQLiteStore is the canonical vector store. Vectors are embedded at insert
// time with the configured embedder and kept as JSON alongside the record, so
// search needs no external service.
type SQLiteStore struct {
	db       *sql.DB
	embedder embedding.Embedder
}

// NewSQLiteStore creates/opens the item database at path.
func NewSQLiteStore(path string, embedder embedding.Embedder) (*SQLiteStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("open item store: nil embedder")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create item db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process store. Use one shared connection to avoid writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, embedder: embedder}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dim INTEGER NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			vector_json TEXT NOT NULL DEFAULT '[]',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS items_scope_idx ON items(collection, user_id, path);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(stmt string) string {
	line := strings.TrimSpace(stmt)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func nowMS() int64 { return time.Now().UnixMilli() }

func encodeMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeMap(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]string{}
	}
	return out
}

func encodeVector(vec []float32) string {
	if len(vec) == 0 {
		return "[]"
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeVector(raw string) []float32 {
	if raw == "" {
		return nil
	}
	out := []float32{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// EnsureCollection registers the collection on first use. The stored
// dimension is pinned at creation; a later mismatch means the embedder model
// changed under an existing database, which the caller must resolve.
func (s *SQLiteStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("ensure collection: empty name")
	}
	if dim <= 0 {
		return fmt.Errorf("ensure collection %s: invalid dim %d", name, dim)
	}
	row := s.db.QueryRowContext(ctx, `SELECT dim FROM collections WHERE name = ?`, name)
	var stored int
	switch err := row.Scan(&stored); {
	case err == nil:
		if stored != dim {
			return fmt.Errorf("collection %s: have dim %d, want %d: %w", name, stored, dim, ErrDimensionMismatch)
		}
		return nil
	case errors.Is(err, sql.ErrNoRows):
		_, err := s.db.ExecContext(ctx, `
INSERT INTO collections(name, dim, model, created_at_ms)
VALUES(?, ?, ?, ?)`, name, dim, s.embedder.ModelID(), nowMS())
		if err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		return nil
	default:
		return fmt.Errorf("ensure collection %s: %w", name, err)
	}
}

// AddTexts embeds each text and inserts the records in one transaction.
// metadatas and ids are parallel to texts; missing ids are generated.
func (s *SQLiteStore) AddTexts(ctx context.Context, collection string, texts []string, metadatas []map[string]string, ids []string) error {
	if len(texts) == 0 {
		return nil
	}
	if len(metadatas) != 0 && len(metadatas) != len(texts) {
		return fmt.Errorf("add texts: %d texts but %d metadatas", len(texts), len(metadatas))
	}
	if len(ids) != 0 && len(ids) != len(texts) {
		return fmt.Errorf("add texts: %d texts but %d ids", len(texts), len(ids))
	}
	if err := s.requireCollection(ctx, collection); err != nil {
		return err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("add texts embed %d: %w", i, err)
		}
		vectors[i] = vec
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add texts begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO items(id, collection, user_id, path, content, metadata_json, vector_json, created_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	content = excluded.content,
	metadata_json = excluded.metadata_json,
	vector_json = excluded.vector_json`)
	if err != nil {
		return fmt.Errorf("add texts prepare: %w", err)
	}
	defer stmt.Close()

	now := nowMS()
	for i, text := range texts {
		var meta map[string]string
		if len(metadatas) != 0 {
			meta = metadatas[i]
		}
		id := ""
		if len(ids) != 0 {
			id = ids[i]
		}
		if id == "" {
			id = "pit-" + uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, collection, meta["user_id"], meta["path"], text, encodeMap(meta), encodeVector(vectors[i]), now); err != nil {
			return fmt.Errorf("add texts insert %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add texts commit: %w", err)
	}
	return nil
}

// DeleteByFilter removes every matching record and reports how many went.
func (s *SQLiteStore) DeleteByFilter(ctx context.Context, collection string, filter Filter) (int, error) {
	if err := s.requireCollection(ctx, collection); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
DELETE FROM items
WHERE collection = ?
AND (? = '' OR user_id = ?)
AND (? = '' OR path = ?)`,
		collection,
		filter.UserID, filter.UserID,
		filter.Path, filter.Path,
	)
	if err != nil {
		return 0, fmt.Errorf("delete by filter: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Scroll pages through matching records ordered by id. The returned cursor is
// the last id of the page; an empty cursor means the scan is complete.
func (s *SQLiteStore) Scroll(ctx context.Context, collection string, filter Filter, limit int, cursor string) ([]Record, string, error) {
	if limit <= 0 {
		limit = 128
	}
	if err := s.requireCollection(ctx, collection); err != nil {
		return nil, "", err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, content, metadata_json
FROM items
WHERE collection = ?
AND id > ?
AND (? = '' OR user_id = ?)
AND (? = '' OR path = ?)
ORDER BY id ASC
LIMIT ?`,
		collection, cursor,
		filter.UserID, filter.UserID,
		filter.Path, filter.Path,
		limit,
	)
	if err != nil {
		return nil, "", fmt.Errorf("scroll items: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		var metaRaw string
		if err := rows.Scan(&rec.ID, &rec.Content, &metaRaw); err != nil {
			return nil, "", fmt.Errorf("scan item: %w", err)
		}
		rec.Metadata = decodeMap(metaRaw)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate items: %w", err)
	}

	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

// Search embeds the query and ranks matching records by cosine similarity.
// The candidate set is loaded in memory; collections here are per-user
// profiles in the low hundreds of items, not a corpus.
func (s *SQLiteStore) Search(ctx context.Context, collection string, query string, filter Filter, topK int) ([]ScoredRecord, error) {
	if topK <= 0 {
		topK = 8
	}
	if err := s.requireCollection(ctx, collection); err != nil {
		return nil, err
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, content, metadata_json, vector_json
FROM items
WHERE collection = ?
AND (? = '' OR user_id = ?)
AND (? = '' OR path = ?)`,
		collection,
		filter.UserID, filter.UserID,
		filter.Path, filter.Path,
	)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	defer rows.Close()

	scored := []ScoredRecord{}
	for rows.Next() {
		var rec Record
		var metaRaw, vecRaw string
		if err := rows.Scan(&rec.ID, &rec.Content, &metaRaw, &vecRaw); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		rec.Metadata = decodeMap(metaRaw)
		score := embedding.CosineSimilarity(queryVec, decodeVector(vecRaw))
		scored = append(scored, ScoredRecord{Record: rec, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (s *SQLiteStore) requireCollection(ctx context.Context, name string) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE name = ?`, name)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("collection %s: %w", name, ErrCollectionMissing)
		}
		return fmt.Errorf("require collection %s: %w", name, err)
	}
	return nil
}
