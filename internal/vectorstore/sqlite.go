package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/japanese-wolf/brain-stream/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on a single-file SQLite database. Vectors are
// stored as little-endian float64 blobs next to the article metadata, which
// keeps the whole embedding space in one scan-friendly table.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the vector database under dataDir.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "vectors.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:   db,
		path: dbPath,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the records table
func (s *SQLiteStore) initialize() error {
	table := `
	CREATE TABLE IF NOT EXISTS records (
		external_id TEXT PRIMARY KEY,
		embedding BLOB NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		categories TEXT NOT NULL DEFAULT 'null',
		metadata TEXT NOT NULL DEFAULT 'null',
		vendor TEXT NOT NULL DEFAULT '',
		published_at DATETIME,
		collected_at DATETIME,
		is_primary_source INTEGER NOT NULL DEFAULT 0,
		tech_domain TEXT NOT NULL DEFAULT '',
		source_plugin TEXT NOT NULL DEFAULT '',
		cluster_id INTEGER NOT NULL DEFAULT -1
	);`

	if _, err := s.db.Exec(table); err != nil {
		return fmt.Errorf("failed to create records table: %w", err)
	}

	index := `CREATE INDEX IF NOT EXISTS idx_records_cluster ON records (cluster_id);`
	if _, err := s.db.Exec(index); err != nil {
		return fmt.Errorf("failed to create cluster index: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put saves records, replacing any record with the same external id.
func (s *SQLiteStore) Put(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT OR REPLACE INTO records
	(external_id, embedding, title, url, content, summary, tags, categories,
	 metadata, vendor, published_at, collected_at, is_primary_source,
	 tech_domain, source_plugin, cluster_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		tags, categories, metadata, err := marshalMeta(rec.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID,
			encodeVector(rec.Vector),
			rec.Meta.Title,
			rec.Meta.URL,
			rec.Meta.Content,
			rec.Meta.Summary,
			tags,
			categories,
			metadata,
			rec.Meta.Vendor,
			rec.Meta.PublishedAt,
			rec.Meta.CollectedAt,
			rec.Meta.IsPrimarySource,
			rec.Meta.TechDomain,
			rec.Meta.SourcePlugin,
			rec.Meta.ClusterID,
		); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

// Get returns one record, or (nil, nil) when the id is unknown.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM records WHERE external_id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	return rec, nil
}

// Existing reports which of the given ids are already stored.
func (s *SQLiteStore) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	// Chunked to stay below SQLite's bound-parameter limit.
	const chunkSize = 500
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		placeholders := make([]byte, 0, len(chunk)*2)
		args := make([]any, len(chunk))
		for i, id := range chunk {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args[i] = id
		}

		query := fmt.Sprintf(`SELECT external_id FROM records WHERE external_id IN (%s)`, placeholders)
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query existing ids: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan id: %w", err)
			}
			found[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	return found, nil
}

// BulkScan returns every stored record ordered by external id.
func (s *SQLiteStore) BulkScan(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` FROM records ORDER BY external_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// UpdateMeta rewrites the metadata of one record, leaving the vector alone.
func (s *SQLiteStore) UpdateMeta(ctx context.Context, id string, meta core.Article) error {
	tags, categories, metadata, err := marshalMeta(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
	UPDATE records SET
		title = ?, url = ?, content = ?, summary = ?, tags = ?,
		categories = ?, metadata = ?, vendor = ?, published_at = ?,
		collected_at = ?, is_primary_source = ?, tech_domain = ?,
		source_plugin = ?, cluster_id = ?
	WHERE external_id = ?`

	res, err := s.db.ExecContext(ctx, query,
		meta.Title, meta.URL, meta.Content, meta.Summary, tags,
		categories, metadata, meta.Vendor, meta.PublishedAt,
		meta.CollectedAt, meta.IsPrimarySource, meta.TechDomain,
		meta.SourcePlugin, meta.ClusterID,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record %s not found", id)
	}
	return nil
}

// AssignClusters rewrites cluster ids in one transaction.
func (s *SQLiteStore) AssignClusters(ctx context.Context, assignments map[string]int) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE records SET cluster_id = ? WHERE external_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare update: %w", err)
	}
	defer stmt.Close()

	for id, cluster := range assignments {
		if _, err := stmt.ExecContext(ctx, cluster, id); err != nil {
			return fmt.Errorf("failed to assign cluster for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

const selectColumns = `
	SELECT external_id, embedding, title, url, content, summary, tags,
	       categories, metadata, vendor, published_at, collected_at,
	       is_primary_source, tech_domain, source_plugin, cluster_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var blob []byte
	var tags, categories, metadata string
	var published, collected sql.NullTime

	err := row.Scan(
		&rec.ID,
		&blob,
		&rec.Meta.Title,
		&rec.Meta.URL,
		&rec.Meta.Content,
		&rec.Meta.Summary,
		&tags,
		&categories,
		&metadata,
		&rec.Meta.Vendor,
		&published,
		&collected,
		&rec.Meta.IsPrimarySource,
		&rec.Meta.TechDomain,
		&rec.Meta.SourcePlugin,
		&rec.Meta.ClusterID,
	)
	if err != nil {
		return nil, err
	}

	rec.Meta.ExternalID = rec.ID
	rec.Meta.PublishedAt = published.Time
	rec.Meta.CollectedAt = collected.Time
	rec.Vector = decodeVector(blob)
	if err := json.Unmarshal([]byte(tags), &rec.Meta.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(categories), &rec.Meta.Categories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &rec.Meta.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &rec, nil
}

// marshalMeta serializes the JSON-encoded columns of one article.
func marshalMeta(meta core.Article) (tags, categories, metadata string, err error) {
	t, err := json.Marshal(meta.Tags)
	if err != nil {
		return "", "", "", fmt.Errorf("tags: %w", err)
	}
	c, err := json.Marshal(meta.Categories)
	if err != nil {
		return "", "", "", fmt.Errorf("categories: %w", err)
	}
	m, err := json.Marshal(meta.Metadata)
	if err != nil {
		return "", "", "", fmt.Errorf("metadata: %w", err)
	}
	return string(t), string(c), string(m), nil
}

// encodeVector packs a float64 slice into a little-endian blob.
func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian blob into a float64 slice.
func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}
