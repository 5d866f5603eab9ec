package vectorstore

import (
	"context"

	"github.com/japanese-wolf/brain-stream/internal/core"
)

// Store persists article embeddings together with their metadata. The
// topology engine is written against this interface; any process-local
// backend that honors these semantics can serve it.
type Store interface {
	// Put saves records, replacing any record with the same id.
	Put(ctx context.Context, records []Record) error

	// Get returns one record by external id, or (nil, nil) when absent.
	Get(ctx context.Context, id string) (*Record, error)

	// Existing reports which of the given ids are already stored.
	// Used by the collector for dedup before summarization.
	Existing(ctx context.Context, ids []string) (map[string]bool, error)

	// BulkScan returns every stored record, ordered by external id.
	// Reclustering loads the whole space through this.
	BulkScan(ctx context.Context) ([]Record, error)

	// UpdateMeta rewrites the metadata of one record, leaving its vector
	// untouched.
	UpdateMeta(ctx context.Context, id string, meta core.Article) error

	// AssignClusters rewrites cluster ids in bulk, in one transaction.
	AssignClusters(ctx context.Context, assignments map[string]int) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying database.
	Close() error
}

// Record is one embedded article: its stable id, its vector and the article
// metadata the feed serves.
type Record struct {
	ID     string
	Vector []float64
	Meta   core.Article
}
