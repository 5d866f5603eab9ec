// Package topology owns the embedding space: it ingests articles, keeps
// cluster assignments current and answers the spatial queries the feed
// selector builds pages from.
package topology

import (
	"context"
	"fmt"
	"sort"

	"github.com/japanese-wolf/brain-stream/internal/clustering"
	"github.com/japanese-wolf/brain-stream/internal/core"
	"github.com/japanese-wolf/brain-stream/internal/embedding"
	"github.com/japanese-wolf/brain-stream/internal/logger"
	"github.com/japanese-wolf/brain-stream/internal/state"
	"github.com/japanese-wolf/brain-stream/internal/vectorstore"
)

// BoundaryArticle is a cluster member with its distance from the cluster
// centroid. The farthest members are the serendipity candidates.
type BoundaryArticle struct {
	core.Article
	Distance float64 `json:"distance"`
}

// Engine maintains the vector store and the cluster lifecycle. All writes
// to the store go through Ingest and Recluster; the engine is the single
// writer.
type Engine struct {
	store     vectorstore.Store
	embedder  embedding.Embedder
	clusterer *clustering.Clusterer
	arms      *state.Store
}

// New creates a topology engine over the given store and embedder.
func New(store vectorstore.Store, embedder embedding.Embedder, clusterer *clustering.Clusterer, arms *state.Store) *Engine {
	return &Engine{
		store:     store,
		embedder:  embedder,
		clusterer: clusterer,
		arms:      arms,
	}
}

// Ingest embeds and stores articles whose ids are not already present.
// Duplicates, both against the store and within the batch, are silently
// skipped. Returns how many articles were stored.
func (e *Engine) Ingest(ctx context.Context, items []core.Article) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ExternalID
	}

	existing, err := e.store.Existing(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing ids: %w", err)
	}

	var fresh []core.Article
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if existing[item.ExternalID] || seen[item.ExternalID] {
			continue
		}
		seen[item.ExternalID] = true
		fresh = append(fresh, item)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	texts := make([]string, len(fresh))
	for i, item := range fresh {
		texts[i] = item.EmbeddingText()
	}

	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %d articles: %w", len(fresh), err)
	}
	if len(vectors) != len(fresh) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d articles", len(vectors), len(fresh))
	}

	records := make([]vectorstore.Record, len(fresh))
	for i, item := range fresh {
		item.ClusterID = core.ClusterNoise
		records[i] = vectorstore.Record{
			ID:     item.ExternalID,
			Vector: vectors[i],
			Meta:   item,
		}
	}

	if err := e.store.Put(ctx, records); err != nil {
		return 0, fmt.Errorf("failed to store articles: %w", err)
	}

	logger.Info("ingested articles", "count", len(records), "embedder", e.embedder.Name())
	return len(records), nil
}

// Recluster reassigns every stored article to a topic cluster and refreshes
// the bandit arms. Returns cluster id → member count, noise excluded.
//
// Fewer articles than the minimum cluster size all land in catch-all
// cluster 0. A clustering failure (identical points, zero variance)
// degrades the same way instead of crashing the run.
func (e *Engine) Recluster(ctx context.Context) (map[int]int, error) {
	records, err := e.store.BulkScan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	if len(records) == 0 {
		return map[int]int{}, nil
	}

	vectors := make([][]float64, len(records))
	for i, rec := range records {
		vectors[i] = rec.Vector
	}

	labels, err := e.clusterer.Assign(vectors)
	if err != nil {
		logger.Warn("clustering failed, assigning catch-all cluster", "error", err.Error(), "articles", len(records))
		labels = make([]int, len(records))
	}

	assignments := make(map[string]int, len(records))
	counts := make(map[int]int)
	titles := make(map[int][]string)
	for i, rec := range records {
		label := labels[i]
		assignments[rec.ID] = label
		if label == core.ClusterNoise {
			continue
		}
		counts[label]++
		titles[label] = append(titles[label], rec.Meta.Title)
	}

	if err := e.store.AssignClusters(ctx, assignments); err != nil {
		return nil, fmt.Errorf("failed to write cluster assignments: %w", err)
	}

	for clusterID, count := range counts {
		if err := e.arms.UpsertArm(clusterID, count); err != nil {
			return nil, fmt.Errorf("failed to upsert arm for cluster %d: %w", clusterID, err)
		}
		if err := e.arms.SetArmLabel(clusterID, clustering.GenerateLabel(titles[clusterID])); err != nil {
			return nil, fmt.Errorf("failed to label arm for cluster %d: %w", clusterID, err)
		}
	}

	logger.Info("reclustered", "articles", len(records), "clusters", len(counts))
	return counts, nil
}

// ClusterArticles returns up to n members of a cluster, newest first by
// publication time when newestFirst is set, ties broken by external id
// ascending. Noise is not a cluster: id −1 returns nothing.
func (e *Engine) ClusterArticles(ctx context.Context, clusterID, n int, newestFirst bool) ([]core.Article, error) {
	if clusterID == core.ClusterNoise {
		return []core.Article{}, nil
	}

	records, err := e.store.BulkScan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}

	var members []core.Article
	for _, rec := range records {
		if rec.Meta.ClusterID == clusterID {
			members = append(members, rec.Meta)
		}
	}

	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			if newestFirst {
				return a.PublishedAt.After(b.PublishedAt)
			}
			return a.PublishedAt.Before(b.PublishedAt)
		}
		return a.ExternalID < b.ExternalID
	})

	if n > 0 && len(members) > n {
		members = members[:n]
	}
	if members == nil {
		members = []core.Article{}
	}
	return members, nil
}

// BoundaryArticles returns the n members of a cluster farthest from its
// centroid, descending by Euclidean distance, ties broken by external id
// ascending.
func (e *Engine) BoundaryArticles(ctx context.Context, clusterID, n int) ([]BoundaryArticle, error) {
	if clusterID == core.ClusterNoise {
		return []BoundaryArticle{}, nil
	}

	records, err := e.store.BulkScan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}

	var members []vectorstore.Record
	var vectors [][]float64
	for _, rec := range records {
		if rec.Meta.ClusterID == clusterID {
			members = append(members, rec)
			vectors = append(vectors, rec.Vector)
		}
	}
	if len(members) == 0 {
		return []BoundaryArticle{}, nil
	}

	centroid := clustering.Centroid(vectors)

	boundary := make([]BoundaryArticle, len(members))
	for i, rec := range members {
		boundary[i] = BoundaryArticle{
			Article:  rec.Meta,
			Distance: clustering.EuclideanDistance(rec.Vector, centroid),
		}
	}

	sort.Slice(boundary, func(i, j int) bool {
		if boundary[i].Distance != boundary[j].Distance {
			return boundary[i].Distance > boundary[j].Distance
		}
		return boundary[i].ExternalID < boundary[j].ExternalID
	})

	if n > 0 && len(boundary) > n {
		boundary = boundary[:n]
	}
	return boundary, nil
}

// ClusterDensity returns each non-noise cluster's share of the non-noise
// population.
func (e *Engine) ClusterDensity(ctx context.Context) (map[int]float64, error) {
	records, err := e.store.BulkScan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}

	counts := make(map[int]int)
	total := 0
	for _, rec := range records {
		if rec.Meta.ClusterID == core.ClusterNoise {
			continue
		}
		counts[rec.Meta.ClusterID]++
		total++
	}

	density := make(map[int]float64, len(counts))
	for clusterID, count := range counts {
		density[clusterID] = float64(count) / float64(total)
	}
	return density, nil
}

// Get returns one article by external id, or (nil, nil) when unknown.
func (e *Engine) Get(ctx context.Context, id string) (*core.Article, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load article %s: %w", id, err)
	}
	if rec == nil {
		return nil, nil
	}
	return &rec.Meta, nil
}

// Existing reports which of the given ids are already stored. The collector
// deduplicates against this before summarizing.
func (e *Engine) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	return e.store.Existing(ctx, ids)
}

// TotalCount returns the number of stored articles.
func (e *Engine) TotalCount(ctx context.Context) (int, error) {
	return e.store.Count(ctx)
}

// AllArticles returns every stored article's metadata, ordered by external
// id. Feeds the no-arms fallback page and the co-occurrence analyzer.
func (e *Engine) AllArticles(ctx context.Context) ([]core.Article, error) {
	records, err := e.store.BulkScan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	articles := make([]core.Article, len(records))
	for i, rec := range records {
		articles[i] = rec.Meta
	}
	return articles, nil
}

// Info assembles the topology overview: one ClusterInfo per non-noise
// cluster with its density, arm state and a few member titles.
func (e *Engine) Info(ctx context.Context) ([]core.ClusterInfo, error) {
	records, err := e.store.BulkScan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}

	counts := make(map[int]int)
	total := 0
	for _, rec := range records {
		if rec.Meta.ClusterID == core.ClusterNoise {
			continue
		}
		counts[rec.Meta.ClusterID]++
		total++
	}

	clusterIDs := make([]int, 0, len(counts))
	for clusterID := range counts {
		clusterIDs = append(clusterIDs, clusterID)
	}
	sort.Ints(clusterIDs)

	infos := make([]core.ClusterInfo, 0, len(clusterIDs))
	for _, clusterID := range clusterIDs {
		members, err := e.ClusterArticles(ctx, clusterID, 3, true)
		if err != nil {
			return nil, err
		}

		info := core.ClusterInfo{
			ClusterID:    clusterID,
			ArticleCount: counts[clusterID],
			Density:      float64(counts[clusterID]) / float64(total),
		}
		for _, m := range members {
			info.SampleTitles = append(info.SampleTitles, core.TruncateRunes(m.Title, 80))
		}

		arm, err := e.arms.Arm(clusterID)
		if err != nil {
			return nil, err
		}
		if arm != nil {
			info.Label = arm.Label
			info.Alpha = arm.Alpha
			info.Beta = arm.Beta
		}

		infos = append(infos, info)
	}
	return infos, nil
}
