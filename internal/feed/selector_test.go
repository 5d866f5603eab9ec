package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/japanese-wolf/brain-stream/internal/clustering"
	"github.com/japanese-wolf/brain-stream/internal/core"
	"github.com/japanese-wolf/brain-stream/internal/embedding"
	"github.com/japanese-wolf/brain-stream/internal/state"
	"github.com/japanese-wolf/brain-stream/internal/topology"
	"github.com/japanese-wolf/brain-stream/internal/vectorstore"
)

type fixture struct {
	engine *topology.Engine
	store  *vectorstore.SQLiteStore
	arms   *state.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := vectorstore.NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("Failed to open vector store: %v", err)
	}
	arms, err := state.NewStore(dir)
	if err != nil {
		t.Fatalf("Failed to open state store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		arms.Close()
	})

	clusterer := clustering.NewClusterer(clustering.Config{MinClusterSize: 5})
	return &fixture{
		engine: topology.New(store, embedding.NewLocal(32), clusterer, arms),
		store:  store,
		arms:   arms,
	}
}

func feedArticle(id, title, vendor string, published time.Time, primary bool) core.Article {
	return core.Article{
		ExternalID:      id,
		Title:           title,
		Summary:         "summary of " + title,
		Vendor:          vendor,
		PublishedAt:     published,
		CollectedAt:     time.Now().UTC(),
		IsPrimarySource: primary,
		ClusterID:       core.ClusterNoise,
	}
}

// seedClusters ingests articles and force-assigns them across two clusters
// with arms, bypassing HDBSCAN so the layout is exact.
func seedClusters(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	articles := []core.Article{
		feedArticle("c1-a", "Kubernetes operators deep dive", "AWS", base.Add(3*time.Hour), true),
		feedArticle("c1-b", "Kubernetes networking update", "GCP", base.Add(2*time.Hour), false),
		feedArticle("c1-c", "Kubernetes storage drivers", "AWS", base.Add(time.Hour), true),
		feedArticle("c2-a", "LLM inference pricing drop", "OpenAI", base.Add(3*time.Hour), true),
		feedArticle("c2-b", "New embedding model release", "Anthropic", base.Add(2*time.Hour), true),
		feedArticle("c2-c", "Context window expansion", "OpenAI", base.Add(time.Hour), false),
	}
	if _, err := f.engine.Ingest(ctx, articles); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	assignments := map[string]int{
		"c1-a": 1, "c1-b": 1, "c1-c": 1,
		"c2-a": 2, "c2-b": 2, "c2-c": 2,
	}
	if err := f.store.AssignClusters(ctx, assignments); err != nil {
		t.Fatalf("AssignClusters failed: %v", err)
	}
	if err := f.arms.UpsertArm(1, 3); err != nil {
		t.Fatalf("UpsertArm failed: %v", err)
	}
	if err := f.arms.UpsertArm(2, 3); err != nil {
		t.Fatalf("UpsertArm failed: %v", err)
	}
}

func TestGenerateColdStartFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// No arms exist yet: the page is simply the newest articles.
	_, err := f.engine.Ingest(ctx, []core.Article{
		feedArticle("a", "Oldest", "AWS", base, false),
		feedArticle("b", "Middle", "GCP", base.Add(time.Hour), false),
		feedArticle("c", "Newest", "AWS", base.Add(2*time.Hour), false),
		feedArticle("z", "Undated", "AWS", time.Time{}, false),
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	s := NewSelector(f.engine, f.arms, 2, 42)

	page, err := s.Generate(ctx, Query{Limit: 10})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(page) != 4 {
		t.Fatalf("Expected 4 items, got %d", len(page))
	}
	wantOrder := []string{"c", "b", "a", "z"}
	for i, want := range wantOrder {
		if page[i].ExternalID != want {
			t.Errorf("page[%d] = %s, want %s", i, page[i].ExternalID, want)
		}
	}
	for _, item := range page {
		if item.Serendipity {
			t.Error("Cold-start fallback must not mark serendipity")
		}
	}

	// Offset pages into the same ordering.
	page, err = s.Generate(ctx, Query{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(page) != 2 || page[0].ExternalID != "b" || page[1].ExternalID != "a" {
		t.Errorf("Unexpected offset page: %v", page)
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	f := newFixture(t)
	seedClusters(t, f)
	ctx := context.Background()

	q := Query{Limit: 6}
	first, err := NewSelector(f.engine, f.arms, 2, 7).Generate(ctx, q)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	second, err := NewSelector(f.engine, f.arms, 2, 7).Generate(ctx, q)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("Page sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ExternalID != second[i].ExternalID || first[i].Serendipity != second[i].Serendipity {
			t.Errorf("Pages diverge at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestGenerateSerendipitySlots(t *testing.T) {
	f := newFixture(t)
	seedClusters(t, f)
	ctx := context.Background()

	s := NewSelector(f.engine, f.arms, 2, 99)
	page, err := s.Generate(ctx, Query{Limit: 6})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(page) != 6 {
		t.Fatalf("Expected full page of 6, got %d", len(page))
	}

	serendipity := 0
	seen := make(map[string]bool)
	for _, item := range page {
		if seen[item.ExternalID] {
			t.Errorf("Duplicate item %s in page", item.ExternalID)
		}
		seen[item.ExternalID] = true
		if item.Serendipity {
			serendipity++
		}
	}
	if serendipity != 2 {
		t.Errorf("Expected 2 serendipity items, got %d", serendipity)
	}
	// Serendipity items come after the main slots.
	for _, item := range page[:4] {
		if item.Serendipity {
			t.Error("Main slot marked as serendipity")
		}
	}
}

func TestGenerateThreeClusters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	var articles []core.Article
	assignments := make(map[string]int)
	for cluster := 1; cluster <= 3; cluster++ {
		for i := 0; i < 4; i++ {
			id := fmt.Sprintf("c%d-%d", cluster, i)
			articles = append(articles, feedArticle(
				id,
				fmt.Sprintf("Topic %d article %d with a distinct title", cluster, i),
				"Acme",
				base.Add(time.Duration(i)*time.Hour),
				false,
			))
			assignments[id] = cluster
		}
	}
	if _, err := f.engine.Ingest(ctx, articles); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if err := f.store.AssignClusters(ctx, assignments); err != nil {
		t.Fatalf("AssignClusters failed: %v", err)
	}
	for cluster := 1; cluster <= 3; cluster++ {
		if err := f.arms.UpsertArm(cluster, 4); err != nil {
			t.Fatalf("UpsertArm failed: %v", err)
		}
	}

	s := NewSelector(f.engine, f.arms, 2, 5)
	page, err := s.Generate(ctx, Query{Limit: 10})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	// The main pass takes 2 per cluster across 3 clusters; boundary
	// articles fill only the 2 reserved slots, never the shortfall.
	if len(page) != 8 {
		t.Fatalf("Expected 8 items (6 main + 2 serendipity), got %d", len(page))
	}

	seen := make(map[string]bool)
	serendipity := 0
	for _, item := range page {
		if seen[item.ExternalID] {
			t.Errorf("Duplicate item %s in page", item.ExternalID)
		}
		seen[item.ExternalID] = true
		if item.Serendipity {
			serendipity++
		}
	}
	if serendipity != 2 {
		t.Errorf("Expected exactly 2 serendipity items, got %d", serendipity)
	}
}

func TestGenerateFilters(t *testing.T) {
	f := newFixture(t)
	seedClusters(t, f)
	ctx := context.Background()

	s := NewSelector(f.engine, f.arms, 0, 1)

	page, err := s.Generate(ctx, Query{Limit: 10, Vendor: "aws"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for _, item := range page {
		if item.Vendor != "AWS" {
			t.Errorf("Vendor filter leaked %s", item.Vendor)
		}
	}
	if len(page) == 0 {
		t.Error("Expected AWS articles in the page")
	}

	page, err = s.Generate(ctx, Query{Limit: 10, PrimaryOnly: true})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for _, item := range page {
		if !item.IsPrimarySource {
			t.Errorf("PrimaryOnly filter leaked %s", item.ExternalID)
		}
	}
}

func TestGenerateZeroLimit(t *testing.T) {
	f := newFixture(t)
	s := NewSelector(f.engine, f.arms, 2, 1)

	page, err := s.Generate(context.Background(), Query{Limit: 0})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(page) != 0 {
		t.Errorf("Expected empty page, got %d items", len(page))
	}
}

func TestRecordActionRewardsArm(t *testing.T) {
	f := newFixture(t)
	seedClusters(t, f)
	ctx := context.Background()

	s := NewSelector(f.engine, f.arms, 0, 1)

	if err := s.RecordAction(ctx, "c1-a", core.ActionClick); err != nil {
		t.Fatalf("RecordAction failed: %v", err)
	}
	if err := s.RecordAction(ctx, "c1-b", core.ActionSkip); err != nil {
		t.Fatalf("RecordAction failed: %v", err)
	}
	if err := s.RecordAction(ctx, "c1-c", core.ActionBookmark); err != nil {
		t.Fatalf("RecordAction failed: %v", err)
	}

	arm, err := f.arms.Arm(1)
	if err != nil || arm == nil {
		t.Fatalf("Arm lookup failed: arm=%v err=%v", arm, err)
	}
	// click and bookmark raise alpha, skip raises beta.
	if arm.Alpha != 3.0 || arm.Beta != 2.0 {
		t.Errorf("Expected arm (3, 2), got (%v, %v)", arm.Alpha, arm.Beta)
	}

	entries, err := f.arms.RecentActions(10)
	if err != nil {
		t.Fatalf("RecentActions failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Expected 3 log entries, got %d", len(entries))
	}
	if entries[0].Action != core.ActionBookmark || entries[0].ClusterID != 1 {
		t.Errorf("Unexpected newest entry: %+v", entries[0])
	}
}

func TestRecordActionUnknownAction(t *testing.T) {
	f := newFixture(t)
	s := NewSelector(f.engine, f.arms, 0, 1)

	err := s.RecordAction(context.Background(), "c1-a", "upvote")
	if !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Expected ErrUnknownAction, got %v", err)
	}
}

func TestRecordActionUnknownArticle(t *testing.T) {
	f := newFixture(t)
	s := NewSelector(f.engine, f.arms, 0, 1)

	// Unknown article ids are ignored, not errors.
	if err := s.RecordAction(context.Background(), "ghost", core.ActionClick); err != nil {
		t.Errorf("Expected nil for unknown article, got %v", err)
	}
	n, err := f.arms.ActionCount()
	if err != nil {
		t.Fatalf("ActionCount failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no logged actions, got %d", n)
	}
}

func TestRecordActionNoiseArticle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Ingest(ctx, []core.Article{
		feedArticle("noise-1", "Unclustered article", "AWS", time.Now().UTC(), false),
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	s := NewSelector(f.engine, f.arms, 0, 1)
	if err := s.RecordAction(ctx, "noise-1", core.ActionClick); err != nil {
		t.Errorf("Expected nil for noise article, got %v", err)
	}

	arms, err := f.arms.Arms()
	if err != nil {
		t.Fatalf("Arms failed: %v", err)
	}
	if len(arms) != 0 {
		t.Errorf("Expected no arms touched, got %v", arms)
	}
	n, err := f.arms.ActionCount()
	if err != nil {
		t.Fatalf("ActionCount failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no logged actions for noise, got %d", n)
	}
}
