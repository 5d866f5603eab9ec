package core

import (
	"strings"
	"time"
)

// Version is the brain-stream release version, reported by the CLI and /health.
const Version = "0.1.0"

// ClusterNoise is the cluster id assigned to unclustered records: items that
// have not been through a recluster yet, and items HDBSCAN marks as noise.
const ClusterNoise = -1

// User actions the bandit understands. Click and bookmark reward a cluster,
// skip penalizes it.
const (
	ActionClick    = "click"
	ActionBookmark = "bookmark"
	ActionSkip     = "skip"
)

// ValidAction reports whether s is one of the recognized feed actions.
func ValidAction(s string) bool {
	switch s {
	case ActionClick, ActionBookmark, ActionSkip:
		return true
	}
	return false
}

// RawItem is what a source plugin emits: one announcement, release note or
// changelog entry, before summarization.
type RawItem struct {
	ExternalID  string            `json:"external_id"`        // Stable unique id within the source
	Title       string            `json:"title"`              // Item title (required)
	URL         string            `json:"url"`                // Link to the original item
	Content     string            `json:"content"`            // Body text or HTML, may be empty
	PublishedAt time.Time         `json:"published_at"`       // Publication time, zero when unknown
	Categories  []string          `json:"categories"`         // Source-native category terms, may be empty
	Vendor      string            `json:"vendor"`             // Originating vendor (e.g. "AWS", "GitHub")
	Metadata    map[string]string `json:"metadata,omitempty"` // Source-specific extras (feed url, repository, tag)
}

// Article is a RawItem after summarization, tagging and ingestion. It is the
// unit stored in the vector store and served by the feed. The raw item's
// fields survive untouched: Content, Categories and Metadata come back from
// the store exactly as the plugin emitted them.
type Article struct {
	ExternalID      string            `json:"external_id"`        // Stable id, dedup key across fetches
	Title           string            `json:"title"`              // Item title
	URL             string            `json:"url"`                // Link to the original item
	Content         string            `json:"content"`            // Original body text, preserved verbatim
	Summary         string            `json:"summary"`            // LLM summary, or the fallback truncation
	Tags            []string          `json:"tags"`               // Union of source categories and LLM tags, lowercased
	Categories      []string          `json:"categories"`         // Source-native category terms, unmodified
	Vendor          string            `json:"vendor"`             // Originating vendor
	PublishedAt     time.Time         `json:"published_at"`       // Publication time, zero when unknown
	CollectedAt     time.Time         `json:"collected_at"`       // When the collector ingested the item
	IsPrimarySource bool              `json:"is_primary_source"`  // True when the item is a first-party announcement
	TechDomain      string            `json:"tech_domain"`        // Freeform domain label from the summarizer, may be empty
	SourcePlugin    string            `json:"source_plugin"`      // Name of the plugin that fetched the item
	ClusterID       int               `json:"cluster_id"`         // Assigned topic cluster, ClusterNoise when unassigned
	Metadata        map[string]string `json:"metadata,omitempty"` // Source-specific extras carried from the raw item
}

// EmbeddingText is the text an Article is embedded from.
func (a Article) EmbeddingText() string {
	return strings.TrimSpace(a.Title + " " + a.Summary)
}

// ClusterArm is the Thompson-sampling state for one topic cluster: a
// Beta(Alpha, Beta) distribution plus bookkeeping.
type ClusterArm struct {
	ClusterID    int       `json:"cluster_id"`    // Topic cluster this arm belongs to
	Alpha        float64   `json:"alpha"`         // Success count + 1, never below 1
	Beta         float64   `json:"beta"`          // Failure count + 1, never below 1
	ArticleCount int       `json:"article_count"` // Cluster size at the last recluster
	Label        string    `json:"label"`         // Optional human-readable topic label
	UpdatedAt    time.Time `json:"updated_at"`    // Last reward or recluster touch
}

// ActionLogEntry records one user action against an article. Entries are
// appended before the arm update so reward history is auditable.
type ActionLogEntry struct {
	ID        int64     `json:"id"`         // Autoincrement row id
	ArticleID string    `json:"article_id"` // ExternalID of the article acted on
	Action    string    `json:"action"`     // click, bookmark or skip
	ClusterID int       `json:"cluster_id"` // Article's cluster at action time
	CreatedAt time.Time `json:"created_at"` // When the action was recorded
}

// FeedItem is one entry of a generated feed page.
type FeedItem struct {
	Article
	Serendipity bool `json:"serendipity"` // True when the item filled a serendipity slot
}

// ClusterInfo is the topology API view of one cluster: size, density and the
// bandit state attached to it.
type ClusterInfo struct {
	ClusterID    int      `json:"cluster_id"`
	ArticleCount int      `json:"article_count"`
	Density      float64  `json:"density"` // Share of the non-noise population
	Label        string   `json:"label"`
	Alpha        float64  `json:"alpha"`
	Beta         float64  `json:"beta"`
	SampleTitles []string `json:"sample_titles"` // Up to 3 member titles, truncated to 80 runes
}

// PluginInfo describes a source plugin for the sources API and CLI.
type PluginInfo struct {
	Name        string `json:"name"`        // Registry key, kebab-case
	Vendor      string `json:"vendor"`      // Vendor the plugin covers
	Kind        string `json:"kind"`        // "rss", "scrape" or "api"
	Description string `json:"description"` // One-line description
}

// SourceStatus is the persisted fetch state of one source plugin.
type SourceStatus struct {
	PluginName    string    `json:"plugin_name"`
	LastFetchedAt time.Time `json:"last_fetched_at"` // Zero when the plugin never fetched successfully
	FetchStatus   string    `json:"fetch_status"`    // "healthy", "error" or "" when never fetched
	ErrorMessage  string    `json:"error_message"`   // Last fetch error, empty when healthy
	UpdatedAt     time.Time `json:"updated_at"`
}

// CollectionResult is the per-plugin outcome of one collection run.
type CollectionResult struct {
	SourceName string   `json:"source_name"`
	Fetched    int      `json:"fetched"`   // Items the plugin returned
	New        int      `json:"new"`       // Items not already in the store
	Processed  int      `json:"processed"` // Items summarized (LLM or fallback)
	Errors     []string `json:"errors"`    // Fetch/processing errors, empty when clean
	DurationMS int64    `json:"duration_ms"`
}

// CollectionSummary aggregates a whole collection run.
type CollectionSummary struct {
	TotalFetched   int                `json:"total_fetched"`
	TotalNew       int                `json:"total_new"`
	TotalProcessed int                `json:"total_processed"`
	Sources        []CollectionResult `json:"sources"`
	DurationMS     int64              `json:"duration_ms"`
}

// TrendingTechnology is one co-occurrence mining result: a technology that
// keeps showing up alongside the user's declared stack.
type TrendingTechnology struct {
	Name             string   `json:"name"`
	Count            int      `json:"count"`              // Articles it co-occurred in
	RelatedTo        []string `json:"related_to"`         // Stack tags it co-occurred with, sorted
	SampleArticleIDs []string `json:"sample_article_ids"` // Up to 3 article external ids
}

// TruncateRunes shortens s to at most n runes.
func TruncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
