// Package feed assembles ranked feed pages with a Thompson-sampling bandit
// over topic clusters and records the user actions that train it.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/japanese-wolf/brain-stream/internal/core"
	"github.com/japanese-wolf/brain-stream/internal/logger"
	"github.com/japanese-wolf/brain-stream/internal/state"
	"github.com/japanese-wolf/brain-stream/internal/topology"
)

// ErrUnknownAction rejects actions outside click/bookmark/skip.
var ErrUnknownAction = errors.New("unknown action")

// boundaryPerCluster is how many boundary candidates each low-ranked
// cluster contributes to the serendipity pool.
const boundaryPerCluster = 3

// Query narrows one feed page.
type Query struct {
	Limit       int    // Page size, capped by the caller
	Offset      int    // Per-cluster paging offset
	Vendor      string // Case-insensitive vendor filter, empty = all
	PrimaryOnly bool   // Only first-party announcements
}

// Selector generates feed pages. Beta sampling is deliberately stochastic;
// the seed is injected so tests are deterministic.
type Selector struct {
	topo  *topology.Engine
	arms  *state.Store
	slots int

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewSelector creates a selector with the given serendipity slot count and
// RNG seed.
func NewSelector(topo *topology.Engine, arms *state.Store, serendipitySlots int, seed uint64) *Selector {
	if serendipitySlots < 0 {
		serendipitySlots = 0
	}
	return &Selector{
		topo:  topo,
		arms:  arms,
		slots: serendipitySlots,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Generate assembles one feed page: Thompson-sample the arms, fill the main
// slots from the top-sampled clusters, then fill the reserved serendipity
// slots with boundary articles from the low-sampled clusters.
func (s *Selector) Generate(ctx context.Context, q Query) ([]core.FeedItem, error) {
	if q.Limit <= 0 {
		return []core.FeedItem{}, nil
	}

	arms, err := s.arms.Arms()
	if err != nil {
		return nil, fmt.Errorf("failed to load arms: %w", err)
	}
	if len(arms) == 0 {
		return s.latestFallback(ctx, q)
	}

	ranked := s.sampleArms(arms)

	slots := s.slots
	if slots > q.Limit {
		slots = q.Limit
	}
	mainSlots := q.Limit - slots

	page := make([]core.FeedItem, 0, q.Limit)
	seen := make(map[string]bool)

	perCluster := 1
	if len(ranked) > 0 && mainSlots/len(ranked) > 1 {
		perCluster = mainSlots / len(ranked)
	}

	for _, clusterID := range ranked {
		if len(page) >= mainSlots {
			break
		}
		// Pull enough members to survive the filters and the offset.
		members, err := s.topo.ClusterArticles(ctx, clusterID, q.Offset+perCluster*2, true)
		if err != nil {
			return nil, fmt.Errorf("failed to load cluster %d: %w", clusterID, err)
		}

		taken, skipped := 0, 0
		for _, article := range members {
			if len(page) >= mainSlots || taken >= perCluster {
				break
			}
			if !matches(article, q) || seen[article.ExternalID] {
				continue
			}
			if skipped < q.Offset {
				skipped++
				continue
			}
			seen[article.ExternalID] = true
			page = append(page, core.FeedItem{Article: article})
			taken++
		}
	}

	if slots > 0 && len(ranked) >= 2 {
		page = s.fillSerendipity(ctx, page, seen, ranked, q, slots)
	}

	if len(page) > q.Limit {
		page = page[:q.Limit]
	}
	return page, nil
}

// sampleArms draws one Beta sample per arm and returns cluster ids sorted
// by sampled score, best first.
func (s *Selector) sampleArms(arms []core.ClusterArm) []int {
	type sampled struct {
		clusterID int
		score     float64
	}

	s.mu.Lock()
	scores := make([]sampled, len(arms))
	for i, arm := range arms {
		beta := distuv.Beta{Alpha: arm.Alpha, Beta: arm.Beta, Src: s.rng}
		scores[i] = sampled{clusterID: arm.ClusterID, score: beta.Rand()}
	}
	s.mu.Unlock()

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].clusterID < scores[j].clusterID
	})

	ranked := make([]int, len(scores))
	for i, sc := range scores {
		ranked[i] = sc.clusterID
	}
	return ranked
}

// fillSerendipity appends boundary articles from the bottom max(3, n/2)
// sampled clusters. The reserved slot count is a hard cap: even when the
// main pass underfilled, boundary articles never take more than their
// reserved share of the page.
func (s *Selector) fillSerendipity(ctx context.Context, page []core.FeedItem, seen map[string]bool, ranked []int, q Query, slots int) []core.FeedItem {
	bottom := len(ranked) / 2
	if bottom < 3 {
		bottom = 3
	}
	if bottom > len(ranked) {
		bottom = len(ranked)
	}

	added := 0
	for _, clusterID := range ranked[len(ranked)-bottom:] {
		if added >= slots || len(page) >= q.Limit {
			break
		}
		boundary, err := s.topo.BoundaryArticles(ctx, clusterID, boundaryPerCluster)
		if err != nil {
			logger.Warn("skipping boundary articles", "cluster", clusterID, "error", err.Error())
			continue
		}
		for _, candidate := range boundary {
			if added >= slots || len(page) >= q.Limit {
				break
			}
			if !matches(candidate.Article, q) || seen[candidate.ExternalID] {
				continue
			}
			seen[candidate.ExternalID] = true
			page = append(page, core.FeedItem{Article: candidate.Article, Serendipity: true})
			added++
		}
	}
	return page
}

// latestFallback serves the newest articles globally when no arms exist yet
// (cold start, before the first recluster).
func (s *Selector) latestFallback(ctx context.Context, q Query) ([]core.FeedItem, error) {
	articles, err := s.topo.AllArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load articles: %w", err)
	}

	sort.Slice(articles, func(i, j int) bool {
		a, b := articles[i], articles[j]
		// Zero publication times sink to the bottom.
		if a.PublishedAt.IsZero() != b.PublishedAt.IsZero() {
			return !a.PublishedAt.IsZero()
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.ExternalID < b.ExternalID
	})

	page := make([]core.FeedItem, 0, q.Limit)
	skipped := 0
	for _, article := range articles {
		if len(page) >= q.Limit {
			break
		}
		if !matches(article, q) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		page = append(page, core.FeedItem{Article: article})
	}
	return page, nil
}

// matches applies the page filters to one article.
func matches(article core.Article, q Query) bool {
	if q.Vendor != "" && !strings.EqualFold(article.Vendor, q.Vendor) {
		return false
	}
	if q.PrimaryOnly && !article.IsPrimarySource {
		return false
	}
	return true
}

// RecordAction logs a user action and rewards the article's cluster arm:
// click and bookmark add to alpha, skip adds to beta. The log entry is
// written before the arm update so a crash leaves the arm under-counted,
// never over-counted.
func (s *Selector) RecordAction(ctx context.Context, articleID, action string) error {
	if !core.ValidAction(action) {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	article, err := s.topo.Get(ctx, articleID)
	if err != nil {
		return err
	}
	if article == nil {
		logger.Warn("action on unknown article ignored", "article_id", articleID, "action", action)
		return nil
	}
	if article.ClusterID == core.ClusterNoise {
		logger.Debug("action on noise article ignored", "article_id", articleID)
		return nil
	}

	if _, err := s.arms.LogAction(articleID, action, article.ClusterID); err != nil {
		return fmt.Errorf("failed to log action: %w", err)
	}
	if err := s.arms.RewardArm(article.ClusterID, action != core.ActionSkip); err != nil {
		return fmt.Errorf("failed to reward arm: %w", err)
	}
	return nil
}
