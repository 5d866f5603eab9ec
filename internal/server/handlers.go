package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/japanese-wolf/brain-stream/internal/collector"
	"github.com/japanese-wolf/brain-stream/internal/core"
	"github.com/japanese-wolf/brain-stream/internal/feed"
	"github.com/japanese-wolf/brain-stream/internal/logger"
)

// maxFeedLimit caps the feed page size.
const maxFeedLimit = 100

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// handleHealth reports liveness and scheduler status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sched := map[string]any{"running": false, "next_run": nil}
	if s.deps.Scheduler != nil && s.deps.Scheduler.Running() {
		sched["running"] = true
		if next := s.deps.Scheduler.NextRun(); !next.IsZero() {
			sched["next_run"] = next.UTC().Format(time.RFC3339)
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   core.Version,
		"scheduler": sched,
	})
}

// handleFeed serves one Thompson-sampled feed page.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := feed.Query{Limit: s.feedCfg.DefaultLimit}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxFeedLimit {
			respondError(w, http.StatusBadRequest, "limit must be an integer between 1 and 100")
			return
		}
		q.Limit = limit
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		q.Offset = offset
	}

	q.Vendor = strings.TrimSpace(r.URL.Query().Get("vendor"))

	if raw := r.URL.Query().Get("primary_only"); raw != "" {
		primary, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "primary_only must be a boolean")
			return
		}
		q.PrimaryOnly = primary
	}

	items, err := s.deps.Selector.Generate(r.Context(), q)
	if err != nil {
		logger.Error("feed generation failed", err)
		respondError(w, http.StatusInternalServerError, "failed to generate feed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// handleGetArticle serves a single article by external id.
func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	article, err := s.deps.Topology.Get(r.Context(), id)
	if err != nil {
		logger.Error("article lookup failed", err, "article_id", id)
		respondError(w, http.StatusInternalServerError, "failed to load article")
		return
	}
	if article == nil {
		respondError(w, http.StatusNotFound, "article not found")
		return
	}

	respondJSON(w, http.StatusOK, article)
}

// handleAction records a user action against an article and updates the
// bandit.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "request body must be JSON with an action field")
		return
	}
	if !core.ValidAction(body.Action) {
		respondError(w, http.StatusBadRequest, "action must be one of click, bookmark, skip")
		return
	}

	article, err := s.deps.Topology.Get(r.Context(), id)
	if err != nil {
		logger.Error("article lookup failed", err, "article_id", id)
		respondError(w, http.StatusInternalServerError, "failed to load article")
		return
	}
	if article == nil {
		respondError(w, http.StatusNotFound, "article not found")
		return
	}

	if err := s.deps.Selector.RecordAction(r.Context(), id, body.Action); err != nil {
		if errors.Is(err, feed.ErrUnknownAction) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("failed to record action", err, "article_id", id)
		respondError(w, http.StatusInternalServerError, "failed to record action")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleTopology serves the cluster overview.
func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	total, err := s.deps.Topology.TotalCount(r.Context())
	if err != nil {
		logger.Error("topology count failed", err)
		respondError(w, http.StatusInternalServerError, "failed to inspect topology")
		return
	}

	clusters, err := s.deps.Topology.Info(r.Context())
	if err != nil {
		logger.Error("topology info failed", err)
		respondError(w, http.StatusInternalServerError, "failed to inspect topology")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"total_articles": total,
		"cluster_count":  len(clusters),
		"clusters":       clusters,
	})
}

// sourceView is one row of the sources listing: static plugin info plus
// persisted fetch state.
type sourceView struct {
	core.PluginInfo
	LastFetchedAt *time.Time `json:"last_fetched_at"`
	FetchStatus   string     `json:"fetch_status"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// handleSources lists the registered plugins with their fetch state.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.deps.State.SourceStatuses()
	if err != nil {
		logger.Error("failed to load source statuses", err)
		respondError(w, http.StatusInternalServerError, "failed to load sources")
		return
	}
	byName := make(map[string]core.SourceStatus, len(statuses))
	for _, st := range statuses {
		byName[st.PluginName] = st
	}

	views := make([]sourceView, 0, len(s.deps.Registry.All()))
	for _, plugin := range s.deps.Registry.All() {
		view := sourceView{PluginInfo: plugin.Info()}
		if st, ok := byName[plugin.Name()]; ok {
			view.FetchStatus = st.FetchStatus
			view.ErrorMessage = st.ErrorMessage
			if !st.LastFetchedAt.IsZero() {
				t := st.LastFetchedAt.UTC()
				view.LastFetchedAt = &t
			}
		}
		views = append(views, view)
	}

	respondJSON(w, http.StatusOK, map[string]any{"sources": views})
}

// handleCollect triggers a collection run, optionally for a single source.
// The run executes inline; the response carries its summary.
func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source  string `json:"source"`
		SkipLLM bool   `json:"skip_llm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}

	opts := collector.Options{SkipLLM: body.SkipLLM}

	var summary *core.CollectionSummary
	var err error
	if body.Source != "" {
		summary, err = s.deps.Collector.CollectOne(r.Context(), body.Source, opts)
	} else {
		summary, err = s.deps.Collector.CollectAll(r.Context(), opts)
	}

	switch {
	case errors.Is(err, collector.ErrUnknownSource):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, collector.ErrRunInProgress):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		logger.Error("collection run failed", err)
		respondError(w, http.StatusInternalServerError, "collection run failed")
	default:
		respondJSON(w, http.StatusOK, summary)
	}
}

// handleTrending serves the co-occurrence analysis for the declared stack,
// overridable with ?stack=a,b,c.
func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	stack := s.deps.TechStack
	if raw := strings.TrimSpace(r.URL.Query().Get("stack")); raw != "" {
		stack = nil
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				stack = append(stack, p)
			}
		}
	}

	articles, err := s.deps.Topology.AllArticles(r.Context())
	if err != nil {
		logger.Error("failed to load articles for trending", err)
		respondError(w, http.StatusInternalServerError, "failed to compute trending")
		return
	}

	trending := s.deps.Trending.Trending(articles, stack)
	respondJSON(w, http.StatusOK, map[string]any{
		"stack":    stack,
		"trending": trending,
	})
}
