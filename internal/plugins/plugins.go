// Package plugins defines the source plugin contract and the concrete
// plugins that feed the collector: vendor RSS feeds, scraped changelog
// pages and the GitHub releases API.
package plugins

import (
	"context"
	"fmt"
	"time"

	"github.com/japanese-wolf/brain-stream/internal/core"
)

// SourcePlugin adapts one external update source. Plugins are stateless:
// they never deduplicate, persist or call the summarizer. External ids must
// be stable across fetches for the same logical item.
type SourcePlugin interface {
	// Name is the stable registry key, kebab-case.
	Name() string

	// Fetch returns the source's current items. The since hint is
	// advisory: plugins that can filter do so, the rest return everything
	// and leave dedup to the collector. A zero since means no previous
	// fetch. Failures surface as a *FetchError; partial silent failure is
	// not allowed.
	Fetch(ctx context.Context, since time.Time) ([]core.RawItem, error)

	// HealthCheck is a cheap reachability probe. It never mutates state.
	HealthCheck(ctx context.Context) error

	// Info describes the plugin for the sources API and CLI.
	Info() core.PluginInfo
}

// FetchError wraps a plugin fetch failure with the plugin's name.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Registry holds the fleet of source plugins in registration order. It is
// constructed once at startup and passed explicitly to whatever needs it.
type Registry struct {
	order  []SourcePlugin
	byName map[string]SourcePlugin
}

// NewRegistry creates a registry from the given plugins. A duplicate name
// replaces the earlier registration.
func NewRegistry(ps ...SourcePlugin) *Registry {
	r := &Registry{byName: make(map[string]SourcePlugin, len(ps))}
	for _, p := range ps {
		if _, seen := r.byName[p.Name()]; !seen {
			r.order = append(r.order, p)
		}
		r.byName[p.Name()] = p
	}
	return r
}

// Get returns the plugin registered under name, or nil when unknown.
func (r *Registry) Get(name string) SourcePlugin {
	return r.byName[name]
}

// All returns the plugins in registration order.
func (r *Registry) All() []SourcePlugin {
	return r.order
}

// Names returns the registered plugin names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	for i, p := range r.order {
		names[i] = p.Name()
	}
	return names
}

// filterSince drops items published before since. Items without a usable
// publication time are kept; the collector's dedup catches repeats.
func filterSince(items []core.RawItem, since time.Time) []core.RawItem {
	if since.IsZero() {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if item.PublishedAt.IsZero() || item.PublishedAt.After(since) {
			out = append(out, item)
		}
	}
	return out
}
