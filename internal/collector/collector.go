// Package collector orchestrates collection runs: fetch from every source
// plugin, deduplicate, summarize, ingest into the topology and trigger a
// recluster when anything new arrived.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/japanese-wolf/brain-stream/internal/core"
	"github.com/japanese-wolf/brain-stream/internal/logger"
	"github.com/japanese-wolf/brain-stream/internal/plugins"
	"github.com/japanese-wolf/brain-stream/internal/processor"
	"github.com/japanese-wolf/brain-stream/internal/state"
	"github.com/japanese-wolf/brain-stream/internal/topology"
)

var (
	// ErrUnknownSource rejects a collection request for an unregistered
	// plugin name.
	ErrUnknownSource = errors.New("unknown source")

	// ErrRunInProgress rejects a collection request while another run
	// holds the single-run slot.
	ErrRunInProgress = errors.New("collection run already in progress")

	// ErrStorage marks a fatal vector-store failure. Unlike plugin and
	// summarizer failures, a storage failure aborts the run.
	ErrStorage = errors.New("storage failure")
)

// Options tune one collection run.
type Options struct {
	SkipLLM bool // Take the fallback summarization path directly
}

// Collector runs the collection pipeline. At most one run executes at a
// time; concurrent requests are rejected, not queued.
type Collector struct {
	registry *plugins.Registry
	topo     *topology.Engine
	proc     *processor.Processor
	state    *state.Store

	running atomic.Bool
}

// New creates a collector over the given registry, topology and stores.
func New(registry *plugins.Registry, topo *topology.Engine, proc *processor.Processor, st *state.Store) *Collector {
	return &Collector{
		registry: registry,
		topo:     topo,
		proc:     proc,
		state:    st,
	}
}

// InFlight reports whether a collection run is currently executing.
func (c *Collector) InFlight() bool {
	return c.running.Load()
}

// CollectAll runs the pipeline for every registered plugin. Plugin failures
// are isolated into their per-source results; a storage failure aborts the
// run. When anything new was ingested, the topology is reclustered.
func (c *Collector) CollectAll(ctx context.Context, opts Options) (*core.CollectionSummary, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer c.running.Store(false)

	return c.run(ctx, c.registry.All(), opts)
}

// CollectOne runs the pipeline for a single named plugin.
func (c *Collector) CollectOne(ctx context.Context, name string, opts Options) (*core.CollectionSummary, error) {
	plugin := c.registry.Get(name)
	if plugin == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}

	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer c.running.Store(false)

	return c.run(ctx, []plugins.SourcePlugin{plugin}, opts)
}

func (c *Collector) run(ctx context.Context, fleet []plugins.SourcePlugin, opts Options) (*core.CollectionSummary, error) {
	start := time.Now()
	summary := &core.CollectionSummary{Sources: make([]core.CollectionResult, 0, len(fleet))}

	logger.Info("collection run started", "plugins", len(fleet), "skip_llm", opts.SkipLLM)

	for _, plugin := range fleet {
		result, err := c.collectPlugin(ctx, plugin, opts)
		summary.Sources = append(summary.Sources, result)
		summary.TotalFetched += result.Fetched
		summary.TotalNew += result.New
		summary.TotalProcessed += result.Processed
		if err != nil {
			summary.DurationMS = time.Since(start).Milliseconds()
			return summary, err
		}
	}

	if summary.TotalNew > 0 {
		if _, err := c.topo.Recluster(ctx); err != nil {
			// Clustering quality is best-effort; the articles are safe.
			logger.Warn("recluster after collection failed", "error", err.Error())
		}
	}

	summary.DurationMS = time.Since(start).Milliseconds()
	logger.Info("collection run finished",
		"fetched", summary.TotalFetched,
		"new", summary.TotalNew,
		"duration_ms", summary.DurationMS)
	return summary, nil
}

// collectPlugin runs the pipeline for one plugin. A fetch failure is
// recorded in the result and returns a nil error; only storage failures
// come back as errors.
func (c *Collector) collectPlugin(ctx context.Context, plugin plugins.SourcePlugin, opts Options) (core.CollectionResult, error) {
	start := time.Now()
	result := core.CollectionResult{SourceName: plugin.Name(), Errors: []string{}}

	since, err := c.state.LastFetched(plugin.Name())
	if err != nil {
		logger.Warn("failed to read last fetch time", "plugin", plugin.Name(), "error", err.Error())
	}

	items, err := plugin.Fetch(ctx, since)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.DurationMS = time.Since(start).Milliseconds()
		if serr := c.state.MarkSourceError(plugin.Name(), err.Error()); serr != nil {
			logger.Warn("failed to record source error", "plugin", plugin.Name(), "error", serr.Error())
		}
		logger.Warn("plugin fetch failed", "plugin", plugin.Name(), "error", err.Error())
		return result, nil
	}
	result.Fetched = len(items)

	fresh, err := c.dedup(ctx, items)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrStorage, err)
		result.Errors = append(result.Errors, err.Error())
		result.DurationMS = time.Since(start).Milliseconds()
		return result, err
	}

	// Summarization is strictly sequential; the subprocess is expensive
	// and may throttle on its own.
	batch := make([]core.Article, 0, len(fresh))
	for _, item := range fresh {
		batch = append(batch, c.proc.Process(ctx, item, plugin.Name(), opts.SkipLLM))
	}
	result.Processed = len(batch)

	stored, err := c.topo.Ingest(ctx, batch)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrStorage, err)
		result.Errors = append(result.Errors, err.Error())
		result.DurationMS = time.Since(start).Milliseconds()
		return result, err
	}
	result.New = stored

	if err := c.state.MarkSourceFetched(plugin.Name(), time.Now().UTC()); err != nil {
		logger.Warn("failed to record source fetch", "plugin", plugin.Name(), "error", err.Error())
	}

	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

// dedup drops items already stored and in-batch repeats, first occurrence
// winning.
func (c *Collector) dedup(ctx context.Context, items []core.RawItem) ([]core.RawItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ExternalID
	}

	existing, err := c.topo.Existing(ctx, ids)
	if err != nil {
		return nil, err
	}

	var fresh []core.RawItem
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if existing[item.ExternalID] || seen[item.ExternalID] {
			continue
		}
		seen[item.ExternalID] = true
		fresh = append(fresh, item)
	}
	return fresh, nil
}
