package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/japanese-wolf/brain-stream/internal/clustering"
	"github.com/japanese-wolf/brain-stream/internal/collector"
	"github.com/japanese-wolf/brain-stream/internal/config"
	"github.com/japanese-wolf/brain-stream/internal/cooccur"
	"github.com/japanese-wolf/brain-stream/internal/embedding"
	"github.com/japanese-wolf/brain-stream/internal/feed"
	"github.com/japanese-wolf/brain-stream/internal/feeds"
	"github.com/japanese-wolf/brain-stream/internal/llm"
	"github.com/japanese-wolf/brain-stream/internal/logger"
	"github.com/japanese-wolf/brain-stream/internal/plugins"
	"github.com/japanese-wolf/brain-stream/internal/processor"
	"github.com/japanese-wolf/brain-stream/internal/state"
	"github.com/japanese-wolf/brain-stream/internal/topology"
	"github.com/japanese-wolf/brain-stream/internal/vectorstore"
)

// app wires the subsystems together for the CLI commands. Everything is
// constructed once here and passed explicitly; there are no hidden
// singletons beyond the config and logger.
type app struct {
	cfg        *config.Config
	vectors    *vectorstore.SQLiteStore
	stateStore *state.Store
	registry   *plugins.Registry
	topo       *topology.Engine
	collector  *collector.Collector
	selector   *feed.Selector
	trending   *cooccur.Analyzer

	gemini *embedding.Gemini // non-nil when the Gemini embedder is active
}

// buildApp opens the stores and assembles the pipeline from configuration.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	vectors, err := vectorstore.NewSQLiteStore(cfg.App.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	stateStore, err := state.NewStore(cfg.App.DataDir)
	if err != nil {
		vectors.Close()
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	a := &app{
		cfg:        cfg,
		vectors:    vectors,
		stateStore: stateStore,
	}

	var embedder embedding.Embedder
	if key := cfg.Embedding.Gemini.APIKey; key != "" {
		gemini, err := embedding.NewGemini(ctx, key, cfg.Embedding.Gemini.EmbeddingModel)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.gemini = gemini
		embedder = gemini
	} else {
		logger.Info("no Gemini API key, using the local embedder")
		embedder = embedding.NewLocal(cfg.Embedding.LocalDimensions)
	}

	clusterer := clustering.NewClusterer(clustering.Config{
		MinClusterSize: cfg.Clustering.MinClusterSize,
		MinSamples:     cfg.Clustering.MinSamples,
	})

	a.topo = topology.New(vectors, embedder, clusterer, stateStore)

	var analyzer llm.Analyzer
	if cfg.LLM.Enabled {
		cli, err := llm.NewAnalyzer(cfg.LLM.Provider, cfg.LLMTimeout())
		if err != nil {
			a.Close()
			return nil, err
		}
		analyzer = cli
	}
	proc := processor.New(analyzer)

	a.registry = buildRegistry(cfg)
	a.collector = collector.New(a.registry, a.topo, proc, stateStore)
	a.selector = feed.NewSelector(a.topo, stateStore, cfg.Feed.SerendipitySlots, uint64(time.Now().UnixNano()))
	a.trending = cooccur.NewAnalyzer(cfg.Profile.MaxTrending)

	return a, nil
}

// buildRegistry assembles the source plugin fleet.
func buildRegistry(cfg *config.Config) *plugins.Registry {
	timeout := cfg.SourceTimeout()
	parser := feeds.NewParser(timeout)

	return plugins.NewRegistry(
		plugins.NewAWSWhatsNew(parser),
		plugins.NewGCPReleaseNotes(parser),
		plugins.NewGitHubPlatform(parser),
		plugins.NewAnthropicChangelog(timeout),
		plugins.NewOpenAIChangelog(timeout),
		plugins.NewGitHubReleases(cfg.Sources.GitHub.Repos, cfg.Sources.GitHub.Token, timeout),
	)
}

// Close releases the stores and the embedding client.
func (a *app) Close() {
	if a.gemini != nil {
		if err := a.gemini.Close(); err != nil {
			logger.Warn("failed to close Gemini client", "error", err.Error())
		}
	}
	if a.stateStore != nil {
		if err := a.stateStore.Close(); err != nil {
			logger.Warn("failed to close state store", "error", err.Error())
		}
	}
	if a.vectors != nil {
		if err := a.vectors.Close(); err != nil {
			logger.Warn("failed to close vector store", "error", err.Error())
		}
	}
}
