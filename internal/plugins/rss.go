package plugins

import (
	"context"
	"time"

	"github.com/japanese-wolf/brain-stream/internal/core"
	"github.com/japanese-wolf/brain-stream/internal/feeds"
	"github.com/japanese-wolf/brain-stream/internal/logger"
)

// RSSPlugin maps one or more RSS/Atom feeds of a single vendor onto the
// plugin contract. One feed failing fails the whole fetch; a feed is either
// fully read or reported broken.
type RSSPlugin struct {
	name        string
	vendor      string
	description string
	feedURLs    []string
	parser      *feeds.Parser
}

// NewRSSPlugin creates a plugin over the given feed URLs.
func NewRSSPlugin(name, vendor, description string, feedURLs []string, parser *feeds.Parser) *RSSPlugin {
	return &RSSPlugin{
		name:        name,
		vendor:      vendor,
		description: description,
		feedURLs:    feedURLs,
		parser:      parser,
	}
}

// NewAWSWhatsNew covers the AWS "What's New" announcement feed.
func NewAWSWhatsNew(parser *feeds.Parser) *RSSPlugin {
	return NewRSSPlugin(
		"aws-whatsnew",
		"AWS",
		"AWS What's New announcements",
		[]string{"https://aws.amazon.com/about-aws/whats-new/recent/feed/"},
		parser,
	)
}

// NewGCPReleaseNotes covers the Google Cloud release notes feed.
func NewGCPReleaseNotes(parser *feeds.Parser) *RSSPlugin {
	return NewRSSPlugin(
		"gcp-release-notes",
		"GCP",
		"Google Cloud release notes",
		[]string{"https://cloud.google.com/feeds/gcp-release-notes.xml"},
		parser,
	)
}

// NewGitHubPlatform covers the GitHub blog and changelog feeds.
func NewGitHubPlatform(parser *feeds.Parser) *RSSPlugin {
	return NewRSSPlugin(
		"github-platform",
		"GitHub",
		"GitHub blog and changelog posts",
		[]string{
			"https://github.blog/feed/",
			"https://github.blog/changelog/feed/",
		},
		parser,
	)
}

// Name is the registry key.
func (p *RSSPlugin) Name() string { return p.name }

// Info describes the plugin.
func (p *RSSPlugin) Info() core.PluginInfo {
	return core.PluginInfo{
		Name:        p.name,
		Vendor:      p.vendor,
		Kind:        "rss",
		Description: p.description,
	}
}

// Fetch reads every configured feed and concatenates the results. Items
// published before since are filtered client-side.
func (p *RSSPlugin) Fetch(ctx context.Context, since time.Time) ([]core.RawItem, error) {
	items := []core.RawItem{}
	for _, feedURL := range p.feedURLs {
		entries, err := p.parser.Fetch(ctx, feedURL)
		if err != nil {
			return nil, &FetchError{Source: p.name, Err: err}
		}
		for _, entry := range entries {
			if entry.Title == "" {
				logger.Warn("skipping feed entry without title", "plugin", p.name, "feed", feedURL)
				continue
			}
			items = append(items, core.RawItem{
				ExternalID:  entry.ID,
				Title:       entry.Title,
				URL:         entry.Link,
				Content:     entry.Summary,
				PublishedAt: entry.Published,
				Categories:  entry.Categories,
				Vendor:      p.vendor,
				Metadata: map[string]string{
					"source":   p.name,
					"feed_url": feedURL,
				},
			})
		}
	}
	return filterSince(items, since), nil
}

// HealthCheck probes the first feed URL.
func (p *RSSPlugin) HealthCheck(ctx context.Context) error {
	return p.parser.HealthCheck(ctx, p.feedURLs[0])
}
