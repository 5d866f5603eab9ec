package plugins

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/japanese-wolf/brain-stream/internal/core"
	"github.com/japanese-wolf/brain-stream/internal/feeds"
)

// maxScrapeItems caps how many entries one scrape returns.
const maxScrapeItems = 50

// maxContentBlocks caps how many text blocks follow one heading into the
// entry content.
const maxContentBlocks = 10

// Date shapes seen on vendor changelog pages: "January 2, 2006" prose dates
// and ISO "2006-01-02".
var (
	proseDateRe = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}\b`)
	isoDateRe   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

// ScrapePlugin extracts changelog entries from an HTML page that has no
// feed: headings become titles, a date pattern near each heading becomes
// the publication time, and the text blocks up to the next heading become
// the content.
type ScrapePlugin struct {
	name        string
	vendor      string
	description string
	pageURL     string
	idPrefix    string
	categories  []string
	client      *http.Client
}

// NewScrapePlugin creates a changelog scraper for one page.
func NewScrapePlugin(name, vendor, description, pageURL, idPrefix string, categories []string, timeout time.Duration) *ScrapePlugin {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ScrapePlugin{
		name:        name,
		vendor:      vendor,
		description: description,
		pageURL:     pageURL,
		idPrefix:    idPrefix,
		categories:  categories,
		client:      &http.Client{Timeout: timeout},
	}
}

// NewAnthropicChangelog scrapes the Anthropic API changelog.
func NewAnthropicChangelog(timeout time.Duration) *ScrapePlugin {
	return NewScrapePlugin(
		"anthropic-changelog",
		"Anthropic",
		"Anthropic API changelog",
		"https://docs.anthropic.com/en/release-notes/api",
		"anthropic",
		[]string{"api", "changelog", "claude"},
		timeout,
	)
}

// NewOpenAIChangelog scrapes the OpenAI API changelog.
func NewOpenAIChangelog(timeout time.Duration) *ScrapePlugin {
	return NewScrapePlugin(
		"openai-changelog",
		"OpenAI",
		"OpenAI API changelog",
		"https://platform.openai.com/docs/changelog",
		"openai",
		[]string{"api", "changelog", "openai"},
		timeout,
	)
}

// Name is the registry key.
func (p *ScrapePlugin) Name() string { return p.name }

// Info describes the plugin.
func (p *ScrapePlugin) Info() core.PluginInfo {
	return core.PluginInfo{
		Name:        p.name,
		Vendor:      p.vendor,
		Kind:        "scrape",
		Description: p.description,
	}
}

// Fetch downloads the page and walks its headings into items.
func (p *ScrapePlugin) Fetch(ctx context.Context, since time.Time) ([]core.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.pageURL, nil)
	if err != nil {
		return nil, &FetchError{Source: p.name, Err: err}
	}
	req.Header.Set("User-Agent", "brain-stream/0.1")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: p.name, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Source: p.name, Err: fmt.Errorf("page returned status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &FetchError{Source: p.name, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}

	return filterSince(p.extract(doc), since), nil
}

// extract walks heading elements and assembles one item per dated heading.
func (p *ScrapePlugin) extract(doc *goquery.Document) []core.RawItem {
	var items []core.RawItem

	doc.Find("h1, h2, h3, h4").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		if len(items) >= maxScrapeItems {
			return false
		}

		title := strings.TrimSpace(heading.Text())
		if title == "" {
			return true
		}

		// The date lives in the heading itself or in the block right
		// after it.
		dateText, published := findDate(title)
		if dateText == "" {
			if next := heading.Next(); next.Length() > 0 && !next.Is("h1, h2, h3, h4") {
				dateText, published = findDate(strings.TrimSpace(next.Text()))
			}
		}
		if dateText == "" {
			return true
		}

		content := collectContent(heading)

		items = append(items, core.RawItem{
			ExternalID:  p.idPrefix + "-" + shortHash(title+"|"+dateText),
			Title:       title,
			URL:         p.pageURL,
			Content:     content,
			PublishedAt: published,
			Categories:  append([]string(nil), p.categories...),
			Vendor:      p.vendor,
			Metadata: map[string]string{
				"source": p.name,
				"url":    p.pageURL,
			},
		})
		return true
	})

	return items
}

// collectContent gathers the p/li text blocks following a heading, stopping
// at the next heading. Short fragments (under 20 chars) are skipped.
func collectContent(heading *goquery.Selection) string {
	var blocks []string

	appendBlock := func(block *goquery.Selection) {
		if len(blocks) >= maxContentBlocks {
			return
		}
		text := strings.Join(strings.Fields(block.Text()), " ")
		if len(text) < 20 {
			return
		}
		blocks = append(blocks, text)
	}

	heading.NextUntil("h1, h2, h3, h4").EachWithBreak(func(_ int, sibling *goquery.Selection) bool {
		if len(blocks) >= maxContentBlocks {
			return false
		}
		if sibling.Is("p, li") {
			appendBlock(sibling)
			return true
		}
		sibling.Find("p, li").Each(func(_ int, block *goquery.Selection) {
			appendBlock(block)
		})
		return true
	})

	return strings.Join(blocks, "\n")
}

// findDate looks for a recognizable date in text and returns the matched
// text plus its parsed value.
func findDate(text string) (string, time.Time) {
	if m := proseDateRe.FindString(text); m != "" {
		if t, err := time.Parse("January 2, 2006", m); err == nil {
			return m, t.UTC()
		}
	}
	if m := isoDateRe.FindString(text); m != "" {
		return m, feeds.ParseDate(m)
	}
	return "", time.Time{}
}

// shortHash derives a stable 12-hex-char id fragment from text.
func shortHash(text string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(text))
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

// HealthCheck probes the changelog page with a HEAD request.
func (p *ScrapePlugin) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.pageURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("page unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("page returned status %d", resp.StatusCode)
	}
	return nil
}
