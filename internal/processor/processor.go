// Package processor turns raw plugin items into stored articles: it runs
// the summarizer when one is available and degrades to a content
// truncation when it is not.
package processor

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/japanese-wolf/brain-stream/internal/core"
	"github.com/japanese-wolf/brain-stream/internal/llm"
	"github.com/japanese-wolf/brain-stream/internal/logger"
)

// fallbackMaxRunes bounds the fallback summary length.
const fallbackMaxRunes = 300

// fallbackMinSentence is the earliest rune position where the fallback may
// end at a sentence boundary.
const fallbackMinSentence = 100

var tagRe = regexp.MustCompile(`<[^>]*>`)

// Processor converts RawItems into Articles. The analyzer may be nil, in
// which case every item takes the fallback path.
type Processor struct {
	analyzer llm.Analyzer
}

// New creates a processor over the given summarizer.
func New(analyzer llm.Analyzer) *Processor {
	return &Processor{analyzer: analyzer}
}

// Process turns one raw item into an article. Summarizer failures never
// propagate: any error logs and falls back to degraded content. Items are
// processed one at a time; the subprocess layer must not run concurrently.
func (p *Processor) Process(ctx context.Context, item core.RawItem, pluginName string, skipLLM bool) core.Article {
	article := core.Article{
		ExternalID:   item.ExternalID,
		Title:        item.Title,
		URL:          item.URL,
		Content:      item.Content,
		Categories:   append([]string(nil), item.Categories...),
		Vendor:       item.Vendor,
		PublishedAt:  item.PublishedAt,
		CollectedAt:  time.Now().UTC(),
		SourcePlugin: pluginName,
		ClusterID:    core.ClusterNoise,
		Metadata:     item.Metadata,
	}

	if !skipLLM && p.analyzer != nil && p.analyzer.Available() {
		analysis, err := p.analyzer.Analyze(ctx, llm.Request{
			Title:   item.Title,
			URL:     item.URL,
			Vendor:  item.Vendor,
			Content: item.Content,
		})
		if err == nil {
			article.Summary = strings.TrimSpace(analysis.Summary)
			if article.Summary == "" {
				article.Summary = FallbackSummary(item.Title, item.Content)
			}
			article.Tags = normalizeTags(item.Categories, analysis.Tags)
			article.IsPrimarySource = analysis.IsPrimarySource
			article.TechDomain = strings.ToLower(strings.TrimSpace(analysis.TechDomain))
			return article
		}

		var toolErr *llm.ToolError
		if errors.As(err, &toolErr) && errors.Is(err, llm.ErrToolMissing) {
			logger.Debug("summarizer not installed, using fallback", "article", item.ExternalID)
		} else {
			logger.Warn("summarizer failed, using fallback", "article", item.ExternalID, "error", err.Error())
		}
	}

	article.Summary = FallbackSummary(item.Title, item.Content)
	article.Tags = normalizeTags(item.Categories, nil)
	return article
}

// FallbackSummary builds the degraded summary: markup-stripped content
// truncated to 300 runes, preferring to end at a sentence boundary past
// rune 100. Empty content falls back to the title.
func FallbackSummary(title, content string) string {
	text := StripTags(content)
	if text == "" {
		return strings.TrimSpace(title)
	}

	runes := []rune(text)
	if len(runes) <= fallbackMaxRunes {
		return text
	}

	clipped := string(runes[:fallbackMaxRunes])
	if i := strings.LastIndex(clipped, "."); i >= fallbackMinSentence {
		return clipped[:i+1]
	}
	return clipped + "..."
}

// StripTags removes HTML markup and collapses whitespace.
func StripTags(s string) string {
	return strings.Join(strings.Fields(tagRe.ReplaceAllString(s, " ")), " ")
}

// normalizeTags merges source categories with summarizer tags: lowercased,
// trimmed, deduplicated and sorted.
func normalizeTags(categories, llmTags []string) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, t := range append(append([]string{}, categories...), llmTags...) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
