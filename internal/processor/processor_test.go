package processor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/japanese-wolf/brain-stream/internal/core"
	"github.com/japanese-wolf/brain-stream/internal/llm"
)

// fakeAnalyzer is a scripted summarizer.
type fakeAnalyzer struct {
	available bool
	analysis  *llm.Analysis
	err       error
	calls     int
}

func (f *fakeAnalyzer) Name() string    { return "fake" }
func (f *fakeAnalyzer) Available() bool { return f.available }

func (f *fakeAnalyzer) Analyze(ctx context.Context, req llm.Request) (*llm.Analysis, error) {
	f.calls++
	return f.analysis, f.err
}

func rawItem() core.RawItem {
	return core.RawItem{
		ExternalID:  "src-1",
		Title:       "Widget 2.0 released",
		URL:         "https://example.com/widget",
		Content:     "<p>Widget 2.0 ships today with a faster engine.</p>",
		PublishedAt: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		Categories:  []string{"Release", "widget"},
		Vendor:      "Acme",
		Metadata:    map[string]string{"source": "test-plugin", "feed_url": "https://example.com/feed"},
	}
}

func TestProcessWithAnalyzer(t *testing.T) {
	fake := &fakeAnalyzer{
		available: true,
		analysis: &llm.Analysis{
			Summary:         "Widget 2.0 brings a faster engine.",
			Tags:            []string{"Widget", "performance"},
			IsPrimarySource: true,
			TechDomain:      "Tooling",
		},
	}
	p := New(fake)

	article := p.Process(context.Background(), rawItem(), "test-plugin", false)

	if article.Summary != "Widget 2.0 brings a faster engine." {
		t.Errorf("Unexpected summary: %q", article.Summary)
	}
	if !article.IsPrimarySource {
		t.Error("Expected primary source flag from analysis")
	}
	if article.TechDomain != "tooling" {
		t.Errorf("Expected lowercased tech domain, got %q", article.TechDomain)
	}
	// Categories and analysis tags merge, lowercased, deduped, sorted.
	want := []string{"performance", "release", "widget"}
	if len(article.Tags) != len(want) {
		t.Fatalf("Unexpected tags: %v", article.Tags)
	}
	for i := range want {
		if article.Tags[i] != want[i] {
			t.Errorf("Tags[%d] = %q, want %q", i, article.Tags[i], want[i])
		}
	}
	if article.SourcePlugin != "test-plugin" {
		t.Errorf("Unexpected source plugin: %q", article.SourcePlugin)
	}
	if article.ClusterID != core.ClusterNoise {
		t.Errorf("Expected fresh article in noise cluster, got %d", article.ClusterID)
	}
	if article.CollectedAt.IsZero() {
		t.Error("Expected CollectedAt to be set")
	}
}

func TestProcessPreservesRawFields(t *testing.T) {
	// Summarization and tagging derive new fields; the raw item's own
	// fields must come through untouched.
	item := rawItem()
	p := New(nil)

	article := p.Process(context.Background(), item, "test-plugin", false)

	if article.Content != item.Content {
		t.Errorf("Content changed: %q", article.Content)
	}
	if len(article.Categories) != 2 || article.Categories[0] != "Release" || article.Categories[1] != "widget" {
		t.Errorf("Categories changed: %v", article.Categories)
	}
	if article.Metadata["source"] != "test-plugin" || article.Metadata["feed_url"] != "https://example.com/feed" {
		t.Errorf("Metadata changed: %v", article.Metadata)
	}
}

func TestProcessAnalyzerErrorFallsBack(t *testing.T) {
	fake := &fakeAnalyzer{available: true, err: errors.New("model overloaded")}
	p := New(fake)

	article := p.Process(context.Background(), rawItem(), "test-plugin", false)

	if fake.calls != 1 {
		t.Errorf("Expected one analyzer call, got %d", fake.calls)
	}
	if !strings.Contains(article.Summary, "Widget 2.0 ships today") {
		t.Errorf("Expected fallback summary from content, got %q", article.Summary)
	}
	if strings.Contains(article.Summary, "<p>") {
		t.Errorf("Expected markup stripped, got %q", article.Summary)
	}
}

func TestProcessSkipLLM(t *testing.T) {
	fake := &fakeAnalyzer{available: true, analysis: &llm.Analysis{Summary: "should not appear"}}
	p := New(fake)

	article := p.Process(context.Background(), rawItem(), "test-plugin", true)

	if fake.calls != 0 {
		t.Errorf("Expected analyzer to be skipped, got %d calls", fake.calls)
	}
	if strings.Contains(article.Summary, "should not appear") {
		t.Errorf("Analyzer output leaked into skip path: %q", article.Summary)
	}
}

func TestProcessNilAnalyzer(t *testing.T) {
	p := New(nil)

	article := p.Process(context.Background(), rawItem(), "test-plugin", false)
	if article.Summary == "" {
		t.Error("Expected fallback summary with nil analyzer")
	}
	if len(article.Tags) != 2 {
		t.Errorf("Expected category-only tags, got %v", article.Tags)
	}
}

func TestProcessUnavailableAnalyzer(t *testing.T) {
	fake := &fakeAnalyzer{available: false}
	p := New(fake)

	p.Process(context.Background(), rawItem(), "test-plugin", false)
	if fake.calls != 0 {
		t.Errorf("Expected unavailable analyzer to be skipped, got %d calls", fake.calls)
	}
}

func TestProcessEmptyAnalysisSummary(t *testing.T) {
	fake := &fakeAnalyzer{available: true, analysis: &llm.Analysis{Summary: "   "}}
	p := New(fake)

	article := p.Process(context.Background(), rawItem(), "test-plugin", false)
	if article.Summary == "" || strings.TrimSpace(article.Summary) == "" {
		t.Error("Expected fallback when analysis summary is blank")
	}
}

func TestFallbackSummary(t *testing.T) {
	// Short content passes through.
	if got := FallbackSummary("Title", "<b>short body</b>"); got != "short body" {
		t.Errorf("Unexpected short fallback: %q", got)
	}

	// Empty content falls back to the title.
	if got := FallbackSummary("  The Title  ", ""); got != "The Title" {
		t.Errorf("Unexpected title fallback: %q", got)
	}

	// Long content clips at a sentence boundary past rune 100.
	sentence := strings.Repeat("word ", 30) + "end of first part." // ~170 runes
	long := sentence + " " + strings.Repeat("filler ", 40)
	got := FallbackSummary("Title", long)
	if !strings.HasSuffix(got, "end of first part.") {
		t.Errorf("Expected sentence-boundary clip, got %q", got)
	}

	// No sentence boundary: hard clip with ellipsis.
	noDots := strings.Repeat("abcdefghij", 40)
	got = FallbackSummary("Title", noDots)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Expected ellipsis suffix, got %q", got)
	}
	if len([]rune(got)) != 303 {
		t.Errorf("Expected 300 runes plus ellipsis, got %d", len([]rune(got)))
	}
}

func TestStripTags(t *testing.T) {
	got := StripTags("<div><p>Hello   <a href='x'>world</a></p></div>")
	if got != "Hello world" {
		t.Errorf("Unexpected strip result: %q", got)
	}
}
