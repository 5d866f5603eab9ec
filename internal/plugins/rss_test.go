package plugins

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/japanese-wolf/brain-stream/internal/feeds"
)

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <item>
      <title>First announcement</title>
      <link>https://example.com/1</link>
      <guid>item-1</guid>
      <description>Body one.</description>
      <pubDate>Mon, 02 Jun 2025 10:00:00 +0000</pubDate>
      <category>compute</category>
    </item>
    <item>
      <title></title>
      <link>https://example.com/untitled</link>
    </item>
    <item>
      <title>Second announcement</title>
      <link>https://example.com/2</link>
      <guid>item-2</guid>
      <description>Body two.</description>
      <pubDate>Sun, 01 Jun 2025 08:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func TestRSSPluginFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	p := NewRSSPlugin("test-rss", "Test", "test feed", []string{srv.URL}, feeds.NewParser(5*time.Second))

	items, err := p.Fetch(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	// The untitled entry is dropped.
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.ExternalID != "item-1" {
		t.Errorf("Unexpected external id: %q", first.ExternalID)
	}
	if first.Vendor != "Test" {
		t.Errorf("Unexpected vendor: %q", first.Vendor)
	}
	if len(first.Categories) != 1 || first.Categories[0] != "compute" {
		t.Errorf("Unexpected categories: %v", first.Categories)
	}
	if first.Metadata["source"] != "test-rss" || first.Metadata["feed_url"] != srv.URL {
		t.Errorf("Unexpected metadata: %v", first.Metadata)
	}
}

func TestRSSPluginFetchSinceFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	p := NewRSSPlugin("test-rss", "Test", "test feed", []string{srv.URL}, feeds.NewParser(5*time.Second))

	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	items, err := p.Fetch(context.Background(), since)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 1 || items[0].ExternalID != "item-1" {
		t.Errorf("Expected only the newer item, got %v", items)
	}
}

func TestRSSPluginFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewRSSPlugin("test-rss", "Test", "test feed", []string{srv.URL}, feeds.NewParser(5*time.Second))

	_, err := p.Fetch(context.Background(), time.Time{})
	if err == nil {
		t.Fatal("Expected fetch error")
	}
	fe, ok := err.(*FetchError)
	if !ok {
		t.Fatalf("Expected *FetchError, got %T", err)
	}
	if fe.Source != "test-rss" {
		t.Errorf("Unexpected source: %q", fe.Source)
	}
}

func TestRSSPluginMultipleFeeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	p := NewRSSPlugin("multi", "Test", "two feeds", []string{srv.URL, srv.URL}, feeds.NewParser(5*time.Second))

	items, err := p.Fetch(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 4 {
		t.Errorf("Expected concatenated items from both feeds, got %d", len(items))
	}
}

func TestRSSPluginInfo(t *testing.T) {
	p := NewAWSWhatsNew(feeds.NewParser(0))
	info := p.Info()
	if info.Name != "aws-whatsnew" || info.Kind != "rss" || info.Vendor != "AWS" {
		t.Errorf("Unexpected info: %+v", info)
	}
}
