// Package feeds provides RSS/Atom feed fetching and parsing for the RSS
// source plugins.
package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// userAgent identifies the hub to feed servers.
const userAgent = "brain-stream/" + "0.1"

// Entry is one parsed feed entry, format-agnostic.
type Entry struct {
	ID         string    // GUID / Atom id, falling back to the link
	Title      string    //
	Link       string    //
	Summary    string    // Description or Atom summary, may contain markup
	Published  time.Time // Zero when the feed carries no usable date
	Categories []string  // category / tag terms, may be empty
}

// RSS represents an RSS 2.0 feed structure
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Channel represents an RSS channel
type Channel struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	Link        string    `xml:"link"`
	Items       []RSSItem `xml:"item"`
}

// RSSItem represents an RSS item
type RSSItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	GUID        string   `xml:"guid"`
	Categories  []string `xml:"category"`
}

// Atom represents an Atom feed structure
type Atom struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []AtomEntry `xml:"entry"`
}

// AtomEntry represents an Atom entry
type AtomEntry struct {
	Title      string         `xml:"title"`
	Link       []AtomLink     `xml:"link"`
	Summary    string         `xml:"summary"`
	Content    string         `xml:"content"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	ID         string         `xml:"id"`
	Categories []AtomCategory `xml:"category"`
}

// AtomLink represents an Atom link element
type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// AtomCategory represents an Atom category element
type AtomCategory struct {
	Term string `xml:"term,attr"`
}

// Parser fetches and parses RSS 2.0 and Atom feeds over a shared HTTP
// client.
type Parser struct {
	client *http.Client
}

// NewParser creates a parser with the given fetch timeout (30s if zero).
func NewParser(timeout time.Duration) *Parser {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Parser{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads and parses a feed. The body is read once and tried as RSS
// first, then Atom.
func (p *Parser) Fetch(ctx context.Context, feedURL string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", feedURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	return Parse(body)
}

// HealthCheck probes the feed URL with a HEAD request under a 10s deadline.
// Servers that reject HEAD outright still count as reachable.
func (p *Parser) HealthCheck(ctx context.Context, feedURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, feedURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("feed unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("feed %s returned status %d", feedURL, resp.StatusCode)
	}
	return nil
}

// Parse decodes feed bytes, trying RSS 2.0 first and Atom second.
func Parse(body []byte) ([]Entry, error) {
	var rss RSS
	if err := xml.Unmarshal(body, &rss); err == nil && rss.Channel.Title != "" {
		return parseRSS(rss), nil
	}

	var atom Atom
	if err := xml.Unmarshal(body, &atom); err == nil && atom.Title != "" {
		return parseAtom(atom), nil
	}

	return nil, fmt.Errorf("unable to parse as RSS or Atom feed")
}

// parseRSS converts RSS items to entries
func parseRSS(rss RSS) []Entry {
	entries := make([]Entry, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		entry := Entry{
			ID:         entryID(item.GUID, item.Link, item.Title),
			Title:      strings.TrimSpace(item.Title),
			Link:       strings.TrimSpace(item.Link),
			Summary:    strings.TrimSpace(item.Description),
			Published:  ParseDate(item.PubDate),
			Categories: cleanCategories(item.Categories),
		}
		entries = append(entries, entry)
	}
	return entries
}

// parseAtom converts Atom entries to entries
func parseAtom(atom Atom) []Entry {
	entries := make([]Entry, 0, len(atom.Entries))
	for _, ae := range atom.Entries {
		// Find the main link
		var link string
		for _, l := range ae.Link {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}

		summary := ae.Summary
		if summary == "" {
			summary = ae.Content
		}

		published := ae.Published
		if published == "" {
			published = ae.Updated
		}

		terms := make([]string, 0, len(ae.Categories))
		for _, c := range ae.Categories {
			terms = append(terms, c.Term)
		}

		entry := Entry{
			ID:         entryID(ae.ID, link, ae.Title),
			Title:      strings.TrimSpace(ae.Title),
			Link:       strings.TrimSpace(link),
			Summary:    strings.TrimSpace(summary),
			Published:  ParseDate(published),
			Categories: cleanCategories(terms),
		}
		entries = append(entries, entry)
	}
	return entries
}

// entryID picks the stable id for an entry: GUID, then link, then a
// deterministic UUID of the title.
func entryID(guid, link, title string) string {
	if g := strings.TrimSpace(guid); g != "" {
		return g
	}
	if l := strings.TrimSpace(link); l != "" {
		return l
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(title)).String()
}

// cleanCategories trims terms and drops empty ones
func cleanCategories(terms []string) []string {
	var out []string
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ParseDate parses the date formats seen in the wild across RSS and Atom
// feeds, returning the zero time when nothing matches.
func ParseDate(dateStr string) time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339,
		time.RFC1123,
		time.RFC1123Z,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}
