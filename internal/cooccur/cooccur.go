// Package cooccur mines tag co-occurrence: given the user's declared tech
// stack, it surfaces the technologies that keep appearing alongside it but
// are not part of it yet.
package cooccur

import (
	"sort"
	"strings"

	"github.com/japanese-wolf/brain-stream/internal/core"
)

// minCount is the co-occurrence threshold below which a technology is
// considered incidental.
const minCount = 2

// maxSamples caps the example article ids kept per technology.
const maxSamples = 3

// Analyzer ranks technologies adjacent to a declared stack.
type Analyzer struct {
	maxResults int
}

// NewAnalyzer creates an analyzer returning at most maxResults technologies
// (10 if not positive).
func NewAnalyzer(maxResults int) *Analyzer {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Analyzer{maxResults: maxResults}
}

// Normalize canonicalizes one tag: lowercase and trimmed, keeping the
// segment after a namespace colon and before a comma.
func Normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.LastIndex(tag, ":"); i >= 0 {
		tag = tag[i+1:]
	}
	if i := strings.Index(tag, ","); i >= 0 {
		tag = tag[:i]
	}
	return strings.TrimSpace(tag)
}

// Trending counts, for every article sharing at least one tag with the
// stack, the tags outside the stack, and returns the most frequent ones.
func (a *Analyzer) Trending(articles []core.Article, stack []string) []core.TrendingTechnology {
	stackSet := make(map[string]bool, len(stack))
	for _, s := range stack {
		if n := Normalize(s); n != "" {
			stackSet[n] = true
		}
	}
	if len(stackSet) == 0 {
		return []core.TrendingTechnology{}
	}

	type tally struct {
		count     int
		relatedTo map[string]bool
		samples   []string
	}
	tallies := make(map[string]*tally)

	for _, article := range articles {
		tags := make(map[string]bool, len(article.Tags))
		for _, t := range article.Tags {
			if n := Normalize(t); n != "" {
				tags[n] = true
			}
		}

		var overlap []string
		for t := range tags {
			if stackSet[t] {
				overlap = append(overlap, t)
			}
		}
		if len(overlap) == 0 {
			continue
		}

		for t := range tags {
			if stackSet[t] {
				continue
			}
			entry := tallies[t]
			if entry == nil {
				entry = &tally{relatedTo: make(map[string]bool)}
				tallies[t] = entry
			}
			entry.count++
			for _, o := range overlap {
				entry.relatedTo[o] = true
			}
			if len(entry.samples) < maxSamples && !contains(entry.samples, article.ExternalID) {
				entry.samples = append(entry.samples, article.ExternalID)
			}
		}
	}

	results := make([]core.TrendingTechnology, 0, len(tallies))
	for name, entry := range tallies {
		if entry.count < minCount {
			continue
		}
		related := make([]string, 0, len(entry.relatedTo))
		for r := range entry.relatedTo {
			related = append(related, r)
		}
		sort.Strings(related)
		results = append(results, core.TrendingTechnology{
			Name:             name,
			Count:            entry.count,
			RelatedTo:        related,
			SampleArticleIDs: entry.samples,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].Name < results[j].Name
	})

	if len(results) > a.maxResults {
		results = results[:a.maxResults]
	}
	return results
}

func contains(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
