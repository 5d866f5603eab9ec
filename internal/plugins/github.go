package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/japanese-wolf/brain-stream/internal/core"
	"github.com/japanese-wolf/brain-stream/internal/logger"
)

// releasesPerRepo is how many recent releases each repository contributes.
const releasesPerRepo = 10

// githubRelease is the subset of the GitHub releases API payload the plugin
// reads.
type githubRelease struct {
	ID          int64     `json:"id"`
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Body        string    `json:"body"`
	HTMLURL     string    `json:"html_url"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
}

// GitHubReleases watches a configured set of repositories through the
// GitHub REST API. Per-repo failures are logged and skipped so one broken
// repo never hides the others' releases.
type GitHubReleases struct {
	repos   []string // owner/name
	token   string   // optional, raises the rate limit
	baseURL string
	client  *http.Client
}

// NewGitHubReleases creates the plugin for the given owner/name repos. The
// token is optional.
func NewGitHubReleases(repos []string, token string, timeout time.Duration) *GitHubReleases {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GitHubReleases{
		repos:   repos,
		token:   token,
		baseURL: "https://api.github.com",
		client:  &http.Client{Timeout: timeout},
	}
}

// Name is the registry key.
func (p *GitHubReleases) Name() string { return "github-releases" }

// Info describes the plugin.
func (p *GitHubReleases) Info() core.PluginInfo {
	return core.PluginInfo{
		Name:        "github-releases",
		Vendor:      "GitHub",
		Kind:        "api",
		Description: fmt.Sprintf("Releases of %d watched repositories", len(p.repos)),
	}
}

// Fetch iterates the watched repos and converts their recent releases.
// Drafts are skipped; pre-releases are marked in the content.
func (p *GitHubReleases) Fetch(ctx context.Context, since time.Time) ([]core.RawItem, error) {
	items := []core.RawItem{}
	failures := 0

	for _, repo := range p.repos {
		releases, err := p.fetchRepo(ctx, repo)
		if err != nil {
			logger.Warn("skipping repository", "plugin", p.Name(), "repo", repo, "error", err.Error())
			failures++
			continue
		}

		short := repo
		if i := strings.LastIndex(repo, "/"); i >= 0 {
			short = repo[i+1:]
		}

		for _, rel := range releases {
			if rel.Draft {
				continue
			}

			name := rel.Name
			if name == "" {
				name = rel.TagName
			}

			content := rel.Body
			if rel.Prerelease {
				content = "[Pre-release]\n" + content
			}

			items = append(items, core.RawItem{
				ExternalID:  fmt.Sprintf("github-%s-%d", repo, rel.ID),
				Title:       short + " " + name,
				URL:         rel.HTMLURL,
				Content:     content,
				PublishedAt: rel.PublishedAt.UTC(),
				Categories:  []string{"release", strings.ToLower(short)},
				Vendor:      "GitHub",
				Metadata: map[string]string{
					"source":     p.Name(),
					"repository": repo,
					"tag_name":   rel.TagName,
					"prerelease": strconv.FormatBool(rel.Prerelease),
				},
			})
		}
	}

	// All repos failing means the API itself is down, not a repo quirk.
	if failures == len(p.repos) && len(p.repos) > 0 {
		return nil, &FetchError{Source: p.Name(), Err: fmt.Errorf("all %d repositories failed", failures)}
	}

	return filterSince(items, since), nil
}

// fetchRepo reads the most recent releases of one repository.
func (p *GitHubReleases) fetchRepo(ctx context.Context, repo string) ([]githubRelease, error) {
	url := fmt.Sprintf("%s/repos/%s/releases?per_page=%d", p.baseURL, repo, releasesPerRepo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var releases []githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("failed to decode releases: %w", err)
	}
	return releases, nil
}

// HealthCheck probes the rate-limit endpoint, which is free and always
// available.
func (p *GitHubReleases) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/rate_limit", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("API unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	return nil
}

func (p *GitHubReleases) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "brain-stream/0.1")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
}
