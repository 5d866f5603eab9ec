package plugins

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const releasesBody = `[
  {
    "id": 101,
    "tag_name": "v1.2.0",
    "name": "v1.2.0",
    "body": "Bug fixes and performance improvements.",
    "html_url": "https://github.com/acme/widget/releases/v1.2.0",
    "draft": false,
    "prerelease": false,
    "published_at": "2025-06-02T10:00:00Z"
  },
  {
    "id": 102,
    "tag_name": "v1.3.0-rc1",
    "name": "",
    "body": "Release candidate.",
    "html_url": "https://github.com/acme/widget/releases/v1.3.0-rc1",
    "draft": false,
    "prerelease": true,
    "published_at": "2025-06-03T10:00:00Z"
  },
  {
    "id": 103,
    "tag_name": "v9.9.9",
    "name": "draft",
    "body": "unpublished",
    "draft": true,
    "prerelease": false,
    "published_at": "2025-06-04T10:00:00Z"
  }
]`

func newGitHubStub(handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}

func TestGitHubReleasesFetch(t *testing.T) {
	srv := newGitHubStub(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/repos/acme/widget/releases") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(releasesBody))
	})
	defer srv.Close()

	p := NewGitHubReleases([]string{"acme/widget"}, "", 5*time.Second)
	p.baseURL = srv.URL

	items, err := p.Fetch(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	// Draft is skipped.
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	release := items[0]
	if release.ExternalID != "github-acme/widget-101" {
		t.Errorf("Unexpected external id: %q", release.ExternalID)
	}
	if release.Title != "widget v1.2.0" {
		t.Errorf("Unexpected title: %q", release.Title)
	}
	if release.Vendor != "GitHub" {
		t.Errorf("Unexpected vendor: %q", release.Vendor)
	}
	if release.Metadata["repository"] != "acme/widget" || release.Metadata["tag_name"] != "v1.2.0" {
		t.Errorf("Unexpected metadata: %v", release.Metadata)
	}

	// Empty name falls back to the tag, pre-release is marked.
	rc := items[1]
	if rc.Title != "widget v1.3.0-rc1" {
		t.Errorf("Unexpected pre-release title: %q", rc.Title)
	}
	if !strings.HasPrefix(rc.Content, "[Pre-release]\n") {
		t.Errorf("Expected pre-release marker, got %q", rc.Content)
	}
	if rc.Metadata["prerelease"] != "true" {
		t.Errorf("Expected prerelease metadata, got %v", rc.Metadata)
	}
}

func TestGitHubReleasesPartialFailure(t *testing.T) {
	srv := newGitHubStub(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/repos/acme/broken/") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(releasesBody))
	})
	defer srv.Close()

	p := NewGitHubReleases([]string{"acme/broken", "acme/widget"}, "", 5*time.Second)
	p.baseURL = srv.URL

	items, err := p.Fetch(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Expected partial failure to be tolerated, got %v", err)
	}
	if len(items) != 2 {
		t.Errorf("Expected items from the healthy repo, got %d", len(items))
	}
}

func TestGitHubReleasesAllFail(t *testing.T) {
	srv := newGitHubStub(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	defer srv.Close()

	p := NewGitHubReleases([]string{"acme/one", "acme/two"}, "", 5*time.Second)
	p.baseURL = srv.URL

	_, err := p.Fetch(context.Background(), time.Time{})
	if _, ok := err.(*FetchError); !ok {
		t.Fatalf("Expected *FetchError when every repo fails, got %v", err)
	}
}

func TestGitHubReleasesAuthHeader(t *testing.T) {
	var gotAuth string
	srv := newGitHubStub(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"resources":{}}`))
	})
	defer srv.Close()

	p := NewGitHubReleases(nil, "secret-token", 5*time.Second)
	p.baseURL = srv.URL

	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Unexpected auth header: %q", gotAuth)
	}
}

func TestGitHubReleasesSinceFilter(t *testing.T) {
	srv := newGitHubStub(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(releasesBody))
	})
	defer srv.Close()

	p := NewGitHubReleases([]string{"acme/widget"}, "", 5*time.Second)
	p.baseURL = srv.URL

	since := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	items, err := p.Fetch(context.Background(), since)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 1 || items[0].ExternalID != "github-acme/widget-102" {
		t.Errorf("Expected only the newer release, got %v", items)
	}
}
