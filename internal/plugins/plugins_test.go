package plugins

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/japanese-wolf/brain-stream/internal/core"
)

// stubPlugin is a minimal plugin for registry tests.
type stubPlugin struct {
	name string
}

func (s *stubPlugin) Name() string { return s.name }

func (s *stubPlugin) Fetch(ctx context.Context, since time.Time) ([]core.RawItem, error) {
	return nil, nil
}

func (s *stubPlugin) HealthCheck(ctx context.Context) error { return nil }

func (s *stubPlugin) Info() core.PluginInfo {
	return core.PluginInfo{Name: s.name, Kind: "stub"}
}

func TestRegistryOrderAndLookup(t *testing.T) {
	a := &stubPlugin{name: "alpha"}
	b := &stubPlugin{name: "beta"}
	r := NewRegistry(a, b)

	if got := r.Get("alpha"); got != a {
		t.Error("Expected to find alpha")
	}
	if got := r.Get("missing"); got != nil {
		t.Error("Expected nil for unknown plugin")
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("Unexpected names order: %v", names)
	}
	if len(r.All()) != 2 {
		t.Errorf("Expected 2 plugins, got %d", len(r.All()))
	}
}

func TestRegistryDuplicateReplaces(t *testing.T) {
	first := &stubPlugin{name: "dup"}
	second := &stubPlugin{name: "dup"}
	r := NewRegistry(first, second)

	if len(r.All()) != 1 {
		t.Fatalf("Expected 1 plugin, got %d", len(r.All()))
	}
	if r.Get("dup") != second {
		t.Error("Expected later registration to win")
	}
}

func TestFetchErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &FetchError{Source: "aws-whatsnew", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Expected Unwrap to expose the inner error")
	}
	var fe *FetchError
	if !errors.As(error(err), &fe) || fe.Source != "aws-whatsnew" {
		t.Error("Expected errors.As to recover the FetchError")
	}
}

func TestFilterSince(t *testing.T) {
	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	items := []core.RawItem{
		{ExternalID: "old", PublishedAt: since.Add(-time.Hour)},
		{ExternalID: "new", PublishedAt: since.Add(time.Hour)},
		{ExternalID: "undated"},
	}

	got := filterSince(items, since)
	if len(got) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(got))
	}
	if got[0].ExternalID != "new" || got[1].ExternalID != "undated" {
		t.Errorf("Unexpected filter result: %v", got)
	}

	// Zero since keeps everything.
	all := filterSince([]core.RawItem{{ExternalID: "a"}, {ExternalID: "b"}}, time.Time{})
	if len(all) != 2 {
		t.Errorf("Expected all items with zero since, got %d", len(all))
	}
}
