package core

import "testing"

func TestValidAction(t *testing.T) {
	for _, a := range []string{ActionClick, ActionBookmark, ActionSkip} {
		if !ValidAction(a) {
			t.Errorf("Expected %q to be a valid action", a)
		}
	}
	for _, a := range []string{"", "like", "CLICK", "unbookmark"} {
		if ValidAction(a) {
			t.Errorf("Expected %q to be rejected", a)
		}
	}
}

func TestEmbeddingText(t *testing.T) {
	a := Article{Title: "Lambda SnapStart", Summary: "Faster cold starts for Java functions."}
	got := a.EmbeddingText()
	want := "Lambda SnapStart Faster cold starts for Java functions."
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	// Title-only articles must not carry a trailing separator.
	a = Article{Title: "Lambda SnapStart"}
	if got := a.EmbeddingText(); got != "Lambda SnapStart" {
		t.Errorf("Expected bare title, got %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("short", 80); got != "short" {
		t.Errorf("Expected untouched string, got %q", got)
	}
	if got := TruncateRunes("abcdef", 3); got != "abc" {
		t.Errorf("Expected 'abc', got %q", got)
	}
	// Rune-aware, not byte-aware.
	if got := TruncateRunes("ééééé", 2); got != "éé" {
		t.Errorf("Expected 'éé', got %q", got)
	}
}
