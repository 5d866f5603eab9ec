package embedding

import (
	"context"
	"math"
	"testing"
)

func TestLocalEmbedDeterministic(t *testing.T) {
	e := NewLocal(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, []string{"AWS Lambda cold starts"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := e.Embed(ctx, []string{"AWS Lambda cold starts"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(a) != 1 || len(a[0]) != 64 {
		t.Fatalf("Expected one 64-dim vector, got %d x %d", len(a), len(a[0]))
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("Vectors differ at %d: %v vs %v", i, a[0][i], b[0][i])
		}
	}
}

func TestLocalEmbedNormalized(t *testing.T) {
	e := NewLocal(32)

	vecs, err := e.Embed(context.Background(), []string{"kubernetes scheduling deep dive"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	var norm float64
	for _, v := range vecs[0] {
		norm += v * v
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-9 {
		t.Errorf("Expected unit vector, got norm %v", math.Sqrt(norm))
	}
}

func TestLocalEmbedEmptyText(t *testing.T) {
	e := NewLocal(16)

	vecs, err := e.Embed(context.Background(), []string{""})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	for _, v := range vecs[0] {
		if v != 0 {
			t.Fatalf("Expected zero vector for empty text, got %v", vecs[0])
		}
	}
}

func TestLocalSharedVocabularyIsCloser(t *testing.T) {
	e := NewLocal(128)
	ctx := context.Background()

	vecs, err := e.Embed(ctx, []string{
		"kubernetes cluster scheduling kubernetes pods",
		"kubernetes cluster scheduling kubernetes nodes",
		"gourmet pasta recipes with tomato sauce",
	})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	near := cosine(vecs[0], vecs[1])
	far := cosine(vecs[0], vecs[2])
	if near <= far {
		t.Errorf("Expected shared-vocabulary texts to be closer: near=%v far=%v", near, far)
	}
}

func TestNewLocalMinimumDims(t *testing.T) {
	if e := NewLocal(0); e.dims != 256 {
		t.Errorf("Expected default 256 dims, got %d", e.dims)
	}
}

func cosine(a, b []float64) float64 {
	var dot, ma, mb float64
	for i := range a {
		dot += a[i] * b[i]
		ma += a[i] * a[i]
		mb += b[i] * b[i]
	}
	if ma == 0 || mb == 0 {
		return 0
	}
	return dot / (math.Sqrt(ma) * math.Sqrt(mb))
}
