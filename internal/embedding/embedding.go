package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Embedder turns article text into vectors. The embedding dimension is a
// backend constant; callers must not assume a particular value.
type Embedder interface {
	// Name identifies the backend ("gemini" or "local").
	Name() string

	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// geminiBatchLimit is the maximum number of contents per BatchEmbedContents
// request.
const geminiBatchLimit = 100

// Gemini embeds text through the Gemini embedding API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed embedder. The model defaults to
// text-embedding-004 when empty.
func NewGemini(ctx context.Context, apiKey string, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini embedder requires an API key")
	}
	if model == "" {
		model = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

// Name identifies the backend.
func (g *Gemini) Name() string { return "gemini" }

// Close releases the underlying API client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Embed sends the texts through the batch embedding endpoint, chunked to the
// API's batch limit.
func (g *Gemini) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	em := g.client.EmbeddingModel(g.model)
	out := make([][]float64, 0, len(texts))

	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := start + geminiBatchLimit
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, text := range texts[start:end] {
			batch = batch.AddContent(genai.Text(text))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", end-start, len(resp.Embeddings))
		}

		for _, emb := range resp.Embeddings {
			vec := make([]float64, len(emb.Values))
			for i, v := range emb.Values {
				vec[i] = float64(v)
			}
			out = append(out, vec)
		}
	}

	return out, nil
}

// Local is a deterministic offline embedder built on token feature hashing.
// It keeps the pipeline functional without an API key: vectors are stable
// across runs and texts sharing vocabulary land near each other, which is
// enough for clustering smoke use and for tests.
type Local struct {
	dims int
}

// NewLocal creates a local embedder with the given dimension (256 if d < 8).
func NewLocal(dims int) *Local {
	if dims < 8 {
		dims = 256
	}
	return &Local{dims: dims}
}

// Name identifies the backend.
func (l *Local) Name() string { return "local" }

// Embed hashes each token of each text into a fixed-size vector and
// L2-normalizes the result.
func (l *Local) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = l.embedOne(text)
	}
	return out, nil
}

func (l *Local) embedOne(text string) []float64 {
	vec := make([]float64, l.dims)

	for _, token := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		idx := int(sum % uint64(l.dims))
		// Signed hashing keeps the expected value of collisions at zero.
		if (sum>>32)&1 == 1 {
			vec[idx]++
		} else {
			vec[idx]--
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec
}

// tokenize splits text into lowercased alphanumeric tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}
