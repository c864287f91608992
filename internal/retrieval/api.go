package retrieval

import (
	"context"
	"fmt"
	"net/http"
)

// apiBatchSize bounds how many passages go into one embeddings request.
// Handbook passages are short but indexing sends many at once; a bounded
// batch keeps request bodies within typical provider limits.
const apiBatchSize = 16

// APIEmbedder embeds text through an OpenAI-compatible embeddings endpoint.
type APIEmbedder struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	dim      dimTracker
}

// NewAPIEmbedder creates an embedder for the configured endpoint.
func NewAPIEmbedder(cfg EmbeddingConfig) *APIEmbedder {
	e := &APIEmbedder{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   newEmbedClient(),
	}
	e.dim.configured = cfg.Dimension
	return e
}

type apiEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type apiEmbedDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type apiEmbedResponse struct {
	Data []apiEmbedDatum `json:"data"`
}

// Embed returns one vector per input text, in input order. Large inputs are
// split into bounded batches.
func (e *APIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += apiBatchSize {
		end := start + apiBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	e.dim.note(vectors)
	return vectors, nil
}

func (e *APIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	headers := map[string]string{}
	if e.apiKey != "" {
		headers["Authorization"] = "Bearer " + e.apiKey
	}

	var resp apiEmbedResponse
	if err := postJSON(ctx, e.client, e.endpoint+"/embeddings", headers,
		apiEmbedRequest{Model: e.model, Input: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Data))
	}

	// The API may return data out of order; the index field is authoritative.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range for batch of %d", d.Index, len(texts))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Dimension returns the observed vector width, or the configured default
// before the first successful call.
func (e *APIEmbedder) Dimension() int {
	return e.dim.value()
}
