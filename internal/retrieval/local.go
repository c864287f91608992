package retrieval

import (
	"context"
	"fmt"
	"net/http"
)

// LocalEmbedder embeds text through an Ollama-compatible endpoint, which
// accepts one prompt per request.
type LocalEmbedder struct {
	endpoint string
	model    string
	client   *http.Client
	dim      dimTracker
}

// NewLocalEmbedder creates an embedder for a local Ollama instance.
func NewLocalEmbedder(cfg EmbeddingConfig) *LocalEmbedder {
	e := &LocalEmbedder{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		client:   newEmbedClient(),
	}
	e.dim.configured = cfg.Dimension
	return e
}

type localEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type localEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns one vector per input text, in input order.
func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		var resp localEmbedResponse
		if err := postJSON(ctx, e.client, e.endpoint+"/api/embeddings", nil,
			localEmbedRequest{Model: e.model, Prompt: text}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding for text of length %d", len(text))
		}
		vectors = append(vectors, resp.Embedding)
	}

	e.dim.note(vectors)
	return vectors, nil
}

// Dimension returns the observed vector width, or the configured default
// before the first successful call.
func (e *LocalEmbedder) Dimension() int {
	return e.dim.value()
}
