package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// dimTracker remembers the vector width observed on the first successful
// embedding so Dimension() can report the real width even when the config
// leaves it unset.
type dimTracker struct {
	mu         sync.Mutex
	configured int
	observed   int
}

func (d *dimTracker) note(vectors [][]float32) {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return
	}
	d.mu.Lock()
	if d.observed == 0 {
		d.observed = len(vectors[0])
	}
	d.mu.Unlock()
}

func (d *dimTracker) value() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.observed > 0 {
		return d.observed
	}
	return d.configured
}

// postJSON sends a JSON request and decodes the JSON response into out.
// Non-200 statuses become errors carrying a bounded slice of the body.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("embedding endpoint %s returned %d: %s", url, resp.StatusCode, raw)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newEmbedClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
