package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CollKnowledge is the collection holding retail domain passages.
const CollKnowledge = "retail_knowledge"

// Passage is a single retrieved knowledge passage.
type Passage struct {
	ID      string
	Content string
	Score   float32
}

// Store is the vector backend the index runs on. *VectorStore is the qdrant
// implementation.
type Store interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) error
	Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]string) error
	Search(ctx context.Context, collection string, vector []float32, topK uint64) ([]*SearchResult, error)
}

// Index combines embedding generation and vector search over the knowledge
// collection. The knowledge capability uses it when configured; otherwise it
// falls back to a built-in static corpus.
type Index struct {
	embedder Embedder
	store    Store
	logger   *zap.Logger
}

// NewIndex creates a retrieval index.
func NewIndex(embedder Embedder, store Store, logger *zap.Logger) *Index {
	return &Index{embedder: embedder, store: store, logger: logger}
}

// Init ensures the knowledge collection exists.
func (ix *Index) Init(ctx context.Context) error {
	dim := uint64(ix.embedder.Dimension())
	if dim == 0 {
		dim = 1024
	}
	if err := ix.store.EnsureCollection(ctx, CollKnowledge, dim); err != nil {
		return fmt.Errorf("init collection %s: %w", CollKnowledge, err)
	}
	return nil
}

// Query embeds the query string and returns the top-K passages ranked by
// descending relevance.
func (ix *Index) Query(ctx context.Context, query string, topK int) ([]Passage, error) {
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	hits, err := ix.store.Search(ctx, CollKnowledge, vectors[0], uint64(topK))
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}

	passages := make([]Passage, 0, len(hits))
	for _, h := range hits {
		passages = append(passages, Passage{
			ID:      CollKnowledge + ":" + h.ID,
			Content: h.Payload["content"],
			Score:   h.Score,
		})
	}
	sort.Slice(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	return passages, nil
}

// Store embeds the content and upserts it into the knowledge collection.
func (ix *Index) Store(ctx context.Context, content string, metadata map[string]string) error {
	vectors, err := ix.embedder.Embed(ctx, []string{content})
	if err != nil {
		return fmt.Errorf("embed content: %w", err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("empty embedding result")
	}

	id := uuid.New().String()
	payload := make(map[string]string)
	for k, v := range metadata {
		payload[k] = v
	}
	payload["content"] = content
	payload["indexed_at"] = time.Now().UTC().Format(time.RFC3339)

	return ix.store.Upsert(ctx, CollKnowledge, id, vectors[0], payload)
}

// FormatContext renders passages into a prompt-friendly string.
func FormatContext(passages []Passage) string {
	if len(passages) == 0 {
		return ""
	}
	var b []byte
	b = append(b, "## Retrieved Context\n\n"...)
	for i, p := range passages {
		b = append(b, fmt.Sprintf("%d. [%s] (score: %.2f)\n%s\n\n", i+1, p.ID, p.Score, p.Content)...)
	}
	return string(b)
}
