package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type fakeEmbedder struct {
	dimension int
	err       error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dimension }

type fakeStore struct {
	hits        []*SearchResult
	ensured     map[string]uint64
	upserted    int
	lastPayload map[string]string
}

func (f *fakeStore) EnsureCollection(_ context.Context, name string, dimension uint64) error {
	if f.ensured == nil {
		f.ensured = map[string]uint64{}
	}
	f.ensured[name] = dimension
	return nil
}

func (f *fakeStore) Upsert(_ context.Context, _, _ string, _ []float32, payload map[string]string) error {
	f.upserted++
	f.lastPayload = payload
	return nil
}

func (f *fakeStore) Search(_ context.Context, _ string, _ []float32, _ uint64) ([]*SearchResult, error) {
	return f.hits, nil
}

func TestIndexQueryRanksByScore(t *testing.T) {
	store := &fakeStore{hits: []*SearchResult{
		{ID: "a", Score: 0.42, Payload: map[string]string{"content": "replenishment targets"}},
		{ID: "b", Score: 0.91, Payload: map[string]string{"content": "return window is 30 days"}},
		{ID: "c", Score: 0.77, Payload: map[string]string{"content": "loyalty points"}},
	}}
	ix := NewIndex(&fakeEmbedder{dimension: 3}, store, zap.NewNop())

	passages, err := ix.Query(context.Background(), "return policy", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) != 3 {
		t.Fatalf("got %d passages, want 3", len(passages))
	}
	for i := 1; i < len(passages); i++ {
		if passages[i].Score > passages[i-1].Score {
			t.Errorf("passages not ranked: %v before %v", passages[i-1].Score, passages[i].Score)
		}
	}
	if passages[0].ID != CollKnowledge+":b" {
		t.Errorf("top passage %q, want the 0.91 hit with collection prefix", passages[0].ID)
	}
	if passages[0].Content != "return window is 30 days" {
		t.Errorf("got content %q", passages[0].Content)
	}
}

func TestIndexQueryEmbedFailure(t *testing.T) {
	ix := NewIndex(&fakeEmbedder{err: errors.New("endpoint down")}, &fakeStore{}, zap.NewNop())
	if _, err := ix.Query(context.Background(), "anything", 3); err == nil {
		t.Error("expected error when embedding fails")
	}
}

func TestIndexInitUsesEmbedderDimension(t *testing.T) {
	store := &fakeStore{}
	ix := NewIndex(&fakeEmbedder{dimension: 1536}, store, zap.NewNop())
	if err := ix.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if store.ensured[CollKnowledge] != 1536 {
		t.Errorf("got dimension %d, want 1536", store.ensured[CollKnowledge])
	}
}

func TestIndexStoreAttachesContent(t *testing.T) {
	store := &fakeStore{}
	ix := NewIndex(&fakeEmbedder{dimension: 3}, store, zap.NewNop())

	err := ix.Store(context.Background(), "markdown cadence is 20/40/60", map[string]string{"source": "handbook"})
	if err != nil {
		t.Fatal(err)
	}
	if store.upserted != 1 {
		t.Fatalf("got %d upserts, want 1", store.upserted)
	}
	if store.lastPayload["content"] != "markdown cadence is 20/40/60" {
		t.Errorf("payload missing content: %v", store.lastPayload)
	}
	if store.lastPayload["source"] != "handbook" {
		t.Errorf("payload missing metadata: %v", store.lastPayload)
	}
	if store.lastPayload["indexed_at"] == "" {
		t.Error("payload missing indexed_at stamp")
	}
}

func TestFormatContext(t *testing.T) {
	if got := FormatContext(nil); got != "" {
		t.Errorf("empty passages should render nothing, got %q", got)
	}

	out := FormatContext([]Passage{
		{ID: "retail_knowledge:b", Content: "return window is 30 days", Score: 0.91},
		{ID: "retail_knowledge:c", Content: "loyalty points", Score: 0.77},
	})
	for _, want := range []string{"## Retrieved Context", "1. [retail_knowledge:b]", "2. [retail_knowledge:c]", "return window is 30 days"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted context missing %q:\n%s", want, out)
		}
	}
}
