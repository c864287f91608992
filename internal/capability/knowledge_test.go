package capability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestKnowledgeAnswersFromModel(t *testing.T) {
	model := &fakeModel{response: "Returns are accepted for 30 days with receipt."}
	k := NewKnowledge(model, nil, zap.NewNop())

	out := k.Process(context.Background(), "What is our return policy?")
	if out.Status != StatusOK {
		t.Errorf("got status %q, want ok", out.Status)
	}
	if out.Confidence != knowledgeConfidence {
		t.Errorf("got confidence %v, want %v", out.Confidence, knowledgeConfidence)
	}
	if out.Message != model.response {
		t.Errorf("answer should be the model output, got %q", out.Message)
	}
	if len(out.Sources) == 0 {
		t.Fatal("expected corpus sources")
	}
	if out.Sources[0] != "handbook:returns-policy" {
		t.Errorf("best source %q, want handbook:returns-policy", out.Sources[0])
	}
}

func TestKnowledgeDegradesToStaticAnswer(t *testing.T) {
	model := &fakeModel{err: errors.New("model offline")}
	k := NewKnowledge(model, nil, zap.NewNop())

	out := k.Process(context.Background(), "How does the loyalty program work?")
	if out.Status != StatusDegraded {
		t.Errorf("got status %q, want degraded", out.Status)
	}
	if out.Confidence != knowledgeFallbackConfidence {
		t.Errorf("got confidence %v, want %v", out.Confidence, knowledgeFallbackConfidence)
	}
	if !strings.Contains(out.Message, "1 point per dollar") {
		t.Errorf("static answer should carry the loyalty passage, got %q", out.Message)
	}
	if len(out.Sources) == 0 {
		t.Error("degraded answer still cites its sources")
	}
}

func TestSearchCorpus(t *testing.T) {
	t.Run("keyword overlap ranks matches", func(t *testing.T) {
		passages := searchCorpus("what is our refund and return policy", 4)
		if len(passages) == 0 {
			t.Fatal("no passages")
		}
		if passages[0].ID != "handbook:returns-policy" {
			t.Errorf("top passage %q, want handbook:returns-policy", passages[0].ID)
		}
	})

	t.Run("no overlap falls back to primers", func(t *testing.T) {
		passages := searchCorpus("completely unrelated question", 4)
		if len(passages) != 2 {
			t.Fatalf("got %d passages, want the 2 primers", len(passages))
		}
		if passages[0].ID != "handbook:seasonality" || passages[1].ID != "handbook:customer-segments" {
			t.Errorf("unexpected primer IDs: %s, %s", passages[0].ID, passages[1].ID)
		}
	})

	t.Run("respects topK", func(t *testing.T) {
		passages := searchCorpus("return refund loyalty points inventory stock price segment", 2)
		if len(passages) != 2 {
			t.Errorf("got %d passages, want 2", len(passages))
		}
	})
}
