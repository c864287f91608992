package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/lumastack/retail-copilot/internal/retrieval"
	"go.uber.org/zap"
)

// errNoModel marks the no-provider deployment; capabilities then answer
// from their deterministic fallbacks.
var errNoModel = errors.New("no language model configured")

const (
	knowledgeConfidence         = 0.85
	knowledgeFallbackConfidence = 0.6
	knowledgeTopK               = 4
)

// Knowledge answers questions from retail domain knowledge. It consults the
// retrieval index when one is configured and the built-in corpus otherwise,
// then asks the model for a grounded answer. It always returns a best-effort
// output; model failure degrades to a static answer, never an error.
type Knowledge struct {
	model  ModelPort
	index  *retrieval.Index // nil: use the static corpus
	logger *zap.Logger
}

// NewKnowledge creates the knowledge capability.
func NewKnowledge(model ModelPort, index *retrieval.Index, logger *zap.Logger) *Knowledge {
	return &Knowledge{model: model, index: index, logger: logger}
}

// Process answers the query from domain knowledge.
func (k *Knowledge) Process(ctx context.Context, query string) KnowledgeOutput {
	passages := k.gather(ctx, query)

	sources := make([]string, 0, len(passages))
	for _, p := range passages {
		sources = append(sources, p.ID)
	}

	prompt := fmt.Sprintf(`You are a retail business analyst. Answer the question using the
context passages below. Be concise and concrete; cite figures from the context
where relevant. If the context does not cover the question, say so and give
general retail guidance.

%s
Question: %s`, retrieval.FormatContext(passages), query)

	var answer string
	err := errNoModel
	if k.model != nil {
		answer, err = k.model.Complete(ctx, "knowledge", prompt, 1024)
	}
	if err != nil {
		k.logger.Warn("knowledge model call failed, using static answer", zap.Error(err))
		return KnowledgeOutput{
			Message:    k.staticAnswer(passages),
			Reasoning:  "model unavailable; answered directly from the knowledge base",
			Confidence: knowledgeFallbackConfidence,
			Sources:    sources,
			Status:     StatusDegraded,
		}
	}

	return KnowledgeOutput{
		Message:    answer,
		Reasoning:  fmt.Sprintf("answered from %d knowledge passages", len(passages)),
		Confidence: knowledgeConfidence,
		Sources:    sources,
		Status:     StatusOK,
	}
}

// gather retrieves passages from the index, falling back to the corpus on
// any retrieval trouble.
func (k *Knowledge) gather(ctx context.Context, query string) []retrieval.Passage {
	if k.index == nil {
		return searchCorpus(query, knowledgeTopK)
	}
	passages, err := k.index.Query(ctx, query, knowledgeTopK)
	if err != nil || len(passages) == 0 {
		if err != nil {
			k.logger.Warn("retrieval index query failed, using static corpus", zap.Error(err))
		}
		return searchCorpus(query, knowledgeTopK)
	}
	return passages
}

// staticAnswer stitches the retrieved passages into a readable answer when
// the model is unavailable.
func (k *Knowledge) staticAnswer(passages []retrieval.Passage) string {
	if len(passages) == 0 {
		return "I couldn't reach the knowledge model right now. Please retry, or narrow the question to returns, loyalty, pricing, inventory, or customer segments."
	}
	msg := "Here is what our knowledge base says:\n"
	for _, p := range passages {
		msg += "\n- " + p.Content
	}
	return msg
}
