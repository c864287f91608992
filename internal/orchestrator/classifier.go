package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumastack/retail-copilot/internal/capability"
	"go.uber.org/zap"
)

// QueryKeywords signal structured-data intent. Ordered rule table, exported
// so tests can enumerate coverage. A starting configuration, not a contract.
var QueryKeywords = []string{
	"sales", "revenue", "total", "sum", "count", "how many", "average",
	"top ", "trend", "orders", "last quarter", "last month", "year over year",
	"units sold", "conversion",
}

// KnowledgeKeywords signal domain-knowledge intent.
var KnowledgeKeywords = []string{
	"policy", "return", "refund", "what is", "explain", "why", "how do",
	"best practice", "strategy", "definition", "loyalty", "recommend",
	"should we",
}

// KeywordPlan is the deterministic fallback classifier. When both keyword
// sets match, or neither does, it chooses both capabilities: completeness
// over precision.
func KeywordPlan(text string) []capability.Name {
	lowered := strings.ToLower(text)

	matchesQuery := false
	for _, kw := range QueryKeywords {
		if strings.Contains(lowered, kw) {
			matchesQuery = true
			break
		}
	}
	matchesKnowledge := false
	for _, kw := range KnowledgeKeywords {
		if strings.Contains(lowered, kw) {
			matchesKnowledge = true
			break
		}
	}

	switch {
	case matchesQuery && !matchesKnowledge:
		return []capability.Name{capability.NameQuery}
	case matchesKnowledge && !matchesQuery:
		return []capability.Name{capability.NameKnowledge}
	default:
		return []capability.Name{capability.NameKnowledge, capability.NameQuery}
	}
}

// classify asks the model for a delegation plan, treating its output as a
// hint: anything unparsable or out of range falls back to the keyword tables.
func (s *Supervisor) classify(ctx context.Context, text string) (plan []capability.Name, reasoning string) {
	if s.model == nil {
		return KeywordPlan(text), "keyword classification (no model configured)"
	}

	prompt := fmt.Sprintf(`You route retail business questions to capabilities.
Available capabilities:
  "query"     - answers with warehouse data via SQL (sales figures, counts, trends)
  "knowledge" - answers from retail domain knowledge (policies, practices, strategy)

Respond with JSON only:
{"capabilities": ["query" and/or "knowledge"], "reasoning": "..."}

Question: %s`, text)

	raw, err := s.model.Complete(ctx, "classifier", prompt, 256)
	if err != nil {
		s.logger.Warn("classifier model failed, using keyword fallback", zap.Error(err))
		return KeywordPlan(text), "keyword classification (classifier unavailable)"
	}

	var parsed struct {
		Capabilities []string `json:"capabilities"`
		Reasoning    string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		s.logger.Warn("unparsable classifier output, using keyword fallback", zap.Error(err))
		return KeywordPlan(text), "keyword classification (unparsable classifier output)"
	}

	seen := make(map[capability.Name]bool)
	for _, c := range parsed.Capabilities {
		name := capability.Name(strings.ToLower(strings.TrimSpace(c)))
		if name != capability.NameKnowledge && name != capability.NameQuery {
			continue
		}
		if !seen[name] {
			seen[name] = true
			plan = append(plan, name)
		}
	}
	if len(plan) == 0 {
		return KeywordPlan(text), "keyword classification (classifier chose no valid capability)"
	}
	return plan, parsed.Reasoning
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
