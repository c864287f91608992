package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Verdict is the safe/unsafe classification for a piece of text.
type Verdict struct {
	Safe   bool     `json:"safe"`
	Score  float64  `json:"score"`
	Issues []string `json:"issues"`
}

// ModelPort is the narrow slice of the provider router the filter needs.
type ModelPort interface {
	Complete(ctx context.Context, purpose, prompt string, maxTokens int) (string, error)
}

// failOpenScore is returned when the remote classifier is unavailable.
// The filter prefers availability over perfect classification.
const failOpenScore = 0.75

// patternPenalty is subtracted from the score per matched disallow pattern.
const patternPenalty = 0.15

// Pattern is one entry of the deterministic disallow list applied to
// candidate responses, independent of the remote classifier.
type Pattern struct {
	Match string
	Issue string
}

// ResponsePatterns is the ordered disallow table for response text.
// A starting configuration, not a security boundary.
var ResponsePatterns = []Pattern{
	{Match: "drop table", Issue: "destructive SQL: DROP TABLE"},
	{Match: "delete from", Issue: "destructive SQL: DELETE"},
	{Match: "truncate ", Issue: "destructive SQL: TRUNCATE"},
	{Match: "alter table", Issue: "destructive SQL: ALTER TABLE"},
	{Match: "insert into", Issue: "mutating SQL: INSERT"},
	{Match: "password", Issue: "secret-like term: password"},
	{Match: "api key", Issue: "secret-like term: api key"},
	{Match: "api_key", Issue: "secret-like term: api_key"},
	{Match: "access token", Issue: "secret-like term: access token"},
	{Match: "credit card number", Issue: "sensitive data: card number"},
}

// Filter classifies queries and candidate responses. Both checks are pure
// functions of their input plus the (possibly unavailable) remote classifier.
type Filter struct {
	model     ModelPort
	threshold float64
	logger    *zap.Logger
}

// NewFilter creates a filter. A nil model disables the remote classifier;
// checks then rely on fail-open scoring plus the deterministic patterns.
func NewFilter(model ModelPort, threshold float64, logger *zap.Logger) *Filter {
	if threshold <= 0 {
		threshold = 0.5
	}
	return &Filter{model: model, threshold: threshold, logger: logger}
}

// CheckQuery classifies an incoming user query.
func (f *Filter) CheckQuery(ctx context.Context, text string) Verdict {
	return f.classify(ctx, "user query", text)
}

// CheckResponse classifies a candidate answer. On top of the remote
// classifier it applies the deterministic disallow patterns, so a classifier
// outage never lets a clearly unsafe string through silently.
func (f *Filter) CheckResponse(ctx context.Context, text string) Verdict {
	verdict := f.classify(ctx, "candidate answer", text)

	lowered := strings.ToLower(text)
	for _, p := range ResponsePatterns {
		if strings.Contains(lowered, p.Match) {
			verdict.Score -= patternPenalty
			verdict.Issues = append(verdict.Issues, p.Issue)
		}
	}
	if verdict.Score < 0 {
		verdict.Score = 0
	}
	verdict.Safe = verdict.Score >= f.threshold
	return verdict
}

func (f *Filter) classify(ctx context.Context, kind, text string) Verdict {
	if f.model == nil {
		return Verdict{Safe: true, Score: failOpenScore}
	}

	prompt := fmt.Sprintf(`You are a content safety classifier for a retail analytics assistant.
Classify the following %s. Respond with JSON only:
{"safe": true|false, "score": 0.0-1.0, "issues": ["..."]}

Text:
%s`, kind, text)

	raw, err := f.model.Complete(ctx, "safety", prompt, 256)
	if err != nil {
		f.logger.Warn("safety classifier unavailable, failing open", zap.Error(err))
		return Verdict{Safe: true, Score: failOpenScore}
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(stripFences(raw)), &verdict); err != nil {
		f.logger.Warn("unparsable safety verdict, failing open", zap.Error(err))
		return Verdict{Safe: true, Score: failOpenScore}
	}
	if verdict.Score < 0 {
		verdict.Score = 0
	}
	if verdict.Score > 1 {
		verdict.Score = 1
	}
	// The score, not the issue list, is authoritative.
	verdict.Safe = verdict.Score >= f.threshold
	return verdict
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
