package safety

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type fakeModel struct {
	response string
	err      error
}

func (f *fakeModel) Complete(_ context.Context, _, _ string, _ int) (string, error) {
	return f.response, f.err
}

func TestCheckQueryVerdictFromClassifier(t *testing.T) {
	model := &fakeModel{response: `{"safe": false, "score": 0.2, "issues": ["requests personal data"]}`}
	f := NewFilter(model, 0.5, zap.NewNop())

	v := f.CheckQuery(context.Background(), "list customer home addresses")
	if v.Safe {
		t.Error("expected unsafe verdict")
	}
	if v.Score != 0.2 {
		t.Errorf("got score %v, want 0.2", v.Score)
	}
	if len(v.Issues) != 1 {
		t.Errorf("got %d issues, want 1", len(v.Issues))
	}
}

func TestCheckQueryFailsOpenOnClassifierError(t *testing.T) {
	model := &fakeModel{err: errors.New("connection refused")}
	f := NewFilter(model, 0.5, zap.NewNop())

	v := f.CheckQuery(context.Background(), "what were sales last week")
	if !v.Safe {
		t.Error("expected fail-open safe verdict")
	}
	if v.Score < 0.7 || v.Score > 0.8 {
		t.Errorf("fail-open score %v outside [0.7, 0.8]", v.Score)
	}
}

func TestCheckQueryFailsOpenOnGarbageOutput(t *testing.T) {
	model := &fakeModel{response: "sure, that looks fine to me!"}
	f := NewFilter(model, 0.5, zap.NewNop())

	v := f.CheckQuery(context.Background(), "anything")
	if !v.Safe {
		t.Error("expected fail-open safe verdict on unparsable output")
	}
}

func TestCheckQueryStripsFences(t *testing.T) {
	model := &fakeModel{response: "```json\n{\"safe\": true, \"score\": 0.95, \"issues\": []}\n```"}
	f := NewFilter(model, 0.5, zap.NewNop())

	v := f.CheckQuery(context.Background(), "anything")
	if !v.Safe || v.Score != 0.95 {
		t.Errorf("got %+v, want safe 0.95", v)
	}
}

func TestCheckResponsePatternsApplyWithoutClassifier(t *testing.T) {
	f := NewFilter(nil, 0.5, zap.NewNop())

	v := f.CheckResponse(context.Background(), "Run DROP TABLE customers; then share the admin password.")
	if v.Safe {
		t.Error("expected unsafe: two disallow patterns should drop the fail-open score below threshold")
	}
	if len(v.Issues) < 2 {
		t.Errorf("got %d issues, want at least 2", len(v.Issues))
	}
	for _, issue := range v.Issues {
		if issue == "" {
			t.Error("empty issue string")
		}
	}
}

func TestCheckResponsePatternsOverrideSafeClassifier(t *testing.T) {
	// A classifier outage must never let a clearly unsafe string through.
	model := &fakeModel{err: errors.New("classifier down")}
	f := NewFilter(model, 0.5, zap.NewNop())

	v := f.CheckResponse(context.Background(), "To reset it, TRUNCATE orders and rotate the api key and access token.")
	if v.Safe {
		t.Errorf("expected unsafe verdict, got score %v", v.Score)
	}
}

func TestCheckResponseCleanTextStaysSafe(t *testing.T) {
	f := NewFilter(nil, 0.5, zap.NewNop())

	v := f.CheckResponse(context.Background(), "Q2 sales totaled $1.2M, up 8% over Q1, driven by footwear.")
	if !v.Safe {
		t.Errorf("clean text marked unsafe: %+v", v)
	}
	if len(v.Issues) != 0 {
		t.Errorf("unexpected issues: %v", v.Issues)
	}
}

func TestCheckResponseScoreNeverNegative(t *testing.T) {
	f := NewFilter(nil, 0.5, zap.NewNop())

	text := strings.Join([]string{
		"drop table a", "delete from b", "truncate c", "alter table d",
		"insert into e", "password", "api key", "api_key", "access token",
		"credit card number",
	}, " ")
	v := f.CheckResponse(context.Background(), text)
	if v.Score < 0 {
		t.Errorf("score went negative: %v", v.Score)
	}
	if v.Safe {
		t.Error("expected unsafe")
	}
}

func TestPatternTableIsLowercase(t *testing.T) {
	// Matching lowercases the input, so patterns must be lowercase themselves.
	for _, p := range ResponsePatterns {
		if p.Match != strings.ToLower(p.Match) {
			t.Errorf("pattern %q is not lowercase", p.Match)
		}
		if p.Issue == "" {
			t.Errorf("pattern %q has no issue label", p.Match)
		}
	}
}
