package capability

import (
	"context"

	"github.com/lumastack/retail-copilot/internal/warehouse"
)

// Name identifies a capability in a delegation plan.
type Name string

const (
	NameKnowledge Name = "knowledge"
	NameQuery     Name = "query"
)

// Status reports whether a capability produced a full or degraded answer.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// ModelPort is the narrow slice of the provider router capabilities use.
type ModelPort interface {
	Complete(ctx context.Context, purpose, prompt string, maxTokens int) (string, error)
}

// KnowledgeOutput is the knowledge capability's answer.
type KnowledgeOutput struct {
	Message    string
	Reasoning  string
	Confidence float64
	Sources    []string
	Status     Status
}

// QueryOutput is the query capability's answer.
type QueryOutput struct {
	Message       string
	Reasoning     string
	Confidence    float64
	SQLQuery      string // empty when no statement survived validation
	Result        *warehouse.Result
	UsingLiveData bool
	Status        Status
}
