package orchestrator

import (
	"time"

	"github.com/google/uuid"
	"github.com/lumastack/retail-copilot/internal/capability"
)

// Role tags who produced a conversation step.
type Role string

const (
	RoleUser         Role = "user"
	RoleOrchestrator Role = "orchestrator"
	RoleKnowledge    Role = "knowledge"
	RoleQuery        Role = "query"
	RoleSynthesis    Role = "synthesis"
	RoleSafety       Role = "safety"
)

// Metadata carries optional structured annotations on a step.
type Metadata struct {
	Reasoning      string            `json:"reasoning,omitempty"`
	ToolUsed       string            `json:"tool_used,omitempty"`
	Confidence     float64           `json:"confidence,omitempty"`
	Sources        []string          `json:"sources,omitempty"`
	SQLQuery       string            `json:"sql_query,omitempty"`
	SafetyScore    float64           `json:"safety_score,omitempty"`
	DelegationPlan []capability.Name `json:"delegation_plan,omitempty"`
}

// Step is one entry in the ordered trace of a single query's processing.
// Steps are immutable once their trace is returned; the containing trace is
// owned by one ProcessQuery invocation and never shared across requests.
// Timestamps are non-decreasing along the trace.
type Step struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// NewStep stamps a step with a fresh ID and the current time.
func NewStep(role Role, content string, md *Metadata) Step {
	return Step{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  md,
	}
}
