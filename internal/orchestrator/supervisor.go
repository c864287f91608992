package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lumastack/retail-copilot/internal/capability"
	"github.com/lumastack/retail-copilot/internal/safety"
	"go.uber.org/zap"
)

const (
	// synthesisFallbackConfidence is used when the merge model call fails.
	synthesisFallbackConfidence = 0.7
	// complianceMessage replaces content withheld by the output safety check.
	complianceMessage = "This answer needs compliance review before it can be shown. Please rephrase the question or contact an administrator."
)

// ModelPort is the narrow slice of the provider router the supervisor needs.
type ModelPort interface {
	Complete(ctx context.Context, purpose, prompt string, maxTokens int) (string, error)
}

// Supervisor coordinates one query through the full pipeline: input safety
// gate, classification, capability fan-out, synthesis, and the output safety
// check. Capability failures degrade; only the input gate terminates early.
type Supervisor struct {
	model      ModelPort // nil: keyword classification, concat synthesis
	filter     *safety.Filter
	knowledge  *capability.Knowledge
	query      *capability.Query
	capTimeout time.Duration
	logger     *zap.Logger
}

// NewSupervisor creates the orchestrator. capTimeout bounds each capability
// invocation; zero means 30s.
func NewSupervisor(model ModelPort, filter *safety.Filter, knowledge *capability.Knowledge, query *capability.Query, capTimeout time.Duration, logger *zap.Logger) *Supervisor {
	if capTimeout == 0 {
		capTimeout = 30 * time.Second
	}
	return &Supervisor{
		model:      model,
		filter:     filter,
		knowledge:  knowledge,
		query:      query,
		capTimeout: capTimeout,
		logger:     logger,
	}
}

// ProcessQuery runs the pipeline and returns the ordered conversation trace.
// The trace is built fresh per call and never shared.
func (s *Supervisor) ProcessQuery(ctx context.Context, text string) []Step {
	verdict := s.filter.CheckQuery(ctx, text)
	if !verdict.Safe {
		s.logger.Info("query rejected by safety gate",
			zap.Float64("score", verdict.Score),
			zap.Strings("issues", verdict.Issues))
		return []Step{NewStep(RoleSafety,
			"This question can't be processed: "+strings.Join(verdict.Issues, "; "),
			&Metadata{SafetyScore: verdict.Score, Reasoning: "input safety gate"})}
	}

	plan, reasoning := s.classify(ctx, text)
	s.logger.Info("query classified",
		zap.Any("plan", plan), zap.String("reasoning", reasoning))

	steps := []Step{NewStep(RoleOrchestrator,
		fmt.Sprintf("Routing to: %s", joinPlan(plan)),
		&Metadata{DelegationPlan: plan, Reasoning: reasoning, SafetyScore: verdict.Score})}

	capSteps := s.delegate(ctx, plan, text)
	steps = append(steps, capSteps...)

	steps = append(steps, s.synthesize(ctx, capSteps))
	return steps
}

// delegate invokes the planned capabilities, concurrently when more than one
// is chosen, and assembles their steps in plan order.
func (s *Supervisor) delegate(ctx context.Context, plan []capability.Name, text string) []Step {
	results := make([]Step, len(plan))

	if len(plan) == 1 {
		results[0] = s.invoke(ctx, plan[0], text)
		return results
	}

	var wg sync.WaitGroup
	for i, name := range plan {
		wg.Add(1)
		go func(i int, name capability.Name) {
			defer wg.Done()
			results[i] = s.invoke(ctx, name, text)
		}(i, name)
	}
	wg.Wait()

	// Completion order is nondeterministic, but the trace is assembled in plan
	// order; re-stamp so timestamps stay non-decreasing along the trace.
	for i := range results {
		results[i].Timestamp = time.Now()
	}
	return results
}

// invoke runs a single capability under its own timeout.
func (s *Supervisor) invoke(ctx context.Context, name capability.Name, text string) Step {
	ctx, cancel := context.WithTimeout(ctx, s.capTimeout)
	defer cancel()

	switch name {
	case capability.NameKnowledge:
		out := s.knowledge.Process(ctx, text)
		return NewStep(RoleKnowledge, out.Message, &Metadata{
			Reasoning:  out.Reasoning,
			ToolUsed:   toolName(name, out.Status == capability.StatusDegraded),
			Confidence: out.Confidence,
			Sources:    out.Sources,
		})
	case capability.NameQuery:
		out := s.query.Process(ctx, text)
		tool := "sql_simulator"
		if out.UsingLiveData {
			tool = "sql_warehouse"
		}
		if out.Status == capability.StatusDegraded {
			tool += "_degraded"
		}
		return NewStep(RoleQuery, out.Message, &Metadata{
			Reasoning:  out.Reasoning,
			ToolUsed:   tool,
			Confidence: out.Confidence,
			SQLQuery:   out.SQLQuery,
		})
	default:
		// Unknown names can't come from classify; treat as a defect made visible.
		return NewStep(RoleOrchestrator,
			fmt.Sprintf("unknown capability %q skipped", name),
			&Metadata{Confidence: 0})
	}
}

// synthesize merges capability steps into one user-facing answer, then runs
// the output safety check. Single-capability answers take the cheap path
// with no model call.
func (s *Supervisor) synthesize(ctx context.Context, capSteps []Step) Step {
	var content, reasoning, tool string
	var confidence float64

	if len(capSteps) == 1 {
		cs := capSteps[0]
		content = "Here's what I found:\n\n" + cs.Content
		confidence = cs.Metadata.Confidence
		reasoning = "single-capability answer, passed through"
		tool = cs.Metadata.ToolUsed
	} else {
		content, confidence, reasoning = s.merge(ctx, capSteps)
		tool = "synthesis"
	}

	verdict := s.filter.CheckResponse(ctx, content)
	if !verdict.Safe {
		s.logger.Warn("synthesized answer withheld by output safety check",
			zap.Float64("score", verdict.Score),
			zap.Strings("issues", verdict.Issues))
		content = complianceMessage
	}
	if verdict.Score < confidence {
		confidence = verdict.Score
	}

	return NewStep(RoleSynthesis, content, &Metadata{
		Reasoning:   reasoning,
		ToolUsed:    tool,
		Confidence:  confidence,
		SafetyScore: verdict.Score,
	})
}

// merge asks the model for one coherent business answer across capability
// outputs, falling back to a plain concatenation.
func (s *Supervisor) merge(ctx context.Context, capSteps []Step) (content string, confidence float64, reasoning string) {
	var parts []string
	sum := 0.0
	for _, cs := range capSteps {
		parts = append(parts, fmt.Sprintf("[%s]\n%s", cs.Role, cs.Content))
		sum += cs.Metadata.Confidence
	}
	mean := sum / float64(len(capSteps))

	if s.model != nil {
		prompt := fmt.Sprintf(`You are a retail analytics assistant. Combine the partial answers below
into one coherent business answer. Keep concrete figures, reconcile any
overlap, and do not invent data.

%s`, strings.Join(parts, "\n\n"))

		merged, err := s.model.Complete(ctx, "synthesis", prompt, 1024)
		if err == nil {
			return merged, mean, fmt.Sprintf("merged %d capability answers", len(capSteps))
		}
		s.logger.Warn("synthesis model failed, concatenating", zap.Error(err))
	}

	return strings.Join(parts, "\n\nAdditionally:\n\n"), synthesisFallbackConfidence,
		"fallback: capability answers concatenated without model synthesis"
}

func toolName(name capability.Name, degraded bool) string {
	tool := "knowledge_base"
	if name == capability.NameQuery {
		tool = "sql_warehouse"
	}
	if degraded {
		tool += "_degraded"
	}
	return tool
}

func joinPlan(plan []capability.Name) string {
	names := make([]string, len(plan))
	for i, n := range plan {
		names[i] = string(n)
	}
	return strings.Join(names, ", ")
}
