package capability

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/lumastack/retail-copilot/internal/warehouse"
	"go.uber.org/zap"
)

const (
	queryLiveConfidence      = 0.85
	querySimulatedConfidence = 0.65
	queryDegradedConfidence  = 0.5
)

// QueryConfig tunes the query capability's guardrails.
type QueryConfig struct {
	Budget      warehouse.Budget
	LargeTables []string
	RecencyDays int
	RowLimit    int
}

// Query turns a business question into a single read-only SQL statement,
// validates it, executes it under a cost and time budget, and narrates the
// result. Every failure path falls back to the simulator so a user-facing
// answer is always produced.
type Query struct {
	model   ModelPort
	backend warehouse.Backend        // nil: simulation only
	schema  warehouse.SchemaProvider // nil: built-in fallback schema
	sim     *warehouse.Simulator
	cfg     QueryConfig
	logger  *zap.Logger

	// schemaMu guards the write-once schema cache. Only a successful fetch
	// is cached; the fallback text is used per-call without caching.
	schemaMu     sync.Mutex
	cachedSchema string
}

// NewQuery creates the query capability.
func NewQuery(model ModelPort, backend warehouse.Backend, schema warehouse.SchemaProvider, sim *warehouse.Simulator, cfg QueryConfig, logger *zap.Logger) *Query {
	return &Query{
		model:   model,
		backend: backend,
		schema:  schema,
		sim:     sim,
		cfg:     cfg,
		logger:  logger,
	}
}

// Process answers the query with warehouse data, live or simulated.
func (q *Query) Process(ctx context.Context, query string) QueryOutput {
	schemaText := q.schemaText(ctx)

	narrative, statement, err := q.generate(ctx, query, schemaText)
	if err != nil {
		q.logger.Warn("query model call failed", zap.Error(err))
		result := q.sim.Generate("")
		return QueryOutput{
			Message:       "I couldn't generate a query for that question right now, so here is an illustrative view instead.\n\n" + narrateResult(result),
			Reasoning:     "model unavailable; illustrative data shown",
			Confidence:    queryDegradedConfidence,
			Result:        result,
			UsingLiveData: false,
			Status:        StatusDegraded,
		}
	}

	if !ValidateStatement(statement) {
		q.logger.Warn("generated statement rejected", zap.String("statement", statement))
		result := q.sim.Generate("")
		return QueryOutput{
			Message:       narrative + "\n\n" + narrateResult(result),
			Reasoning:     "generated statement was not a plain SELECT and was rejected; illustrative data shown",
			Confidence:    querySimulatedConfidence,
			Result:        result,
			UsingLiveData: false,
			Status:        StatusOK,
		}
	}

	statement = q.Tighten(statement)

	result, live, reason := q.execute(ctx, statement)
	confidence := queryLiveConfidence
	if !live {
		confidence = querySimulatedConfidence
	}
	return QueryOutput{
		Message:       narrative + "\n\n" + narrateResult(result),
		Reasoning:     reason,
		Confidence:    confidence,
		SQLQuery:      statement,
		Result:        result,
		UsingLiveData: live,
		Status:        StatusOK,
	}
}

// schemaText returns the cached schema description, fetching it on first use.
// Provider failure yields the built-in fallback without caching, so a later
// call can still pick up the real schema.
func (q *Query) schemaText(ctx context.Context) string {
	q.schemaMu.Lock()
	defer q.schemaMu.Unlock()
	if q.cachedSchema != "" {
		return q.cachedSchema
	}
	if q.schema == nil {
		return warehouse.FallbackSchema
	}
	desc, err := q.schema.Describe(ctx)
	if err != nil {
		q.logger.Warn("schema provider unavailable, using fallback schema", zap.Error(err))
		return warehouse.FallbackSchema
	}
	q.cachedSchema = desc
	return desc
}

// generate asks the model for one SELECT statement plus narrative sections
// and parses them out with a tolerant strategy.
func (q *Query) generate(ctx context.Context, query, schemaText string) (narrative, statement string, err error) {
	prompt := fmt.Sprintf(`You are a retail data analyst. Given the warehouse schema and a business
question, produce exactly one read-only SQL SELECT statement and a short
narrative. Use this exact format:

SQL:
<one SELECT statement>
ANALYSIS:
<what the query measures>
INSIGHT:
<what the numbers likely mean for the business>
RECOMMENDATION:
<one concrete next step>

Schema:
%s

Question: %s`, schemaText, query)

	if q.model == nil {
		return "", "", errNoModel
	}
	raw, err := q.model.Complete(ctx, "query", prompt, 1024)
	if err != nil {
		return "", "", err
	}

	statement = ExtractStatement(raw)
	narrative = extractNarrative(raw)
	if narrative == "" {
		narrative = strings.TrimSpace(raw)
	}
	return narrative, statement, nil
}

// sectionRe matches the labeled sections of the generation format.
var sectionRe = regexp.MustCompile(`(?is)(analysis|insight|recommendation):\s*(.+?)(?:\n[A-Z]+:|\z)`)

func extractNarrative(raw string) string {
	var parts []string
	for _, m := range sectionRe.FindAllStringSubmatch(raw, -1) {
		section := strings.TrimSpace(m[2])
		if section != "" {
			parts = append(parts, section)
		}
	}
	return strings.Join(parts, "\n\n")
}

// sqlLabelRe finds the SQL: label case-insensitively. Byte offsets come from
// the raw string, so non-ASCII text before the label cannot misalign them.
var sqlLabelRe = regexp.MustCompile(`(?i)sql:`)

// sectionEndRe marks where the SQL: section ends.
var sectionEndRe = regexp.MustCompile(`(?m)^\s*(?i:analysis|insight|recommendation):`)

// fenceRe strips markdown code fences around SQL.
var fenceRe = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")

// wsRe collapses runs of whitespace, including newlines, to single spaces.
var wsRe = regexp.MustCompile(`\s+`)

// ExtractStatement pulls the SQL statement out of a model response:
// the SQL: section if present, otherwise the first fenced block, otherwise
// the first line starting with SELECT. Fences are stripped, whitespace is
// collapsed, and trailing statement separators removed.
func ExtractStatement(raw string) string {
	candidate := ""

	if loc := sqlLabelRe.FindStringIndex(raw); loc != nil {
		rest := raw[loc[1]:]
		// Section ends at the next labeled header.
		if end := sectionEndRe.FindStringIndex(rest); end != nil {
			rest = rest[:end[0]]
		}
		candidate = rest
	} else if m := fenceRe.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	} else {
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), "SELECT") {
				candidate = line
				break
			}
		}
	}

	if m := fenceRe.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	}
	candidate = strings.ReplaceAll(candidate, "```", "")
	candidate = wsRe.ReplaceAllString(candidate, " ")
	candidate = strings.TrimSpace(candidate)
	candidate = strings.TrimRight(candidate, "; ")
	return candidate
}

// DisallowedKeywords are rejected anywhere in a generated statement, even
// when it nominally starts with SELECT. Defense in depth against
// multi-statement injection; not a substitute for parameterization.
var DisallowedKeywords = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "CREATE", "ALTER", "TRUNCATE",
}

var disallowRe = func() *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(` + strings.Join(DisallowedKeywords, "|") + `)\b`)
}()

// ValidateStatement reports whether a generated statement may be executed:
// it must begin with SELECT and contain no disallowed keyword anywhere.
func ValidateStatement(statement string) bool {
	if statement == "" {
		return false
	}
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(statement)), "SELECT") {
		return false
	}
	return !disallowRe.MatchString(statement)
}

// recencyColumns maps known large tables to their date column for the
// cost-control rewrite.
var recencyColumns = map[string]string{
	"orders":       "order_date",
	"transactions": "txn_date",
	"events":       "event_date",
}

// Tighten applies the cost-control rewrite: a row cap when the statement has
// none, and a recency predicate for bare scans of known large tables. It
// never alters the statement's target tables or columns.
func (q *Query) Tighten(statement string) string {
	lowered := strings.ToLower(statement)

	// Recency predicate only for bare scans: anything with its own WHERE,
	// grouping, or ordering is left alone to avoid mangling clause order.
	bare := !strings.Contains(lowered, " where ") &&
		!strings.Contains(lowered, " group by ") &&
		!strings.Contains(lowered, " order by ") &&
		!strings.Contains(lowered, " limit ")
	if bare {
		for _, table := range q.cfg.LargeTables {
			col, known := recencyColumns[table]
			if !known {
				continue
			}
			if regexp.MustCompile(`(?i)\bfrom\s+` + table + `\b`).MatchString(statement) {
				statement = fmt.Sprintf("%s WHERE %s >= CURRENT_DATE - INTERVAL '%d days'",
					statement, col, q.cfg.RecencyDays)
				break
			}
		}
	}

	if !strings.Contains(strings.ToLower(statement), " limit ") && q.cfg.RowLimit > 0 {
		statement = fmt.Sprintf("%s LIMIT %d", statement, q.cfg.RowLimit)
	}
	return statement
}

// execute runs the statement against the live backend, falling back to the
// simulator with a category-specific reason on any failure.
func (q *Query) execute(ctx context.Context, statement string) (result *warehouse.Result, live bool, reason string) {
	if q.backend == nil {
		return q.sim.Generate(statement), false, "no live warehouse configured; illustrative data shown"
	}

	result, err := q.backend.Execute(ctx, statement, q.cfg.Budget)
	if err == nil {
		return result, true, "executed against the live warehouse"
	}

	q.logger.Warn("warehouse execution failed, simulating",
		zap.String("category", string(warehouse.CategoryOf(err))), zap.Error(err))

	switch warehouse.CategoryOf(err) {
	case warehouse.CategoryCostExceeded:
		reason = "the query would scan more data than the cost ceiling allows; try narrowing the date range. Illustrative data shown"
	case warehouse.CategoryTimeout:
		reason = "the query exceeded its time budget; illustrative data shown"
	case warehouse.CategorySyntax:
		reason = "the generated SQL was rejected by the warehouse; illustrative data shown"
	default:
		reason = "the warehouse was unavailable; illustrative data shown"
	}
	return q.sim.Generate(statement), false, reason
}

// narrateResult renders a result set as a short readable summary.
func narrateResult(result *warehouse.Result) string {
	if result == nil || result.RowCount == 0 {
		return "No matching data was found for this question."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Returned %d row(s) in %d ms:\n", result.RowCount, result.ElapsedMillis)
	shown := result.RowCount
	if shown > 5 {
		shown = 5
	}
	for i := 0; i < shown; i++ {
		row := result.Rows[i]
		var cells []string
		for _, f := range result.Fields {
			cells = append(cells, fmt.Sprintf("%s=%v", f.Name, row[f.Name]))
		}
		b.WriteString("  " + strings.Join(cells, ", ") + "\n")
	}
	if result.RowCount > shown {
		fmt.Fprintf(&b, "  ... and %d more\n", result.RowCount-shown)
	}
	return strings.TrimRight(b.String(), "\n")
}
