package warehouse

import (
	"math/rand"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Simulator produces illustrative result sets when no live backend is
// available or a generated statement could not be executed. The shape of the
// output is deterministic per detected intent; only cell values vary. It
// never touches a live backend and never fails.
type Simulator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger *zap.Logger
}

// NewSimulator creates a simulator seeded from the given source.
func NewSimulator(seed int64, logger *zap.Logger) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed)), logger: logger}
}

// IntentRule maps statement keywords to a simulation intent. Ordered:
// the first matching rule wins. Exported so tests can enumerate coverage.
type IntentRule struct {
	Intent   string
	Keywords []string
}

// IntentRules is the keyword table used to pick a result shape from a
// (possibly empty) SQL statement. A starting configuration, not a contract.
var IntentRules = []IntentRule{
	{Intent: "sales", Keywords: []string{"sale", "revenue", "total_amount", "sum(", "gmv"}},
	{Intent: "segments", Keywords: []string{"customer", "segment", "region", "cohort"}},
	{Intent: "inventory", Keywords: []string{"product", "inventory", "stock", "sku"}},
}

// DetectIntent returns the simulation intent for a statement, or "generic"
// when nothing matches (including an empty statement).
func DetectIntent(sql string) string {
	lowered := strings.ToLower(sql)
	for _, rule := range IntentRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				return rule.Intent
			}
		}
	}
	return "generic"
}

// Generate builds an illustrative result for the statement. A nil-equivalent
// (empty) statement is valid and yields the generic shape.
func (s *Simulator) Generate(sql string) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent := DetectIntent(sql)
	s.logger.Debug("simulating result", zap.String("intent", intent))

	switch intent {
	case "sales":
		return s.salesResult()
	case "segments":
		return s.segmentsResult()
	case "inventory":
		return s.inventoryResult()
	default:
		return s.genericResult()
	}
}

func (s *Simulator) salesResult() *Result {
	fields := []Field{
		{Name: "month", Type: "text", Nullable: false},
		{Name: "total_sales", Type: "numeric", Nullable: false},
		{Name: "order_count", Type: "integer", Nullable: false},
	}
	months := []string{"April", "May", "June"}
	rows := make([]map[string]any, 0, len(months))
	for _, m := range months {
		rows = append(rows, map[string]any{
			"month":       m,
			"total_sales": 50000 + s.rng.Float64()*150000,
			"order_count": 400 + s.rng.Intn(1200),
		})
	}
	return s.finish(fields, rows)
}

func (s *Simulator) segmentsResult() *Result {
	fields := []Field{
		{Name: "segment", Type: "text", Nullable: false},
		{Name: "customer_count", Type: "integer", Nullable: false},
		{Name: "avg_order_value", Type: "numeric", Nullable: true},
	}
	segments := []string{"loyal", "occasional", "new", "at-risk"}
	rows := make([]map[string]any, 0, len(segments))
	for _, seg := range segments {
		rows = append(rows, map[string]any{
			"segment":         seg,
			"customer_count":  100 + s.rng.Intn(2000),
			"avg_order_value": 20 + s.rng.Float64()*180,
		})
	}
	return s.finish(fields, rows)
}

func (s *Simulator) inventoryResult() *Result {
	fields := []Field{
		{Name: "product", Type: "text", Nullable: false},
		{Name: "category", Type: "text", Nullable: false},
		{Name: "stock_level", Type: "integer", Nullable: false},
	}
	products := [][2]string{
		{"Trail Runner Sneakers", "footwear"},
		{"Everyday Tote", "accessories"},
		{"Slim Fit Chinos", "apparel"},
		{"Wool Blend Scarf", "accessories"},
	}
	rows := make([]map[string]any, 0, len(products))
	for _, p := range products {
		rows = append(rows, map[string]any{
			"product":     p[0],
			"category":    p[1],
			"stock_level": s.rng.Intn(500),
		})
	}
	return s.finish(fields, rows)
}

func (s *Simulator) genericResult() *Result {
	fields := []Field{
		{Name: "metric", Type: "text", Nullable: false},
		{Name: "value", Type: "numeric", Nullable: false},
	}
	metrics := []string{"daily_visitors", "conversion_rate", "avg_basket_size"}
	rows := make([]map[string]any, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, map[string]any{
			"metric": m,
			"value":  s.rng.Float64() * 1000,
		})
	}
	return s.finish(fields, rows)
}

func (s *Simulator) finish(fields []Field, rows []map[string]any) *Result {
	return &Result{
		Rows:          rows,
		Fields:        fields,
		RowCount:      len(rows),
		ElapsedMillis: int64(1 + s.rng.Intn(40)),
	}
}
