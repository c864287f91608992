package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Category classifies backend execution failures. The query capability
// branches its fallback narration on this.
type Category string

const (
	CategoryCostExceeded Category = "cost_exceeded"
	CategorySyntax       Category = "syntax_error"
	CategoryTimeout      Category = "timeout"
	CategoryOther        Category = "other"
)

// BackendError is a categorized execution failure.
type BackendError struct {
	Category Category
	Message  string
	Err      error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *BackendError) Unwrap() error { return e.Err }

// CategoryOf extracts the failure category from an error chain,
// defaulting to CategoryOther.
func CategoryOf(err error) Category {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Category
	}
	return CategoryOther
}

// Budget bounds a single statement execution.
type Budget struct {
	// MaxBytesBilled is the hard ceiling on estimated bytes scanned.
	MaxBytesBilled int64
	// Timeout is the per-statement time budget.
	Timeout time.Duration
}

// Field describes one column of a result set.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Result is a flat, ordered result set.
type Result struct {
	Rows          []map[string]any `json:"rows"`
	Fields        []Field          `json:"fields"`
	RowCount      int              `json:"row_count"`
	ElapsedMillis int64            `json:"elapsed_millis"`
}

// Backend executes read-only SQL against a data warehouse under a budget.
type Backend interface {
	Execute(ctx context.Context, sql string, budget Budget) (*Result, error)
}

// SchemaProvider describes the tables available to generated SQL.
type SchemaProvider interface {
	Describe(ctx context.Context) (string, error)
}

// FallbackSchema is the built-in schema description used when no schema
// provider is reachable. It mirrors the illustrative retail warehouse layout.
const FallbackSchema = `Tables:
  orders(order_id BIGINT, customer_id BIGINT, order_date DATE, status TEXT, total_amount NUMERIC)
  order_items(order_id BIGINT, product_id BIGINT, quantity INT, unit_price NUMERIC)
  products(product_id BIGINT, name TEXT, category TEXT, price NUMERIC, stock_level INT)
  customers(customer_id BIGINT, name TEXT, segment TEXT, region TEXT, signup_date DATE)
  transactions(txn_id BIGINT, order_id BIGINT, amount NUMERIC, method TEXT, txn_date TIMESTAMP)`

// StaticSchema is a SchemaProvider that always returns a fixed description.
type StaticSchema struct {
	Text string
}

// Describe returns the fixed schema text.
func (s *StaticSchema) Describe(_ context.Context) (string, error) {
	if s.Text == "" {
		return FallbackSchema, nil
	}
	return s.Text, nil
}
