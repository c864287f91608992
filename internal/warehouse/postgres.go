package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresBackend executes statements against a Postgres warehouse through a
// pgx connection pool. Cost enforcement runs as an EXPLAIN pre-flight: the
// planner's row/width estimate is compared against the bytes ceiling before
// any data is scanned.
type PostgresBackend struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresBackend connects a pool and verifies it with a ping.
func NewPostgresBackend(dsn string, logger *zap.Logger) (*PostgresBackend, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("warehouse connected")
	return &PostgresBackend{db: pool, logger: logger}, nil
}

// Execute runs one read-only statement under the given budget.
func (b *PostgresBackend) Execute(ctx context.Context, sql string, budget Budget) (*Result, error) {
	if budget.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget.Timeout)
		defer cancel()
	}

	if budget.MaxBytesBilled > 0 {
		estimate, err := b.estimateBytes(ctx, sql)
		if err != nil {
			return nil, err
		}
		if estimate > budget.MaxBytesBilled {
			return nil, &BackendError{
				Category: CategoryCostExceeded,
				Message:  fmt.Sprintf("estimated %d bytes exceeds ceiling %d", estimate, budget.MaxBytesBilled),
			}
		}
	}

	start := time.Now()
	rows, err := b.db.Query(ctx, sql)
	if err != nil {
		return nil, categorize(err)
	}
	defer rows.Close()

	var fields []Field
	for _, fd := range rows.FieldDescriptions() {
		fields = append(fields, Field{
			Name:     fd.Name,
			Type:     typeName(fd.DataTypeOID),
			Nullable: true, // column-level nullability is not exposed on the wire
		})
	}

	result := &Result{Fields: fields, Rows: []map[string]any{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, categorize(err)
		}
		record := make(map[string]any, len(fields))
		for i, f := range fields {
			record[f.Name] = values[i]
		}
		result.Rows = append(result.Rows, record)
	}
	if err := rows.Err(); err != nil {
		return nil, categorize(err)
	}

	result.RowCount = len(result.Rows)
	result.ElapsedMillis = time.Since(start).Milliseconds()

	b.logger.Debug("statement executed",
		zap.Int("rows", result.RowCount),
		zap.Int64("elapsed_ms", result.ElapsedMillis))
	return result, nil
}

// estimateBytes asks the planner for a cost estimate without executing.
func (b *PostgresBackend) estimateBytes(ctx context.Context, sql string) (int64, error) {
	var planJSON string
	if err := b.db.QueryRow(ctx, "EXPLAIN (FORMAT JSON) "+sql).Scan(&planJSON); err != nil {
		return 0, categorize(err)
	}

	var plans []struct {
		Plan struct {
			PlanRows  float64 `json:"Plan Rows"`
			PlanWidth float64 `json:"Plan Width"`
		} `json:"Plan"`
	}
	if err := json.Unmarshal([]byte(planJSON), &plans); err != nil || len(plans) == 0 {
		// An unreadable plan is not a reason to refuse execution.
		return 0, nil
	}
	return int64(plans[0].Plan.PlanRows * plans[0].Plan.PlanWidth), nil
}

// Close shuts down the connection pool.
func (b *PostgresBackend) Close() {
	b.db.Close()
}

func categorize(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &BackendError{Category: CategoryTimeout, Message: "statement exceeded time budget", Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 42 — syntax error or access rule violation.
		if strings.HasPrefix(pgErr.Code, "42") {
			return &BackendError{Category: CategorySyntax, Message: pgErr.Message, Err: err}
		}
		// 57014 — query_canceled, fired by statement_timeout.
		if pgErr.Code == "57014" {
			return &BackendError{Category: CategoryTimeout, Message: pgErr.Message, Err: err}
		}
	}
	return &BackendError{Category: CategoryOther, Message: "execution failed", Err: err}
}

// typeName maps common Postgres type OIDs to readable names.
func typeName(oid uint32) string {
	switch oid {
	case 16:
		return "boolean"
	case 20, 21, 23:
		return "integer"
	case 700, 701, 1700:
		return "numeric"
	case 1082:
		return "date"
	case 1114, 1184:
		return "timestamp"
	default:
		return "text"
	}
}

// PostgresSchema introspects information_schema and renders a compact
// textual description suitable for an LLM prompt.
type PostgresSchema struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresSchema creates a schema provider over an existing backend pool.
func NewPostgresSchema(backend *PostgresBackend, logger *zap.Logger) *PostgresSchema {
	return &PostgresSchema{db: backend.db, logger: logger}
}

// Describe lists all public tables with their columns and types.
func (s *PostgresSchema) Describe(ctx context.Context) (string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return "", fmt.Errorf("introspect schema: %w", err)
	}
	defer rows.Close()

	columns := make(map[string][]string)
	for rows.Next() {
		var table, column, dtype, nullable string
		if err := rows.Scan(&table, &column, &dtype, &nullable); err != nil {
			return "", fmt.Errorf("scan schema row: %w", err)
		}
		col := column + " " + strings.ToUpper(dtype)
		if nullable == "NO" {
			col += " NOT NULL"
		}
		columns[table] = append(columns[table], col)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("read schema rows: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("no tables found in public schema")
	}

	tables := make([]string, 0, len(columns))
	for t := range columns {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	var b strings.Builder
	b.WriteString("Tables:\n")
	for _, t := range tables {
		fmt.Fprintf(&b, "  %s(%s)\n", t, strings.Join(columns[t], ", "))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
