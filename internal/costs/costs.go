// Package costs owns the shared, append-only Cost Record store (§3
// Ownership) and the model schema-compatibility cache's durable backing.
package costs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bareyan/EduViz-sub001/internal/database"
	"github.com/bareyan/EduViz-sub001/internal/models"
)

// Store is the Postgres-backed Cost Record store. It implements
// llmgateway.CostSink.
type Store struct {
	db *database.DB
}

// NewStore wraps db for cost-record bookkeeping.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Record appends one LLM call's accounted cost. Append-only: no update or
// delete path exists, so a job's cost history can never be silently
// rewritten (P8).
func (s *Store) Record(ctx context.Context, jobID, model string, inputTokens, outputTokens int, dollars float64) error {
	const query = `
		INSERT INTO cost_records (job_id, model, input_tokens, output_tokens, dollars)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.db.ExecContext(ctx, query, jobID, model, inputTokens, outputTokens, dollars); err != nil {
		return fmt.Errorf("costs: insert record: %w", err)
	}
	return nil
}

// Summary aggregates every cost record for jobID.
func (s *Store) Summary(ctx context.Context, jobID string) (models.CostSummary, error) {
	const totalsQuery = `
		SELECT COALESCE(SUM(dollars), 0), COUNT(*)
		FROM cost_records
		WHERE job_id = $1
	`
	var summary models.CostSummary
	summary.ByModel = make(map[string]float64)

	if err := s.db.QueryRowContext(ctx, totalsQuery, jobID).Scan(&summary.TotalDollars, &summary.TotalCalls); err != nil {
		return summary, fmt.Errorf("costs: query totals: %w", err)
	}

	const byModelQuery = `
		SELECT model, SUM(dollars)
		FROM cost_records
		WHERE job_id = $1
		GROUP BY model
	`
	rows, err := s.db.QueryContext(ctx, byModelQuery, jobID)
	if err != nil {
		return summary, fmt.Errorf("costs: query by model: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var model string
		var dollars float64
		if err := rows.Scan(&model, &dollars); err != nil {
			return summary, fmt.Errorf("costs: scan by-model row: %w", err)
		}
		summary.ByModel[model] = dollars
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("costs: iterate by-model rows: %w", err)
	}

	return summary, nil
}

// SchemaCompatCache persists, across worker restarts, which models are
// known not to support a JSON response_schema (the gateway's in-memory
// cache is per-process and starts cold every restart).
type SchemaCompatCache struct {
	db *database.DB
}

// NewSchemaCompatCache wraps db for durable schema-rejection bookkeeping.
func NewSchemaCompatCache(db *database.DB) *SchemaCompatCache {
	return &SchemaCompatCache{db: db}
}

// IsRejected reports whether model is known to reject response_schema.
func (c *SchemaCompatCache) IsRejected(ctx context.Context, model string) (bool, error) {
	const query = `SELECT schema_rejected FROM schema_compat_cache WHERE model = $1`
	var rejected bool
	err := c.db.QueryRowContext(ctx, query, model).Scan(&rejected)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("costs: query schema compat: %w", err)
	}
	return rejected, nil
}

// MarkRejected records that model rejected a response_schema call.
func (c *SchemaCompatCache) MarkRejected(ctx context.Context, model string) error {
	const query = `
		INSERT INTO schema_compat_cache (model, schema_rejected, updated_at)
		VALUES ($1, true, now())
		ON CONFLICT (model) DO UPDATE
		SET schema_rejected = true, updated_at = now()
	`
	if _, err := c.db.ExecContext(ctx, query, model); err != nil {
		return fmt.Errorf("costs: mark schema rejected: %w", err)
	}
	return nil
}
