package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	analysis "tradebridge/internal/domain/entity/analysis"
	"tradebridge/internal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS analysis_results (
		result_id      UUID PRIMARY KEY,
		correlation_id TEXT NOT NULL,
		analysis_type  TEXT NOT NULL,
		payload        JSONB,
		submitted_at   TIMESTAMPTZ NOT NULL,
		completed_at   TIMESTAMPTZ NOT NULL,
		auto_triggered BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS analysis_results_type_completed_idx
		ON analysis_results (analysis_type, completed_at DESC)`,
}

var resultColumns = []string{
	"result_id",
	"correlation_id",
	"analysis_type",
	"payload",
	"submitted_at",
	"completed_at",
	"auto_triggered",
}

// Repository archives completed analysis results in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

var _ interfaces.ResultArchiveRepository = (*Repository)(nil)

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	repo := &Repository{pool: pool}
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	batch := &pgx.Batch{}
	for _, stmt := range schema {
		batch.Queue(stmt)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range schema {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("apply archive schema: %w", err)
		}
	}
	return nil
}

func (r *Repository) AddResults(ctx context.Context, results []analysis.Result) error {
	if len(results) == 0 {
		return nil
	}
	rows := make([][]interface{}, 0, len(results))
	for i := range results {
		row, err := resultRow(&results[i])
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"analysis_results"},
		resultColumns,
		pgx.CopyFromRows(rows),
	)
	return err
}

// GetLastResults returns the newest results first. An empty analysisType matches every type.
func (r *Repository) GetLastResults(ctx context.Context, analysisType string, limit int) ([]analysis.Result, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	const query = `
		SELECT result_id, correlation_id, analysis_type, payload, submitted_at, completed_at, auto_triggered
		FROM analysis_results
		WHERE $1::text = '' OR analysis_type = $1
		ORDER BY completed_at DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, analysisType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []analysis.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// resultRow assigns an ID to results that lack one and renders the COPY row.
func resultRow(res *analysis.Result) ([]interface{}, error) {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	payload, err := marshalJSON(res.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload of %s: %w", res.CorrelationID, err)
	}
	completed := res.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}
	submitted := res.SubmittedAt
	if submitted.IsZero() {
		submitted = completed
	}
	return []interface{}{
		res.ID,
		res.CorrelationID,
		res.AnalysisType,
		payload,
		submitted,
		completed,
		res.AutoTriggered,
	}, nil
}

func scanResult(row pgx.Row) (analysis.Result, error) {
	var payloadBytes []byte
	res := analysis.Result{}
	err := row.Scan(
		&res.ID,
		&res.CorrelationID,
		&res.AnalysisType,
		&payloadBytes,
		&res.SubmittedAt,
		&res.CompletedAt,
		&res.AutoTriggered,
	)
	if err != nil {
		return analysis.Result{}, err
	}
	payload, err := unmarshalPayload(payloadBytes)
	if err != nil {
		return analysis.Result{}, err
	}
	res.Payload = payload
	return res, nil
}

func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalPayload(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
