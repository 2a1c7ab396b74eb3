package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meshtest/harness/pkg/harness"
)

// RecorderSink persists harness.Interaction records into the "interactions"
// table, exercising the pgx+migrate stack beyond the DataSourceAdapter
// component itself (SPEC_FULL.md §4.9). It's an optional add-on a Scenario
// wires via a harness.Reporter wrapper, not a replacement for the
// always-present in-memory harness.Recorder.
type RecorderSink struct {
	pool *pgxpool.Pool
}

// NewRecorderSink opens a pool against dsn and applies migrations before
// returning, so the caller can start writing immediately.
func NewRecorderSink(ctx context.Context, dsn string) (*RecorderSink, error) {
	if err := RunMigrations(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("datasource/postgres: recorder sink connect: %w", err)
	}
	return &RecorderSink{pool: pool}, nil
}

// Close releases the sink's connection pool.
func (s *RecorderSink) Close() {
	s.pool.Close()
}

// Persist writes one Interaction row.
func (s *RecorderSink) Persist(ctx context.Context, in harness.Interaction) error {
	var msgType string
	var payload []byte
	if in.Message != nil {
		msgType = in.Message.Type
		payload = in.Message.Payload
	}
	var respType string
	var respPayload []byte
	if in.Response != nil {
		respType = in.Response.Type
		respPayload = in.Response.Payload
	}
	var errText *string
	if in.Err != nil {
		s := in.Err.Error()
		errText = &s
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO interactions
			(id, test_case_id, step_id, component, direction, message_type, payload,
			 response_type, response_payload, dropped, error, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		in.ID, in.TestCaseID, in.StepID, in.Component, in.Direction, msgType, payload,
		respType, respPayload, in.Dropped, errText, in.Timestamp)
	if err != nil {
		return fmt.Errorf("datasource/postgres: persist interaction: %w", err)
	}
	return nil
}
