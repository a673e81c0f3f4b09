package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rainwatch/apiserver/types"
)

// predictionRow is the database shape of a PredictionRecord. The snapshot and
// precautions are stored as JSONB.
type predictionRow struct {
	ID               string         `db:"id"`
	PrincipalID      string         `db:"principal_id"`
	Area             string         `db:"area"`
	DayBucket        time.Time      `db:"day_bucket"`
	RecordedAt       time.Time      `db:"recorded_at"`
	Features         []byte         `db:"features"`
	ModelProbability float64        `db:"model_probability"`
	ModelDecision    types.Decision `db:"model_decision"`
	FinalDecision    types.Decision `db:"final_decision"`
	Overridden       bool           `db:"overridden"`
	RiskSummary      string         `db:"risk_summary"`
	Precautions      []byte         `db:"precautions"`
}

func toRow(record types.PredictionRecord) (predictionRow, error) {
	features, err := json.Marshal(record.Features)
	if err != nil {
		return predictionRow{}, fmt.Errorf("marshal features: %w", err)
	}
	precautions := record.Precautions
	if precautions == nil {
		precautions = []string{}
	}
	precautionsJSON, err := json.Marshal(precautions)
	if err != nil {
		return predictionRow{}, fmt.Errorf("marshal precautions: %w", err)
	}
	return predictionRow{
		ID:               record.ID,
		PrincipalID:      record.PrincipalID,
		Area:             record.Area,
		DayBucket:        record.DayBucket,
		RecordedAt:       record.Timestamp,
		Features:         features,
		ModelProbability: record.ModelProbability,
		ModelDecision:    record.ModelDecision,
		FinalDecision:    record.FinalDecision,
		Overridden:       record.Overridden,
		RiskSummary:      record.RiskSummary,
		Precautions:      precautionsJSON,
	}, nil
}

func (row predictionRow) record() (types.PredictionRecord, error) {
	record := types.PredictionRecord{
		ID:               row.ID,
		PrincipalID:      row.PrincipalID,
		Area:             row.Area,
		DayBucket:        row.DayBucket.UTC(),
		Timestamp:        row.RecordedAt,
		ModelProbability: row.ModelProbability,
		ModelDecision:    row.ModelDecision,
		FinalDecision:    row.FinalDecision,
		Overridden:       row.Overridden,
		RiskSummary:      row.RiskSummary,
	}
	if err := json.Unmarshal(row.Features, &record.Features); err != nil {
		return types.PredictionRecord{}, fmt.Errorf("unmarshal features: %w", err)
	}
	if err := json.Unmarshal(row.Precautions, &record.Precautions); err != nil {
		return types.PredictionRecord{}, fmt.Errorf("unmarshal precautions: %w", err)
	}
	return record, nil
}

type PredictionRepository struct {
	db *sqlx.DB
}

func NewPredictionRepository(db *sqlx.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Upsert inserts record or, when a record already exists for the same
// principal, area and day, replaces its fields in place. The existing id is
// kept and returned on the record.
func (r *PredictionRepository) Upsert(ctx context.Context, record types.PredictionRecord) (types.PredictionRecord, error) {
	row, err := toRow(record)
	if err != nil {
		return types.PredictionRecord{}, err
	}

	query := `
		INSERT INTO predictions (
			id, principal_id, area, day_bucket, recorded_at, features,
			model_probability, model_decision, final_decision, overridden,
			risk_summary, precautions
		) VALUES (
			:id, :principal_id, :area, :day_bucket, :recorded_at, :features,
			:model_probability, :model_decision, :final_decision, :overridden,
			:risk_summary, :precautions
		)
		ON CONFLICT (principal_id, area, day_bucket) DO UPDATE SET
			recorded_at = EXCLUDED.recorded_at,
			features = EXCLUDED.features,
			model_probability = EXCLUDED.model_probability,
			model_decision = EXCLUDED.model_decision,
			final_decision = EXCLUDED.final_decision,
			overridden = EXCLUDED.overridden,
			risk_summary = EXCLUDED.risk_summary,
			precautions = EXCLUDED.precautions
		RETURNING id`

	stmt, err := r.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return types.PredictionRecord{}, err
	}
	defer stmt.Close()

	var id string
	if err := stmt.GetContext(ctx, &id, row); err != nil {
		return types.PredictionRecord{}, err
	}
	record.ID = id
	return record, nil
}

// ListByPrincipal returns a principal's records, newest day first.
func (r *PredictionRepository) ListByPrincipal(ctx context.Context, principalID string) ([]types.PredictionRecord, error) {
	var rows []predictionRow
	query := `
		SELECT id, principal_id, area, day_bucket, recorded_at, features,
			model_probability, model_decision, final_decision, overridden,
			risk_summary, precautions
		FROM predictions
		WHERE principal_id = $1
		ORDER BY day_bucket DESC, recorded_at DESC`
	if err := r.db.SelectContext(ctx, &rows, query, principalID); err != nil {
		return nil, err
	}

	records := make([]types.PredictionRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// DeleteOwned removes a record only if it belongs to principalID.
// DeleteOwned removes the record when principalID owns it and returns what
// was deleted.
func (r *PredictionRepository) DeleteOwned(ctx context.Context, principalID, id string) (types.PredictionRecord, error) {
	var row predictionRow
	query := `
		DELETE FROM predictions
		WHERE id = $1 AND principal_id = $2
		RETURNING id, principal_id, area, day_bucket, recorded_at, features,
			model_probability, model_decision, final_decision, overridden,
			risk_summary, precautions`
	if err := r.db.GetContext(ctx, &row, query, id, principalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PredictionRecord{}, ErrNotFound
		}
		return types.PredictionRecord{}, err
	}
	return row.record()
}
