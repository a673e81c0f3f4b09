package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rainwatch/apiserver/internal/apperror"
	"github.com/rainwatch/apiserver/internal/forecast"
	"github.com/rainwatch/apiserver/internal/store"
	"github.com/rainwatch/apiserver/types"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// DefaultArea labels predictions submitted without an area.
const DefaultArea = "unknown"

// PredictionRepository defines persistence operations for prediction records.
type PredictionRepository interface {
	Upsert(ctx context.Context, record types.PredictionRecord) (types.PredictionRecord, error)
	ListByPrincipal(ctx context.Context, principalID string) ([]types.PredictionRecord, error)
	DeleteOwned(ctx context.Context, principalID, id string) (types.PredictionRecord, error)
}

// EventPublisher announces stored and deleted predictions.
type EventPublisher interface {
	PublishPredictionStored(ctx context.Context, record types.PredictionRecord) error
	PublishPredictionDeleted(ctx context.Context, record types.PredictionRecord) error
}

// RiskAdvisor produces the risk summary and precautions for a snapshot.
type RiskAdvisor interface {
	Advise(s types.WeatherSnapshot) (string, []string)
}

// PredictionService records at most one prediction per principal, area and
// UTC day.
type PredictionService struct {
	repo    PredictionRepository
	advisor RiskAdvisor
	events  EventPublisher
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewPredictionService constructs the service. events may be nil.
func NewPredictionService(repo PredictionRepository, advisor RiskAdvisor, events EventPublisher, logger *zap.Logger) *PredictionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PredictionService{
		repo:    repo,
		advisor: advisor,
		events:  events,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return ksuid.New().String() },
	}
}

// NormalizeArea trims area and substitutes DefaultArea for an empty value.
func NormalizeArea(area string) string {
	area = strings.TrimSpace(area)
	if area == "" {
		return DefaultArea
	}
	return area
}

// DayBucket returns the UTC calendar day of t.
func DayBucket(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Store applies the deterministic overrides to the model output and writes
// the record, replacing any record for the same principal, area and day.
// A storage failure fails the whole call.
func (s *PredictionService) Store(ctx context.Context, principal types.Principal, area string, snapshot types.WeatherSnapshot, probability float64, modelDecision types.Decision) (types.PredictionRecord, error) {
	if !modelDecision.Valid() {
		return types.PredictionRecord{}, apperror.NewValidation("model decision must be Yes or No")
	}
	if probability < 0 || probability > 1 {
		return types.PredictionRecord{}, apperror.NewValidation("model probability must be between 0 and 1")
	}

	final, overridden := forecast.Decide(snapshot, modelDecision)
	summary, precautions := s.advisor.Advise(snapshot)

	now := s.now().UTC()
	record := types.PredictionRecord{
		ID:               s.newID(),
		PrincipalID:      principal.ID,
		Area:             NormalizeArea(area),
		DayBucket:        DayBucket(now),
		Timestamp:        now,
		Features:         snapshot,
		ModelProbability: probability,
		ModelDecision:    modelDecision,
		FinalDecision:    final,
		Overridden:       overridden,
		RiskSummary:      summary,
		Precautions:      precautions,
	}

	stored, err := s.repo.Upsert(ctx, record)
	if err != nil {
		return types.PredictionRecord{}, apperror.NewStorage(err)
	}

	if s.events != nil {
		if err := s.events.PublishPredictionStored(ctx, stored); err != nil {
			s.logger.Warn("failed to publish prediction event",
				zap.String("prediction_id", stored.ID),
				zap.Error(err),
			)
		}
	}
	return stored, nil
}

func (s *PredictionService) List(ctx context.Context, principalID string) ([]types.PredictionRecord, error) {
	records, err := s.repo.ListByPrincipal(ctx, principalID)
	if err != nil {
		return nil, apperror.NewStorage(err)
	}
	return records, nil
}

// Delete removes a record owned by principalID. Records of other principals
// are reported as not found.
func (s *PredictionService) Delete(ctx context.Context, principalID, id string) error {
	deleted, err := s.repo.DeleteOwned(ctx, principalID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperror.NewNotFound("prediction not found")
		}
		return apperror.NewStorage(err)
	}

	if s.events != nil {
		if err := s.events.PublishPredictionDeleted(ctx, deleted); err != nil {
			s.logger.Warn("failed to publish prediction event",
				zap.String("prediction_id", deleted.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}
