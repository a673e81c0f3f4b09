package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rainwatch/apiserver/internal/apperror"
	"github.com/rainwatch/apiserver/internal/forecast"
	"github.com/rainwatch/apiserver/internal/inference"
	"github.com/rainwatch/apiserver/types"
	"go.uber.org/zap"
)

// Predictor returns the model output for a feature vector.
type Predictor interface {
	Predict(ctx context.Context, features types.FeatureVector) (inference.Result, error)
}

// PredictionRecorder stores and lists a principal's predictions.
type PredictionRecorder interface {
	Store(ctx context.Context, principal types.Principal, area string, snapshot types.WeatherSnapshot, probability float64, modelDecision types.Decision) (types.PredictionRecord, error)
	List(ctx context.Context, principalID string) ([]types.PredictionRecord, error)
	Delete(ctx context.Context, principalID, id string) error
}

// PredictionHandler serves prediction endpoints for authenticated users.
type PredictionHandler struct {
	guard       Guard
	predictor   Predictor
	predictions PredictionRecorder
	logger      *zap.Logger
}

func NewPredictionHandler(users Authenticator, predictor Predictor, predictions PredictionRecorder, logger *zap.Logger) *PredictionHandler {
	return &PredictionHandler{
		guard:       NewGuard(users, logger),
		predictor:   predictor,
		predictions: predictions,
		logger:      logger,
	}
}

// PredictionRouter registers prediction routes on the given router.
func PredictionRouter(r chi.Router, users Authenticator, predictor Predictor, predictions PredictionRecorder, logger *zap.Logger) {
	handler := NewPredictionHandler(users, predictor, predictions, logger)

	r.Post("/predict", handler.Predict)
	r.Get("/predictions", handler.ListPredictions)
	r.Delete("/predictions/{predictionID}", handler.DeletePrediction)
}

// Predict validates the raw weather fields, asks the model and stores the
// overridden result for today.
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.guard.Principal(w, r)
	if !ok {
		return
	}

	var raw map[string]json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	snapshot, err := forecast.ParseSnapshot(raw)
	if err != nil {
		var fieldErr *forecast.FieldError
		if errors.As(err, &fieldErr) {
			writeError(w, r, h.logger, apperror.NewValidation(fieldErr.Error()))
			return
		}
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.predictor.Predict(r.Context(), forecast.Engineer(snapshot))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	record, err := h.predictions.Store(r.Context(), principal, areaOf(raw), snapshot, result.Probability, result.Decision)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *PredictionHandler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.guard.Principal(w, r)
	if !ok {
		return
	}

	records, err := h.predictions.List(r.Context(), principal.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if records == nil {
		records = []types.PredictionRecord{}
	}
	writeJSON(w, http.StatusOK, PredictionListResponse{Items: records, Total: len(records)})
}

func (h *PredictionHandler) DeletePrediction(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.guard.Principal(w, r)
	if !ok {
		return
	}

	if err := h.predictions.Delete(r.Context(), principal.ID, chi.URLParam(r, "predictionID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "prediction deleted successfully"})
}

// areaOf reads the optional "area" (or "Area") string field.
func areaOf(raw map[string]json.RawMessage) string {
	for _, key := range []string{"area", "Area"} {
		value, ok := raw[key]
		if !ok {
			continue
		}
		var area string
		if err := json.Unmarshal(value, &area); err == nil {
			return strings.TrimSpace(area)
		}
	}
	return ""
}

type PredictionListResponse struct {
	Items []types.PredictionRecord `json:"items"`
	Total int                      `json:"total"`
}
