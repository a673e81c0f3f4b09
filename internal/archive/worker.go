// Package archive exports stored predictions to object storage as a dataset
// for offline model retraining.
package archive

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rainwatch/apiserver/internal/mq"
	"github.com/rainwatch/apiserver/internal/storage"
	"github.com/rainwatch/apiserver/types"
	"go.uber.org/zap"
)

// ObjectKey is predictions/<day>/<principal>/<area>.json. One object exists
// per principal, area and day, matching the table's uniqueness.
func ObjectKey(record types.PredictionRecord) string {
	return fmt.Sprintf("predictions/%s/%s/%s.json",
		record.DayBucket.UTC().Format(time.DateOnly),
		url.PathEscape(record.PrincipalID),
		url.PathEscape(record.Area),
	)
}

// Worker consumes prediction events and keeps object storage in step with
// the predictions table.
type Worker struct {
	events  mq.Backend
	objects storage.ObjectStorage
	channel string
	logger  *zap.Logger
}

func NewWorker(events mq.Backend, objects storage.ObjectStorage, channel string, logger *zap.Logger) *Worker {
	if channel == "" {
		channel = mq.EventPredictionStored
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{events: events, objects: objects, channel: channel, logger: logger}
}

// Run blocks until ctx ends or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.objects.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %s: %w", w.objects.Bucket(), err)
	}
	w.logger.Info("archive worker started",
		zap.String("channel", w.channel),
		zap.String("bucket", w.objects.Bucket()),
	)
	return w.events.Subscribe(ctx, w.channel, w.Handle)
}

// Handle applies one event. Malformed events are dropped; storage errors
// are returned so the broker redelivers.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	event, err := mq.DecodePredictionEvent(msg)
	if err != nil {
		w.logger.Warn("dropping malformed event", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}

	if event.Event == mq.EventPredictionDeleted {
		return w.remove(ctx, msg, event.Record)
	}
	return w.archive(ctx, msg, event.Record)
}

func (w *Worker) archive(ctx context.Context, msg mq.Message, record types.PredictionRecord) error {
	key := ObjectKey(record)

	var existing types.PredictionRecord
	if err := storage.GetJSON(ctx, w.objects, key, &existing); err == nil && existing.Timestamp.After(record.Timestamp) {
		w.logger.Debug("skipping stale event", zap.String("key", key), zap.String("message_id", msg.ID))
		return nil
	}

	if err := storage.PutJSON(ctx, w.objects, key, record); err != nil {
		w.logger.Error("failed to archive prediction", zap.String("key", key), zap.Error(err))
		return err
	}
	w.logger.Debug("archived prediction", zap.String("key", key), zap.String("prediction_id", record.ID))
	return nil
}

// remove deletes the archived object only while it still holds the deleted
// record. A later prediction for the same day carries a new id and is kept.
func (w *Worker) remove(ctx context.Context, msg mq.Message, record types.PredictionRecord) error {
	key := ObjectKey(record)

	var existing types.PredictionRecord
	if err := storage.GetJSON(ctx, w.objects, key, &existing); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil
		}
		w.logger.Error("failed to read archived prediction", zap.String("key", key), zap.Error(err))
		return err
	}
	if existing.ID != record.ID {
		w.logger.Debug("archived object replaced, keeping it", zap.String("key", key), zap.String("message_id", msg.ID))
		return nil
	}

	if err := w.objects.Delete(ctx, key); err != nil {
		w.logger.Error("failed to remove archived prediction", zap.String("key", key), zap.Error(err))
		return err
	}
	w.logger.Debug("removed archived prediction", zap.String("key", key), zap.String("prediction_id", record.ID))
	return nil
}
