package activity

import (
	"context"
	"fmt"
	"log/slog"

	"opsportal/internal/platform/metrics"
	"opsportal/pkg/requestcontext"
)

// Appender is the storage dependency of the Recorder.
type Appender interface {
	Append(ctx context.Context, rec Record) error
}

// Recorder writes activity records in two modes. Record is best effort:
// archive and restore must not fail because the log is down, so failures are
// logged and counted but swallowed. RecordStrict propagates the error and is
// used inside the hard-delete transaction, where a deletion without its audit
// record must not commit.
type Recorder struct {
	store   Appender
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewRecorder(store Appender, logger *slog.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{store: store, logger: logger, metrics: m}
}

// Record writes rec, swallowing any storage failure.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if err := r.store.Append(ctx, r.fill(ctx, rec)); err != nil {
		r.metrics.IncActivityWriteError()
		r.logger.WarnContext(ctx, "activity write failed, continuing",
			"error", err,
			"activity_type", rec.ActivityType,
			"target_id", rec.TargetID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// RecordStrict writes rec and propagates any storage failure. Callers run it
// inside their transaction so the record commits with the operation.
func (r *Recorder) RecordStrict(ctx context.Context, rec Record) error {
	if err := r.store.Append(ctx, r.fill(ctx, rec)); err != nil {
		return fmt.Errorf("record %s activity: %w", rec.ActivityType, err)
	}
	return nil
}

func (r *Recorder) fill(ctx context.Context, rec Record) Record {
	if rec.ActorID == "" {
		actor := requestcontext.ActorFrom(ctx)
		rec.ActorID = actor.ID
		rec.ActorRole = actor.Role
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = requestcontext.Now(ctx)
	}
	return rec
}
