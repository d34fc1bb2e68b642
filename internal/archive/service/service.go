// Package service orchestrates the archive lifecycle: it validates and
// normalizes input, runs the store operation, translates storage sentinels
// into coded domain errors, and records the soft-operation activity trail.
package service

import (
	"context"
	"log/slog"
	"time"

	"opsportal/internal/activity"
	"opsportal/internal/archive/models"
	"opsportal/internal/entity"
	"opsportal/internal/platform/metrics"
	dErrors "opsportal/pkg/domain-errors"
)

// Store is the persistence dependency of the lifecycle service.
type Store interface {
	Archive(ctx context.Context, d entity.Descriptor, id, reason string) (models.ArchiveResult, error)
	Restore(ctx context.Context, d entity.Descriptor, id string) (models.RestoreResult, error)
	HardDelete(ctx context.Context, d entity.Descriptor, id, reason string) (models.HardDeleteResult, error)
	ListArchived(ctx context.Context, d *entity.Descriptor, limit int) ([]models.ArchivedEntity, error)
	Relationships(ctx context.Context, d entity.Descriptor, id string) ([]models.Relationship, error)
	Stats(ctx context.Context, kinds []entity.Descriptor) (models.Stats, error)
	Find(ctx context.Context, d entity.Descriptor, id string) (map[string]any, string, *time.Time, error)
}

// TombstoneReader resolves the deletion record of entities that no longer
// have a row.
type TombstoneReader interface {
	LatestDeletion(ctx context.Context, entityType entity.Type, targetID string) (activity.Record, error)
}

// Recorder is the best-effort activity dependency. Strict in-transaction
// writes happen inside the store; the service only records soft operations
// after they commit.
type Recorder interface {
	Record(ctx context.Context, rec activity.Record)
}

type Service struct {
	store      Store
	tombstones TombstoneReader
	recorder   Recorder
	logger     *slog.Logger
	metrics    *metrics.Metrics
	batchLimit int
}

type Option func(*Service)

// WithMetrics attaches operation counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithBatchLimit caps concurrent archives inside one batch request.
func WithBatchLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

func New(store Store, tombstones TombstoneReader, recorder Recorder, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		tombstones: tombstones,
		recorder:   recorder,
		logger:     logger,
		batchLimit: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// descriptorFor validates and resolves the kind and ID of a request.
func descriptorFor(kind, id string) (entity.Descriptor, string, error) {
	d, ok := entity.Lookup(kind)
	if !ok {
		return entity.Descriptor{}, "", dErrors.Newf(dErrors.CodeValidation, "unknown entity type %q", kind)
	}
	normalized := entity.NormalizeID(id)
	if normalized == "" {
		return entity.Descriptor{}, "", dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	return d, normalized, nil
}
