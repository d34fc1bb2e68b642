// Package retention removes archived entities whose grace period has run
// out. The sweep is a background loop, safe to run on every instance; a Redis
// lock elects one sweeper per interval when Redis is configured.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"opsportal/internal/entity"
	"opsportal/internal/platform/metrics"
	"opsportal/pkg/platform/sentinel"
	"opsportal/pkg/requestcontext"
)

const (
	lockKey         = "retention:sweep:lock"
	sweepGoroutines = 4
)

// SweepActor is recorded on every purge the sweep performs, so operator
// deletions and retention deletions stay distinguishable in the activity log.
var SweepActor = requestcontext.Actor{ID: "RETENTION_SWEEP", Role: "system"}

// Store is the persistence surface the sweeper needs.
type Store interface {
	DuePurge(ctx context.Context, d entity.Descriptor, now time.Time) ([]string, error)
	Purge(ctx context.Context, d entity.Descriptor, id string) error
}

type Sweeper struct {
	store      Store
	redis      *redis.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	interval   time.Duration
	instanceID string
}

func New(store Store, redisClient *redis.Client, logger *slog.Logger, m *metrics.Metrics, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:      store,
		redis:      redisClient,
		logger:     logger,
		metrics:    m,
		interval:   interval,
		instanceID: uuid.NewString(),
	}
}

// Run sweeps once immediately, then on every tick until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweepAndLog(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	purged, err := s.Sweep(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
		return
	}
	if purged > 0 {
		s.logger.InfoContext(ctx, "retention sweep complete", "purged", purged)
	}
}

// Sweep purges every archived entity whose stored deletion schedule has
// passed. Each purge is its own transaction, so a failure on one entity
// leaves the rest of the sweep unaffected and the next run retries whatever
// remains. Returns the number of entities removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if !s.acquireLock(ctx) {
		return 0, nil
	}

	now := time.Now().UTC()
	ctx = requestcontext.WithActor(ctx, SweepActor)
	ctx = requestcontext.WithTime(ctx, now)

	var purged atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepGoroutines)
	for _, d := range entity.All() {
		d := d
		g.Go(func() error {
			due, err := s.store.DuePurge(gctx, d, now)
			if err != nil {
				return err
			}
			for _, id := range due {
				removed, err := s.purgeOne(gctx, d, id)
				if err != nil {
					return err
				}
				if removed {
					purged.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(purged.Load()), err
	}

	s.metrics.AddPurged(int(purged.Load()))
	return int(purged.Load()), nil
}

func (s *Sweeper) purgeOne(ctx context.Context, d entity.Descriptor, id string) (bool, error) {
	err := s.store.Purge(ctx, d, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		// Gone already, purged by a concurrent sweep or an operator.
		return false, nil
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrInvalidState):
		// Restored or re-assigned between listing and purge. Leave it.
		s.logger.WarnContext(ctx, "skipping purge, entity state changed since listing",
			"entity_type", d.Type, "entity_id", id)
		return false, nil
	default:
		return false, err
	}
}

// acquireLock elects this instance for the current interval. Without Redis
// every instance sweeps; purges are idempotent so the duplication only costs
// queries.
func (s *Sweeper) acquireLock(ctx context.Context) bool {
	if s.redis == nil {
		return true
	}
	ok, err := s.redis.SetNX(ctx, lockKey, s.instanceID, s.interval).Result()
	if err != nil {
		s.logger.WarnContext(ctx, "sweep lock unavailable, sweeping anyway", "error", err)
		return true
	}
	return ok
}
