package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"opsportal/internal/activity"
	"opsportal/internal/archive/models"
	"opsportal/internal/entity"
	dErrors "opsportal/pkg/domain-errors"
	"opsportal/pkg/platform/sentinel"
)

// Archive soft-deletes one entity. The entity disappears from active
// listings, its children move to the unassigned pool, and the grace-period
// clock starts.
func (s *Service) Archive(ctx context.Context, kind, id, reason string) (models.ArchiveResult, error) {
	d, normalized, err := descriptorFor(kind, id)
	if err != nil {
		return models.ArchiveResult{}, err
	}

	result, err := s.store.Archive(ctx, d, normalized, reason)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.ArchiveResult{}, dErrors.New(dErrors.CodeNotFound, "entity not found or already archived")
		}
		return models.ArchiveResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "archive entity")
	}

	s.metrics.IncArchived(result.EntityType)
	s.metrics.AddUnassigned(result.ChildrenUnassigned)

	meta := map[string]any{"childrenUnassigned": result.ChildrenUnassigned}
	if reason != "" {
		meta["reason"] = reason
	}
	s.recorder.Record(ctx, activity.Record{
		ActivityType: activity.TypeArchived(d.Type),
		Description:  fmt.Sprintf("Archived %s %s", d.Type, result.EntityID),
		TargetID:     result.EntityID,
		TargetType:   result.EntityType,
		Metadata:     meta,
	})
	return result, nil
}

// Restore returns an archived entity to the active pool, unassigned. Old
// parent and child links are never replayed; re-parenting is an explicit
// follow-up action in the relevant domain, not a side effect of restore.
// Restoring an entity that was never archived just stamps the restore fields
// and succeeds.
func (s *Service) Restore(ctx context.Context, kind, id string) (models.RestoreResult, error) {
	d, normalized, err := descriptorFor(kind, id)
	if err != nil {
		return models.RestoreResult{}, err
	}

	result, err := s.store.Restore(ctx, d, normalized)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.RestoreResult{}, dErrors.New(dErrors.CodeNotFound, "entity not found")
		}
		return models.RestoreResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "restore entity")
	}

	s.metrics.IncRestored(result.EntityType)
	s.recorder.Record(ctx, activity.Record{
		ActivityType: activity.TypeRestored(d.Type),
		Description:  fmt.Sprintf("Restored %s %s to the unassigned pool", d.Type, result.EntityID),
		TargetID:     result.EntityID,
		TargetType:   result.EntityType,
	})
	return result, nil
}

// HardDelete permanently removes an archived entity. Requires explicit
// confirmation, an archived entity, and no remaining children; the tombstone
// audit record is committed by the store in the same transaction as the
// delete.
func (s *Service) HardDelete(ctx context.Context, kind, id, reason string, confirm bool) (models.HardDeleteResult, error) {
	if !confirm {
		return models.HardDeleteResult{}, dErrors.New(dErrors.CodeBadRequest, "permanent deletion requires confirmation")
	}
	d, normalized, err := descriptorFor(kind, id)
	if err != nil {
		return models.HardDeleteResult{}, err
	}

	result, err := s.store.HardDelete(ctx, d, normalized, reason)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return models.HardDeleteResult{}, dErrors.New(dErrors.CodeNotFound, "entity not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return models.HardDeleteResult{}, dErrors.New(dErrors.CodeConflict, "entity must be archived before permanent deletion")
		case errors.Is(err, sentinel.ErrConflict):
			return models.HardDeleteResult{}, dErrors.New(dErrors.CodeConflict, "entity still has assigned children")
		}
		return models.HardDeleteResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "permanently delete entity")
	}

	s.metrics.IncHardDeleted(result.EntityType)
	return result, nil
}

// BatchArchive archives several entities with per-item outcomes. One bad item
// never fails the batch; callers inspect the outcome list.
func (s *Service) BatchArchive(ctx context.Context, items []models.BatchItem, reason string) (models.BatchResult, error) {
	if len(items) == 0 {
		return models.BatchResult{}, dErrors.New(dErrors.CodeValidation, "batch is empty")
	}

	outcomes := make([]models.BatchOutcome, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchLimit)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			result, err := s.Archive(gctx, item.EntityType, item.EntityID, reason)
			if err != nil {
				outcomes[i] = models.BatchOutcome{
					EntityType: item.EntityType,
					EntityID:   entity.NormalizeID(item.EntityID),
					Error:      dErrors.MessageOf(err),
				}
				return nil
			}
			outcomes[i] = models.BatchOutcome{
				EntityType: result.EntityType,
				EntityID:   result.EntityID,
				Success:    true,
			}
			return nil
		})
	}
	// Workers only report through the outcome slice.
	_ = g.Wait()

	batch := models.BatchResult{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}
	return batch, nil
}

// ListArchived lists archived entities, optionally filtered to one kind.
// A limit of zero means no cap.
func (s *Service) ListArchived(ctx context.Context, kind string, limit int) ([]models.ArchivedEntity, error) {
	if limit < 0 || limit > 1000 {
		return nil, dErrors.New(dErrors.CodeValidation, "limit must be between 0 and 1000")
	}
	var filter *entity.Descriptor
	if kind != "" {
		d, ok := entity.Lookup(kind)
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown entity type %q", kind)
		}
		filter = &d
	}

	entries, err := s.store.ListArchived(ctx, filter, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list archived entities")
	}
	if entries == nil {
		entries = []models.ArchivedEntity{}
	}
	return entries, nil
}

// Relationships returns the journaled edges of an archived entity.
func (s *Service) Relationships(ctx context.Context, kind, id string) ([]models.Relationship, error) {
	d, normalized, err := descriptorFor(kind, id)
	if err != nil {
		return nil, err
	}
	rels, err := s.store.Relationships(ctx, d, normalized)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load relationship journal")
	}
	if rels == nil {
		rels = []models.Relationship{}
	}
	return rels, nil
}

// Stats summarizes the archive across all kinds.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	stats, err := s.store.Stats(ctx, entity.All())
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "aggregate archive stats")
	}
	return stats, nil
}

// EntityState resolves where an entity sits in its lifecycle: active,
// archived, or deleted with only a tombstone left. Unknown IDs are a
// not-found error.
func (s *Service) EntityState(ctx context.Context, kind, id string) (models.EntityState, error) {
	d, normalized, err := descriptorFor(kind, id)
	if err != nil {
		return models.EntityState{}, err
	}

	_, resolvedID, archivedAt, err := s.store.Find(ctx, d, normalized)
	if err == nil {
		state := models.EntityState{EntityType: string(d.Type), EntityID: resolvedID, State: models.StateActive}
		if archivedAt != nil {
			state.State = models.StateArchived
			if !archivedAt.IsZero() {
				state.ArchivedAt = archivedAt
			}
		}
		return state, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return models.EntityState{}, dErrors.Wrap(err, dErrors.CodeInternal, "resolve entity state")
	}

	rec, err := s.tombstones.LatestDeletion(ctx, d.Type, normalized)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.EntityState{}, dErrors.New(dErrors.CodeNotFound, "entity not found")
		}
		return models.EntityState{}, dErrors.Wrap(err, dErrors.CodeInternal, "resolve entity tombstone")
	}

	state := models.EntityState{
		EntityType: string(d.Type),
		EntityID:   normalized,
		State:      models.StateDeleted,
		DeletedAt:  &rec.CreatedAt,
	}
	if snap, ok := rec.Metadata["snapshot"].(map[string]any); ok {
		state.Snapshot = snap
	}
	return state, nil
}
