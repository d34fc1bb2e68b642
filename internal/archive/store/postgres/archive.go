package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"opsportal/internal/archive/models"
	"opsportal/internal/entity"
	"opsportal/pkg/platform/sentinel"
	"opsportal/pkg/requestcontext"
)

// Archive soft-deletes one entity. The steps run as independent statements,
// not one transaction: the relationship journal is written first and
// best-effort, the children are moved to the unassigned pool, and the
// conditional stamp comes last. Each step is idempotent and retryable on its
// own; only the stamp decides success. Returns sentinel.ErrNotFound when the
// row does not exist or is already archived; the guard on archived_at makes
// the stamp safe to retry.
func (s *Store) Archive(ctx context.Context, d entity.Descriptor, id, reason string) (models.ArchiveResult, error) {
	res, err := s.resolve(ctx, d, id)
	if err != nil {
		return models.ArchiveResult{}, err
	}

	now := requestcontext.Now(ctx).UTC()
	actor := requestcontext.ActorFrom(ctx)

	// A lost journal row costs a breadcrumb; blocking the archive would cost
	// the operation.
	if err := s.journalRelationships(ctx, d, res, actor.ID, now); err != nil {
		s.logger.WarnContext(ctx, "relationship snapshot failed, archiving anyway",
			"entity_type", d.Type, "entity_id", res.id, "error", err)
	}

	unassigned, err := s.unassignChildren(ctx, d, res.id)
	if err != nil {
		return models.ArchiveResult{}, err
	}

	if res.fallback && d.Fallback.ActiveFlag != "" {
		err = s.deactivateFallback(ctx, d, res.id)
	} else {
		err = s.stampArchived(ctx, res, now, actor.ID, reason)
	}
	if err != nil {
		return models.ArchiveResult{}, err
	}

	return models.ArchiveResult{
		EntityType:         string(d.Type),
		EntityID:           res.id,
		ArchivedAt:         now,
		ChildrenUnassigned: unassigned,
	}, nil
}

func (s *Store) stampArchived(ctx context.Context, res resolved, now time.Time, actorID, reason string) error {
	query := fmt.Sprintf(
		`UPDATE %s
		 SET archived_at = $1, archived_by = $2, archive_reason = $3, deletion_scheduled = $4,
		     restored_at = NULL, restored_by = NULL
		 WHERE %s = $5 AND archived_at IS NULL`,
		pq.QuoteIdentifier(res.table), pq.QuoteIdentifier(res.idColumn),
	)
	var reasonArg sql.NullString
	if reason != "" {
		reasonArg = sql.NullString{String: reason, Valid: true}
	}
	out, err := s.execer(ctx).ExecContext(ctx, query, now, actorID, reasonArg, now.Add(s.grace), res.id)
	if err != nil {
		return fmt.Errorf("stamp archive columns on %s: %w", res.table, err)
	}
	affected, err := out.RowsAffected()
	if err != nil {
		return fmt.Errorf("stamp archive columns on %s: %w", res.table, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// deactivateFallback toggles the catalog flag instead of stamping archive
// columns. Catalog tables predate the lifecycle and carry no archive state.
func (s *Store) deactivateFallback(ctx context.Context, d entity.Descriptor, id string) error {
	query := fmt.Sprintf(
		`UPDATE %s SET %s = FALSE WHERE %s = $1 AND %s = TRUE`,
		pq.QuoteIdentifier(d.Fallback.Table),
		pq.QuoteIdentifier(d.Fallback.ActiveFlag),
		pq.QuoteIdentifier(d.Fallback.IDColumn),
		pq.QuoteIdentifier(d.Fallback.ActiveFlag),
	)
	out, err := s.execer(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate %s row: %w", d.Fallback.Table, err)
	}
	affected, err := out.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate %s row: %w", d.Fallback.Table, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type childRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// unassignChildren nulls every foreign key pointing at the entity and returns
// how many rows were released. Only active children move; archived children
// keep their parent link so a later restore of either side finds it intact.
func (s *Store) unassignChildren(ctx context.Context, d entity.Descriptor, id string) (int64, error) {
	var total int64

	for _, edge := range d.Children {
		columns := append([]string{edge.FKColumn}, edge.ExtraNullColumns...)
		query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $1 AND archived_at IS NULL`,
			pq.QuoteIdentifier(edge.Table), nullSetClause(columns), pq.QuoteIdentifier(edge.FKColumn))
		out, err := s.execer(ctx).ExecContext(ctx, query, id)
		if err != nil {
			return 0, fmt.Errorf("unassign %s children: %w", edge.Table, err)
		}
		affected, err := out.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("unassign %s children: %w", edge.Table, err)
		}
		total += affected
	}
	return total, nil
}

// listChildren returns the active children still pointing at the parent.
// Archived children are not part of the snapshot; they are not about to lose
// anything.
func (s *Store) listChildren(ctx context.Context, edge entity.ChildEdge, parentID string) ([]childRef, error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s = $1 AND archived_at IS NULL`,
		pq.QuoteIdentifier(edge.IDColumn), pq.QuoteIdentifier(edge.NameColumn),
		pq.QuoteIdentifier(edge.Table), pq.QuoteIdentifier(edge.FKColumn))

	rows, err := s.execer(ctx).QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("list %s children: %w", edge.Table, err)
	}
	defer rows.Close()

	var refs []childRef
	for rows.Next() {
		var id string
		var name sql.NullString
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan %s child: %w", edge.Table, err)
		}
		refs = append(refs, childRef{Type: string(edge.Type), ID: id, Name: name.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s children: %w", edge.Table, err)
	}
	return refs, nil
}

// journalRelationships writes the archive_relationships row capturing the
// entity's parent and still-active children as they stand right before the
// archive severs them. The journal is what a restore reads back and what
// relationship queries serve after the live foreign keys are gone.
func (s *Store) journalRelationships(ctx context.Context, d entity.Descriptor, res resolved, actorID string, now time.Time) error {
	var parentType, parentID sql.NullString
	data := map[string]any{}

	if d.Parent != nil {
		if v, ok := res.snapshot[d.Parent.FKColumn]; ok && v != nil {
			if pid, ok := v.(string); ok && pid != "" {
				parentType = sql.NullString{String: string(d.Parent.Type), Valid: true}
				parentID = sql.NullString{String: pid, Valid: true}
				if name, err := s.parentName(ctx, d.Parent, pid); err == nil && name != "" {
					data["parentName"] = name
				}
			}
		}
	}

	var children []childRef
	for _, edge := range d.Children {
		refs, err := s.listChildren(ctx, edge, res.id)
		if err != nil {
			return err
		}
		children = append(children, refs...)
	}
	if len(children) > 0 {
		data["children"] = children
		data["childCount"] = len(children)
	}
	if meta := s.probeMetadata(ctx, d, res.id); meta != nil {
		data["metadata"] = meta
	}
	if name := nameFromSnapshot(res.snapshot, res.nameColumn); name != "" {
		data["name"] = name
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal relationship data: %w", err)
	}

	query := `
		INSERT INTO archive_relationships
			(entity_type, entity_id, parent_type, parent_id, relationship_data, archived_by, archived_at, restored)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		string(d.Type), res.id, parentType, parentID, raw, actorID, now); err != nil {
		return fmt.Errorf("insert relationship journal row: %w", err)
	}
	return nil
}

func (s *Store) parentName(ctx context.Context, edge *entity.ParentEdge, parentID string) (string, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		pq.QuoteIdentifier(edge.ParentNameColumn), pq.QuoteIdentifier(edge.ParentTable), pq.QuoteIdentifier(edge.ParentIDColumn))

	var name sql.NullString
	err := s.execer(ctx).QueryRowContext(ctx, query, parentID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve parent name from %s: %w", edge.ParentTable, err)
	}
	return name.String, nil
}

// Restore clears the archive fields and re-enters the entity into the active
// pool unassigned. The update is keyed by identifier alone, so restoring a
// never-archived entity just stamps restored_at and succeeds. Foreign keys
// nulled at archive time stay null; the journal rows are marked restored but
// never replayed into live columns. Returns sentinel.ErrNotFound only when
// the row does not exist.
func (s *Store) Restore(ctx context.Context, d entity.Descriptor, id string) (models.RestoreResult, error) {
	res, err := s.resolve(ctx, d, id)
	if err != nil {
		return models.RestoreResult{}, err
	}

	now := requestcontext.Now(ctx).UTC()

	if res.fallback && d.Fallback.ActiveFlag != "" {
		err = s.reactivateFallback(ctx, d, res.id)
	} else {
		err = s.clearArchived(ctx, res, now, requestcontext.ActorFrom(ctx).ID)
	}
	if err != nil {
		return models.RestoreResult{}, err
	}

	// Informational flag only; losing it never undoes the restore.
	query := `UPDATE archive_relationships SET restored = TRUE WHERE entity_type = $1 AND entity_id = $2 AND restored = FALSE`
	if _, err := s.execer(ctx).ExecContext(ctx, query, string(d.Type), res.id); err != nil {
		s.logger.WarnContext(ctx, "marking journal rows restored failed",
			"entity_type", d.Type, "entity_id", res.id, "error", err)
	}

	return models.RestoreResult{
		EntityType: string(d.Type),
		EntityID:   res.id,
		RestoredAt: now,
		Unassigned: true,
	}, nil
}

func (s *Store) clearArchived(ctx context.Context, res resolved, now time.Time, actorID string) error {
	query := fmt.Sprintf(
		`UPDATE %s
		 SET archived_at = NULL, archived_by = NULL, archive_reason = NULL, deletion_scheduled = NULL,
		     restored_at = $1, restored_by = $2
		 WHERE %s = $3`,
		pq.QuoteIdentifier(res.table), pq.QuoteIdentifier(res.idColumn),
	)
	out, err := s.execer(ctx).ExecContext(ctx, query, now, actorID, res.id)
	if err != nil {
		return fmt.Errorf("clear archive columns on %s: %w", res.table, err)
	}
	affected, err := out.RowsAffected()
	if err != nil {
		return fmt.Errorf("clear archive columns on %s: %w", res.table, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) reactivateFallback(ctx context.Context, d entity.Descriptor, id string) error {
	query := fmt.Sprintf(
		`UPDATE %s SET %s = TRUE WHERE %s = $1 AND %s = FALSE`,
		pq.QuoteIdentifier(d.Fallback.Table),
		pq.QuoteIdentifier(d.Fallback.ActiveFlag),
		pq.QuoteIdentifier(d.Fallback.IDColumn),
		pq.QuoteIdentifier(d.Fallback.ActiveFlag),
	)
	out, err := s.execer(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("reactivate %s row: %w", d.Fallback.Table, err)
	}
	affected, err := out.RowsAffected()
	if err != nil {
		return fmt.Errorf("reactivate %s row: %w", d.Fallback.Table, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
