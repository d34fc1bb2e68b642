package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"

	"opsportal/internal/archive/models"
	"opsportal/internal/entity"
	"opsportal/pkg/requestcontext"
)

// ListArchived returns archived rows newest first, capped at limit entries
// when limit is positive. With a kind it reads that kind's table directly;
// without one it reads the cross-kind archived_entities view so the ordering
// is global, not per table. Either path degrades to an empty result instead
// of failing when the target predates the archive-columns migration.
func (s *Store) ListArchived(ctx context.Context, d *entity.Descriptor, limit int) ([]models.ArchivedEntity, error) {
	now := requestcontext.Now(ctx).UTC()

	if d == nil {
		entries, err := s.listArchivedAll(ctx, now, limit)
		if err != nil {
			if isUndefinedColumn(err) || isUndefinedTable(err) {
				s.logger.WarnContext(ctx, "archived_entities view unavailable, listing as empty", "error", err)
				return nil, nil
			}
			return nil, err
		}
		return entries, nil
	}

	entries, err := s.listArchivedKind(ctx, *d, now, limit)
	if err != nil {
		if isUndefinedColumn(err) {
			s.logger.WarnContext(ctx, "entity table missing archive columns, listing as empty",
				"table", d.Table)
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}

func (s *Store) listArchivedAll(ctx context.Context, now time.Time, limit int) ([]models.ArchivedEntity, error) {
	query := `
		SELECT entity_type, entity_id, name, order_type, archived_at, archived_by, archive_reason, deletion_scheduled
		FROM archived_entities
		ORDER BY archived_at DESC` + limitClause(limit)

	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list archived_entities view: %w", err)
	}
	defer rows.Close()

	var entries []models.ArchivedEntity
	for rows.Next() {
		var (
			entityType string
			id         string
			name       sql.NullString
			orderType  sql.NullString
			archivedAt time.Time
			archivedBy sql.NullString
			reason     sql.NullString
			scheduled  sql.NullTime
		)
		if err := rows.Scan(&entityType, &id, &name, &orderType, &archivedAt, &archivedBy, &reason, &scheduled); err != nil {
			return nil, fmt.Errorf("scan archived_entities row: %w", err)
		}
		entries = append(entries, s.archivedEntry(entityType, id, name, orderType, archivedAt, archivedBy, reason, scheduled, now))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list archived_entities view: %w", err)
	}
	return entries, nil
}

func (s *Store) listArchivedKind(ctx context.Context, d entity.Descriptor, now time.Time, limit int) ([]models.ArchivedEntity, error) {
	orderTypeCol := "NULL"
	if d.HasOrderType {
		orderTypeCol = "order_type"
	}
	query := fmt.Sprintf(
		`SELECT %s, %s, %s, archived_at, archived_by, archive_reason, deletion_scheduled
		 FROM %s
		 WHERE archived_at IS NOT NULL
		 ORDER BY archived_at DESC%s`,
		pq.QuoteIdentifier(d.IDColumn), pq.QuoteIdentifier(d.NameColumn), orderTypeCol,
		pq.QuoteIdentifier(d.Table), limitClause(limit),
	)

	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list archived %s rows: %w", d.Table, err)
	}
	defer rows.Close()

	var entries []models.ArchivedEntity
	for rows.Next() {
		var (
			id         string
			name       sql.NullString
			orderType  sql.NullString
			archivedAt time.Time
			archivedBy sql.NullString
			reason     sql.NullString
			scheduled  sql.NullTime
		)
		if err := rows.Scan(&id, &name, &orderType, &archivedAt, &archivedBy, &reason, &scheduled); err != nil {
			return nil, fmt.Errorf("scan archived %s row: %w", d.Table, err)
		}
		entries = append(entries, s.archivedEntry(string(d.Type), id, name, orderType, archivedAt, archivedBy, reason, scheduled, now))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list archived %s rows: %w", d.Table, err)
	}
	return entries, nil
}

// archivedEntry assembles one listing row. Rows archived before the schedule
// column existed fall back to archived_at plus the configured grace period.
func (s *Store) archivedEntry(entityType, id string, name, orderType sql.NullString, archivedAt time.Time, archivedBy, reason sql.NullString, scheduled sql.NullTime, now time.Time) models.ArchivedEntity {
	deleteAt := archivedAt.Add(s.grace)
	if scheduled.Valid {
		deleteAt = scheduled.Time
	}
	entry := models.ArchivedEntity{
		EntityType:      entityType,
		EntityID:        id,
		Name:            name.String,
		ArchivedAt:      archivedAt,
		ArchivedBy:      archivedBy.String,
		Reason:          reason.String,
		DeleteScheduled: deleteAt,
		DaysUntilDelete: daysUntil(now, deleteAt),
	}
	if orderType.Valid {
		v := orderType.String
		entry.OrderType = &v
	}
	return entry
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func daysUntil(now, deadline time.Time) int {
	if !deadline.After(now) {
		return 0
	}
	return int(math.Ceil(deadline.Sub(now).Hours() / 24))
}

// Relationships returns the journal rows for one entity, newest first.
// Restored journal rows are included; the restored flag tells them apart.
func (s *Store) Relationships(ctx context.Context, d entity.Descriptor, id string) ([]models.Relationship, error) {
	ids := []string{id}
	if d.AltIDs != nil {
		ids = append(ids, d.AltIDs(id)...)
	}

	query := `
		SELECT id, entity_type, entity_id, parent_type, parent_id, relationship_data, archived_by, archived_at, restored
		FROM archive_relationships
		WHERE entity_type = $1 AND entity_id = ANY($2)
		ORDER BY archived_at DESC, id DESC`

	rows, err := s.execer(ctx).QueryContext(ctx, query, string(d.Type), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query relationship journal: %w", err)
	}
	defer rows.Close()

	var out []models.Relationship
	for rows.Next() {
		var (
			rel        models.Relationship
			parentType sql.NullString
			parentID   sql.NullString
			raw        []byte
		)
		if err := rows.Scan(&rel.ID, &rel.EntityType, &rel.EntityID, &parentType, &parentID,
			&raw, &rel.ArchivedBy, &rel.ArchivedAt, &rel.Restored); err != nil {
			return nil, fmt.Errorf("scan relationship row: %w", err)
		}
		rel.ParentType = parentType.String
		rel.ParentID = parentID.String
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &rel.RelationshipData); err != nil {
				return nil, fmt.Errorf("unmarshal relationship data: %w", err)
			}
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query relationship journal: %w", err)
	}
	return out, nil
}

// Stats aggregates archive counts across all kinds. Tables without archive
// columns count as zero, same as the listing.
func (s *Store) Stats(ctx context.Context, kinds []entity.Descriptor) (models.Stats, error) {
	now := requestcontext.Now(ctx).UTC()

	stats := models.Stats{ByType: make(map[string]int, len(kinds))}
	for _, d := range kinds {
		query := fmt.Sprintf(
			`SELECT COUNT(*), COUNT(*) FILTER (WHERE deletion_scheduled < $1) FROM %s WHERE archived_at IS NOT NULL`,
			pq.QuoteIdentifier(d.Table))

		var total, due int
		if err := s.execer(ctx).QueryRowContext(ctx, query, now).Scan(&total, &due); err != nil {
			if isUndefinedColumn(err) {
				stats.ByType[string(d.Type)] = 0
				continue
			}
			return models.Stats{}, fmt.Errorf("count archived %s rows: %w", d.Table, err)
		}
		stats.ByType[string(d.Type)] = total
		stats.TotalArchived += total
		stats.DueForPurge += due
	}
	return stats, nil
}

// Find resolves an entity row and reports its archive position. The snapshot
// comes back raw; callers that expose it publicly redact it first.
func (s *Store) Find(ctx context.Context, d entity.Descriptor, id string) (map[string]any, string, *time.Time, error) {
	res, err := s.resolve(ctx, d, id)
	if err != nil {
		return nil, "", nil, err
	}

	if res.fallback && d.Fallback.ActiveFlag != "" {
		if active, ok := res.snapshot[d.Fallback.ActiveFlag].(bool); ok && !active {
			// Catalog rows carry no archive timestamp; the toggle is the only
			// archive state they have.
			zero := time.Time{}
			return res.snapshot, res.id, &zero, nil
		}
		return res.snapshot, res.id, nil, nil
	}

	if archivedAt, ok := archivedAtFromSnapshot(res.snapshot); ok {
		return res.snapshot, res.id, &archivedAt, nil
	}
	return res.snapshot, res.id, nil, nil
}
