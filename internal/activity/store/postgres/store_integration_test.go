//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"opsportal/internal/activity"
	"opsportal/internal/entity"
	"opsportal/pkg/platform/sentinel"
	"opsportal/pkg/testutil/containers"
)

type ActivityStoreIntegrationTestSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	db    *sql.DB
	store *Store
	ctx   context.Context
}

func TestActivityStoreIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(ActivityStoreIntegrationTestSuite))
}

func (s *ActivityStoreIntegrationTestSuite) SetupSuite() {
	s.pg = containers.GetPostgres(s.T())
	s.db = s.pg.DB
	s.store = New(s.db)
	s.ctx = context.Background()
}

func (s *ActivityStoreIntegrationTestSuite) SetupTest() {
	s.pg.TruncateTables(s.T(), "system_activity")
}

func (s *ActivityStoreIntegrationTestSuite) record(activityType string, at time.Time, meta map[string]any) activity.Record {
	return activity.Record{
		ActivityType: activityType,
		Description:  "test " + activityType,
		ActorID:      "ADMIN",
		ActorRole:    "admin",
		TargetID:     "CRW-001",
		TargetType:   "crew",
		Metadata:     meta,
		CreatedAt:    at,
	}
}

func (s *ActivityStoreIntegrationTestSuite) TestAppendAndListNewestFirst() {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Append(s.ctx, s.record("crew_archived", base, nil)))
	s.Require().NoError(s.store.Append(s.ctx, s.record("crew_restored", base.Add(time.Hour), nil)))
	s.Require().NoError(s.store.Append(s.ctx, s.record("crew_archived", base.Add(2*time.Hour), nil)))

	records, err := s.store.ListByTarget(s.ctx, "crew", "CRW-001", 10)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal("crew_archived", records[0].ActivityType)
	s.Equal("crew_restored", records[1].ActivityType)
	s.True(records[0].CreatedAt.After(records[1].CreatedAt))
}

func (s *ActivityStoreIntegrationTestSuite) TestListHonorsLimit() {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Append(s.ctx, s.record("crew_archived", base.Add(time.Duration(i)*time.Minute), nil)))
	}

	records, err := s.store.ListByTarget(s.ctx, "crew", "CRW-001", 2)
	s.Require().NoError(err)
	s.Len(records, 2)
}

func (s *ActivityStoreIntegrationTestSuite) TestMetadataRoundTrip() {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	meta := map[string]any{"snapshot": map[string]any{"crew_id": "CRW-001", "email": "[REDACTED]"}}
	s.Require().NoError(s.store.Append(s.ctx, s.record("crew_hard_deleted", base, meta)))

	records, err := s.store.ListByTarget(s.ctx, "crew", "CRW-001", 1)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	snap := records[0].Metadata["snapshot"].(map[string]any)
	s.Equal("[REDACTED]", snap["email"])
}

func (s *ActivityStoreIntegrationTestSuite) TestLatestDeletionPrefersNewest() {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Append(s.ctx, s.record("crew_archived", base, nil)))
	s.Require().NoError(s.store.Append(s.ctx, s.record("crew_hard_deleted", base.Add(time.Hour), map[string]any{"v": float64(1)})))
	s.Require().NoError(s.store.Append(s.ctx, s.record("retention_purged", base.Add(2*time.Hour), map[string]any{"v": float64(2)})))

	rec, err := s.store.LatestDeletion(s.ctx, entity.TypeCrew, "CRW-001")
	s.Require().NoError(err)
	s.Equal("retention_purged", rec.ActivityType)
	s.Equal(float64(2), rec.Metadata["v"])
}

func (s *ActivityStoreIntegrationTestSuite) TestLatestDeletionNotFound() {
	_, err := s.store.LatestDeletion(s.ctx, entity.TypeCrew, "CRW-404")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
