package activity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"opsportal/pkg/requestcontext"
)

type fakeAppender struct {
	records []Record
	err     error
}

func (f *fakeAppender) Append(_ context.Context, rec Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

type RecorderTestSuite struct {
	suite.Suite
	appender *fakeAppender
	recorder *Recorder
}

func TestRecorderTestSuite(t *testing.T) {
	suite.Run(t, new(RecorderTestSuite))
}

func (s *RecorderTestSuite) SetupTest() {
	s.appender = &fakeAppender{}
	s.recorder = NewRecorder(s.appender, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func (s *RecorderTestSuite) TestRecordFillsActorAndTimeFromContext() {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithActor(ctx, requestcontext.Actor{ID: "MGR-001", Role: "manager"})

	s.recorder.Record(ctx, Record{ActivityType: "crew_archived", TargetID: "CRW-001", TargetType: "crew"})

	s.Require().Len(s.appender.records, 1)
	got := s.appender.records[0]
	s.Equal("MGR-001", got.ActorID)
	s.Equal("manager", got.ActorRole)
	s.Equal(now, got.CreatedAt)
}

func (s *RecorderTestSuite) TestRecordDefaultsToSystemActor() {
	s.recorder.Record(context.Background(), Record{ActivityType: "crew_archived"})

	s.Require().Len(s.appender.records, 1)
	s.Equal("ADMIN", s.appender.records[0].ActorID)
	s.Equal("admin", s.appender.records[0].ActorRole)
}

func (s *RecorderTestSuite) TestRecordKeepsExplicitActor() {
	s.recorder.Record(context.Background(), Record{ActivityType: "crew_archived", ActorID: "SWEEP", ActorRole: "system"})

	s.Require().Len(s.appender.records, 1)
	s.Equal("SWEEP", s.appender.records[0].ActorID)
	s.Equal("system", s.appender.records[0].ActorRole)
}

func (s *RecorderTestSuite) TestRecordSwallowsStoreFailure() {
	s.appender.err = errors.New("connection refused")

	s.NotPanics(func() {
		s.recorder.Record(context.Background(), Record{ActivityType: "crew_archived"})
	})
	s.Empty(s.appender.records)
}

func (s *RecorderTestSuite) TestRecordStrictPropagatesStoreFailure() {
	s.appender.err = errors.New("connection refused")

	err := s.recorder.RecordStrict(context.Background(), Record{ActivityType: "crew_hard_deleted"})

	s.Require().Error(err)
	s.Contains(err.Error(), "crew_hard_deleted")
}
