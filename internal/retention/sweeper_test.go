package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"opsportal/internal/entity"
	"opsportal/pkg/platform/sentinel"
)

type fakeStore struct {
	mu       sync.Mutex
	due      map[entity.Type][]string
	purgeErr map[string]error
	purged   []string
	asOf     []time.Time
}

func (f *fakeStore) DuePurge(_ context.Context, d entity.Descriptor, now time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asOf = append(f.asOf, now)
	return f.due[d.Type], nil
}

func (f *fakeStore) Purge(_ context.Context, _ entity.Descriptor, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.purgeErr[id]; ok {
		return err
	}
	f.purged = append(f.purged, id)
	return nil
}

type SweeperTestSuite struct {
	suite.Suite
	store   *fakeStore
	sweeper *Sweeper
}

func TestSweeperTestSuite(t *testing.T) {
	suite.Run(t, new(SweeperTestSuite))
}

func (s *SweeperTestSuite) SetupTest() {
	s.store = &fakeStore{due: map[entity.Type][]string{}, purgeErr: map[string]error{}}
	s.sweeper = New(s.store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, time.Hour)
}

func (s *SweeperTestSuite) TestSweepPurgesDueEntities() {
	s.store.due[entity.TypeCrew] = []string{"CRW-001", "CRW-002"}
	s.store.due[entity.TypeOrder] = []string{"ORD-001"}

	purged, err := s.sweeper.Sweep(context.Background())

	s.Require().NoError(err)
	s.Equal(3, purged)
	s.ElementsMatch([]string{"CRW-001", "CRW-002", "ORD-001"}, s.store.purged)
}

func (s *SweeperTestSuite) TestSweepNothingDue() {
	purged, err := s.sweeper.Sweep(context.Background())

	s.Require().NoError(err)
	s.Zero(purged)
}

func (s *SweeperTestSuite) TestSweepSelectsAgainstCurrentTime() {
	before := time.Now().UTC()
	_, err := s.sweeper.Sweep(context.Background())
	after := time.Now().UTC()

	s.Require().NoError(err)
	s.Require().NotEmpty(s.store.asOf)
	for _, now := range s.store.asOf {
		s.False(now.Before(before))
		s.False(now.After(after))
	}
}

func (s *SweeperTestSuite) TestSweepSkipsEntitiesThatChangedState() {
	s.store.due[entity.TypeCrew] = []string{"CRW-001", "CRW-002"}
	s.store.purgeErr["CRW-001"] = sentinel.ErrConflict

	purged, err := s.sweeper.Sweep(context.Background())

	s.Require().NoError(err)
	s.Equal(1, purged)
	s.Equal([]string{"CRW-002"}, s.store.purged)
}

func (s *SweeperTestSuite) TestSweepSkipsAlreadyGoneEntities() {
	s.store.due[entity.TypeCrew] = []string{"CRW-001"}
	s.store.purgeErr["CRW-001"] = sentinel.ErrNotFound

	purged, err := s.sweeper.Sweep(context.Background())

	s.Require().NoError(err)
	s.Zero(purged)
}

func (s *SweeperTestSuite) TestSweepPropagatesStorageFailure() {
	s.store.due[entity.TypeCrew] = []string{"CRW-001"}
	s.store.purgeErr["CRW-001"] = errors.New("connection refused")

	_, err := s.sweeper.Sweep(context.Background())

	s.Error(err)
}
