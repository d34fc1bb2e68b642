package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"opsportal/internal/archive/models"
	dErrors "opsportal/pkg/domain-errors"
)

type fakeService struct {
	archiveErr   error
	deleteErr    error
	stateErr     error
	listKind     string
	listLimit    int
	confirmed    *bool
	deleteReason string
}

func (f *fakeService) Archive(_ context.Context, kind, id, _ string) (models.ArchiveResult, error) {
	if f.archiveErr != nil {
		return models.ArchiveResult{}, f.archiveErr
	}
	return models.ArchiveResult{EntityType: kind, EntityID: id, ChildrenUnassigned: 1}, nil
}

func (f *fakeService) Restore(_ context.Context, kind, id string) (models.RestoreResult, error) {
	return models.RestoreResult{EntityType: kind, EntityID: id, Unassigned: true}, nil
}

func (f *fakeService) HardDelete(_ context.Context, kind, id, reason string, confirm bool) (models.HardDeleteResult, error) {
	f.confirmed = &confirm
	f.deleteReason = reason
	if !confirm {
		return models.HardDeleteResult{}, dErrors.New(dErrors.CodeBadRequest, "permanent deletion requires confirmation")
	}
	if f.deleteErr != nil {
		return models.HardDeleteResult{}, f.deleteErr
	}
	return models.HardDeleteResult{EntityType: kind, EntityID: id}, nil
}

func (f *fakeService) BatchArchive(_ context.Context, items []models.BatchItem, _ string) (models.BatchResult, error) {
	outcomes := make([]models.BatchOutcome, len(items))
	for i, item := range items {
		outcomes[i] = models.BatchOutcome{EntityType: item.EntityType, EntityID: item.EntityID, Success: true}
	}
	return models.BatchResult{Outcomes: outcomes, Succeeded: len(items)}, nil
}

func (f *fakeService) ListArchived(_ context.Context, kind string, limit int) ([]models.ArchivedEntity, error) {
	f.listKind = kind
	f.listLimit = limit
	return []models.ArchivedEntity{}, nil
}

func (f *fakeService) Relationships(_ context.Context, _, _ string) ([]models.Relationship, error) {
	return []models.Relationship{}, nil
}

func (f *fakeService) Stats(_ context.Context) (models.Stats, error) {
	return models.Stats{ByType: map[string]int{}}, nil
}

func (f *fakeService) EntityState(_ context.Context, kind, id string) (models.EntityState, error) {
	if f.stateErr != nil {
		return models.EntityState{}, f.stateErr
	}
	return models.EntityState{EntityType: kind, EntityID: id, State: models.StateActive}, nil
}

type HandlerTestSuite struct {
	suite.Suite
	service *fakeService
	router  chi.Router
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) SetupTest() {
	s.service = &fakeService{}
	s.router = chi.NewRouter()
	NewHandler(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *HandlerTestSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerTestSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *HandlerTestSuite) TestArchiveSuccess() {
	rec := s.do(http.MethodPost, "/archive/delete", `{"entityType":"crew","entityId":"CRW-001","reason":"site closed"}`)

	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(true, body["success"])
	s.Equal("crew CRW-001 archived", body["message"])
	s.Equal(float64(1), body["unassignedChildren"])
	s.NotContains(body, "data")
}

func (s *HandlerTestSuite) TestArchiveMalformedBody() {
	rec := s.do(http.MethodPost, "/archive/delete", `{"entityType":`)

	s.Equal(http.StatusBadRequest, rec.Code)
	body := s.decode(rec)
	s.Equal(false, body["success"])
	s.NotEmpty(body["error"])
}

func (s *HandlerTestSuite) TestArchiveNotFound() {
	s.service.archiveErr = dErrors.New(dErrors.CodeNotFound, "entity not found or already archived")

	rec := s.do(http.MethodPost, "/archive/delete", `{"entityType":"crew","entityId":"CRW-404"}`)

	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("entity not found or already archived", s.decode(rec)["error"])
}

func (s *HandlerTestSuite) TestHardDeleteWithoutConfirm() {
	rec := s.do(http.MethodDelete, "/archive/hard-delete", `{"entityType":"crew","entityId":"CRW-001"}`)

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Require().NotNil(s.service.confirmed)
	s.False(*s.service.confirmed)
}

func (s *HandlerTestSuite) TestHardDeleteConflict() {
	s.service.deleteErr = dErrors.New(dErrors.CodeConflict, "entity still has assigned children")

	rec := s.do(http.MethodDelete, "/archive/hard-delete", `{"entityType":"manager","entityId":"MGR-001","confirm":true}`)

	s.Equal(http.StatusConflict, rec.Code)
}

func (s *HandlerTestSuite) TestHardDeleteSuccess() {
	rec := s.do(http.MethodDelete, "/archive/hard-delete",
		`{"entityType":"crew","entityId":"CRW-001","reason":"gdpr request","confirm":true}`)

	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(true, body["success"])
	s.NotEmpty(body["message"])
	s.Equal("gdpr request", s.service.deleteReason)
}

func (s *HandlerTestSuite) TestRestoreReturnsMessage() {
	rec := s.do(http.MethodPost, "/archive/restore", `{"entityType":"crew","entityId":"CRW-001"}`)

	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(true, body["success"])
	s.Equal("crew CRW-001 restored", body["message"])
}

func (s *HandlerTestSuite) TestListPassesTypeFilter() {
	rec := s.do(http.MethodGet, "/archive/list?entityType=warehouse&limit=25", "")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("warehouse", s.service.listKind)
	s.Equal(25, s.service.listLimit)
}

func (s *HandlerTestSuite) TestListRejectsNonNumericLimit() {
	rec := s.do(http.MethodGet, "/archive/list?limit=abc", "")

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerTestSuite) TestBatchArchive() {
	rec := s.do(http.MethodPost, "/archive/batch-delete",
		`{"entities":[{"entityType":"crew","entityId":"CRW-001"},{"entityType":"order","entityId":"ORD-001"}]}`)

	s.Equal(http.StatusOK, rec.Code)
	data := s.decode(rec)["data"].(map[string]any)
	s.Equal(float64(2), data["succeeded"])
}

func (s *HandlerTestSuite) TestRelationships() {
	rec := s.do(http.MethodGet, "/archive/relationships/crew/CRW-001", "")

	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerTestSuite) TestEntityStateNotFound() {
	s.service.stateErr = dErrors.New(dErrors.CodeNotFound, "entity not found")

	rec := s.do(http.MethodGet, "/entity/crew/CRW-404", "")

	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerTestSuite) TestStats() {
	rec := s.do(http.MethodGet, "/archive/stats", "")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(true, s.decode(rec)["success"])
}
