// Package handler exposes the archive lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"opsportal/internal/archive/models"
	dErrors "opsportal/pkg/domain-errors"
	"opsportal/pkg/requestcontext"
)

// Service is the archive operations surface the handler fronts.
type Service interface {
	Archive(ctx context.Context, kind, id, reason string) (models.ArchiveResult, error)
	Restore(ctx context.Context, kind, id string) (models.RestoreResult, error)
	HardDelete(ctx context.Context, kind, id, reason string, confirm bool) (models.HardDeleteResult, error)
	BatchArchive(ctx context.Context, items []models.BatchItem, reason string) (models.BatchResult, error)
	ListArchived(ctx context.Context, kind string, limit int) ([]models.ArchivedEntity, error)
	Relationships(ctx context.Context, kind, id string) ([]models.Relationship, error)
	Stats(ctx context.Context) (models.Stats, error)
	EntityState(ctx context.Context, kind, id string) (models.EntityState, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the archive routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/archive", func(r chi.Router) {
		r.Get("/list", h.list)
		r.Get("/stats", h.stats)
		r.Get("/relationships/{entityType}/{entityId}", h.relationships)
		r.Post("/delete", h.archive)
		r.Post("/restore", h.restore)
		r.Post("/batch-delete", h.batchArchive)
		r.Delete("/hard-delete", h.hardDelete)
	})
	r.Get("/entity/{entityType}/{entityId}", h.entityState)
}

type entityRequest struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Reason     string `json:"reason,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, r, dErrors.New(dErrors.CodeValidation, "limit must be a number"))
			return
		}
		limit = n
	}
	entries, err := h.service.ListArchived(r.Context(), r.URL.Query().Get("entityType"), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, entries)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, stats)
}

func (h *Handler) relationships(w http.ResponseWriter, r *http.Request) {
	rels, err := h.service.Relationships(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, rels)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	result, err := h.service.Archive(r.Context(), req.EntityType, req.EntityID, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondAction(w, actionResponse{
		Success:            true,
		Message:            fmt.Sprintf("%s %s archived", result.EntityType, result.EntityID),
		UnassignedChildren: &result.ChildrenUnassigned,
	})
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	result, err := h.service.Restore(r.Context(), req.EntityType, req.EntityID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondAction(w, actionResponse{
		Success: true,
		Message: fmt.Sprintf("%s %s restored", result.EntityType, result.EntityID),
	})
}

type hardDeleteRequest struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Reason     string `json:"reason,omitempty"`
	Confirm    bool   `json:"confirm"`
}

func (h *Handler) hardDelete(w http.ResponseWriter, r *http.Request) {
	var req hardDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	result, err := h.service.HardDelete(r.Context(), req.EntityType, req.EntityID, req.Reason, req.Confirm)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondAction(w, actionResponse{
		Success: true,
		Message: fmt.Sprintf("%s %s permanently deleted", result.EntityType, result.EntityID),
	})
}

type batchRequest struct {
	Entities []models.BatchItem `json:"entities"`
	Reason   string             `json:"reason,omitempty"`
}

func (h *Handler) batchArchive(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	result, err := h.service.BatchArchive(r.Context(), req.Entities, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, result)
}

func (h *Handler) entityState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.EntityState(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, state)
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// actionResponse is the flat shape of the mutating endpoints: a message at
// the top level, plus the released-children count for archive.
type actionResponse struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	UnassignedChildren *int64 `json:"unassignedChildren,omitempty"`
}

func (h *Handler) respond(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func (h *Handler) respondAction(w http.ResponseWriter, resp actionResponse) {
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "archive request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: dErrors.MessageOf(err)})
}
