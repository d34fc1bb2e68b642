// Package handler exposes the activity trail and deletion tombstones.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"opsportal/internal/activity"
	"opsportal/internal/entity"
	dErrors "opsportal/pkg/domain-errors"
	"opsportal/pkg/platform/sentinel"
	"opsportal/pkg/requestcontext"
)

const defaultTrailLimit = 50

// Store is the activity read surface the handler fronts.
type Store interface {
	ListByTarget(ctx context.Context, targetType, targetID string, limit int) ([]activity.Record, error)
	LatestDeletion(ctx context.Context, entityType entity.Type, targetID string) (activity.Record, error)
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts the activity routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/activity/entity/{entityType}/{entityId}", h.trail)
	r.Get("/deleted/{entityType}/{entityId}/snapshot", h.tombstone)
}

func (h *Handler) trail(w http.ResponseWriter, r *http.Request) {
	d, ok := entity.Lookup(chi.URLParam(r, "entityType"))
	if !ok {
		h.respondError(w, r, dErrors.New(dErrors.CodeValidation, "unknown entity type"))
		return
	}
	id := entity.NormalizeID(chi.URLParam(r, "entityId"))
	if id == "" {
		h.respondError(w, r, dErrors.New(dErrors.CodeValidation, "entity id is required"))
		return
	}

	limit := defaultTrailLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			h.respondError(w, r, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	records, err := h.store.ListByTarget(r.Context(), string(d.Type), id, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if records == nil {
		records = []activity.Record{}
	}
	h.respond(w, records)
}

// tombstone serves the redacted snapshot kept in the permanent-deletion
// activity record, the only view of an entity that survives hard deletion.
func (h *Handler) tombstone(w http.ResponseWriter, r *http.Request) {
	d, ok := entity.Lookup(chi.URLParam(r, "entityType"))
	if !ok {
		h.respondError(w, r, dErrors.New(dErrors.CodeValidation, "unknown entity type"))
		return
	}
	id := entity.NormalizeID(chi.URLParam(r, "entityId"))

	rec, err := h.store.LatestDeletion(r.Context(), d.Type, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		h.respondError(w, r, dErrors.New(dErrors.CodeNotFound, "no deletion record for entity"))
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respond(w, map[string]any{
		"entityType": rec.TargetType,
		"entityId":   rec.TargetID,
		"deletedAt":  rec.CreatedAt,
		"deletedBy":  rec.ActorID,
		"snapshot":   rec.Metadata["snapshot"],
	})
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) respond(w http.ResponseWriter, data any) {
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "activity request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: dErrors.MessageOf(err)})
}
