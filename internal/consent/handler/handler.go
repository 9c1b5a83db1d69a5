// Package handler exposes the consent API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/consent"
	"civicdesk/internal/platform/middleware"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/httputil"
)

// Service is the consent surface the handler depends on.
type Service interface {
	Decide(ctx context.Context, userID id.UserID, reqType consent.RequirementType, version int, accepted bool) (consent.Record, error)
	Revoke(ctx context.Context, userID id.UserID, reqType consent.RequirementType) error
	Status(ctx context.Context, userID id.UserID) (consent.Report, error)
}

type Handler struct {
	service  Service
	registry consent.Registry
	resolver middleware.ActorResolver
	logger   *slog.Logger
}

func New(service Service, registry consent.Registry, resolver middleware.ActorResolver, logger *slog.Logger) *Handler {
	return &Handler{service: service, registry: registry, resolver: resolver, logger: logger}
}

// Register mounts the consent routes. The requirement list is public so the
// onboarding screen can render before sign-in; decisions and status are
// always scoped to the authenticated user.
func (h *Handler) Register(r chi.Router) {
	r.Route("/consent", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/requirements", h.handleRequirements)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Use(middleware.RequireAuth(h.resolver, h.logger))

			r.Get("/status", h.handleStatus)
			r.Post("/decisions", h.handleDecide)
			r.Post("/revoke", h.handleRevoke)
		})
	})
}

func (h *Handler) handleRequirements(w http.ResponseWriter, r *http.Request) {
	required, err := h.registry.Required(r.Context())
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "consent registry unavailable"))
		return
	}
	if required == nil {
		required = []consent.Requirement{}
	}
	httputil.WriteJSON(w, http.StatusOK, required)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	report, err := h.service.Status(r.Context(), actor.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

type decideRequest struct {
	Type     consent.RequirementType `json:"type"`
	Version  int                     `json:"version"`
	Accepted bool                    `json:"accepted"`
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Type == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "type is required"))
		return
	}

	actor := middleware.GetActor(r.Context())
	record, err := h.service.Decide(r.Context(), actor.ID, req.Type, req.Version, req.Accepted)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, record)
}

type revokeRequest struct {
	Type consent.RequirementType `json:"type"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Type == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "type is required"))
		return
	}

	actor := middleware.GetActor(r.Context())
	if err := h.service.Revoke(r.Context(), actor.ID, req.Type); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
