package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/identity"
	"civicdesk/internal/platform/middleware"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/httputil"
)

// Handler exposes the admin bulk workflows over HTTP.
type Handler struct {
	service  *Service
	resolver middleware.ActorResolver
	logger   *slog.Logger
}

func NewHandler(service *Service, resolver middleware.ActorResolver, logger *slog.Logger) *Handler {
	return &Handler{service: service, resolver: resolver, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(h.resolver, h.logger))
		r.Use(middleware.RequireRole(h.logger, id.RoleAdmin))

		r.Post("/consent/reminders", h.handleConsentReminders)
		r.Get("/consent/overview", h.handleConsentOverview)
		r.Post("/verification/approve", h.handleApprove)
		r.Post("/verification/reject", h.handleReject)
		r.Get("/verification/pending", h.handlePending)
	})
}

type bulkRequest struct {
	UserIDs []string `json:"user_ids"`
}

func (h *Handler) handleConsentReminders(w http.ResponseWriter, r *http.Request) {
	h.runBulk(w, r, h.service.SendConsentReminders)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.runBulk(w, r, h.service.ApproveVerification)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.runBulk(w, r, h.service.RejectVerification)
}

type bulkOp func(ctx context.Context, actor identity.Actor, targets []string) (BulkResult, error)

func (h *Handler) runBulk(w http.ResponseWriter, r *http.Request, op bulkOp) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if len(req.UserIDs) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "user_ids is required"))
		return
	}

	// Malformed ids ride along as per-item failures; they never abort the
	// valid targets in the same batch.
	result, err := op(r.Context(), middleware.GetActor(r.Context()), req.UserIDs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleConsentOverview(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ConsentOverview(r.Context(), middleware.GetActor(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.ListPendingOfficials(r.Context(), middleware.GetActor(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if profiles == nil {
		profiles = []identity.Profile{}
	}
	httputil.WriteJSON(w, http.StatusOK, profiles)
}
