// Package handler exposes the issue engagement API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/identity"
	"civicdesk/internal/issue"
	"civicdesk/internal/platform/middleware"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/httputil"
)

// Service is the engine surface the handler depends on.
type Service interface {
	CreateIssue(ctx context.Context, actor identity.Actor, in issue.CreateIssueInput) (issue.Issue, error)
	GetIssue(ctx context.Context, issueID id.IssueID) (issue.Issue, error)
	ListIssues(ctx context.Context, filter issue.ListFilter) ([]issue.Issue, error)
	DeleteIssue(ctx context.Context, actor identity.Actor, issueID id.IssueID) error

	ToggleVote(ctx context.Context, actor identity.Actor, issueID id.IssueID) (issue.ToggleResult, error)
	ToggleWatch(ctx context.Context, actor identity.Actor, issueID id.IssueID) (issue.ToggleResult, error)
	TransitionStatus(ctx context.Context, actor identity.Actor, issueID id.IssueID, next issue.Status, note string) (issue.Issue, error)

	AddComment(ctx context.Context, actor identity.Actor, issueID id.IssueID, content string) (issue.Comment, error)
	ListComments(ctx context.Context, issueID id.IssueID) ([]issue.Comment, error)
	PostUpdate(ctx context.Context, actor identity.Actor, issueID id.IssueID, content string, updateType issue.UpdateType) (issue.Update, error)
	ListUpdates(ctx context.Context, issueID id.IssueID) ([]issue.Update, error)

	ProposeSolution(ctx context.Context, actor identity.Actor, issueID id.IssueID, in issue.ProposeSolutionInput) (issue.Solution, error)
	ListSolutions(ctx context.Context, issueID id.IssueID) ([]issue.Solution, error)
	ToggleSolutionVote(ctx context.Context, actor identity.Actor, solutionID id.SolutionID) (issue.ToggleResult, error)
	SelectOfficialSolution(ctx context.Context, actor identity.Actor, issueID id.IssueID, solutionID id.SolutionID) (issue.Solution, error)
}

type Handler struct {
	service  Service
	resolver middleware.ActorResolver
	logger   *slog.Logger
}

func New(service Service, resolver middleware.ActorResolver, logger *slog.Logger) *Handler {
	return &Handler{service: service, resolver: resolver, logger: logger}
}

// Register mounts the issue routes. Reads are public; every mutation sits
// behind RequireAuth and the engine's own permission predicates.
func (h *Handler) Register(r chi.Router) {
	r.Route("/issues", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/", h.handleList)
		r.Get("/{issueID}", h.handleGet)
		r.Get("/{issueID}/comments", h.handleListComments)
		r.Get("/{issueID}/updates", h.handleListUpdates)
		r.Get("/{issueID}/solutions", h.handleListSolutions)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Use(middleware.RequireAuth(h.resolver, h.logger))

			r.Post("/", h.handleCreate)
			r.Delete("/{issueID}", h.handleDelete)
			r.Post("/{issueID}/vote", h.handleVote)
			r.Post("/{issueID}/watch", h.handleWatch)
			r.Post("/{issueID}/status", h.handleTransition)
			r.Post("/{issueID}/comments", h.handleAddComment)
			r.Post("/{issueID}/updates", h.handlePostUpdate)
			r.Post("/{issueID}/solutions", h.handleProposeSolution)
			r.Post("/{issueID}/solutions/{solutionID}/vote", h.handleSolutionVote)
			r.Post("/{issueID}/solutions/{solutionID}/select", h.handleSelectSolution)
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in issue.CreateIssueInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	created, err := h.service.CreateIssue(r.Context(), middleware.GetActor(r.Context()), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := issue.ListFilter{
		Status:      issue.Status(r.URL.Query().Get("status")),
		Category:    issue.Category(r.URL.Query().Get("category")),
		SortByVotes: r.URL.Query().Get("sort") == "votes",
	}
	issues, err := h.service.ListIssues(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if issues == nil {
		issues = []issue.Issue{}
	}
	httputil.WriteJSON(w, http.StatusOK, issues)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathIssueID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	got, err := h.service.GetIssue(r.Context(), issueID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, got)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathIssueID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteIssue(r.Context(), middleware.GetActor(r.Context()), issueID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.ToggleVote)
}

func (h *Handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.ToggleWatch)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, op func(context.Context, identity.Actor, id.IssueID) (issue.ToggleResult, error)) {
	issueID, err := pathIssueID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := op(r.Context(), middleware.GetActor(r.Context()), issueID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type transitionRequest struct {
	Status issue.Status `json:"status"`
	Note   string       `json:"note"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathIssueID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	got, err := h.service.TransitionStatus(r.Context(), middleware.GetActor(r.Context()), issueID, req.Status, req.Note)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, got)
}

type commentRequest struct {
	Content string `json:"content"`
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathIssueID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	comment, err := h.service.AddComment(r.Context(), middleware.GetActor(r.Context()), issueID, req.Content)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, comment)
}

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathIssueID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	comments, err := h.service.ListComments(r.Context(), issueID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if comments == nil {
		comments = []issue.Comment{}
	}
	httputil.WriteJSON(w, http.StatusOK, comments)
}

type updateRequest struct {
	Content string           `json:"content"`
	Type    issue.UpdateType `json:"type"`
}

func (h *Handler) handlePostUpdate(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathIssueID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	update, err := h.service.PostUpdate(r.Context(), middleware.GetActor(r.Context()), issueID, req.Content, req.Type)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, update)
}

func (h *Handler) handleListUpdates(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathIssueID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	updates, err := h.service.ListUpdates(r.Context(), issueID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if updates == nil {
		updates = []issue.Update{}
	}
	httputil.WriteJSON(w, http.StatusOK, updates)
}

func (h *Handler) handleProposeSolution(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathIssueID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var in issue.ProposeSolutionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	solution, err := h.service.ProposeSolution(r.Context(), middleware.GetActor(r.Context()), issueID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, solution)
}

func (h *Handler) handleListSolutions(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathIssueID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	solutions, err := h.service.ListSolutions(r.Context(), issueID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if solutions == nil {
		solutions = []issue.Solution{}
	}
	httputil.WriteJSON(w, http.StatusOK, solutions)
}

func (h *Handler) handleSolutionVote(w http.ResponseWriter, r *http.Request) {
	solutionID, err := pathSolutionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.ToggleSolutionVote(r.Context(), middleware.GetActor(r.Context()), solutionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSelectSolution(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathIssueID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	solutionID, err := pathSolutionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	solution, err := h.service.SelectOfficialSolution(r.Context(), middleware.GetActor(r.Context()), issueID, solutionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, solution)
}

func pathIssueID(r *http.Request) (id.IssueID, error) {
	return id.ParseIssueID(chi.URLParam(r, "issueID"))
}

func pathSolutionID(r *http.Request) (id.SolutionID, error) {
	return id.ParseSolutionID(chi.URLParam(r, "solutionID"))
}
