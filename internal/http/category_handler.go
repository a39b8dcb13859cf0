package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/club-portal/internal/application"
)

type categoryService interface {
	ListCategories(ctx context.Context) ([]application.EventCategory, error)
	GetCategory(ctx context.Context, id int64) (application.EventCategory, error)
	CreateCategory(ctx context.Context, principal application.Principal, input application.CategoryInput) (application.EventCategory, error)
	UpdateCategory(ctx context.Context, principal application.Principal, id int64, patch application.CategoryPatch) (application.EventCategory, error)
	DeleteCategory(ctx context.Context, principal application.Principal, id int64) error
}

type CategoryHandler struct {
	service   categoryService
	responder responder
	logger    *slog.Logger
}

func NewCategoryHandler(service categoryService, logger *slog.Logger) *CategoryHandler {
	base := defaultLogger(logger)
	return &CategoryHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *CategoryHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "CategoryHandler", operation, attrs...)
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.log(r.Context(), "List").WarnContext(r.Context(), "category list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]categoryDTO, 0, len(categories))
	for _, category := range categories {
		out = append(out, toCategoryDTO(category))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listCategoriesResponse{Categories: out})
}

func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	category, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		h.log(r.Context(), "Get", "category_id", id).WarnContext(r.Context(), "category lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, categoryResponse{Category: toCategoryDTO(category)})
}

func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode category", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "actor", principal.Email())
	category, err := h.service.CreateCategory(r.Context(), principal, application.CategoryInput{Name: req.Name, Points: req.Points})
	if err != nil {
		logger.WarnContext(r.Context(), "category creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("category_id", category.ID).InfoContext(r.Context(), "category created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, categoryResponse{Category: toCategoryDTO(category)})
}

func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	var req categoryPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Update", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode category patch", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "actor", principal.Email(), "category_id", id)
	category, err := h.service.UpdateCategory(r.Context(), principal, id, application.CategoryPatch{Name: req.Name, Points: req.Points})
	if err != nil {
		logger.WarnContext(r.Context(), "category update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "category updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, categoryResponse{Category: toCategoryDTO(category)})
}

func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Delete", "actor", principal.Email(), "category_id", id)
	if err := h.service.DeleteCategory(r.Context(), principal, id); err != nil {
		logger.WarnContext(r.Context(), "category deletion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "category deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type categoryRequest struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

type categoryPatchRequest struct {
	Name   *string `json:"name"`
	Points *int    `json:"points"`
}

type categoryDTO struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

type categoryResponse struct {
	Category categoryDTO `json:"category"`
}

type listCategoriesResponse struct {
	Categories []categoryDTO `json:"categories"`
}

func toCategoryDTO(category application.EventCategory) categoryDTO {
	return categoryDTO{ID: category.ID, Name: category.Name, Points: category.Points}
}
