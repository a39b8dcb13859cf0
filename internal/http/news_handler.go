package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/club-portal/internal/application"
)

type newsService interface {
	Newsfeed(ctx context.Context, params application.NewsfeedParams) ([]application.News, error)
	GetNews(ctx context.Context, principal application.Principal, id int64) (application.News, error)
	CreateNews(ctx context.Context, principal application.Principal, input application.NewsInput) (application.News, error)
	UpdateNews(ctx context.Context, principal application.Principal, id int64, patch application.NewsPatch) (application.News, error)
	DeleteNews(ctx context.Context, principal application.Principal, id int64) error
}

type NewsHandler struct {
	service   newsService
	responder responder
	logger    *slog.Logger
}

func NewNewsHandler(service newsService, logger *slog.Logger) *NewsHandler {
	base := defaultLogger(logger)
	return &NewsHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *NewsHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "NewsHandler", operation, attrs...)
}

// Feed lists published posts visible to the viewer, newest first.
func (h *NewsHandler) Feed(w http.ResponseWriter, r *http.Request) {
	ceiling := PrincipalFromContext(r.Context()).Level()
	q := newQueryParams(r)
	params := application.NewsfeedParams{
		Before:        q.optionalTime("before"),
		AccessCeiling: &ceiling,
		Offset:        q.optionalInt("offset"),
		MaxEntries:    q.optionalInt("max"),
	}
	if err := q.err(); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	posts, err := h.service.Newsfeed(r.Context(), params)
	if err != nil {
		h.log(r.Context(), "Feed").WarnContext(r.Context(), "newsfeed failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]newsDTO, 0, len(posts))
	for _, post := range posts {
		out = append(out, toNewsDTO(post))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, newsfeedResponse{News: out})
}

func (h *NewsHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	post, err := h.service.GetNews(r.Context(), principal, id)
	if err != nil {
		h.log(r.Context(), "Get", "news_id", id).WarnContext(r.Context(), "news lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, newsResponse{News: toNewsDTO(post)})
}

func (h *NewsHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())

	var req newsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode news", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input := application.NewsInput{Title: req.Title, Body: req.Body, PublishedAt: req.PublishedAt}
	if req.MinAccessLevel != "" {
		level, err := application.ParseAccessLevel(req.MinAccessLevel)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		input.MinAccessLevel = level
	}

	logger := h.log(r.Context(), "Create", "actor", principal.Email())
	post, err := h.service.CreateNews(r.Context(), principal, input)
	if err != nil {
		logger.WarnContext(r.Context(), "news creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("news_id", post.ID).InfoContext(r.Context(), "news created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, newsResponse{News: toNewsDTO(post)})
}

func (h *NewsHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	var req newsPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Update", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode news patch", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	patch := application.NewsPatch{Title: req.Title, Body: req.Body, PublishedAt: req.PublishedAt}
	if req.MinAccessLevel != nil {
		level, err := application.ParseAccessLevel(*req.MinAccessLevel)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		patch.MinAccessLevel = &level
	}

	logger := h.log(r.Context(), "Update", "actor", principal.Email(), "news_id", id)
	post, err := h.service.UpdateNews(r.Context(), principal, id, patch)
	if err != nil {
		logger.WarnContext(r.Context(), "news update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "news updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, newsResponse{News: toNewsDTO(post)})
}

func (h *NewsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	id, err := idParam(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Delete", "actor", principal.Email(), "news_id", id)
	if err := h.service.DeleteNews(r.Context(), principal, id); err != nil {
		logger.WarnContext(r.Context(), "news deletion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "news deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type newsRequest struct {
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	PublishedAt    *time.Time `json:"published_at"`
	MinAccessLevel string     `json:"min_access_level"`
}

type newsPatchRequest struct {
	Title          *string    `json:"title"`
	Body           *string    `json:"body"`
	PublishedAt    *time.Time `json:"published_at"`
	MinAccessLevel *string    `json:"min_access_level"`
}

type newsDTO struct {
	ID             int64                   `json:"id"`
	Title          string                  `json:"title"`
	Body           string                  `json:"body"`
	AuthorEmail    *string                 `json:"author_email"`
	PublishedAt    string                  `json:"published_at"`
	MinAccessLevel application.AccessLevel `json:"min_access_level"`
	CreatedAt      string                  `json:"created_at,omitempty"`
	UpdatedAt      string                  `json:"updated_at,omitempty"`
}

type newsResponse struct {
	News newsDTO `json:"news"`
}

type newsfeedResponse struct {
	News []newsDTO `json:"news"`
}

func toNewsDTO(post application.News) newsDTO {
	return newsDTO{
		ID:             post.ID,
		Title:          post.Title,
		Body:           post.Body,
		AuthorEmail:    post.AuthorEmail,
		PublishedAt:    formatTime(post.PublishedAt),
		MinAccessLevel: post.MinAccessLevel,
		CreatedAt:      formatTime(post.CreatedAt),
		UpdatedAt:      formatTime(post.UpdatedAt),
	}
}
