package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/club-portal/internal/application"
)

type userService interface {
	GetUser(ctx context.Context, principal application.Principal, email string) (application.User, error)
	UpdateUser(ctx context.Context, principal application.Principal, email string, patch application.UserPatch) (application.User, error)
	SetAccessLevel(ctx context.Context, principal application.Principal, email string, level application.AccessLevel) (application.User, error)
	ListUsers(ctx context.Context, principal application.Principal, offset, maxEntries *int) ([]application.User, error)
}

type UserHandler struct {
	service   userService
	responder responder
	logger    *slog.Logger
}

func NewUserHandler(service userService, logger *slog.Logger) *UserHandler {
	base := defaultLogger(logger)
	return &UserHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *UserHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "UserHandler", operation, attrs...)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	q := newQueryParams(r)
	offset := q.optionalInt("offset")
	maxEntries := q.optionalInt("max")
	if err := q.err(); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "List", "actor", principal.Email())
	users, err := h.service.ListUsers(r.Context(), principal, offset, maxEntries)
	if err != nil {
		logger.WarnContext(r.Context(), "user list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listUsersResponse{Users: toUserDTOs(users)})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	email := emailParam(r)

	user, err := h.service.GetUser(r.Context(), principal, email)
	if err != nil {
		h.log(r.Context(), "Get", "actor", principal.Email(), "email", email).
			WarnContext(r.Context(), "user lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	email := emailParam(r)
	if email == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEmail)
		return
	}

	var req userPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Update", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode user update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "actor", principal.Email(), "email", email)
	user, err := h.service.UpdateUser(r.Context(), principal, email, application.UserPatch{
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
		PictureURL: req.PictureURL,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "user update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "user updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

func (h *UserHandler) SetAccessLevel(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	email := emailParam(r)
	if email == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEmail)
		return
	}

	var req accessLevelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "SetAccessLevel", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode access level", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	level, err := application.ParseAccessLevel(req.AccessLevel)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "SetAccessLevel", "actor", principal.Email(), "email", email, "level", level.String())
	user, err := h.service.SetAccessLevel(r.Context(), principal, email, level)
	if err != nil {
		logger.WarnContext(r.Context(), "access level change failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "access level changed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

type userPatchRequest struct {
	GivenName  *string `json:"given_name"`
	FamilyName *string `json:"family_name"`
	PictureURL *string `json:"picture_url"`
}

type accessLevelRequest struct {
	AccessLevel string `json:"access_level"`
}

type userResponse struct {
	User userDTO `json:"user"`
}

type listUsersResponse struct {
	Users []userDTO `json:"users"`
}

type userDTO struct {
	Email       string                  `json:"email"`
	GivenName   string                  `json:"given_name"`
	FamilyName  string                  `json:"family_name"`
	PictureURL  string                  `json:"picture_url,omitempty"`
	AccessLevel application.AccessLevel `json:"access_level"`
	CreatedAt   string                  `json:"created_at,omitempty"`
	UpdatedAt   string                  `json:"updated_at,omitempty"`
}

func toUserDTO(user application.User) userDTO {
	return userDTO{
		Email:       user.Email,
		GivenName:   user.GivenName,
		FamilyName:  user.FamilyName,
		PictureURL:  user.PictureURL,
		AccessLevel: user.AccessLevel,
		CreatedAt:   formatTime(user.CreatedAt),
		UpdatedAt:   formatTime(user.UpdatedAt),
	}
}

func toUserDTOs(users []application.User) []userDTO {
	out := make([]userDTO, 0, len(users))
	for _, user := range users {
		out = append(out, toUserDTO(user))
	}
	return out
}
