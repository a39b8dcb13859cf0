package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/club-portal/internal/application"
	"github.com/example/club-portal/internal/oauth"
)

const accountAttendancePageSize = 30

var errIdentityChanged = errors.New("provider account no longer matches this session")

// AccountHandler serves the signed-in user's own page and profile sync.
type AccountHandler struct {
	provider   identityProvider
	sessions   sessionService
	users      loginRecorder
	attendance attendanceService
	responder  responder
	logger     *slog.Logger
}

func NewAccountHandler(provider identityProvider, sessions sessionService, users loginRecorder, attendance attendanceService, logger *slog.Logger) *AccountHandler {
	base := defaultLogger(logger)
	return &AccountHandler{
		provider:   provider,
		sessions:   sessions,
		users:      users,
		attendance: attendance,
		responder:  newResponder(base),
		logger:     base,
	}
}

func (h *AccountHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AccountHandler", operation, attrs...)
}

// Get returns the viewer's profile, attendance history and points. The
// optional from/to bounds restrict which events count towards the points.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	if !principal.SignedIn() {
		h.responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
		return
	}

	q := newQueryParams(r)
	offset := q.optionalInt("offset")
	maxEntries := q.pageSize(accountAttendancePageSize)
	from := q.optionalTime("from")
	to := q.optionalTime("to")
	if err := q.err(); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	email := principal.Email()
	logger := h.log(r.Context(), "Get", "email", email)

	page, err := h.attendance.FilterAttendance(r.Context(), application.AttendanceFilter{
		UserEmails: []string{email},
		Offset:     offset,
		MaxEntries: maxEntries,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "attendance history failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	points, err := h.attendance.AttendancePoints(r.Context(), email, from, to)
	if err != nil {
		logger.WarnContext(r.Context(), "attendance points failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, accountResponse{
		User:       toUserDTO(*principal.User),
		Attendance: toAttendancePageResponse(page),
		Points:     points,
	})
}

// Sync reloads the profile from the provider with the session's stored
// credentials. Tokens the provider rotates along the way are written back
// to the session.
func (h *AccountHandler) Sync(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	if !principal.SignedIn() || principal.Session == nil {
		h.responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
		return
	}

	logger := h.log(r.Context(), "Sync", "email", principal.Email())
	identity, err := h.provider.Refresh(r.Context(), principal.Session.Token, principal.Session.Credentials, h.sessions)
	if err != nil {
		if errors.Is(err, oauth.ErrDomainNotAllowed) || errors.Is(err, oauth.ErrMissingEmail) {
			logger.WarnContext(r.Context(), "profile sync rejected", "error", err)
			h.responder.writeError(r.Context(), w, http.StatusForbidden, err)
			return
		}
		logger.ErrorContext(r.Context(), "profile sync failed", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadGateway, nil)
		return
	}
	if !strings.EqualFold(identity.Email, principal.Email()) {
		logger.WarnContext(r.Context(), "provider returned a different account", "provider_email", identity.Email)
		h.responder.writeError(r.Context(), w, http.StatusForbidden, errIdentityChanged)
		return
	}

	profile := identity.Profile()
	profile.Email = principal.Email()
	user, err := h.users.RecordLogin(r.Context(), profile)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to store synced profile", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "profile synced")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

type accountResponse struct {
	User       userDTO                `json:"user"`
	Attendance attendancePageResponse `json:"attendance"`
	Points     int                    `json:"points"`
}
