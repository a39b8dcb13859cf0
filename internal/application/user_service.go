package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	// UpsertUser inserts the user or refreshes the profile fields of an
	// existing one, keeping its stored access level.
	UpsertUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, email string, patch UserPatch) (User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]User, error)
}

const maxNameLength = 64

// UserService orchestrates validation, authorization, and persistence for users.
type UserService struct {
	users  UserRepository
	logger *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository) *UserService {
	return NewUserServiceWithLogger(users, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a specified logger.
func NewUserServiceWithLogger(users UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: defaultLogger(logger)}
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

// RecordLogin creates the account on first sign-in as NON_MEMBER, or
// refreshes names and picture on later sign-ins.
func (s *UserService) RecordLogin(ctx context.Context, profile UserProfile) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RecordLogin", "email", profile.Email)
	defer func() {
		logOutcome(ctx, logger, err, "login upsert", "access_level", user.AccessLevel)
	}()

	normalized := UserProfile{
		Email:      strings.TrimSpace(profile.Email),
		GivenName:  strings.TrimSpace(profile.GivenName),
		FamilyName: strings.TrimSpace(profile.FamilyName),
		PictureURL: strings.TrimSpace(profile.PictureURL),
	}
	vErr := &ValidationError{}
	if !isEmail(normalized.Email) {
		vErr.add("email", "email is invalid")
	}
	vErr.merge(validateProfile(&normalized.GivenName, &normalized.FamilyName, &normalized.PictureURL))
	if vErr.HasErrors() {
		err = vErr
		return
	}

	user, err = s.users.UpsertUser(ctx, User{
		Email:       normalized.Email,
		GivenName:   normalized.GivenName,
		FamilyName:  normalized.FamilyName,
		PictureURL:  normalized.PictureURL,
		AccessLevel: AccessNonMember,
	})
	if err != nil {
		user = User{}
		err = storeError("upsert user", err)
	}
	return
}

// GetUser returns a user to themselves or to an officer.
func (s *UserService) GetUser(ctx context.Context, principal Principal, email string) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if err := authorizeSelfOr(principal, email, AccessOfficer); err != nil {
		return User{}, err
	}

	user, err := s.users.GetUser(ctx, email)
	if err != nil {
		return User{}, storeError("get user", err)
	}
	return user, nil
}

// UpdateUser changes the profile fields of a user. Users may edit
// themselves; officers may edit anyone. Access levels are changed through
// SetAccessLevel only.
func (s *UserService) UpdateUser(ctx context.Context, principal Principal, email string, patch UserPatch) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateUser", "email", email, "actor", principal.Email())
	defer func() {
		logOutcome(ctx, logger, err, "user update")
	}()

	if err = authorizeSelfOr(principal, email, AccessOfficer); err != nil {
		return
	}
	if patch.AccessLevel != nil {
		err = invalidField("access_level", "use the access level endpoint")
		return
	}
	if vErr := validateProfile(patch.GivenName, patch.FamilyName, patch.PictureURL); vErr.HasErrors() {
		err = vErr
		return
	}

	user, err = s.users.UpdateUser(ctx, email, patch)
	if err != nil {
		user = User{}
		err = storeError("update user", err)
	}
	return
}

// SetAccessLevel changes a user's role. Only advisors may do this, and an
// advisor cannot lower their own level.
func (s *UserService) SetAccessLevel(ctx context.Context, principal Principal, email string, level AccessLevel) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SetAccessLevel", "email", email, "actor", principal.Email(), "access_level", level)
	defer func() {
		logOutcome(ctx, logger, err, "access level change")
	}()

	if err = authorize(principal, AccessAdvisor); err != nil {
		return
	}
	if !level.Valid() {
		err = invalidField("access_level", "unknown access level")
		return
	}
	if email == principal.Email() && level < AccessAdvisor {
		err = invalidField("access_level", "advisors cannot demote themselves")
		return
	}

	user, err = s.users.UpdateUser(ctx, email, UserPatch{AccessLevel: &level})
	if err != nil {
		user = User{}
		err = storeError("set access level", err)
	}
	return
}

// ListUsers returns users ordered by email for officers.
func (s *UserService) ListUsers(ctx context.Context, principal Principal, offset, maxEntries *int) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}
	if err := authorize(principal, AccessOfficer); err != nil {
		return nil, err
	}

	resolvedOffset, limit, vErr := resolvePage(offset, maxEntries)
	if vErr != nil {
		return nil, vErr
	}

	users, err := s.users.ListUsers(ctx, resolvedOffset, limit)
	if err != nil {
		return nil, storeError("list users", err)
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

func authorizeSelfOr(principal Principal, email string, level AccessLevel) error {
	if !principal.SignedIn() {
		return ErrUnauthorized
	}
	if principal.Email() == email {
		return nil
	}
	return authorize(principal, level)
}

func isEmail(value string) bool {
	if value == "" {
		return false
	}
	addr, err := mail.ParseAddress(value)
	return err == nil && addr.Address == value
}

func validateProfile(givenName, familyName, pictureURL *string) *ValidationError {
	vErr := &ValidationError{}

	if givenName != nil && utf8.RuneCountInString(*givenName) > maxNameLength {
		vErr.add("given_name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	if familyName != nil && utf8.RuneCountInString(*familyName) > maxNameLength {
		vErr.add("family_name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	if pictureURL != nil && *pictureURL != "" {
		parsed, err := url.Parse(*pictureURL)
		if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
			vErr.add("picture_url", "must be an absolute http(s) URL")
		}
	}

	return vErr
}
