package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// CategoryRepository captures the persistence operations needed by the service.
type CategoryRepository interface {
	CreateCategory(ctx context.Context, category EventCategory) (EventCategory, error)
	GetCategory(ctx context.Context, id int64) (EventCategory, error)
	ListCategories(ctx context.Context) ([]EventCategory, error)
	UpdateCategory(ctx context.Context, id int64, patch CategoryPatch) (EventCategory, error)
	DeleteCategory(ctx context.Context, id int64) error
}

const maxCategoryNameLength = 64

// CategoryService manages event categories. Reads are public; changes
// require an officer.
type CategoryService struct {
	categories CategoryRepository
	cache      *categoryCache
	logger     *slog.Logger
}

// NewCategoryService constructs a category service with the provided dependencies.
func NewCategoryService(categories CategoryRepository) *CategoryService {
	return NewCategoryServiceWithLogger(categories, nil)
}

// NewCategoryServiceWithLogger constructs a category service with a specified logger.
func NewCategoryServiceWithLogger(categories CategoryRepository, logger *slog.Logger) *CategoryService {
	return &CategoryService{
		categories: categories,
		cache:      newCategoryCache(defaultCategoryCacheTTL, time.Now),
		logger:     defaultLogger(logger),
	}
}

func (s *CategoryService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CategoryService", operation, attrs...)
}

// ListCategories returns every category ordered by ID.
func (s *CategoryService) ListCategories(ctx context.Context) ([]EventCategory, error) {
	if s == nil {
		return nil, fmt.Errorf("CategoryService is nil")
	}

	if cached, ok := s.cache.Get(); ok {
		return cached, nil
	}
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, storeError("list categories", err)
	}
	if categories == nil {
		categories = []EventCategory{}
	}
	s.cache.Store(categories)
	return categories, nil
}

// GetCategory returns a single category.
func (s *CategoryService) GetCategory(ctx context.Context, id int64) (EventCategory, error) {
	if s == nil {
		return EventCategory{}, fmt.Errorf("CategoryService is nil")
	}

	category, err := s.categories.GetCategory(ctx, id)
	if err != nil {
		return EventCategory{}, storeError("get category", err)
	}
	return category, nil
}

// CreateCategory validates input and persists a new category for officers.
func (s *CategoryService) CreateCategory(ctx context.Context, principal Principal, input CategoryInput) (category EventCategory, err error) {
	if s == nil {
		err = fmt.Errorf("CategoryService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateCategory", "actor", principal.Email())
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "failed to create category", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("category_id", category.ID).InfoContext(ctx, "category created")
	}()

	if err = authorize(principal, AccessOfficer); err != nil {
		return
	}

	name := strings.TrimSpace(input.Name)
	if vErr := validateCategory(&name, &input.Points); vErr.HasErrors() {
		err = vErr
		return
	}

	category, err = s.categories.CreateCategory(ctx, EventCategory{Name: name, Points: input.Points})
	if err != nil {
		category = EventCategory{}
		err = storeError("create category", err)
		return
	}
	s.cache.Invalidate()
	return
}

// UpdateCategory applies a partial update for officers.
func (s *CategoryService) UpdateCategory(ctx context.Context, principal Principal, id int64, patch CategoryPatch) (category EventCategory, err error) {
	if s == nil {
		err = fmt.Errorf("CategoryService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateCategory", "actor", principal.Email(), "category_id", id)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "failed to update category", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "category updated")
	}()

	if err = authorize(principal, AccessOfficer); err != nil {
		return
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		patch.Name = &trimmed
	}
	if vErr := validateCategory(patch.Name, patch.Points); vErr.HasErrors() {
		err = vErr
		return
	}

	category, err = s.categories.UpdateCategory(ctx, id, patch)
	if err != nil {
		category = EventCategory{}
		err = storeError("update category", err)
		return
	}
	s.cache.Invalidate()
	return
}

// DeleteCategory removes a category for officers. Events in it become uncategorized.
func (s *CategoryService) DeleteCategory(ctx context.Context, principal Principal, id int64) (err error) {
	if s == nil {
		return fmt.Errorf("CategoryService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteCategory", "actor", principal.Email(), "category_id", id)
	defer func() {
		logOutcome(ctx, logger, err, "category deletion")
	}()

	if err = authorize(principal, AccessOfficer); err != nil {
		return
	}
	if err = storeError("delete category", s.categories.DeleteCategory(ctx, id)); err != nil {
		return
	}
	s.cache.Invalidate()
	return
}

func validateCategory(name *string, points *int) *ValidationError {
	vErr := &ValidationError{}
	if name != nil {
		switch {
		case *name == "":
			vErr.add("name", "name is required")
		case utf8.RuneCountInString(*name) > maxCategoryNameLength:
			vErr.add("name", fmt.Sprintf("must be at most %d characters", maxCategoryNameLength))
		}
	}
	if points != nil && *points < 0 {
		vErr.add("points", "must not be negative")
	}
	return vErr
}
