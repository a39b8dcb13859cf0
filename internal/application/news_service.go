package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// NewsRepository captures the persistence operations needed by the news service.
type NewsRepository interface {
	CreateNews(ctx context.Context, news News) (News, error)
	GetNews(ctx context.Context, id int64) (News, error)
	UpdateNews(ctx context.Context, id int64, patch NewsPatch) (News, error)
	DeleteNews(ctx context.Context, id int64) error
	ListNews(ctx context.Context, query NewsQuery) ([]News, error)
}

const maxNewsTitleLength = 128

// NewsService publishes announcements and serves the feed.
type NewsService struct {
	news   NewsRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewNewsService constructs a news service with the provided dependencies.
func NewNewsService(news NewsRepository, now func() time.Time) *NewsService {
	return NewNewsServiceWithLogger(news, now, nil)
}

// NewNewsServiceWithLogger constructs a news service with a specified logger.
func NewNewsServiceWithLogger(news NewsRepository, now func() time.Time, logger *slog.Logger) *NewsService {
	if now == nil {
		now = time.Now
	}
	return &NewsService{news: news, now: now, logger: defaultLogger(logger)}
}

func (s *NewsService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "NewsService", operation, attrs...)
}

// Newsfeed returns published posts newest first. Before defaults to now, so
// posts scheduled for later stay hidden.
func (s *NewsService) Newsfeed(ctx context.Context, params NewsfeedParams) ([]News, error) {
	if s == nil {
		return nil, fmt.Errorf("NewsService is nil")
	}

	offset, limit, vErr := resolvePage(params.Offset, params.MaxEntries)
	if vErr != nil {
		return nil, vErr
	}
	before := params.Before
	if before == nil {
		now := s.now()
		before = &now
	}

	feed, err := s.news.ListNews(ctx, NewsQuery{
		Before:        before,
		AccessCeiling: params.AccessCeiling,
		Offset:        offset,
		Limit:         limit,
	})
	if err != nil {
		return nil, storeError("list news", err)
	}
	if feed == nil {
		feed = []News{}
	}
	return feed, nil
}

// GetNews returns a post visible to the principal. Unpublished posts are
// visible to officers only.
func (s *NewsService) GetNews(ctx context.Context, principal Principal, id int64) (News, error) {
	if s == nil {
		return News{}, fmt.Errorf("NewsService is nil")
	}

	news, err := s.news.GetNews(ctx, id)
	if err != nil {
		return News{}, storeError("get news", err)
	}
	level := principal.Level()
	if news.MinAccessLevel > level {
		return News{}, ErrNotFound
	}
	if news.PublishedAt.After(s.now()) && level < AccessOfficer {
		return News{}, ErrNotFound
	}
	return news, nil
}

// CreateNews publishes a post authored by the principal.
func (s *NewsService) CreateNews(ctx context.Context, principal Principal, input NewsInput) (news News, err error) {
	if s == nil {
		err = fmt.Errorf("NewsService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateNews", "actor", principal.Email())
	defer func() {
		logOutcome(ctx, logger, err, "news creation", "news_id", news.ID)
	}()

	if err = authorize(principal, AccessOfficer); err != nil {
		return
	}

	title := strings.TrimSpace(input.Title)
	if vErr := validateNews(&title, &input.MinAccessLevel); vErr.HasErrors() {
		err = vErr
		return
	}

	publishedAt := s.now()
	if input.PublishedAt != nil {
		publishedAt = *input.PublishedAt
	}
	author := principal.Email()

	news, err = s.news.CreateNews(ctx, News{
		Title:          title,
		Body:           input.Body,
		AuthorEmail:    &author,
		PublishedAt:    publishedAt,
		MinAccessLevel: input.MinAccessLevel,
	})
	if err != nil {
		news = News{}
		err = storeError("create news", err)
	}
	return
}

// UpdateNews applies a partial update for officers.
func (s *NewsService) UpdateNews(ctx context.Context, principal Principal, id int64, patch NewsPatch) (news News, err error) {
	if s == nil {
		err = fmt.Errorf("NewsService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateNews", "actor", principal.Email(), "news_id", id)
	defer func() {
		logOutcome(ctx, logger, err, "news update")
	}()

	if err = authorize(principal, AccessOfficer); err != nil {
		return
	}
	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		patch.Title = &trimmed
	}
	if vErr := validateNews(patch.Title, patch.MinAccessLevel); vErr.HasErrors() {
		err = vErr
		return
	}

	news, err = s.news.UpdateNews(ctx, id, patch)
	if err != nil {
		news = News{}
		err = storeError("update news", err)
	}
	return
}

// DeleteNews removes a post for officers.
func (s *NewsService) DeleteNews(ctx context.Context, principal Principal, id int64) (err error) {
	if s == nil {
		return fmt.Errorf("NewsService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteNews", "actor", principal.Email(), "news_id", id)
	defer func() {
		logOutcome(ctx, logger, err, "news deletion")
	}()

	if err = authorize(principal, AccessOfficer); err != nil {
		return
	}
	err = storeError("delete news", s.news.DeleteNews(ctx, id))
	return
}

func validateNews(title *string, level *AccessLevel) *ValidationError {
	vErr := &ValidationError{}
	if title != nil {
		switch {
		case *title == "":
			vErr.add("title", "title is required")
		case utf8.RuneCountInString(*title) > maxNewsTitleLength:
			vErr.add("title", fmt.Sprintf("must be at most %d characters", maxNewsTitleLength))
		}
	}
	if level != nil && !level.Valid() {
		vErr.add("min_access_level", "unknown access level")
	}
	return vErr
}
