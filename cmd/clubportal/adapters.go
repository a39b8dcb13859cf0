package main

import (
	"context"
	"errors"
	"time"

	"github.com/example/club-portal/internal/application"
	"github.com/example/club-portal/internal/persistence"
)

var (
	_ application.UserRepository       = (*userRepositoryAdapter)(nil)
	_ application.UserDirectory        = (*userRepositoryAdapter)(nil)
	_ application.SessionRepository    = (*sessionRepositoryAdapter)(nil)
	_ application.CategoryRepository   = (*categoryRepositoryAdapter)(nil)
	_ application.EventRepository      = (*eventRepositoryAdapter)(nil)
	_ application.EventReader          = (*eventRepositoryAdapter)(nil)
	_ application.AttendanceRepository = (*attendanceRepositoryAdapter)(nil)
	_ application.NewsRepository       = (*newsRepositoryAdapter)(nil)
)

// translateError maps persistence failures onto the application error kinds.
// Missing rows become ErrNotFound. Everything else, including CHECK and
// NOT NULL violations the services did not catch first, is a StoreError for op.
func translateError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return application.ErrNotFound
	default:
		return application.NewStoreError(op, err)
	}
}

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func newUserRepositoryAdapter(repo persistence.UserRepository) *userRepositoryAdapter {
	return &userRepositoryAdapter{repo: repo}
}

func (a *userRepositoryAdapter) UpsertUser(ctx context.Context, user application.User) (application.User, error) {
	stored, err := a.repo.UpsertUser(ctx, toPersistenceUser(user))
	if err != nil {
		return application.User{}, translateError("upsert user", err)
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) GetUser(ctx context.Context, email string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, email)
	if err != nil {
		return application.User{}, translateError("get user", err)
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) UpdateUser(ctx context.Context, email string, patch application.UserPatch) (application.User, error) {
	var level *int
	if patch.AccessLevel != nil {
		v := int(*patch.AccessLevel)
		level = &v
	}
	stored, err := a.repo.UpdateUser(ctx, email, persistence.UserPatch{
		GivenName:   patch.GivenName,
		FamilyName:  patch.FamilyName,
		PictureURL:  patch.PictureURL,
		AccessLevel: level,
	})
	if err != nil {
		return application.User{}, translateError("update user", err)
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) ListUsers(ctx context.Context, offset, limit int) ([]application.User, error) {
	models, err := a.repo.ListUsers(ctx, offset, limit)
	if err != nil {
		return nil, translateError("list users", err)
	}
	return toApplicationUsers(models), nil
}

type sessionRepositoryAdapter struct {
	repo persistence.SessionRepository
}

func newSessionRepositoryAdapter(repo persistence.SessionRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{repo: repo}
}

func (a *sessionRepositoryAdapter) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.CreateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, translateError("create session", err)
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, token string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, token)
	if err != nil {
		return application.Session{}, translateError("get session", err)
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) ExtendSession(ctx context.Context, token string, expiresAt, now time.Time) (application.Session, error) {
	stored, err := a.repo.ExtendSession(ctx, token, expiresAt, now)
	if err != nil {
		return application.Session{}, translateError("extend session", err)
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) MergeCredentials(ctx context.Context, token string, update application.ProviderCredentials, now time.Time) error {
	return translateError("merge session credentials", a.repo.MergeSessionCredentials(ctx, token, persistence.Credentials(update), now))
}

func (a *sessionRepositoryAdapter) DeleteSession(ctx context.Context, token string) error {
	return translateError("delete session", a.repo.DeleteSession(ctx, token))
}

func (a *sessionRepositoryAdapter) DeleteExpiredSession(ctx context.Context, token string, now time.Time) error {
	return translateError("delete expired session", a.repo.DeleteExpiredSession(ctx, token, now))
}

type categoryRepositoryAdapter struct {
	repo persistence.CategoryRepository
}

func newCategoryRepositoryAdapter(repo persistence.CategoryRepository) *categoryRepositoryAdapter {
	return &categoryRepositoryAdapter{repo: repo}
}

func (a *categoryRepositoryAdapter) CreateCategory(ctx context.Context, category application.EventCategory) (application.EventCategory, error) {
	stored, err := a.repo.CreateCategory(ctx, persistence.EventCategory{Name: category.Name, Points: category.Points})
	if err != nil {
		return application.EventCategory{}, translateError("create category", err)
	}
	return toApplicationCategory(stored), nil
}

func (a *categoryRepositoryAdapter) GetCategory(ctx context.Context, id int64) (application.EventCategory, error) {
	stored, err := a.repo.GetCategory(ctx, id)
	if err != nil {
		return application.EventCategory{}, translateError("get category", err)
	}
	return toApplicationCategory(stored), nil
}

func (a *categoryRepositoryAdapter) ListCategories(ctx context.Context) ([]application.EventCategory, error) {
	models, err := a.repo.ListCategories(ctx)
	if err != nil {
		return nil, translateError("list categories", err)
	}
	categories := make([]application.EventCategory, 0, len(models))
	for _, model := range models {
		categories = append(categories, toApplicationCategory(model))
	}
	return categories, nil
}

func (a *categoryRepositoryAdapter) UpdateCategory(ctx context.Context, id int64, patch application.CategoryPatch) (application.EventCategory, error) {
	stored, err := a.repo.UpdateCategory(ctx, id, persistence.CategoryPatch{Name: patch.Name, Points: patch.Points})
	if err != nil {
		return application.EventCategory{}, translateError("update category", err)
	}
	return toApplicationCategory(stored), nil
}

func (a *categoryRepositoryAdapter) DeleteCategory(ctx context.Context, id int64) error {
	return translateError("delete category", a.repo.DeleteCategory(ctx, id))
}

type eventRepositoryAdapter struct {
	repo persistence.EventRepository
}

func newEventRepositoryAdapter(repo persistence.EventRepository) *eventRepositoryAdapter {
	return &eventRepositoryAdapter{repo: repo}
}

// translateEventWrite reports an unknown category as a field error.
func translateEventWrite(op string, err error) error {
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		return &application.ValidationError{FieldErrors: map[string]string{"category_id": "unknown category"}}
	}
	return translateError(op, err)
}

func (a *eventRepositoryAdapter) CreateEvent(ctx context.Context, event application.Event) (application.Event, error) {
	stored, err := a.repo.CreateEvent(ctx, toPersistenceEvent(event))
	if err != nil {
		return application.Event{}, translateEventWrite("create event", err)
	}
	return toApplicationEvent(stored), nil
}

func (a *eventRepositoryAdapter) GetEvent(ctx context.Context, id int64) (application.Event, error) {
	stored, err := a.repo.GetEvent(ctx, id)
	if err != nil {
		return application.Event{}, translateError("get event", err)
	}
	return toApplicationEvent(stored), nil
}

func (a *eventRepositoryAdapter) UpdateEvent(ctx context.Context, id int64, patch application.EventPatch) (application.Event, error) {
	stored, err := a.repo.UpdateEvent(ctx, id, persistence.EventPatch{
		Title:          patch.Title,
		Location:       patch.Location,
		StartDate:      patch.StartDate,
		EndDate:        patch.EndDate,
		CategoryID:     patch.CategoryID,
		ClearCategory:  patch.ClearCategory,
		MinAccessLevel: levelPtr(patch.MinAccessLevel),
	})
	if err != nil {
		return application.Event{}, translateEventWrite("update event", err)
	}
	return toApplicationEvent(stored), nil
}

func (a *eventRepositoryAdapter) DeleteEvent(ctx context.Context, id int64) error {
	return translateError("delete event", a.repo.DeleteEvent(ctx, id))
}

func (a *eventRepositoryAdapter) FilterEvents(ctx context.Context, query application.EventQuery) (application.EventPage, error) {
	page, err := a.repo.FilterEvents(ctx, persistence.EventFilter{
		From:          query.From,
		To:            query.To,
		AccessCeiling: levelPtr(query.AccessCeiling),
		Offset:        query.Offset,
		Limit:         query.Limit,
		Ascending:     query.Ascending,
	})
	if err != nil {
		return application.EventPage{}, translateError("filter events", err)
	}
	events := make([]application.Event, 0, len(page.Events))
	for _, model := range page.Events {
		events = append(events, toApplicationEvent(model))
	}
	return application.EventPage{TotalCount: page.TotalCount, Results: events}, nil
}

type attendanceRepositoryAdapter struct {
	repo persistence.AttendanceRepository
}

func newAttendanceRepositoryAdapter(repo persistence.AttendanceRepository) *attendanceRepositoryAdapter {
	return &attendanceRepositoryAdapter{repo: repo}
}

func (a *attendanceRepositoryAdapter) Attend(ctx context.Context, eventID int64, email string, attendedAt time.Time) error {
	err := a.repo.Attend(ctx, persistence.Attendance{EventID: eventID, UserEmail: email, AttendedAt: attendedAt})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrDuplicate):
		return application.ErrDuplicateAttendance
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return application.ErrNotFound
	}
	return translateError("attend", err)
}

func (a *attendanceRepositoryAdapter) HasAttended(ctx context.Context, eventID int64, email string) (bool, error) {
	attended, err := a.repo.HasAttended(ctx, eventID, email)
	if err != nil {
		return false, translateError("has attended", err)
	}
	return attended, nil
}

func (a *attendanceRepositoryAdapter) ListAttendees(ctx context.Context, eventID int64, offset, limit int) ([]application.User, error) {
	models, err := a.repo.ListAttendees(ctx, eventID, offset, limit)
	if err != nil {
		return nil, translateError("list attendees", err)
	}
	return toApplicationUsers(models), nil
}

func (a *attendanceRepositoryAdapter) RemoveAttendance(ctx context.Context, eventID int64, email string) error {
	return translateError("remove attendance", a.repo.RemoveAttendance(ctx, eventID, email))
}

func (a *attendanceRepositoryAdapter) FilterAttendance(ctx context.Context, query application.AttendanceQuery) (application.AttendancePage, error) {
	page, err := a.repo.FilterAttendance(ctx, persistence.AttendanceFilter{
		EventIDs:   append([]int64(nil), query.EventIDs...),
		UserEmails: append([]string(nil), query.UserEmails...),
		Offset:     query.Offset,
		Limit:      query.Limit,
	})
	if err != nil {
		return application.AttendancePage{}, translateError("filter attendance", err)
	}
	records := make([]application.AttendanceRecord, 0, len(page.Records))
	for _, record := range page.Records {
		records = append(records, application.AttendanceRecord{
			User:       toApplicationUser(record.User),
			Event:      toApplicationEvent(record.Event),
			AttendedAt: record.AttendedAt,
		})
	}
	return application.AttendancePage{TotalCount: page.TotalCount, Results: records}, nil
}

func (a *attendanceRepositoryAdapter) SumPoints(ctx context.Context, email string, from, to *time.Time) (int, error) {
	points, err := a.repo.SumPoints(ctx, email, from, to)
	if err != nil {
		return 0, translateError("sum points", err)
	}
	return points, nil
}

type newsRepositoryAdapter struct {
	repo persistence.NewsRepository
}

func newNewsRepositoryAdapter(repo persistence.NewsRepository) *newsRepositoryAdapter {
	return &newsRepositoryAdapter{repo: repo}
}

func (a *newsRepositoryAdapter) CreateNews(ctx context.Context, news application.News) (application.News, error) {
	stored, err := a.repo.CreateNews(ctx, persistence.News{
		Title:          news.Title,
		Body:           news.Body,
		AuthorEmail:    cloneString(news.AuthorEmail),
		PublishedAt:    news.PublishedAt,
		MinAccessLevel: int(news.MinAccessLevel),
	})
	if err != nil {
		return application.News{}, translateError("create news", err)
	}
	return toApplicationNews(stored), nil
}

func (a *newsRepositoryAdapter) GetNews(ctx context.Context, id int64) (application.News, error) {
	stored, err := a.repo.GetNews(ctx, id)
	if err != nil {
		return application.News{}, translateError("get news", err)
	}
	return toApplicationNews(stored), nil
}

func (a *newsRepositoryAdapter) UpdateNews(ctx context.Context, id int64, patch application.NewsPatch) (application.News, error) {
	stored, err := a.repo.UpdateNews(ctx, id, persistence.NewsPatch{
		Title:          patch.Title,
		Body:           patch.Body,
		PublishedAt:    patch.PublishedAt,
		MinAccessLevel: levelPtr(patch.MinAccessLevel),
	})
	if err != nil {
		return application.News{}, translateError("update news", err)
	}
	return toApplicationNews(stored), nil
}

func (a *newsRepositoryAdapter) DeleteNews(ctx context.Context, id int64) error {
	return translateError("delete news", a.repo.DeleteNews(ctx, id))
}

func (a *newsRepositoryAdapter) ListNews(ctx context.Context, query application.NewsQuery) ([]application.News, error) {
	models, err := a.repo.ListNews(ctx, persistence.NewsFilter{
		Before:        query.Before,
		AccessCeiling: levelPtr(query.AccessCeiling),
		Offset:        query.Offset,
		Limit:         query.Limit,
	})
	if err != nil {
		return nil, translateError("list news", err)
	}
	posts := make([]application.News, 0, len(models))
	for _, model := range models {
		posts = append(posts, toApplicationNews(model))
	}
	return posts, nil
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		Email:       model.Email,
		GivenName:   model.GivenName,
		FamilyName:  model.FamilyName,
		PictureURL:  model.PictureURL,
		AccessLevel: application.AccessLevel(model.AccessLevel),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toApplicationUsers(models []persistence.User) []application.User {
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users
}

func toPersistenceUser(user application.User) persistence.User {
	return persistence.User{
		Email:       user.Email,
		GivenName:   user.GivenName,
		FamilyName:  user.FamilyName,
		PictureURL:  user.PictureURL,
		AccessLevel: int(user.AccessLevel),
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		Token:       model.Token,
		UserEmail:   model.UserEmail,
		Credentials: application.ProviderCredentials(model.Credentials),
		ExpiresAt:   model.ExpiresAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		Token:       session.Token,
		UserEmail:   session.UserEmail,
		Credentials: persistence.Credentials(session.Credentials),
		ExpiresAt:   session.ExpiresAt,
		CreatedAt:   session.CreatedAt,
		UpdatedAt:   session.UpdatedAt,
	}
}

func toApplicationCategory(model persistence.EventCategory) application.EventCategory {
	return application.EventCategory{ID: model.ID, Name: model.Name, Points: model.Points}
}

func toApplicationEvent(model persistence.Event) application.Event {
	return application.Event{
		ID:             model.ID,
		Title:          model.Title,
		Location:       model.Location,
		StartDate:      model.StartDate,
		EndDate:        model.EndDate,
		CategoryID:     cloneInt64(model.CategoryID),
		MinAccessLevel: application.AccessLevel(model.MinAccessLevel),
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

func toPersistenceEvent(event application.Event) persistence.Event {
	return persistence.Event{
		ID:             event.ID,
		Title:          event.Title,
		Location:       event.Location,
		StartDate:      event.StartDate,
		EndDate:        event.EndDate,
		CategoryID:     cloneInt64(event.CategoryID),
		MinAccessLevel: int(event.MinAccessLevel),
		CreatedAt:      event.CreatedAt,
		UpdatedAt:      event.UpdatedAt,
	}
}

func toApplicationNews(model persistence.News) application.News {
	return application.News{
		ID:             model.ID,
		Title:          model.Title,
		Body:           model.Body,
		AuthorEmail:    cloneString(model.AuthorEmail),
		PublishedAt:    model.PublishedAt,
		MinAccessLevel: application.AccessLevel(model.MinAccessLevel),
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

func levelPtr(level *application.AccessLevel) *int {
	if level == nil {
		return nil
	}
	v := int(*level)
	return &v
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneInt64(value *int64) *int64 {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
