package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/club-portal/internal/persistence"
	"github.com/example/club-portal/internal/persistence/sqlite"
	"github.com/example/club-portal/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides repository access backed by a temporary, migrated
// SQLite file.
type SQLiteHarness struct {
	Storage *sqlite.Storage

	Users      persistence.UserRepository
	Sessions   persistence.SessionRepository
	Categories persistence.CategoryRepository
	Events     persistence.EventRepository
	Attendance persistence.AttendanceRepository
	News       persistence.NewsRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a database in tb's temp dir. The
// harness closes itself when the test finishes.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "clubportal.db")
	storage, err := sqlite.Open(migration.TempFileTestSQLiteConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:    storage,
		Users:      storage.Users,
		Sessions:   storage.Sessions,
		Categories: storage.Categories,
		Events:     storage.Events,
		Attendance: storage.Attendance,
		News:       storage.News,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedUser stores the fixture and returns the stored row.
func (h *SQLiteHarness) SeedUser(tb testing.TB, fixture UserFixture) persistence.User {
	tb.Helper()
	user, err := h.Users.CreateUser(context.Background(), fixture.Persistence())
	if err != nil {
		tb.Fatalf("seed user %s: %v", fixture.Email, err)
	}
	return user
}

// SeedCategory stores the fixture and returns it with its assigned ID.
func (h *SQLiteHarness) SeedCategory(tb testing.TB, fixture CategoryFixture) CategoryFixture {
	tb.Helper()
	created, err := h.Categories.CreateCategory(context.Background(), fixture.Persistence())
	if err != nil {
		tb.Fatalf("seed category %s: %v", fixture.Name, err)
	}
	fixture.ID = created.ID
	return fixture
}

// SeedEvent stores the fixture and returns it with its assigned ID.
func (h *SQLiteHarness) SeedEvent(tb testing.TB, fixture EventFixture) EventFixture {
	tb.Helper()
	created, err := h.Events.CreateEvent(context.Background(), fixture.Persistence())
	if err != nil {
		tb.Fatalf("seed event %s: %v", fixture.Title, err)
	}
	fixture.ID = created.ID
	return fixture
}

// SeedNews stores the fixture and returns the stored row.
func (h *SQLiteHarness) SeedNews(tb testing.TB, fixture NewsFixture) persistence.News {
	tb.Helper()
	created, err := h.News.CreateNews(context.Background(), fixture.Persistence())
	if err != nil {
		tb.Fatalf("seed news %s: %v", fixture.Title, err)
	}
	return created
}

// SeedSession stores the fixture. The user must already exist.
func (h *SQLiteHarness) SeedSession(tb testing.TB, fixture SessionFixture) persistence.Session {
	tb.Helper()
	created, err := h.Sessions.CreateSession(context.Background(), fixture.Persistence())
	if err != nil {
		tb.Fatalf("seed session for %s: %v", fixture.UserEmail, err)
	}
	return created
}
