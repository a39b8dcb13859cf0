package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/club-portal/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationDir = "migrations"

// Storage owns the database handle and the repositories built on it. It is
// constructed once at start-up and passed to whatever needs persistence.
type Storage struct {
	pool   *ConnectionPool
	logger *slog.Logger

	Users      *UserRepository
	Sessions   *SessionRepository
	Categories *CategoryRepository
	Events     *EventRepository
	Attendance *AttendanceRepository
	News       *NewsRepository
}

// Open connects to the database described by cfg. Call Migrate before use.
func Open(cfg migration.SQLiteConfig, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}

	return &Storage{
		pool:       pool,
		logger:     logger,
		Users:      NewUserRepository(pool),
		Sessions:   NewSessionRepository(pool),
		Categories: NewCategoryRepository(pool),
		Events:     NewEventRepository(pool),
		Attendance: NewAttendanceRepository(pool),
		News:       NewNewsRepository(pool),
	}, nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// Ping checks that the database answers.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema migrations, retrying while another
// process holds the database lock.
func (s *Storage) Migrate(ctx context.Context) error {
	manager := migration.NewMigrationManager(
		migration.NewFileScanner(migrationFiles),
		migration.NewSQLiteExecutor(s.pool.DB()),
		migrationDir,
		s.logger,
	)

	retry := NewRetryHelper(DefaultRetryConfig())
	if err := retry.WithRetry(ctx, func() error { return manager.RunMigrations(ctx) }); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
