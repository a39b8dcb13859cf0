package migration

import (
	"context"
	"time"
)

// Migration is one versioned schema change read from a migration source.
type Migration struct {
	Version     string // numeric prefix of the file name, e.g. "001"
	Description string
	SQL         string
	FilePath    string // path inside the source filesystem
	Checksum    string // sha256 of SQL
}

// MigrationManager orchestrates the migration process.
type MigrationManager interface {
	// RunMigrations executes all pending migrations in version order.
	RunMigrations(ctx context.Context) error

	// GetPendingMigrations returns migrations that have not been applied.
	GetPendingMigrations(ctx context.Context) ([]Migration, error)

	// GetMigrationStatus reports the current version and pending work.
	GetMigrationStatus(ctx context.Context) (*MigrationStatus, error)
}

// FileScanner reads migration files from a filesystem.
type FileScanner interface {
	// ScanMigrations returns every migration below dir sorted by version.
	ScanMigrations(dir string) ([]Migration, error)

	// ValidateFileName checks the {version}_{description}.sql convention.
	ValidateFileName(filename string) error

	// ParseMigrationFile reads and parses a single migration file.
	ParseMigrationFile(filePath string) (*Migration, error)
}

// Executor applies migrations to a database.
type Executor interface {
	// ExecuteMigration runs a single migration and records it in one transaction.
	ExecuteMigration(ctx context.Context, migration Migration) error

	// InitializeVersionTable creates the schema_migrations table if needed.
	InitializeVersionTable(ctx context.Context) error

	// GetAppliedVersions returns all applied migrations ordered by version.
	GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error)
}

// MigrationStatus describes the migration state of a database.
type MigrationStatus struct {
	CurrentVersion    string
	PendingCount      int
	AppliedMigrations []AppliedMigration
	PendingMigrations []Migration
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}
