// Package migration applies versioned SQL files to the club portal SQLite
// database and opens connections configured for it.
//
// Migration files live in an fs.FS (normally the embedded migrations
// directory of package sqlite) and are named {version}_{description}.sql,
// e.g. "001_initial_schema.sql". A "-- Description:" comment at the top of a
// file overrides the description derived from its name.
//
// Applied versions are tracked in the schema_migrations table together with
// the file checksum. A file whose checksum changed after it was applied stops
// the run with ErrChecksumMismatch.
//
//	manager := migration.NewMigrationManager(
//		migration.NewFileScanner(migrationsFS),
//		migration.NewSQLiteExecutor(db),
//		"migrations",
//		logger,
//	)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
