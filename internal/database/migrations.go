package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/routedb/internal/dbrouter"
)

// Migrate runs all database migrations on the pool selected by ctx.
// Callers route it to the primary; standalone setups without replication
// run it once per target.
func (db *DB) Migrate(ctx context.Context) error {
	target, pool, err := db.router.Resolve(ctx)
	if err != nil {
		return err
	}
	// Pin the resolved target so every statement below lands on the same pool.
	ctx, scope := dbrouter.Bind(ctx, target)
	defer scope.Release()

	log.Info().Str("target", target.String()).Msg("Running database migrations")

	// Create migrations table if not exists
	_, err = pool.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = pool.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	log.Debug().Str("target", target.String()).Int("current_version", currentVersion).Msg("Current schema version")

	// Run migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		log.Info().Int("version", migration.Version).Str("name", migration.Name).Msg("Applying migration")

		if err := db.Transaction(ctx, func(tx *sqlx.Tx) error {
			// Execute migration SQL - split by semicolons and execute each statement
			// This ensures each statement is properly executed and errors are caught
			statements := splitSQLStatements(migration.sql(pool.DriverName()))
			for i, stmt := range statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d statement %d failed: %w", migration.Version, i+1, err)
				}
			}

			// Record migration
			if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), migration.Version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}

			return nil
		}); err != nil {
			return err
		}
	}

	log.Info().Str("target", target.String()).Msg("Database migrations complete")
	return nil
}

// MigrateTargets migrates the primary, or every registered target when all
// is set. Targets that are independent databases need all; replicas fed by
// the primary receive the schema through replication.
func (db *DB) MigrateTargets(ctx context.Context, all bool) error {
	targets := []dbrouter.Target{dbrouter.Primary}
	if all {
		targets = db.Targets()
	}

	for _, target := range targets {
		if err := dbrouter.Run(ctx, dbrouter.On(target), db.Migrate); err != nil {
			return fmt.Errorf("migrate %s: %w", target, err)
		}
	}
	return nil
}

// SchemaVersion returns the latest applied migration on the pool selected by ctx
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	pool, err := db.Pool(ctx)
	if err != nil {
		return 0, err
	}
	var version int
	if err := pool.GetContext(ctx, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

type migration struct {
	Version int
	Name    string
	// SQL is the statement list for SQLite. Postgres overrides it when the
	// dialects differ.
	SQL      string
	Postgres string
}

func (m migration) sql(driver string) string {
	if driver == DriverPgx && m.Postgres != "" {
		return m.Postgres
	}
	return m.SQL
}

// splitSQLStatements splits a SQL string into individual statements.
// It handles comments and only returns non-empty statements.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	lines := strings.SplitSeq(sql, "\n")
	for line := range lines {
		trimmed := strings.TrimSpace(line)
		// Skip empty lines and comments
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		// Check if line ends with semicolon (statement complete)
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	// Handle any remaining content without trailing semicolon
	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}

	return statements
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "tutorials",
		SQL: `
			CREATE TABLE tutorials (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				title TEXT NOT NULL,
				description TEXT,
				published BOOLEAN NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);

			CREATE INDEX idx_tutorials_published ON tutorials(published);
		`,
		Postgres: `
			CREATE TABLE tutorials (
				id BIGSERIAL PRIMARY KEY,
				title TEXT NOT NULL,
				description TEXT,
				published BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);

			CREATE INDEX idx_tutorials_published ON tutorials(published);
		`,
	},
	{
		Version: 2,
		Name:    "tutorials_published_at",
		SQL: `
			ALTER TABLE tutorials ADD COLUMN published_at TIMESTAMP;
		`,
		Postgres: `
			ALTER TABLE tutorials ADD COLUMN published_at TIMESTAMPTZ;
		`,
	},
}
