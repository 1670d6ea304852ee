package database

import (
	"context"
	"fmt"
)

// Optimize runs SQLite's PRAGMA optimize on the pool selected by ctx to
// refresh planner stats.
func (db *DB) Optimize(ctx context.Context) error {
	return db.sqliteMaintenance(ctx, "PRAGMA optimize", "optimize")
}

// Vacuum rebuilds the database file of the pool selected by ctx to
// reclaim unused space.
func (db *DB) Vacuum(ctx context.Context) error {
	return db.sqliteMaintenance(ctx, "VACUUM", "vacuum")
}

func (db *DB) sqliteMaintenance(ctx context.Context, stmt, name string) error {
	if db == nil || db.router == nil {
		return fmt.Errorf("database not initialized")
	}

	target, pool, err := db.router.Resolve(ctx)
	if err != nil {
		return err
	}
	if pool.DriverName() != DriverSQLite {
		return fmt.Errorf("%s is only supported for sqlite pools, %s uses %s", name, target, pool.DriverName())
	}

	if _, err := pool.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to %s %s database: %w", name, target, err)
	}

	return nil
}
