package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/saltyorg/routedb/internal/config"
	"github.com/saltyorg/routedb/internal/dbrouter"
)

const (
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

// ErrNotFound is returned when a row addressed by ID does not exist
var ErrNotFound = errors.New("not found")

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// DB is the routing connection pool. It stands in for a single pool and
// hands every acquisition to the pool selected by the routing context.
type DB struct {
	router *dbrouter.Router[*sqlx.DB]
}

// Open opens one pool per configured datasource and builds the routing
// registry. If any pool fails to open, the pools already opened are closed.
func Open(ctx context.Context, cfg config.DatabaseConfig, opts ...dbrouter.RouterOption) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	targets, err := cfg.Targets()
	if err != nil {
		return nil, err
	}
	def, err := cfg.Default()
	if err != nil {
		return nil, err
	}

	pools := make(map[dbrouter.Target]*sqlx.DB, len(targets))
	closeOpened := func() {
		for target, pool := range pools {
			if err := pool.Close(); err != nil {
				log.Error().Err(err).Str("target", target.String()).Msg("Failed to close pool")
			}
		}
	}

	for target, ds := range targets {
		pool, err := openPool(ctx, ds)
		if err != nil {
			closeOpened()
			return nil, fmt.Errorf("failed to open %s pool: %w", target, err)
		}
		pools[target] = pool

		log.Debug().
			Str("target", target.String()).
			Str("driver", pool.DriverName()).
			Msg("Database pool established")
	}

	return New(pools, def, opts...)
}

// New builds a routing pool over already opened pools
func New(pools map[dbrouter.Target]*sqlx.DB, def dbrouter.Target, opts ...dbrouter.RouterOption) (*DB, error) {
	registry, err := dbrouter.NewRegistry(pools, def)
	if err != nil {
		return nil, err
	}
	return &DB{router: dbrouter.NewRouter(registry, opts...)}, nil
}

func openPool(ctx context.Context, ds config.DataSourceConfig) (*sqlx.DB, error) {
	driver := DriverName(ds.Driver)
	dsn, err := DSN(ds)
	if err != nil {
		return nil, err
	}

	pool, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if ds.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(ds.MaxOpenConns)
	}
	if ds.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(ds.MaxIdleConns)
	}
	if ds.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(ds.ConnMaxLifetime)
	}
	if ds.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(ds.ConnMaxIdleTime)
	}

	// Test connection
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// DriverName maps configured driver names to registered database/sql drivers
func DriverName(driver string) string {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return DriverSQLite
	case "pgx", "postgres", "postgresql":
		return DriverPgx
	default:
		return driver
	}
}

// DSN builds the driver connection string for a datasource.
// SQLite paths get WAL mode, a busy timeout and foreign keys unless the
// URL already carries parameters. Credentials are injected into Postgres
// URLs and keyword/value strings.
func DSN(ds config.DataSourceConfig) (string, error) {
	switch DriverName(ds.Driver) {
	case DriverSQLite:
		if strings.Contains(ds.URL, "?") {
			return ds.URL, nil
		}
		return ds.URL + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil

	case DriverPgx:
		if ds.Username == "" && ds.Password == "" {
			return ds.URL, nil
		}
		if strings.Contains(ds.URL, "://") {
			u, err := url.Parse(ds.URL)
			if err != nil {
				return "", fmt.Errorf("invalid datasource url: %w", err)
			}
			username := ds.Username
			if username == "" && u.User != nil {
				username = u.User.Username()
			}
			u.User = url.UserPassword(username, ds.Password)
			return u.String(), nil
		}
		dsn := ds.URL
		if ds.Username != "" {
			dsn += " user=" + ds.Username
		}
		if ds.Password != "" {
			dsn += " password=" + ds.Password
		}
		return strings.TrimSpace(dsn), nil

	default:
		return ds.URL, nil
	}
}

// Router returns the router behind the pool
func (db *DB) Router() *dbrouter.Router[*sqlx.DB] {
	return db.router
}

// Pool returns the pool selected by ctx. Statements run on it borrow and
// return connections on their own.
func (db *DB) Pool(ctx context.Context) (*sqlx.DB, error) {
	return db.router.Acquire(ctx)
}

// Conn borrows a dedicated connection from the pool selected by ctx.
// The caller must Close it to return it to its pool.
func (db *DB) Conn(ctx context.Context) (*sqlx.Conn, error) {
	target, pool, err := db.router.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := pool.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s connection: %w", target, err)
	}
	return conn, nil
}

// Transaction wraps a function in a transaction on the pool selected by ctx
func (db *DB) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	pool, err := db.Pool(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Targets returns the registered targets
func (db *DB) Targets() []dbrouter.Target {
	return db.router.Registry().Targets()
}

// DefaultTarget returns the target used when nothing is bound
func (db *DB) DefaultTarget() dbrouter.Target {
	def, _ := db.router.Registry().Default()
	return def
}

// Ping pings every pool and returns the result per target
func (db *DB) Ping(ctx context.Context) map[dbrouter.Target]error {
	results := make(map[dbrouter.Target]error)
	db.router.Registry().Each(func(target dbrouter.Target, pool *sqlx.DB) {
		results[target] = pool.PingContext(ctx)
	})
	return results
}

// Stats returns connection statistics per target
func (db *DB) Stats() map[dbrouter.Target]sql.DBStats {
	stats := make(map[dbrouter.Target]sql.DBStats)
	db.router.Registry().Each(func(target dbrouter.Target, pool *sqlx.DB) {
		stats[target] = pool.Stats()
	})
	return stats
}

// Close closes every pool
func (db *DB) Close() error {
	return db.router.Registry().Close()
}
