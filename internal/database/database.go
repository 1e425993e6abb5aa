// Package database opens the stores the points daemon runs on.
package database

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteFile = "points.db"
	sqliteMemoryPath  = ":memory:"
)

// Target is a resolved connection string.
type Target struct {
	Driver string
	// DSN is the postgres URL or the sqlite file path.
	DSN string
}

// ResolveDriver maps a database URL to a driver. postgres:// and postgresql:// select
// postgres, sqlite:// selects sqlite, and anything else is a sqlite file path.
func ResolveDriver(databaseURL string) (Target, error) {
	trimmed := strings.TrimSpace(databaseURL)
	if trimmed == "" {
		return Target{}, fmt.Errorf("database url is required")
	}
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		return Target{Driver: DriverPostgres, DSN: trimmed}, nil
	}
	if strings.HasPrefix(trimmed, "sqlite://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return Target{}, fmt.Errorf("parse sqlite url: %w", err)
		}
		path := parsed.Path
		if parsed.Host != "" {
			path = parsed.Host + path
		}
		if path == "" || path == "/" {
			path = defaultSQLiteFile
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return Target{Driver: DriverSQLite, DSN: sqlitePath}, err
	}
	sqlitePath, err := normalizeSQLitePath(trimmed)
	return Target{Driver: DriverSQLite, DSN: sqlitePath}, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == sqliteMemoryPath {
		return path, nil
	}
	cleaned := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleaned), 0o755); err != nil {
		return "", fmt.Errorf("create sqlite directory: %w", err)
	}
	return cleaned, nil
}

// OpenGORM opens target with the matching GORM dialector. The returned cleanup closes the pool.
func OpenGORM(ctx context.Context, target Target) (*gorm.DB, func() error, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var (
		db  *gorm.DB
		err error
	)
	switch target.Driver {
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(target.DSN), cfg)
	case DriverSQLite:
		db, err = gorm.Open(sqlite.Open(target.DSN), cfg)
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", target.Driver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", target.Driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	if target.Driver == DriverSQLite {
		// sqlite allows one writer; a single connection serialises writes instead of failing them.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", target.Driver, err)
	}
	return db.WithContext(ctx), sqlDB.Close, nil
}

// OpenPool opens a pgx pool for a postgres target.
func OpenPool(ctx context.Context, target Target) (*pgxpool.Pool, error) {
	if target.Driver != DriverPostgres {
		return nil, fmt.Errorf("pgx needs a postgres url, got driver %q", target.Driver)
	}
	pool, err := pgxpool.New(ctx, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pgx pool: %w", err)
	}
	return pool, nil
}
