package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"

	"github.com/Additional-Code/tableside/internal/config"
)

// Open builds a bun handle for the SQL-backed remote store. The endpoint is the
// driver DSN and the API key, when present, is used as the connection password.
func Open(remote config.Remote, pool config.Database) (*bun.DB, error) {
	dial, err := selectDialect(remote.Driver)
	if err != nil {
		return nil, err
	}

	sqldb, err := openSQLDB(remote.Driver, remote.Endpoint, remote.APIKey)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", remote.Driver, err)
	}
	applyPoolSettings(sqldb, pool)

	return bun.NewDB(sqldb, dial), nil
}

// Ping verifies the connection with a bounded timeout.
func Ping(ctx context.Context, db *bun.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.DB.PingContext(pingCtx)
}

func selectDialect(driver string) (schema.Dialect, error) {
	switch driver {
	case "postgres":
		return pgdialect.New(), nil
	case "mysql":
		return mysqldialect.New(), nil
	case "sqlite":
		return sqlitedialect.New(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func openSQLDB(driver, dsn, password string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty DSN")
	}

	switch driver {
	case "postgres":
		opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
		if password != "" {
			opts = append(opts, pgdriver.WithPassword(password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	case "mysql":
		withPassword, err := mysqlDSN(dsn, password)
		if err != nil {
			return nil, err
		}
		return sql.Open("mysql", withPassword)
	case "sqlite":
		return sql.Open(sqliteshim.ShimName, dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

func mysqlDSN(dsn, password string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	if password != "" && cfg.Passwd == "" {
		cfg.Passwd = password
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func applyPoolSettings(db *sql.DB, cfg config.Database) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
}
