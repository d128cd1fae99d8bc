package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/busline/ticketing-backend/internal/config"
)

// DB is the slice of sqlx the repositories use. Repositories that only need
// this interface can run against sqlmock in tests.
type DB interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Query(query string, args ...interface{}) (*sql.Rows, error)
	Ping() error
	Close() error
}

// PostgresDB satisfies DB through the embedded sqlx handle.
type PostgresDB struct {
	*sqlx.DB
}

const (
	connectAttempts   = 5
	connectRetryDelay = 2 * time.Second
)

// NewConnection opens a pooled PostgreSQL connection. Startup races with the
// database coming up in compose environments, so the initial connect retries
// a few times before giving up.
func NewConnection(cfg config.DatabaseConfig) (DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	dsn := withSimpleProtocol(cfg.URL)

	var db *sqlx.DB
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			break
		}
		if attempt < connectAttempts {
			time.Sleep(connectRetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", connectAttempts, err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxLifetime / 2)

	return &PostgresDB{DB: db}, nil
}

// withSimpleProtocol forces the simple query protocol unless the URL already
// picks one. Transaction poolers like Supavisor and PgBouncer break extended
// protocol prepared statements mid-session otherwise.
func withSimpleProtocol(raw string) string {
	if strings.Contains(raw, "prefer_simple_protocol") {
		return raw
	}
	separator := "?"
	if strings.Contains(raw, "?") {
		separator = "&"
	}
	return raw + separator + "prefer_simple_protocol=true"
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation. Services pre-check uniqueness before inserting, but two
// concurrent writers can both pass the check; the constraint catches the
// loser and repositories map it to the same conflict error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
