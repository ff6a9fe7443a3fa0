// Package postgres implements the Catalog Store (spec.md §6) as Postgres
// tables: one JSONB payload column holding the full document plus the
// indexed columns the spec names for each collection. Grounded on the
// teacher's infrastructure/persistence/postgres package (db.go's
// retry/backoff connection helper, company_repository.go's plain
// database/sql query style).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	domainservice "github.com/interhealth/syncengine/internal/domain/service"
)

const (
	maxRetries     = 10
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	pingTimeout    = 5 * time.Second
)

// DB holds the catalog's database connection.
type DB struct {
	*sql.DB
}

func NewDB(databaseURL string, log domainservice.Logger) (*DB, error) {
	return NewDBWithContext(context.Background(), databaseURL, log)
}

// NewDBWithContext opens a connection, retrying with exponential backoff
// on dial or ping failure, per the teacher's db.go.
func NewDBWithContext(ctx context.Context, databaseURL string, log domainservice.Logger) (*DB, error) {
	var db *sql.DB
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("database connection cancelled: %w", ctx.Err())
		default:
		}

		if attempt > 0 && log != nil {
			log.Warn("retrying catalog database connection", "attempt", attempt+1, "maxRetries", maxRetries, "error", lastErr)
		}

		db, lastErr = sql.Open("postgres", databaseURL)
		if lastErr != nil {
			if err := wait(ctx, calculateBackoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(1 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = db.PingContext(pingCtx)
		cancel()

		if lastErr == nil {
			if log != nil {
				log.Info("catalog database connection established")
			}
			return &DB{db}, nil
		}

		db.Close()
		if err := wait(ctx, calculateBackoff(attempt)); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to connect to catalog database after %d attempts: %w", maxRetries, lastErr)
}

func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("database connection cancelled: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

func calculateBackoff(attempt int) time.Duration {
	backoff := initialBackoff * time.Duration(1<<uint(attempt))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

func (db *DB) Close() error {
	return db.DB.Close()
}
