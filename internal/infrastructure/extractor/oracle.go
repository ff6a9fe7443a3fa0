// Package extractor implements the Source Extractor against a client's
// Oracle database, per spec.md §4.1. It is the one concrete Extractor
// implementation; tests use an in-memory fake instead
// (application/service package's fakeExtractor).
package extractor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	go_ora "github.com/sijms/go-ora/v2"
	"golang.org/x/time/rate"

	domainerrors "github.com/interhealth/syncengine/internal/domain/errors"
	"github.com/interhealth/syncengine/internal/domain/service"
)

// OracleExtractor opens pooled database/sql connections against a client's
// Oracle source using the pure-Go go-ora driver (no Oracle instant client
// required). Each job's Worker calls Open once and reuses the returned
// handle for count/fetch calls, per spec.md §4.1's "handle wraps an
// internally locked connection" contract.
type OracleExtractor struct {
	connectTimeout time.Duration
	queryTimeout   time.Duration
	// limiterPerSecond bounds query rate per opened handle, grounded on
	// taibuivan-yomira's rate.Limiter request-throttling middleware.
	limiterPerSecond float64
	limiterBurst     int
}

// Option configures an OracleExtractor.
type Option func(*OracleExtractor)

func WithConnectTimeout(d time.Duration) Option { return func(o *OracleExtractor) { o.connectTimeout = d } }
func WithQueryTimeout(d time.Duration) Option    { return func(o *OracleExtractor) { o.queryTimeout = d } }
func WithQueryRateLimit(perSecond float64, burst int) Option {
	return func(o *OracleExtractor) {
		o.limiterPerSecond = perSecond
		o.limiterBurst = burst
	}
}

// New builds an OracleExtractor with sane defaults: 10s connect timeout,
// 30s per-call query timeout, unlimited query rate unless overridden.
func New(opts ...Option) *OracleExtractor {
	e := &OracleExtractor{
		connectTimeout: 10 * time.Second,
		queryTimeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *OracleExtractor) Open(ctx context.Context, params service.ConnectionParams) (service.ExtractorHandle, error) {
	dsn := go_ora.BuildUrl(params.Host, params.Port, params.Service, params.Username, params.Password, nil)

	db, err := sql.Open("oracle", dsn)
	if err != nil {
		return nil, domainerrors.ErrConnectError.WithCause(err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	connectCtx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()
	if err := db.PingContext(connectCtx); err != nil {
		db.Close()
		return nil, domainerrors.ErrConnectError.WithCause(err)
	}

	var limiter *rate.Limiter
	if e.limiterPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.limiterPerSecond), e.limiterBurst)
	}

	return &oracleHandle{
		db:           db,
		queryTimeout: e.queryTimeout,
		limiter:      limiter,
	}, nil
}

type oracleHandle struct {
	db           *sql.DB
	queryTimeout time.Duration
	limiter      *rate.Limiter
}

func (h *oracleHandle) wait(ctx context.Context) error {
	if h.limiter == nil {
		return nil
	}
	return h.limiter.Wait(ctx)
}

func (h *oracleHandle) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.queryTimeout)
}

func (h *oracleHandle) CountRecords(ctx context.Context, table string) (int64, error) {
	if err := h.wait(ctx); err != nil {
		return 0, domainerrors.ErrQueryError.WithCause(err)
	}
	qctx, cancel := h.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	var count int64
	if err := h.db.QueryRowContext(qctx, query).Scan(&count); err != nil {
		return 0, domainerrors.ErrQueryError.WithCause(err)
	}
	return count, nil
}

func (h *oracleHandle) FetchPage(ctx context.Context, table string, offset, pageSize int) ([]map[string]interface{}, error) {
	if err := h.wait(ctx); err != nil {
		return nil, domainerrors.ErrQueryError.WithCause(err)
	}
	qctx, cancel := h.withTimeout(ctx)
	defer cancel()

	// Oracle 12c+ offset/fetch pagination, ordered by ROWID for stability
	// across pages as the underlying table is append-only during a run.
	query := fmt.Sprintf(
		"SELECT * FROM %s ORDER BY ROWID OFFSET %d ROWS FETCH NEXT %d ROWS ONLY",
		table, offset, pageSize,
	)
	rows, err := h.db.QueryContext(qctx, query)
	if err != nil {
		return nil, domainerrors.ErrQueryError.WithCause(err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, domainerrors.ErrQueryError.WithCause(err)
	}
	return records, nil
}

func (h *oracleHandle) FetchFirstRow(ctx context.Context, table string) (map[string]interface{}, error) {
	rows, err := h.FetchPage(ctx, table, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (h *oracleHandle) Close() error {
	return h.db.Close()
}

// scanRows reads every row into a column-name-lowercased map, coercing
// values to string where possible, nulls to "", and preserving numerics,
// per spec.md §4.1.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	lowered := make([]string, len(columns))
	for i, c := range columns {
		lowered[i] = strings.ToLower(c)
	}

	var records []map[string]interface{}
	for rows.Next() {
		raw := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(map[string]interface{}, len(columns))
		for i, col := range lowered {
			record[col] = normalizeValue(raw[i])
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return t
	}
}
