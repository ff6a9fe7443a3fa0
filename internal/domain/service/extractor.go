package service

import "context"

// ConnectionParams carries the credentials needed to open a source
// connection. Credentials are passed by value to the extractor and never
// retained beyond the lifetime of the Handle it returns.
type ConnectionParams struct {
	Host     string
	Port     int
	Service  string
	Username string
	Password string
}

// ExtractorHandle wraps one opened source connection. It allows serialized
// reuse across calls from a single Worker; it is never shared across jobs.
type ExtractorHandle interface {
	// CountRecords returns the total row count for table.
	CountRecords(ctx context.Context, table string) (int64, error)

	// FetchPage returns up to pageSize rows starting at the given
	// zero-based offset, in a stable order (by physical row identifier).
	FetchPage(ctx context.Context, table string, offset, pageSize int) ([]map[string]interface{}, error)

	// FetchFirstRow returns a single sample row, or nil if table is empty.
	FetchFirstRow(ctx context.Context, table string) (map[string]interface{}, error)

	// Close releases the underlying connection.
	Close() error
}

// Extractor opens handles onto a tenant's configured data source. open()
// fails with a ConnectError-wrapped error on credential/network failure;
// the other ExtractorHandle methods fail with QueryError-wrapped errors.
type Extractor interface {
	Open(ctx context.Context, params ConnectionParams) (ExtractorHandle, error)
}
