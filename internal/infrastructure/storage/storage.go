package storage

import (
	"context"
)

// StorageAdapter is the Stage sink the sync worker writes staged FHIR
// documents to, one JSON file per record under
// stage/<jobId>/<entityType>_<index>.json.
type StorageAdapter interface {
	// WriteJSON marshals and writes data as JSON.
	WriteJSON(ctx context.Context, path string, v interface{}) error
}
