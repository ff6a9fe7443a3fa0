package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

// Integration is a named, tenant-owned configuration linking a source
// connection to a target entity type. It is immutable per run; restarting
// a job replaces BoundJobID but leaves the rest untouched.
type Integration struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Name         string
	EntityType   valueobject.EntityType
	ConnectionID uuid.UUID
	Status       valueobject.IntegrationStatus
	BoundJobID   *string
	SubResources []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SourceConnection holds the credentials used to open an extractor handle.
// Credentials are passed to the extractor and never cached by it; Password
// is encrypted at rest in the catalog (see infrastructure/crypto).
type SourceConnection struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Host      string
	Port      int
	Database  string
	Username  string
	Password  string
	Type      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
