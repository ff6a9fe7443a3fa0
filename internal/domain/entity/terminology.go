package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

// TerminologyModel holds a canonical code and its display description. It
// is either a system DEFAULT or a tenant-authored CUSTOM entry.
type TerminologyModel struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Type        valueobject.TerminologyType
	Code        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TerminologyClient is a per-tenant variant that maps a source key to the
// owning TerminologyModel's canonical code. At most one client entry exists
// per (ValueID, CompanyID, ConnectionID) tuple; upserting the same tuple
// replaces the prior entry.
type TerminologyClient struct {
	ValueID uuid.UUID
	OwnerID uuid.UUID

	// Code and Description are the canonical values this client entry
	// resolves to; upsertClient may override them per-tenant (CUSTOM
	// entries), otherwise they default to the owning TerminologyModel's.
	Code        string
	Description string

	SourceKey         string
	SourceDescription string
	Status            valueobject.TerminologyClientStatus
	CompanyID         uuid.UUID
	ConnectionID      *uuid.UUID
}
