// Package repository declares the Catalog Store's collection contracts.
// Concrete implementations live under infrastructure/persistence/postgres;
// the document-store shape described by spec.md §6 is modeled as Postgres
// tables with a JSONB payload column plus the indexed columns named there.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

// IntegrationRepository is the `integrations` collection: indexed by
// (tenantId, name), by id, and by connectionId.
type IntegrationRepository interface {
	Create(ctx context.Context, i *entity.Integration) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Integration, error)
	GetByTenantAndName(ctx context.Context, tenantID uuid.UUID, name string) (*entity.Integration, error)
	ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*entity.Integration, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*entity.Integration, error)
	Update(ctx context.Context, i *entity.Integration) error
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// ConnectionRepository is the `connections` collection: indexed by
// (tenantId, name).
type ConnectionRepository interface {
	Create(ctx context.Context, c *entity.SourceConnection) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.SourceConnection, error)
	GetByTenantAndName(ctx context.Context, tenantID uuid.UUID, name string) (*entity.SourceConnection, error)
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// MappingRepository is the `mappings` collection: indexed by integrationId,
// entityType.
type MappingRepository interface {
	GetByIntegration(ctx context.Context, integrationID uuid.UUID) (*entity.Mapping, error)
	GetByIntegrationAndEntityType(ctx context.Context, integrationID uuid.UUID, entityType valueobject.EntityType) (*entity.Mapping, error)
	Upsert(ctx context.Context, m *entity.Mapping) error
}

// TerminologyModelRepository is the `terminology_models` collection: by id.
type TerminologyModelRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.TerminologyModel, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entity.TerminologyModel, error)
	Upsert(ctx context.Context, m *entity.TerminologyModel) error
}

// TerminologyValueRepository is the `terminology_values` collection: by
// (ownerId, tenantId), and by (ownerId, type, code) for CUSTOM upsert.
type TerminologyValueRepository interface {
	// FindClient returns the client entry matching (ownerId, tenantId,
	// sourceKey), or nil if none matches.
	FindClient(ctx context.Context, ownerID, tenantID uuid.UUID, sourceKey string) (*entity.TerminologyClient, error)

	// FindClientByTuple returns the client entry matching the invariant
	// tuple (valueId, tenantId, connectionId), or nil if none exists yet.
	// Used by upsertClient to detect sourceKey/code changes against the
	// entry it is about to replace.
	FindClientByTuple(ctx context.Context, valueID, tenantID uuid.UUID, connectionID *uuid.UUID) (*entity.TerminologyClient, error)

	// ListClientsForTenant returns every client entry for (ownerId,
	// tenantId), used by listForTenant to filter CUSTOM models.
	ListClientsForTenant(ctx context.Context, ownerID, tenantID uuid.UUID) ([]*entity.TerminologyClient, error)

	// UpsertClient replaces any existing entry for (valueId, tenantId,
	// connectionId) with c, performed as delete-then-insert within the
	// single value document.
	UpsertClient(ctx context.Context, c *entity.TerminologyClient) error
}

// JobRepository is the `jobs` collection: by id (== jobId string), and by
// (integrationId, createdAt desc).
type JobRepository interface {
	Create(ctx context.Context, j *entity.Job) error
	GetByID(ctx context.Context, id string) (*entity.Job, error)
	Update(ctx context.Context, j *entity.Job) error
	ListByIntegration(ctx context.Context, integrationID uuid.UUID) ([]*entity.Job, error)

	// FindActiveByIntegration matches status in {Pending, Running, Paused}.
	FindActiveByIntegration(ctx context.Context, integrationID uuid.UUID) (*entity.Job, error)

	// ListByStatus returns every persisted job with the given status,
	// used by Manager.recover() to find Running jobs at startup.
	ListByStatus(ctx context.Context, status valueobject.JobStatus) ([]*entity.Job, error)

	// ListByTenant returns every persisted job for a tenant, used by the
	// Metrics Aggregator.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*entity.Job, error)

	// CountByStatus returns per-status counts for tenantID, or across all
	// tenants when tenantID is nil, used by the `stats` surface.
	CountByStatus(ctx context.Context, tenantID *uuid.UUID) (map[valueobject.JobStatus]int, error)
}

// MetricsRepository is the `metrics_summary` collection: one document per
// tenant keyed by tenantId.
type MetricsRepository interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*entity.MetricsSummary, error)
	Upsert(ctx context.Context, m *entity.MetricsSummary) error
}

// Clock abstracts time.Now for deterministic tests of timestamp-setting
// lifecycle transitions.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
