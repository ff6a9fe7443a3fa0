// Package terminology implements the Terminology Mapping Store: per-tenant
// code/display lookup and CUSTOM value administration, per spec.md §4.4.
package terminology

import (
	"context"
	"sort"

	"github.com/google/uuid"

	domainerrors "github.com/interhealth/syncengine/internal/domain/errors"
	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/repository"
	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

// Store implements the Terminology Mapping Store over the Catalog Store's
// terminology_models/terminology_values collections. It satisfies
// transform/replacer.TerminologyLookup.
type Store struct {
	models repository.TerminologyModelRepository
	values repository.TerminologyValueRepository
}

func New(models repository.TerminologyModelRepository, values repository.TerminologyValueRepository) *Store {
	return &Store{models: models, values: values}
}

// Lookup returns the canonical code and description for the first client
// entry whose ownerId, tenantId (companyId), and sourceKey align.
func (s *Store) Lookup(ctx context.Context, ownerID, tenantID uuid.UUID, sourceKey string) (code, description string, found bool, err error) {
	client, err := s.values.FindClient(ctx, ownerID, tenantID, sourceKey)
	if err != nil {
		return "", "", false, err
	}
	if client == nil {
		return "", "", false, nil
	}
	return client.Code, client.Description, true, nil
}

// ListForTenant returns DEFAULT values merged with CUSTOM values that have
// at least one client entry for the tenant; client entries are filtered to
// the tenant's own, per spec.md §4.4.
func (s *Store) ListForTenant(ctx context.Context, ownerID, tenantID uuid.UUID) ([]*entity.TerminologyModel, error) {
	all, err := s.models.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	clients, err := s.values.ListClientsForTenant(ctx, ownerID, tenantID)
	if err != nil {
		return nil, err
	}
	hasClient := make(map[uuid.UUID]bool, len(clients))
	for _, c := range clients {
		hasClient[c.ValueID] = true
	}

	out := make([]*entity.TerminologyModel, 0, len(all))
	for _, m := range all {
		if m.Type == valueobject.TerminologyTypeDefault {
			out = append(out, m)
			continue
		}
		if m.Type == valueobject.TerminologyTypeCustom && hasClient[m.ID] {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// UpsertClientInput carries the fields upsertClient accepts; pointer fields
// are optional overrides.
type UpsertClientInput struct {
	ValueID           uuid.UUID
	TenantID          uuid.UUID
	ConnectionID      *uuid.UUID
	SourceKey         string
	SourceDescription string
	Status            *valueobject.TerminologyClientStatus
	Code              *string
	Description       *string
}

// UpsertClient is idempotent per (valueId, tenantId, connectionId): if
// sourceKey changed, or (for CUSTOM) code changed, the resulting entry's
// status is forced to pending, per spec.md §4.4/§3.
func (s *Store) UpsertClient(ctx context.Context, in UpsertClientInput) error {
	model, err := s.models.GetByID(ctx, in.ValueID)
	if err != nil {
		return err
	}
	if model == nil {
		return domainerrors.ErrNotFound.WithCause(err)
	}

	existing, err := s.values.FindClientByTuple(ctx, in.ValueID, in.TenantID, in.ConnectionID)
	if err != nil {
		return err
	}

	code := model.Code
	if in.Code != nil {
		code = *in.Code
	}
	description := model.Description
	if in.Description != nil {
		description = *in.Description
	}

	status := valueobject.TerminologyClientStatusPending
	if in.Status != nil {
		status = *in.Status
	}

	forcePending := false
	if existing != nil {
		if existing.SourceKey != in.SourceKey {
			forcePending = true
		}
		if model.Type == valueobject.TerminologyTypeCustom && existing.Code != code {
			forcePending = true
		}
	}
	if forcePending {
		status = valueobject.TerminologyClientStatusPending
	}

	client := &entity.TerminologyClient{
		ValueID:           in.ValueID,
		OwnerID:           model.OwnerID,
		Code:              code,
		Description:       description,
		SourceKey:         in.SourceKey,
		SourceDescription: in.SourceDescription,
		Status:            status,
		CompanyID:         in.TenantID,
		ConnectionID:      in.ConnectionID,
	}
	return s.values.UpsertClient(ctx, client)
}
