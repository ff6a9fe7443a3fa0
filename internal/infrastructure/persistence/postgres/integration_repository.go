package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/repository"
	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

// integrationRow is the JSONB payload shape for one integrations row;
// indexed columns (tenant_id, name, connection_id) live alongside it so
// the lookups spec.md §6 names (by tenantId+name, by id, by connectionId)
// are ordinary Postgres WHERE clauses rather than JSON containment scans.
type integrationRow struct {
	Status       string   `json:"status"`
	EntityType   string   `json:"entityType"`
	BoundJobID   *string  `json:"boundJobId"`
	SubResources []string `json:"subResources"`
}

// IntegrationRepository implements repository.IntegrationRepository.
type IntegrationRepository struct {
	db *sql.DB
}

func NewIntegrationRepository(db *sql.DB) repository.IntegrationRepository {
	return &IntegrationRepository{db: db}
}

func (r *IntegrationRepository) Create(ctx context.Context, i *entity.Integration) error {
	payload, err := json.Marshal(integrationRow{
		Status:       i.Status.String(),
		EntityType:   i.EntityType.String(),
		BoundJobID:   i.BoundJobID,
		SubResources: i.SubResources,
	})
	if err != nil {
		return err
	}
	query := `
		INSERT INTO integrations (id, tenant_id, name, connection_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query, i.ID, i.TenantID, i.Name, i.ConnectionID, payload).
		Scan(&i.CreatedAt, &i.UpdatedAt)
}

func (r *IntegrationRepository) scanRow(row *sql.Row) (*entity.Integration, error) {
	var i entity.Integration
	var payload []byte
	if err := row.Scan(&i.ID, &i.TenantID, &i.Name, &i.ConnectionID, &payload, &i.CreatedAt, &i.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan integration: %w", err)
	}
	var body integrationRow
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode integration payload: %w", err)
	}
	i.Status = valueobject.IntegrationStatus(body.Status)
	i.EntityType = valueobject.NormalizeEntityType(body.EntityType)
	i.BoundJobID = body.BoundJobID
	i.SubResources = body.SubResources
	return &i, nil
}

const selectIntegrationColumns = "id, tenant_id, name, connection_id, payload, created_at, updated_at"

func (r *IntegrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Integration, error) {
	query := fmt.Sprintf("SELECT %s FROM integrations WHERE id = $1", selectIntegrationColumns)
	return r.scanRow(r.db.QueryRowContext(ctx, query, id))
}

func (r *IntegrationRepository) GetByTenantAndName(ctx context.Context, tenantID uuid.UUID, name string) (*entity.Integration, error) {
	query := fmt.Sprintf("SELECT %s FROM integrations WHERE tenant_id = $1 AND name = $2", selectIntegrationColumns)
	return r.scanRow(r.db.QueryRowContext(ctx, query, tenantID, name))
}

func (r *IntegrationRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*entity.Integration, error) {
	query := fmt.Sprintf("SELECT %s FROM integrations WHERE connection_id = $1 ORDER BY created_at", selectIntegrationColumns)
	return r.list(ctx, query, connectionID)
}

func (r *IntegrationRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*entity.Integration, error) {
	query := fmt.Sprintf("SELECT %s FROM integrations WHERE tenant_id = $1 ORDER BY created_at", selectIntegrationColumns)
	return r.list(ctx, query, tenantID)
}

func (r *IntegrationRepository) list(ctx context.Context, query string, arg interface{}) ([]*entity.Integration, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Integration
	for rows.Next() {
		var i entity.Integration
		var payload []byte
		if err := rows.Scan(&i.ID, &i.TenantID, &i.Name, &i.ConnectionID, &payload, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		var body integrationRow
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, err
		}
		i.Status = valueobject.IntegrationStatus(body.Status)
		i.EntityType = valueobject.NormalizeEntityType(body.EntityType)
		i.BoundJobID = body.BoundJobID
		i.SubResources = body.SubResources
		out = append(out, &i)
	}
	return out, rows.Err()
}

func (r *IntegrationRepository) Update(ctx context.Context, i *entity.Integration) error {
	payload, err := json.Marshal(integrationRow{
		Status:       i.Status.String(),
		EntityType:   i.EntityType.String(),
		BoundJobID:   i.BoundJobID,
		SubResources: i.SubResources,
	})
	if err != nil {
		return err
	}
	query := `
		UPDATE integrations
		SET name = $1, connection_id = $2, payload = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`
	return r.db.QueryRowContext(ctx, query, i.Name, i.ConnectionID, payload, i.ID).Scan(&i.UpdatedAt)
}

func (r *IntegrationRepository) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM integrations WHERE tenant_id = $1", tenantID).Scan(&count)
	return count, err
}
