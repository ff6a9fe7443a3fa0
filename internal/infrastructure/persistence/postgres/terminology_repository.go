package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/repository"
	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

// TerminologyModelRepository implements repository.TerminologyModelRepository.
type TerminologyModelRepository struct {
	db *sql.DB
}

func NewTerminologyModelRepository(db *sql.DB) repository.TerminologyModelRepository {
	return &TerminologyModelRepository{db: db}
}

const selectTerminologyModelColumns = "id, owner_id, type, code, description, created_at, updated_at"

func (r *TerminologyModelRepository) scan(row *sql.Row) (*entity.TerminologyModel, error) {
	var m entity.TerminologyModel
	var typ string
	if err := row.Scan(&m.ID, &m.OwnerID, &typ, &m.Code, &m.Description, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan terminology model: %w", err)
	}
	m.Type = valueobject.TerminologyType(typ)
	return &m, nil
}

func (r *TerminologyModelRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.TerminologyModel, error) {
	query := fmt.Sprintf("SELECT %s FROM terminology_models WHERE id = $1", selectTerminologyModelColumns)
	return r.scan(r.db.QueryRowContext(ctx, query, id))
}

func (r *TerminologyModelRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*entity.TerminologyModel, error) {
	query := fmt.Sprintf("SELECT %s FROM terminology_models WHERE owner_id = $1 ORDER BY code", selectTerminologyModelColumns)
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.TerminologyModel
	for rows.Next() {
		var m entity.TerminologyModel
		var typ string
		if err := rows.Scan(&m.ID, &m.OwnerID, &typ, &m.Code, &m.Description, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.Type = valueobject.TerminologyType(typ)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *TerminologyModelRepository) Upsert(ctx context.Context, m *entity.TerminologyModel) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	query := `
		INSERT INTO terminology_models (id, owner_id, type, code, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type, code = EXCLUDED.code, description = EXCLUDED.description, updated_at = NOW()
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query, m.ID, m.OwnerID, m.Type.String(), m.Code, m.Description).
		Scan(&m.CreatedAt, &m.UpdatedAt)
}

// TerminologyValueRepository implements repository.TerminologyValueRepository.
// Client entries are stored one row per (value_id, company_id, connection_id),
// with a nil connection folded onto the nil-UUID sentinel.
type TerminologyValueRepository struct {
	db *sql.DB
}

func NewTerminologyValueRepository(db *sql.DB) repository.TerminologyValueRepository {
	return &TerminologyValueRepository{db: db}
}

const selectTerminologyClientColumns = "value_id, owner_id, code, description, source_key, source_description, status, company_id, connection_id"

func (r *TerminologyValueRepository) scanClient(rows interface {
	Scan(dest ...interface{}) error
}) (*entity.TerminologyClient, error) {
	var c entity.TerminologyClient
	var status string
	var connectionID sql.NullString
	if err := rows.Scan(&c.ValueID, &c.OwnerID, &c.Code, &c.Description, &c.SourceKey, &c.SourceDescription, &status, &c.CompanyID, &connectionID); err != nil {
		return nil, err
	}
	c.Status = valueobject.TerminologyClientStatus(status)
	if connectionID.Valid {
		id, err := uuid.Parse(connectionID.String)
		if err != nil {
			return nil, err
		}
		c.ConnectionID = &id
	}
	return &c, nil
}

func (r *TerminologyValueRepository) FindClient(ctx context.Context, ownerID, tenantID uuid.UUID, sourceKey string) (*entity.TerminologyClient, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM terminology_values WHERE owner_id = $1 AND company_id = $2 AND source_key = $3",
		selectTerminologyClientColumns,
	)
	row := r.db.QueryRowContext(ctx, query, ownerID, tenantID, sourceKey)
	client, err := r.scanClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find terminology client: %w", err)
	}
	return client, nil
}

// FindClientByTuple looks up the client entry for the invariant tuple
// (value_id, company_id, connection_id), folding a nil connectionID onto the
// same NULL sentinel the unique index uses.
func (r *TerminologyValueRepository) FindClientByTuple(ctx context.Context, valueID, tenantID uuid.UUID, connectionID *uuid.UUID) (*entity.TerminologyClient, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM terminology_values WHERE value_id = $1 AND company_id = $2 AND COALESCE(connection_id, '00000000-0000-0000-0000-000000000000') = COALESCE($3, '00000000-0000-0000-0000-000000000000')",
		selectTerminologyClientColumns,
	)
	var connArg interface{}
	if connectionID != nil {
		connArg = connectionID.String()
	}
	row := r.db.QueryRowContext(ctx, query, valueID, tenantID, connArg)
	client, err := r.scanClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find terminology client by tuple: %w", err)
	}
	return client, nil
}

func (r *TerminologyValueRepository) ListClientsForTenant(ctx context.Context, ownerID, tenantID uuid.UUID) ([]*entity.TerminologyClient, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM terminology_values WHERE owner_id = $1 AND company_id = $2",
		selectTerminologyClientColumns,
	)
	rows, err := r.db.QueryContext(ctx, query, ownerID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.TerminologyClient
	for rows.Next() {
		c, err := r.scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertClient replaces any existing (value_id, company_id, connection_id)
// entry, matching the spec's "delete-then-insert within the value
// document" semantics via an ON CONFLICT upsert against the tuple index.
func (r *TerminologyValueRepository) UpsertClient(ctx context.Context, c *entity.TerminologyClient) error {
	var connectionID interface{}
	if c.ConnectionID != nil {
		connectionID = c.ConnectionID.String()
	}
	query := `
		INSERT INTO terminology_values (value_id, owner_id, code, description, source_key, source_description, status, company_id, connection_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (value_id, company_id, (COALESCE(connection_id, '00000000-0000-0000-0000-000000000000')))
		DO UPDATE SET code = EXCLUDED.code, description = EXCLUDED.description,
			source_key = EXCLUDED.source_key, source_description = EXCLUDED.source_description,
			status = EXCLUDED.status
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ValueID, c.OwnerID, c.Code, c.Description, c.SourceKey, c.SourceDescription,
		c.Status.String(), c.CompanyID, connectionID,
	)
	return err
}
