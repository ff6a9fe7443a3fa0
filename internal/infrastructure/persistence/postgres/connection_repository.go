package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/repository"
)

// ConnectionRepository implements repository.ConnectionRepository. Password
// is stored already-encrypted by the caller (infrastructure/crypto); this
// repository never encrypts or decrypts.
type ConnectionRepository struct {
	db *sql.DB
}

func NewConnectionRepository(db *sql.DB) repository.ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const selectConnectionColumns = "id, tenant_id, name, host, port, database_name, username, password, type, created_at, updated_at"

func (r *ConnectionRepository) Create(ctx context.Context, c *entity.SourceConnection) error {
	query := `
		INSERT INTO connections (id, tenant_id, name, host, port, database_name, username, password, type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		c.ID, c.TenantID, c.Name, c.Host, c.Port, c.Database, c.Username, c.Password, c.Type,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *ConnectionRepository) scan(row *sql.Row) (*entity.SourceConnection, error) {
	var c entity.SourceConnection
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Host, &c.Port, &c.Database, &c.Username, &c.Password, &c.Type, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan connection: %w", err)
	}
	return &c, nil
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.SourceConnection, error) {
	query := fmt.Sprintf("SELECT %s FROM connections WHERE id = $1", selectConnectionColumns)
	return r.scan(r.db.QueryRowContext(ctx, query, id))
}

func (r *ConnectionRepository) GetByTenantAndName(ctx context.Context, tenantID uuid.UUID, name string) (*entity.SourceConnection, error) {
	query := fmt.Sprintf("SELECT %s FROM connections WHERE tenant_id = $1 AND name = $2", selectConnectionColumns)
	return r.scan(r.db.QueryRowContext(ctx, query, tenantID, name))
}

func (r *ConnectionRepository) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM connections WHERE tenant_id = $1", tenantID).Scan(&count)
	return count, err
}
