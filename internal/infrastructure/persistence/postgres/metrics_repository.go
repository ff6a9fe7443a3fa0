package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/repository"
)

// MetricsRepository implements repository.MetricsRepository: one row per
// tenant, read-modify-write on every Snapshot call.
type MetricsRepository struct {
	db *sql.DB
}

func NewMetricsRepository(db *sql.DB) repository.MetricsRepository {
	return &MetricsRepository{db: db}
}

func (r *MetricsRepository) Get(ctx context.Context, tenantID uuid.UUID) (*entity.MetricsSummary, error) {
	query := "SELECT tenant_id, success_rate, error_rate, created_at, updated_at FROM metrics_summary WHERE tenant_id = $1"
	var m entity.MetricsSummary
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&m.TenantID, &m.SuccessRate, &m.ErrorRate, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metrics summary: %w", err)
	}
	return &m, nil
}

func (r *MetricsRepository) Upsert(ctx context.Context, m *entity.MetricsSummary) error {
	query := `
		INSERT INTO metrics_summary (tenant_id, success_rate, error_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id)
		DO UPDATE SET success_rate = EXCLUDED.success_rate, error_rate = EXCLUDED.error_rate, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, m.TenantID, m.SuccessRate, m.ErrorRate, m.CreatedAt, m.UpdatedAt)
	return err
}
