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

// jobRow is the JSONB payload for a jobs row; id, integration_id, tenant_id
// and status are promoted to indexed columns per spec.md §6's "by id,
// by (integrationId, createdAt desc)" and find_active_by_integration.
type jobRow struct {
	ConnectionID     string   `json:"connectionId"`
	EntityType       string   `json:"entityType"`
	TotalRecords     *int64   `json:"totalRecords"`
	ProcessedRecords int64    `json:"processedRecords"`
	FailedRecords    int64    `json:"failedRecords"`
	CurrentPage      int      `json:"currentPage"`
	PageSize         int      `json:"pageSize"`
	FailedItemCodes  []string `json:"failedItemCodes"`
}

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) repository.JobRepository {
	return &JobRepository{db: db}
}

func encodeJob(j *entity.Job) ([]byte, error) {
	return json.Marshal(jobRow{
		ConnectionID:     j.ConnectionID.String(),
		EntityType:       j.EntityType.String(),
		TotalRecords:     j.TotalRecords,
		ProcessedRecords: j.ProcessedRecords,
		FailedRecords:    j.FailedRecords,
		CurrentPage:      j.CurrentPage,
		PageSize:         j.PageSize,
		FailedItemCodes:  j.FailedItemCodes,
	})
}

const selectJobColumns = "id, integration_id, tenant_id, status, payload, created_at, started_at, finished_at"

func scanJob(row interface{ Scan(dest ...interface{}) error }) (*entity.Job, error) {
	var j entity.Job
	var status string
	var payload []byte
	var startedAt, finishedAt sql.NullTime
	var connID string
	if err := row.Scan(&j.ID, &j.IntegrationID, &j.TenantID, &status, &payload, &j.CreatedAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	var body jobRow
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	connID = body.ConnectionID
	cid, err := uuid.Parse(connID)
	if err != nil {
		return nil, fmt.Errorf("decode job connection id: %w", err)
	}
	j.ConnectionID = cid
	j.Status = valueobject.JobStatus(status)
	j.EntityType = valueobject.NormalizeEntityType(body.EntityType)
	j.TotalRecords = body.TotalRecords
	j.ProcessedRecords = body.ProcessedRecords
	j.FailedRecords = body.FailedRecords
	j.CurrentPage = body.CurrentPage
	j.PageSize = body.PageSize
	j.FailedItemCodes = body.FailedItemCodes
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		j.FinishedAt = &finishedAt.Time
	}
	return &j, nil
}

func (r *JobRepository) Create(ctx context.Context, j *entity.Job) error {
	payload, err := encodeJob(j)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO jobs (id, integration_id, tenant_id, status, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.ExecContext(ctx, query, j.ID, j.IntegrationID, j.TenantID, j.Status.String(), payload, j.CreatedAt)
	return err
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	query := fmt.Sprintf("SELECT %s FROM jobs WHERE id = $1", selectJobColumns)
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// Update performs a whole-document replace, matching the shared-resource
// policy's "compare-and-update by id" serialization, per spec.md §5.
func (r *JobRepository) Update(ctx context.Context, j *entity.Job) error {
	payload, err := encodeJob(j)
	if err != nil {
		return err
	}
	query := `
		UPDATE jobs
		SET status = $1, payload = $2, started_at = $3, finished_at = $4
		WHERE id = $5
	`
	_, err = r.db.ExecContext(ctx, query, j.Status.String(), payload, j.StartedAt, j.FinishedAt, j.ID)
	return err
}

func (r *JobRepository) ListByIntegration(ctx context.Context, integrationID uuid.UUID) ([]*entity.Job, error) {
	query := fmt.Sprintf("SELECT %s FROM jobs WHERE integration_id = $1 ORDER BY created_at DESC", selectJobColumns)
	return r.queryList(ctx, query, integrationID)
}

func (r *JobRepository) FindActiveByIntegration(ctx context.Context, integrationID uuid.UUID) (*entity.Job, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM jobs WHERE integration_id = $1 AND status IN ('pending','running','paused') ORDER BY created_at DESC LIMIT 1",
		selectJobColumns,
	)
	j, err := scanJob(r.db.QueryRowContext(ctx, query, integrationID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	return j, nil
}

func (r *JobRepository) ListByStatus(ctx context.Context, status valueobject.JobStatus) ([]*entity.Job, error) {
	query := fmt.Sprintf("SELECT %s FROM jobs WHERE status = $1 ORDER BY created_at", selectJobColumns)
	return r.queryList(ctx, query, status.String())
}

func (r *JobRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*entity.Job, error) {
	query := fmt.Sprintf("SELECT %s FROM jobs WHERE tenant_id = $1 ORDER BY created_at DESC", selectJobColumns)
	return r.queryList(ctx, query, tenantID)
}

func (r *JobRepository) queryList(ctx context.Context, query string, arg interface{}) ([]*entity.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// CountByStatus returns per-status counts, scoped to tenantID when given
// or across every tenant when nil, used by the `stats` surface.
func (r *JobRepository) CountByStatus(ctx context.Context, tenantID *uuid.UUID) (map[valueobject.JobStatus]int, error) {
	var rows *sql.Rows
	var err error
	if tenantID != nil {
		rows, err = r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs WHERE tenant_id = $1 GROUP BY status", *tenantID)
	} else {
		rows, err = r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[valueobject.JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[valueobject.JobStatus(status)] = count
	}
	return out, rows.Err()
}
