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

// mappingRow is the JSONB payload for a mappings row; the field list is
// the bulk of a Mapping so it is stored whole rather than normalized,
// consistent with the document-store shape spec.md §6 describes.
type mappingRow struct {
	OriginTable  string               `json:"originTable"`
	DestinyTable string               `json:"destinyTable"`
	Fields       []entity.FieldMapping `json:"fields"`
}

type MappingRepository struct {
	db *sql.DB
}

func NewMappingRepository(db *sql.DB) repository.MappingRepository {
	return &MappingRepository{db: db}
}

const selectMappingColumns = "id, integration_id, entity_type, payload"

func (r *MappingRepository) scan(row *sql.Row) (*entity.Mapping, error) {
	var m entity.Mapping
	var entityType string
	var payload []byte
	if err := row.Scan(&m.ID, &m.IntegrationID, &entityType, &payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan mapping: %w", err)
	}
	var body mappingRow
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode mapping payload: %w", err)
	}
	m.EntityType = valueobject.NormalizeEntityType(entityType)
	m.OriginTable = body.OriginTable
	m.DestinyTable = body.DestinyTable
	m.Fields = body.Fields
	return &m, nil
}

func (r *MappingRepository) GetByIntegration(ctx context.Context, integrationID uuid.UUID) (*entity.Mapping, error) {
	query := fmt.Sprintf("SELECT %s FROM mappings WHERE integration_id = $1 LIMIT 1", selectMappingColumns)
	return r.scan(r.db.QueryRowContext(ctx, query, integrationID))
}

func (r *MappingRepository) GetByIntegrationAndEntityType(ctx context.Context, integrationID uuid.UUID, entityType valueobject.EntityType) (*entity.Mapping, error) {
	query := fmt.Sprintf("SELECT %s FROM mappings WHERE integration_id = $1 AND entity_type = $2", selectMappingColumns)
	return r.scan(r.db.QueryRowContext(ctx, query, integrationID, entityType.String()))
}

// Upsert replaces the mapping for (integrationId, entityType) wholesale,
// matching the spec's document-store "compare-and-update by id" model.
func (r *MappingRepository) Upsert(ctx context.Context, m *entity.Mapping) error {
	payload, err := json.Marshal(mappingRow{
		OriginTable:  m.OriginTable,
		DestinyTable: m.DestinyTable,
		Fields:       m.Fields,
	})
	if err != nil {
		return err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	query := `
		INSERT INTO mappings (id, integration_id, entity_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (integration_id, entity_type)
		DO UPDATE SET payload = EXCLUDED.payload
	`
	_, err = r.db.ExecContext(ctx, query, m.ID, m.IntegrationID, m.EntityType.String(), payload)
	return err
}
