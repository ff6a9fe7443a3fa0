package entity

import (
	"time"

	"github.com/google/uuid"
)

// MetricsSummary is the persisted, per-tenant rolling average. Counts of
// integrations and connections are recomputed on demand, not stored here.
type MetricsSummary struct {
	TenantID    uuid.UUID
	SuccessRate float64
	ErrorRate   float64
	UpdatedAt   time.Time
	CreatedAt   time.Time
}

// CategoryStats is one entityType group's aggregated counts within a
// MetricsResponse.
type CategoryStats struct {
	EntityType       string
	ProcessedRecords int64
	FailedRecords    int64
	SuccessRate      float64
	ErrorRate        float64
}

// MetricsResponse is the computed snapshot returned by snapshot(tenantId)
// and pushed over the streaming surface.
type MetricsResponse struct {
	TenantID          uuid.UUID
	TotalConnections  int
	TotalIntegrations int
	SuccessRate       float64
	ErrorRate         float64
	StatsByCategory   []CategoryStats
	UpdatedAt         time.Time
	CreatedAt         time.Time
}
