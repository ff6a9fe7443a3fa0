package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/repository"
	domainservice "github.com/interhealth/syncengine/internal/domain/service"
	"github.com/interhealth/syncengine/internal/infrastructure/pubsub"
)

// MetricsAggregatorDeps collects the Metrics Aggregator's collaborators.
// Per spec.md §9's design note it depends on the Registry and catalog
// directly, never on the Manager.
type MetricsAggregatorDeps struct {
	Connections  repository.ConnectionRepository
	Integrations repository.IntegrationRepository
	Jobs         repository.JobRepository
	Metrics      repository.MetricsRepository
	Registry     *Registry
	Clock        repository.Clock
	Publisher    pubsub.Publisher
	Logger       domainservice.Logger
}

// MetricsAggregator implements spec.md §4.8: a per-tenant snapshot that
// merges live Registry state with persisted job records, and a periodic
// push of that snapshot over the configured Publisher.
type MetricsAggregator struct {
	deps MetricsAggregatorDeps
}

func NewMetricsAggregator(deps MetricsAggregatorDeps) *MetricsAggregator {
	if deps.Clock == nil {
		deps.Clock = repository.SystemClock{}
	}
	if deps.Publisher == nil {
		deps.Publisher = pubsub.NoOpPubSub{}
	}
	return &MetricsAggregator{deps: deps}
}

// streamMessage is the wire shape pushed over metrics/stream: an Initial
// message on subscribe, then an Update every push interval.
type streamMessage struct {
	Type     string                `json:"type"`
	Snapshot *entity.MetricsResponse `json:"snapshot"`
}

// Snapshot computes and persists a tenant's current MetricsResponse, per
// spec.md §4.8's computation rules.
func (a *MetricsAggregator) Snapshot(ctx context.Context, tenantID uuid.UUID) (*entity.MetricsResponse, error) {
	totalConnections, err := a.deps.Connections.CountByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	totalIntegrations, err := a.deps.Integrations.CountByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	persisted, err := a.deps.Jobs.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	live := a.deps.Registry.ListByTenant(tenantID)

	merged := make(map[string]*entity.Job, len(persisted)+len(live))
	for _, j := range persisted {
		merged[j.ID] = j
	}
	for _, j := range live {
		merged[j.ID] = j
	}

	var rateSum float64
	var rateCount int
	type categoryAccum struct {
		processed int64
		failed    int64
	}
	categories := make(map[string]*categoryAccum)

	for _, j := range merged {
		denom := j.ProcessedRecords + j.FailedRecords
		if denom > 0 {
			rateSum += float64(j.ProcessedRecords) / float64(denom) * 100
			rateCount++
		}

		cat := categories[j.EntityType.String()]
		if cat == nil {
			cat = &categoryAccum{}
			categories[j.EntityType.String()] = cat
		}
		cat.processed += j.ProcessedRecords
		cat.failed += j.FailedRecords
	}

	var overallSuccess, overallError float64
	if rateCount > 0 {
		overallSuccess = rateSum / float64(rateCount)
		overallError = 100 - overallSuccess
	}

	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	stats := make([]entity.CategoryStats, 0, len(names))
	for _, name := range names {
		cat := categories[name]
		denom := cat.processed + cat.failed
		var success, errRate float64
		if denom > 0 {
			success = float64(cat.processed) / float64(denom) * 100
			errRate = 100 - success
		}
		stats = append(stats, entity.CategoryStats{
			EntityType:       name,
			ProcessedRecords: cat.processed,
			FailedRecords:    cat.failed,
			SuccessRate:      success,
			ErrorRate:        errRate,
		})
	}

	now := a.deps.Clock.Now()
	existing, err := a.deps.Metrics.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	createdAt := now
	if existing != nil {
		createdAt = existing.CreatedAt
	}

	summary := &entity.MetricsSummary{
		TenantID:    tenantID,
		SuccessRate: overallSuccess,
		ErrorRate:   overallError,
		UpdatedAt:   now,
		CreatedAt:   createdAt,
	}
	if err := a.deps.Metrics.Upsert(ctx, summary); err != nil {
		return nil, err
	}

	return &entity.MetricsResponse{
		TenantID:          tenantID,
		TotalConnections:  totalConnections,
		TotalIntegrations: totalIntegrations,
		SuccessRate:       overallSuccess,
		ErrorRate:         overallError,
		StatsByCategory:   stats,
		UpdatedAt:         now,
		CreatedAt:         createdAt,
	}, nil
}

func (a *MetricsAggregator) channelName(tenantID uuid.UUID) string {
	return "metrics:" + tenantID.String()
}

// PublishLoop computes and publishes a fresh snapshot every interval until
// ctx is cancelled. The HTTP presentation layer starts one of these per
// metrics/stream connection and stops it when that request's context ends.
func (a *MetricsAggregator) PublishLoop(ctx context.Context, tenantID uuid.UUID, interval time.Duration) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := a.Snapshot(ctx, tenantID)
			if err != nil {
				a.deps.Logger.Warn("metrics snapshot failed during publish loop", "tenantId", tenantID, "error", err)
				continue
			}
			data, err := json.Marshal(streamMessage{Type: "Update", Snapshot: snap})
			if err != nil {
				continue
			}
			if err := a.deps.Publisher.Publish(ctx, a.channelName(tenantID), data); err != nil {
				a.deps.Logger.Warn("metrics publish failed", "tenantId", tenantID, "error", err)
			}
		}
	}
}

// InitialMessage computes a snapshot and wraps it as the Initial message
// sent immediately on stream connect, before any PublishLoop ticks.
func (a *MetricsAggregator) InitialMessage(ctx context.Context, tenantID uuid.UUID) ([]byte, error) {
	snap, err := a.Snapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(streamMessage{Type: "Initial", Snapshot: snap})
}
