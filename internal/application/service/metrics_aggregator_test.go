package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

func newAggregatorFixture(t *testing.T) (*MetricsAggregator, *Registry, *fakeJobRepo, *fakeMetricsRepo, *fakePublisher, uuid.UUID) {
	t.Helper()

	tenantID := uuid.New()
	connections := newFakeConnectionRepo()
	integrations := newFakeIntegrationRepo()
	jobs := newFakeJobRepo()
	registry := NewRegistry()
	metrics := newFakeMetricsRepo()
	publisher := newFakePublisher()

	_ = connections.Create(context.Background(), &entity.SourceConnection{ID: uuid.New(), TenantID: tenantID})
	_ = integrations.Create(context.Background(), &entity.Integration{ID: uuid.New(), TenantID: tenantID, EntityType: valueobject.EntityTypePatient})

	agg := NewMetricsAggregator(MetricsAggregatorDeps{
		Connections:  connections,
		Integrations: integrations,
		Jobs:         jobs,
		Metrics:      metrics,
		Registry:     registry,
		Clock:        newFakeClock(time.Unix(1000, 0).UTC()),
		Publisher:    publisher,
		Logger:       noopLogger{},
	})

	return agg, registry, jobs, metrics, publisher, tenantID
}

func seedJob(tenantID uuid.UUID, id string, entityType valueobject.EntityType, processed, failed int64) *entity.Job {
	j := entity.NewJob(id, uuid.New(), uuid.New(), tenantID, entityType, 100, time.Unix(0, 0).UTC())
	j.ProcessedRecords = processed
	j.FailedRecords = failed
	return j
}

func TestSnapshotDedupsJobsPresentInBothRegistryAndPersisted(t *testing.T) {
	agg, registry, jobs, _, _, tenantID := newAggregatorFixture(t)

	job := seedJob(tenantID, "job-1", valueobject.EntityTypePatient, 8, 2)
	registry.Add(job)
	_ = jobs.Create(context.Background(), job)

	resp, err := agg.Snapshot(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(resp.StatsByCategory) != 1 {
		t.Fatalf("StatsByCategory = %+v, want exactly 1 category (job counted once)", resp.StatsByCategory)
	}
	cat := resp.StatsByCategory[0]
	if cat.ProcessedRecords != 8 || cat.FailedRecords != 2 {
		t.Errorf("got Processed=%d Failed=%d, want 8/2 (job must not be double-counted)", cat.ProcessedRecords, cat.FailedRecords)
	}
}

func TestSnapshotComputesPerCategoryRates(t *testing.T) {
	agg, registry, _, _, _, tenantID := newAggregatorFixture(t)

	registry.Add(seedJob(tenantID, "patient-1", valueobject.EntityTypePatient, 9, 1))
	registry.Add(seedJob(tenantID, "bundle-1", valueobject.EntityTypeBundle, 5, 5))

	resp, err := agg.Snapshot(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(resp.StatsByCategory) != 2 {
		t.Fatalf("StatsByCategory = %+v, want 2 categories", resp.StatsByCategory)
	}
	// Sorted by category name: "BUNDLE" < "PATIENT".
	bundle, patient := resp.StatsByCategory[0], resp.StatsByCategory[1]
	if bundle.EntityType != valueobject.EntityTypeBundle.String() {
		t.Errorf("StatsByCategory[0] = %q, want BUNDLE first (sorted order)", bundle.EntityType)
	}
	if bundle.SuccessRate != 50 || bundle.ErrorRate != 50 {
		t.Errorf("bundle rates = %v/%v, want 50/50", bundle.SuccessRate, bundle.ErrorRate)
	}
	if patient.SuccessRate != 90 || patient.ErrorRate != 10 {
		t.Errorf("patient rates = %v/%v, want 90/10", patient.SuccessRate, patient.ErrorRate)
	}

	// Overall rate is the mean of the per-job rates (90 and 50), not the
	// pooled processed/failed totals.
	if resp.SuccessRate != 70 {
		t.Errorf("overall SuccessRate = %v, want 70 (mean of 90 and 50)", resp.SuccessRate)
	}
	if resp.ErrorRate != 30 {
		t.Errorf("overall ErrorRate = %v, want 30", resp.ErrorRate)
	}
}

func TestSnapshotIgnoresJobsWithNoProcessedOrFailedRecords(t *testing.T) {
	agg, registry, _, _, _, tenantID := newAggregatorFixture(t)
	registry.Add(seedJob(tenantID, "idle-1", valueobject.EntityTypePatient, 0, 0))

	resp, err := agg.Snapshot(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if resp.SuccessRate != 0 || resp.ErrorRate != 0 {
		t.Errorf("a job with zero processed/failed records should not skew rates; got %v/%v", resp.SuccessRate, resp.ErrorRate)
	}
}

func TestSnapshotPreservesCreatedAtAcrossCalls(t *testing.T) {
	agg, registry, _, metrics, _, tenantID := newAggregatorFixture(t)
	registry.Add(seedJob(tenantID, "job-1", valueobject.EntityTypePatient, 1, 0))

	first, err := agg.Snapshot(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("first Snapshot() error = %v", err)
	}
	firstCreatedAt := first.CreatedAt

	persisted, _ := metrics.Get(context.Background(), tenantID)
	if persisted == nil {
		t.Fatal("Snapshot() should have upserted a MetricsSummary")
	}

	second, err := agg.Snapshot(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("second Snapshot() error = %v", err)
	}
	if !second.CreatedAt.Equal(firstCreatedAt) {
		t.Errorf("CreatedAt changed across calls: %v -> %v, want preserved from the first snapshot", firstCreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("UpdatedAt should advance between calls (fakeClock ticks); first=%v second=%v", first.UpdatedAt, second.UpdatedAt)
	}
}

func TestSnapshotReportsConnectionAndIntegrationCounts(t *testing.T) {
	agg, _, _, _, _, tenantID := newAggregatorFixture(t)

	resp, err := agg.Snapshot(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if resp.TotalConnections != 1 {
		t.Errorf("TotalConnections = %d, want 1", resp.TotalConnections)
	}
	if resp.TotalIntegrations != 1 {
		t.Errorf("TotalIntegrations = %d, want 1", resp.TotalIntegrations)
	}
}

func TestInitialMessageHasInitialType(t *testing.T) {
	agg, registry, _, _, _, tenantID := newAggregatorFixture(t)
	registry.Add(seedJob(tenantID, "job-1", valueobject.EntityTypePatient, 3, 1))

	raw, err := agg.InitialMessage(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("InitialMessage() error = %v", err)
	}

	var decoded struct {
		Type     string                   `json:"type"`
		Snapshot *entity.MetricsResponse  `json:"snapshot"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("InitialMessage() produced invalid JSON: %v", err)
	}
	if decoded.Type != "Initial" {
		t.Errorf("type = %q, want Initial", decoded.Type)
	}
	if decoded.Snapshot == nil || decoded.Snapshot.TenantID != tenantID {
		t.Error("Snapshot should be embedded and carry the requested tenant")
	}
}

func TestPublishLoopPublishesUpdatesUntilCancelled(t *testing.T) {
	agg, registry, _, _, publisher, tenantID := newAggregatorFixture(t)
	registry.Add(seedJob(tenantID, "job-1", valueobject.EntityTypePatient, 2, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.PublishLoop(ctx, tenantID, 5*time.Millisecond)
		close(done)
	}()

	channel := "metrics:" + tenantID.String()
	deadline := time.Now().Add(2 * time.Second)
	for publisher.count(channel) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if publisher.count(channel) == 0 {
		t.Fatal("PublishLoop should have published at least one Update message before cancellation")
	}

	raw := publisher.published[channel][0]
	var decoded struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("published payload is not valid JSON: %v", err)
	}
	if decoded.Type != "Update" {
		t.Errorf("published message type = %q, want Update", decoded.Type)
	}
}
