package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/entity"
	domainservice "github.com/interhealth/syncengine/internal/domain/service"
	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

// fakeClock is a deterministic repository.Clock, advancing by one second on
// every call so successive timestamps in a test are observably ordered.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// noopLogger discards everything; With returns itself.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (l noopLogger) With(...interface{}) domainservice.Logger { return l }

// fakeIntegrationRepo is an in-memory IntegrationRepository.
type fakeIntegrationRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*entity.Integration
}

func newFakeIntegrationRepo() *fakeIntegrationRepo {
	return &fakeIntegrationRepo{byID: map[uuid.UUID]*entity.Integration{}}
}

func (f *fakeIntegrationRepo) Create(_ context.Context, i *entity.Integration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[i.ID] = i
	return nil
}

func (f *fakeIntegrationRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakeIntegrationRepo) GetByTenantAndName(_ context.Context, tenantID uuid.UUID, name string) (*entity.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, i := range f.byID {
		if i.TenantID == tenantID && i.Name == name {
			return i, nil
		}
	}
	return nil, nil
}

func (f *fakeIntegrationRepo) ListByConnection(_ context.Context, connectionID uuid.UUID) ([]*entity.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Integration
	for _, i := range f.byID {
		if i.ConnectionID == connectionID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (f *fakeIntegrationRepo) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]*entity.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Integration
	for _, i := range f.byID {
		if i.TenantID == tenantID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (f *fakeIntegrationRepo) Update(_ context.Context, i *entity.Integration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[i.ID] = i
	return nil
}

func (f *fakeIntegrationRepo) CountByTenant(_ context.Context, tenantID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, i := range f.byID {
		if i.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

// fakeConnectionRepo is an in-memory ConnectionRepository.
type fakeConnectionRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*entity.SourceConnection
}

func newFakeConnectionRepo() *fakeConnectionRepo {
	return &fakeConnectionRepo{byID: map[uuid.UUID]*entity.SourceConnection{}}
}

func (f *fakeConnectionRepo) Create(_ context.Context, c *entity.SourceConnection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[c.ID] = c
	return nil
}

func (f *fakeConnectionRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.SourceConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakeConnectionRepo) GetByTenantAndName(_ context.Context, tenantID uuid.UUID, name string) (*entity.SourceConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.TenantID == tenantID && c.Name == name {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeConnectionRepo) CountByTenant(_ context.Context, tenantID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.byID {
		if c.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

// fakeMappingRepo is an in-memory MappingRepository, keyed by integration.
type fakeMappingRepo struct {
	mu  sync.Mutex
	all map[uuid.UUID]*entity.Mapping
}

func newFakeMappingRepo() *fakeMappingRepo {
	return &fakeMappingRepo{all: map[uuid.UUID]*entity.Mapping{}}
}

func (f *fakeMappingRepo) GetByIntegration(_ context.Context, integrationID uuid.UUID) (*entity.Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.all[integrationID], nil
}

func (f *fakeMappingRepo) GetByIntegrationAndEntityType(_ context.Context, integrationID uuid.UUID, _ valueobject.EntityType) (*entity.Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.all[integrationID], nil
}

func (f *fakeMappingRepo) Upsert(_ context.Context, m *entity.Mapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.all[m.IntegrationID] = m
	return nil
}

// fakeJobRepo is an in-memory JobRepository.
type fakeJobRepo struct {
	mu   sync.Mutex
	byID map[string]*entity.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{byID: map[string]*entity.Job{}}
}

func (f *fakeJobRepo) Create(_ context.Context, j *entity.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[j.ID] = j.Clone()
	return nil
}

func (f *fakeJobRepo) GetByID(_ context.Context, id string) (*entity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return j.Clone(), nil
}

func (f *fakeJobRepo) Update(_ context.Context, j *entity.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[j.ID] = j.Clone()
	return nil
}

func (f *fakeJobRepo) ListByIntegration(_ context.Context, integrationID uuid.UUID) ([]*entity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Job
	for _, j := range f.byID {
		if j.IntegrationID == integrationID {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (f *fakeJobRepo) FindActiveByIntegration(_ context.Context, integrationID uuid.UUID) (*entity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.byID {
		if j.IntegrationID != integrationID {
			continue
		}
		switch j.Status {
		case valueobject.JobStatusPending, valueobject.JobStatusRunning, valueobject.JobStatusPaused:
			return j.Clone(), nil
		}
	}
	return nil, nil
}

func (f *fakeJobRepo) ListByStatus(_ context.Context, status valueobject.JobStatus) ([]*entity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Job
	for _, j := range f.byID {
		if j.Status == status {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (f *fakeJobRepo) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]*entity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Job
	for _, j := range f.byID {
		if j.TenantID == tenantID {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (f *fakeJobRepo) CountByStatus(_ context.Context, tenantID *uuid.UUID) (map[valueobject.JobStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[valueobject.JobStatus]int{}
	for _, j := range f.byID {
		if tenantID != nil && j.TenantID != *tenantID {
			continue
		}
		out[j.Status]++
	}
	return out, nil
}

// fakeExtractor/fakeExtractorHandle serve fixed rows from an in-memory
// table, standing in for the Oracle extractor in Worker tests.
type fakeExtractor struct {
	tables map[string][]map[string]interface{}
	openErr error
}

func (f *fakeExtractor) Open(_ context.Context, _ domainservice.ConnectionParams) (domainservice.ExtractorHandle, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeExtractorHandle{tables: f.tables}, nil
}

type fakeExtractorHandle struct {
	tables map[string][]map[string]interface{}
	closed bool
}

func (h *fakeExtractorHandle) CountRecords(_ context.Context, table string) (int64, error) {
	return int64(len(h.tables[table])), nil
}

func (h *fakeExtractorHandle) FetchPage(_ context.Context, table string, offset, pageSize int) ([]map[string]interface{}, error) {
	rows := h.tables[table]
	if offset >= len(rows) {
		return nil, nil
	}
	end := offset + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], nil
}

func (h *fakeExtractorHandle) FetchFirstRow(_ context.Context, table string) (map[string]interface{}, error) {
	rows := h.tables[table]
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (h *fakeExtractorHandle) Close() error {
	h.closed = true
	return nil
}

// fakeStage is an in-memory StorageAdapter recording every WriteJSON call.
type fakeStage struct {
	mu       sync.Mutex
	written  map[string]interface{}
	writeErr error
}

func newFakeStage() *fakeStage {
	return &fakeStage{written: map[string]interface{}{}}
}

func (s *fakeStage) WriteJSON(_ context.Context, path string, v interface{}) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written[path] = v
	return nil
}

func (s *fakeStage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

// fakeMetricsRepo is an in-memory MetricsRepository.
type fakeMetricsRepo struct {
	mu  sync.Mutex
	byTenant map[uuid.UUID]*entity.MetricsSummary
}

func newFakeMetricsRepo() *fakeMetricsRepo {
	return &fakeMetricsRepo{byTenant: map[uuid.UUID]*entity.MetricsSummary{}}
}

func (f *fakeMetricsRepo) Get(_ context.Context, tenantID uuid.UUID) (*entity.MetricsSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byTenant[tenantID], nil
}

func (f *fakeMetricsRepo) Upsert(_ context.Context, m *entity.MetricsSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byTenant[m.TenantID] = m
	return nil
}

// fakePublisher records every published payload per channel.
type fakePublisher struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: map[string][][]byte{}}
}

func (p *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[channel] = append(p.published[channel], payload)
	return nil
}

func (p *fakePublisher) count(channel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published[channel])
}

// passthroughEncryptor is a crypto.Encryptor that returns its input
// unchanged, standing in for NoOpEncryptor without importing the crypto
// package's concrete type into every test.
type passthroughEncryptor struct{}

func (passthroughEncryptor) Encrypt(s string) (string, error) { return s, nil }
func (passthroughEncryptor) Decrypt(s string) (string, error) { return s, nil }
