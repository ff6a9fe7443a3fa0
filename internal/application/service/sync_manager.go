package service

import (
	"context"

	"github.com/google/uuid"

	domainerrors "github.com/interhealth/syncengine/internal/domain/errors"
	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/repository"
	domainservice "github.com/interhealth/syncengine/internal/domain/service"
	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

// JobRunner is the Manager's view of the Sync Worker: run a job to a
// terminal or Paused state. Kept as a narrow interface so the Manager
// never imports the Worker's transform/extractor dependencies, per
// spec.md §9's "Manager holds only Extractor + catalog interfaces +
// Registry" design note.
type JobRunner interface {
	Run(ctx context.Context, jobID string)
}

// ManagerDeps collects the Sync Manager's collaborators.
type ManagerDeps struct {
	Integrations repository.IntegrationRepository
	Connections  repository.ConnectionRepository
	Jobs         repository.JobRepository
	Registry     *Registry
	Worker       JobRunner
	Clock        repository.Clock
	Logger       domainservice.Logger

	MaxConcurrentJobs int
	DefaultPageSize   int

	// NewJobID generates job ids; overridden in tests for determinism.
	NewJobID func() string
}

// Manager implements the Sync Manager of spec.md §4.6: submit validates
// and creates a job, a bounded pool of goroutines runs jobs concurrently
// behind a counting semaphore, and recover() resumes interrupted jobs at
// startup.
type Manager struct {
	deps ManagerDeps
	sem  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(deps ManagerDeps) *Manager {
	if deps.MaxConcurrentJobs <= 0 {
		deps.MaxConcurrentJobs = 5
	}
	if deps.DefaultPageSize <= 0 {
		deps.DefaultPageSize = 100
	}
	if deps.Clock == nil {
		deps.Clock = repository.SystemClock{}
	}
	if deps.NewJobID == nil {
		deps.NewJobID = func() string { return uuid.New().String() }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:   deps,
		sem:    make(chan struct{}, deps.MaxConcurrentJobs),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Shutdown stops the Manager from launching any further job goroutines.
// Jobs already running continue until their next checkpoint observes the
// cancelled context.
func (m *Manager) Shutdown() {
	m.cancel()
}

// Submit creates and launches a new job for integrationID, rejecting the
// request if the integration already has an active (Pending/Running/
// Paused) job, per spec.md §4.6's "one active job per integration"
// invariant. pageSize overrides the Manager's configured default when > 0,
// per the `submit {integrationId, pageSize?}` surface of spec.md §6.
func (m *Manager) Submit(ctx context.Context, tenantID, integrationID uuid.UUID, pageSize int) (*entity.Job, error) {
	integration, err := m.deps.Integrations.GetByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if integration == nil || integration.TenantID != tenantID {
		return nil, domainerrors.ErrNotFound
	}

	active, err := m.deps.Jobs.FindActiveByIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, domainerrors.ErrBadRequest.WithCause(errActiveJobExists)
	}

	if pageSize <= 0 {
		pageSize = m.deps.DefaultPageSize
	}
	job := entity.NewJob(
		m.deps.NewJobID(),
		integration.ID,
		integration.ConnectionID,
		tenantID,
		integration.EntityType,
		pageSize,
		m.deps.Clock.Now(),
	)
	if err := m.deps.Jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	m.deps.Registry.Add(job)

	boundID := job.ID
	integration.BoundJobID = &boundID
	if err := m.deps.Integrations.Update(ctx, integration); err != nil {
		m.deps.Logger.Warn("failed to bind job to integration", "jobId", job.ID, "error", err)
	}

	m.spawn(job.ID)
	return job.Clone(), nil
}

// Get returns the live job if present, falling back to the persisted
// record for terminal jobs no longer held in the Registry.
func (m *Manager) Get(ctx context.Context, jobID string) (*entity.Job, error) {
	if j := m.deps.Registry.Get(jobID); j != nil {
		return j, nil
	}
	return m.deps.Jobs.GetByID(ctx, jobID)
}

// ListRunning returns every live job in the Registry, optionally filtered
// to one tenant.
func (m *Manager) ListRunning(tenantID *uuid.UUID) []*entity.Job {
	if tenantID == nil {
		return m.deps.Registry.ListAll()
	}
	return m.deps.Registry.ListByTenant(*tenantID)
}

func (m *Manager) CountRunning() int {
	return m.deps.Registry.CountRunning()
}

// Pause transitions a Pending or Running job to Paused. The Worker
// observes the transition at the next page boundary and stops on its
// own; Pause itself only flips the flag and checkpoints it.
func (m *Manager) Pause(ctx context.Context, jobID string) error {
	ok := m.deps.Registry.Update(jobID, func(j *entity.Job) {
		if j.Status == valueobject.JobStatusPending || j.Status == valueobject.JobStatusRunning {
			j.Status = valueobject.JobStatusPaused
		}
	})
	if !ok {
		return domainerrors.ErrNotFound
	}
	job := m.deps.Registry.Get(jobID)
	if job == nil || job.Status != valueobject.JobStatusPaused {
		return domainerrors.ErrBadRequest.WithCause(errNotPausable)
	}
	return m.deps.Jobs.Update(ctx, job)
}

// Resume re-launches a Paused job from its last checkpointed page,
// without resetting counters, per spec.md §4.6.
func (m *Manager) Resume(ctx context.Context, jobID string) error {
	job, err := m.deps.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return domainerrors.ErrNotFound
	}
	if job.Status != valueobject.JobStatusPaused {
		return domainerrors.ErrBadRequest.WithCause(errNotPaused)
	}
	job.Status = valueobject.JobStatusPending
	if err := m.deps.Jobs.Update(ctx, job); err != nil {
		return err
	}
	m.deps.Registry.Add(job)
	m.spawn(job.ID)
	return nil
}

// Restart resets a job's counters and re-runs it from page zero, reusing
// the same job id, per spec.md §4.6's "* -> Pending (restart)" rule.
func (m *Manager) Restart(ctx context.Context, jobID string) error {
	job, err := m.deps.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return domainerrors.ErrNotFound
	}
	job.Reset(m.deps.Clock.Now())
	if err := m.deps.Jobs.Update(ctx, job); err != nil {
		return err
	}
	m.deps.Registry.Add(job)
	m.spawn(job.ID)
	return nil
}

// Recover finds every persisted job left Running by an unclean shutdown,
// demotes it to Pending, and relaunches it from its last checkpointed
// page. Paused jobs are left untouched; resuming them is an explicit
// operator action. Per spec.md §7.
func (m *Manager) Recover(ctx context.Context) error {
	running, err := m.deps.Jobs.ListByStatus(ctx, valueobject.JobStatusRunning)
	if err != nil {
		return err
	}
	for _, job := range running {
		job.Status = valueobject.JobStatusPending
		if err := m.deps.Jobs.Update(ctx, job); err != nil {
			m.deps.Logger.Error("failed to demote interrupted job during recovery", "jobId", job.ID, "error", err)
			continue
		}
		m.deps.Registry.Add(job)
		m.spawn(job.ID)
	}
	return nil
}

// spawn acquires a semaphore permit and runs the job in its own goroutine.
// The permit is released on exit regardless of outcome, including panic,
// per spec.md §5.
func (m *Manager) spawn(jobID string) {
	go func() {
		select {
		case m.sem <- struct{}{}:
		case <-m.ctx.Done():
			return
		}
		defer func() {
			<-m.sem
			if r := recover(); r != nil {
				m.deps.Logger.Error("job goroutine panicked", "jobId", jobID, "panic", r)
				m.deps.Registry.Update(jobID, func(j *entity.Job) {
					j.Status = valueobject.JobStatusFailed
					now := m.deps.Clock.Now()
					j.FinishedAt = &now
				})
				if job := m.deps.Registry.Get(jobID); job != nil {
					_ = m.deps.Jobs.Update(context.Background(), job)
				}
			}
		}()
		m.deps.Worker.Run(m.ctx, jobID)
	}()
}

// StatsResponse is the `stats {tenantId?}` surface of spec.md §6: status
// counts plus a live-vs-persisted total comparison.
type StatsResponse struct {
	Running    int
	Pending    int
	Completed  int
	Failed     int
	Cancelled  int
	LiveTotal  int
	Persisted  int
}

// Stats reports persisted status counts (optionally scoped to tenantID)
// alongside the Registry's live total, so a caller can see in-memory vs
// persisted totals per spec.md §6.
func (m *Manager) Stats(ctx context.Context, tenantID *uuid.UUID) (*StatsResponse, error) {
	var live []*entity.Job
	if tenantID != nil {
		live = m.deps.Registry.ListByTenant(*tenantID)
	} else {
		live = m.deps.Registry.ListAll()
	}

	counts, err := m.deps.Jobs.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return &StatsResponse{
		Running:   counts[valueobject.JobStatusRunning],
		Pending:   counts[valueobject.JobStatusPending],
		Completed: counts[valueobject.JobStatusCompleted],
		Failed:    counts[valueobject.JobStatusFailed],
		Cancelled: counts[valueobject.JobStatusCancelled],
		LiveTotal: len(live),
		Persisted: counts[valueobject.JobStatusRunning] + counts[valueobject.JobStatusPending] +
			counts[valueobject.JobStatusPaused] + counts[valueobject.JobStatusCompleted] +
			counts[valueobject.JobStatusFailed] + counts[valueobject.JobStatusCancelled],
	}, nil
}

var errActiveJobExists = stringError("integration already has an active job")
var errNotPausable = stringError("job is not in a pausable state")
var errNotPaused = stringError("job is not paused")

type stringError string

func (e stringError) Error() string { return string(e) }
