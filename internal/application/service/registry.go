// Package service implements the application-layer orchestration:
// the Sync Status Registry, Sync Manager, Sync Worker, and Metrics
// Aggregator described in spec.md §4.5-4.8. Grounded on the teacher's
// AIGenerationService lifecycle-transition style
// (ai_generation_service.go's ProcessOutlineGenerationJob).
package service

import (
	"sync"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

// Registry is the process-wide jobId -> Job index described in spec.md
// §4.5: many concurrent readers may observe; mutations are serialized
// under a writer lock. It is the only cross-task shared state besides the
// Manager's semaphore.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*entity.Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*entity.Job)}
}

// Add inserts or replaces the job's live copy.
func (r *Registry) Add(job *entity.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job.Clone()
}

// Get returns a defensive copy of the live job, or nil if not present.
func (r *Registry) Get(jobID string) *entity.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	return j.Clone()
}

// Update performs an atomic read-modify-write under the writer lock. fn
// mutates the live job in place; it returns false if the job is not
// present in the Registry.
func (r *Registry) Update(jobID string, fn func(*entity.Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return false
	}
	fn(j)
	return true
}

// UpdateProgress is the fast path for the worker's hot per-page update.
func (r *Registry) UpdateProgress(jobID string, processed, failed int64, currentPage int) bool {
	return r.Update(jobID, func(j *entity.Job) {
		j.ProcessedRecords = processed
		j.FailedRecords = failed
		j.CurrentPage = currentPage
	})
}

// Remove deletes jobID's live copy, called when a job reaches a terminal
// state and its record is safely persisted.
func (r *Registry) Remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}

// ListByTenant returns defensive copies of every live job owned by
// tenantID.
func (r *Registry) ListByTenant(tenantID uuid.UUID) []*entity.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Job
	for _, j := range r.jobs {
		if j.TenantID == tenantID {
			out = append(out, j.Clone())
		}
	}
	return out
}

// ListAll returns defensive copies of every live job, used by the Manager's
// ListRunning and Stats when no tenant is given.
func (r *Registry) ListAll() []*entity.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Clone())
	}
	return out
}

// CountRunning counts live jobs whose status is Running.
func (r *Registry) CountRunning() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, j := range r.jobs {
		if j.Status == valueobject.JobStatusRunning {
			n++
		}
	}
	return n
}

// CountTotal counts every live job in the Registry.
func (r *Registry) CountTotal() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
