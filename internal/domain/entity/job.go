package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

// Job is one execution of an Integration. The Manager creates it, a single
// Worker mutates it, the Status Registry holds the live copy while the job
// is active, and the persisted record is the durable source of truth once
// finalized.
type Job struct {
	ID            string
	IntegrationID uuid.UUID
	ConnectionID  uuid.UUID
	TenantID      uuid.UUID
	EntityType    valueobject.EntityType

	TotalRecords     *int64
	ProcessedRecords int64
	FailedRecords    int64
	CurrentPage      int
	PageSize         int

	// FailedItemCodes is deduplicated, insertion-order preserving.
	FailedItemCodes []string

	Status valueobject.JobStatus

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// NewJob builds a freshly Pending job for the given integration/connection,
// with zeroed counters, ready to persist and register. now is supplied by
// the caller's Clock so job creation stays deterministic under test.
func NewJob(id string, integrationID, connectionID, tenantID uuid.UUID, entityType valueobject.EntityType, pageSize int, now time.Time) *Job {
	return &Job{
		ID:              id,
		IntegrationID:   integrationID,
		ConnectionID:    connectionID,
		TenantID:        tenantID,
		EntityType:      entityType,
		PageSize:        pageSize,
		FailedItemCodes: []string{},
		Status:          valueobject.JobStatusPending,
		CreatedAt:       now,
	}
}

// Reset restores a job to its fresh-Pending shape for a restart, reusing
// the same id, keeping the integration/connection/tenant/entityType/
// pageSize unchanged, per spec's "* -> Pending (restart)" lifecycle rule.
func (j *Job) Reset(now time.Time) {
	j.TotalRecords = nil
	j.ProcessedRecords = 0
	j.FailedRecords = 0
	j.CurrentPage = 0
	j.FailedItemCodes = []string{}
	j.Status = valueobject.JobStatusPending
	j.CreatedAt = now
	j.StartedAt = nil
	j.FinishedAt = nil
}

// AddFailedItemCode appends code to FailedItemCodes only if not already
// present, preserving insertion order (set semantics per §4.7).
func (j *Job) AddFailedItemCode(code string) {
	if code == "" {
		return
	}
	for _, existing := range j.FailedItemCodes {
		if existing == code {
			return
		}
	}
	j.FailedItemCodes = append(j.FailedItemCodes, code)
}

// Clone returns a deep-enough copy for safe handoff across the Registry's
// reader/writer boundary (slices and pointers are copied, not shared).
func (j *Job) Clone() *Job {
	c := *j
	if j.TotalRecords != nil {
		v := *j.TotalRecords
		c.TotalRecords = &v
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		c.StartedAt = &v
	}
	if j.FinishedAt != nil {
		v := *j.FinishedAt
		c.FinishedAt = &v
	}
	c.FailedItemCodes = append([]string(nil), j.FailedItemCodes...)
	return &c
}
