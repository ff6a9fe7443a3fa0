package service

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

func newTestJob(id string, tenantID uuid.UUID, status valueobject.JobStatus) *entity.Job {
	j := entity.NewJob(id, uuid.New(), uuid.New(), tenantID, valueobject.EntityTypePatient, 100, time.Unix(0, 0).UTC())
	j.Status = status
	return j
}

func TestRegistryAddGetReturnsDefensiveCopy(t *testing.T) {
	r := NewRegistry()
	tenantID := uuid.New()
	job := newTestJob("job-1", tenantID, valueobject.JobStatusPending)
	r.Add(job)

	got := r.Get("job-1")
	if got == nil {
		t.Fatal("Get() returned nil for a job just added")
	}
	got.Status = valueobject.JobStatusFailed

	again := r.Get("job-1")
	if again.Status != valueobject.JobStatusPending {
		t.Errorf("mutating a Get() result should not affect the Registry's copy; got %v", again.Status)
	}
}

func TestRegistryGetMissingReturnsNil(t *testing.T) {
	r := NewRegistry()
	if r.Get("missing") != nil {
		t.Error("Get() should return nil for an absent job")
	}
}

func TestRegistryUpdateMutatesLiveJob(t *testing.T) {
	r := NewRegistry()
	tenantID := uuid.New()
	r.Add(newTestJob("job-1", tenantID, valueobject.JobStatusPending))

	ok := r.Update("job-1", func(j *entity.Job) {
		j.Status = valueobject.JobStatusRunning
	})
	if !ok {
		t.Fatal("Update() should return true for a present job")
	}
	if r.Get("job-1").Status != valueobject.JobStatusRunning {
		t.Error("Update() should have persisted the mutation")
	}
}

func TestRegistryUpdateMissingReturnsFalse(t *testing.T) {
	r := NewRegistry()
	if r.Update("missing", func(j *entity.Job) {}) {
		t.Error("Update() should return false for an absent job")
	}
}

func TestRegistryUpdateProgress(t *testing.T) {
	r := NewRegistry()
	tenantID := uuid.New()
	r.Add(newTestJob("job-1", tenantID, valueobject.JobStatusRunning))

	if !r.UpdateProgress("job-1", 50, 2, 3) {
		t.Fatal("UpdateProgress() should return true")
	}
	got := r.Get("job-1")
	if got.ProcessedRecords != 50 || got.FailedRecords != 2 || got.CurrentPage != 3 {
		t.Errorf("got %+v, want ProcessedRecords=50 FailedRecords=2 CurrentPage=3", got)
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	tenantID := uuid.New()
	r.Add(newTestJob("job-1", tenantID, valueobject.JobStatusCompleted))
	r.Remove("job-1")
	if r.Get("job-1") != nil {
		t.Error("Get() should return nil after Remove()")
	}
}

func TestRegistryListByTenant(t *testing.T) {
	r := NewRegistry()
	tenantA := uuid.New()
	tenantB := uuid.New()
	r.Add(newTestJob("a1", tenantA, valueobject.JobStatusRunning))
	r.Add(newTestJob("a2", tenantA, valueobject.JobStatusPending))
	r.Add(newTestJob("b1", tenantB, valueobject.JobStatusRunning))

	got := r.ListByTenant(tenantA)
	if len(got) != 2 {
		t.Fatalf("ListByTenant() returned %d jobs, want 2", len(got))
	}
}

func TestRegistryListAll(t *testing.T) {
	r := NewRegistry()
	r.Add(newTestJob("a1", uuid.New(), valueobject.JobStatusRunning))
	r.Add(newTestJob("a2", uuid.New(), valueobject.JobStatusPending))

	if len(r.ListAll()) != 2 {
		t.Errorf("ListAll() returned %d jobs, want 2", len(r.ListAll()))
	}
}

func TestRegistryCountRunning(t *testing.T) {
	r := NewRegistry()
	r.Add(newTestJob("a1", uuid.New(), valueobject.JobStatusRunning))
	r.Add(newTestJob("a2", uuid.New(), valueobject.JobStatusPending))
	r.Add(newTestJob("a3", uuid.New(), valueobject.JobStatusRunning))

	if got := r.CountRunning(); got != 2 {
		t.Errorf("CountRunning() = %d, want 2", got)
	}
	if got := r.CountTotal(); got != 3 {
		t.Errorf("CountTotal() = %d, want 3", got)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	tenantID := uuid.New()
	r.Add(newTestJob("job-1", tenantID, valueobject.JobStatusRunning))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			r.UpdateProgress("job-1", int64(i), 0, i)
		}
		close(done)
	}()
	for i := 0; i < 200; i++ {
		r.Get("job-1")
		r.ListAll()
	}
	<-done
}
