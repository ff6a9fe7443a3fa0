package service

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/repository"
	domainservice "github.com/interhealth/syncengine/internal/domain/service"
	"github.com/interhealth/syncengine/internal/domain/valueobject"
	"github.com/interhealth/syncengine/internal/infrastructure/crypto"
	"github.com/interhealth/syncengine/internal/infrastructure/storage"
	"github.com/interhealth/syncengine/internal/transform/generator"
	"github.com/interhealth/syncengine/internal/transform/replacer"
)

// WorkerDeps collects the Sync Worker's collaborators. Per spec.md §9's
// design note, the Worker depends on small interfaces, not a god object:
// extractor, catalog repositories, the transform pipeline, the stage sink,
// and the Registry.
type WorkerDeps struct {
	Integrations repository.IntegrationRepository
	Connections  repository.ConnectionRepository
	Mappings     repository.MappingRepository
	Jobs         repository.JobRepository
	Registry     *Registry

	Extractor  domainservice.Extractor
	Generator  *generator.Generator
	Lookup     replacer.TerminologyLookup
	Stage      storage.StorageAdapter
	Encryptor  crypto.Encryptor
	Clock      repository.Clock
	Logger     domainservice.Logger

	InterPageBackoff     time.Duration
	SimulatedFailureRate float64

	// RandFloat is the [0,1) source used by the simulated-fault hook;
	// overridden in tests for deterministic fault injection.
	RandFloat func() float64
}

// SyncWorker drives one job end-to-end: connect source, count, loop
// pages, transform each row, stage output, checkpoint. Per spec.md §4.7.
type SyncWorker struct {
	deps WorkerDeps
}

func NewSyncWorker(deps WorkerDeps) *SyncWorker {
	if deps.Clock == nil {
		deps.Clock = repository.SystemClock{}
	}
	if deps.RandFloat == nil {
		deps.RandFloat = rand.Float64
	}
	return &SyncWorker{deps: deps}
}

// Run executes job jobID to a terminal or Paused state. Preconditions: the
// job is present in the Registry and persisted as the caller's
// responsibility (the Manager does both before calling Run).
func (w *SyncWorker) Run(ctx context.Context, jobID string) {
	log := w.deps.Logger.With("jobId", jobID)

	job := w.deps.Registry.Get(jobID)
	if job == nil {
		log.Error("job not found in registry at worker start")
		return
	}

	if job.Status == valueobject.JobStatusPending {
		w.deps.Registry.Update(jobID, func(j *entity.Job) {
			j.Status = valueobject.JobStatusRunning
			if j.StartedAt == nil {
				now := w.deps.Clock.Now()
				j.StartedAt = &now
			}
		})
		w.checkpoint(ctx, jobID, log)
	}

	integration, err := w.deps.Integrations.GetByID(ctx, job.IntegrationID)
	if err != nil || integration == nil {
		w.fail(ctx, jobID, log, "load integration", err)
		return
	}
	connection, err := w.deps.Connections.GetByID(ctx, integration.ConnectionID)
	if err != nil || connection == nil {
		w.fail(ctx, jobID, log, "load connection", err)
		return
	}
	mapping, err := w.deps.Mappings.GetByIntegrationAndEntityType(ctx, integration.ID, job.EntityType)
	if err != nil || mapping == nil {
		w.fail(ctx, jobID, log, "load mapping", err)
		return
	}

	password := connection.Password
	if w.deps.Encryptor != nil {
		if p, decErr := w.deps.Encryptor.Decrypt(connection.Password); decErr == nil {
			password = p
		}
	}
	handle, err := w.deps.Extractor.Open(ctx, domainservice.ConnectionParams{
		Host:     connection.Host,
		Port:     connection.Port,
		Service:  connection.Database,
		Username: connection.Username,
		Password: password,
	})
	if err != nil {
		w.fail(ctx, jobID, log, "open extractor", err)
		return
	}
	defer handle.Close()

	table := job.EntityType.TableName()

	// totalRecords is computed once per run generation (fresh Pending run
	// or after a Restart's Reset) and never recomputed on Resume: doing so
	// against a possibly-grown source table would invalidate the
	// currentPage/pageSize arithmetic already checkpointed.
	var total int64
	if job.TotalRecords != nil {
		total = *job.TotalRecords
	} else {
		var err error
		total, err = handle.CountRecords(ctx, table)
		if err != nil {
			w.fail(ctx, jobID, log, "count records", err)
			return
		}
		w.deps.Registry.Update(jobID, func(j *entity.Job) { j.TotalRecords = &total })
		w.checkpoint(ctx, jobID, log)
	}

	if total == 0 {
		w.deps.Registry.Update(jobID, func(j *entity.Job) {
			j.Status = valueobject.JobStatusCompleted
			now := w.deps.Clock.Now()
			j.FinishedAt = &now
		})
		w.checkpoint(ctx, jobID, log)
		w.deps.Registry.Remove(jobID)
		return
	}

	pageSize := job.PageSize
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))

	bundleMode := job.EntityType.IsBundle()
	var bundleDocs []*generator.Document

	for page := job.CurrentPage; page < totalPages; page++ {
		current := w.deps.Registry.Get(jobID)
		if current == nil || current.Status == valueobject.JobStatusPaused {
			w.checkpoint(ctx, jobID, log)
			return
		}

		records, err := handle.FetchPage(ctx, table, page*pageSize, pageSize)
		if err != nil {
			w.fail(ctx, jobID, log, "fetch page", err)
			return
		}

		processed := current.ProcessedRecords
		failed := current.FailedRecords

		for i, record := range records {
			globalIndex := page*pageSize + i

			if w.deps.SimulatedFailureRate > 0 && w.deps.RandFloat() < w.deps.SimulatedFailureRate {
				failed++
				w.recordFailure(jobID, job.EntityType, record)
				continue
			}

			doc, err := w.deps.Generator.Generate(mapping)
			if err == nil {
				err = replacer.ApplyRecord(ctx, doc, record, mapping, w.deps.Lookup, job.TenantID)
			}
			if err != nil {
				failed++
				w.recordFailure(jobID, job.EntityType, record)
				continue
			}

			if bundleMode {
				bundleDocs = append(bundleDocs, doc)
				processed++
				continue
			}

			path := storage.StagePath(jobID, job.EntityType.String(), globalIndex)
			if err := w.deps.Stage.WriteJSON(ctx, path, doc); err != nil {
				failed++
				w.recordFailure(jobID, job.EntityType, record)
				continue
			}
			processed++
		}

		currentPage := page + 1
		w.deps.Registry.UpdateProgress(jobID, processed, failed, currentPage)
		w.checkpoint(ctx, jobID, log)

		if w.deps.InterPageBackoff > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.deps.InterPageBackoff):
			}
		}
	}

	if bundleMode && len(bundleDocs) > 1 {
		replacer.RewriteBundleReferences(bundleDocs)
	}
	for idx, doc := range bundleDocs {
		path := storage.StagePath(jobID, job.EntityType.String(), idx)
		if err := w.deps.Stage.WriteJSON(ctx, path, doc); err != nil {
			log.Error("failed to stage bundle document", "index", idx, "error", err)
		}
	}

	final := w.deps.Registry.Get(jobID)
	if final != nil && final.Status == valueobject.JobStatusPaused {
		return
	}

	w.deps.Registry.Update(jobID, func(j *entity.Job) {
		j.Status = valueobject.JobStatusCompleted
		now := w.deps.Clock.Now()
		j.FinishedAt = &now
	})
	w.checkpoint(ctx, jobID, log)
	w.deps.Registry.Remove(jobID)
}

func (w *SyncWorker) recordFailure(jobID string, entityType valueobject.EntityType, record map[string]interface{}) {
	code, ok := entityType.ExtractItemCode(record)
	w.deps.Registry.Update(jobID, func(j *entity.Job) {
		if ok {
			j.AddFailedItemCode(code)
		}
	})
}

func (w *SyncWorker) fail(ctx context.Context, jobID string, log domainservice.Logger, stage string, err error) {
	log.Error("job failed", "stage", stage, "error", err)
	w.deps.Registry.Update(jobID, func(j *entity.Job) {
		j.Status = valueobject.JobStatusFailed
		now := w.deps.Clock.Now()
		j.FinishedAt = &now
	})
	w.checkpoint(ctx, jobID, log)
}

// checkpoint persists the Registry's current view of jobID to the Catalog
// Store. A failure is logged and retried once; a second failure escalates
// the job to Failed, per spec.md §7.
func (w *SyncWorker) checkpoint(ctx context.Context, jobID string, log domainservice.Logger) {
	job := w.deps.Registry.Get(jobID)
	if job == nil {
		return
	}
	if err := w.deps.Jobs.Update(ctx, job); err != nil {
		log.Warn("checkpoint failed, retrying once", "error", err)
		if err := w.deps.Jobs.Update(ctx, job); err != nil {
			log.Error("checkpoint failed twice, escalating to failed", "error", err)
			w.deps.Registry.Update(jobID, func(j *entity.Job) {
				j.Status = valueobject.JobStatusFailed
				now := w.deps.Clock.Now()
				j.FinishedAt = &now
			})
			if job2 := w.deps.Registry.Get(jobID); job2 != nil {
				_ = w.deps.Jobs.Update(ctx, job2)
			}
		}
	}
}
