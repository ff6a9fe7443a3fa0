// Package worker wires hibiken/asynq as a durable heartbeat around the
// Sync Manager's crash recovery, grounded on the teacher's
// infrastructure/worker package (asynq Server/Client pairing). The
// teacher used asynq to dispatch arbitrary background jobs directly; here
// every job still runs through the Manager's in-process counting
// semaphore exactly as spec.md §5 describes, so asynq is repurposed for a
// concern the spec leaves implicit: making sure Manager.Recover runs
// again periodically, not only once at process start, in case a Worker
// goroutine dies silently between Registry updates and a checkpoint.
package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	domainservice "github.com/interhealth/syncengine/internal/domain/service"
)

const TaskTypeRecover = "sync:recover"

// Recoverer is the Manager's view needed by the recover handler.
type Recoverer interface {
	Recover(ctx context.Context) error
}

// Scheduler periodically enqueues a recover task and a Server consumes it,
// calling back into the Sync Manager. Both use the same Redis address.
type Scheduler struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
	mux       *asynq.ServeMux
	logger    domainservice.Logger
}

// NewScheduler builds the asynq scheduler+server pair. cronSpec is a cron
// expression or descriptor (e.g. "@every 30s"); it should be
// comfortably shorter than the window in which an unresponsive Worker
// goroutine would otherwise go unnoticed.
func NewScheduler(redisAddr, cronSpec string, recoverer Recoverer, logger domainservice.Logger) (*Scheduler, error) {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	sched := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: asynqLogger{logger},
	})
	if _, err := sched.Register(cronSpec, asynq.NewTask(TaskTypeRecover, nil)); err != nil {
		return nil, fmt.Errorf("register recover task: %w", err)
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeRecover, func(ctx context.Context, _ *asynq.Task) error {
		return recoverer.Recover(ctx)
	})

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Logger:      asynqLogger{logger},
	})

	return &Scheduler{scheduler: sched, server: server, mux: mux, logger: logger}, nil
}

// Run starts both the scheduler (enqueue side) and the server (consume
// side) in background goroutines and returns immediately.
func (s *Scheduler) Run() {
	go func() {
		if err := s.scheduler.Run(); err != nil {
			s.logger.Error("asynq scheduler stopped", "error", err)
		}
	}()
	go func() {
		if err := s.server.Run(s.mux); err != nil {
			s.logger.Error("asynq server stopped", "error", err)
		}
	}()
}

// Shutdown stops both the scheduler and the server.
func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
	s.server.Shutdown()
}

type asynqLogger struct {
	log domainservice.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
