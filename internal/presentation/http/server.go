// Package http implements the job submission and metrics surfaces of
// spec.md §6 over plain net/http + encoding/json, grounded on the
// teacher's presentation layer shape (one mux, one CORS wrapper) but
// dropping connect-rpc: the spec describes these as shapes, not wire
// protocols, and the corpus's non-connect repos reach for stdlib
// net/http + encoding/json for exactly this kind of small JSON API.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/application/service"
	domainerrors "github.com/interhealth/syncengine/internal/domain/errors"
	"github.com/interhealth/syncengine/internal/domain/entity"
	domainservice "github.com/interhealth/syncengine/internal/domain/service"
	"github.com/interhealth/syncengine/internal/infrastructure/pubsub"
)

// Server exposes the sync engine's HTTP surface.
type Server struct {
	manager   *service.Manager
	metrics   *service.MetricsAggregator
	extractor domainservice.Extractor
	connRepo  connectionGetter
	encryptor decryptor
	logger    domainservice.Logger
	subscriber pubsub.Subscriber

	defaultStreamInterval time.Duration
}

// connectionGetter/decryptor are narrow interfaces so the preview
// endpoint doesn't need the full repository/crypto packages imported
// into the signature here.
type connectionGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.SourceConnection, error)
}

type decryptor interface {
	Decrypt(ciphertext string) (string, error)
}

type Deps struct {
	Manager    *service.Manager
	Metrics    *service.MetricsAggregator
	Extractor  domainservice.Extractor
	Connections connectionGetter
	Encryptor  decryptor
	Subscriber pubsub.Subscriber
	Logger     domainservice.Logger

	DefaultStreamInterval time.Duration
}

func NewServer(deps Deps) *Server {
	if deps.DefaultStreamInterval <= 0 {
		deps.DefaultStreamInterval = 3 * time.Second
	}
	return &Server{
		manager:               deps.Manager,
		metrics:               deps.Metrics,
		extractor:             deps.Extractor,
		connRepo:              deps.Connections,
		encryptor:             deps.Encryptor,
		subscriber:            deps.Subscriber,
		logger:                deps.Logger,
		defaultStreamInterval: deps.DefaultStreamInterval,
	}
}

// Handler builds the routed mux for this Server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sync/submit", s.handleSubmit)
	mux.HandleFunc("/sync/status", s.handleStatus)
	mux.HandleFunc("/sync/pause", s.handlePause)
	mux.HandleFunc("/sync/resume", s.handleResume)
	mux.HandleFunc("/sync/restart", s.handleRestart)
	mux.HandleFunc("/sync/stats", s.handleStats)
	mux.HandleFunc("/sync/preview", s.handlePreview)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/metrics/stream", s.handleMetricsStream)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domainerrors.Is(err, domainerrors.KindNotFound):
		status = http.StatusNotFound
	case domainerrors.Is(err, domainerrors.KindBadRequest):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type submitRequest struct {
	TenantID      uuid.UUID `json:"tenantId"`
	IntegrationID uuid.UUID `json:"integrationId"`
	PageSize      int       `json:"pageSize,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, domainerrors.ErrBadRequest)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.ErrBadRequest.WithCause(err))
		return
	}
	job, err := s.manager.Submit(r.Context(), req.TenantID, req.IntegrationID, req.PageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status.String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		writeError(w, domainerrors.ErrBadRequest)
		return
	}
	job, err := s.manager.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if job == nil {
		writeError(w, domainerrors.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type jobIDRequest struct {
	JobID string `json:"jobId"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req jobIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.ErrBadRequest.WithCause(err))
		return
	}
	if err := s.manager.Pause(r.Context(), req.JobID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req jobIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.ErrBadRequest.WithCause(err))
		return
	}
	if err := s.manager.Resume(r.Context(), req.JobID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req jobIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.ErrBadRequest.WithCause(err))
		return
	}
	if err := s.manager.Restart(r.Context(), req.JobID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarted"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var tenantID *uuid.UUID
	if raw := r.URL.Query().Get("tenantId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, domainerrors.ErrBadRequest.WithCause(err))
			return
		}
		tenantID = &id
	}
	stats, err := s.manager.Stats(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenantId"))
	if err != nil {
		writeError(w, domainerrors.ErrBadRequest.WithCause(err))
		return
	}
	snap, err := s.metrics.Snapshot(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleMetricsStream pushes an Initial snapshot then relays Update
// messages published on the tenant's channel, using chunked transfer
// encoding as a unidirectional push channel, per spec.md §4.8.
func (s *Server) handleMetricsStream(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenantId"))
	if err != nil {
		writeError(w, domainerrors.ErrBadRequest.WithCause(err))
		return
	}
	interval := s.defaultStreamInterval
	if raw := r.URL.Query().Get("updateIntervalSec"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			interval = time.Duration(secs) * time.Second
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, domainerrors.ErrFatal)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	initial, err := s.metrics.InitialMessage(ctx, tenantID)
	if err != nil {
		s.logger.Error("failed to compute initial metrics snapshot", "tenantId", tenantID, "error", err)
		return
	}
	w.Write(append(initial, '\n'))
	flusher.Flush()

	go s.metrics.PublishLoop(ctx, tenantID, interval)

	messages, closer, err := s.subscriber.Subscribe(ctx, "metrics:"+tenantID.String())
	if err != nil {
		s.logger.Error("failed to subscribe to metrics channel", "tenantId", tenantID, "error", err)
		return
	}
	defer closer()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			w.Write(append(msg, '\n'))
			flusher.Flush()
		}
	}
}

type previewRequest struct {
	ConnectionID uuid.UUID `json:"connectionId"`
	Table        string    `json:"table"`
}

// handlePreview exercises fetchFirstRow directly, outside of any job, so
// an operator configuring a new integration's mappings can see a sample
// row's column names and values before submitting a full run.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.ErrBadRequest.WithCause(err))
		return
	}
	conn, err := s.connRepo.GetByID(r.Context(), req.ConnectionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if conn == nil {
		writeError(w, domainerrors.ErrNotFound)
		return
	}
	password := conn.Password
	if s.encryptor != nil {
		if p, err := s.encryptor.Decrypt(conn.Password); err == nil {
			password = p
		}
	}
	handle, err := s.extractor.Open(r.Context(), domainservice.ConnectionParams{
		Host:     conn.Host,
		Port:     conn.Port,
		Service:  conn.Database,
		Username: conn.Username,
		Password: password,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer handle.Close()

	row, err := handle.FetchFirstRow(r.Context(), req.Table)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"row": row})
}
