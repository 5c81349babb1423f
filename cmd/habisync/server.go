package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"habisync/internal/connectivity"
	"habisync/internal/metrics"
	"habisync/internal/models"
	"habisync/internal/notify"
	"habisync/internal/queue"
	"habisync/internal/snapshot"
	"habisync/internal/syncer"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server is the local HTTP API the UI shells call. It exposes the queue,
// the sync trigger, the offline snapshot, and an event stream; it never
// renders anything itself.
type Server struct {
	router       *mux.Router
	logger       *logrus.Logger
	cfg          *models.Config
	queue        *queue.Manager
	orchestrator *syncer.Orchestrator
	preparer     *snapshot.Preparer
	watcher      *connectivity.Watcher
	hub          *notify.Hub
	server       *http.Server
}

func NewServer(cfg *models.Config, logger *logrus.Logger, q *queue.Manager, orchestrator *syncer.Orchestrator, preparer *snapshot.Preparer, watcher *connectivity.Watcher, hub *notify.Hub) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		logger:       logger,
		cfg:          cfg,
		queue:        q,
		orchestrator: orchestrator,
		preparer:     preparer,
		watcher:      watcher,
		hub:          hub,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/queue", s.handleQueue()).Methods(http.MethodGet)
	api.HandleFunc("/inspections", s.handleEnqueue()).Methods(http.MethodPost)
	api.HandleFunc("/sync", s.handleSync()).Methods(http.MethodPost)
	api.HandleFunc("/offline-data", s.handleOfflineData()).Methods(http.MethodGet)
	api.HandleFunc("/offline-data/refresh", s.handleOfflineRefresh()).Methods(http.MethodPost)
	api.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			s.logger.WithError(err).Warn("Failed to write health response")
		}
	}
}

func (s *Server) handleQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"records":      s.queue.Records(),
			"pendingCount": s.queue.PendingCount(),
		})
	}
}

func (s *Server) handleEnqueue() http.HandlerFunc {
	type enqueueRequest struct {
		Location string `json:"location"`
		Date     string `json:"date,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		record, err := s.queue.Enqueue(r.Context(), models.InspectionRecord{
			Location: req.Location,
			Date:     req.Date,
		})
		if err != nil {
			// The record is queued in memory; only the durable write failed.
			s.logger.WithError(err).Error("Failed to persist enqueued inspection")
		}

		metrics.SetGauge("queue_pending_records", float64(s.queue.PendingCount()), nil, "Records currently awaiting sync")
		s.hub.Publish(notify.EventQueueUpdated, map[string]int{"pendingCount": s.queue.PendingCount()})

		s.writeJSON(w, http.StatusCreated, record)
	}
}

func (s *Server) handleSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.orchestrator.Sync(r.Context())
		switch err {
		case nil:
			s.writeJSON(w, http.StatusOK, summary)
		case syncer.ErrNoConnectivity:
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": err.Error()})
		case syncer.ErrNothingPending:
			s.writeJSON(w, http.StatusOK, map[string]string{"message": err.Error()})
		case syncer.ErrSyncInProgress:
			s.writeJSON(w, http.StatusConflict, map[string]string{"message": err.Error()})
		default:
			s.logger.WithError(err).Error("Sync failed")
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sync failed"})
		}
	}
}

func (s *Server) handleOfflineData() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := s.preparer.Current(r.Context())
		if err != nil {
			s.logger.WithError(err).Error("Failed to read offline snapshot")
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read offline snapshot"})
			return
		}
		if snap == nil {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"message": "no offline snapshot prepared yet"})
			return
		}
		s.writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) handleOfflineRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := s.preparer.Refresh(r.Context())
		if err != nil {
			s.logger.WithError(err).Error("Manual offline snapshot refresh failed")
			s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		s.writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"connectivity":   s.watcher.Status().String(),
			"syncInProgress": s.orchestrator.InProgress(),
			"pendingCount":   s.queue.PendingCount(),
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
