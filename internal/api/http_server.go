package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/domain"
	"slotbook/internal/export"
	"slotbook/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the engine entry points exposed over HTTP.
type Services struct {
	Scheduler domain.Scheduler
	Providers domain.ProviderService
	Clients   domain.ClientService
	Exporter  *export.Exporter
	Health    Pinger
}

// HTTPServer exposes the scheduling API as JSON over HTTP.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     Services
	auth    *HTTPAuth
	handler http.Handler
	server  *http.Server
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	httpLogger := logger.With().Str("component", "http").Logger()

	srv := &HTTPServer{
		cfg:    cfg,
		svc:    svc,
		auth:   NewHTTPAuth(&cfg),
		logger: &httpLogger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	mux := http.NewServeMux()
	srv.routes(mux)
	srv.handler = loggingMiddleware(srv.logger, mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("POST /api/v1/providers", s.auth.Require(permWriteProfiles, s.handleCreateProvider))
	mux.Handle("GET /api/v1/providers", s.auth.Require(permReadSlots, s.handleListProviders))
	mux.Handle("GET /api/v1/providers/{id}", s.auth.Require(permReadSlots, s.handleGetProvider))
	mux.Handle("PUT /api/v1/providers/{id}", s.auth.Require(permWriteProfiles, s.handleRenameProvider))
	mux.Handle("DELETE /api/v1/providers/{id}", s.auth.Require(permWriteProfiles, s.handleDeleteProvider))
	mux.Handle("POST /api/v1/providers/{id}/availability", s.auth.Require(permWriteAvailability, s.handleSubmitAvailability))
	mux.Handle("GET /api/v1/providers/{id}/available-slots", s.auth.Require(permReadSlots, s.handleAvailableSlots))
	mux.Handle("GET /api/v1/providers/{id}/slots", s.auth.Require(permReadSlots, s.handleProviderSlots))
	if s.svc.Exporter != nil {
		mux.Handle("GET /api/v1/providers/{id}/slots/export", s.auth.Require(permReadSlots, s.handleExportSlots))
	}

	mux.Handle("POST /api/v1/clients", s.auth.Require(permWriteProfiles, s.handleCreateClient))
	mux.Handle("GET /api/v1/clients", s.auth.Require(permWriteProfiles, s.handleListClients))
	mux.Handle("GET /api/v1/clients/{id}", s.auth.Require(permWriteProfiles, s.handleGetClient))
	mux.Handle("PUT /api/v1/clients/{id}", s.auth.Require(permWriteProfiles, s.handleUpdateClient))
	mux.Handle("DELETE /api/v1/clients/{id}", s.auth.Require(permWriteProfiles, s.handleDeleteClient))
	mux.Handle("GET /api/v1/clients/{id}/reservations", s.auth.Require(permWriteReservations, s.handleClientReservations))
	mux.Handle("POST /api/v1/clients/{id}/reserve", s.auth.Require(permWriteReservations, s.handleReserve))
	mux.Handle("POST /api/v1/clients/{id}/confirm", s.auth.Require(permWriteReservations, s.handleConfirm))

	mux.Handle("POST /api/v1/admin/expire-reservations", s.auth.Require(permAdminSweep, s.handleExpire))
}

// Handler returns the fully wrapped handler, for embedding or tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDMetadataKey))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDMetadataKey, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.IncHTTP(pattern)

		event := logger.Info()
		if recorder.status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
