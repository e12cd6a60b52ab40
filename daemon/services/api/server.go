// Package api provides the REST/WebSocket surface over the correlation
// engine's telemetry stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/ruaan-deysel/battcorrelate/daemon/docs" // Swagger docs
	"github.com/ruaan-deysel/battcorrelate/daemon/domain"
	"github.com/ruaan-deysel/battcorrelate/daemon/logger"
	"github.com/ruaan-deysel/battcorrelate/daemon/pack"
	"github.com/ruaan-deysel/battcorrelate/daemon/services/telemetrypub"
)

// Server is the REST/WebSocket surface over one engine's telemetry
// stream: latest reading, bounded history, and health.
type Server struct {
	ctx        *domain.Context
	httpServer *http.Server
	router     *mux.Router
	store      *telemetryStore
	hub        *telemetrypub.Hub
	metrics    *telemetrypub.Metrics
}

// NewServer creates an API server. hub and metrics are the same instances
// the orchestrator's telemetry fan-out feeds, so /ws and /metrics reflect
// the live stream rather than a second copy of it.
func NewServer(ctx *domain.Context, hub *telemetrypub.Hub, metrics *telemetrypub.Metrics) *Server {
	s := &Server{
		ctx:     ctx,
		router:  mux.NewRouter(),
		store:   newTelemetryStore(historyCapacity),
		hub:     hub,
		metrics: metrics,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(corsMiddleware(s.ctx.CORSOrigin))
	s.router.Use(loggingMiddleware)
	s.router.Use(recoveryMiddleware)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/ws", s.hub.HandleWebSocket)

	s.router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/telemetry", s.handleLatest).Methods("GET")
	api.HandleFunc("/telemetry/history", s.handleHistory).Methods("GET")
}

// BroadcastEvents subscribes to the operational topics on the domain
// eventbus and forwards each event to the WebSocket hub, so dashboard
// clients see health, frame-loss, source-reset, and state-change events
// alongside the telemetry stream. Blocks until ctx is cancelled.
func (s *Server) BroadcastEvents(ctx context.Context) {
	ch := s.ctx.Hub.SubTopics(
		domain.TopicHealth,
		domain.TopicFrameLoss,
		domain.TopicSourceReset,
		domain.TopicStateChange,
	)
	for {
		select {
		case <-ctx.Done():
			s.ctx.Hub.Unsub(ch)
			return
		case msg := <-ch:
			switch msg.(type) {
			case pack.HealthRecord:
				s.hub.Broadcast("health", msg)
			case domain.FrameLossEvent:
				s.hub.Broadcast("frame_loss", msg)
			case domain.SourceResetEvent:
				s.hub.Broadcast("source_reset", msg)
			case domain.StateChangeEvent:
				s.hub.Broadcast("state_change", msg)
			default:
				logger.Warning("unknown operational event type: %T", msg)
			}
		}
	}
}

// RecordTelemetry appends t to the in-memory history and becomes the new
// /api/v1/telemetry response. Called by the orchestrator's fan-out task,
// never directly by handlers.
func (s *Server) RecordTelemetry(t pack.Telemetry) {
	s.store.push(t)
}

// RecordHealth updates the /api/v1/health response from a periodic
// HealthRecord.
func (s *Server) RecordHealth(h pack.HealthRecord) {
	s.store.setHealth(h)
}

// StartHTTP starts the HTTP server and blocks until it returns an error
// (including http.ErrServerClosed on a clean Stop).
func (s *Server) StartHTTP() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.ctx.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	logger.Info("HTTP server listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server with a 5-second timeout.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Error("API server shutdown error: %v", err)
	}
}

// GetRouter returns the HTTP router, for mounting the MCP handler.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetLatestTelemetry returns the most recently recorded telemetry record,
// for the MCP provider.
func (s *Server) GetLatestTelemetry() (pack.Telemetry, bool) {
	return s.store.getLatest()
}

// GetHealth returns the most recently recorded health record, for the MCP
// provider.
func (s *Server) GetHealth() pack.HealthRecord {
	return s.store.getHealth()
}

// GetHistory returns up to limit of the most recently recorded telemetry
// records, oldest first, for the MCP provider.
func (s *Server) GetHistory(limit int) []pack.Telemetry {
	return s.store.getHistory(limit)
}
