// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/internal/claims"
	"github.com/arbiterdevs/btc-arbitration/internal/config"
	"github.com/arbiterdevs/btc-arbitration/internal/connection"
	"github.com/arbiterdevs/btc-arbitration/internal/metrics"
	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/internal/notification"
	"github.com/arbiterdevs/btc-arbitration/internal/requeststore"
	"github.com/arbiterdevs/btc-arbitration/internal/storage"
	"github.com/arbiterdevs/btc-arbitration/internal/watcher"
	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// HTTPServer exposes the projected ledger state and component status
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	watcher        *watcher.LedgerWatcher
	orchestrator   *claims.Orchestrator
	requests       *requeststore.Store
	notifier       *notification.Manager
	connections    connection.Manager
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	cfg *config.ServerConfig,
	store storage.Storage,
	ledgerWatcher *watcher.LedgerWatcher,
	orchestrator *claims.Orchestrator,
	requests *requeststore.Store,
	notifier *notification.Manager,
	connections connection.Manager,
	metricsManager *metrics.Manager,
) (*HTTPServer, error) {

	server := &HTTPServer{
		config:         cfg,
		storage:        store,
		watcher:        ledgerWatcher,
		orchestrator:   orchestrator,
		requests:       requests,
		notifier:       notifier,
		connections:    connections,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Projected entity endpoints
	api.HandleFunc("/dapps", s.listDAppsHandler).Methods("GET")
	api.HandleFunc("/dapps/{address}", s.getDAppHandler).Methods("GET")
	api.HandleFunc("/claims", s.listClaimsHandler).Methods("GET")
	api.HandleFunc("/claims/{id}", s.getClaimHandler).Methods("GET")
	api.HandleFunc("/config", s.listConfigHandler).Methods("GET")
	api.HandleFunc("/config/{key}", s.getConfigHandler).Methods("GET")
	api.HandleFunc("/nft", s.listNFTHandler).Methods("GET")
	api.HandleFunc("/nft/{tokenId}", s.getNFTHandler).Methods("GET")

	// Event journal endpoints
	api.HandleFunc("/events", s.listEventsHandler).Methods("GET")

	// Oracle request ledger endpoints
	api.HandleFunc("/requests", s.listRequestsHandler).Methods("GET")

	// Watcher endpoints
	api.HandleFunc("/watcher/status", s.watcherStatusHandler).Methods("GET")
	api.HandleFunc("/watcher/rebuild", s.rebuildHandler).Methods("POST")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Catch immediate binding errors before reporting success.
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// systemMetricsUpdater refreshes process and component health metrics
// periodically; the probes themselves are registered at startup.
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metricsManager.UpdateSystemMetrics()
	}
}

// Health handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"version":         "1.0.0",
		"metrics_enabled": s.config.EnableMetrics,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// detailedHealthHandler returns per-component health
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	components := map[string]interface{}{
		"storage": s.storage.Ping() == nil,
	}
	if s.watcher != nil {
		components["watcher"] = s.watcher.IsRunning()
	}
	if s.notifier != nil {
		components["notification"] = s.notifier.IsRunning()
	}
	if s.connections != nil {
		components["connection"] = s.connections.IsConnected()
	}

	status := "healthy"
	for _, healthy := range components {
		if healthy != true {
			status = "degraded"
			break
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now(),
		"version":    "1.0.0",
		"components": components,
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	stats := map[string]interface{}{
		"timestamp": time.Now(),
		"storage":   storageStats,
	}
	if s.watcher != nil {
		stats["watcher"] = s.watcher.GetStats()
	}
	if s.orchestrator != nil {
		stats["claims"] = s.orchestrator.GetStats()
	}
	if s.notifier != nil {
		stats["notification"] = s.notifier.GetStats()
	}
	if s.connections != nil {
		stats["connection"] = s.connections.Stats()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// Entity handlers

// listDAppsHandler lists projected dapps
func (s *HTTPServer) listDAppsHandler(w http.ResponseWriter, r *http.Request) {
	filter := s.parseEntityFilter(r)

	dapps, err := s.storage.ListDApps(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve dapps", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"dapps": dapps,
		"total": len(dapps),
	})
}

// getDAppHandler gets one dapp by address. The path parameter is validated
// and canonicalized so lowercase and checksummed spellings hit the same row.
func (s *HTTPServer) getDAppHandler(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !utils.IsValidAddress(address) {
		s.writeError(w, http.StatusBadRequest, "Invalid dapp address", nil)
		return
	}

	dapp, err := s.storage.GetDApp(common.HexToAddress(address).Hex())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve dapp", err)
		return
	}
	if dapp == nil {
		s.writeError(w, http.StatusNotFound, "DApp not found", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, dapp)
}

// listClaimsHandler lists projected compensation claims
func (s *HTTPServer) listClaimsHandler(w http.ResponseWriter, r *http.Request) {
	filter := s.parseEntityFilter(r)

	claimList, err := s.storage.ListClaims(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve claims", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"claims": claimList,
		"total":  len(claimList),
	})
}

// getClaimHandler gets one compensation claim by id
func (s *HTTPServer) getClaimHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	claim, err := s.storage.GetClaim(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve claim", err)
		return
	}
	if claim == nil {
		s.writeError(w, http.StatusNotFound, "Claim not found", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, claim)
}

// listConfigHandler lists ledger configuration entries
func (s *HTTPServer) listConfigHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.storage.ListConfigEntries(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve config entries", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

// getConfigHandler gets one configuration entry by key
func (s *HTTPServer) getConfigHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	entry, err := s.storage.GetConfigEntry(key)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve config entry", err)
		return
	}
	if entry == nil {
		s.writeError(w, http.StatusNotFound, "Config entry not found", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, entry)
}

// listNFTHandler lists tracked token ownership
func (s *HTTPServer) listNFTHandler(w http.ResponseWriter, r *http.Request) {
	filter := s.parseEntityFilter(r)

	ownerships, err := s.storage.ListNFTOwnerships(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve token ownership", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tokens": ownerships,
		"total":  len(ownerships),
	})
}

// getNFTHandler gets current ownership for one token
func (s *HTTPServer) getNFTHandler(w http.ResponseWriter, r *http.Request) {
	tokenID := mux.Vars(r)["tokenId"]

	ownership, err := s.storage.GetNFTOwnership(tokenID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve token ownership", err)
		return
	}
	if ownership == nil {
		s.writeError(w, http.StatusNotFound, "Token not found", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, ownership)
}

// Journal handlers

// listEventsHandler lists journaled ledger events for a block range
func (s *HTTPServer) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	fromBlock := s.parseUintParam(r, "from", 0)
	toBlock := s.parseUintParam(r, "to", 0)

	records, err := s.storage.GetEventRecords(r.Context(), fromBlock, toBlock)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve events", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events":     records,
		"from_block": fromBlock,
		"to_block":   toBlock,
		"total":      len(records),
	})
}

// Request ledger handlers

// listRequestsHandler lists oracle verification requests
func (s *HTTPServer) listRequestsHandler(w http.ResponseWriter, r *http.Request) {
	if s.requests == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Request ledger not configured", nil)
		return
	}

	records := s.requests.All()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": records,
		"total":    len(records),
	})
}

// Watcher handlers

// watcherStatusHandler returns watcher status
func (s *HTTPServer) watcherStatusHandler(w http.ResponseWriter, r *http.Request) {
	if s.watcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Watcher not configured", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, s.watcher.GetStats())
}

// rebuildHandler rebuilds the projection from the event journal
func (s *HTTPServer) rebuildHandler(w http.ResponseWriter, r *http.Request) {
	if s.watcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Watcher not configured", nil)
		return
	}
	if s.watcher.IsRunning() {
		s.writeError(w, http.StatusConflict, "Stop the watcher before rebuilding", nil)
		return
	}

	if err := s.watcher.Rebuild(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Rebuild failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "rebuilt",
		"timestamp": time.Now(),
	})
}

// Helpers

func (s *HTTPServer) parseEntityFilter(r *http.Request) models.EntityFilter {
	filter := models.EntityFilter{Limit: 50}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = &status
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	return filter
}

func (s *HTTPServer) parseUintParam(r *http.Request, name string, fallback uint64) uint64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithError(err).WithFields(logrus.Fields{
			"status":  status,
			"message": message,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
