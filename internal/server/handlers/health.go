// Package handlers holds the HTTP handlers shared by every server surface:
// health probes, version, and the error responder indirection.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/jobforge/huntd/internal/errors"
)

// HealthChecker probes one dependency.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthResponse is the healthy-path probe payload.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

const checkTimeout = 2 * time.Second

// HealthManager aggregates named checkers into the /health endpoints.
type HealthManager struct {
	mu       sync.Mutex
	version  string
	checkers map[string]HealthChecker
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		checkers: map[string]HealthChecker{},
	}
}

func (m *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.Lock()
	names := make(map[string]HealthChecker, len(m.checkers))
	for name, c := range m.checkers {
		names[name] = c
	}
	m.mu.Unlock()

	results := make(map[string]string, len(names))
	for name, checker := range names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checker.CheckHealth(checkCtx)
		cancel()
		switch {
		case err == nil:
			results[name] = "healthy"
		case checkCtx.Err() != nil:
			results[name] = "timeout"
		default:
			results[name] = "unhealthy"
		}
	}
	return results
}

func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, s := range checks {
		switch s {
		case "unhealthy":
			return "unhealthy"
		case "timeout":
			status = "degraded"
		}
	}
	return status
}

// HealthHandler serves the full aggregated probe.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	overall := m.determineOverallStatus(checks)

	if overall == "unhealthy" {
		details := make(map[string]any, 1)
		checkDetails := make(map[string]any, len(checks))
		for name, s := range checks {
			checkDetails[name] = s
		}
		details["checks"] = checkDetails
		apperrors.WriteErrorDetail(w, http.StatusServiceUnavailable, apperrors.ErrorDetail{
			Code:    "SERVICE_UNAVAILABLE",
			Message: "one or more health checks failed",
			Details: details,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:  overall,
		Version: m.version,
		Checks:  checks,
	})
}

// LivenessHandler reports that the process is up; it never runs checkers.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive", "version": m.version})
}

// ReadinessHandler runs the full check set; unready returns 503.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// StartupHandler mirrors readiness for orchestrators that probe startup
// separately.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

var globalHealthManager *HealthManager

// InitHealthManager installs the process-wide manager used by the global
// handler functions.
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the process-wide manager, or nil before init.
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func globalHandler(w http.ResponseWriter, r *http.Request, serve func(*HealthManager, http.ResponseWriter, *http.Request)) {
	if globalHealthManager == nil {
		apperrors.WriteError(w, http.StatusServiceUnavailable,
			"SERVICE_UNAVAILABLE", "health manager not initialized")
		return
	}
	serve(globalHealthManager, w, r)
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	globalHandler(w, r, (*HealthManager).HealthHandler)
}

func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	globalHandler(w, r, (*HealthManager).LivenessHandler)
}

func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	globalHandler(w, r, (*HealthManager).ReadinessHandler)
}

func StartupHandler(w http.ResponseWriter, r *http.Request) {
	globalHandler(w, r, (*HealthManager).StartupHandler)
}
