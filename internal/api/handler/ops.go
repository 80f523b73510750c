// Package handler provides HTTP handlers for the synopmap API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/synopmap/synopmap/internal/api/models"
	"github.com/synopmap/synopmap/internal/api/response"
	"github.com/synopmap/synopmap/internal/provider/resilience"
	"github.com/synopmap/synopmap/internal/stations"
)

const checkTimeout = 2 * time.Second

// DependencyCheck probes one subsystem, e.g. a database ping.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsConfig configures the operational endpoints.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Stations reports the snapshot cache (optional).
	Stations *stations.Service

	// Registry reports upstream circuit state (optional).
	Registry *resilience.Registry

	// Checks are run by the readiness and status endpoints.
	Checks []DependencyCheck
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - 503 while any dependency check
// fails.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.runChecks(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}
	status := http.StatusOK

	failed := map[string]interface{}{}
	for _, s := range subsystems {
		if s.Status == models.HealthStatusFail {
			failed[s.Name] = *s.Detail
		}
	}
	if len(failed) > 0 {
		health.Status = models.HealthStatusFail
		health.Details = failed
		status = http.StatusServiceUnavailable
	}

	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem, provider and cache
// status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Subsystems: h.runChecks(r.Context()),
		Providers:  h.providerStatuses(),
	}

	if h.cfg.Stations != nil {
		stats := h.cfg.Stations.CacheStats()
		status.Cache = models.CacheStatus{
			HasSnapshot: stats.HasSnapshot,
			SnapshotID:  stats.SnapshotID,
			FetchedAt:   models.TimestampPtr(stats.FetchedAt),
			Fresh:       stats.Fresh,
			Stations:    stats.Stations,
			Provider:    stats.Provider,
		}
	}

	for _, s := range status.Subsystems {
		status.Status = worse(status.Status, s.Status)
	}
	for _, p := range status.Providers {
		status.Status = worse(status.Status, degradeOnly(p.Status))
	}
	if h.cfg.Stations != nil && !status.Cache.HasSnapshot {
		status.Status = worse(status.Status, models.HealthStatusDegraded)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) runChecks(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.cfg.Checks))
	for _, c := range h.cfg.Checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(checkCtx)
		cancel()

		s := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		out = append(out, s)
	}
	return out
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.cfg.Registry == nil {
		return []models.ProviderStatus{}
	}

	all := h.cfg.Registry.All()
	out := make([]models.ProviderStatus, 0, len(all))
	for _, u := range all {
		p := models.ProviderStatus{
			Provider:            u.Name,
			Status:              models.HealthStatusOK,
			CircuitState:        u.CircuitState.String(),
			ConsecutiveFailures: int(u.Counts.ConsecutiveFailures),
		}
		switch {
		case u.IsUnhealthy():
			p.Status = models.HealthStatusFail
		case u.IsDegraded():
			p.Status = models.HealthStatusDegraded
		}
		if u.LastSuccessAt != nil {
			p.LastSuccessAt = models.TimestampPtr(*u.LastSuccessAt)
		}
		if u.LastFailureAt != nil {
			p.LastFailureAt = models.TimestampPtr(*u.LastFailureAt)
		}
		if u.LastError != "" {
			msg := u.LastError
			p.Message = &msg
		}
		out = append(out, p)
	}
	return out
}

// An unavailable provider degrades the service; stale snapshots are still
// served.
func degradeOnly(s models.HealthStatus) models.HealthStatus {
	if s == models.HealthStatusFail {
		return models.HealthStatusDegraded
	}
	return s
}

func worse(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
