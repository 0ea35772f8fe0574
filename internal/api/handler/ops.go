// Package handler provides HTTP handlers for the VanRoute API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vanroute/vanroute/internal/api/models"
	"github.com/vanroute/vanroute/internal/api/response"
	"github.com/vanroute/vanroute/internal/closures"
	"github.com/vanroute/vanroute/internal/provider/resilience"
	"github.com/vanroute/vanroute/internal/transit"
)

// OpsConfig holds the collaborators surfaced by the ops endpoints. All
// fields except Version/BuildTime are optional; absent subsystems are
// simply not reported.
type OpsConfig struct {
	Version   string
	BuildTime string

	Registry       *resilience.Registry
	Pool           *pgxpool.Pool
	StaticIndex    *transit.StaticIndex
	FeedCache      *transit.FeedCache
	ClosureService *closures.Service
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. The service
// is ready when the database answers and the static transit index has data.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatusOK
	details := map[string]interface{}{}

	if h.cfg.Pool != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.cfg.Pool.Ping(ctx); err != nil {
			status = models.HealthStatusFail
			details["database"] = err.Error()
		}
	}

	if h.cfg.StaticIndex != nil {
		stops, _, _ := h.cfg.StaticIndex.Stats()
		if stops == 0 {
			status = models.HealthStatusFail
			details["gtfs_static"] = "no stops loaded"
		}
	}

	code := http.StatusOK
	if status != models.HealthStatusOK {
		code = http.StatusServiceUnavailable
	}

	health := models.Health{
		Status: status,
		Time:   models.Timestamp(time.Now()),
	}
	if len(details) > 0 {
		health.Details = details
	}
	response.JSON(w, r, code, health)
}

// SystemStatus handles GET /v1/ops/status - provider and cache status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())
	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   now,
	}

	status.Subsystems = h.subsystemStatuses(r.Context())
	status.Providers = h.providerStatuses()
	status.Caches = h.cacheStatuses()

	for _, s := range status.Subsystems {
		if s.Status == models.HealthStatusFail {
			status.Status = models.HealthStatusDegraded
		}
	}
	for _, p := range status.Providers {
		if p.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusDegraded
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) subsystemStatuses(ctx context.Context) []models.SubsystemStatus {
	var subsystems []models.SubsystemStatus

	if h.cfg.Pool != nil {
		s := models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := h.cfg.Pool.Ping(pingCtx); err != nil {
			msg := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &msg
		}
		cancel()
		subsystems = append(subsystems, s)
	}

	if h.cfg.StaticIndex != nil {
		s := models.SubsystemStatus{Name: "gtfs-static", Status: models.HealthStatusOK}
		stops, _, _ := h.cfg.StaticIndex.Stats()
		if stops == 0 {
			detail := "no stops loaded"
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		subsystems = append(subsystems, s)
	}

	return subsystems
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.cfg.Registry == nil {
		return nil
	}

	healths := h.cfg.Registry.GetAllHealth()
	statuses := make([]models.ProviderStatus, 0, len(healths))
	for _, ph := range healths {
		ps := models.ProviderStatus{
			Provider:     ph.Name,
			Status:       models.HealthStatusOK,
			CircuitState: ph.CircuitState.String(),
		}
		switch {
		case ph.IsUnhealthy():
			ps.Status = models.HealthStatusFail
		case ph.IsDegraded():
			ps.Status = models.HealthStatusDegraded
		}
		if ph.LastSuccessAt != nil {
			ts := models.Timestamp(*ph.LastSuccessAt)
			ps.LastSuccessAt = &ts
		}
		if ph.LastFailureAt != nil {
			ts := models.Timestamp(*ph.LastFailureAt)
			ps.LastFailureAt = &ts
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		statuses = append(statuses, ps)
	}
	return statuses
}

func (h *OpsHandler) cacheStatuses() []models.CacheStatus {
	var caches []models.CacheStatus

	if h.cfg.FeedCache != nil {
		cs := models.CacheStatus{Name: "transit-feed"}
		if age, ok := h.cfg.FeedCache.Age(); ok {
			cs.HasData = true
			seconds := int(age.Seconds())
			cs.AgeSeconds = &seconds
		}
		caches = append(caches, cs)
	}

	if h.cfg.ClosureService != nil {
		status := h.cfg.ClosureService.CacheStatus()
		cs := models.CacheStatus{
			Name:      "road-closures",
			HasData:   status.HasData,
			ItemCount: status.ClosureCount,
		}
		if status.HasData {
			ts := models.Timestamp(status.FetchedAt)
			cs.FetchedAt = &ts
		}
		caches = append(caches, cs)
	}

	return caches
}
