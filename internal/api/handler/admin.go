package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/synopmap/synopmap/internal/api/middleware"
	"github.com/synopmap/synopmap/internal/api/models"
	"github.com/synopmap/synopmap/internal/api/response"
	"github.com/synopmap/synopmap/internal/stations"
)

// AdminHandler handles snapshot maintenance endpoints.
type AdminHandler struct {
	service *stations.Service
	logger  zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service *stations.Service, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		logger:  logger.With().Str("handler", "admin").Logger(),
	}
}

// Refresh handles POST /v1/admin/refresh - fetch the latest synoptic hour
// now, bypassing the cache.
func (h *AdminHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	subject := middleware.GetSubject(r.Context())

	snap, err := h.service.Refresh(r.Context())
	if err != nil {
		writeStationsError(w, r, h.logger, err)
		return
	}

	h.logger.Info().
		Str("subject", subject).
		Str("snapshot_id", snap.ID).
		Int("stations", snap.Collection.Len()).
		Msg("snapshot refreshed on request")

	response.JSON(w, r, http.StatusOK, models.RefreshResult{
		Snapshot:    toSnapshotModel(snap.Summary()),
		RequestedBy: subject,
	})
}

// InvalidateCache handles POST /v1/admin/cache/invalidate - drop the cached
// snapshot so the next read refetches.
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	h.logger.Info().Str("subject", middleware.GetSubject(r.Context())).Msg("snapshot cache invalidated")
	response.NoContent(w, r)
}
