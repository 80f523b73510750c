package handler

import (
	"bytes"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/synopmap/synopmap/internal/api/models"
	"github.com/synopmap/synopmap/internal/api/response"
	"github.com/synopmap/synopmap/internal/mapview"
	"github.com/synopmap/synopmap/internal/stations"
)

// DefaultPageTitle is the title of the map page.
const DefaultPageTitle = "Weather Stations"

// MapHandler serves the map page and its configuration.
type MapHandler struct {
	cfg     mapview.Config
	title   string
	service *stations.Service
	logger  zerolog.Logger
}

// NewMapHandler creates a new MapHandler.
func NewMapHandler(cfg mapview.Config, title string, service *stations.Service, logger zerolog.Logger) *MapHandler {
	if title == "" {
		title = DefaultPageTitle
	}
	return &MapHandler{
		cfg:     cfg,
		title:   title,
		service: service,
		logger:  logger.With().Str("handler", "map").Logger(),
	}
}

// Page handles GET / - the HTML page hosting the map widget.
func (h *MapHandler) Page(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := mapview.WritePage(&buf, h.title, h.cfg); err != nil {
		h.logger.Error().Err(err).Msg("failed to render map page")
		response.InternalError(w, r, "failed to render page")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Config handles GET /api/map/config - the immutable widget configuration.
func (h *MapHandler) Config(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.cfg)
}

// Layers handles GET /api/map/layers - one marker per named station of the
// current snapshot, with its popup rendered server side.
func (h *MapHandler) Layers(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Latest(r.Context())
	if err != nil {
		writeStationsError(w, r, h.logger, err)
		return
	}

	layers, err := mapview.BuildLayers(snap.Collection)
	if err != nil {
		h.logger.Error().Err(err).Str("snapshot_id", snap.ID).Msg("failed to build map layers")
		response.InternalError(w, r, "failed to build map layers")
		return
	}

	out := models.MapLayers{
		SnapshotID: snap.ID,
		Layers:     make([]models.MapLayer, 0, len(layers)),
	}
	for _, l := range layers {
		layer := models.MapLayer{
			StationID:  l.StationID,
			Name:       l.Name,
			PopupHTML:  l.Popup,
			DownloadID: l.DownloadID,
		}
		if l.Placed() {
			lat, lng := l.Position.Lat, l.Position.Lng
			layer.Lat, layer.Lng = &lat, &lng
		}
		out.Layers = append(out.Layers, layer)
	}

	setSnapshotHeaders(w, snap)
	response.JSON(w, r, http.StatusOK, out)
}
