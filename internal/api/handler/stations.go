package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/synopmap/synopmap/internal/api/middleware"
	"github.com/synopmap/synopmap/internal/api/models"
	"github.com/synopmap/synopmap/internal/api/response"
	"github.com/synopmap/synopmap/internal/geojson"
	"github.com/synopmap/synopmap/internal/mapview"
	"github.com/synopmap/synopmap/internal/ogimet"
	"github.com/synopmap/synopmap/internal/stations"
)

// RangeTimeLayout is the format of range query bounds, as produced by an
// HTML datetime-local input. Bounds are read as UTC.
const RangeTimeLayout = "2006-01-02T15:04"

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// StationsHandler serves the station feature collection and its exports.
type StationsHandler struct {
	service *stations.Service
	logger  zerolog.Logger
}

// NewStationsHandler creates a new StationsHandler.
func NewStationsHandler(service *stations.Service, logger zerolog.Logger) *StationsHandler {
	return &StationsHandler{
		service: service,
		logger:  logger.With().Str("handler", "stations").Logger(),
	}
}

// ListStations handles GET /api/stations - the current feature collection.
func (h *StationsHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Latest(r.Context())
	if err != nil {
		writeStationsError(w, r, h.logger, err)
		return
	}

	setSnapshotHeaders(w, snap)
	response.JSON(w, r, http.StatusOK, snap.Collection)
}

// ExportStations handles GET /api/stations/export - weather_stations.json.
func (h *StationsHandler) ExportStations(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Latest(r.Context())
	if err != nil {
		writeStationsError(w, r, h.logger, err)
		return
	}

	setSnapshotHeaders(w, snap)
	if err := mapview.ExportCollection(r.Context(), mapview.NewAttachmentExporter(w), snap.Collection); err != nil {
		h.logger.Error().Err(err).Str("snapshot_id", snap.ID).Msg("failed to write collection export")
	}
}

// GetStation handles GET /api/stations/{stationId} - one feature.
func (h *StationsHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.Station(r.Context(), chi.URLParam(r, "stationId"))
	if err != nil {
		writeStationsError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, f)
}

// ExportStation handles GET /api/stations/{stationId}/export -
// station_<id>.json.
func (h *StationsHandler) ExportStation(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationId")

	f, err := h.service.Station(r.Context(), stationID)
	if err != nil {
		writeStationsError(w, r, h.logger, err)
		return
	}

	if err := mapview.ExportFeature(r.Context(), mapview.NewAttachmentExporter(w), f); err != nil {
		h.logger.Error().Err(err).Str("station_id", stationID).Msg("failed to write station export")
	}
}

// ExportRange handles GET and POST /api/stations/range - a GeoJSON
// attachment for an explicit time window. Bounds come from the query string
// or a form body.
func (h *StationsHandler) ExportRange(w http.ResponseWriter, r *http.Request) {
	window, fieldErrors := parseWindow(r)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "start and end must be formatted as "+RangeTimeLayout, fieldErrors)
		return
	}

	fc, err := h.service.FetchRange(r.Context(), window)
	if err != nil {
		writeStationsError(w, r, h.logger, err)
		return
	}

	data, err := geojson.MarshalPretty(fc)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode range export")
		response.InternalError(w, r, "an unexpected error occurred")
		return
	}

	exp := mapview.NewAttachmentExporter(w).WithContentType(geojson.ContentTypeGeoJSON)
	if err := exp.Export(r.Context(), geojson.RangeFilename(window.Start, window.End), data); err != nil {
		h.logger.Error().Err(err).Msg("failed to write range export")
	}
}

// ListSnapshots handles GET /api/snapshots - stored snapshot summaries.
func (h *StationsHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			response.BadRequest(w, r, "invalid limit", []models.FieldError{
				{Field: "limit", Message: "must be an integer between 1 and " + strconv.Itoa(maxHistoryLimit)},
			})
			return
		}
		limit = n
	}

	summaries, err := h.service.History(r.Context(), limit)
	if err != nil {
		writeStationsError(w, r, h.logger, err)
		return
	}

	items := make([]models.Snapshot, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, toSnapshotModel(s))
	}

	response.JSON(w, r, http.StatusOK, models.SnapshotList{
		Items: items,
		Meta:  models.ListMeta{Limit: limit, Count: len(items)},
	})
}

// GetSnapshot handles GET /api/snapshots/{snapshotId} - one stored snapshot
// with its features.
func (h *StationsHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), chi.URLParam(r, "snapshotId"))
	if err != nil {
		writeStationsError(w, r, h.logger, err)
		return
	}

	out := toSnapshotModel(snap.Summary())
	out.Collection = &snap.Collection
	response.JSON(w, r, http.StatusOK, out)
}

// PropertiesSchema handles GET /api/schema/station-properties.
func (h *StationsHandler) PropertiesSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=86400")
	response.JSON(w, r, http.StatusOK, geojson.PropertiesSchema())
}

func setSnapshotHeaders(w http.ResponseWriter, snap *stations.Snapshot) {
	h := w.Header()
	h.Set(middleware.SnapshotIDHeader, snap.ID)
	h.Set("Last-Modified", snap.FetchedAt.UTC().Format(http.TimeFormat))
	h.Set("Cache-Control", "public, max-age=300")
}

func parseWindow(r *http.Request) (ogimet.Window, []models.FieldError) {
	var (
		w    ogimet.Window
		errs []models.FieldError
	)

	// alias is the field name used by the classic /generate form.
	parse := func(field, alias string) time.Time {
		v := strings.TrimSpace(r.FormValue(field))
		if v == "" {
			v = strings.TrimSpace(r.FormValue(alias))
		}
		if v == "" {
			errs = append(errs, models.FieldError{Field: field, Message: "required"})
			return time.Time{}
		}
		t, err := time.ParseInLocation(RangeTimeLayout, v, time.UTC)
		if err != nil {
			errs = append(errs, models.FieldError{Field: field, Message: "expected " + RangeTimeLayout})
			return time.Time{}
		}
		return t
	}

	w.Start = parse("start", "start_time")
	w.End = parse("end", "end_time")
	return w, errs
}
