package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/synopmap/synopmap/internal/api/response"
	"github.com/synopmap/synopmap/internal/stations"
)

// writeStationsError maps station service errors to problem responses.
func writeStationsError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, stations.ErrStationNotFound):
		response.NotFound(w, r, "station not found in the current snapshot")
	case errors.Is(err, stations.ErrSnapshotNotFound):
		response.NotFound(w, r, "snapshot not found")
	case errors.Is(err, stations.ErrInvalidWindow):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, stations.ErrRefreshInProgress):
		response.Conflict(w, r, "a snapshot refresh is already running")
	case errors.Is(err, stations.ErrProviderUnavailable), errors.Is(err, context.DeadlineExceeded):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("station data unavailable")
		response.ServiceUnavailable(w, r, "station data is temporarily unavailable")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("station request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
