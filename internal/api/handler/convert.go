package handler

import (
	"github.com/synopmap/synopmap/internal/api/models"
	"github.com/synopmap/synopmap/internal/stations"
)

func toSnapshotModel(s stations.Summary) models.Snapshot {
	return models.Snapshot{
		ID:           s.ID,
		Country:      s.Country,
		WindowStart:  models.Timestamp(s.WindowStart),
		WindowEnd:    models.Timestamp(s.WindowEnd),
		FetchedAt:    models.Timestamp(s.FetchedAt),
		Source:       s.Source,
		StationCount: s.StationCount,
	}
}
