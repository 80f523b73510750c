package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/synopmap/synopmap/internal/stations"
)

// SnapshotService is the part of stations.Service the worker drives.
type SnapshotService interface {
	Refresh(ctx context.Context) (*stations.Snapshot, error)
	Latest(ctx context.Context) (*stations.Snapshot, error)
}

var _ SnapshotService = (*stations.Service)(nil)

// ErrEmptySnapshot is returned by Check when the current snapshot has no
// stations.
var ErrEmptySnapshot = errors.New("current snapshot has no stations")

// RefreshJob refreshes the station snapshot.
type RefreshJob struct {
	config  RefreshConfig
	service SnapshotService
	logger  zerolog.Logger
	now     func() time.Time

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRefreshes      int64
	SuccessfulRefreshes int64
	FailedRefreshes     int64
	SkippedRefreshes    int64

	// Last outcome
	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	LastSnapshotID      string
	LastStations        int
	LastError           string

	TotalDuration time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config  RefreshConfig
	Service SnapshotService
	Logger  zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &RefreshJob{
		config:  cfg.Config.withDefaults(),
		service: cfg.Service,
		logger:  cfg.Logger.With().Str("component", "refresh").Logger(),
		now:     now,
		metrics: &RefreshMetrics{},
	}
}

// RefreshResult contains the result of one refresh.
type RefreshResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	SnapshotID string
	Stations   int

	// Skipped is set when another refresh was already running.
	Skipped bool
	Err     error
}

// Run refreshes the snapshot once, bounded by the configured timeout. A
// refresh already in progress elsewhere is reported as skipped, not failed.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	result := &RefreshResult{StartTime: j.now()}

	runCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	j.logger.Debug().Dur("timeout", j.config.Timeout).Msg("starting snapshot refresh")

	snap, err := j.service.Refresh(runCtx)
	switch {
	case errors.Is(err, stations.ErrRefreshInProgress):
		result.Skipped = true
	case err != nil:
		result.Err = err
	default:
		result.SnapshotID = snap.ID
		result.Stations = snap.Collection.Len()
	}

	result.EndTime = j.now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	j.updateMetrics(result)

	switch {
	case result.Skipped:
		j.logger.Info().Msg("snapshot refresh skipped, another refresh is running")
	case result.Err != nil:
		j.logger.Error().Err(result.Err).Dur("duration", result.Duration).Msg("snapshot refresh failed")
	default:
		j.logger.Info().
			Str("snapshot_id", result.SnapshotID).
			Int("stations", result.Stations).
			Dur("duration", result.Duration).
			Msg("snapshot refresh completed")
	}

	return result
}

// Check verifies that a non-empty snapshot can be served, fetching one if
// nothing is cached.
func (j *RefreshJob) Check(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	snap, err := j.service.Latest(checkCtx)
	if err != nil {
		return fmt.Errorf("loading latest snapshot: %w", err)
	}
	if snap.Collection.Len() == 0 {
		return ErrEmptySnapshot
	}
	return nil
}

// Start runs the refresh on schedule until ctx is cancelled. Unless
// SkipInitial is set the first refresh runs immediately.
func (j *RefreshJob) Start(ctx context.Context) {
	if !j.config.SkipInitial {
		j.Run(ctx)
	}

	delay := j.config.FirstDelay(j.now())
	j.logger.Info().
		Dur("first_in", delay).
		Dur("interval", j.config.Interval).
		Msg("refresh schedule started")

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		j.Run(ctx)
	}

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("refresh schedule stopped")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRefreshes++
	switch {
	case result.Skipped:
		j.metrics.SkippedRefreshes++
		return
	case result.Err != nil:
		j.metrics.FailedRefreshes++
		j.metrics.LastError = result.Err.Error()
	default:
		j.metrics.SuccessfulRefreshes++
		j.metrics.LastSnapshotID = result.SnapshotID
		j.metrics.LastStations = result.Stations
		j.metrics.LastError = ""
	}
	j.metrics.LastRefreshAt = result.EndTime
	j.metrics.LastRefreshDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRefreshes:      j.metrics.TotalRefreshes,
		SuccessfulRefreshes: j.metrics.SuccessfulRefreshes,
		FailedRefreshes:     j.metrics.FailedRefreshes,
		SkippedRefreshes:    j.metrics.SkippedRefreshes,
		LastRefreshAt:       j.metrics.LastRefreshAt,
		LastRefreshDuration: j.metrics.LastRefreshDuration,
		LastSnapshotID:      j.metrics.LastSnapshotID,
		LastStations:        j.metrics.LastStations,
		LastError:           j.metrics.LastError,
		TotalDuration:       j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns the current metrics as a map, for the health
// endpoint.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_refreshes":       m.TotalRefreshes,
		"successful_refreshes":  m.SuccessfulRefreshes,
		"failed_refreshes":      m.FailedRefreshes,
		"skipped_refreshes":     m.SkippedRefreshes,
		"last_refresh_at":       m.LastRefreshAt,
		"last_refresh_duration": m.LastRefreshDuration.String(),
		"last_snapshot_id":      m.LastSnapshotID,
		"last_stations":         m.LastStations,
		"last_error":            m.LastError,
		"total_duration":        m.TotalDuration.String(),
	}
}
