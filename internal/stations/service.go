package stations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/synopmap/synopmap/internal/geojson"
	"github.com/synopmap/synopmap/internal/ogimet"
	"github.com/synopmap/synopmap/internal/synop"
)

// Metric operation names.
const (
	opLatest = "latest"
	opRange  = "range"
)

// Notifier is told about every stored snapshot.
type Notifier interface {
	SnapshotCreated(ctx context.Context, s Summary) error
}

// Metrics records provider calls and cache outcomes.
type Metrics interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(string, string, time.Duration, error) {}
func (nopMetrics) RecordCacheHit(string, string)                      {}
func (nopMetrics) RecordCacheMiss(string, string)                     {}

// ServiceConfig holds configuration for the station service.
type ServiceConfig struct {
	// Provider supplies bulletins (required).
	Provider Provider

	// Repository persists snapshots (optional). It also serves as the
	// fallback when the provider fails and nothing is cached.
	Repository Repository

	// Notifier announces new snapshots (optional).
	Notifier Notifier

	// Metrics records provider latency and cache hits (optional).
	Metrics Metrics

	Logger zerolog.Logger

	// CacheTTL is how long the latest snapshot is served without refetching
	// (default: 30 minutes). Bulletins update every three hours.
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving an expired snapshot on provider errors
	// (default: 6 hours).
	StaleIfErrorTTL time.Duration

	// StaleRetryInterval is how long a stale snapshot is served before the
	// provider is tried again (default: 1 minute).
	StaleRetryInterval time.Duration

	// Retain is the number of snapshots kept in the repository (default: 56,
	// one week of synoptic hours).
	Retain int

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service serves the current station snapshot with caching.
type Service struct {
	provider        Provider
	repository      Repository
	notifier        Notifier
	metrics         Metrics
	logger          zerolog.Logger
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration
	staleRetry      time.Duration
	retain          int
	now             func() time.Time

	// mu guards cached only; it is never held across provider or
	// repository calls.
	mu     sync.RWMutex
	cached *cachedSnapshot

	// loading serialises cache refills from Latest.
	loading    sync.Mutex
	refreshing sync.Mutex
}

type cachedSnapshot struct {
	snapshot  *Snapshot
	fetchedAt time.Time
	expiresAt time.Time
	stale     bool
}

// NewService creates a station service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Minute
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 6 * time.Hour
	}

	staleRetry := cfg.StaleRetryInterval
	if staleRetry == 0 {
		staleRetry = time.Minute
	}

	retain := cfg.Retain
	if retain == 0 {
		retain = 56
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	var metrics Metrics = nopMetrics{}
	if cfg.Metrics != nil {
		metrics = cfg.Metrics
	}

	return &Service{
		provider:        cfg.Provider,
		repository:      cfg.Repository,
		notifier:        cfg.Notifier,
		metrics:         metrics,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
		staleRetry:      staleRetry,
		retain:          retain,
		now:             now,
	}
}

// Latest returns the current snapshot, fetching the latest synoptic hour when
// the cache has expired.
func (s *Service) Latest(ctx context.Context) (*Snapshot, error) {
	if c := s.fresh(); c != nil {
		s.metrics.RecordCacheHit(s.provider.Name(), opLatest)
		return c.snapshot, nil
	}

	s.metrics.RecordCacheMiss(s.provider.Name(), opLatest)
	return s.refreshLatest(ctx)
}

// fresh returns the cache entry if it has not expired.
func (s *Service) fresh() *cachedSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c := s.cached; c != nil && s.now().Before(c.expiresAt) {
		return c
	}
	return nil
}

func (s *Service) refreshLatest(ctx context.Context) (*Snapshot, error) {
	s.loading.Lock()
	defer s.loading.Unlock()

	// Another caller may have refilled the cache while we waited.
	if c := s.fresh(); c != nil {
		return c.snapshot, nil
	}

	snap, err := s.fetch(ctx, ogimet.Window{})
	if err == nil {
		s.store(ctx, snap)
		return snap, nil
	}

	s.logger.Error().Err(err).Str("provider", s.provider.Name()).Msg("failed to fetch bulletin")

	if stale := s.retryStaleLater(); stale != nil {
		s.logger.Warn().
			Time("fetched_at", stale.fetchedAt).
			Time("retry_at", stale.expiresAt).
			Msg("serving stale snapshot due to provider error")
		return stale.snapshot, nil
	}

	if s.repository != nil {
		stored, repoErr := s.repository.Latest(ctx)
		if repoErr == nil {
			s.logger.Warn().
				Str("snapshot_id", stored.ID).
				Time("fetched_at", stored.FetchedAt).
				Msg("serving stored snapshot due to provider error")
			s.mu.Lock()
			s.cached = &cachedSnapshot{snapshot: stored, fetchedAt: stored.FetchedAt, expiresAt: s.now().Add(s.cacheTTL), stale: true}
			s.mu.Unlock()
			return stored, nil
		}
		if !errors.Is(repoErr, ErrSnapshotNotFound) {
			s.logger.Error().Err(repoErr).Msg("failed to load stored snapshot")
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
}

// retryStaleLater keeps serving the cached snapshot for one retry interval
// when it is still within the stale-if-error window. It returns nil when
// there is nothing usable.
func (s *Service) retryStaleLater() *cachedSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cached
	now := s.now()
	if c == nil || !now.Before(c.fetchedAt.Add(s.staleIfErrorTTL)) {
		return nil
	}
	if now.Before(c.expiresAt) {
		// Refilled by a concurrent Refresh.
		return c
	}

	retryAt := now.Add(s.staleRetry)
	if limit := c.fetchedAt.Add(s.staleIfErrorTTL); retryAt.After(limit) {
		retryAt = limit
	}
	s.cached = &cachedSnapshot{snapshot: c.snapshot, fetchedAt: c.fetchedAt, expiresAt: retryAt, stale: true}
	return s.cached
}

// Refresh fetches the latest synoptic hour regardless of the cache, then
// stores and announces the result. Concurrent calls fail with
// ErrRefreshInProgress.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	if !s.refreshing.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer s.refreshing.Unlock()

	snap, err := s.fetch(ctx, ogimet.Window{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	s.store(ctx, snap)
	return snap, nil
}

// FetchRange fetches and decodes an explicit window. The result is neither
// cached nor stored.
func (s *Service) FetchRange(ctx context.Context, w ogimet.Window) (geojson.FeatureCollection, error) {
	if err := ValidateWindow(w); err != nil {
		return geojson.FeatureCollection{}, err
	}

	start := time.Now()
	text, _, err := s.provider.FetchBulletin(ctx, w)
	s.metrics.RecordRequest(s.provider.Name(), opRange, time.Since(start), err)
	if err != nil {
		return geojson.FeatureCollection{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	fc := geojson.FromStations(synop.ParseBulletin(text))

	s.logger.Info().
		Time("start", w.Start).
		Time("end", w.End).
		Int("stations", fc.Len()).
		Msg("fetched range bulletin")

	return fc, nil
}

// Station returns one feature of the current snapshot.
func (s *Service) Station(ctx context.Context, id string) (geojson.Feature, error) {
	snap, err := s.Latest(ctx)
	if err != nil {
		return geojson.Feature{}, err
	}

	f, err := snap.Collection.Find(id)
	if err != nil {
		return geojson.Feature{}, ErrStationNotFound
	}
	return f, nil
}

// Snapshot returns a stored snapshot by ID.
func (s *Service) Snapshot(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	if c := s.cached; c != nil && c.snapshot.ID == id {
		s.mu.RUnlock()
		return c.snapshot, nil
	}
	s.mu.RUnlock()

	if s.repository == nil {
		return nil, ErrSnapshotNotFound
	}
	return s.repository.Get(ctx, id)
}

// History lists stored snapshots, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]Summary, error) {
	if s.repository == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.cached == nil {
			return []Summary{}, nil
		}
		return []Summary{s.cached.snapshot.Summary()}, nil
	}
	return s.repository.List(ctx, limit)
}

// fetch downloads and decodes a bulletin. A bulletin without station headers
// is an error so that an upstream hiccup never replaces good data.
func (s *Service) fetch(ctx context.Context, w ogimet.Window) (*Snapshot, error) {
	s.logger.Debug().Str("provider", s.provider.Name()).Msg("fetching bulletin from provider")

	start := time.Now()
	text, resolved, err := s.provider.FetchBulletin(ctx, w)
	s.metrics.RecordRequest(s.provider.Name(), opLatest, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	parsed := synop.ParseBulletin(text)
	if len(parsed) == 0 {
		return nil, synop.ErrNoStations
	}

	return NewSnapshot(s.provider.Name(), s.provider.Country(), resolved, geojson.FromStations(parsed), s.now()), nil
}

// store caches, persists and announces snap.
func (s *Service) store(ctx context.Context, snap *Snapshot) {
	now := s.now()
	s.mu.Lock()
	s.cached = &cachedSnapshot{snapshot: snap, fetchedAt: now, expiresAt: now.Add(s.cacheTTL)}
	s.mu.Unlock()

	log := s.logger.With().Str("snapshot_id", snap.ID).Int("stations", snap.Collection.Len()).Logger()
	log.Info().Time("window_start", snap.WindowStart).Msg("snapshot refreshed")

	if s.repository != nil {
		if err := s.repository.Save(ctx, snap); err != nil {
			log.Error().Err(err).Msg("failed to persist snapshot")
		} else if removed, err := s.repository.Prune(ctx, s.retain); err != nil {
			log.Error().Err(err).Msg("failed to prune snapshots")
		} else if removed > 0 {
			log.Debug().Int("removed", removed).Msg("pruned old snapshots")
		}
	}

	if s.notifier != nil {
		if err := s.notifier.SnapshotCreated(ctx, snap.Summary()); err != nil {
			log.Warn().Err(err).Msg("failed to announce snapshot")
		}
	}
}

// InvalidateCache drops the cached snapshot.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}

// CacheStats describes the cache state.
type CacheStats struct {
	HasSnapshot bool
	SnapshotID  string
	FetchedAt   time.Time
	Fresh       bool
	Stations    int
	Provider    string
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := CacheStats{Provider: s.provider.Name()}
	if c := s.cached; c != nil {
		stats.HasSnapshot = true
		stats.SnapshotID = c.snapshot.ID
		stats.FetchedAt = c.fetchedAt
		stats.Fresh = !c.stale && s.now().Before(c.expiresAt)
		stats.Stations = c.snapshot.Collection.Len()
	}
	return stats
}
