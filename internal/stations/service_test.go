package stations_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synopmap/synopmap/internal/ogimet"
	"github.com/synopmap/synopmap/internal/stations"
	"github.com/synopmap/synopmap/internal/synop"
)

const bulletin = `##########################################################
# SYNOPS from 42182, New Delhi / Safdarjung (India) | 28-35-00N | 077-12-00E | 216 m
##########################################################
42182,2024,01,15,12,00,AAXX 15121 42182 32965 00000 10215 20076 30027 40149 52012=

##########################################################
# SYNOPS from 43003, Mumbai / Colaba (India) | 18-54-00N | 072-49-00E | 11 m
##########################################################
43003,2024,01,15,12,00,AAXX 15121 43003 11458 72315 10250 21180=
`

// mockProvider is a test double for stations.Provider.
type mockProvider struct {
	mu        sync.Mutex
	text      string
	err       error
	calls     int
	lastWin   ogimet.Window
	returnWin ogimet.Window
}

func (m *mockProvider) FetchBulletin(_ context.Context, w ogimet.Window) (string, ogimet.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastWin = w
	if m.err != nil {
		return "", w, m.err
	}
	if w.IsZero() {
		w = m.returnWin
	}
	return m.text, w, nil
}

func (m *mockProvider) Name() string    { return "mock" }
func (m *mockProvider) Country() string { return "India" }

func (m *mockProvider) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []stations.Summary
	err    error
}

func (n *recordingNotifier) SnapshotCreated(_ context.Context, s stations.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, s)
	return n.err
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 1, 15, 13, 0, 0, 0, time.UTC)}
}

func synopHour() ogimet.Window {
	t := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	return ogimet.Window{Start: t, End: t}
}

func TestService_LatestCachesSnapshot(t *testing.T) {
	provider := &mockProvider{text: bulletin, returnWin: synopHour()}
	clk := newClock()
	svc := stations.NewService(stations.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
		CacheTTL: 10 * time.Minute,
		Now:      clk.Now,
	})

	first, err := svc.Latest(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, first.Collection.Len())
	assert.Equal(t, "42182", first.Collection.Features[0].Properties.StationID)
	assert.Equal(t, "mock", first.Source)
	assert.Equal(t, "India", first.Country)
	assert.Equal(t, synopHour().Start, first.WindowStart)
	assert.Len(t, first.ID, 26)
	assert.True(t, provider.lastWin.IsZero())

	second, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, provider.callCount())

	clk.Advance(11 * time.Minute)
	third, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, 2, provider.callCount())
}

func TestService_LatestServesStaleOnError(t *testing.T) {
	provider := &mockProvider{text: bulletin, returnWin: synopHour()}
	clk := newClock()
	svc := stations.NewService(stations.ServiceConfig{
		Provider:        provider,
		Logger:          zerolog.Nop(),
		CacheTTL:        10 * time.Minute,
		StaleIfErrorTTL: time.Hour,
		Now:             clk.Now,
	})

	first, err := svc.Latest(context.Background())
	require.NoError(t, err)

	provider.setErr(errors.New("upstream down"))
	clk.Advance(30 * time.Minute)

	stale, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.ID, stale.ID)

	clk.Advance(2 * time.Hour)
	_, err = svc.Latest(context.Background())
	assert.ErrorIs(t, err, stations.ErrProviderUnavailable)
}

func TestService_LatestFallsBackToRepository(t *testing.T) {
	repo := stations.NewInMemoryRepository()
	clk := newClock()

	seed := stations.NewSnapshot("mock", "India", synopHour(), parse(t), clk.Now().Add(-time.Hour))
	require.NoError(t, repo.Save(context.Background(), seed))

	provider := &mockProvider{err: errors.New("upstream down")}
	svc := stations.NewService(stations.ServiceConfig{
		Provider:   provider,
		Repository: repo,
		Logger:     zerolog.Nop(),
		Now:        clk.Now,
	})

	snap, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seed.ID, snap.ID)

	// The fallback is cached, so the provider is not hammered.
	_, err = svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, provider.callCount())
}

func TestService_LatestEmptyBulletinIsError(t *testing.T) {
	provider := &mockProvider{text: "# Query made at 01/15/2024\n", returnWin: synopHour()}
	svc := stations.NewService(stations.ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

	_, err := svc.Latest(context.Background())
	assert.ErrorIs(t, err, stations.ErrProviderUnavailable)
	assert.ErrorIs(t, err, synop.ErrNoStations)
}

func TestService_RefreshPersistsAndNotifies(t *testing.T) {
	provider := &mockProvider{text: bulletin, returnWin: synopHour()}
	repo := stations.NewInMemoryRepository()
	notifier := &recordingNotifier{err: errors.New("broker offline")}
	clk := newClock()

	svc := stations.NewService(stations.ServiceConfig{
		Provider:   provider,
		Repository: repo,
		Notifier:   notifier,
		Logger:     zerolog.Nop(),
		Retain:     2,
		Now:        clk.Now,
	})

	var ids []string
	for i := 0; i < 3; i++ {
		snap, err := svc.Refresh(context.Background())
		require.NoError(t, err)
		ids = append(ids, snap.ID)
		clk.Advance(time.Minute)
	}

	assert.Equal(t, 3, provider.callCount())
	require.Len(t, notifier.events, 3)
	assert.Equal(t, 2, notifier.events[0].StationCount)

	history, err := svc.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ids[2], history[0].ID)
	assert.Equal(t, ids[1], history[1].ID)

	// Refresh updates the cache used by Latest.
	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.ID)
	assert.Equal(t, 3, provider.callCount())

	stored, err := svc.Snapshot(context.Background(), ids[1])
	require.NoError(t, err)
	assert.Equal(t, ids[1], stored.ID)

	_, err = svc.Snapshot(context.Background(), ids[0])
	assert.ErrorIs(t, err, stations.ErrSnapshotNotFound)
}

func TestService_RefreshError(t *testing.T) {
	provider := &mockProvider{err: errors.New("timeout")}
	svc := stations.NewService(stations.ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

	_, err := svc.Refresh(context.Background())
	assert.ErrorIs(t, err, stations.ErrProviderUnavailable)
	assert.False(t, svc.CacheStats().HasSnapshot)
}

func TestService_FetchRange(t *testing.T) {
	provider := &mockProvider{text: bulletin}
	svc := stations.NewService(stations.ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

	w := ogimet.Window{
		Start: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}

	fc, err := svc.FetchRange(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 2, fc.Len())
	assert.Equal(t, w, provider.lastWin)

	// Range fetches leave the cache alone.
	assert.False(t, svc.CacheStats().HasSnapshot)
}

func TestService_FetchRangeValidation(t *testing.T) {
	svc := stations.NewService(stations.ServiceConfig{Provider: &mockProvider{}, Logger: zerolog.Nop()})
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		w    ogimet.Window
	}{
		{"missing end", ogimet.Window{Start: start}},
		{"reversed", ogimet.Window{Start: start, End: start.Add(-time.Hour)}},
		{"too long", ogimet.Window{Start: start, End: start.Add(8 * 24 * time.Hour)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.FetchRange(context.Background(), tt.w)
			assert.ErrorIs(t, err, stations.ErrInvalidWindow)
		})
	}
}

func TestService_Station(t *testing.T) {
	provider := &mockProvider{text: bulletin, returnWin: synopHour()}
	svc := stations.NewService(stations.ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

	f, err := svc.Station(context.Background(), "43003")
	require.NoError(t, err)
	assert.Equal(t, "Mumbai / Colaba", f.Properties.Name)

	_, err = svc.Station(context.Background(), "99999")
	assert.ErrorIs(t, err, stations.ErrStationNotFound)
}

func TestService_CacheStatsAndInvalidate(t *testing.T) {
	provider := &mockProvider{text: bulletin, returnWin: synopHour()}
	svc := stations.NewService(stations.ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

	assert.Equal(t, "mock", svc.CacheStats().Provider)

	snap, err := svc.Latest(context.Background())
	require.NoError(t, err)

	stats := svc.CacheStats()
	assert.True(t, stats.HasSnapshot)
	assert.True(t, stats.Fresh)
	assert.Equal(t, snap.ID, stats.SnapshotID)
	assert.Equal(t, 2, stats.Stations)

	svc.InvalidateCache()
	assert.False(t, svc.CacheStats().HasSnapshot)

	history, err := svc.History(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestValidateWindow(t *testing.T) {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, stations.ValidateWindow(ogimet.Window{Start: start, End: start}))
	assert.NoError(t, stations.ValidateWindow(ogimet.Window{Start: start, End: start.Add(stations.MaxWindow)}))
	assert.ErrorIs(t, stations.ValidateWindow(ogimet.Window{}), stations.ErrInvalidWindow)
}

type recordingMetrics struct {
	mu       sync.Mutex
	requests []string
	hits     int
	misses   int
}

func (m *recordingMetrics) RecordRequest(provider, operation string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests = append(m.requests, provider+"/"+operation+"/"+outcome)
}

func (m *recordingMetrics) RecordCacheHit(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *recordingMetrics) RecordCacheMiss(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func TestService_RecordsMetrics(t *testing.T) {
	provider := &mockProvider{text: bulletin, returnWin: synopHour()}
	metrics := &recordingMetrics{}
	svc := stations.NewService(stations.ServiceConfig{
		Provider: provider,
		Metrics:  metrics,
		Logger:   zerolog.Nop(),
	})
	ctx := context.Background()

	_, err := svc.Latest(ctx)
	require.NoError(t, err)
	_, err = svc.Latest(ctx)
	require.NoError(t, err)

	provider.setErr(errors.New("timeout"))
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	_, err = svc.FetchRange(ctx, ogimet.Window{Start: start, End: start.Add(time.Hour)})
	require.Error(t, err)

	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, []string{"mock/latest/ok", "mock/range/error"}, metrics.requests)
}

// blockingProvider holds FetchBulletin until release is closed.
type blockingProvider struct {
	mockProvider
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingProvider) FetchBulletin(ctx context.Context, w ogimet.Window) (string, ogimet.Window, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.mockProvider.FetchBulletin(ctx, w)
}

func TestService_RefreshInProgress(t *testing.T) {
	provider := &blockingProvider{
		mockProvider: mockProvider{text: bulletin, returnWin: synopHour()},
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	svc := stations.NewService(stations.ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Refresh(context.Background())
		done <- err
	}()
	<-provider.started

	_, err := svc.Refresh(context.Background())
	assert.ErrorIs(t, err, stations.ErrRefreshInProgress)

	close(provider.release)
	require.NoError(t, <-done)

	_, err = svc.Refresh(context.Background())
	assert.NoError(t, err)
}

func TestService_LatestBacksOffWhileStale(t *testing.T) {
	provider := &mockProvider{text: bulletin, returnWin: synopHour()}
	clk := newClock()
	svc := stations.NewService(stations.ServiceConfig{
		Provider:           provider,
		Logger:             zerolog.Nop(),
		CacheTTL:           10 * time.Minute,
		StaleIfErrorTTL:    time.Hour,
		StaleRetryInterval: 2 * time.Minute,
		Now:                clk.Now,
	})
	ctx := context.Background()

	first, err := svc.Latest(ctx)
	require.NoError(t, err)

	provider.setErr(errors.New("upstream down"))
	clk.Advance(15 * time.Minute)

	stale, err := svc.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stale.ID)
	assert.Equal(t, 2, provider.callCount())
	assert.False(t, svc.CacheStats().Fresh)

	// Within the retry interval the provider is left alone.
	clk.Advance(time.Minute)
	for range 5 {
		_, err = svc.Latest(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, provider.callCount())

	clk.Advance(2 * time.Minute)
	_, err = svc.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, provider.callCount())

	provider.setErr(nil)
	clk.Advance(2 * time.Minute)
	recovered, err := svc.Latest(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, recovered.ID)
	assert.True(t, svc.CacheStats().Fresh)
}

func TestService_ReadsNotBlockedByFetch(t *testing.T) {
	provider := &blockingProvider{
		mockProvider: mockProvider{text: bulletin, returnWin: synopHour()},
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	svc := stations.NewService(stations.ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Latest(context.Background())
		done <- err
	}()
	<-provider.started
	defer close(provider.release)

	reads := make(chan struct{})
	go func() {
		defer close(reads)
		_ = svc.CacheStats()
		_, _ = svc.History(context.Background(), 5)
		_, _ = svc.Snapshot(context.Background(), "01HUNKNOWN")
		svc.InvalidateCache()
	}()

	select {
	case <-reads:
	case <-time.After(time.Second):
		t.Fatal("cache reads blocked behind a provider fetch")
	}

	assert.False(t, svc.CacheStats().HasSnapshot)
}
