package stations_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synopmap/synopmap/internal/database"
	"github.com/synopmap/synopmap/internal/geojson"
	"github.com/synopmap/synopmap/internal/ogimet"
	"github.com/synopmap/synopmap/internal/stations"
	"github.com/synopmap/synopmap/internal/synop"
)

func parse(t *testing.T) geojson.FeatureCollection {
	t.Helper()
	fc := geojson.FromStations(synop.ParseBulletin(bulletin))
	require.Equal(t, 2, fc.Len())
	return fc
}

// exerciseRepository runs the shared Repository contract.
func exerciseRepository(t *testing.T, repo stations.Repository) {
	ctx := context.Background()

	_, err := repo.Latest(ctx)
	require.ErrorIs(t, err, stations.ErrSnapshotNotFound)

	base := time.Date(2024, 1, 15, 12, 5, 0, 0, time.UTC)
	var snaps []*stations.Snapshot
	for i := 0; i < 3; i++ {
		s := stations.NewSnapshot("ogimet", "India", synopHour(), parse(t), base.Add(time.Duration(i)*3*time.Hour))
		require.NoError(t, repo.Save(ctx, s))
		snaps = append(snaps, s)
	}

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, snaps[2].ID, latest.ID)
	assert.True(t, snaps[2].FetchedAt.Equal(latest.FetchedAt))
	assert.True(t, snaps[2].WindowStart.Equal(latest.WindowStart))
	want, err := geojson.Marshal(snaps[2].Collection)
	require.NoError(t, err)
	stored, err := geojson.Marshal(latest.Collection)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(stored))

	got, err := repo.Get(ctx, snaps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "India", got.Country)
	assert.Equal(t, "ogimet", got.Source)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, stations.ErrSnapshotNotFound)

	list, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, snaps[2].ID, list[0].ID)
	assert.Equal(t, 2, list[0].StationCount)

	removed, err := repo.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	list, err = repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, snaps[2].ID, list[0].ID)
}

func TestInMemoryRepository(t *testing.T) {
	exerciseRepository(t, stations.NewInMemoryRepository())
}

func TestSQLiteRepository(t *testing.T) {
	db, err := database.OpenSQLite(database.SQLiteConfig{Path: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.MigrateSQLite(context.Background(), db))

	exerciseRepository(t, stations.NewSQLiteRepository(db))
}

func TestPostgresRepository(t *testing.T) {
	url := os.Getenv("SYNOPMAP_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SYNOPMAP_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, database.Config{URL: url})
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, database.MigratePostgres(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE station_snapshots`)
	require.NoError(t, err)

	exerciseRepository(t, stations.NewPostgresRepository(pool))
}

func TestFileProvider(t *testing.T) {
	path := t.TempDir() + "/ogimet_data.txt"
	require.NoError(t, os.WriteFile(path, []byte(bulletin), 0o600))

	mod := time.Date(2024, 1, 15, 14, 10, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mod, mod))

	p := stations.NewFileProvider(path, "")
	assert.Equal(t, "file", p.Name())
	assert.Equal(t, "India", p.Country())

	text, w, err := p.FetchBulletin(context.Background(), synopHour())
	require.NoError(t, err)
	assert.Equal(t, bulletin, text)
	assert.Equal(t, synopHour(), w)

	// Without a window the file's modification hour is reported.
	_, w, err = p.FetchBulletin(context.Background(), ogimet.Window{})
	require.NoError(t, err)
	assert.Equal(t, 12, w.Start.Hour())
	assert.Equal(t, w.Start, w.End)

	_, _, err = stations.NewFileProvider(path+".missing", "India").FetchBulletin(context.Background(), synopHour())
	assert.Error(t, err)
}
