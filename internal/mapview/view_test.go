package mapview_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synopmap/synopmap/internal/geojson"
	"github.com/synopmap/synopmap/internal/mapview"
)

func staticLoader(fc geojson.FeatureCollection) mapview.Loader {
	return mapview.LoaderFunc(func(context.Context) (geojson.FeatureCollection, error) {
		return fc, nil
	})
}

func mountAndWait(t *testing.T, v *mapview.View) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, v.Mount(ctx))
	require.NoError(t, v.Wait(ctx))
}

func TestView_DelhiExample(t *testing.T) {
	exp := mapview.NewRecordingExporter()
	v := mapview.New(mapview.DefaultConfig(), staticLoader(collection(delhi())), exp, zerolog.Nop())
	mountAndWait(t, v)

	scene := v.Render()
	require.Len(t, scene.Overlay, 1)
	assert.Contains(t, string(scene.Overlay[0].Popup), "Delhi (VIDP)")

	require.NoError(t, v.OpenPopup("VIDP"))
	assert.Equal(t, "VIDP", v.Render().OpenPopup)
	require.NoError(t, v.ClickDownload(context.Background(), "VIDP"))

	data, ok := exp.File("station_VIDP.json")
	require.True(t, ok)

	got, err := geojson.UnmarshalFeature(data)
	require.NoError(t, err)
	assert.Equal(t, delhi().Properties, got.Properties)

	want, err := geojson.MarshalPretty(delhi())
	require.NoError(t, err)
	assert.Equal(t, string(want), string(data))
}

func TestView_BaseMapBeforeData(t *testing.T) {
	release := make(chan struct{})
	loader := mapview.LoaderFunc(func(ctx context.Context) (geojson.FeatureCollection, error) {
		<-release
		return collection(delhi()), nil
	})

	cfg := mapview.DefaultConfig()
	v := mapview.New(cfg, loader, mapview.NewRecordingExporter(), zerolog.Nop())
	require.NoError(t, v.Mount(context.Background()))

	scene := v.Render()
	assert.Equal(t, cfg.Center, scene.Viewport.Center)
	assert.Equal(t, cfg.Zoom, scene.Viewport.Zoom)
	assert.Equal(t, cfg.Tiles, scene.Tiles)
	assert.True(t, scene.BulkExport)
	assert.Nil(t, scene.Overlay)

	close(release)
	require.NoError(t, v.Wait(context.Background()))
	assert.Len(t, v.Render().Overlay, 1)
}

func TestView_FetchFailureLeavesBaseMap(t *testing.T) {
	loader := mapview.LoaderFunc(func(context.Context) (geojson.FeatureCollection, error) {
		return geojson.FeatureCollection{}, errors.New("connection refused")
	})
	exp := mapview.NewRecordingExporter()
	v := mapview.New(mapview.DefaultConfig(), loader, exp, zerolog.Nop())
	mountAndWait(t, v)

	scene := v.Render()
	assert.Nil(t, scene.Overlay)
	assert.Equal(t, mapview.DefaultCenter, scene.Viewport.Center)

	_, loaded := v.Collection()
	assert.False(t, loaded)

	v.ClickMap(mapview.LatLng{Lat: 10, Lng: 10})
	assert.Equal(t, mapview.LatLng{Lat: 10, Lng: 10}, v.Viewport().Center)
}

func TestView_FetchesOnce(t *testing.T) {
	calls := 0
	loader := mapview.LoaderFunc(func(context.Context) (geojson.FeatureCollection, error) {
		calls++
		return collection(delhi()), nil
	})
	v := mapview.New(mapview.DefaultConfig(), loader, mapview.NewRecordingExporter(), zerolog.Nop())
	mountAndWait(t, v)

	v.Render()
	_ = v.OpenPopup("VIDP")
	_, _ = v.ExportAll(context.Background())
	v.Render()

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, v.Mount(context.Background()), mapview.ErrAlreadyMounted)
}

func TestView_ExportAllWithoutData(t *testing.T) {
	exp := mapview.NewRecordingExporter()
	loader := mapview.LoaderFunc(func(context.Context) (geojson.FeatureCollection, error) {
		return geojson.FeatureCollection{}, errors.New("boom")
	})
	v := mapview.New(mapview.DefaultConfig(), loader, exp, zerolog.Nop())

	exported, err := v.ExportAll(context.Background())
	require.NoError(t, err)
	assert.False(t, exported)

	mountAndWait(t, v)

	exported, err = v.ExportAll(context.Background())
	require.NoError(t, err)
	assert.False(t, exported)
	assert.Zero(t, exp.Count())
}

func TestView_ExportAll(t *testing.T) {
	fc := collection(delhi(), unnamed())
	exp := mapview.NewRecordingExporter()
	v := mapview.New(mapview.DefaultConfig(), staticLoader(fc), exp, zerolog.Nop())
	mountAndWait(t, v)

	exported, err := v.ExportAll(context.Background())
	require.NoError(t, err)
	assert.True(t, exported)

	data, ok := exp.File("weather_stations.json")
	require.True(t, ok)

	want, err := geojson.Marshal(fc)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(data))
	assert.Contains(t, string(data), "\n  \"features\": [", "pretty printed with two spaces")
}

func TestView_DownloadDoesNotMoveMap(t *testing.T) {
	exp := mapview.NewRecordingExporter()
	v := mapview.New(mapview.DefaultConfig(), staticLoader(collection(delhi())), exp, zerolog.Nop())
	mountAndWait(t, v)

	v.ClickMap(mapview.LatLng{Lat: 12.5, Lng: 80})
	before := v.Viewport()

	require.NoError(t, v.OpenPopup("VIDP"))
	require.NoError(t, v.ClickDownload(context.Background(), "VIDP"))
	require.NoError(t, v.ClickDownload(context.Background(), "VIDP"))

	assert.Equal(t, before, v.Viewport())
	assert.Equal(t, "VIDP", v.Render().OpenPopup, "popup stays open")
	assert.Equal(t, 2, exp.Count())
}

func TestView_DownloadControlBoundOnOpen(t *testing.T) {
	exp := mapview.NewRecordingExporter()
	fc := collection(delhi(), unnamed())
	v := mapview.New(mapview.DefaultConfig(), staticLoader(fc), exp, zerolog.Nop())
	mountAndWait(t, v)

	assert.ErrorIs(t, v.ClickDownload(context.Background(), "VIDP"), mapview.ErrControlNotBound)

	assert.ErrorIs(t, v.OpenPopup("43003"), mapview.ErrUnknownStation)
	assert.ErrorIs(t, v.OpenPopup("XXXX"), mapview.ErrUnknownStation)

	require.NoError(t, v.OpenPopup("VIDP"))
	v.ClosePopup()
	assert.ErrorIs(t, v.ClickDownload(context.Background(), "VIDP"), mapview.ErrControlNotBound)

	require.NoError(t, v.OpenPopup("VIDP"))
	v.ClickMap(mapview.LatLng{Lat: 1, Lng: 1})
	assert.ErrorIs(t, v.ClickDownload(context.Background(), "VIDP"), mapview.ErrControlNotBound)

	assert.Zero(t, exp.Count())
}

func TestView_ExportError(t *testing.T) {
	failing := mapview.ExporterFunc(func(context.Context, string, []byte) error {
		return errors.New("disk full")
	})
	v := mapview.New(mapview.DefaultConfig(), staticLoader(collection(delhi())), failing, zerolog.Nop())
	mountAndWait(t, v)

	require.NoError(t, v.OpenPopup("VIDP"))
	assert.Error(t, v.ClickDownload(context.Background(), "VIDP"))

	exported, err := v.ExportAll(context.Background())
	assert.True(t, exported)
	assert.Error(t, err)
}

func TestView_ExportEach(t *testing.T) {
	other := delhi()
	other.Properties.StationID = "VABB"
	other.Properties.Name = "Mumbai"

	exp := mapview.NewRecordingExporter()
	v := mapview.New(mapview.DefaultConfig(), staticLoader(collection(delhi(), unnamed(), other)), exp, zerolog.Nop())
	mountAndWait(t, v)

	n, err := v.ExportEach(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"station_VABB.json", "station_VIDP.json"}, exp.Filenames())
}

func TestView_UnmountDiscardsLateResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	loader := mapview.LoaderFunc(func(ctx context.Context) (geojson.FeatureCollection, error) {
		close(started)
		<-release
		return collection(delhi()), nil
	})

	v := mapview.New(mapview.DefaultConfig(), loader, mapview.NewRecordingExporter(), zerolog.Nop())
	require.NoError(t, v.Mount(context.Background()))
	<-started

	v.Unmount()
	close(release)
	require.NoError(t, v.Wait(context.Background()))

	assert.Nil(t, v.Render().Overlay)
	_, loaded := v.Collection()
	assert.False(t, loaded)
}

func TestView_UnmountCancelsFetch(t *testing.T) {
	cancelled := make(chan struct{})
	loader := mapview.LoaderFunc(func(ctx context.Context) (geojson.FeatureCollection, error) {
		<-ctx.Done()
		close(cancelled)
		return geojson.FeatureCollection{}, ctx.Err()
	})

	v := mapview.New(mapview.DefaultConfig(), loader, mapview.NewRecordingExporter(), zerolog.Nop())
	require.NoError(t, v.Mount(context.Background()))
	v.Unmount()

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch was not cancelled")
	}
}

func TestView_RemountFetchesAgain(t *testing.T) {
	calls := 0
	loader := mapview.LoaderFunc(func(context.Context) (geojson.FeatureCollection, error) {
		calls++
		return collection(delhi()), nil
	})

	v := mapview.New(mapview.DefaultConfig(), loader, mapview.NewRecordingExporter(), zerolog.Nop())
	mountAndWait(t, v)
	v.Unmount()
	assert.Nil(t, v.Render().Overlay)

	mountAndWait(t, v)
	assert.Len(t, v.Render().Overlay, 1)
	assert.Equal(t, 2, calls)
}

func TestView_WaitBeforeMount(t *testing.T) {
	v := mapview.New(mapview.DefaultConfig(), staticLoader(collection()), mapview.NewRecordingExporter(), zerolog.Nop())
	assert.ErrorIs(t, v.Wait(context.Background()), mapview.ErrNotMounted)
}

const stationsPayload = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [77.2, 28.583333]},
      "properties": {
        "station_id": "42182",
        "name": "New Delhi / Safdarjung",
        "country": "India",
        "elevation_m": 216.5,
        "raw_synop": "AAXX 15121 42182 32965 00000 10215=\nAAXX 15091 42182 32965 00000 10180=",
        "present_weather_code": "",
        "cloud_cover_octas": null,
        "cloud_base_height_code": null,
        "source": "ogimet"
      }
    },
    {
      "type": "Feature",
      "geometry": null,
      "properties": {"station_id": "42071", "name": "Amritsar", "elevation_m": 234}
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [72.8, 18.9]},
      "properties": {"station_id": "43003"}
    }
  ]
}`

// servePayload mounts a view against an HTTP server returning body.
func servePayload(t *testing.T, body string) (*mapview.View, *mapview.RecordingExporter) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	exp := mapview.NewRecordingExporter()
	v := mapview.New(mapview.DefaultConfig(), mapview.NewHTTPLoader(server.URL), exp, zerolog.Nop())
	mountAndWait(t, v)
	return v, exp
}

func TestView_ExportsMatchFetchedPayload(t *testing.T) {
	v, exp := servePayload(t, stationsPayload)

	exported, err := v.ExportAll(context.Background())
	require.NoError(t, err)
	require.True(t, exported)

	data, ok := exp.File("weather_stations.json")
	require.True(t, ok)
	assert.JSONEq(t, stationsPayload, string(data))

	var payload struct {
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal([]byte(stationsPayload), &payload))

	require.NoError(t, v.OpenPopup("42182"))
	require.NoError(t, v.ClickDownload(context.Background(), "42182"))

	data, ok = exp.File("station_42182.json")
	require.True(t, ok)
	assert.JSONEq(t, string(payload.Features[0]), string(data))
	assert.Contains(t, string(data), "\n  \"properties\": {")
	assert.Contains(t, string(data), `"cloud_cover_octas": null`)
}

func TestView_OverlaySurvivesUntypedFields(t *testing.T) {
	v, _ := servePayload(t, stationsPayload)

	scene := v.Render()
	require.Len(t, scene.Overlay, 2)
	assert.Equal(t, "42182", scene.Overlay[0].StationID)
	assert.True(t, scene.Overlay[0].Placed())
	assert.Contains(t, string(scene.Overlay[0].Popup), "N/A")

	amritsar := scene.Overlay[1]
	assert.Equal(t, "42071", amritsar.StationID)
	assert.False(t, amritsar.Placed())

	require.NoError(t, v.OpenPopup("42071"))
	require.NoError(t, v.ClickDownload(context.Background(), "42071"))
}
