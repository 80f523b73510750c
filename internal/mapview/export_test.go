package mapview_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synopmap/synopmap/internal/geojson"
	"github.com/synopmap/synopmap/internal/mapview"
)

func TestAttachmentExporter(t *testing.T) {
	rec := httptest.NewRecorder()

	err := mapview.ExportFeature(context.Background(), mapview.NewAttachmentExporter(rec), delhi())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="station_VIDP.json"`, rec.Header().Get("Content-Disposition"))

	got, err := geojson.UnmarshalFeature(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, delhi(), got)
}

func TestAttachmentExporter_ContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	exp := mapview.NewAttachmentExporter(rec).WithContentType(geojson.ContentTypeGeoJSON)

	require.NoError(t, exp.Export(context.Background(), "range.geojson", []byte("{}")))
	assert.Equal(t, "application/geo+json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestDirExporter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	exp := mapview.DirExporter{Dir: dir}

	require.NoError(t, mapview.ExportCollection(context.Background(), exp, collection(delhi())))

	data, err := os.ReadFile(filepath.Join(dir, "weather_stations.json"))
	require.NoError(t, err)

	fc, err := geojson.UnmarshalCollection(data)
	require.NoError(t, err)
	assert.Equal(t, 1, fc.Len())
}

func TestDirExporter_RejectsPaths(t *testing.T) {
	exp := mapview.DirExporter{Dir: t.TempDir()}

	for _, name := range []string{"../escape.json", "a/b.json"} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, exp.Export(context.Background(), name, []byte("{}")))
		})
	}
}

func TestRecordingExporter(t *testing.T) {
	exp := mapview.NewRecordingExporter()
	ctx := context.Background()

	require.NoError(t, exp.Export(ctx, "b.json", []byte("1")))
	require.NoError(t, exp.Export(ctx, "a.json", []byte("2")))
	require.NoError(t, exp.Export(ctx, "b.json", []byte("3")))

	assert.Equal(t, 3, exp.Count())
	assert.Equal(t, []string{"a.json", "b.json"}, exp.Filenames())

	data, ok := exp.File("b.json")
	require.True(t, ok)
	assert.Equal(t, "3", string(data))

	_, ok = exp.File("c.json")
	assert.False(t, ok)
}
