package mapview

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/synopmap/synopmap/internal/geojson"
)

// Exporter delivers a named file to the user.
type Exporter interface {
	Export(ctx context.Context, filename string, data []byte) error
}

// ExporterFunc adapts a function to Exporter.
type ExporterFunc func(ctx context.Context, filename string, data []byte) error

// Export calls f.
func (f ExporterFunc) Export(ctx context.Context, filename string, data []byte) error {
	return f(ctx, filename, data)
}

// ExportFeature writes f pretty-printed as station_<id>.json.
func ExportFeature(ctx context.Context, exp Exporter, f geojson.Feature) error {
	data, err := geojson.MarshalPretty(f)
	if err != nil {
		return err
	}
	return exp.Export(ctx, geojson.StationFilename(f.Properties.StationID), data)
}

// ExportCollection writes fc pretty-printed as weather_stations.json.
func ExportCollection(ctx context.Context, exp Exporter, fc geojson.FeatureCollection) error {
	data, err := geojson.MarshalPretty(fc)
	if err != nil {
		return err
	}
	return exp.Export(ctx, geojson.BulkFilename, data)
}

// AttachmentExporter streams the file as an HTTP download. It can be used
// once per response.
type AttachmentExporter struct {
	w           http.ResponseWriter
	contentType string
}

// NewAttachmentExporter writes JSON attachments to w.
func NewAttachmentExporter(w http.ResponseWriter) *AttachmentExporter {
	return &AttachmentExporter{w: w, contentType: geojson.ContentTypeJSON}
}

// WithContentType overrides the media type, e.g. application/geo+json.
func (e *AttachmentExporter) WithContentType(ct string) *AttachmentExporter {
	e.contentType = ct
	return e
}

func (e *AttachmentExporter) Export(_ context.Context, filename string, data []byte) error {
	h := e.w.Header()
	h.Set("Content-Type", e.contentType+"; charset=utf-8")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	e.w.WriteHeader(http.StatusOK)
	_, err := e.w.Write(data)
	return err
}

// DirExporter writes files into a directory.
type DirExporter struct {
	Dir string
}

func (e DirExporter) Export(_ context.Context, filename string, data []byte) error {
	if filepath.Base(filename) != filename {
		return fmt.Errorf("invalid export filename %q", filename)
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(e.Dir, filename), data, 0o644); err != nil { //nolint:gosec // exported files are public
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	return nil
}

// RecordingExporter keeps exported files in memory.
type RecordingExporter struct {
	mu    sync.Mutex
	files map[string][]byte
	order []string
}

// NewRecordingExporter creates an empty recorder.
func NewRecordingExporter() *RecordingExporter {
	return &RecordingExporter{files: make(map[string][]byte)}
}

func (e *RecordingExporter) Export(_ context.Context, filename string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[filename] = append([]byte(nil), data...)
	e.order = append(e.order, filename)
	return nil
}

// File returns the last data exported under filename.
func (e *RecordingExporter) File(filename string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.files[filename]
	return data, ok
}

// Filenames returns the distinct exported names, sorted.
func (e *RecordingExporter) Filenames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.files))
	for name := range e.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of Export calls.
func (e *RecordingExporter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.order)
}
