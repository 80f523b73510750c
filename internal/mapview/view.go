package mapview

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/synopmap/synopmap/internal/geojson"
)

// View errors.
var (
	ErrAlreadyMounted  = errors.New("view already mounted")
	ErrNotMounted      = errors.New("view not mounted")
	ErrUnknownStation  = errors.New("no interactive layer for station")
	ErrControlNotBound = errors.New("download control not bound; open the popup first")
)

// Viewport is the current pan and zoom.
type Viewport struct {
	Center LatLng `json:"center"`
	Zoom   int    `json:"zoom"`
}

// Scene is a snapshot of everything the widget shows.
type Scene struct {
	Viewport Viewport  `json:"viewport"`
	Tiles    TileLayer `json:"tiles"`
	Icon     Icon      `json:"icon"`

	// Overlay is nil until a collection has loaded.
	Overlay []Layer `json:"overlay"`

	// OpenPopup is the station whose popup is open, if any.
	OpenPopup string `json:"open_popup,omitempty"`

	// BulkExport is always offered, even before data arrives.
	BulkExport bool `json:"bulk_export"`
}

// Event is a click travelling from a control up to the map.
type Event struct {
	Target  string
	LatLng  LatLng
	stopped bool
}

// StopPropagation keeps the event from reaching the map.
func (e *Event) StopPropagation() {
	e.stopped = true
}

// Stopped reports whether propagation was stopped.
func (e *Event) Stopped() bool {
	return e.stopped
}

// View is the map widget. The collection lives only in the view and is
// discarded on Unmount.
type View struct {
	cfg      Config
	loader   Loader
	exporter Exporter
	logger   zerolog.Logger

	mu         sync.Mutex
	mounted    bool
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	viewport   Viewport
	collection *geojson.FeatureCollection
	layers     []Layer
	openPopup  string
	bound      *geojson.Feature
}

// New creates an unmounted view.
func New(cfg Config, loader Loader, exporter Exporter, logger zerolog.Logger) *View {
	return &View{
		cfg:      cfg,
		loader:   loader,
		exporter: exporter,
		logger:   logger.With().Str("component", "mapview").Logger(),
		viewport: Viewport{Center: cfg.Center, Zoom: cfg.Zoom},
	}
}

// Config returns the view configuration.
func (v *View) Config() Config {
	return v.cfg
}

// Mount shows the base map and starts the single collection fetch. It does
// not wait for the fetch; use Wait for that.
func (v *View) Mount(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.mounted {
		return ErrAlreadyMounted
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	v.mounted = true
	v.generation++
	v.cancel = cancel
	v.done = make(chan struct{})
	v.viewport = Viewport{Center: v.cfg.Center, Zoom: v.cfg.Zoom}

	go v.load(fetchCtx, v.generation, v.done)
	return nil
}

func (v *View) load(ctx context.Context, generation uint64, done chan struct{}) {
	defer close(done)

	fc, err := v.loader.Load(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.mounted || v.generation != generation {
		v.logger.Debug().Msg("discarding station data received after unmount")
		return
	}
	if err != nil {
		v.logger.Error().Err(err).Msg("error fetching station data")
		return
	}

	layers, err := BuildLayers(fc)
	if err != nil {
		v.logger.Error().Err(err).Msg("error building station layers")
		return
	}

	v.collection = &fc
	v.layers = layers
	v.openPopup = ""
	v.bound = nil

	for _, f := range fc.Features {
		if invalid := f.InvalidFields(); len(invalid) > 0 {
			v.logger.Warn().
				Str("station_id", f.Properties.StationID).
				Strs("fields", invalid).
				Msg("station fields not shown in popup")
		}
	}
	if n := Unplaced(layers); n > 0 {
		v.logger.Warn().Int("layers", n).Msg("stations without a point geometry have no marker")
	}

	v.logger.Debug().
		Int("features", fc.Len()).
		Int("layers", len(layers)).
		Msg("station data loaded")
}

// Wait blocks until the current fetch has finished or ctx is done.
func (v *View) Wait(ctx context.Context) error {
	v.mu.Lock()
	done := v.done
	v.mu.Unlock()

	if done == nil {
		return ErrNotMounted
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unmount cancels an in-flight fetch and drops all view state. A fetch that
// completes afterwards is ignored.
func (v *View) Unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.mounted {
		return
	}
	v.cancel()
	v.mounted = false
	v.collection = nil
	v.layers = nil
	v.openPopup = ""
	v.bound = nil
}

// Render returns the current scene. The base layer is always present.
func (v *View) Render() Scene {
	v.mu.Lock()
	defer v.mu.Unlock()

	scene := Scene{
		Viewport:   v.viewport,
		Tiles:      v.cfg.Tiles,
		Icon:       v.cfg.Icon,
		OpenPopup:  v.openPopup,
		BulkExport: true,
	}
	if v.collection != nil {
		scene.Overlay = append([]Layer{}, v.layers...)
	}
	return scene
}

// Viewport returns the current pan and zoom.
func (v *View) Viewport() Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewport
}

// Collection returns the loaded collection.
func (v *View) Collection() (geojson.FeatureCollection, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.collection == nil {
		return geojson.FeatureCollection{}, false
	}
	return *v.collection, true
}

// ClickMap delivers a click on the map background: the popup closes and the
// map pans to the clicked point.
func (v *View) ClickMap(at LatLng) {
	v.mu.Lock()
	defer v.mu.Unlock()
	bubble(&Event{Target: "map", LatLng: at}, v.onMapClick)
}

// onDownloadClick is the download control's click handler. The click is
// consumed so the map keeps its pan, zoom and open popup.
func onDownloadClick(ev *Event) {
	ev.StopPropagation()
}

// bubble delivers ev to handlers from the target outwards until one stops
// propagation.
func bubble(ev *Event, handlers ...func(*Event)) {
	for _, h := range handlers {
		h(ev)
		if ev.Stopped() {
			return
		}
	}
}

// onMapClick is the map's click handler. Callers hold v.mu.
func (v *View) onMapClick(ev *Event) {
	v.openPopup = ""
	v.bound = nil
	v.viewport.Center = ev.LatLng
}

// OpenPopup opens the popup of a station and binds its download control.
func (v *View) OpenPopup(stationID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := v.featureWithLayer(stationID)
	if err != nil {
		return err
	}

	v.openPopup = stationID
	v.bound = &f
	return nil
}

// ClosePopup closes the open popup, unbinding its control.
func (v *View) ClosePopup() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.openPopup = ""
	v.bound = nil
}

// ClickDownload clicks the download control of the open popup. The control
// handles the click first; the map sees it only if the control lets it
// propagate.
func (v *View) ClickDownload(ctx context.Context, stationID string) error {
	v.mu.Lock()
	if v.bound == nil || v.bound.Properties.StationID != stationID {
		v.mu.Unlock()
		return ErrControlNotBound
	}
	f := *v.bound
	bubble(&Event{Target: DownloadControlID(stationID), LatLng: v.viewport.Center}, onDownloadClick, v.onMapClick)
	v.mu.Unlock()

	if err := ExportFeature(ctx, v.exporter, f); err != nil {
		v.logger.Error().Err(err).Str("station_id", stationID).Msg("station export failed")
		return err
	}
	return nil
}

// ExportAll exports the loaded collection. It does nothing and returns false
// when no collection is loaded.
func (v *View) ExportAll(ctx context.Context) (bool, error) {
	fc, ok := v.Collection()
	if !ok {
		return false, nil
	}
	if err := ExportCollection(ctx, v.exporter, fc); err != nil {
		v.logger.Error().Err(err).Msg("bulk export failed")
		return true, err
	}
	return true, nil
}

// ExportEach exports every named feature, as if each download control were
// clicked in turn. It returns the number of files written.
func (v *View) ExportEach(ctx context.Context) (int, error) {
	fc, ok := v.Collection()
	if !ok {
		return 0, nil
	}

	n := 0
	for _, f := range fc.Features {
		if !f.Named() {
			continue
		}
		if err := ExportFeature(ctx, v.exporter, f); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// featureWithLayer returns the feature behind a station's layer. Callers
// hold v.mu.
func (v *View) featureWithLayer(stationID string) (geojson.Feature, error) {
	if v.collection == nil {
		return geojson.Feature{}, ErrUnknownStation
	}
	for _, l := range v.layers {
		if l.StationID != stationID {
			continue
		}
		f, err := v.collection.Find(stationID)
		if err != nil {
			return geojson.Feature{}, ErrUnknownStation
		}
		return f, nil
	}
	return geojson.Feature{}, ErrUnknownStation
}
