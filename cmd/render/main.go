// Package main renders the station map to static files: the page, the full
// collection and one file per station.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/synopmap/synopmap/internal/geojson"
	"github.com/synopmap/synopmap/internal/mapview"
)

var errNoCollection = errors.New("station collection could not be loaded")

func main() {
	var (
		dataURL = flag.String("url", "http://localhost:8080"+mapview.DefaultDataURL, "station collection `url`")
		outDir  = flag.String("out", "dist", "output `directory`")
		title   = flag.String("title", "Weather Stations", "page title")
		timeout = flag.Duration("timeout", time.Minute, "fetch timeout")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().
		Timestamp().
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, *dataURL, *outDir, *title, *timeout); err != nil {
		log.Error().Err(err).Msg("render failed")
		stop()
		os.Exit(1)
	}
}

// pageFilename is the entry point of the rendered directory.
const pageFilename = "index.html"

func run(ctx context.Context, log zerolog.Logger, dataURL, outDir, title string, timeout time.Duration) error {
	exporter := mapview.DirExporter{Dir: outDir}

	view := mapview.New(mapview.DefaultConfig().WithDataURL(dataURL), mapview.NewHTTPLoader(dataURL), exporter, log)
	if err := view.Mount(ctx); err != nil {
		return err
	}
	defer view.Unmount()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := view.Wait(waitCtx); err != nil {
		return err
	}

	if _, ok := view.Collection(); !ok {
		return errNoCollection
	}
	log.Info().Int("markers", len(view.Render().Overlay)).Str("url", dataURL).Msg("collection loaded")

	// The rendered page reads the exported collection and the copied
	// assets from its own directory.
	page, err := mapview.NewPage(title, view.Config().WithDataURL(geojson.BulkFilename))
	if err != nil {
		return err
	}
	html, err := page.WithStaticPrefix("").Render()
	if err != nil {
		return err
	}
	if err := exporter.Export(ctx, pageFilename, html); err != nil {
		return err
	}
	if err := mapview.ExportStatic(ctx, exporter); err != nil {
		return err
	}

	if _, err := view.ExportAll(ctx); err != nil {
		return err
	}
	n, err := view.ExportEach(ctx)
	if err != nil {
		return err
	}

	log.Info().Str("dir", outDir).Int("stations", n).Msg("map rendered")
	return nil
}
