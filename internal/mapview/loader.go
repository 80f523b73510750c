package mapview

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/synopmap/synopmap/internal/geojson"
)

// Loader fetches the feature collection shown on the map.
type Loader interface {
	Load(ctx context.Context) (geojson.FeatureCollection, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (geojson.FeatureCollection, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context) (geojson.FeatureCollection, error) {
	return f(ctx)
}

// HTTPLoader GETs a feature collection from URL. It makes exactly one
// attempt; a network error, a non-2xx status or a malformed body is an error.
type HTTPLoader struct {
	URL    string
	Client *http.Client
}

// NewHTTPLoader creates a loader for url using http.DefaultClient.
func NewHTTPLoader(url string) *HTTPLoader {
	return &HTTPLoader{URL: url, Client: http.DefaultClient}
}

// Load performs the request.
func (l *HTTPLoader) Load(ctx context.Context) (geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, http.NoBody)
	if err != nil {
		return geojson.FeatureCollection{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", geojson.ContentTypeJSON)

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return geojson.FeatureCollection{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return geojson.FeatureCollection{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return geojson.FeatureCollection{}, fmt.Errorf("reading response: %w", err)
	}

	return geojson.UnmarshalCollection(body)
}
