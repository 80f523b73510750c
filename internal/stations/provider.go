package stations

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/synopmap/synopmap/internal/ogimet"
)

// Provider supplies raw bulletin text for a time window.
type Provider interface {
	// FetchBulletin returns the bulletin for w and the window it covers.
	// A zero w means the latest synoptic hour.
	FetchBulletin(ctx context.Context, w ogimet.Window) (string, ogimet.Window, error)

	// Name returns the provider name for logging.
	Name() string

	// Country returns the country the bulletins cover.
	Country() string
}

var _ Provider = (*ogimet.Client)(nil)

// FileProvider serves a bulletin previously saved to disk. The requested
// window is reported back as is, since the file carries no query metadata.
type FileProvider struct {
	path    string
	country string
	now     func() time.Time
}

// NewFileProvider reads bulletins from path.
func NewFileProvider(path, country string) *FileProvider {
	if country == "" {
		country = ogimet.DefaultCountry
	}
	return &FileProvider{path: path, country: country, now: time.Now}
}

// FetchBulletin reads the file. A zero window is reported as the file's
// modification hour.
func (p *FileProvider) FetchBulletin(ctx context.Context, w ogimet.Window) (string, ogimet.Window, error) {
	if err := ctx.Err(); err != nil {
		return "", w, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", w, fmt.Errorf("reading bulletin file: %w", err)
	}

	if w.IsZero() {
		ref := p.now()
		if info, statErr := os.Stat(p.path); statErr == nil {
			ref = info.ModTime()
		}
		w = w.Resolve(ref)
	}

	return string(data), w, nil
}

// Name returns "file".
func (p *FileProvider) Name() string {
	return "file"
}

// Country returns the configured country.
func (p *FileProvider) Country() string {
	return p.country
}
