package mapview

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/goccy/go-json"
)

//go:embed static
var staticFS embed.FS

// StaticPrefix is the URL prefix the page loads its assets from.
const StaticPrefix = "/static/"

// Page is the view model of the hosting HTML page.
type Page struct {
	Title        string
	LeafletURL   string
	StaticPrefix string
	Config       template.JS
}

// NewPage builds the page model for cfg.
func NewPage(title string, cfg Config) (Page, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Title:        title,
		LeafletURL:   LeafletBaseURL,
		StaticPrefix: StaticPrefix,
		Config:       template.JS(raw), //nolint:gosec // marshalled JSON
	}, nil
}

// WithStaticPrefix returns a copy of p loading its assets from prefix. An
// empty prefix resolves them next to the page.
func (p Page) WithStaticPrefix(prefix string) Page {
	p.StaticPrefix = prefix
	return p
}

// Render executes the page template.
func (p Page) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "index.html", p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePage renders index.html for cfg.
func WritePage(w io.Writer, title string, cfg Config) error {
	page, err := NewPage(title, cfg)
	if err != nil {
		return err
	}

	data, err := page.Render()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ExportStatic hands every embedded asset to exp under its file name.
func ExportStatic(ctx context.Context, exp Exporter) error {
	assets := StaticFS()
	return fs.WalkDir(assets, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(assets, name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		return exp.Export(ctx, name, data)
	})
}

// StaticFS returns the embedded script and stylesheet.
func StaticFS() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// StaticHandler serves StaticFS under StaticPrefix.
func StaticHandler() http.Handler {
	return http.StripPrefix(StaticPrefix, http.FileServer(http.FS(StaticFS())))
}
