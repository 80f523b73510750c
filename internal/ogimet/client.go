package ogimet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/synopmap/synopmap/internal/provider/resilience"
)

// ProviderName identifies this source in logs and upstream health.
const ProviderName = "ogimet"

// BrowserUserAgent is sent with every request; OGIMET rejects default
// library agents.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// maxBody caps the bulletin page size.
const maxBody = 32 << 20

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Country defaults to DefaultCountry.
	Country string

	// HTTPClient defaults to a resilient client named ProviderName.
	HTTPClient *resilience.Client

	Logger zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Client fetches bulletins from OGIMET.
type Client struct {
	baseURL    string
	country    string
	httpClient *resilience.Client
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates an OGIMET client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	country := cfg.Country
	if country == "" {
		country = DefaultCountry
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.UserAgent = BrowserUserAgent
		httpClient = resilience.NewClient(rc)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:    baseURL,
		country:    country,
		httpClient: httpClient,
		logger:     cfg.Logger,
		now:        now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Country returns the configured country filter.
func (c *Client) Country() string {
	return c.country
}

// FetchBulletin downloads the bulletin for w and returns the text inside its
// <pre> block together with the resolved window.
func (c *Client) FetchBulletin(ctx context.Context, w Window) (string, Window, error) {
	w = w.Resolve(c.now())
	url := BuildURL(c.baseURL, c.country, w)

	c.logger.Debug().
		Str("url", url).
		Time("start", w.Start).
		Time("end", w.End).
		Msg("fetching bulletin")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", w, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", BrowserUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", w, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", w, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", w, fmt.Errorf("reading response: %w", err)
	}

	text, truncated, err := ExtractPre(strings.ToValidUTF8(string(body), "\uFFFD"))
	if err != nil {
		return "", w, err
	}
	if truncated {
		c.logger.Warn().
			Int("bytes", len(body)).
			Msg("closing </pre> tag not found, bulletin may be truncated")
	}

	return text, w, nil
}
