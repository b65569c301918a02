// Package geocode resolves patient addresses to coordinates via the Census
// Geocoder, with the Google Geocoding API as an optional fallback.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes a single address.
type Client interface {
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
}

// AddressInput is an address to geocode.
type AddressInput struct {
	Street  string
	City    string
	State   string
	ZipCode string
}

// OneLine joins the non-empty address parts for one-line geocoder APIs and
// for display.
func (a AddressInput) OneLine() string {
	var parts []string
	for _, p := range []string{a.Street, a.City, a.State, a.ZipCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude  float64
	Longitude float64
	Address   string // normalized address as matched by the geocoder
	Source    string // "census" or "google"
	Quality   string // "rooftop", "range", "centroid", "approximate"
	Matched   bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) { g.googleKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) { g.httpClient = hc }
}

// WithRateLimit sets the requests-per-second limit for geocoder calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	limiter    *rate.Limiter

	// endpoints are fields so tests can point them at a local server.
	censusURL string
	googleURL string
}

// NewClient creates a geocoding Client.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		censusURL:  censusOneLineURL,
		googleURL:  googleGeocodeURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode tries Census first, then Google when configured. An address no
// provider can match is not an error: Matched is false.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	result, censusErr := g.geocodeCensus(ctx, addr)
	if censusErr == nil && result.Matched {
		return result, nil
	}

	if g.googleKey != "" {
		googleResult, googleErr := g.geocodeGoogle(ctx, addr)
		if googleErr == nil && googleResult.Matched {
			return googleResult, nil
		}
	}

	if censusErr != nil {
		return nil, censusErr
	}
	return &Result{Matched: false}, nil
}
