package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressInputOneLine(t *testing.T) {
	addr := AddressInput{Street: "100 Main St", City: "Dallas", State: "TX", ZipCode: "75201"}
	assert.Equal(t, "100 Main St, Dallas, TX, 75201", addr.OneLine())

	partial := AddressInput{City: "  Dallas ", State: "TX"}
	assert.Equal(t, "Dallas, TX", partial.OneLine())

	assert.Equal(t, "", AddressInput{}.OneLine())
}

func censusMatchServer(t *testing.T, lat, lon float64, matched string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Public_AR_Current", r.URL.Query().Get("benchmark"))
		var resp censusOneLineResponse
		if matched != "" {
			m := censusAddressMatch{MatchedAddress: matched}
			m.Coordinates.X = lon
			m.Coordinates.Y = lat
			resp.Result.AddressMatches = []censusAddressMatch{m}
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestGeocodeCensusMatch(t *testing.T) {
	srv := censusMatchServer(t, 32.7767, -96.797, "100 MAIN ST, DALLAS, TX, 75201")
	defer srv.Close()

	g := NewClient().(*geocoder)
	g.censusURL = srv.URL

	result, err := g.Geocode(context.Background(), AddressInput{
		Street: "100 Main St", City: "Dallas", State: "TX", ZipCode: "75201",
	})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "census", result.Source)
	assert.InDelta(t, 32.7767, result.Latitude, 0.0001)
	assert.InDelta(t, -96.797, result.Longitude, 0.0001)
	assert.Equal(t, "100 MAIN ST, DALLAS, TX, 75201", result.Address)
}

func TestGeocodeNoMatchWithoutFallback(t *testing.T) {
	srv := censusMatchServer(t, 0, 0, "")
	defer srv.Close()

	g := NewClient().(*geocoder)
	g.censusURL = srv.URL

	result, err := g.Geocode(context.Background(), AddressInput{Street: "1 Nowhere Ln"})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocodeGoogleFallback(t *testing.T) {
	census := censusMatchServer(t, 0, 0, "")
	defer census.Close()

	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fallback-key", r.URL.Query().Get("key"))
		resp := googleGeocodeResponse{Status: "OK"}
		res := googleResult{FormattedAddress: "200 Elm St, Fort Worth, TX 76102, USA"}
		res.Geometry.Location.Lat = 32.7555
		res.Geometry.Location.Lng = -97.3308
		res.Geometry.LocationType = "RANGE_INTERPOLATED"
		resp.Results = []googleResult{res}
		json.NewEncoder(w).Encode(resp)
	}))
	defer google.Close()

	g := NewClient(WithGoogleAPIKey("fallback-key")).(*geocoder)
	g.censusURL = census.URL
	g.googleURL = google.URL

	result, err := g.Geocode(context.Background(), AddressInput{Street: "200 Elm St", City: "Fort Worth"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "google", result.Source)
	assert.Equal(t, "range", result.Quality)
	assert.InDelta(t, 32.7555, result.Latitude, 0.0001)
}

func TestGeocodeCensusErrorSurfacesWithoutFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	g := NewClient().(*geocoder)
	g.censusURL = srv.URL

	_, err := g.Geocode(context.Background(), AddressInput{Street: "100 Main St"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "census returned status 400")
}

func TestGoogleQuality(t *testing.T) {
	assert.Equal(t, "rooftop", googleQuality("ROOFTOP"))
	assert.Equal(t, "range", googleQuality("RANGE_INTERPOLATED"))
	assert.Equal(t, "centroid", googleQuality("GEOMETRIC_CENTER"))
	assert.Equal(t, "approximate", googleQuality("APPROXIMATE"))
	assert.Equal(t, "approximate", googleQuality(""))
}
