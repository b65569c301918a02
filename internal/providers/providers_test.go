package providers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/clarity-dx/referral-portal/internal/model"
)

// Dallas-area test coordinates.
const (
	dallasLat = 32.7767
	dallasLon = -96.7970
)

func testRoster() []model.Provider {
	return []model.Provider{
		{PrimaryKey: "P1", BillingName: "Downtown Imaging", Latitude: 32.78, Longitude: -96.80, ProcCodes: "73721, 72148"},
		{PrimaryKey: "P2", BillingName: "Fort Worth Ortho", Latitude: 32.7555, Longitude: -97.3308, ProcCodes: "73721"},
		{PrimaryKey: "P3", BillingName: "Plano Spine Center", Latitude: 33.0198, Longitude: -96.6989, ProcCodes: "72148;73721"},
		{PrimaryKey: "P4", BillingName: "No Coords Clinic", ProcCodes: "73721"},
		{PrimaryKey: "P5", BillingName: "Austin PT", Latitude: 30.2672, Longitude: -97.7431, ProcCodes: "97110"},
	}
}

func TestNearestRanksByDistance(t *testing.T) {
	loc := NewPanelLocator(testRoster())

	got, err := loc.Nearest(context.Background(), dallasLat, dallasLon, "73721", 10)
	require.NoError(t, err)
	require.Len(t, got, 3, "providers without coordinates or the code are excluded")

	assert.Equal(t, "P1", got[0].PrimaryKey)
	assert.Equal(t, "P3", got[1].PrimaryKey)
	assert.Equal(t, "P2", got[2].PrimaryKey)

	assert.Less(t, got[0].DistanceMiles, got[1].DistanceMiles)
	assert.Less(t, got[1].DistanceMiles, got[2].DistanceMiles)
	assert.Greater(t, got[0].DistanceMiles, 0.0)
}

func TestNearestRespectsLimit(t *testing.T) {
	loc := NewPanelLocator(testRoster())

	got, err := loc.Nearest(context.Background(), dallasLat, dallasLon, "73721", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "P1", got[0].PrimaryKey)
	assert.Equal(t, "P3", got[1].PrimaryKey)
}

func TestNearestUnknownCode(t *testing.T) {
	loc := NewPanelLocator(testRoster())

	got, err := loc.Nearest(context.Background(), dallasLat, dallasLon, "99999", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNearestDoesNotMutateRoster(t *testing.T) {
	roster := testRoster()
	loc := NewPanelLocator(roster)

	_, err := loc.Nearest(context.Background(), dallasLat, dallasLon, "73721", 5)
	require.NoError(t, err)
	for _, p := range roster {
		assert.Zero(t, p.DistanceMiles)
	}
}

func TestOffersCode(t *testing.T) {
	assert.True(t, offersCode("73721, 72148", "73721"))
	assert.True(t, offersCode("72148;73721", "73721"))
	assert.True(t, offersCode(" 73721 ", "73721"))
	assert.False(t, offersCode("7372", "73721"))
	assert.False(t, offersCode("", "73721"))
}

func TestHaversineMiles(t *testing.T) {
	// Dallas to Fort Worth is roughly 31 miles.
	d := haversineMiles(dallasLat, dallasLon, 32.7555, -97.3308)
	assert.InDelta(t, 31.0, d, 2.0)

	assert.Zero(t, haversineMiles(dallasLat, dallasLon, dallasLat, dallasLon))
}

func writePanel(t *testing.T, rows [][]string) string {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Panel")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}

	path := filepath.Join(t.TempDir(), "panel.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestLoadPanel(t *testing.T) {
	path := writePanel(t, [][]string{
		{"Primary Key", "Billing Name", "TIN", "City", "State", "Lat", "Lon", "Rate", "Proc Codes"},
		{"P1", "Downtown Imaging", "12-3456789", "Dallas", "TX", "32.78", "-96.80", "425.50", "73721, 72148"},
		{"", "Fort Worth Ortho", "", "Fort Worth", "TX", "32.7555", "-97.3308", "", "73721"},
		{"P9", "", "", "", "", "", "", "", ""},
	})

	roster, err := LoadPanel(path, "")
	require.NoError(t, err)
	require.Len(t, roster, 2, "row without billing name is skipped")

	assert.Equal(t, "P1", roster[0].PrimaryKey)
	assert.Equal(t, "Downtown Imaging", roster[0].BillingName)
	assert.Equal(t, "12-3456789", roster[0].TIN)
	assert.InDelta(t, 32.78, roster[0].Latitude, 0.0001)
	assert.InDelta(t, 425.50, roster[0].Rate, 0.0001)
	assert.Equal(t, "73721, 72148", roster[0].ProcCodes)

	assert.Equal(t, "Fort Worth Ortho", roster[1].PrimaryKey, "primary key falls back to billing name")
}

func TestLoadPanelNamedSheet(t *testing.T) {
	path := writePanel(t, [][]string{
		{"Billing Name", "Latitude", "Longitude"},
		{"Downtown Imaging", "32.78", "-96.80"},
	})

	roster, err := LoadPanel(path, "Panel")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.InDelta(t, -96.80, roster[0].Longitude, 0.0001)

	_, err = LoadPanel(path, "Missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)
}

func TestLoadPanelMissingBillingColumn(t *testing.T) {
	path := writePanel(t, [][]string{
		{"Name", "Lat", "Lon"},
		{"Downtown Imaging", "32.78", "-96.80"},
	})

	_, err := LoadPanel(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing billing name column")
}
