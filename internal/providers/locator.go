// Package providers ranks in-network provider candidates by distance from
// the patient for a given procedure code.
package providers

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/clarity-dx/referral-portal/internal/model"
)

// Locator finds the nearest in-network providers offering a procedure code.
type Locator interface {
	Nearest(ctx context.Context, lat, lon float64, procCode string, limit int) ([]model.Provider, error)
}

// PanelLocator serves lookups from an in-memory provider roster.
type PanelLocator struct {
	roster []model.Provider
}

// NewPanelLocator wraps a loaded roster.
func NewPanelLocator(roster []model.Provider) *PanelLocator {
	return &PanelLocator{roster: roster}
}

// Size reports how many providers the roster holds.
func (l *PanelLocator) Size() int { return len(l.roster) }

// Nearest returns up to limit providers offering procCode, nearest first.
// Providers without coordinates are skipped. The returned slice is a copy;
// DistanceMiles is filled in on each entry.
func (l *PanelLocator) Nearest(ctx context.Context, lat, lon float64, procCode string, limit int) ([]model.Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code := strings.ToUpper(strings.TrimSpace(procCode))

	var matches []model.Provider
	for _, p := range l.roster {
		if p.Latitude == 0 && p.Longitude == 0 {
			continue
		}
		if code != "" && !offersCode(p.ProcCodes, code) {
			continue
		}
		p.DistanceMiles = haversineMiles(lat, lon, p.Latitude, p.Longitude)
		matches = append(matches, p)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].DistanceMiles < matches[j].DistanceMiles
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// offersCode reports whether the roster's comma- or semicolon-separated
// procedure code list contains code.
func offersCode(procCodes, code string) bool {
	for _, raw := range strings.FieldsFunc(procCodes, func(r rune) bool {
		return r == ',' || r == ';'
	}) {
		if strings.ToUpper(strings.TrimSpace(raw)) == code {
			return true
		}
	}
	return false
}

const earthRadiusMiles = 3958.8

// haversineMiles computes the great-circle distance between two points.
func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
