package geospatial

import (
	"math"

	"github.com/samirrijal/ecoleta/internal/core/domain"
)

// Mean Earth radius in meters (IUGG).
const earthRadius = 6_371_008.8

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b domain.Coordinate) float64 {
	lat1, lat2 := radians(a.Latitude), radians(b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(b.Longitude - a.Longitude)

	h := hav(dLat) + math.Cos(lat1)*math.Cos(lat2)*hav(dLon)
	return 2 * earthRadius * math.Asin(math.Sqrt(math.Min(h, 1)))
}

func hav(theta float64) float64 {
	s := math.Sin(theta / 2)
	return s * s
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
