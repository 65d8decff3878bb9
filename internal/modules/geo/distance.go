// Package geo contains pure geographic computation helpers used by matching and pricing.
package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"

	"taxidispatch/internal/types"
)

const earthRadiusKm = 6371.0

// cellPrecision gives cells of roughly 150m x 150m.
const cellPrecision = 7

// DistanceKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees. The result is not rounded.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Between is DistanceKm for two points.
func Between(a, b types.Point) float64 {
	return DistanceKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Round2 rounds to two decimals, half away from zero. Use it only on values
// surfaced to callers; radius comparisons work on the raw distance.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Within reports whether b lies within radiusKm of a, using the unrounded distance.
func Within(a, b types.Point, radiusKm float64) bool {
	return Between(a, b) <= radiusKm
}

// Box is a lat/lng rectangle that contains every point within some radius of a center.
// When AllLng is set the longitude bounds must be ignored (the circle reaches a pole or
// crosses the antimeridian).
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
	AllLng         bool
}

// BoundingBox returns a conservative prefilter box for a radius search around p.
func BoundingBox(p types.Point, radiusKm float64) Box {
	angular := radiusKm / earthRadiusKm
	latDelta := angular * 180 / math.Pi

	b := Box{MinLat: p.Lat - latDelta, MaxLat: p.Lat + latDelta}
	if b.MinLat <= -90 || b.MaxLat >= 90 || angular >= math.Pi/2 {
		b.MinLat = math.Max(b.MinLat, -90)
		b.MaxLat = math.Min(b.MaxLat, 90)
		b.AllLng = true
		return b
	}

	lngDelta := math.Asin(math.Sin(angular)/math.Cos(degreesToRadians(p.Lat))) * 180 / math.Pi
	b.MinLng = p.Lng - lngDelta
	b.MaxLng = p.Lng + lngDelta
	if b.MinLng < -180 || b.MaxLng > 180 {
		b.AllLng = true
	}
	return b
}

// Cell returns the geohash cell containing the point.
func Cell(p types.Point) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lng, cellPrecision)
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
