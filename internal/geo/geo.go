package geo

import (
	"errors"
	"math"

	"github.com/example/smartcabb-dispatch/internal/models"
)

// ErrInvalidCoordinate is returned when a coordinate is non-finite or
// outside the valid lat/lng range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between a and b in
// kilometres. Inputs are not validated; NaN propagates. Callers that
// take coordinates from the outside world should run Validate first.
func DistanceKm(a, b models.Location) float64 {
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// Validate rejects non-finite or out-of-range coordinates before they
// reach distance math, where a NaN would sort unpredictably.
func Validate(l models.Location) error {
	if !finite(l.Lat) || !finite(l.Lng) {
		return ErrInvalidCoordinate
	}
	if l.Lat < -90 || l.Lat > 90 || l.Lng < -180 || l.Lng > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func rad(deg float64) float64 { return deg * math.Pi / 180 }
