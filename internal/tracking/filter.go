package tracking

import (
	"backend-miletrack/internal/position"
	"backend-miletrack/internal/shared/geo"
)

// ShouldRecord reports whether a Driving-classified fix becomes a new route
// point. Fixes closer than the minimum distance to the last route point only
// refresh the live position and speed, bounding route-point density.
func ShouldRecord(last, fix position.Fix, minimumDistanceM float64) bool {
	distanceFt := geo.DistanceFeet(last.Lat, last.Lng, fix.Lat, fix.Lng)
	return distanceFt >= minimumDistanceM*geo.FeetPerMeter
}
