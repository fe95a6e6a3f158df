package geo

import "math"

const (
	earthRadiusMiles = 3959.0
	FeetPerMile      = 5280.0
	FeetPerMeter     = 3.281
)

// DistanceMiles returns the haversine great-circle distance between two
// WGS84 coordinates in statute miles.
func DistanceMiles(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}

// DistanceFeet is DistanceMiles scaled to feet, the unit the motion
// thresholds are expressed in.
func DistanceFeet(lat1, lon1, lat2, lon2 float64) float64 {
	return DistanceMiles(lat1, lon1, lat2, lon2) * FeetPerMile
}

func MetersPerSecondToMph(v float64) float64 {
	return v * 2.237
}

func MilesToKm(mi float64) float64 {
	return mi * 1.60934
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
