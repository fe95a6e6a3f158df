package tracking

import (
	"backend-miletrack/internal/position"
	"backend-miletrack/internal/shared/geo"
)

// Movement is the instantaneous classification of a fix relative to the last
// accepted route point.
type Movement int

const (
	MovementStopped Movement = iota
	MovementMinimal
	MovementDriving
)

// Thresholds are the classifier's speed and displacement cut lines. Zero
// values fall back to the defaults.
type Thresholds struct {
	DrivingSpeedMph   float64
	DrivingDistanceFt float64
	MinimalSpeedMph   float64
	MinimalDistanceFt float64
}

func (th Thresholds) withDefaults() Thresholds {
	if th.DrivingSpeedMph <= 0 {
		th.DrivingSpeedMph = 5.0
	}
	if th.DrivingDistanceFt <= 0 {
		th.DrivingDistanceFt = 50.0
	}
	if th.MinimalSpeedMph <= 0 {
		th.MinimalSpeedMph = 2.0
	}
	if th.MinimalDistanceFt <= 0 {
		th.MinimalDistanceFt = 30.0
	}
	return th
}

// Acceptable reports whether a fix's reported accuracy is good enough to
// trust. A missing accuracy is treated as untrusted; the fix never reaches
// classification.
func Acceptable(fix position.Fix, minimumAccuracyM float64) bool {
	if fix.Accuracy == nil {
		return false
	}
	return *fix.Accuracy <= minimumAccuracyM
}

// Classify decides Driving, MinimalMovement, or Stopped from the dual
// speed/displacement tests. The displacement test catches genuine relocation
// when reported speed is absent or zero; the speed test catches movement the
// position jitter hides.
func Classify(last, fix position.Fix, th Thresholds) Movement {
	speedMph := geo.MetersPerSecondToMph(fix.SpeedMps)
	distanceFt := geo.DistanceFeet(last.Lat, last.Lng, fix.Lat, fix.Lng)

	switch {
	case speedMph >= th.DrivingSpeedMph || distanceFt > th.DrivingDistanceFt:
		return MovementDriving
	case speedMph >= th.MinimalSpeedMph || distanceFt > th.MinimalDistanceFt:
		return MovementMinimal
	default:
		return MovementStopped
	}
}
