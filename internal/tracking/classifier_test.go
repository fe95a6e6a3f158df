package tracking

import (
	"testing"

	"backend-miletrack/internal/position"
)

var defaultThresholds = Thresholds{}.withDefaults()

func acc(v float64) *float64 { return &v }

// latOffsetFeet returns a latitude delta of roughly the given feet.
func latOffsetFeet(feet float64) float64 {
	return feet / 5280.0 / 69.097
}

func TestAcceptable(t *testing.T) {
	if Acceptable(position.Fix{}, 50) {
		t.Fatalf("missing accuracy must be rejected")
	}
	if Acceptable(position.Fix{Accuracy: acc(100)}, 50) {
		t.Fatalf("accuracy 100 must be rejected at floor 50")
	}
	if !Acceptable(position.Fix{Accuracy: acc(5)}, 50) {
		t.Fatalf("accuracy 5 must be accepted")
	}
	if !Acceptable(position.Fix{Accuracy: acc(50)}, 50) {
		t.Fatalf("accuracy at the floor must be accepted")
	}
}

func TestClassifyDrivingBySpeed(t *testing.T) {
	last := position.Fix{Lat: 40.0, Lng: -75.0}
	// 5 mph is 2.2352 m/s; stationary coordinates with reported speed.
	fix := position.Fix{Lat: 40.0, Lng: -75.0, SpeedMps: 2.3}
	if got := Classify(last, fix, defaultThresholds); got != MovementDriving {
		t.Fatalf("expected driving, got %v", got)
	}
}

func TestClassifyDrivingByDisplacement(t *testing.T) {
	last := position.Fix{Lat: 40.0, Lng: -75.0}
	// Zero reported speed but the device moved ~60 ft.
	fix := position.Fix{Lat: 40.0 + latOffsetFeet(60), Lng: -75.0}
	if got := Classify(last, fix, defaultThresholds); got != MovementDriving {
		t.Fatalf("expected driving, got %v", got)
	}
}

func TestClassifyMinimalMovement(t *testing.T) {
	last := position.Fix{Lat: 40.0, Lng: -75.0}

	bySpeed := position.Fix{Lat: 40.0, Lng: -75.0, SpeedMps: 1.0} // ~2.2 mph
	if got := Classify(last, bySpeed, defaultThresholds); got != MovementMinimal {
		t.Fatalf("expected minimal by speed, got %v", got)
	}

	byDistance := position.Fix{Lat: 40.0 + latOffsetFeet(40), Lng: -75.0}
	if got := Classify(last, byDistance, defaultThresholds); got != MovementMinimal {
		t.Fatalf("expected minimal by displacement, got %v", got)
	}
}

func TestClassifyStopped(t *testing.T) {
	last := position.Fix{Lat: 40.0, Lng: -75.0}
	fix := position.Fix{Lat: 40.0 + latOffsetFeet(10), Lng: -75.0, SpeedMps: 0.5}
	if got := Classify(last, fix, defaultThresholds); got != MovementStopped {
		t.Fatalf("expected stopped, got %v", got)
	}
}

func TestThresholdDefaults(t *testing.T) {
	th := Thresholds{}.withDefaults()
	if th.DrivingSpeedMph != 5.0 || th.DrivingDistanceFt != 50.0 ||
		th.MinimalSpeedMph != 2.0 || th.MinimalDistanceFt != 30.0 {
		t.Fatalf("unexpected defaults: %+v", th)
	}

	custom := Thresholds{DrivingSpeedMph: 8}.withDefaults()
	if custom.DrivingSpeedMph != 8 || custom.MinimalSpeedMph != 2.0 {
		t.Fatalf("override must keep the other defaults: %+v", custom)
	}
}

func TestClassifyCustomThresholds(t *testing.T) {
	last := position.Fix{Lat: 40.0, Lng: -75.0}
	fix := position.Fix{Lat: 40.0, Lng: -75.0, SpeedMps: 2.3} // ~5.1 mph

	strict := Thresholds{DrivingSpeedMph: 10}.withDefaults()
	if got := Classify(last, fix, strict); got != MovementMinimal {
		t.Fatalf("5 mph under a 10 mph cut line must be minimal, got %v", got)
	}
	if got := Classify(last, fix, defaultThresholds); got != MovementDriving {
		t.Fatalf("5 mph at the default cut line must be driving, got %v", got)
	}
}

func TestShouldRecord(t *testing.T) {
	last := position.Fix{Lat: 40.0, Lng: -75.0}

	near := position.Fix{Lat: 40.0 + latOffsetFeet(20), Lng: -75.0}
	if ShouldRecord(last, near, 10) {
		t.Fatalf("20 ft must not pass a 10 m filter")
	}

	far := position.Fix{Lat: 40.0 + latOffsetFeet(40), Lng: -75.0}
	if !ShouldRecord(last, far, 10) {
		t.Fatalf("40 ft must pass a 10 m filter")
	}
}
