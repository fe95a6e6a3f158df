package tracking

import (
	"errors"
	"time"

	"backend-miletrack/internal/position"
)

var (
	// ErrInvalidState means a lifecycle operation was called outside its
	// precondition state. No state is mutated.
	ErrInvalidState = errors.New("invalid tracking state transition")
	// ErrTripNotFound means no engine holds an open trip for the user.
	ErrTripNotFound = errors.New("no active trip")
)

// Purpose tags a trip for deduction purposes.
type Purpose string

const (
	PurposeBusiness Purpose = "business"
	PurposeMedical  Purpose = "medical"
	PurposeCharity  Purpose = "charity"
	PurposeMoving   Purpose = "moving"
	PurposePersonal Purpose = "personal"
)

func (p Purpose) Valid() bool {
	switch p {
	case PurposeBusiness, PurposeMedical, PurposeCharity, PurposeMoving, PurposePersonal:
		return true
	}
	return false
}

// State is the mutable aggregate owned by one tracker. Route points are the
// fixes promoted into the trip's permanent path; DistanceMiles is the running
// sum of great-circle legs between consecutive route points, never recomputed.
type State struct {
	TripID          string         `json:"trip_id"`
	Purpose         Purpose        `json:"purpose"`
	IsTracking      bool           `json:"is_tracking"`
	IsPaused        bool           `json:"is_paused"`
	RoutePoints     []position.Fix `json:"route_points"`
	CurrentPosition *position.Fix  `json:"current_position,omitempty"`
	StartTime       int64          `json:"start_time"`  // epoch ms
	LastUpdate      int64          `json:"last_update"` // epoch ms
	ElapsedSec      int64          `json:"elapsed_sec"`
	DistanceMiles   float64        `json:"distance_miles"`
	SpeedMph        float64        `json:"speed_mph"`
}

// Trip is a finalized tracking session handed to the persistence collaborator.
type Trip struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Purpose       Purpose        `json:"purpose"`
	StartedAt     time.Time      `json:"started_at"`
	EndedAt       time.Time      `json:"ended_at"`
	DistanceMiles float64        `json:"distance_miles"`
	DistanceKm    float64        `json:"distance_km"`
	DurationSec   int64          `json:"duration_sec"`
	AvgSpeedMph   float64        `json:"avg_speed_mph"`
	MaxSpeedMph   float64        `json:"max_speed_mph"`
	RoutePoints   []position.Fix `json:"route_points"`
	AutoStopped   bool           `json:"auto_stopped"`
	CreatedAt     time.Time      `json:"created_at"`
}
