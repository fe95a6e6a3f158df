package trip

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"backend-miletrack/internal/db"
	"backend-miletrack/internal/position"
	"backend-miletrack/internal/tracking"

	"github.com/redis/go-redis/v9"
)

const pendingKey = "miletrack:pending_trips"

// Service persists finalized trips and serves trip history. It is the
// tracking engine's sink: finalized trips that fail to store are queued in
// redis and retried by FlushPending, so a stop never loses a trip record.
type Service struct {
	db    db.Querier
	redis *redis.Client
}

func NewService(q db.Querier, redisClient *redis.Client) *Service {
	return &Service{db: q, redis: redisClient}
}

// SubmitTrip stores a finalized trip. On storage failure the record goes to
// the durable pending queue and the submit is considered handled.
func (s *Service) SubmitTrip(ctx context.Context, t tracking.Trip) error {
	if err := s.insert(ctx, t); err != nil {
		if s.redis == nil {
			return err
		}
		log.Printf("trip %s insert failed, queueing: %v", t.ID, err)
		return s.enqueuePending(ctx, t)
	}
	return nil
}

// SubmitPartial upserts the live snapshot of an in-progress trip. Failures
// are the caller's to log and drop; the next interval supersedes them.
func (s *Service) SubmitPartial(ctx context.Context, userID string, st tracking.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO active_trips (user_id, trip_id, state, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id) DO UPDATE SET trip_id=EXCLUDED.trip_id, state=EXCLUDED.state, updated_at=EXCLUDED.updated_at
	`, userID, st.TripID, payload, time.Now())
	return err
}

func (s *Service) insert(ctx context.Context, t tracking.Trip) error {
	points, err := json.Marshal(t.RoutePoints)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO trips (id, user_id, purpose, started_at, ended_at, distance_miles, distance_km, duration_sec, avg_speed_mph, max_speed_mph, route_points, auto_stopped)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, t.ID, t.UserID, string(t.Purpose), t.StartedAt, t.EndedAt, t.DistanceMiles, t.DistanceKm,
		t.DurationSec, t.AvgSpeedMph, t.MaxSpeedMph, points, t.AutoStopped)
	return err
}

func (s *Service) enqueuePending(ctx context.Context, t tracking.Trip) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.redis.RPush(ctx, pendingKey, payload).Err()
}

// FlushPending retries every queued trip. A record leaves the queue only
// once its insert succeeds.
func (s *Service) FlushPending(ctx context.Context) (int, error) {
	if s.redis == nil {
		return 0, nil
	}
	entries, err := s.redis.LRange(ctx, pendingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	flushed := 0
	for _, entry := range entries {
		var t tracking.Trip
		if err := json.Unmarshal([]byte(entry), &t); err != nil {
			// Unreadable entry; drop it rather than wedging the queue.
			_ = s.redis.LRem(ctx, pendingKey, 1, entry).Err()
			continue
		}
		if err := s.insert(ctx, t); err != nil {
			continue
		}
		if err := s.redis.LRem(ctx, pendingKey, 1, entry).Err(); err != nil {
			return flushed, err
		}
		flushed++
	}
	return flushed, nil
}

// PendingCount reports the retry queue depth.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	if s.redis == nil {
		return 0, nil
	}
	return s.redis.LLen(ctx, pendingKey).Result()
}

func (s *Service) History(ctx context.Context, userID string) ([]tracking.Trip, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, purpose, started_at, ended_at, distance_miles, distance_km, duration_sec, avg_speed_mph, max_speed_mph, route_points, auto_stopped, created_at
		FROM trips WHERE user_id=$1
		ORDER BY started_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []tracking.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, nil
}

func (s *Service) GetTrip(ctx context.Context, userID, id string) (tracking.Trip, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, purpose, started_at, ended_at, distance_miles, distance_km, duration_sec, avg_speed_mph, max_speed_mph, route_points, auto_stopped, created_at
		FROM trips WHERE id=$1 AND user_id=$2
	`, id, userID)
	return scanTrip(row)
}

// UpdatePurpose edits a trip's purpose tag post-hoc.
func (s *Service) UpdatePurpose(ctx context.Context, userID, id string, purpose tracking.Purpose) (tracking.Trip, error) {
	_, err := s.db.Exec(ctx, `
		UPDATE trips SET purpose=$3 WHERE id=$1 AND user_id=$2
	`, id, userID, string(purpose))
	if err != nil {
		return tracking.Trip{}, err
	}
	return s.GetTrip(ctx, userID, id)
}

// Estimate computes the deduction for one trip from its stored miles.
func (s *Service) Estimate(ctx context.Context, userID, id string) (Deduction, error) {
	t, err := s.GetTrip(ctx, userID, id)
	if err != nil {
		return Deduction{}, err
	}
	rate := rateFor(t.Purpose)
	return Deduction{
		TripID:    t.ID,
		Purpose:   string(t.Purpose),
		Miles:     t.DistanceMiles,
		RateCents: rate,
		AmountUSD: t.DistanceMiles * float64(rate) / 100,
	}, nil
}

// Summary aggregates mileage and deduction totals per purpose.
func (s *Service) Summary(ctx context.Context, userID string) ([]PurposeSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT purpose, COUNT(*), COALESCE(SUM(distance_miles),0)
		FROM trips WHERE user_id=$1
		GROUP BY purpose
		ORDER BY purpose
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []PurposeSummary
	for rows.Next() {
		var sum PurposeSummary
		if err := rows.Scan(&sum.Purpose, &sum.TripCount, &sum.Miles); err != nil {
			return nil, err
		}
		rate := rateFor(tracking.Purpose(sum.Purpose))
		sum.DeductionUSD = sum.Miles * float64(rate) / 100
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (tracking.Trip, error) {
	var t tracking.Trip
	var purpose string
	var points []byte
	if err := row.Scan(&t.ID, &t.UserID, &purpose, &t.StartedAt, &t.EndedAt, &t.DistanceMiles, &t.DistanceKm,
		&t.DurationSec, &t.AvgSpeedMph, &t.MaxSpeedMph, &points, &t.AutoStopped, &t.CreatedAt); err != nil {
		return tracking.Trip{}, err
	}
	t.Purpose = tracking.Purpose(purpose)
	if len(points) > 0 {
		var route []position.Fix
		if err := json.Unmarshal(points, &route); err == nil {
			t.RoutePoints = route
		}
	}
	return t, nil
}
