package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"backend-miletrack/internal/tracking"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "miletrack:checkpoint:"

// Store persists tracking-state snapshots in redis. One engine writes per
// key, so plain SET gives the required last-write-wins ordering.
type Store struct {
	redis *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{redis: client}
}

func (s *Store) Save(ctx context.Context, userID string, st tracking.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key(userID), payload, 0).Err()
}

func (s *Store) Load(ctx context.Context, userID string) (*tracking.State, error) {
	payload, err := s.redis.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var st tracking.State
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) Remove(ctx context.Context, userID string) error {
	return s.redis.Del(ctx, key(userID)).Err()
}

// Users returns every user with a stored checkpoint, for restart recovery.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	var users []string
	iter := s.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		users = append(users, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	return users, iter.Err()
}

func key(userID string) string {
	return keyPrefix + userID
}
