package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/haasonsaas/gemini-exfil-detector/internal/model"
)

// RedisStore is the durable Store backend selected by config.RedisURL. Each
// actor's activity log lives under "recon:<actor>" as a single JSON blob,
// refreshed with SETEX on every record so the TTL restarts on each append,
// matching the store's documented TTL policy.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration

	// fallback absorbs writes/reads when the Redis backend is unavailable,
	// satisfying the "degrade to in-memory, never surface" contract.
	fallback *InMemoryStore
}

// NewRedisStore parses url and pings the server once at construction time.
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client:   client,
		ttl:      ttl,
		fallback: NewInMemoryStore(ttl),
	}, nil
}

// NewRedisStoreFromClient wraps an existing client, used by tests against
// a miniredis instance.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, fallback: NewInMemoryStore(ttl)}
}

func (s *RedisStore) key(actor string) string { return "recon:" + actor }

// Record appends activity to actor's JSON blob and refreshes its TTL. On
// any Redis error it logs a warning and degrades to the in-memory fallback
// for the remainder of the process lifetime, per error handling category (f).
func (s *RedisStore) Record(ctx context.Context, activity model.ReconActivity) error {
	activities, err := s.readRedis(ctx, activity.Actor)
	if err != nil {
		fallbackLogger.Warn().Err(err).Str("actor", activity.Actor).Msg("redis read failed, falling back to in-memory store")
		return s.fallback.Record(ctx, activity)
	}

	activities = append(activities, activity)
	data, err := json.Marshal(activities)
	if err != nil {
		return fmt.Errorf("failed to marshal recon activities: %w", err)
	}

	if err := s.client.Set(ctx, s.key(activity.Actor), data, s.ttl).Err(); err != nil {
		fallbackLogger.Warn().Err(err).Str("actor", activity.Actor).Msg("redis write failed, falling back to in-memory store")
		return s.fallback.Record(ctx, activity)
	}
	return nil
}

// Activities returns the merge of Redis-backed and any in-memory fallback
// activities recorded for actor. The fallback only ever holds entries
// written after a Redis failure, so merging is safe and order-independent.
func (s *RedisStore) Activities(ctx context.Context, actor string) ([]model.ReconActivity, error) {
	activities, err := s.readRedis(ctx, actor)
	if err != nil {
		fallbackLogger.Warn().Err(err).Str("actor", actor).Msg("redis read failed, using in-memory fallback only")
		activities = nil
	}
	fallbackActivities, _ := s.fallback.Activities(ctx, actor)
	return append(activities, fallbackActivities...), nil
}

// RecentDocIDs returns doc ids from activities newer than now-window.
func (s *RedisStore) RecentDocIDs(ctx context.Context, actor string, window time.Duration) (map[string]struct{}, error) {
	activities, err := s.Activities(ctx, actor)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-window)
	out := make(map[string]struct{})
	for _, a := range activities {
		if a.DocID != "" && a.Timestamp.After(cutoff) {
			out[a.DocID] = struct{}{}
		}
	}
	return out, nil
}

func (s *RedisStore) readRedis(ctx context.Context, actor string) ([]model.ReconActivity, error) {
	data, err := s.client.Get(ctx, s.key(actor)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var activities []model.ReconActivity
	if err := json.Unmarshal(data, &activities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recon activities: %w", err)
	}
	return activities, nil
}
