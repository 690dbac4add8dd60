package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores preferences in a Redis hash so several dashboards can share
// one profile.
type Redis struct {
	client *redis.Client
	hash   string
}

// OpenRedis parses url, connects, and pings with a short timeout.
func OpenRedis(ctx context.Context, url, namespace string) (*Redis, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("prefs: redis url is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("prefs: invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("prefs: redis ping: %w", err)
	}
	if strings.TrimSpace(namespace) == "" {
		namespace = "pulseview"
	}
	return &Redis{client: client, hash: namespace + ":prefs"}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("prefs: redis get: %w", err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, r.hash, key, value).Err(); err != nil {
		return fmt.Errorf("prefs: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
