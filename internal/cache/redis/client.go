package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/complymatch/backend/pkg/logger"
)

// Client caches engine output keyed by (assessment, answer version). A new
// answer version changes every key, so stale entries simply age out; explicit
// invalidation only exists for full assessment resets.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func scoreKey(assessmentID string, version int64) string {
	return fmt.Sprintf("score:%s:%d", assessmentID, version)
}

func matchesKey(assessmentID string, version int64, threshold float64, limit int) string {
	return fmt.Sprintf("matches:%s:%d:%.3f:%d", assessmentID, version, threshold, limit)
}

func matrixKey(assessmentID string, version int64) string {
	return fmt.Sprintf("matrix:%s:%d", assessmentID, version)
}

func (c *Client) SetScoreTree(ctx context.Context, assessmentID string, version int64, tree interface{}) error {
	return c.set(ctx, scoreKey(assessmentID, version), tree)
}

func (c *Client) GetScoreTree(ctx context.Context, assessmentID string, version int64, tree interface{}) (bool, error) {
	return c.get(ctx, scoreKey(assessmentID, version), tree)
}

func (c *Client) SetMatches(ctx context.Context, assessmentID string, version int64, threshold float64, limit int, matches interface{}) error {
	return c.set(ctx, matchesKey(assessmentID, version, threshold, limit), matches)
}

func (c *Client) GetMatches(ctx context.Context, assessmentID string, version int64, threshold float64, limit int, matches interface{}) (bool, error) {
	return c.get(ctx, matchesKey(assessmentID, version, threshold, limit), matches)
}

func (c *Client) SetMatrix(ctx context.Context, assessmentID string, version int64, matrix interface{}) error {
	return c.set(ctx, matrixKey(assessmentID, version), matrix)
}

func (c *Client) GetMatrix(ctx context.Context, assessmentID string, version int64, matrix interface{}) (bool, error) {
	return c.get(ctx, matrixKey(assessmentID, version), matrix)
}

func (c *Client) set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	err = c.client.Set(ctx, key, data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set cache key: %w", err)
	}

	logger.Debug("Cache set", zap.String("key", key))
	return nil
}

func (c *Client) get(ctx context.Context, key string, value interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache key: %w", err)
	}

	err = json.Unmarshal(data, value)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	logger.Debug("Cache hit", zap.String("key", key))
	return true, nil
}

// InvalidateAssessment removes every cached artifact for one assessment,
// regardless of version.
func (c *Client) InvalidateAssessment(ctx context.Context, assessmentID string) error {
	for _, prefix := range []string{"score", "matches", "matrix"} {
		iter := c.client.Scan(ctx, 0, fmt.Sprintf("%s:%s:*", prefix, assessmentID), 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				logger.Warn("Failed to delete cache key", zap.Error(err))
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to iterate cache keys: %w", err)
		}
	}

	logger.Info("Assessment cache invalidated", zap.String("assessment_id", assessmentID))
	return nil
}
