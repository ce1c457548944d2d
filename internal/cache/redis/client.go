package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/pkg/logger"
	"github.com/doc-analyzer/backend/pkg/retry"
)

const analysisPrefix = "analysis:"

type Client struct {
	client *redis.Client
}

// NewClient connects and pings, retrying the ping while the server comes up.
func NewClient(ctx context.Context, host string, port int, password string, db int) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	cfg := retry.DefaultConfig("redis-ping")
	cfg.MaxAttempts = 3
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetAnalysis stores entry as JSON under the input fingerprint.
func (c *Client) SetAnalysis(ctx context.Context, fingerprint string, entry interface{}, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	err = c.client.Set(ctx, analysisPrefix+fingerprint, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set analysis cache: %w", err)
	}

	logger.Debug("Analysis cached", zap.String("fingerprint", fingerprint), zap.Duration("ttl", ttl))
	return nil
}

// GetAnalysis decodes the cached entry into entry and reports whether one
// was found.
func (c *Client) GetAnalysis(ctx context.Context, fingerprint string, entry interface{}) (bool, error) {
	data, err := c.client.Get(ctx, analysisPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get analysis cache: %w", err)
	}

	err = json.Unmarshal(data, entry)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}

	logger.Debug("Analysis cache hit", zap.String("fingerprint", fingerprint))
	return true, nil
}

func (c *Client) Invalidate(ctx context.Context, fingerprint string) error {
	if err := c.client.Del(ctx, analysisPrefix+fingerprint).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}
	return nil
}

// InvalidateAll drops every cached analysis.
func (c *Client) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, analysisPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Analysis cache invalidated")
	return nil
}
