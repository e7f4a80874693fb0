// Package repositories provides persistence for configured rate limit rules.
package repositories

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/automation-platform/execution-core/internal/domain"
	"github.com/automation-platform/execution-core/internal/infrastructure/config"
)

// RedisRuleRepository stores rate limit rule definitions in Redis. Only rule
// definitions are persisted; window state is always rebuilt in memory.
type RedisRuleRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisRuleRepository connects to Redis and verifies the connection.
func NewRedisRuleRepository(cfg *config.RedisConfig, logger *slog.Logger) (*RedisRuleRepository, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		}
	}

	opts.DB = cfg.DB
	opts.Password = cfg.Password
	opts.DialTimeout = cfg.ConnectTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.MaxRetries = cfg.MaxRetries
	opts.PoolSize = cfg.PoolSize

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("connected to Redis",
		slog.String("url", sanitizeURL(cfg.URL)),
		slog.Int("db", cfg.DB),
		slog.Bool("tls_enabled", cfg.TLSEnabled))

	return &RedisRuleRepository{client: client, logger: logger}, nil
}

// Save stores a rule under its pattern and indexes the pattern.
func (r *RedisRuleRepository) Save(ctx context.Context, pattern string, rule domain.RateLimitRule) error {
	data, err := encodeRule(rule)
	if err != nil {
		return fmt.Errorf("failed to serialize rule: %w", err)
	}

	key := ruleKey(pattern)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		r.logger.ErrorContext(ctx, "failed to save rule to Redis",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to save rule to Redis: %w", err)
	}

	if err := r.client.SAdd(ctx, ruleIndexKey, pattern).Err(); err != nil {
		r.logger.WarnContext(ctx, "failed to index rule pattern",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()))
	}

	r.logger.DebugContext(ctx, "rule saved",
		slog.String("pattern", pattern),
		slog.String("key", key))
	return nil
}

// Get retrieves the rule stored for an exact pattern.
func (r *RedisRuleRepository) Get(ctx context.Context, pattern string) (domain.RateLimitRule, bool, error) {
	data, err := r.client.Get(ctx, ruleKey(pattern)).Result()
	if err != nil {
		if err == redis.Nil {
			return domain.RateLimitRule{}, false, nil
		}
		return domain.RateLimitRule{}, false, fmt.Errorf("failed to get rule from Redis: %w", err)
	}

	rule, err := decodeRule(data)
	if err != nil {
		return domain.RateLimitRule{}, false, fmt.Errorf("failed to deserialize rule: %w", err)
	}
	return rule, true, nil
}

// Delete removes a rule and its index entry.
func (r *RedisRuleRepository) Delete(ctx context.Context, pattern string) error {
	if err := r.client.Del(ctx, ruleKey(pattern)).Err(); err != nil {
		return fmt.Errorf("failed to delete rule from Redis: %w", err)
	}

	if err := r.client.SRem(ctx, ruleIndexKey, pattern).Err(); err != nil {
		r.logger.WarnContext(ctx, "failed to remove rule from index",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()))
	}
	return nil
}

// List returns all stored rules keyed by pattern. Entries deleted between
// indexing and retrieval are skipped.
func (r *RedisRuleRepository) List(ctx context.Context) (map[string]domain.RateLimitRule, error) {
	patterns, err := r.client.SMembers(ctx, ruleIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rule patterns from Redis: %w", err)
	}

	rules := make(map[string]domain.RateLimitRule, len(patterns))
	if len(patterns) == 0 {
		return rules, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(patterns))
	for i, pattern := range patterns {
		cmds[i] = pipe.Get(ctx, ruleKey(pattern))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get rules from Redis: %w", err)
	}

	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			r.logger.WarnContext(ctx, "failed to read stored rule",
				slog.String("pattern", patterns[i]),
				slog.String("error", err.Error()))
			continue
		}

		rule, err := decodeRule(data)
		if err != nil {
			r.logger.WarnContext(ctx, "skipping undecodable stored rule",
				slog.String("pattern", patterns[i]),
				slog.String("error", err.Error()))
			continue
		}
		rules[patterns[i]] = rule
	}

	r.logger.DebugContext(ctx, "rules listed", slog.Int("count", len(rules)))
	return rules, nil
}

// Ping checks Redis connectivity.
func (r *RedisRuleRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisRuleRepository) Close() error {
	return r.client.Close()
}

const ruleIndexKey = "execcore:limits"

func ruleKey(pattern string) string {
	return fmt.Sprintf("execcore:limit:%s", pattern)
}

// sanitizeURL removes credentials from a URL for logging.
func sanitizeURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) == 2 {
			return "redis://***@" + parts[1]
		}
	}
	return url
}
