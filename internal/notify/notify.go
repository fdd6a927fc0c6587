// Package notify tells downstream consumers that fresh commit metrics are
// available.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CommitEvent announces persisted metrics for a commit
type CommitEvent struct {
	JobID      string    `json:"job_id"`
	RepoID     string    `json:"repo_id"`
	CommitHash string    `json:"commit_hash"`
	ParentHash string    `json:"parent_hash,omitempty"`
	CommitID   int64     `json:"commit_id"`
	Mode       string    `json:"mode"`
	Warnings   int       `json:"warnings"`
	At         time.Time `json:"at"`
}

// Notifier delivers events to whoever consumes them
type Notifier interface {
	Notify(ctx context.Context, event CommitEvent) error
	Close() error
}

// LogNotifier only logs events. Used when no broker is configured.
type LogNotifier struct {
	logger logrus.FieldLogger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{logger: logger.WithField("component", "notify")}
}

func (n *LogNotifier) Notify(_ context.Context, event CommitEvent) error {
	n.logger.WithFields(logrus.Fields{
		"job_id":  event.JobID,
		"repo_id": event.RepoID,
		"commit":  event.CommitHash,
	}).Info("commit metrics ready")
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// RedisNotifier publishes events as JSON on a Redis channel
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  logrus.FieldLogger
}

// NewRedisNotifier connects to addr and verifies connectivity
func NewRedisNotifier(ctx context.Context, addr, channel string, logger logrus.FieldLogger) (*RedisNotifier, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address missing")
	}
	if channel == "" {
		return nil, fmt.Errorf("redis channel missing")
	}

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	// fail fast on startup
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger = logger.WithFields(logrus.Fields{"component": "notify", "channel": channel})
	logger.WithField("addr", addr).Info("redis notifier connected")
	return &RedisNotifier{client: client, channel: channel, logger: logger}, nil
}

func (n *RedisNotifier) Notify(ctx context.Context, event CommitEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := n.client.Publish(ctx, n.channel, data).Result()
	if err != nil {
		return fmt.Errorf("redis publish failed on %s: %w", n.channel, err)
	}

	n.logger.WithFields(logrus.Fields{
		"commit":    event.CommitHash,
		"receivers": receivers,
	}).Debug("commit event published")
	return nil
}

// Close closes the Redis client connection
func (n *RedisNotifier) Close() error {
	if err := n.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}

// New returns a RedisNotifier when addr is set, else a LogNotifier
func New(ctx context.Context, addr, channel string, logger logrus.FieldLogger) (Notifier, error) {
	if addr == "" {
		return NewLogNotifier(logger), nil
	}
	return NewRedisNotifier(ctx, addr, channel, logger)
}
