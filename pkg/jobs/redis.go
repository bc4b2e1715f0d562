package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key prefixes.
const (
	keyPrefixQueue      = "queue:"      // Pending messages (sorted set by visibility time)
	keyPrefixProcessing = "processing:" // Messages being processed
	keyPrefixMessage    = "msg:"        // Message data
	keyPrefixDLQ        = "dlq:"        // Dead letter queue
)

// QueueConfig configures a Redis-backed queue.
type QueueConfig struct {
	Name              string        `yaml:"name"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	RetentionPeriod   time.Duration `yaml:"retention_period"`
	MaxRetries        int           `yaml:"max_retries"`
	PollInterval      time.Duration `yaml:"poll_interval"`
}

// DefaultQueueConfig returns the configuration for the summarization queue.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Name:              "meetings:summarize",
		VisibilityTimeout: 5 * time.Minute,
		RetentionPeriod:   24 * time.Hour,
		MaxRetries:        3,
		PollInterval:      time.Second,
	}
}

// RedisQueue implements Queue using Redis sorted sets: one set of pending
// message ids scored by visibility time, one of in-flight ids scored by
// redelivery deadline, and per-message data keys with a retention TTL.
type RedisQueue struct {
	client *redis.Client
	config QueueConfig
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(client *redis.Client, config QueueConfig) *RedisQueue {
	if config.Name == "" {
		config.Name = DefaultQueueConfig().Name
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = DefaultQueueConfig().VisibilityTimeout
	}
	if config.RetentionPeriod <= 0 {
		config.RetentionPeriod = DefaultQueueConfig().RetentionPeriod
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultQueueConfig().MaxRetries
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultQueueConfig().PollInterval
	}
	return &RedisQueue{client: client, config: config}
}

// Name returns the queue name.
func (q *RedisQueue) Name() string {
	return q.config.Name
}

// Enqueue adds a message to the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	messageID := uuid.New().String()

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	qm := &QueuedMessage{
		ID:         messageID,
		Job:        msg.JobName(),
		Message:    payload,
		RetryCount: 0,
		EnqueuedAt: time.Now(),
	}

	qmBytes, err := json.Marshal(qm)
	if err != nil {
		return fmt.Errorf("failed to marshal queued message: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.messageKey(messageID), qmBytes, q.config.RetentionPeriod)
	pipe.ZAdd(ctx, keyPrefixQueue+q.config.Name, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: messageID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	return nil
}

// Dequeue retrieves the next visible message, blocking up to timeout.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*QueuedMessage, error) {
	queueKey := keyPrefixQueue + q.config.Name
	deadline := time.Now().Add(timeout)

	for {
		now := time.Now()

		// Pop the oldest message whose visibility time has passed.
		result, err := q.client.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   fmt.Sprintf("%d", now.UnixNano()),
			Count: 1,
		}).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("failed to poll queue: %w", err)
		}

		if len(result) == 0 {
			if now.After(deadline) {
				return nil, nil
			}
			select {
			case <-time.After(q.config.PollInterval):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		messageID := result[0]
		removed, err := q.client.ZRem(ctx, queueKey, messageID).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to claim message: %w", err)
		}
		if removed == 0 {
			// Another worker claimed it first.
			continue
		}

		data, err := q.client.Get(ctx, q.messageKey(messageID)).Bytes()
		if err == redis.Nil {
			// Message data expired, skip.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get message data: %w", err)
		}

		var qm QueuedMessage
		if err := json.Unmarshal(data, &qm); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}

		// Track in-flight with a redelivery deadline.
		qm.VisibleAfter = now.Add(q.config.VisibilityTimeout)
		updated, _ := json.Marshal(qm)

		pipe := q.client.TxPipeline()
		pipe.Set(ctx, q.messageKey(messageID), updated, q.config.RetentionPeriod)
		pipe.ZAdd(ctx, keyPrefixProcessing+q.config.Name, redis.Z{
			Score:  float64(qm.VisibleAfter.UnixNano()),
			Member: messageID,
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to mark message in-flight: %w", err)
		}

		return &qm, nil
	}
}

// Ack acknowledges successful processing of a message.
func (q *RedisQueue) Ack(ctx context.Context, messageID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, keyPrefixProcessing+q.config.Name, messageID)
	pipe.Del(ctx, q.messageKey(messageID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// Nack indicates processing failure; the message is re-queued with
// exponential backoff, or dead-lettered after MaxRetries.
func (q *RedisQueue) Nack(ctx context.Context, messageID string) error {
	data, err := q.client.Get(ctx, q.messageKey(messageID)).Bytes()
	if err == redis.Nil {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}

	var qm QueuedMessage
	if err := json.Unmarshal(data, &qm); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	qm.RetryCount++
	if qm.RetryCount >= q.config.MaxRetries {
		return q.moveToDeadLetter(ctx, messageID, string(data), "max retries exceeded")
	}

	qm.VisibleAfter = time.Now().Add(backoff(qm.RetryCount))
	updated, _ := json.Marshal(qm)

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, keyPrefixProcessing+q.config.Name, messageID)
	pipe.Set(ctx, q.messageKey(messageID), updated, q.config.RetentionPeriod)
	pipe.ZAdd(ctx, keyPrefixQueue+q.config.Name, redis.Z{
		Score:  float64(qm.VisibleAfter.UnixNano()),
		Member: messageID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to nack message: %w", err)
	}
	return nil
}

// Depth returns the current queue depth.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, keyPrefixQueue+q.config.Name).Result()
}

func (q *RedisQueue) moveToDeadLetter(ctx context.Context, messageID, data, reason string) error {
	dlqEntry := map[string]any{
		"message":    data,
		"reason":     reason,
		"moved_at":   time.Now().Format(time.RFC3339),
		"queue_name": q.config.Name,
	}
	dlqData, _ := json.Marshal(dlqEntry)

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, keyPrefixProcessing+q.config.Name, messageID)
	pipe.Del(ctx, q.messageKey(messageID))
	pipe.ZAdd(ctx, keyPrefixDLQ+q.config.Name, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: string(dlqData),
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to move to DLQ: %w", err)
	}
	return nil
}

func (q *RedisQueue) messageKey(messageID string) string {
	return keyPrefixMessage + q.config.Name + ":" + messageID
}

// backoff calculates exponential backoff for retries: 30s, 60s, 120s, capped
// at 10 minutes.
func backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	d := 30 * time.Second << (retryCount - 1)
	if d > 10*time.Minute {
		d = 10 * time.Minute
	}
	return d
}
