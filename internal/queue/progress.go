/**
 * Progress Publisher for DocIntake Worker
 *
 * Publishes per-job progress events on a Redis channel so the API can
 * stream them to clients over WebSocket. Publishing is best effort: a
 * dropped event never fails the job.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProgressEvent is the wire format for a progress update
type ProgressEvent struct {
	Event     string `json:"event"`
	JobID     string `json:"jobId"`
	Stage     string `json:"stage"`
	Percent   int    `json:"percent"`
	Timestamp string `json:"timestamp"`
}

// ProgressPublisher publishes job progress events over Redis pub/sub
type ProgressPublisher struct {
	client  *redis.Client
	channel string
}

// NewProgressPublisher creates a publisher on the given channel
func NewProgressPublisher(redisURL, channel string) (*ProgressPublisher, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("channel is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &ProgressPublisher{
		client:  client,
		channel: channel,
	}, nil
}

// Publish emits a progress event. Errors are logged, not returned.
func (p *ProgressPublisher) Publish(ctx context.Context, jobID, stage string, percent int) {
	event := &ProgressEvent{
		Event:     "job:progress",
		JobID:     jobID,
		Stage:     stage,
		Percent:   percent,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Job %s] Warning: Failed to marshal progress event: %v", jobID, err)
		return
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		log.Printf("[Job %s] Warning: Failed to publish progress event: %v", jobID, err)
	}
}

// Close releases the Redis connection
func (p *ProgressPublisher) Close() error {
	return p.client.Close()
}
