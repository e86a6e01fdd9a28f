package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter retention; daily hashes expire after 400 days.
const counterTTL = 400 * 24 * time.Hour

// RedisSink stores daily counters in a redis hash per day:
// docflow:analytics:<yyyy-mm-dd> with fields pending:<dept>, completed:<dept>,
// reverted:<dept>.
type RedisSink struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSink creates a sink over an existing redis client.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client, now: time.Now}
}

// ProcessCreated increments the day's pending counter for a department.
func (s *RedisSink) ProcessCreated(ctx context.Context, departmentID string) error {
	return s.incr(ctx, "pending", departmentID)
}

// ProcessCompleted increments the day's completed counter for a department.
func (s *RedisSink) ProcessCompleted(ctx context.Context, departmentID string) error {
	return s.incr(ctx, "completed", departmentID)
}

// ProcessReverted increments the day's reverted counter for a department.
func (s *RedisSink) ProcessReverted(ctx context.Context, departmentID string) error {
	return s.incr(ctx, "reverted", departmentID)
}

func (s *RedisSink) incr(ctx context.Context, counter, departmentID string) error {
	if departmentID == "" {
		departmentID = "adhoc"
	}
	key := s.dayKey()
	field := counter + ":" + departmentID

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, field, 1)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("analytics incr %s: %w", field, err)
	}
	return nil
}

func (s *RedisSink) dayKey() string {
	return "docflow:analytics:" + s.now().UTC().Format("2006-01-02")
}

// HealthCheck verifies the redis connection.
func (s *RedisSink) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
