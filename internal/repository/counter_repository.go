package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// CounterRepository tracks which students hold a course in Redis sets keyed lecture:{id}:users.
type CounterRepository struct {
	client *redis.Client
}

// NewCounterRepository constructs a counter repository. A nil client turns every call into a no-op.
func NewCounterRepository(client *redis.Client) *CounterRepository {
	return &CounterRepository{client: client}
}

func lectureUsersKey(courseID string) string {
	return "lecture:" + courseID + ":users"
}

// Associate adds the student to the course set and returns the new cardinality.
func (r *CounterRepository) Associate(ctx context.Context, courseID, studentID string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	key := lectureUsersKey(courseID)
	if err := r.client.SAdd(ctx, key, studentID).Err(); err != nil {
		return 0, fmt.Errorf("redis sadd %s: %w", key, err)
	}
	count, err := r.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard %s: %w", key, err)
	}
	return count, nil
}

// Disassociate removes the student from the course set and returns the new cardinality.
func (r *CounterRepository) Disassociate(ctx context.Context, courseID, studentID string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	key := lectureUsersKey(courseID)
	if err := r.client.SRem(ctx, key, studentID).Err(); err != nil {
		return 0, fmt.Errorf("redis srem %s: %w", key, err)
	}
	count, err := r.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard %s: %w", key, err)
	}
	return count, nil
}

// Counts returns the set cardinality for each course in one pipeline round trip.
func (r *CounterRepository) Counts(ctx context.Context, courseIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(courseIDs))
	if r.client == nil || len(courseIDs) == 0 {
		return counts, nil
	}

	cmds := make([]*redis.IntCmd, len(courseIDs))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range courseIDs {
			cmds[i] = pipe.SCard(ctx, lectureUsersKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis pipeline scard: %w", err)
	}
	for i, id := range courseIDs {
		counts[id] = cmds[i].Val()
	}
	return counts, nil
}
