package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue hands off newly created request identifiers from the submission path
// to the processing worker pool. Delivery is at-least-once; consumers must
// tolerate duplicate dequeues.
type Queue interface {
	Enqueue(ctx context.Context, id string) error
	// Dequeue blocks up to the configured poll timeout. ok is false when the
	// queue was empty for the whole window.
	Dequeue(ctx context.Context) (id string, ok bool, err error)
}

type redisQueue struct {
	client      *redis.Client
	key         string
	pollTimeout time.Duration
}

// NewRedisQueue builds a Redis list-backed queue (LPUSH producer, BRPOP
// consumer).
func NewRedisQueue(client *redis.Client, key string, pollTimeout time.Duration) Queue {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &redisQueue{client: client, key: key, pollTimeout: pollTimeout}
}

func (q *redisQueue) Enqueue(ctx context.Context, id string) error {
	return q.client.LPush(ctx, q.key, id).Err()
}

func (q *redisQueue) Dequeue(ctx context.Context) (string, bool, error) {
	res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return "", false, nil
	}
	return res[1], true, nil
}
