// Package queue backs the outbound dispatch queue with redis: a ready LIST
// drained by workers and a delay ZSET holding retries until their backoff
// expires. Job bodies live in postgres; only ids move through redis.
package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
)

const (
	readyKey = "dispatch:ready"
	delayKey = "dispatch:delay"
)

type Redis struct {
	rdb         *r.Client
	baseBackoff time.Duration
}

// New returns a queue with the given base retry backoff; attempt n is retried
// after baseBackoff * 2^n.
func New(rdb *r.Client, baseBackoff time.Duration) *Redis {
	return &Redis{rdb: rdb, baseBackoff: baseBackoff}
}

// Enqueue appends a job id and returns the backlog depth after the push.
func (q *Redis) Enqueue(ctx context.Context, jobID string) (int64, error) {
	depth, err := q.rdb.LPush(ctx, readyKey, jobID).Result()
	return depth, errors.Wrap(err, "enqueue")
}

// Dequeue blocks up to the given duration for the next job id. Returns "" on
// timeout.
func (q *Redis) Dequeue(ctx context.Context, block time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, block, readyKey).Result()
	if errors.Is(err, r.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "dequeue")
	}
	if len(res) == 2 {
		return res[1], nil
	}
	return "", nil
}

// RetryAfter schedules a re-attempt with exponential backoff. attempt is the
// number of attempts already made.
func (q *Redis) RetryAfter(ctx context.Context, jobID string, attempt int) error {
	due := time.Now().Add(q.baseBackoff << attempt).UnixMilli()
	err := q.rdb.ZAdd(ctx, delayKey, r.Z{Score: float64(due), Member: jobID}).Err()
	return errors.Wrap(err, "retry after")
}

// MoveDue promotes up to batch delayed ids whose backoff has expired into the
// ready list.
func (q *Redis) MoveDue(ctx context.Context, now time.Time, batch int64) error {
	ids, err := q.rdb.ZRangeByScore(ctx, delayKey, &r.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10), Offset: 0, Count: batch,
	}).Result()
	if err != nil || len(ids) == 0 {
		return errors.Wrap(err, "move due")
	}

	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.LPush(ctx, readyKey, id)
		pipe.ZRem(ctx, delayKey, id)
	}
	_, err = pipe.Exec(ctx)
	return errors.Wrap(err, "move due")
}

// Depth returns the current ready backlog.
func (q *Redis) Depth(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, readyKey).Result()
	return n, errors.Wrap(err, "depth")
}
