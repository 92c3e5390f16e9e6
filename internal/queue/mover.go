package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const moveBatch = 200

// Mover periodically promotes due retries into the ready list.
type Mover struct {
	q        *Redis
	interval time.Duration
	log      *zap.Logger
}

func NewMover(q *Redis, interval time.Duration, log *zap.Logger) *Mover {
	return &Mover{q: q, interval: interval, log: log}
}

// Run ticks until ctx is cancelled.
func (m *Mover) Run(ctx context.Context) error {
	tick := time.NewTicker(m.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-tick.C:
			if err := m.q.MoveDue(ctx, now, moveBatch); err != nil && ctx.Err() == nil {
				m.log.Error("move due retries", zap.Error(err))
			}
		}
	}
}
