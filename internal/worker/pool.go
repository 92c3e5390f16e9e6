// Package worker drains the dispatch queue with a fixed pool of goroutines.
// Two independent constraints pace transmission: a global token-bucket rate
// limit on job starts, and a per-job randomized thinking/typing delay with
// presence signaling so traffic resembles human cadence.
package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/you/courier/internal/domain"
	"github.com/you/courier/internal/provider"
)

// ErrNotConnected fails a job without a transmission attempt when its tenant
// has no live, identified connection. The queue's retry policy applies.
var ErrNotConnected = errors.New("worker: session not connected")

const dequeueBlock = 2 * time.Second

// Queue is the dispatch queue surface the pool consumes.
type Queue interface {
	Dequeue(ctx context.Context, block time.Duration) (string, error)
	RetryAfter(ctx context.Context, jobID string, attempt int) error
}

// JobStore persists job and message-log terminal state.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	MarkJobSucceeded(ctx context.Context, id string) error
	MarkJobFailed(ctx context.Context, id, errMsg string) error
	IncrementJobAttempt(ctx context.Context, id string) (int, error)
	MarkLogSent(ctx context.Context, logID string) error
	MarkLogFailed(ctx context.Context, logID, errMsg string) error
	PruneJobs(ctx context.Context, keepSucceeded, keepFailed int) error
}

// Connections resolves live clients by session id.
type Connections interface {
	Lookup(sessionID string) (provider.Client, bool)
}

// Config tunes the pool.
type Config struct {
	Workers int

	// RateLimitMax job starts per RateLimitWindow, across the whole pool.
	RateLimitMax    int
	RateLimitWindow time.Duration

	// Per-job pacing: thinking delay before presence, typing delay between
	// composing and paused.
	ThinkMin, ThinkMax time.Duration
	TypeMin, TypeMax   time.Duration

	// Retention counts for terminal jobs.
	KeepSucceeded, KeepFailed int
}

type Pool struct {
	q       Queue
	store   JobStore
	conns   Connections
	limiter *rate.Limiter
	cfg     Config
	log     *zap.Logger
}

func NewPool(q Queue, store JobStore, conns Connections, cfg Config, log *zap.Logger) *Pool {
	return &Pool{
		q:       q,
		store:   store,
		conns:   conns,
		limiter: rate.NewLimiter(rate.Every(cfg.RateLimitWindow/time.Duration(cfg.RateLimitMax)), cfg.RateLimitMax),
		cfg:     cfg,
		log:     log,
	}
}

// Run blocks draining the queue with cfg.Workers goroutines until ctx is
// cancelled. Job failures never stop the pool.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error { return p.worker(ctx) })
	}
	return g.Wait()
}

func (p *Pool) worker(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		jobID, err := p.q.Dequeue(ctx, dequeueBlock)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Error("dequeue", zap.Error(err))
			continue
		}
		if jobID == "" {
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return nil
		}
		p.process(ctx, jobID)
	}
}

func (p *Pool) process(ctx context.Context, jobID string) {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		p.log.Error("load job", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	sendErr := p.send(ctx, job)
	if sendErr == nil {
		p.log.Info("job completed", zap.String("job_id", job.ID), zap.String("to", job.To))
		if err := p.store.MarkJobSucceeded(ctx, job.ID); err != nil {
			p.log.Error("mark job succeeded", zap.String("job_id", job.ID), zap.Error(err))
		}
		if err := p.store.MarkLogSent(ctx, job.LogID); err != nil {
			p.log.Error("mark log sent", zap.String("log_id", job.LogID), zap.Error(err))
		}
		p.prune(ctx)
		return
	}
	if ctx.Err() != nil {
		// Shutdown mid-job: leave the job for a retry rather than burning an
		// attempt.
		retryCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.q.RetryAfter(retryCtx, job.ID, job.Attempt)
		return
	}

	attempt, err := p.store.IncrementJobAttempt(ctx, job.ID)
	if err != nil {
		p.log.Error("increment attempt", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	if attempt < job.MaxAttempts {
		p.log.Warn("job failed, retrying",
			zap.String("job_id", job.ID), zap.Int("attempt", attempt), zap.Error(sendErr))
		if err := p.q.RetryAfter(ctx, job.ID, attempt); err != nil {
			p.log.Error("schedule retry", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	p.log.Error("job failed permanently",
		zap.String("job_id", job.ID), zap.Int("attempt", attempt), zap.Error(sendErr))
	if err := p.store.MarkJobFailed(ctx, job.ID, sendErr.Error()); err != nil {
		p.log.Error("mark job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	if err := p.store.MarkLogFailed(ctx, job.LogID, sendErr.Error()); err != nil {
		p.log.Error("mark log failed", zap.String("log_id", job.LogID), zap.Error(err))
	}
	p.prune(ctx)
}

// send resolves the tenant's live connection, applies the mandatory pacing
// sequence, and transmits.
func (p *Pool) send(ctx context.Context, job *domain.Job) error {
	client, ok := p.conns.Lookup(job.TenantID)
	if !ok || client.Identity() == "" {
		return ErrNotConnected
	}

	to := provider.NormalizeJID(job.To)

	if err := sleepRand(ctx, p.cfg.ThinkMin, p.cfg.ThinkMax); err != nil {
		return err
	}
	if err := client.SendPresence(ctx, to, provider.PresenceComposing); err != nil {
		return errors.Wrap(err, "presence composing")
	}
	if err := sleepRand(ctx, p.cfg.TypeMin, p.cfg.TypeMax); err != nil {
		return err
	}
	if err := client.SendPresence(ctx, to, provider.PresencePaused); err != nil {
		return errors.Wrap(err, "presence paused")
	}

	return errors.Wrap(client.SendText(ctx, to, job.Message), "send text")
}

func (p *Pool) prune(ctx context.Context) {
	if err := p.store.PruneJobs(ctx, p.cfg.KeepSucceeded, p.cfg.KeepFailed); err != nil {
		p.log.Error("prune jobs", zap.Error(err))
	}
}

// sleepRand sleeps a duration uniformly sampled from [min, max], honoring ctx.
func sleepRand(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min + 1)))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
