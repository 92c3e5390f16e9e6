package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/you/courier/internal/config"
	"github.com/you/courier/internal/credstore"
	"github.com/you/courier/internal/eventbus"
	"github.com/you/courier/internal/httpapi"
	"github.com/you/courier/internal/provider"
	"github.com/you/courier/internal/provider/loopback"
	"github.com/you/courier/internal/queue"
	"github.com/you/courier/internal/session"
	"github.com/you/courier/internal/storage"
	"github.com/you/courier/internal/worker"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.AppEnv)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres pool", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		logger.Fatal("postgres ping", zap.Error(err))
	}

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis ping", zap.Error(err))
	}

	store := storage.New(db)
	creds := credstore.New(db)
	bus := eventbus.New()
	registry := session.NewRegistry()

	var dialer provider.Dialer
	switch cfg.ProviderDriver {
	case "loopback":
		dialer = loopback.NewDialer(logger)
	default:
		logger.Fatal("unknown provider driver", zap.String("driver", cfg.ProviderDriver))
	}

	manager := session.NewManager(dialer, creds, store, registry, bus, logger)
	q := queue.New(rdb, cfg.QueueBackoffDelay())
	mover := queue.NewMover(q, cfg.QueueMoveInterval, logger)
	pool := worker.NewPool(q, store, registry, worker.Config{
		Workers:         cfg.WorkerCount,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow(),
		ThinkMin:        cfg.DelayMin(),
		ThinkMax:        cfg.DelayMax(),
		TypeMin:         cfg.TypingMin(),
		TypeMax:         cfg.TypingMax(),
		KeepSucceeded:   cfg.QueueKeepComplete,
		KeepFailed:      cfg.QueueKeepFailed,
	}, logger)

	api := httpapi.New(store, q, manager, bus, httpapi.Options{
		SigningKey:  []byte(cfg.JWTSigningKey),
		TokenTTL:    cfg.AdminTokenTTL,
		MaxAttempts: cfg.QueueAttempts,
	}, logger)

	resumeSessions(ctx, store, manager, logger)

	srv := &http.Server{Addr: cfg.APIAddr, Handler: api.Routes()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return mover.Run(gctx) })
	g.Go(func() error {
		logger.Info("api listening", zap.String("addr", cfg.APIAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("run", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(appEnv string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if appEnv == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

// resumeSessions restarts every persisted session so connections survive a
// process restart.
func resumeSessions(ctx context.Context, store *storage.Store, manager *session.Manager, logger *zap.Logger) {
	ids, err := store.ListSessionIDs(ctx)
	if err != nil {
		logger.Fatal("list sessions", zap.Error(err))
	}
	logger.Info("resuming sessions", zap.Int("count", len(ids)))
	for _, id := range ids {
		if err := manager.Start(ctx, id); err != nil {
			logger.Error("resume session", zap.String("session_id", id), zap.Error(err))
		}
	}
}
