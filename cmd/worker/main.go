package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/briangreenhill/formcoach/internal/config"
	"github.com/briangreenhill/formcoach/internal/email"
	"github.com/briangreenhill/formcoach/internal/jobs"
	"github.com/briangreenhill/formcoach/internal/load"
	"github.com/briangreenhill/formcoach/internal/logging"
	"github.com/briangreenhill/formcoach/internal/metrics"
	"github.com/briangreenhill/formcoach/internal/proposal"
	"github.com/briangreenhill/formcoach/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat).With().Str("service", "worker").Logger()
	if cfg.Store != config.StorePostgres {
		logger.Fatal().Str("store", cfg.Store).Msg("the worker needs STORE=postgres to share state with the api")
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	thresholds, err := cfg.Thresholds()
	if err != nil {
		return err
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}

	rec := metrics.New()
	var sender email.Sender = email.StdoutSender{Log: logger}
	if cfg.HasSMTP() {
		sender = email.NewSMTPSender(cfg.SMTP.Addr, cfg.SMTP.From)
	}
	classifier := load.NewClassifier(load.NewCatalog(), thresholds)
	engine := proposal.NewEngine(classifier, postgres.NewPlanStore(pool), postgres.NewProposalStore(pool), cfg.Proposal.Policy(), logger,
		proposal.WithMetrics(rec),
		proposal.WithNotifier(email.NewProposalNotifier(sender, cfg.SMTP.CoachInbox)),
	)

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency:     cfg.Worker.Concurrency,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          jobs.NewLogger(logger),
		Queues: map[string]int{
			jobs.QueueEvaluate: 10,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, t *asynq.Task, err error) {
			logger.Warn().Err(err).Str("task", t.Type()).Msg("task failed")
		}),
	})
	mux := asynq.NewServeMux()
	jobs.NewHandler(engine, logger, rec).Register(mux)

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", rec.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	admin := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	if err := srv.Start(mux); err != nil {
		return err
	}
	logger.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("worker running")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down worker")
		srv.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return admin.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
