// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/briangreenhill/formcoach/internal/config"
	"github.com/briangreenhill/formcoach/internal/email"
	"github.com/briangreenhill/formcoach/internal/http/routes"
	"github.com/briangreenhill/formcoach/internal/jobs"
	"github.com/briangreenhill/formcoach/internal/load"
	"github.com/briangreenhill/formcoach/internal/logging"
	"github.com/briangreenhill/formcoach/internal/metrics"
	"github.com/briangreenhill/formcoach/internal/plan"
	"github.com/briangreenhill/formcoach/internal/proposal"
	"github.com/briangreenhill/formcoach/internal/store/memory"
	"github.com/briangreenhill/formcoach/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	thresholds, err := cfg.Thresholds()
	if err != nil {
		return err
	}
	rec := metrics.New()
	classifier := load.NewClassifier(load.NewCatalog(), thresholds)

	var (
		plans     plan.Store
		proposals proposal.Repository
		ping      func(context.Context) error
		queue     *jobs.Queue
	)
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		plans, proposals, ping = postgres.NewPlanStore(pool), postgres.NewProposalStore(pool), pool.Ping

		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("closing asynq client")
			}
		}()
		queue = jobs.NewQueue(client)
	default:
		logger.Warn().Msg("using in-memory store, evaluations run inline and state is lost on exit")
		plans, proposals = memory.NewPlanStore(), memory.NewProposalStore()
	}

	var sender email.Sender = email.StdoutSender{Log: logger}
	if cfg.HasSMTP() {
		sender = email.NewSMTPSender(cfg.SMTP.Addr, cfg.SMTP.From)
	}

	moverOpts := []plan.MoverOption{plan.WithBlockOnHigh(cfg.Move.BlockOnHigh), plan.WithMoveMetrics(rec)}
	if queue != nil {
		moverOpts = append(moverOpts, plan.WithRecalculator(queue))
	}
	opts := routes.ServerOptions{
		Plans:      plans,
		Mover:      plan.NewMover(plans, plan.NewValidator(), logger, moverOpts...),
		Classifier: classifier,
		Engine: proposal.NewEngine(classifier, plans, proposals, cfg.Proposal.Policy(), logger,
			proposal.WithMetrics(rec),
			proposal.WithNotifier(email.NewProposalNotifier(sender, cfg.SMTP.CoachInbox)),
		),
		Metrics: rec,
		Ping:    ping,
		Log:     logger,
	}
	// a nil *jobs.Queue must not become a non-nil interface
	if queue != nil {
		opts.Queue = queue
	}
	s := routes.New(opts)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Str("store", cfg.Store).Msg("starting api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info().Msg("shutting down api")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
