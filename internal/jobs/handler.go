package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/formcoach/internal/load"
	"github.com/briangreenhill/formcoach/internal/plan"
	"github.com/briangreenhill/formcoach/internal/proposal"
)

type Evaluator interface {
	Evaluate(ctx context.Context, athleteID, cycleTag string, snapshots []load.Snapshot) (*proposal.Evaluation, error)
}

type TaskMetrics interface {
	TaskProcessed(taskType, outcome string)
}

// Handler runs load:evaluate tasks on the worker.
type Handler struct {
	eval    Evaluator
	log     zerolog.Logger
	metrics TaskMetrics
}

func NewHandler(eval Evaluator, log zerolog.Logger, metrics TaskMetrics) *Handler {
	return &Handler{eval: eval, log: log, metrics: metrics}
}

func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskEvaluateLoad, h.HandleEvaluateLoad)
}

// HandleEvaluateLoad returns an error wrapping asynq.SkipRetry for tasks that
// can never succeed: bad payloads, unknown cycles and invalid input.
func (h *Handler) HandleEvaluateLoad(ctx context.Context, t *asynq.Task) error {
	var p EvaluateLoadPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.done("bad_payload")
		return fmt.Errorf("decoding %s payload: %v: %w", TaskEvaluateLoad, err, asynq.SkipRetry)
	}
	log := h.log.With().Str("athlete", p.AthleteID).Str("cycle", p.CycleTag).Logger()
	start := time.Now()

	ev, err := h.eval.Evaluate(ctx, p.AthleteID, p.CycleTag, p.Snapshots)
	if err != nil {
		var ve *plan.ValidationError
		if errors.As(err, &ve) || errors.Is(err, plan.ErrNotFound) {
			log.Warn().Err(err).Msg("dropping evaluation")
			h.done("dropped")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("evaluation failed, will retry")
		h.done("error")
		return err
	}

	e := log.Info().Str("status", string(ev.Classification.Status)).Int("streak", ev.OverloadStreak).Dur("duration", time.Since(start))
	if ev.Proposal != nil {
		e = e.Str("proposal", ev.Proposal.ID).Bool("opened", ev.Opened)
	}
	e.Msg("load evaluated")
	h.done("ok")
	return nil
}

func (h *Handler) done(outcome string) {
	if h.metrics != nil {
		h.metrics.TaskProcessed(TaskEvaluateLoad, outcome)
	}
}
