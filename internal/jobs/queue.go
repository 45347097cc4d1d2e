package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/briangreenhill/formcoach/internal/calendar"
	"github.com/briangreenhill/formcoach/internal/load"
)

// Enqueuer is the part of *asynq.Client the queue needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue publishes tasks. It satisfies plan.Recalculator.
type Queue struct {
	client Enqueuer
}

func NewQueue(client Enqueuer) *Queue {
	return &Queue{client: client}
}

// EnqueueEvaluation schedules an asynchronous load evaluation and returns the task id.
func (q *Queue) EnqueueEvaluation(ctx context.Context, athleteID, cycleTag string, snapshots []load.Snapshot) (string, error) {
	task, err := NewEvaluateLoadTask(EvaluateLoadPayload{AthleteID: athleteID, CycleTag: cycleTag, Snapshots: snapshots})
	if err != nil {
		return "", err
	}
	info, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueEvaluate),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", TaskEvaluateLoad, err)
	}
	return info.ID, nil
}

// EnqueueRecalculation is idempotent per plan version: a second request
// for the same version is dropped by asynq's task id uniqueness.
func (q *Queue) EnqueueRecalculation(ctx context.Context, cycleTag string, version int64, dates []calendar.Date) error {
	task, err := NewRecalculateComplianceTask(RecalculateCompliancePayload{CycleTag: cycleTag, PlanVersion: version, Dates: dates})
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueCompliance),
		asynq.TaskID(fmt.Sprintf("%s:%s:v%d", TaskRecalculateCompliance, cycleTag, version)),
		asynq.MaxRetry(10),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskRecalculateCompliance, err)
	}
	return nil
}
