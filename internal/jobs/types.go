// Package jobs defines the background tasks exchanged over asynq.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/briangreenhill/formcoach/internal/calendar"
	"github.com/briangreenhill/formcoach/internal/load"
)

const (
	TaskEvaluateLoad          = "load:evaluate"
	TaskRecalculateCompliance = "compliance:recalculate"
)

// Queues. The compliance queue is drained by the metrics backend, not by
// this service's worker.
const (
	QueueEvaluate   = "evaluate"
	QueueCompliance = "compliance"
)

type EvaluateLoadPayload struct {
	AthleteID string          `json:"athlete_id"`
	CycleTag  string          `json:"cycle_tag"`
	Snapshots []load.Snapshot `json:"snapshots"`
}

type RecalculateCompliancePayload struct {
	CycleTag    string          `json:"cycle_tag"`
	PlanVersion int64           `json:"plan_version"`
	Dates       []calendar.Date `json:"dates"`
}

func NewEvaluateLoadTask(p EvaluateLoadPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEvaluateLoad, b), nil
}

func NewRecalculateComplianceTask(p RecalculateCompliancePayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecalculateCompliance, b), nil
}
