package routes

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/briangreenhill/formcoach/internal/load"
	"github.com/briangreenhill/formcoach/internal/plan"
	"github.com/briangreenhill/formcoach/internal/presentation"
)

type snapshotsRequest struct {
	AthleteID string          `json:"athlete_id" validate:"required"`
	Snapshots []load.Snapshot `json:"snapshots" validate:"required,min=1,max=366"`
}

type alertView struct {
	load.Alert
	Display presentation.Style `json:"display"`
}

type classificationView struct {
	Status        load.FormStatus     `json:"status"`
	Zone          int                 `json:"zone"`
	Ramp          load.RampBand       `json:"ramp_band,omitempty"`
	Alerts        []alertView         `json:"alerts"`
	StatusDisplay presentation.Style  `json:"status_display"`
	RampDisplay   *presentation.Style `json:"ramp_display,omitempty"`
}

func classificationToView(c load.Classification) classificationView {
	v := classificationView{
		Status:        c.Status,
		Zone:          c.Zone,
		Ramp:          c.Ramp,
		Alerts:        make([]alertView, 0, len(c.Alerts)),
		StatusDisplay: presentation.ForStatus(c.Status),
	}
	if c.Ramp != "" {
		st := presentation.ForRamp(c.Ramp)
		v.RampDisplay = &st
	}
	for _, a := range c.Alerts {
		v.Alerts = append(v.Alerts, alertView{Alert: a, Display: presentation.ForSeverity(a.Severity)})
	}
	return v
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var snap load.Snapshot
	if err := decode(r, &snap); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, classificationToView(s.Classifier.Classify(snap)))
}

// handleSnapshots queues an evaluation, or runs it inline when no queue is
// configured.
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	var body snapshotsRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	for i, snap := range body.Snapshots {
		if snap.Date.IsZero() {
			writeError(w, r, &plan.ValidationError{Field: fmt.Sprintf("snapshots[%d].date", i), Reason: "required"})
			return
		}
	}
	cycleTag := chi.URLParam(r, "cycleTag")
	if _, err := s.Plans.Get(r.Context(), cycleTag); err != nil {
		writeError(w, r, err)
		return
	}

	if s.Queue != nil {
		id, err := s.Queue.EnqueueEvaluation(r.Context(), body.AthleteID, cycleTag, body.Snapshots)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusAccepted, map[string]string{"task_id": id})
		return
	}

	ev, err := s.Engine.Evaluate(r.Context(), body.AthleteID, cycleTag, body.Snapshots)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := map[string]any{
		"classification":  classificationToView(ev.Classification),
		"overload_streak": ev.OverloadStreak,
		"opened":          ev.Opened,
	}
	if ev.Proposal != nil {
		out["proposal_id"] = ev.Proposal.ID
	}
	writeJSON(w, r, http.StatusOK, out)
}
