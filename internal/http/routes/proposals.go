package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/briangreenhill/formcoach/internal/presentation"
	"github.com/briangreenhill/formcoach/internal/proposal"
)

type proposalView struct {
	*proposal.Proposal
	IsUrgent     bool               `json:"is_urgent"`
	StageDisplay presentation.Style `json:"stage_display"`
	AlertDisplay presentation.Style `json:"alert_display"`
}

type pendingView struct {
	Proposals    []proposalView `json:"proposals"`
	MostUrgentID *string        `json:"most_urgent_id"`
}

type lockView struct {
	Proposal proposalView      `json:"proposal"`
	Summary  *proposal.Summary `json:"summary"`
}

type selectRequest struct {
	OptionID string `json:"option_id" validate:"required"`
}

type confirmRequest struct {
	PlanVersion int64 `json:"plan_version" validate:"required,min=1"`
}

func (s *Server) view(p *proposal.Proposal, now time.Time) proposalView {
	return proposalView{
		Proposal:     p,
		IsUrgent:     !p.Stage.Terminal() && p.IsUrgent(now, s.Engine.Policy().UrgentWithin),
		StageDisplay: presentation.ForStage(p.Stage),
		AlertDisplay: presentation.ForSeverity(p.AlertLevel),
	}
}

func (s *Server) handlePendingProposals(w http.ResponseWriter, r *http.Request) {
	ps, err := s.Engine.Pending(r.Context(), chi.URLParam(r, "cycleTag"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := s.Engine.Now()
	out := pendingView{Proposals: make([]proposalView, 0, len(ps))}
	for _, p := range ps {
		out.Proposals = append(out.Proposals, s.view(p, now))
	}
	if top := proposal.MostUrgent(ps, now, s.Engine.Policy().UrgentWithin); top != nil {
		out.MostUrgentID = &top.ID
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.Engine.Get(r.Context(), chi.URLParam(r, "proposalID"))
	s.respondProposal(w, r, p, err)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var body selectRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.Engine.Select(r.Context(), chi.URLParam(r, "proposalID"), body.OptionID)
	s.respondProposal(w, r, p, err)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	p, sum, err := s.Engine.Lock(r.Context(), chi.URLParam(r, "proposalID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, lockView{Proposal: s.view(p, s.Engine.Now()), Summary: sum})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var body confirmRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.Engine.Confirm(r.Context(), chi.URLParam(r, "proposalID"), body.PlanVersion)
	s.respondProposal(w, r, p, err)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	p, err := s.Engine.Cancel(r.Context(), chi.URLParam(r, "proposalID"))
	s.respondProposal(w, r, p, err)
}

func (s *Server) respondProposal(w http.ResponseWriter, r *http.Request, p *proposal.Proposal, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.view(p, s.Engine.Now()))
}
