package routes

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/briangreenhill/formcoach/internal/plan"
)

type moveRequest struct {
	SourceDate  string `json:"source_date" validate:"required"`
	TargetDate  string `json:"target_date" validate:"required"`
	SessionID   string `json:"session_id" validate:"omitempty,max=128"`
	PlanVersion *int64 `json:"plan_version" validate:"omitempty,min=1"`
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	p, err := s.Plans.Get(r.Context(), chi.URLParam(r, "cycleTag"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(p.Version))
	writeJSON(w, r, http.StatusOK, p)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.Plans.History(r.Context(), chi.URLParam(r, "cycleTag"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h)
}

// handleMove takes the caller's plan version from If-Match, falling back
// to plan_version in the body. Neither means "whatever is current".
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var body moveRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := plan.ParseMoveRequest(body.SourceDate, body.TargetDate, body.SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	known, err := knownVersion(r, body.PlanVersion)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := s.Mover.Move(r.Context(), chi.URLParam(r, "cycleTag"), req, known)
	if resp == nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(resp.PlanVersion))
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, resp)
	case errors.Is(err, plan.ErrVersionConflict):
		writeJSON(w, r, http.StatusConflict, resp)
	case errors.Is(err, plan.ErrBlocked):
		writeJSON(w, r, http.StatusUnprocessableEntity, resp)
	default:
		writeError(w, r, err)
	}
}

func knownVersion(r *http.Request, fromBody *int64) (int64, error) {
	if h := strings.TrimSpace(r.Header.Get("If-Match")); h != "" {
		v, err := strconv.ParseInt(strings.Trim(strings.TrimPrefix(h, "W/"), `"`), 10, 64)
		if err != nil || v < 1 {
			return 0, &plan.ValidationError{Field: "If-Match", Reason: "must be a plan version"}
		}
		return v, nil
	}
	if fromBody != nil {
		return *fromBody, nil
	}
	return 0, nil
}

func etag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}
