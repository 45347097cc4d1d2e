package routes

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/formcoach/internal/plan"
	"github.com/briangreenhill/formcoach/internal/proposal"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code           string   `json:"code"`
	Message        string   `json:"message"`
	Field          string   `json:"field,omitempty"`
	CurrentVersion int64    `json:"current_version,omitempty"`
	Codes          []string `json:"codes,omitempty"`
}

// statusFor is the single place domain errors become HTTP statuses.
func statusFor(err error) (int, errorDetail) {
	d := errorDetail{Message: err.Error()}
	var (
		ve *plan.ValidationError
		ce *plan.ConflictError
		be *plan.BlockedError
	)
	switch {
	case errors.As(err, &ve):
		d.Code, d.Field, d.Message = "validation_failed", ve.Field, ve.Reason
		return http.StatusBadRequest, d
	case errors.Is(err, plan.ErrNotFound):
		d.Code = "plan_not_found"
		return http.StatusNotFound, d
	case errors.Is(err, proposal.ErrNotFound):
		d.Code = "proposal_not_found"
		return http.StatusNotFound, d
	case errors.As(err, &ce):
		d.Code, d.CurrentVersion = "version_conflict", ce.Current
		return http.StatusConflict, d
	case errors.As(err, &be):
		d.Code, d.Codes = "blocked", be.Codes
		return http.StatusUnprocessableEntity, d
	case errors.Is(err, proposal.ErrExpired):
		d.Code = "proposal_expired"
		return http.StatusConflict, d
	case errors.Is(err, proposal.ErrInvalidTransition):
		d.Code = "invalid_transition"
		return http.StatusConflict, d
	case errors.Is(err, proposal.ErrApplying):
		d.Code = "confirm_in_progress"
		return http.StatusConflict, d
	case errors.Is(err, proposal.ErrOpenExists):
		d.Code = "open_proposal_exists"
		return http.StatusConflict, d
	case errors.Is(err, proposal.ErrStale):
		d.Code = "concurrent_update"
		return http.StatusConflict, d
	}
	return http.StatusInternalServerError, errorDetail{Code: "internal", Message: "internal server error"}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, d := statusFor(err)
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}
	writeJSON(w, r, status, errorBody{Error: d})
}
