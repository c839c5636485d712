package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/okian/meeple/internal/domain/types"
)

type scoreParams struct {
	UserID string `validate:"required,max=128"`
	GameID int64  `validate:"gt=0"`
}

// ScoreHandler handles single-game score requests.
type ScoreHandler struct {
	deps     Dependencies
	validate *validator.Validate
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps Dependencies, v *validator.Validate) *ScoreHandler {
	return &ScoreHandler{deps: deps, validate: v}
}

// HandleScore handles GET /users/{userID}/score/{gameID}.
func (h *ScoreHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	gameID, err := strconv.ParseInt(chi.URLParam(r, "gameID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: gameID must be an integer", ErrBadRequest))
		return
	}
	p := scoreParams{UserID: chi.URLParam(r, "userID"), GameID: gameID}
	if err := h.validate.Struct(p); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	hint, err := parseTierHint(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	res, err := h.deps.ScoreForUser(r.Context(), p.UserID, p.GameID, hint)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewScore(res))
}
