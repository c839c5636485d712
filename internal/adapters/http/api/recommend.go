package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/okian/meeple/internal/domain/types"
)

const maxRecommendLimit = 100

type recommendParams struct {
	UserID string `validate:"required,max=128"`
	Limit  int    `validate:"gte=0,lte=100"`
}

// RecommendHandler handles ranked recommendation requests.
type RecommendHandler struct {
	deps     Dependencies
	validate *validator.Validate
}

// NewRecommendHandler creates a new recommendation handler.
func NewRecommendHandler(deps Dependencies, v *validator.Validate) *RecommendHandler {
	return &RecommendHandler{deps: deps, validate: v}
}

// HandleRecommend handles GET /users/{userID}/recommendations?limit=&tier=.
func (h *RecommendHandler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	p := recommendParams{UserID: chi.URLParam(r, "userID")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: limit must be an integer", ErrBadRequest))
			return
		}
		p.Limit = n
	}
	if err := h.validate.Struct(p); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Errorf("%w: limit must be between 0 and %d: %w", ErrBadRequest, maxRecommendLimit, err))
		return
	}
	hint, err := parseTierHint(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	results, err := h.deps.Recommend(r.Context(), p.UserID, p.Limit, hint)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := types.Recommendations{UserID: p.UserID, Items: make([]types.Score, 0, len(results))}
	for _, res := range results {
		out.Items = append(out.Items, types.NewScore(res))
	}
	writeJSON(w, http.StatusOK, out)
}
