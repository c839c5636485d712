package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/internal/domain/types"
)

const maxRetrainBody = 4 << 10

// retrainRequest mirrors the OpenAPI schema for POST /retrain. maxAgeMs is
// capped at ten years so the conversion to time.Duration cannot overflow.
type retrainRequest struct {
	Tier     string `json:"tier"     validate:"omitempty,max=32"`
	MaxAgeMS *int64 `json:"maxAgeMs" validate:"omitempty,gte=0,lte=315360000000"`
}

type retrainResponse struct {
	Tickets []types.RetrainTicket `json:"tickets"`
}

// RetrainHandler queues retrain requests.
type RetrainHandler struct {
	deps          Dependencies
	validate      *validator.Validate
	defaultMaxAge time.Duration
}

// NewRetrainHandler creates a new retrain handler.
func NewRetrainHandler(deps Dependencies, v *validator.Validate, defaultMaxAge time.Duration) *RetrainHandler {
	return &RetrainHandler{deps: deps, validate: v, defaultMaxAge: defaultMaxAge}
}

// HandleRetrain handles POST /retrain. An empty body queues every trained
// tier with the default max age.
func (h *RetrainHandler) HandleRetrain(w http.ResponseWriter, r *http.Request) {
	var req retrainRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRetrainBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid JSON body", ErrBadRequest))
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	var tier *model.Tier
	if req.Tier != "" {
		t, err := model.ParseTier(req.Tier)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		tier = &t
	}
	maxAge := h.defaultMaxAge
	if req.MaxAgeMS != nil {
		maxAge = time.Duration(*req.MaxAgeMS) * time.Millisecond
	}

	tickets, err := h.deps.RequestRetrain(r.Context(), tier, maxAge)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, retrainResponse{Tickets: tickets})
}
