package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/trendhunter/internal/domain/types"
)

// PositionsDependencies exposes the decision engine state.
type PositionsDependencies interface {
	Positions() []types.PositionView
	Transitions() []types.TransitionView
}

// PositionsHandler serves positions and the transition log.
type PositionsHandler struct {
	deps PositionsDependencies
}

// NewPositionsHandler creates a new positions handler.
func NewPositionsHandler(deps PositionsDependencies) *PositionsHandler {
	return &PositionsHandler{deps: deps}
}

// HandlePositions handles GET /positions requests.
func (h *PositionsHandler) HandlePositions(w http.ResponseWriter, _ *http.Request) {
	pos := h.deps.Positions()
	if pos == nil {
		pos = []types.PositionView{}
	}
	writeJSON(w, http.StatusOK, pos)
}

// HandleTransitions handles GET /transitions requests.
func (h *PositionsHandler) HandleTransitions(w http.ResponseWriter, _ *http.Request) {
	trs := h.deps.Transitions()
	if trs == nil {
		trs = []types.TransitionView{}
	}
	writeJSON(w, http.StatusOK, trs)
}

// ControlDependencies are the operator actions.
type ControlDependencies interface {
	Withdraw(ctx context.Context, token string) (types.TransitionView, error)
	Resume(platform string) error
}

// ControlHandler serves operator actions.
type ControlHandler struct {
	deps ControlDependencies
}

// NewControlHandler creates a new control handler.
func NewControlHandler(deps ControlDependencies) *ControlHandler {
	return &ControlHandler{deps: deps}
}

type resumeResponse struct {
	Platform string `json:"platform"`
	Status   string `json:"status"`
}

// HandleWithdraw handles POST /withdraw/{token} requests.
func (h *ControlHandler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	const op = "api.withdraw"
	token := strings.TrimSpace(r.PathValue("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	tr, err := h.deps.Withdraw(r.Context(), token)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// HandleResume handles POST /resume/{platform} requests.
func (h *ControlHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	const op = "api.resume"
	platform := strings.ToLower(strings.TrimSpace(r.PathValue("platform")))
	if platform == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.Resume(platform); err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, resumeResponse{Platform: platform, Status: "resumed"})
}
