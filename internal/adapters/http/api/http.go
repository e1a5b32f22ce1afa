// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/trendhunter/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	// Read operations expose the trust board and positions.
	TopN(ctx context.Context, n int) ([]types.TrustEntry, error)
	Source(ctx context.Context, key string) (types.SourceDetail, error)
	Positions() []types.PositionView
	Transitions() []types.TransitionView

	// Operator controls.
	Withdraw(ctx context.Context, token string) (types.TransitionView, error)
	Resume(platform string) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	sourcesHandler   *SourcesHandler
	positionsHandler *PositionsHandler
	controlHandler   *ControlHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, maxLimit int) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		sourcesHandler:   NewSourcesHandler(deps, maxLimit),
		positionsHandler: NewPositionsHandler(deps),
		controlHandler:   NewControlHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /sources", MetricsMiddleware(s.sourcesHandler.HandleTopN, "sources"))
	mux.HandleFunc("GET /sources/{key}", MetricsMiddleware(s.sourcesHandler.HandleGetSource, "source"))
	mux.HandleFunc("GET /positions", MetricsMiddleware(s.positionsHandler.HandlePositions, "positions"))
	mux.HandleFunc("GET /transitions", MetricsMiddleware(s.positionsHandler.HandleTransitions, "transitions"))
	mux.HandleFunc("POST /withdraw/{token}", MetricsMiddleware(s.controlHandler.HandleWithdraw, "withdraw"))
	mux.HandleFunc("POST /resume/{platform}", MetricsMiddleware(s.controlHandler.HandleResume, "resume"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError picks the status from the error kind.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}
