package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/trendhunter/internal/domain/types"
)

const defaultLimit = 10

// SourcesDependencies defines the trust board reads.
type SourcesDependencies interface {
	TopN(ctx context.Context, n int) ([]types.TrustEntry, error)
	Source(ctx context.Context, key string) (types.SourceDetail, error)
}

// SourcesHandler serves the trust board.
type SourcesHandler struct {
	deps     SourcesDependencies
	maxLimit int
}

// NewSourcesHandler creates a new sources handler. A non-positive maxLimit
// leaves the limit unbounded.
func NewSourcesHandler(deps SourcesDependencies, maxLimit int) *SourcesHandler {
	return &SourcesHandler{deps: deps, maxLimit: maxLimit}
}

// HandleTopN handles GET /sources?limit=N requests.
func (h *SourcesHandler) HandleTopN(w http.ResponseWriter, r *http.Request) {
	const op = "api.top_sources"
	n := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		n = v
	}
	if h.maxLimit > 0 && n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
		return
	}
	entries, err := h.deps.TopN(r.Context(), n)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGetSource handles GET /sources/{key} requests.
func (h *SourcesHandler) HandleGetSource(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_source"
	key := strings.TrimSpace(r.PathValue("key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	detail, err := h.deps.Source(r.Context(), key)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
