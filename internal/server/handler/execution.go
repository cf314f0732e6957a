package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/profitharness/internal/blob/s3"
	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/harness"
	"github.com/alanyoungcy/profitharness/internal/strategy"
)

// ReportLoader reads archived execution reports.
type ReportLoader interface {
	Load(ctx context.Context, path string) (s3blob.Report, error)
}

// ExecutionHandler runs strategies and serves their results. store, cache
// and reports are optional; endpoints that need a missing one answer 501.
type ExecutionHandler struct {
	h          *harness.Harness
	strategies *strategy.Registry
	store      domain.ExecutionStore
	cache      domain.ResultCache
	reports    ReportLoader
	logger     *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler.
func NewExecutionHandler(
	h *harness.Harness,
	strategies *strategy.Registry,
	store domain.ExecutionStore,
	cache domain.ResultCache,
	reports ReportLoader,
	logger *slog.Logger,
) *ExecutionHandler {
	return &ExecutionHandler{h: h, strategies: strategies, store: store, cache: cache, reports: reports, logger: logger}
}

// ListStrategies returns the registered strategy names.
// GET /api/strategies
func (eh *ExecutionHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"strategies": eh.strategies.List()})
}

// Execute runs a registered strategy inside the harness and returns its
// result. A strategy failure is still a 200; the result says why.
// POST /api/executions
func (eh *ExecutionHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy string   `json:"strategy"`
		Tokens   []string `json:"tokens"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := eh.strategies.Get(req.Strategy)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	extra, err := parseAssets(req.Tokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := eh.h.ExecuteStrategyWithTokens(r.Context(), s, extra)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListExecutions returns the most recent persisted results.
// GET /api/executions?limit=50
func (eh *ExecutionHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	if eh.store == nil {
		writeError(w, http.StatusNotImplemented, "execution store not configured")
		return
	}
	list, err := eh.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		eh.logger.ErrorContext(r.Context(), "handler: list executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if list == nil {
		list = []domain.ExecutionResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": list})
}

// GetExecution returns one persisted result with its balances.
// GET /api/executions/{id}
func (eh *ExecutionHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if eh.store == nil {
		writeError(w, http.StatusNotImplemented, "execution store not configured")
		return
	}
	res, err := eh.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		eh.logger.ErrorContext(r.Context(), "handler: get execution failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Stats aggregates results over a trailing window.
// GET /api/executions/stats?window=24h
func (eh *ExecutionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if eh.store == nil {
		writeError(w, http.StatusNotImplemented, "execution store not configured")
		return
	}
	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "window must be a positive duration")
			return
		}
		window = d
	}
	st, err := eh.store.Stats(r.Context(), time.Now().Add(-window))
	if err != nil {
		eh.logger.ErrorContext(r.Context(), "handler: execution stats failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"window":       window.String(),
		"total":        st.Total,
		"succeeded":    st.Succeeded,
		"success_rate": st.SuccessRate(),
		"profit":       st.Profit,
	})
}

// Latest returns the cached most recent result of a strategy.
// GET /api/strategies/{name}/latest
func (eh *ExecutionHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if eh.cache == nil {
		writeError(w, http.StatusNotImplemented, "result cache not configured")
		return
	}
	res, err := eh.cache.GetLatest(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no result cached")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read result cache")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Report returns an archived report by its object path.
// GET /api/reports/{path...}
func (eh *ExecutionHandler) Report(w http.ResponseWriter, r *http.Request) {
	if eh.reports == nil {
		writeError(w, http.StatusNotImplemented, "report archive not configured")
		return
	}
	path := "reports/" + strings.TrimPrefix(r.PathValue("path"), "reports/")
	rep, err := eh.reports.Load(r.Context(), path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		eh.logger.ErrorContext(r.Context(), "handler: load report failed", slog.String("path", path), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
