// Package httpapi serves the operator status and admin endpoints.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"optionsBot/internal/analytics"
	"optionsBot/internal/domain"
	"optionsBot/internal/ports"
	"optionsBot/internal/position"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Controller is the position manager surface the API exposes.
type Controller interface {
	Status() position.Status
	ForceClose(ctx context.Context) error
	Resume(ctx context.Context) error
}

// Dependencies contains everything the handlers need. Ledger and Gatherer
// are optional; their routes are not registered when nil.
type Dependencies struct {
	Controller Controller
	Ledger     ports.TradeLedger
	Location   *time.Location
	Gatherer   prometheus.Gatherer
	Logger     ports.Logger
	Clock      func() time.Time
}

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// TradesResponse lists a day's closed trades with a summary.
type TradesResponse struct {
	Day     string          `json:"day"`
	Trades  []*domain.Trade `json:"trades"`
	Summary TradeSummary    `json:"summary"`
}

// TradeSummary is the JSON view of analytics.PerformanceMetrics.
type TradeSummary struct {
	Total                int     `json:"total"`
	Wins                 int     `json:"wins"`
	Losses               int     `json:"losses"`
	WinRate              float64 `json:"win_rate"`
	RealizedPNL          float64 `json:"realized_pnl"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
}

type handler struct {
	deps Dependencies
}

// NewRouter builds the router.
//
//	GET  /healthz
//	GET  /api/v1/status
//	POST /api/v1/position/close
//	POST /api/v1/resume
//	GET  /api/v1/trades?day=YYYY-MM-DD
//	GET  /metrics
func NewRouter(deps Dependencies) *mux.Router {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	h := &handler{deps: deps}

	router := mux.NewRouter()
	router.Use(h.recovery)
	router.Use(h.logging)

	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", h.status).Methods(http.MethodGet)
	api.HandleFunc("/position/close", h.closePosition).Methods(http.MethodPost)
	api.HandleFunc("/resume", h.resume).Methods(http.MethodPost)
	if deps.Ledger != nil {
		api.HandleFunc("/trades", h.trades).Methods(http.MethodGet)
	}
	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return router
}

// NewServer wraps the router in an http.Server with conservative timeouts.
func NewServer(addr string, deps Dependencies) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.deps.Controller.Status())
}

func (h *handler) closePosition(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Controller.ForceClose(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, h.deps.Controller.Status())
}

func (h *handler) resume(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Controller.Resume(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.deps.Controller.Status())
}

func (h *handler) trades(w http.ResponseWriter, r *http.Request) {
	loc := h.deps.Location
	day := h.deps.Clock().In(loc)
	if q := r.URL.Query().Get("day"); q != "" {
		parsed, err := time.ParseInLocation("2006-01-02", q, loc)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid_day", "day must be YYYY-MM-DD", err.Error())
			return
		}
		day = parsed
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)

	trades, err := h.deps.Ledger.FindBetween(r.Context(), start, start.AddDate(0, 0, 1))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	m := analytics.AnalyzePerformance(trades, 0, loc)
	respondWithJSON(w, http.StatusOK, TradesResponse{
		Day:    start.Format("2006-01-02"),
		Trades: trades,
		Summary: TradeSummary{
			Total:                m.TotalTrades,
			Wins:                 m.WinningTrades,
			Losses:               m.LosingTrades,
			WinRate:              m.WinRate,
			RealizedPNL:          m.TotalProfit,
			MaxDrawdown:          m.MaxDrawdown,
			MaxConsecutiveLosses: m.MaxConsecutiveLosses,
		},
	})
}

// handleError maps domain errors to HTTP status codes.
func (h *handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not_found", "No active position", err.Error())
	case errors.Is(err, ports.ErrTradingHalted):
		respondWithError(w, http.StatusConflict, "halted", "Trading halted pending operator action", err.Error())
	case ports.IsRejected(err):
		respondWithError(w, http.StatusConflict, "rejected", "Request rejected in current state", err.Error())
	default:
		h.deps.Logger.Error(r.Context(), err, "API request failed", map[string]interface{}{"path": r.URL.Path})
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	respondWithJSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (h *handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		h.deps.Logger.Debug(r.Context(), "HTTP request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.statusCode,
			"duration": time.Since(start).String(),
			"remote":   r.RemoteAddr,
			"bytes":    wrapped.written,
		})
	})
}

func (h *handler) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.deps.Logger.Error(r.Context(), fmt.Errorf("panic: %v", rec), "HTTP handler panicked",
					map[string]interface{}{"path": r.URL.Path})
				respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
