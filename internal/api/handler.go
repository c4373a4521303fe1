// Package api exposes the ledger facades as a thin JSON surface. The
// authenticated actor id arrives in the X-Actor header; verifying it
// is the job of the auth layer in front of this service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/punchamoorthee/ledgercore/internal/domain"
	"github.com/punchamoorthee/ledgercore/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	accounts *service.AccountService
	stock    *service.StockService
	log      *zap.Logger
}

func NewHandler(accounts *service.AccountService, stock *service.StockService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{accounts: accounts, stock: stock, log: log}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, r.Method, "/health")
}

// actor extracts the authenticated actor id. Mutating endpoints refuse
// anonymous requests.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request, endpoint string) (string, bool) {
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		h.respondError(w, http.StatusBadRequest, "Missing X-Actor header", r.Method, endpoint)
		return "", false
	}
	return actor, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, endpoint string, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", r.Method, endpoint)
		return false
	}
	return true
}

// respondServiceError maps the core error taxonomy to HTTP statuses:
// validation 422, missing entities 404, lock contention 409 (retry),
// everything else 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case domain.IsValidation(err):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrTargetNotFound):
		h.respondError(w, http.StatusNotFound, "Target account not found", method, endpoint)
	case errors.Is(err, domain.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "Not found", method, endpoint)
	case errors.Is(err, domain.ErrLockBusy):
		h.respondError(w, http.StatusConflict, "Operation in progress, retry", method, endpoint)
	default:
		h.log.Error("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal server error", method, endpoint)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
