package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/punchamoorthee/ledgercore/internal/domain"
)

type productRequest struct {
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	Price        int64  `json:"price"`
	Category     string `json:"category"`
	LowThreshold *int   `json:"low_threshold"`
	SupplierID   *int64 `json:"supplier_id"`
}

func (r productRequest) fields() domain.ProductFields {
	threshold := domain.DefaultLowThreshold
	if r.LowThreshold != nil {
		threshold = *r.LowThreshold
	}
	return domain.ProductFields{
		Name:         r.Name,
		Quantity:     r.Quantity,
		Price:        r.Price,
		Category:     r.Category,
		LowThreshold: threshold,
		SupplierID:   r.SupplierID,
	}
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid product ID", r.Method, "/products/{id}")
		return 0, false
	}
	return id, true
}

func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/products"
	actor, ok := h.actor(w, r, endpoint)
	if !ok {
		return
	}
	var req productRequest
	if !h.decode(w, r, endpoint, &req) {
		return
	}
	p, err := h.stock.AddProduct(r.Context(), req.fields(), actor)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusCreated, p, r.Method, endpoint)
}

func (h *Handler) EditProduct(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/products/{id}"
	actor, ok := h.actor(w, r, endpoint)
	if !ok {
		return
	}
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !h.decode(w, r, endpoint, &req) {
		return
	}
	p, err := h.stock.EditProduct(r.Context(), id, req.fields(), actor)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, p, r.Method, endpoint)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/products/{id}"
	actor, ok := h.actor(w, r, endpoint)
	if !ok {
		return
	}
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	if err := h.stock.DeleteProduct(r.Context(), id, actor); err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"}, r.Method, endpoint)
}

type sellRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) SellProduct(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/products/{id}/sell"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
	defer timer.ObserveDuration()

	actor, ok := h.actor(w, r, endpoint)
	if !ok {
		return
	}
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req sellRequest
	if !h.decode(w, r, endpoint, &req) {
		return
	}
	p, err := h.stock.Sell(r.Context(), id, req.Quantity, actor)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, p, r.Method, endpoint)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/products/{id}"
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	p, err := h.stock.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, p, r.Method, endpoint)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/products"
	ps, err := h.stock.List(r.Context())
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, ps, r.Method, endpoint)
}

func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/products/low-stock"
	ps, err := h.stock.LowStock(r.Context())
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, ps, r.Method, endpoint)
}

func (h *Handler) ProductHistory(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/products/{id}/history"
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := h.stock.History(r.Context(), id, limit)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, recs, r.Method, endpoint)
}

type supplierRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

func (h *Handler) AddSupplier(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/suppliers"
	var req supplierRequest
	if !h.decode(w, r, endpoint, &req) {
		return
	}
	s, err := h.stock.AddSupplier(r.Context(), req.Name, req.Contact)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusCreated, s, r.Method, endpoint)
}

func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/suppliers"
	ss, err := h.stock.Suppliers(r.Context())
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, ss, r.Method, endpoint)
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/notifications"
	var status *domain.NotificationStatus
	if q := r.URL.Query().Get("status"); q != "" {
		if q != string(domain.NotificationPending) && q != string(domain.NotificationResolved) {
			h.respondError(w, http.StatusBadRequest, "Invalid status filter", r.Method, endpoint)
			return
		}
		s := domain.NotificationStatus(q)
		status = &s
	}
	ns, err := h.stock.Notifications(r.Context(), status)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, ns, r.Method, endpoint)
}

func (h *Handler) ResolveNotifications(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/notifications/resolve"
	actor, ok := h.actor(w, r, endpoint)
	if !ok {
		return
	}
	n, err := h.stock.ResolveNotifications(r.Context(), actor)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"resolved": n}, r.Method, endpoint)
}

// parseTimeParam accepts an RFC 3339 timestamp or a bare date and
// reports which form was given.
func parseTimeParam(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (h *Handler) SalesReport(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/reports/sales"
	var from, to time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, _, err := parseTimeParam(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid from date", r.Method, endpoint)
			return
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, dateOnly, err := parseTimeParam(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid to date", r.Method, endpoint)
			return
		}
		if dateOnly {
			// A bare end date covers that whole day.
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		to = t
	}
	lines, err := h.stock.SalesSummary(r.Context(), from, to)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, lines, r.Method, endpoint)
}
