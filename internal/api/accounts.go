package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

type openAccountRequest struct {
	Number  string `json:"number"`
	PIN     string `json:"pin"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Balance int64  `json:"balance"`
}

func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts"
	var req openAccountRequest
	if !h.decode(w, r, endpoint, &req) {
		return
	}
	acc, err := h.accounts.Open(r.Context(), req.Number, req.PIN, req.Name, req.Phone, req.Balance)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusCreated, acc, r.Method, endpoint)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{number}"
	acc, err := h.accounts.Get(r.Context(), mux.Vars(r)["number"])
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, acc, r.Method, endpoint)
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{number}/deposit"
	actor, ok := h.actor(w, r, endpoint)
	if !ok {
		return
	}
	var req amountRequest
	if !h.decode(w, r, endpoint, &req) {
		return
	}
	acc, err := h.accounts.Deposit(r.Context(), mux.Vars(r)["number"], req.Amount, actor)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, acc, r.Method, endpoint)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{number}/withdraw"
	actor, ok := h.actor(w, r, endpoint)
	if !ok {
		return
	}
	var req amountRequest
	if !h.decode(w, r, endpoint, &req) {
		return
	}
	acc, err := h.accounts.Withdraw(r.Context(), mux.Vars(r)["number"], req.Amount, actor)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, acc, r.Method, endpoint)
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/transfers"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
	defer timer.ObserveDuration()

	actor, ok := h.actor(w, r, endpoint)
	if !ok {
		return
	}
	var req transferRequest
	if !h.decode(w, r, endpoint, &req) {
		return
	}
	res, err := h.accounts.Transfer(r.Context(), req.From, req.To, req.Amount, actor)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusCreated, res, r.Method, endpoint)
}

type changePINRequest struct {
	CurrentPIN string `json:"current_pin"`
	NewPIN     string `json:"new_pin"`
}

func (h *Handler) ChangePIN(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{number}/pin"
	actor, ok := h.actor(w, r, endpoint)
	if !ok {
		return
	}
	var req changePINRequest
	if !h.decode(w, r, endpoint, &req) {
		return
	}
	if err := h.accounts.ChangePIN(r.Context(), mux.Vars(r)["number"], req.CurrentPIN, req.NewPIN, actor); err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "changed"}, r.Method, endpoint)
}

func (h *Handler) AccountHistory(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{number}/history"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := h.accounts.History(r.Context(), mux.Vars(r)["number"], limit)
	if err != nil {
		h.respondServiceError(w, err, r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, recs, r.Method, endpoint)
}
