package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-licensing/internal/metrics"
	"github.com/technosupport/ts-licensing/internal/signer"
	"github.com/technosupport/ts-licensing/internal/subscription"
)

type SubscriptionHandler struct {
	Service *subscription.Service
}

type planResponse struct {
	Publisher     string `json:"publisher"`
	Token         string `json:"token"`
	Amount        uint64 `json:"amount"`
	PeriodSeconds uint64 `json:"period_seconds"`
	RelayerFee    uint64 `json:"relayer_fee"`
}

// GetPlan exposes the fixed plan so subscribers know what to sign.
func (h *SubscriptionHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	p := h.Service.Plan()
	writeJSON(w, http.StatusOK, planResponse{
		Publisher:     p.Publisher.Hex(),
		Token:         p.Token.Hex(),
		Amount:        p.Amount,
		PeriodSeconds: p.PeriodSeconds,
		RelayerFee:    p.RelayerFee,
	})
}

type termsRequest struct {
	Terms     subscription.Terms `json:"terms"`
	Signature string             `json:"signature"`
}

type signedTermsRequest struct {
	Caller    signer.Address     `json:"caller"`
	Terms     subscription.Terms `json:"terms"`
	Signature string             `json:"signature"`
}

// Hash validates terms against the plan and returns the canonical hash a
// subscriber must sign.
func (h *SubscriptionHandler) Hash(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Terms subscription.Terms `json:"terms"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	hash, err := h.Service.Hash(req.Terms)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": hash.Hex()})
}

func (h *SubscriptionHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req termsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sig, err := parseSignature(req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}

	hash, err := h.Service.Authorize(r.Context(), req.Terms, sig)
	record("subscription", "authorize", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"hash": hash.Hex()})
}

func (h *SubscriptionHandler) IsReady(w http.ResponseWriter, r *http.Request) {
	var req termsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sig, err := parseSignature(req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}

	ready, err := h.Service.IsReady(r.Context(), req.Terms, sig)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": ready})
}

// Execute performs one period's pull; the caller collects the relayer fee.
func (h *SubscriptionHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req signedTermsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sig, err := parseSignature(req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	err = h.Service.Execute(r.Context(), req.Caller, req.Terms, sig)
	record("subscription", "execute", err)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.RecordExecution(time.Since(start))
	w.WriteHeader(http.StatusNoContent)
}

func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req signedTermsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sig, err := parseSignature(req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}

	err = h.Service.Cancel(r.Context(), req.Caller, req.Terms, sig)
	record("subscription", "cancel", err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SubscriptionHandler) IsActive(w http.ResponseWriter, r *http.Request) {
	hash, err := signer.ParseHash(chi.URLParam(r, "hash"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid hash"})
		return
	}

	active, err := h.Service.IsActive(r.Context(), hash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}
