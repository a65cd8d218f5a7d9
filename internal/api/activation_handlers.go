package api

import (
	"net/http"

	"github.com/technosupport/ts-licensing/internal/activation"
	"github.com/technosupport/ts-licensing/internal/signer"
)

type ActivationHandler struct {
	Service *activation.Service
}

type activateRequest struct {
	Caller      signer.Address `json:"caller"`
	SessionHash signer.Hash    `json:"session_hash"`
	Signature   string         `json:"signature"`
}

func (h *ActivationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenIDParam(w, r)
	if !ok {
		return
	}
	var req activateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sig, err := parseSignature(req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}

	err = h.Service.Activate(r.Context(), req.Caller, id, req.SessionHash, sig)
	record("activation", "activate", err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ActivationHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenIDParam(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.Service.Deactivate(r.Context(), req.Caller, id)
	record("activation", "deactivate", err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ActivationHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenIDParam(w, r)
	if !ok {
		return
	}

	activated, err := h.Service.IsActivated(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"activated": activated})
}
