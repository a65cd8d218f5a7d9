package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-licensing/internal/ledger"
	"github.com/technosupport/ts-licensing/internal/signer"
)

// LedgerHandler exposes the token bookkeeping the contracts sit on:
// balance and allowance reads for anyone, approvals for holders, and an
// admin-only mint for provisioning.
type LedgerHandler struct {
	Ledger ledger.Ledger
}

type approveRequest struct {
	Asset   string         `json:"asset"`
	Owner   signer.Address `json:"owner"`
	Spender signer.Address `json:"spender"`
	Amount  uint64         `json:"amount"`
}

func (h *LedgerHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.Ledger.Approve(r.Context(), req.Asset, req.Owner, req.Spender, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ledgerMintRequest struct {
	Asset  string         `json:"asset"`
	To     signer.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

func (h *LedgerHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req ledgerMintRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.Ledger.Mint(r.Context(), req.Asset, req.To, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr, err := signer.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid address"})
		return
	}

	balance, err := h.Ledger.BalanceOf(r.Context(), chi.URLParam(r, "asset"), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

func (h *LedgerHandler) Allowance(w http.ResponseWriter, r *http.Request) {
	owner, err := signer.ParseAddress(chi.URLParam(r, "owner"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid owner address"})
		return
	}
	spender, err := signer.ParseAddress(chi.URLParam(r, "spender"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid spender address"})
		return
	}

	allowance, err := h.Ledger.Allowance(r.Context(), chi.URLParam(r, "asset"), owner, spender)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"allowance": allowance})
}
