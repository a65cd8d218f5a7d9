package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-licensing/internal/activation"
	"github.com/technosupport/ts-licensing/internal/admin"
	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/ledger"
	"github.com/technosupport/ts-licensing/internal/license"
	"github.com/technosupport/ts-licensing/internal/signer"
	"github.com/technosupport/ts-licensing/internal/subscription"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: encode response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain sentinels onto HTTP statuses: unknown records are
// 404, authorization failures 403, state/precondition rejections 409,
// anything unrecognized 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, license.ErrNonexistentToken),
		errors.Is(err, data.ErrRecordNotFound):
		status = http.StatusNotFound

	case errors.Is(err, admin.ErrNotAuthorized),
		errors.Is(err, license.ErrNotTokenOwner),
		errors.Is(err, subscription.ErrNotSubscriber),
		errors.Is(err, activation.ErrNotLicenseOwner):
		status = http.StatusForbidden

	case errors.Is(err, subscription.ErrInvalidSignature),
		errors.Is(err, activation.ErrInvalidSignature),
		errors.Is(err, signer.ErrInvalidSignature):
		status = http.StatusBadRequest

	case errors.Is(err, license.ErrInsufficientPayment),
		errors.Is(err, license.ErrInvalidPrice),
		errors.Is(err, license.ErrNotReadyOrInsufficientFunds),
		errors.Is(err, license.ErrStillActive),
		errors.Is(err, license.ErrCanceled),
		errors.Is(err, license.ErrTransferRestricted),
		errors.Is(err, license.ErrLicenseActivated),
		errors.Is(err, subscription.ErrNotReady),
		errors.Is(err, subscription.ErrWrongPublisher),
		errors.Is(err, subscription.ErrWrongToken),
		errors.Is(err, subscription.ErrWrongAmount),
		errors.Is(err, subscription.ErrWrongPeriod),
		errors.Is(err, subscription.ErrWrongFee),
		errors.Is(err, activation.ErrAlreadyActivated),
		errors.Is(err, activation.ErrNotActivated),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientAllowance):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Printf("API: internal error: %v", err)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

// tokenIDParam parses the {id} route parameter.
func tokenIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid token id"})
		return 0, false
	}
	return id, true
}

// parseSignature decodes a 0x-hex signature blob from a request field.
func parseSignature(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, signer.ErrInvalidSignature
	}
	return raw, nil
}
