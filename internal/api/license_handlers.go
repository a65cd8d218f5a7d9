package api

import (
	"context"
	"net/http"
	"time"

	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/license"
	"github.com/technosupport/ts-licensing/internal/metrics"
	"github.com/technosupport/ts-licensing/internal/signer"
)

// licenseService is the surface shared by all three contract variants.
type licenseService interface {
	Name() string
	Symbol() string
	Contract() string
	Price() uint64
	Period() time.Duration
	Counter(ctx context.Context) (uint64, error)
	Get(ctx context.Context, tokenID uint64) (*data.License, error)
	Metadata(ctx context.Context, tokenID uint64) (*license.Metadata, error)
	SetPrice(ctx context.Context, caller signer.Address, newPrice uint64) error
	Transfer(ctx context.Context, caller, to signer.Address, tokenID uint64) error
	AllowTransfer(ctx context.Context, caller signer.Address, tokenID uint64) error
	RestrictTransfer(ctx context.Context, caller signer.Address, tokenID uint64) error
	Withdraw(ctx context.Context, caller signer.Address) (uint64, error)
}

type activeReporter interface {
	IsActive(ctx context.Context, tokenID uint64) (bool, error)
}

// LicenseHandler serves the three contract variants. Admin is the address
// admin-gated routes act as; the JWT middleware has already established
// the caller may speak for it.
type LicenseHandler struct {
	Perpetual *license.Perpetual
	Fixed     *license.FixedSubscription
	AutoRenew *license.AutoRenew
	Admin     signer.Address
}

type purchaseRequest struct {
	Caller  signer.Address `json:"caller"`
	Payment uint64         `json:"payment"`
}

type callerRequest struct {
	Caller signer.Address `json:"caller"`
}

type transferRequest struct {
	Caller signer.Address `json:"caller"`
	To     signer.Address `json:"to"`
}

type mintRequest struct {
	To signer.Address `json:"to"`
}

type priceRequest struct {
	Price uint64 `json:"price"`
}

type licenseResponse struct {
	TokenID   uint64     `json:"token_id"`
	Owner     string     `json:"owner"`
	Price     uint64     `json:"price"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func newLicenseResponse(l *data.License) licenseResponse {
	return licenseResponse{
		TokenID:   l.TokenID,
		Owner:     l.Owner.Hex(),
		Price:     l.PriceAtPurchase,
		ExpiresAt: l.ExpiresAt,
	}
}

func record(contract, op string, err error) {
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	metrics.RecordOperation(contract, op, result)
}

// --- Variant-specific operations ---

func (h *LicenseHandler) PerpetualPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	l, err := h.Perpetual.Purchase(r.Context(), req.Caller, req.Payment)
	record(h.Perpetual.Contract(), "purchase", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLicenseResponse(l))
}

func (h *LicenseHandler) PerpetualMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !decodeBody(w, r, &req) {
		return
	}

	l, err := h.Perpetual.AdminMint(r.Context(), h.Admin, req.To)
	record(h.Perpetual.Contract(), "mint", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLicenseResponse(l))
}

func (h *LicenseHandler) FixedPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	l, err := h.Fixed.Purchase(r.Context(), req.Caller, req.Payment)
	record(h.Fixed.Contract(), "purchase", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLicenseResponse(l))
}

func (h *LicenseHandler) FixedRenew(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenIDParam(w, r)
	if !ok {
		return
	}
	var req purchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.Fixed.Renew(r.Context(), req.Caller, id, req.Payment)
	record(h.Fixed.Contract(), "renew", err)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeLicense(w, r, h.Fixed, id)
}

func (h *LicenseHandler) FixedCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenIDParam(w, r)
	if !ok {
		return
	}

	err := h.Fixed.Cancel(r.Context(), h.Admin, id)
	record(h.Fixed.Contract(), "cancel", err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LicenseHandler) AutoRenewPurchase(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	l, err := h.AutoRenew.Purchase(r.Context(), req.Caller)
	record(h.AutoRenew.Contract(), "purchase", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLicenseResponse(l))
}

func (h *LicenseHandler) AutoRenewRenew(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenIDParam(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.AutoRenew.Renew(r.Context(), req.Caller, id)
	record(h.AutoRenew.Contract(), "renew", err)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeLicense(w, r, h.AutoRenew, id)
}

func (h *LicenseHandler) AutoRenewCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenIDParam(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.AutoRenew.CancelByOwner(r.Context(), req.Caller, id)
	record(h.AutoRenew.Contract(), "cancel", err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LicenseHandler) AutoRenewReactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenIDParam(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.AutoRenew.Reactivate(r.Context(), req.Caller, id)
	record(h.AutoRenew.Contract(), "reactivate", err)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeLicense(w, r, h.AutoRenew, id)
}

// --- Shared per-variant surface ---

type contractInfoResponse struct {
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Price   uint64 `json:"price"`
	Period  int64  `json:"period_seconds,omitempty"`
	Counter uint64 `json:"counter"`
}

// Info serves name/symbol/price/counter for one variant.
func (h *LicenseHandler) Info(svc licenseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.Counter(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, contractInfoResponse{
			Name:    svc.Name(),
			Symbol:  svc.Symbol(),
			Price:   svc.Price(),
			Period:  int64(svc.Period() / time.Second),
			Counter: n,
		})
	}
}

// Metadata serves the tokenURI equivalent. For the subscription variants
// the active flag is included.
func (h *LicenseHandler) Metadata(svc licenseService, act activeReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := tokenIDParam(w, r)
		if !ok {
			return
		}
		md, err := svc.Metadata(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if act == nil {
			writeJSON(w, http.StatusOK, md)
			return
		}

		active, err := act.IsActive(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			*license.Metadata
			Active bool `json:"active"`
		}{md, active})
	}
}

func (h *LicenseHandler) SetPrice(svc licenseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req priceRequest
		if !decodeBody(w, r, &req) {
			return
		}

		err := svc.SetPrice(r.Context(), h.Admin, req.Price)
		record(svc.Contract(), "set_price", err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]uint64{"price": svc.Price()})
	}
}

func (h *LicenseHandler) Transfer(svc licenseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := tokenIDParam(w, r)
		if !ok {
			return
		}
		var req transferRequest
		if !decodeBody(w, r, &req) {
			return
		}

		err := svc.Transfer(r.Context(), req.Caller, req.To, id)
		record(svc.Contract(), "transfer", err)
		if err != nil {
			writeError(w, err)
			return
		}
		h.writeLicense(w, r, svc, id)
	}
}

func (h *LicenseHandler) AllowTransfer(svc licenseService) http.HandlerFunc {
	return h.setTransferFlag(svc, true)
}

func (h *LicenseHandler) RestrictTransfer(svc licenseService) http.HandlerFunc {
	return h.setTransferFlag(svc, false)
}

func (h *LicenseHandler) setTransferFlag(svc licenseService, allowed bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := tokenIDParam(w, r)
		if !ok {
			return
		}

		var err error
		if allowed {
			err = svc.AllowTransfer(r.Context(), h.Admin, id)
			record(svc.Contract(), "allow_transfer", err)
		} else {
			err = svc.RestrictTransfer(r.Context(), h.Admin, id)
			record(svc.Contract(), "restrict_transfer", err)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *LicenseHandler) Withdraw(svc licenseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		amount, err := svc.Withdraw(r.Context(), h.Admin)
		record(svc.Contract(), "withdraw", err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
	}
}

func (h *LicenseHandler) writeLicense(w http.ResponseWriter, r *http.Request, svc licenseService, id uint64) {
	l, err := svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLicenseResponse(l))
}
