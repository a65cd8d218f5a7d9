// Package api is the HTTP surface over the licensing services. Public
// routes take the caller address in the request body; admin routes sit
// behind JWT auth and act as the configured administrator address.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/technosupport/ts-licensing/internal/metrics"
	"github.com/technosupport/ts-licensing/internal/middleware"
	"github.com/technosupport/ts-licensing/internal/tokens"
)

type Server struct {
	Licenses    *LicenseHandler
	Subs        *SubscriptionHandler
	Activations *ActivationHandler
	Ledger      *LedgerHandler
	Events      *WSHub
	Auth        *middleware.JWTAuth
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Metrics)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	adminOnly := s.Auth.RequireRole(tokens.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/perpetual", func(r chi.Router) {
			svc := s.Licenses.Perpetual
			r.Get("/", s.Licenses.Info(svc))
			r.Get("/{id}", s.Licenses.Metadata(svc, nil))
			r.Post("/purchase", s.Licenses.PerpetualPurchase)
			r.Post("/{id}/transfer", s.Licenses.Transfer(svc))

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/mint", s.Licenses.PerpetualMint)
				r.Put("/price", s.Licenses.SetPrice(svc))
				r.Post("/{id}/allow-transfer", s.Licenses.AllowTransfer(svc))
				r.Post("/{id}/restrict-transfer", s.Licenses.RestrictTransfer(svc))
				r.Post("/withdraw", s.Licenses.Withdraw(svc))
			})
		})

		r.Route("/fixed", func(r chi.Router) {
			svc := s.Licenses.Fixed
			r.Get("/", s.Licenses.Info(svc))
			r.Get("/{id}", s.Licenses.Metadata(svc, svc))
			r.Post("/purchase", s.Licenses.FixedPurchase)
			r.Post("/{id}/renew", s.Licenses.FixedRenew)
			r.Post("/{id}/transfer", s.Licenses.Transfer(svc))

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Put("/price", s.Licenses.SetPrice(svc))
				r.Post("/{id}/cancel", s.Licenses.FixedCancel)
				r.Post("/{id}/allow-transfer", s.Licenses.AllowTransfer(svc))
				r.Post("/{id}/restrict-transfer", s.Licenses.RestrictTransfer(svc))
				r.Post("/withdraw", s.Licenses.Withdraw(svc))
			})
		})

		r.Route("/autorenew", func(r chi.Router) {
			svc := s.Licenses.AutoRenew
			r.Get("/", s.Licenses.Info(svc))
			r.Get("/{id}", s.Licenses.Metadata(svc, svc))
			r.Post("/purchase", s.Licenses.AutoRenewPurchase)
			r.Post("/{id}/renew", s.Licenses.AutoRenewRenew)
			r.Post("/{id}/cancel", s.Licenses.AutoRenewCancel)
			r.Post("/{id}/reactivate", s.Licenses.AutoRenewReactivate)
			r.Post("/{id}/transfer", s.Licenses.Transfer(svc))

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Put("/price", s.Licenses.SetPrice(svc))
				r.Post("/{id}/allow-transfer", s.Licenses.AllowTransfer(svc))
				r.Post("/{id}/restrict-transfer", s.Licenses.RestrictTransfer(svc))
				r.Post("/withdraw", s.Licenses.Withdraw(svc))
			})
		})

		r.Route("/subscription", func(r chi.Router) {
			r.Get("/plan", s.Subs.GetPlan)
			r.Post("/hash", s.Subs.Hash)
			r.Post("/authorize", s.Subs.Authorize)
			r.Post("/ready", s.Subs.IsReady)
			r.Post("/execute", s.Subs.Execute)
			r.Post("/cancel", s.Subs.Cancel)
			r.Get("/{hash}/active", s.Subs.IsActive)
		})

		r.Route("/activations", func(r chi.Router) {
			r.Get("/{id}", s.Activations.Status)
			r.Post("/{id}/activate", s.Activations.Activate)
			r.Post("/{id}/deactivate", s.Activations.Deactivate)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Post("/approve", s.Ledger.Approve)
			r.Get("/{asset}/balance/{address}", s.Ledger.Balance)
			r.Get("/{asset}/allowance/{owner}/{spender}", s.Ledger.Allowance)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/mint", s.Ledger.Mint)
			})
		})

		r.Get("/events/stream", s.Events.ServeWS)
	})

	return r
}
