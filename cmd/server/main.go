package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-licensing/internal/activation"
	"github.com/technosupport/ts-licensing/internal/admin"
	"github.com/technosupport/ts-licensing/internal/api"
	"github.com/technosupport/ts-licensing/internal/clock"
	"github.com/technosupport/ts-licensing/internal/config"
	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/events"
	"github.com/technosupport/ts-licensing/internal/ledger"
	"github.com/technosupport/ts-licensing/internal/license"
	"github.com/technosupport/ts-licensing/internal/locker"
	"github.com/technosupport/ts-licensing/internal/metrics"
	"github.com/technosupport/ts-licensing/internal/middleware"
	"github.com/technosupport/ts-licensing/internal/signer"
	"github.com/technosupport/ts-licensing/internal/subscription"
	"github.com/technosupport/ts-licensing/internal/tokens"
)

const serviceName = "TS-Licensing"

func main() {
	configPath := flag.String("config", "config/default.yaml", "Path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "dev-secret-do-not-use-in-prod"
	}

	adminAddr, err := signer.ParseAddress(cfg.Admin)
	if err != nil {
		log.Fatalf("Config: invalid admin address %q: %v", cfg.Admin, err)
	}

	// 2. DB Init
	db, err := sql.Open("postgres", cfg.DB.DSN)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}
	defer db.Close()

	// 3. Locks: Redis lease lock when running replicated, in-process
	// keyed mutex otherwise.
	var locks locker.Locker
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Redis ping error: %v", err)
		}
		locks = locker.NewRedisLocker(rdb)
		log.Printf("Locks: redis lease locks via %s", cfg.Redis.Addr)
	} else {
		locks = locker.NewKeyedMutex()
		log.Printf("Locks: in-process keyed mutex (single node)")
	}

	// 4. Event hub and sinks
	hub := events.NewHub()
	hub.Register(events.LogSink{})
	hub.Register(metrics.EventSink{})

	wsHub := api.NewWSHub()
	hub.Register(wsHub)

	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(serviceName))
		if err != nil {
			// Events still flow to logs and websocket observers.
			log.Printf("NATS connect failed (%v), continuing without broker", err)
		} else {
			defer nc.Drain()
			hub.Register(events.NewNATSPublisher(nc, cfg.NATS.Subject, 3))
			log.Printf("Events: publishing to NATS subject %q", cfg.NATS.Subject)
		}
	}

	// 5. Domain services
	capability := admin.NewCapability(adminAddr)
	clk := clock.Real{}
	led := &ledger.PostgresLedger{DB: db}
	repo := data.LicenseModel{DB: db}
	recoverer := signer.NewRecoverer(4096)

	deps := license.Deps{
		Repo:    repo,
		Ledger:  led,
		Admin:   capability,
		Emitter: hub,
		Locks:   locks,
		Clock:   clk,
	}

	perpetual := license.NewPerpetual(contractConfig("perpetual", cfg.Contracts.Perpetual), deps)
	fixed := license.NewFixedSubscription(contractConfig("fixed", cfg.Contracts.Fixed), deps)
	autorenew := license.NewAutoRenew(contractConfig("autorenew", cfg.Contracts.AutoRenew), deps)

	activations := activation.NewService("perpetual", activation.Deps{
		Records:   data.ActivationModel{DB: db},
		Licenses:  perpetual,
		Recoverer: recoverer,
		Emitter:   hub,
		Locks:     locks,
	})
	perpetual.BindActivation(activations)

	subs := subscription.NewService(planConfig(cfg.Plan), mustAddr(cfg.Plan.Address), subscription.Deps{
		Records:   data.SubscriptionModel{DB: db},
		Auths:     data.AuthorizationModel{DB: db},
		Ledger:    led,
		Recoverer: recoverer,
		Emitter:   hub,
		Locks:     locks,
		Clock:     clk,
	})

	// 6. Hot price reload
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := config.NewWatcher(*configPath, func(fresh *config.Config) {
		perpetual.ReloadPrice(fresh.Contracts.Perpetual.Price)
		fixed.ReloadPrice(fresh.Contracts.Fixed.Price)
		autorenew.ReloadPrice(fresh.Contracts.AutoRenew.Price)
	})
	watcher.Start(ctx)

	// 7. HTTP
	mgr := tokens.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	server := &api.Server{
		Licenses: &api.LicenseHandler{
			Perpetual: perpetual,
			Fixed:     fixed,
			AutoRenew: autorenew,
			Admin:     adminAddr,
		},
		Subs:        &api.SubscriptionHandler{Service: subs},
		Activations: &api.ActivationHandler{Service: activations},
		Ledger:      &api.LedgerHandler{Ledger: led},
		Events:      wsHub,
		Auth:        middleware.NewJWTAuth(mgr),
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("%s listening on %s", serviceName, cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Bye.")
}

func contractConfig(contract string, c config.ContractConfig) license.Config {
	return license.Config{
		Name:     c.Name,
		Symbol:   c.Symbol,
		Contract: contract,
		Address:  mustAddr(c.Address),
		Asset:    c.Asset,
		Price:    c.Price,
		Period:   c.Period,
	}
}

func planConfig(c config.SubscriptionConfig) subscription.Plan {
	return subscription.Plan{
		Publisher:     mustAddr(c.Publisher),
		Token:         mustAddr(c.Token),
		Amount:        c.Amount,
		PeriodSeconds: c.PeriodSeconds,
		RelayerFee:    c.RelayerFee,
	}
}

func mustAddr(s string) signer.Address {
	addr, err := signer.ParseAddress(s)
	if err != nil {
		log.Fatalf("Config: invalid address %q: %v", s, err)
	}
	return addr
}
