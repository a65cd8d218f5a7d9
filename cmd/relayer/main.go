// The relayer sweeps stored subscription authorizations and executes the
// ones that are due, collecting the relayer fee for its own address. It
// runs against the same database as the server; the per-hash lease locks
// keep a sweep and an API call from double-executing.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-licensing/internal/clock"
	"github.com/technosupport/ts-licensing/internal/config"
	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/events"
	"github.com/technosupport/ts-licensing/internal/ledger"
	"github.com/technosupport/ts-licensing/internal/locker"
	"github.com/technosupport/ts-licensing/internal/signer"
	"github.com/technosupport/ts-licensing/internal/subscription"
)

func main() {
	configPath := flag.String("config", "config/default.yaml", "Path to config file")
	relayerAddr := flag.String("address", "", "Relayer fee address (required)")
	interval := flag.Duration("interval", time.Minute, "Sweep interval")
	flag.Parse()

	relayer, err := signer.ParseAddress(*relayerAddr)
	if err != nil {
		log.Fatalf("Invalid relayer address %q: %v", *relayerAddr, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DB.DSN)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	var locks locker.Locker
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Redis ping error: %v", err)
		}
		locks = locker.NewRedisLocker(rdb)
	} else {
		locks = locker.NewKeyedMutex()
	}

	hub := events.NewHub()
	hub.Register(events.LogSink{})

	plan := subscription.Plan{
		Publisher:     mustAddr(cfg.Plan.Publisher),
		Token:         mustAddr(cfg.Plan.Token),
		Amount:        cfg.Plan.Amount,
		PeriodSeconds: cfg.Plan.PeriodSeconds,
		RelayerFee:    cfg.Plan.RelayerFee,
	}
	auths := data.AuthorizationModel{DB: db}
	svc := subscription.NewService(plan, mustAddr(cfg.Plan.Address), subscription.Deps{
		Records:   data.SubscriptionModel{DB: db},
		Auths:     auths,
		Ledger:    &ledger.PostgresLedger{DB: db},
		Recoverer: signer.NewRecoverer(4096),
		Emitter:   hub,
		Locks:     locks,
		Clock:     clock.Real{},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Relayer %s sweeping every %v", relayer.Hex(), *interval)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	sweep(ctx, svc, auths, relayer)
	for {
		select {
		case <-ctx.Done():
			log.Println("Relayer stopping.")
			return
		case <-ticker.C:
			sweep(ctx, svc, auths, relayer)
		}
	}
}

func sweep(ctx context.Context, svc *subscription.Service, auths data.AuthorizationModel, relayer signer.Address) {
	stored, err := auths.List(ctx)
	if err != nil {
		log.Printf("Sweep: list authorizations: %v", err)
		return
	}

	var executed, skipped int
	for _, a := range stored {
		terms := svc.Plan().TermsFor(a.Subscriber, a.Nonce)

		err := svc.Execute(ctx, relayer, terms, a.Signature)
		switch {
		case err == nil:
			executed++
			log.Printf("Sweep: executed %s for %s", a.Hash.Hex(), a.Subscriber.Hex())
		case errors.Is(err, subscription.ErrNotReady):
			// Not due, canceled, or underfunded. Next sweep will retry.
			skipped++
		default:
			log.Printf("Sweep: execute %s: %v", a.Hash.Hex(), err)
		}
	}
	if executed > 0 || skipped > 0 {
		log.Printf("Sweep: %d executed, %d not ready", executed, skipped)
	}
}

func mustAddr(s string) signer.Address {
	addr, err := signer.ParseAddress(s)
	if err != nil {
		log.Fatalf("Config: invalid address %q: %v", s, err)
	}
	return addr
}
