package license

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/technosupport/ts-licensing/internal/admin"
	"github.com/technosupport/ts-licensing/internal/clock"
	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/events"
	"github.com/technosupport/ts-licensing/internal/ledger"
	"github.com/technosupport/ts-licensing/internal/locker"
	"github.com/technosupport/ts-licensing/internal/signer"
)

// memRepo is an in-memory Repository. A map-backed fake beats a call-by-call
// mock here because the variants read back what earlier calls wrote.
type memRepo struct {
	mu   sync.Mutex
	next map[string]uint64
	rows map[string]*data.License
}

func newMemRepo() *memRepo {
	return &memRepo{
		next: make(map[string]uint64),
		rows: make(map[string]*data.License),
	}
}

func rowKey(contract string, tokenID uint64) string {
	return fmt.Sprintf("%s/%d", contract, tokenID)
}

func (r *memRepo) NextTokenID(_ context.Context, contract string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next[contract]
	r.next[contract] = id + 1
	return id, nil
}

func (r *memRepo) Counter(_ context.Context, contract string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next[contract], nil
}

func (r *memRepo) Insert(_ context.Context, l *data.License) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.rows[rowKey(l.Contract, l.TokenID)] = &cp
	return nil
}

func (r *memRepo) Get(_ context.Context, contract string, tokenID uint64) (*data.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rows[rowKey(contract, tokenID)]
	if !ok {
		return nil, data.ErrRecordNotFound
	}
	cp := *l
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp, nil
}

func (r *memRepo) Update(_ context.Context, l *data.License) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := rowKey(l.Contract, l.TokenID)
	if _, ok := r.rows[key]; !ok {
		return data.ErrRecordNotFound
	}
	cp := *l
	r.rows[key] = &cp
	return nil
}

// recorder captures emitted events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return events.Event{}
	}
	return r.events[len(r.events)-1]
}

// stubActivation satisfies ActivationChecker without the real registry.
type stubActivation struct {
	activated bool
	err       error
}

func (s stubActivation) IsActivated(context.Context, uint64) (bool, error) {
	return s.activated, s.err
}

func testAddr(b byte) signer.Address {
	var a signer.Address
	for i := range a {
		a[i] = b
	}
	return a
}

type testEnv struct {
	repo  *memRepo
	led   *ledger.MemoryLedger
	emit  *recorder
	clk   *clock.Fake
	admin signer.Address
	deps  Deps
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:  newMemRepo(),
		led:   ledger.NewMemoryLedger(),
		emit:  &recorder{},
		clk:   clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		admin: testAddr(0xAA),
	}
	env.deps = Deps{
		Repo:    env.repo,
		Ledger:  env.led,
		Admin:   admin.NewCapability(env.admin),
		Emitter: env.emit,
		Locks:   locker.NewKeyedMutex(),
		Clock:   env.clk,
	}
	return env
}
