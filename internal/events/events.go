// Package events carries the domain events every state change emits. Sinks
// (NATS, websocket observers, metrics) register on a Hub; the core services
// only know the Emitter interface.
package events

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

// Event names match the original contract events.
const (
	TypeLicenseCreated          Type = "CreatedLicenseToken"
	TypeSubscriptionCreated     Type = "CreatedSubscriptionToken"
	TypeSubscriptionRenewed     Type = "SubscriptionRenewed"
	TypeSubscriptionCanceled    Type = "SubscriptionCanceled"
	TypeSubscriptionReactivated Type = "SubscriptionReactivated"
	TypeExecuteSubscription     Type = "ExecuteSubscription"
	TypeCancelSubscription      Type = "CancelSubscription"
	TypeActivated               Type = "LicenseActivated"
	TypeDeactivated             Type = "LicenseDeactivated"
	TypeTransfer                Type = "Transfer"
	TypePriceUpdated            Type = "PriceUpdated"
	TypeWithdrawal              Type = "Withdrawal"
	TypeTransferAllowed         Type = "TransferAllowed"
	TypeTransferRestricted      Type = "TransferRestricted"
)

type Event struct {
	ID       uuid.UUID      `json:"id"`
	Type     Type           `json:"type"`
	Contract string         `json:"contract,omitempty"`
	TokenID  *uint64        `json:"token_id,omitempty"`
	Hash     string         `json:"hash,omitempty"`
	Attrs    map[string]any `json:"attrs,omitempty"`
	At       time.Time      `json:"at"`
}

func New(t Type, contract string) Event {
	return Event{ID: uuid.New(), Type: t, Contract: contract, At: time.Now().UTC()}
}

func (e Event) WithToken(id uint64) Event {
	e.TokenID = &id
	return e
}

func (e Event) WithHash(h string) Event {
	e.Hash = h
	return e
}

func (e Event) With(key string, value any) Event {
	if e.Attrs == nil {
		e.Attrs = make(map[string]any)
	}
	e.Attrs[key] = value
	return e
}

// Emitter is what the domain services see.
type Emitter interface {
	Emit(e Event)
}

// Sink consumes events fanned out by the Hub. Sinks must not block.
type Sink interface {
	HandleEvent(e Event)
}

type Hub struct {
	mu    sync.RWMutex
	sinks []Sink
}

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) Register(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

func (h *Hub) Emit(e Event) {
	h.mu.RLock()
	sinks := h.sinks
	h.mu.RUnlock()

	for _, s := range sinks {
		s.HandleEvent(e)
	}
}

// LogSink writes events to the process log, useful in dev when NATS is off.
type LogSink struct{}

func (LogSink) HandleEvent(e Event) {
	if e.TokenID != nil {
		log.Printf("[EVENT] %s %s token=%d", e.Contract, e.Type, *e.TokenID)
		return
	}
	log.Printf("[EVENT] %s %s %s", e.Contract, e.Type, e.Hash)
}
