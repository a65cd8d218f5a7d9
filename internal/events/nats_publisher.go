package events

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher forwards events to a NATS subject with bounded retry.
type NATSPublisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

func NewNATSPublisher(conn *nats.Conn, subject string, maxRetries int) *NATSPublisher {
	return &NATSPublisher{
		conn:       conn,
		subject:    subject,
		maxRetries: maxRetries,
	}
}

func (p *NATSPublisher) HandleEvent(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("events: marshal %s: %v", e.Type, err)
		return
	}

	for i := 0; i <= p.maxRetries; i++ {
		if err = p.conn.Publish(p.subject, data); err == nil {
			return
		}
		// Backoff
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	log.Printf("events: publish %s failed after %d retries: %v", e.Type, p.maxRetries, err)
}
