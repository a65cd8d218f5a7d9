package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/technosupport/ts-licensing/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for dev; restrict in prod
	},
}

// WSHub streams domain events to connected websocket observers. It is a
// Sink on the event hub; slow clients are dropped rather than allowed to
// stall the fan-out.
type WSHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]chan events.Event
}

func NewWSHub() *WSHub {
	return &WSHub{conns: make(map[*websocket.Conn]chan events.Event)}
}

func (h *WSHub) HandleEvent(e events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.conns {
		select {
		case ch <- e:
		default:
			// Buffer full: the client is not keeping up.
			log.Printf("WS: dropping slow event subscriber %s", conn.RemoteAddr())
			close(ch)
			delete(h.conns, conn)
		}
	}
}

func (h *WSHub) add(conn *websocket.Conn) chan events.Event {
	ch := make(chan events.Event, 64)
	h.mu.Lock()
	h.conns[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *WSHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.conns[conn]; ok {
		close(ch)
		delete(h.conns, conn)
	}
	h.mu.Unlock()
}

// ServeWS upgrades the connection and forwards events until the client
// disconnects.
func (h *WSHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS Upgrade Failed: %v", err)
		return
	}

	ch := h.add(conn)
	log.Printf("WS Connected: %s", conn.RemoteAddr())

	// Reader loop: we expect no client messages, but reads surface
	// disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				conn.Close()
				return
			}
		}
	}()

	for e := range ch {
		if err := conn.WriteJSON(e); err != nil {
			log.Printf("WS Write Error: %v", err)
			h.remove(conn)
			break
		}
	}
	conn.Close()
}
