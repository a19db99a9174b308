// Package monitor pushes live receiver state to browser clients over
// WebSocket: decoded constellation points, training status and a coarse
// spectrum of the received block. It sits outside the sample pump; updates
// are queued into a buffered channel and dropped on overflow, so a slow
// client can never stall the receiver.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // bench tool, local use
	},
}

// Message is the envelope for everything sent to clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SymbolPayload is one decoded constellation position.
type SymbolPayload struct {
	Re    float64 `json:"re"`
	Im    float64 `json:"im"`
	Label int     `json:"label"`
}

// StatusPayload reports the receiver's line state.
type StatusPayload struct {
	State            string    `json:"state"`
	PowerDBm0        float64   `json:"powerDbm0"`
	CarrierHz        float64   `json:"carrierHz"`
	TimingCorrection int       `json:"timingCorrection"`
	EqTaps           []float64 `json:"eqTaps,omitempty"` // magnitudes
}

// Hub fans messages out to all connected WebSocket clients.
type Hub struct {
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
	queue   chan Message
	done    chan struct{}
}

// NewHub creates a hub and starts its delivery loop.
func NewHub() *Hub {
	h := &Hub{
		clients: make(map[*websocket.Conn]bool),
		queue:   make(chan Message, 256),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

// Close stops the delivery loop and drops all clients.
func (h *Hub) Close() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
}

// ServeWS upgrades an HTTP request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("websocket upgrade failed", "err", err)
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.mu.Unlock()
	log.Info("monitor client connected", "total", n)

	// Drain (and ignore) client messages so pings are serviced; drop the
	// client when the read side dies.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
		log.Info("monitor client disconnected", "remaining", len(h.clients))
	}
	h.mu.Unlock()
}

// Publish queues a message for delivery, dropping it if the queue is full.
func (h *Hub) Publish(msg Message) {
	select {
	case h.queue <- msg:
	default:
	}
}

// Symbol publishes a decoded constellation point.
func (h *Hub) Symbol(re, im float64, label int) {
	h.Publish(Message{Type: "symbol", Payload: SymbolPayload{Re: re, Im: im, Label: label}})
}

// Status publishes a line status snapshot.
func (h *Hub) Status(s StatusPayload) {
	h.Publish(Message{Type: "status", Payload: s})
}

// Spectrum publishes a power spectrum, one dB value per bin up to Nyquist.
func (h *Hub) Spectrum(bins []float64) {
	h.Publish(Message{Type: "spectrum", Payload: bins})
}

// Event publishes a line event string.
func (h *Hub) Event(event string) {
	h.Publish(Message{Type: "event", Payload: event})
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.queue:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Error("monitor marshal failed", "err", err)
				continue
			}
			h.mu.RLock()
			var dead []*websocket.Conn
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					dead = append(dead, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range dead {
				h.remove(conn)
			}
		}
	}
}

// Serve runs an HTTP server exposing the WebSocket endpoint at /ws. It
// blocks until the listener fails.
func (h *Hub) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	log.Info("monitor listening", "addr", addr)
	return http.ListenAndServe(addr, mux)
}
