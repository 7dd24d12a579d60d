package game

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"skinbet/internal/metrics"
)

// Sender delivers an encoded frame to one connection. Send must not block; it
// reports false when the frame was dropped.
type Sender interface {
	Send(msg []byte) bool
}

// Bus fans events out to connected clients. It is safe for concurrent use.
type Bus struct {
	clients map[string]Sender
	mu      sync.RWMutex
}

func NewBus() *Bus {
	return &Bus{
		clients: make(map[string]Sender),
	}
}

func (b *Bus) Register(connID string, s Sender) {
	b.mu.Lock()
	b.clients[connID] = s
	total := len(b.clients)
	b.mu.Unlock()

	metrics.ConnectionsOpen.Set(float64(total))
	log.WithFields(log.Fields{"conn": connID, "total": total}).Debug("[WS] Client registered")
}

func (b *Bus) Unregister(connID string) {
	b.mu.Lock()
	delete(b.clients, connID)
	total := len(b.clients)
	b.mu.Unlock()

	metrics.ConnectionsOpen.Set(float64(total))
	log.WithFields(log.Fields{"conn": connID, "total": total}).Debug("[WS] Client unregistered")
}

func (b *Bus) GetClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// BroadcastAll encodes payload once and offers it to every connection.
func (b *Bus) BroadcastAll(event string, payload any) {
	msg, err := Encode(event, payload)
	if err != nil {
		log.WithError(err).WithField("event", event).Error("[WS] Marshal error")
		return
	}

	b.mu.RLock()
	targets := make([]Sender, 0, len(b.clients))
	for _, s := range b.clients {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if !s.Send(msg) {
			metrics.BroadcastDropped.Inc()
		}
	}
}

// BroadcastTo delivers to a single connection; unknown ids are ignored.
func (b *Bus) BroadcastTo(connID, event string, payload any) {
	b.mu.RLock()
	s, ok := b.clients[connID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	msg, err := Encode(event, payload)
	if err != nil {
		log.WithError(err).WithField("event", event).Error("[WS] Marshal error")
		return
	}
	if !s.Send(msg) {
		metrics.BroadcastDropped.Inc()
		log.WithFields(log.Fields{"conn": connID, "event": event}).Warn("[WS] Send buffer full, dropping message")
	}
}
