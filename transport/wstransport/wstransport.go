// Package wstransport is a github.com/gorilla/websocket-backed
// transport.Port implementation: a connection map guarded by *sync.Mutex,
// an upgrader with CheckOrigin always true, a ReadMessage loop
// dispatching into deliverLocally, and an in-memory envelope queue as
// the offline fallback — the durable version of that fallback is the
// caller draining session.Store's pending-plaintext queue once a
// connection resumes.
package wstransport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"e2ee/addr"
	"e2ee/apperr"
	"e2ee/transport"
	"e2ee/wire"
)

const subscriberBuffer = 64

// Hub is a transport.Port that multiplexes many device connections over
// websockets in a single process.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *logrus.Logger

	mu     sync.Mutex
	conns  map[string]*websocket.Conn
	subs   map[string]chan wire.Envelope
	queued map[string][]wire.Envelope
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
		conns:  make(map[string]*websocket.Conn),
		subs:   make(map[string]chan wire.Envelope),
		queued: make(map[string][]wire.Envelope),
	}
}

var _ transport.Port = (*Hub)(nil)

// HandleConnections upgrades an inbound HTTP request to a websocket
// connection for the device address named by the user_id/device_id/
// domain query parameters.
func (h *Hub) HandleConnections(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("wstransport: upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	q := r.URL.Query()
	address := addr.New(q.Get("user_id"), q.Get("device_id"), q.Get("domain"))
	key := address.String()

	h.registerConn(key, ws)
	h.flushQueued(key, ws)
	defer h.unregisterConn(key, ws)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			h.logger.Infof("wstransport: connection closed for %s: %v", key, err)
			return
		}
		var envelope wire.Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			h.logger.Errorf("wstransport: invalid envelope from %s: %v", key, err)
			continue
		}
		h.deliverLocally(key, envelope)
	}
}

func (h *Hub) registerConn(key string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[key] = ws
}

func (h *Hub) unregisterConn(key string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[key] == ws {
		delete(h.conns, key)
	}
}

func (h *Hub) flushQueued(key string, ws *websocket.Conn) {
	h.mu.Lock()
	backlog := h.queued[key]
	delete(h.queued, key)
	h.mu.Unlock()

	for _, envelope := range backlog {
		raw, err := json.Marshal(envelope)
		if err != nil {
			h.logger.Errorf("wstransport: marshal queued envelope for %s: %v", key, err)
			continue
		}
		if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
			h.logger.Errorf("wstransport: flush queued envelope to %s: %v", key, err)
			return
		}
	}
}

func (h *Hub) deliverLocally(key string, envelope wire.Envelope) {
	h.mu.Lock()
	ch, subscribed := h.subs[key]
	h.mu.Unlock()
	if !subscribed {
		return
	}
	select {
	case ch <- envelope:
	default:
		h.logger.Warnf("wstransport: subscriber channel full for %s, dropping envelope", key)
	}
}

// Send implements transport.Port: writes directly to a live connection,
// or queues the envelope for delivery on next connect.
func (h *Hub) Send(ctx context.Context, to addr.Address, envelope wire.Envelope) error {
	key := to.String()
	h.mu.Lock()
	ws, online := h.conns[key]
	h.mu.Unlock()

	if !online {
		h.mu.Lock()
		h.queued[key] = append(h.queued[key], envelope)
		h.mu.Unlock()
		return nil
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return apperr.Wrap(apperr.BadInput, "marshal envelope", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "write envelope", err)
	}
	return nil
}

// Subscribe returns the channel HandleConnections' read loop feeds for
// address once a device with that address dials in.
func (h *Hub) Subscribe(ctx context.Context, address addr.Address) (<-chan wire.Envelope, error) {
	key := address.String()
	h.mu.Lock()
	ch := make(chan wire.Envelope, subscriberBuffer)
	h.subs[key] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		if h.subs[key] == ch {
			delete(h.subs, key)
			close(ch)
		}
		h.mu.Unlock()
	}()

	return ch, nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, ws := range h.conns {
		ws.Close()
		delete(h.conns, key)
	}
	for key, ch := range h.subs {
		close(ch)
		delete(h.subs, key)
	}
	return nil
}
