// Package localbus is an in-process transport.Port implementation used
// by tests, so session/group flows can be exercised without a real
// network. A map of live subscriber channels guarded by *sync.Mutex,
// generalized from the connection-map-plus-mutex shape of a live socket
// registry, with an offline-delivery fallback reproduced as a plain
// in-memory slice instead of a Redis list.
package localbus

import (
	"context"
	"sync"

	"e2ee/addr"
	"e2ee/apperr"
	"e2ee/transport"
	"e2ee/wire"
)

const subscriberBuffer = 64

var _ transport.Port = (*Bus)(nil)

// Bus is an in-process transport.Port.
type Bus struct {
	mu      sync.Mutex
	subs    map[string]chan wire.Envelope
	queued  map[string][]wire.Envelope
	closing bool
}

func New() *Bus {
	return &Bus{
		subs:   make(map[string]chan wire.Envelope),
		queued: make(map[string][]wire.Envelope),
	}
}

// Send implements transport.Port: if address is subscribed, envelope is
// pushed onto its channel; otherwise it is queued and flushed on the
// next Subscribe.
func (b *Bus) Send(ctx context.Context, to addr.Address, envelope wire.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return apperr.New(apperr.PersistenceFailure, "localbus: closed")
	}
	key := to.String()
	if ch, online := b.subs[key]; online {
		select {
		case ch <- envelope:
			return nil
		default:
			// Subscriber's buffer is full; fall back to the queue rather
			// than block the sender or drop the message.
		}
	}
	b.queued[key] = append(b.queued[key], envelope)
	return nil
}

// Subscribe registers address as online and flushes anything queued for
// it.
func (b *Bus) Subscribe(ctx context.Context, address addr.Address) (<-chan wire.Envelope, error) {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return nil, apperr.New(apperr.PersistenceFailure, "localbus: closed")
	}
	key := address.String()
	ch := make(chan wire.Envelope, subscriberBuffer)
	b.subs[key] = ch
	backlog := b.queued[key]
	delete(b.queued, key)
	b.mu.Unlock()

	for _, envelope := range backlog {
		ch <- envelope
	}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.subs[key] == ch {
			delete(b.subs, key)
			close(ch)
		}
		b.mu.Unlock()
	}()

	return ch, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return nil
	}
	b.closing = true
	for key, ch := range b.subs {
		close(ch)
		delete(b.subs, key)
	}
	return nil
}
