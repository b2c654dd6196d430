// Package transport defines the transport port: a narrow send/subscribe
// interface so the session and group engines never import a concrete
// wire technology directly. This is the minimal capability both
// transport/wstransport and transport/localbus implement.
package transport

import (
	"context"

	"e2ee/addr"
	"e2ee/wire"
)

// Port is the narrow interface every transport adapter implements.
type Port interface {
	// Send delivers envelope to address, or queues it for delivery if the
	// recipient is not currently subscribed. The higher-level
	// pending-plaintext queue covers retry; Send itself is fire-and-forget
	// at this layer.
	Send(ctx context.Context, to addr.Address, envelope wire.Envelope) error

	// Subscribe returns a channel of envelopes addressed to address. The
	// channel is closed when ctx is done or Close is called.
	Subscribe(ctx context.Context, address addr.Address) (<-chan wire.Envelope, error)

	Close() error
}
