package ports

import (
	"context"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

// Messenger sends trade protocol messages to peers. Delivery is best effort:
// a message may be delivered more than once, out of order or never.
type Messenger interface {
	Send(ctx context.Context, to domain.NodeAddress, msg domain.Message) error
}

// MessageHandler consumes the messages received from peers. Transport
// adapters push every inbound message into it.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg domain.Message) error
}
