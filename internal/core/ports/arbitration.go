package ports

import (
	"context"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

// Arbitration is the dispute subsystem. Once a dispute is opened, the payout
// of the trade is controlled by the arbitrator, who eventually notifies the
// outcome with a DISPUTE_CLOSED message.
type Arbitration interface {
	OpenDispute(ctx context.Context, trade domain.Trade, reason string) error
	CloseDispute(
		ctx context.Context, trade domain.Trade, outcome domain.DisputeOutcome,
	) error
}
