package ports

import (
	"context"
	"errors"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

// ErrWalletRetryable is the category of transient wallet errors (node
// unreachable, wallet busy, tx not yet relayed). Errors not wrapping it are
// considered fatal for the current attempt.
var ErrWalletRetryable = errors.New("retryable wallet error")

// Wallet is the multisig escrow wallet collaborator. It's in charge of
// building, signing and broadcasting the deposit and payout transactions,
// this daemon only drives it.
type Wallet interface {
	// PublishDeposit funds the escrow for the given trade and returns the id
	// of the deposit transaction.
	PublishDeposit(ctx context.Context, trade domain.Trade) (string, error)
	// ConfirmDeposit returns whether the deposit transaction reached the
	// required number of confirmations.
	ConfirmDeposit(ctx context.Context, txID string) (bool, error)
	// PublishPayout releases the escrow according to the trade terms and
	// returns the id of the payout transaction.
	PublishPayout(ctx context.Context, trade domain.Trade) (string, error)
	// ConfirmPayout returns whether the payout transaction is confirmed.
	ConfirmPayout(ctx context.Context, txID string) (bool, error)
	// IsRetryable classifies an error returned by any of the methods above.
	IsRetryable(err error) bool
}

// IsRetryableWalletError is the default error classification for wallet
// implementations.
func IsRetryableWalletError(err error) bool {
	return errors.Is(err, ErrWalletRetryable)
}

// WalletListener is notified when the connection with the escrow wallet, or
// the node it relies on, goes up or down.
type WalletListener interface {
	OnWalletConnected()
	OnWalletDisconnected(cause error)
}

// WalletNotifier is implemented by the wallets able to report the changes
// of their connection status.
type WalletNotifier interface {
	RegisterListener(listener WalletListener)
}
