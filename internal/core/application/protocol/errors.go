package protocol

import "errors"

var (
	// ErrServiceStopped is returned for any request made after Stop.
	ErrServiceStopped = errors.New("trade protocol is stopped")
	// ErrActionNotAllowed is returned for actions that users cannot trigger
	// directly, like publishing the deposit.
	ErrActionNotAllowed = errors.New("action can't be triggered by the user")
	// ErrUnknownArbitrator is returned when a dispute must be forwarded but
	// the trade doesn't know its arbitrator.
	ErrUnknownArbitrator = errors.New("arbitrator address is unknown")

	// ErrWalletDisconnected is the cause of the stalls raised while the
	// escrow wallet is unreachable.
	ErrWalletDisconnected = errors.New("escrow wallet is disconnected")

	errUnchanged = errors.New("trade unchanged")
)
