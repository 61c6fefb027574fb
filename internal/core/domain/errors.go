package domain

import "errors"

var (
	// ErrProtocolViolation is the category of every error caused by an event
	// that does not fit the current state of a trade (wrong phase, wrong
	// sender, malformed evidence). Such events are logged and discarded.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrPrecondition is the category of errors signaling a broken invariant,
	// like a required amount that is unset when it must be set.
	ErrPrecondition = errors.New("precondition violation")

	// ErrTradeNotFound ...
	ErrTradeNotFound = errors.New("trade not found")
	// ErrTradeAlreadyExists ...
	ErrTradeAlreadyExists = errors.New("trade already exists")
	// ErrOfferNotFound ...
	ErrOfferNotFound = errors.New("offer not found")
	// ErrOfferAlreadyExists ...
	ErrOfferAlreadyExists = errors.New("offer already exists")
	// ErrOfferNotAvailable is returned when taking an offer whose amount is
	// already committed to other trades.
	ErrOfferNotAvailable = errors.New("offer amount not available")

	// ErrRoleNotPermitted is returned when the initiator's role is not allowed
	// to trigger the requested transition.
	ErrRoleNotPermitted = errors.New("role is not permitted to perform this operation")
	// ErrTradeInDispute is returned for user actions that the current dispute
	// state does not allow.
	ErrTradeInDispute = errors.New("trade is in dispute")
	// ErrTradeClosed is returned for any transition attempted on a trade in a
	// terminal phase.
	ErrTradeClosed = errors.New("trade is closed")
	// ErrCancelNotAllowed is returned when trying to cancel a trade whose funds
	// are already escrowed.
	ErrCancelNotAllowed = errors.New(
		"trade can be canceled only before the deposit is published",
	)

	// ErrTradeMustBeOfferTaken ...
	ErrTradeMustBeOfferTaken = protocolError("trade must be in OFFER_TAKEN phase")
	// ErrTradeMustBeDepositPublished ...
	ErrTradeMustBeDepositPublished = protocolError("trade must be in DEPOSIT_PUBLISHED phase")
	// ErrTradeMustBeDepositConfirmed ...
	ErrTradeMustBeDepositConfirmed = protocolError("trade must be in DEPOSIT_CONFIRMED phase")
	// ErrTradeMustBePaymentStarted ...
	ErrTradeMustBePaymentStarted = protocolError("trade must be in PAYMENT_STARTED phase")
	// ErrTradeMustBePaymentReceived ...
	ErrTradeMustBePaymentReceived = protocolError("trade must be in PAYMENT_RECEIVED_CONFIRMED phase")
	// ErrTradeMustBePayoutPublished ...
	ErrTradeMustBePayoutPublished = protocolError("trade must be in PAYOUT_PUBLISHED phase")
	// ErrDisputeMustBeOpened ...
	ErrDisputeMustBeOpened = protocolError("dispute must be opened to be closed")
	// ErrMissingTxID ...
	ErrMissingTxID = protocolError("missing transaction id")
	// ErrMissingDisputeOutcome ...
	ErrMissingDisputeOutcome = protocolError("missing dispute outcome")

	// ErrAmountNotSet ...
	ErrAmountNotSet = preconditionError("trade amount is not set")
	// ErrAmountAlreadySet ...
	ErrAmountAlreadySet = preconditionError("trade amount is already set")
	// ErrNegativePayout ...
	ErrNegativePayout = preconditionError("security deposit exceeds trade amount")
	// ErrMissingOffer ...
	ErrMissingOffer = preconditionError("missing offer")
	// ErrInvalidRole ...
	ErrInvalidRole = preconditionError("invalid trade role")
)

type categorizedError struct {
	category error
	msg      string
}

func (e *categorizedError) Error() string {
	return e.msg
}

func (e *categorizedError) Unwrap() error {
	return e.category
}

func protocolError(msg string) error {
	return &categorizedError{ErrProtocolViolation, msg}
}

func preconditionError(msg string) error {
	return &categorizedError{ErrPrecondition, msg}
}

// IsProtocolViolation returns whether err belongs to the protocol violation
// category.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrProtocolViolation)
}

// IsPrecondition returns whether err signals a broken invariant.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}
