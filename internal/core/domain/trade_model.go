package domain

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the position of a trade in its forward-only lifecycle.
type Phase int

const (
	PhaseUndefined Phase = iota
	PhaseOfferTaken
	PhaseDepositPublished
	PhaseDepositConfirmed
	PhasePaymentStarted
	PhasePaymentReceivedConfirmed
	PhasePayoutPublished
	PhaseCompleted
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhaseUndefined:                "UNDEFINED",
	PhaseOfferTaken:               "OFFER_TAKEN",
	PhaseDepositPublished:         "DEPOSIT_PUBLISHED",
	PhaseDepositConfirmed:         "DEPOSIT_CONFIRMED",
	PhasePaymentStarted:           "PAYMENT_STARTED",
	PhasePaymentReceivedConfirmed: "PAYMENT_RECEIVED_CONFIRMED",
	PhasePayoutPublished:          "PAYOUT_PUBLISHED",
	PhaseCompleted:                "COMPLETED",
	PhaseFailed:                   "FAILED",
}

func (p Phase) String() string {
	return phaseNames[p]
}

// IsTerminal returns whether no transition can leave the phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// StallKind tells why a trade is stuck.
type StallKind int

const (
	StallNone StallKind = iota
	// StallTimeout means that the expected event (counterparty message or
	// wallet confirmation) did not arrive within the phase timeout.
	StallTimeout
	// StallWalletFailure means that the wallet kept failing after all retries.
	StallWalletFailure
	// StallDisputeFailure means that the arbitration subsystem could not be
	// reached.
	StallDisputeFailure
)

var stallKindNames = map[StallKind]string{
	StallNone:           "NONE",
	StallTimeout:        "TIMEOUT",
	StallWalletFailure:  "WALLET_FAILURE",
	StallDisputeFailure: "DISPUTE_FAILURE",
}

func (k StallKind) String() string {
	return stallKindNames[k]
}

// Stall describes a stalled-trade condition that requires the attention of
// the user or the arbitrator.
type Stall struct {
	Kind              StallKind
	Phase             Phase
	Since             int64
	Detail            string
	EscalationOffered bool
}

// IsStalled ...
func (s Stall) IsStalled() bool {
	return s.Kind != StallNone
}

// Timestamps holds the lifecycle timestamps of a trade.
type Timestamps struct {
	Created          int64
	PhaseUpdated     int64
	DepositPublished int64
	PaymentStarted   int64
	Completed        int64
}

// Trade is the authoritative state of one trade, from the point of view of
// the local party whose role is Role.
type Trade struct {
	ID         string
	Role       Role
	IsMaker    bool
	Offer      Offer
	Amount     uint64
	AmountSet  bool
	Price      uint64
	TxFee      uint64
	TakerFee   uint64
	Taker      MaybeAddress
	Maker      MaybeAddress
	Arbitrator MaybeAddress

	Phase         Phase
	Dispute       DisputeState
	Stall         Stall
	FailureReason string
	Deadline      int64
	Timestamp     Timestamps

	ProcessModel ProcessModel
}

// NewTakerTrade returns a trade created by the taker of the offer. Amount and
// price are known at acceptance time, the maker address is optional.
func NewTakerTrade(
	offer Offer, amount, txFee, takerFee, price uint64,
	taker NodeAddress, maker, arbitrator MaybeAddress,
) (*Trade, error) {
	if err := offer.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateTakeAmount(offer, amount); err != nil {
		return nil, err
	}
	if !maker.Known {
		maker = KnownAddress(offer.MakerAddress)
	}

	t := newTrade(offer, offer.TakerRole(), false, txFee, takerFee)
	t.Amount = amount
	t.AmountSet = true
	t.Price = price
	t.Taker = KnownAddress(taker)
	t.Maker = maker
	t.Arbitrator = arbitrator
	return t, nil
}

// NewMakerTrade returns a trade created by the maker when notified that its
// offer has been taken. The price is the offer's one, while the amount is
// deferred until resolved with SetAmount.
func NewMakerTrade(
	offer Offer, txFee, takerFee uint64,
	taker, arbitrator MaybeAddress,
) (*Trade, error) {
	if err := offer.Validate(); err != nil {
		return nil, err
	}

	t := newTrade(offer, offer.MakerRole(), true, txFee, takerFee)
	t.Price = offer.Price
	t.Maker = KnownAddress(offer.MakerAddress)
	t.Taker = taker
	t.Arbitrator = arbitrator
	return t, nil
}

// NewArbitratorTrade returns the arbitrator's copy of a disputed trade. The
// arbitrator sees the trade from the buyer/seller outside, so its role is
// Arbitrator and IsMaker is meaningless.
func NewArbitratorTrade(
	id string, offer Offer, amount, price uint64, maker, taker NodeAddress,
) (*Trade, error) {
	if err := offer.Validate(); err != nil {
		return nil, err
	}
	t := newTrade(offer, RoleArbitrator, false, 0, 0)
	t.ID = id
	t.Amount = amount
	t.AmountSet = true
	t.Price = price
	t.Maker = KnownAddress(maker)
	t.Taker = KnownAddress(taker)
	return t, nil
}

func newTrade(offer Offer, role Role, isMaker bool, txFee, takerFee uint64) *Trade {
	now := time.Now().Unix()
	return &Trade{
		ID:           uuid.New().String(),
		Role:         role,
		IsMaker:      isMaker,
		Offer:        offer.Clone(),
		TxFee:        txFee,
		TakerFee:     takerFee,
		Phase:        PhaseOfferTaken,
		Timestamp:    Timestamps{Created: now, PhaseUpdated: now},
		ProcessModel: NewProcessModel(),
	}
}

// Clone returns a deep copy of the trade, used to hand out snapshots to
// readers.
func (t *Trade) Clone() *Trade {
	clone := *t
	clone.Offer = t.Offer.Clone()
	clone.ProcessModel = t.ProcessModel.Clone()
	if t.Dispute.Outcome != nil {
		outcome := *t.Dispute.Outcome
		clone.Dispute.Outcome = &outcome
	}
	return &clone
}
