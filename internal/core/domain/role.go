package domain

import (
	"fmt"

	"github.com/tdex-network/tdex-escrow/pkg/mathutil"
)

// Role is the part a party plays in a trade.
type Role int

const (
	RoleUnspecified Role = iota
	RoleBuyer
	RoleSeller
	RoleArbitrator
)

var roleNames = map[Role]string{
	RoleUnspecified: "UNSPECIFIED",
	RoleBuyer:       "BUYER",
	RoleSeller:      "SELLER",
	RoleArbitrator:  "ARBITRATOR",
}

func (r Role) String() string {
	return roleNames[r]
}

// RoleFromString parses a role name.
func RoleFromString(s string) Role {
	for r, name := range roleNames {
		if name == s {
			return r
		}
	}
	return RoleUnspecified
}

// IsTrader returns whether the role is one of buyer or seller.
func (r Role) IsTrader() bool {
	return r == RoleBuyer || r == RoleSeller
}

// Action is a transition that some party initiates.
type Action int

const (
	ActionPublishDeposit Action = iota
	ActionStartPayment
	ActionConfirmPaymentReceived
	ActionPublishPayout
	ActionRequestDispute
	ActionCloseDispute
	ActionCancel
)

var actionNames = map[Action]string{
	ActionPublishDeposit:         "publish deposit",
	ActionStartPayment:           "start payment",
	ActionConfirmPaymentReceived: "confirm payment received",
	ActionPublishPayout:          "publish payout",
	ActionRequestDispute:         "request dispute",
	ActionCloseDispute:           "close dispute",
	ActionCancel:                 "cancel trade",
}

func (a Action) String() string {
	return actionNames[a]
}

// roleBehavior is the role specific part of a trade: how the payout is
// computed, when confirming is allowed and which actions the role may
// initiate as opposed to only observe.
type roleBehavior interface {
	payoutAmount(t *Trade) (uint64, error)
	confirmPermitted(t *Trade) bool
	mayInitiate(a Action) bool
}

type buyerBehavior struct{}

// payoutAmount for the buyer is the bought amount plus the refund of the
// buyer's security deposit.
func (buyerBehavior) payoutAmount(t *Trade) (uint64, error) {
	if !t.AmountSet {
		return 0, ErrAmountNotSet
	}
	payout, ok := mathutil.Add(t.Offer.BuyerSecurityDeposit, t.Amount)
	if !ok {
		return 0, fmt.Errorf("%w: buyer payout overflows", ErrPrecondition)
	}
	return payout, nil
}

func (buyerBehavior) confirmPermitted(t *Trade) bool {
	return !t.Dispute.IsArbitrated()
}

func (buyerBehavior) mayInitiate(a Action) bool {
	switch a {
	case ActionStartPayment, ActionRequestDispute, ActionCancel,
		ActionPublishDeposit:
		return true
	default:
		return false
	}
}

type sellerBehavior struct{}

// payoutAmount for the seller is the sold amount minus the seller's security
// deposit, withheld until the trade is confirmed.
func (sellerBehavior) payoutAmount(t *Trade) (uint64, error) {
	if !t.AmountSet {
		return 0, ErrAmountNotSet
	}
	payout, ok := mathutil.Sub(t.Amount, t.Offer.SellerSecurityDeposit)
	if !ok {
		return 0, ErrNegativePayout
	}
	return payout, nil
}

func (sellerBehavior) confirmPermitted(t *Trade) bool {
	return !t.Dispute.IsArbitrated() && !t.Dispute.IsLive()
}

func (sellerBehavior) mayInitiate(a Action) bool {
	switch a {
	case ActionConfirmPaymentReceived, ActionPublishPayout,
		ActionRequestDispute, ActionCancel, ActionPublishDeposit:
		return true
	default:
		return false
	}
}

type arbitratorBehavior struct{}

func (arbitratorBehavior) payoutAmount(*Trade) (uint64, error) {
	return 0, fmt.Errorf("%w: arbitrator has no payout", ErrRoleNotPermitted)
}

func (arbitratorBehavior) confirmPermitted(*Trade) bool {
	return false
}

func (arbitratorBehavior) mayInitiate(a Action) bool {
	return a == ActionCloseDispute
}

func behaviorFor(r Role) (roleBehavior, error) {
	switch r {
	case RoleBuyer:
		return buyerBehavior{}, nil
	case RoleSeller:
		return sellerBehavior{}, nil
	case RoleArbitrator:
		return arbitratorBehavior{}, nil
	default:
		return nil, ErrInvalidRole
	}
}

func checkPermission(initiator Role, a Action) error {
	b, err := behaviorFor(initiator)
	if err != nil {
		return err
	}
	if !b.mayInitiate(a) {
		return fmt.Errorf("%w: %s cannot %s", ErrRoleNotPermitted, initiator, a)
	}
	return nil
}
