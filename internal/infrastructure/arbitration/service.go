package arbitration

import (
	"context"
	"errors"
	"fmt"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
)

var ErrMissingArbitrator = errors.New("trade has no arbitrator")

type service struct {
	messenger ports.Messenger
	self      domain.NodeAddress
}

// NewService returns an Arbitration that reaches the arbitrator, and the
// traders once a decision is taken, with peer messages.
func NewService(
	messenger ports.Messenger, self domain.NodeAddress,
) (ports.Arbitration, error) {
	if messenger == nil {
		return nil, fmt.Errorf("missing messenger")
	}
	if self.IsZero() {
		return nil, fmt.Errorf("missing node address")
	}
	return &service{messenger, self}, nil
}

// OpenDispute hands the trade over to its arbitrator. The request carries
// the terms of the trade, so the arbitrator can build its own copy of it.
func (s *service) OpenDispute(
	ctx context.Context, trade domain.Trade, reason string,
) error {
	arbitrator, ok := trade.Arbitrator.Get()
	if !ok {
		return ErrMissingArbitrator
	}
	maker, ok := trade.Maker.Get()
	if !ok {
		return fmt.Errorf("missing maker address")
	}
	taker, ok := trade.Taker.Get()
	if !ok {
		return fmt.Errorf("missing taker address")
	}

	offer := trade.Offer.Clone()
	msg := domain.NewMessage(
		trade.ID, domain.MessageDisputeRequested, trade.Role, s.self,
	)
	msg.OfferID = offer.ID
	msg.Offer = &offer
	msg.Amount = trade.Amount
	msg.TxID = trade.ProcessModel.DepositTxID()
	msg.Payload[domain.PayloadMaker] = maker.String()
	msg.Payload[domain.PayloadTaker] = taker.String()
	msg.Payload[domain.PayloadPrice] = fmt.Sprint(trade.Price)
	msg.Payload[domain.PayloadReason] = reason

	if err := s.messenger.Send(ctx, arbitrator, msg); err != nil {
		return fmt.Errorf("failed to reach arbitrator %s: %w", arbitrator, err)
	}
	return nil
}

// CloseDispute notifies the decision of the arbitrator to both traders. It
// fails if any of them can't be reached, a retry sends the decision again to
// both and traders discard the duplicate.
func (s *service) CloseDispute(
	ctx context.Context, trade domain.Trade, outcome domain.DisputeOutcome,
) error {
	if !outcome.IsValid() {
		return domain.ErrMissingDisputeOutcome
	}

	errs := make([]error, 0, 2)
	for _, role := range []domain.Role{domain.RoleBuyer, domain.RoleSeller} {
		addr, ok := trade.AddressOf(role).Get()
		if !ok {
			errs = append(errs, fmt.Errorf("missing %s address", role))
			continue
		}

		o := outcome
		msg := domain.NewMessage(
			trade.ID, domain.MessageDisputeClosed, domain.RoleArbitrator, s.self,
		)
		msg.OfferID = trade.Offer.ID
		msg.TxID = outcome.PayoutTxID
		msg.Outcome = &o
		if err := s.messenger.Send(ctx, addr, msg); err != nil {
			errs = append(errs, fmt.Errorf("failed to reach %s %s: %w", role, addr, err))
		}
	}
	return errors.Join(errs...)
}
