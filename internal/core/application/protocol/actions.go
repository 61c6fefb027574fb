package protocol

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

func (s *Service) handleAction(tradeID string, action UserAction) error {
	switch action.Action {
	case domain.ActionStartPayment:
		return s.startPayment(tradeID, action.Proof)
	case domain.ActionConfirmPaymentReceived:
		return s.confirmPaymentReceived(tradeID)
	case domain.ActionRequestDispute:
		return s.requestDispute(tradeID, action.Reason)
	case domain.ActionCancel:
		return s.cancelTrade(tradeID)
	case domain.ActionCloseDispute:
		return s.closeDispute(tradeID, action.Outcome)
	default:
		return ErrActionNotAllowed
	}
}

func (s *Service) startPayment(tradeID, proof string) error {
	trade, changed, err := s.update(tradeID, func(t *domain.Trade) (bool, error) {
		return t.StartPayment(t.Role, proof)
	})
	if err != nil || !changed {
		return err
	}

	msg := s.newMessage(trade, domain.MessagePaymentStarted)
	msg.Payload[domain.PayloadProof] = proof
	s.sendToCounterparty(trade, msg)
	return nil
}

func (s *Service) confirmPaymentReceived(tradeID string) error {
	trade, changed, err := s.update(tradeID, func(t *domain.Trade) (bool, error) {
		return t.ConfirmPaymentReceived(t.Role)
	})
	if err != nil || !changed {
		return err
	}

	s.sendToCounterparty(trade, s.newMessage(trade, domain.MessagePaymentReceived))
	return nil
}

func (s *Service) cancelTrade(tradeID string) error {
	trade, changed, err := s.update(tradeID, func(t *domain.Trade) (bool, error) {
		return t.Cancel(t.Role)
	})
	if err != nil || !changed {
		return err
	}

	s.sendToCounterparty(trade, s.newMessage(trade, domain.MessageTradeCanceled))
	return nil
}

// requestDispute moves the trade in the dispute track and asks the
// arbitrator to take over. Requesting again a dispute that the arbitrator
// did not open yet retries to reach the arbitrator.
func (s *Service) requestDispute(tradeID, reason string) error {
	trade, changed, err := s.update(tradeID, func(t *domain.Trade) (bool, error) {
		return t.RequestDispute(t.Role, reason)
	})
	if err != nil {
		return err
	}

	if !changed {
		if trade.Dispute.Code == domain.DisputeRequested && requestedLocally(trade) {
			//nolint
			s.enqueue(tradeID, event{kind: eventOpenDispute})
		}
		return nil
	}

	msg := s.newMessage(trade, domain.MessageDisputeRequested)
	msg.Payload[domain.PayloadReason] = reason
	s.sendToCounterparty(trade, msg)
	return nil
}

// closeDispute applies the arbitrator's decision. The decision is first
// delivered to the traders through the arbitration subsystem: if that fails
// the trade stays in the opened dispute, stalled, and the error is returned
// so that the arbitrator can retry.
func (s *Service) closeDispute(
	tradeID string, outcome domain.DisputeOutcome,
) error {
	trade, err := s.getTrade(tradeID)
	if err != nil {
		return err
	}
	if trade.Role != domain.RoleArbitrator {
		return fmt.Errorf("%w: only the arbitrator closes a dispute", domain.ErrRoleNotPermitted)
	}
	if trade.Dispute.IsClosed() {
		return nil
	}
	if trade.Dispute.Code != domain.DisputeOpened {
		return domain.ErrDisputeMustBeOpened
	}
	if !outcome.IsValid() {
		return domain.ErrMissingDisputeOutcome
	}
	if outcome.ClosedAt == 0 {
		outcome.ClosedAt = s.clock.Now().Unix()
	}

	ctx, cancel := context.WithTimeout(s.ctx, sendTimeout)
	defer cancel()
	if err := s.arbitration.CloseDispute(ctx, *trade, outcome); err != nil {
		s.stall(tradeID, domain.StallDisputeFailure, err)
		return fmt.Errorf("failed to deliver dispute outcome: %w", err)
	}

	_, _, err = s.update(tradeID, func(t *domain.Trade) (bool, error) {
		return t.CloseDispute(domain.RoleArbitrator, outcome)
	})
	if err != nil {
		return err
	}
	log.Infof("dispute of trade %s closed with %s", tradeID, outcome.Resolution)
	return nil
}
