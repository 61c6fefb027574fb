package protocol

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

// publishDeposit asks the wallet to fund the escrow. The wallet is expected
// to be idempotent per trade, since a call that timed out may be retried.
func (s *Service) publishDeposit(tradeID string, attempt int) {
	trade, err := s.getTrade(tradeID)
	if err != nil {
		log.WithError(err).Warnf("trade %s: failed to load", tradeID)
		return
	}
	if trade.Phase != domain.PhaseOfferTaken || trade.Dispute.IsLive() ||
		!trade.CanInitiate(domain.ActionPublishDeposit) {
		return
	}
	if s.pauseIfWalletDown(tradeID, eventPublishDeposit) {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.PhaseTimeout)
	defer cancel()
	txID, err := s.wallet.PublishDeposit(ctx, *trade)
	if err != nil {
		s.retryWallet(tradeID, eventPublishDeposit, attempt, err)
		return
	}

	trade, changed, err := s.update(tradeID, func(t *domain.Trade) (bool, error) {
		return t.PublishDeposit(t.Role, txID)
	})
	if err != nil {
		log.WithError(err).Errorf(
			"trade %s: failed to record deposit %s", tradeID, txID,
		)
		return
	}
	if !changed {
		return
	}

	log.Infof("trade %s: deposit %s published", tradeID, txID)
	msg := s.newMessage(trade, domain.MessageDepositPublished)
	msg.TxID = txID
	s.sendToCounterparty(trade, msg)
}

func (s *Service) pollDeposit(tradeID string, attempt int) {
	trade, err := s.getTrade(tradeID)
	if err != nil {
		log.WithError(err).Warnf("trade %s: failed to load", tradeID)
		return
	}
	if trade.Phase != domain.PhaseDepositPublished {
		return
	}
	if s.pauseIfWalletDown(tradeID, eventPollDeposit) {
		return
	}
	txID := trade.ProcessModel.DepositTxID()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ConfirmPollInterval)
	defer cancel()
	confirmed, err := s.wallet.ConfirmDeposit(ctx, txID)
	if err != nil {
		s.retryPoll(tradeID, eventPollDeposit, attempt, err)
		return
	}
	if !confirmed {
		s.enqueueAfter(
			s.cfg.ConfirmPollInterval, tradeID, event{kind: eventPollDeposit},
		)
		return
	}

	if _, _, err := s.update(tradeID, func(t *domain.Trade) (bool, error) {
		return t.ConfirmDeposit(txID)
	}); err != nil {
		log.WithError(err).Errorf(
			"trade %s: failed to record deposit confirmation", tradeID,
		)
		return
	}
	log.Infof("trade %s: deposit %s confirmed", tradeID, txID)
}

// publishPayout asks the wallet to release the escrow once the seller
// confirmed the receipt of the payment.
func (s *Service) publishPayout(tradeID string, attempt int) {
	trade, err := s.getTrade(tradeID)
	if err != nil {
		log.WithError(err).Warnf("trade %s: failed to load", tradeID)
		return
	}
	if trade.Phase != domain.PhasePaymentReceivedConfirmed ||
		trade.Dispute.IsLive() || !trade.CanInitiate(domain.ActionPublishPayout) {
		return
	}
	if s.pauseIfWalletDown(tradeID, eventPublishPayout) {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.PhaseTimeout)
	defer cancel()
	txID, err := s.wallet.PublishPayout(ctx, *trade)
	if err != nil {
		s.retryWallet(tradeID, eventPublishPayout, attempt, err)
		return
	}

	trade, changed, err := s.update(tradeID, func(t *domain.Trade) (bool, error) {
		return t.PublishPayout(t.Role, txID)
	})
	if err != nil {
		log.WithError(err).Errorf(
			"trade %s: failed to record payout %s", tradeID, txID,
		)
		return
	}
	if !changed {
		return
	}

	log.Infof("trade %s: payout %s published", tradeID, txID)
	msg := s.newMessage(trade, domain.MessagePayoutPublished)
	msg.TxID = txID
	s.sendToCounterparty(trade, msg)
}

func (s *Service) pollPayout(tradeID string, attempt int) {
	trade, err := s.getTrade(tradeID)
	if err != nil {
		log.WithError(err).Warnf("trade %s: failed to load", tradeID)
		return
	}
	if trade.Phase != domain.PhasePayoutPublished {
		return
	}
	if s.pauseIfWalletDown(tradeID, eventPollPayout) {
		return
	}
	txID := trade.ProcessModel.PayoutTxID()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ConfirmPollInterval)
	defer cancel()
	confirmed, err := s.wallet.ConfirmPayout(ctx, txID)
	if err != nil {
		s.retryPoll(tradeID, eventPollPayout, attempt, err)
		return
	}
	if !confirmed {
		s.enqueueAfter(
			s.cfg.ConfirmPollInterval, tradeID, event{kind: eventPollPayout},
		)
		return
	}

	_, changed, err := s.update(tradeID, func(t *domain.Trade) (bool, error) {
		return t.Complete()
	})
	if err != nil {
		if errors.Is(err, domain.ErrTradeInDispute) {
			log.Infof(
				"trade %s: payout confirmed while in dispute, waiting for the arbitrator",
				tradeID,
			)
			return
		}
		log.WithError(err).Errorf("trade %s: failed to complete", tradeID)
		return
	}
	if changed {
		log.Infof("trade %s: completed", tradeID)
	}
}

// openDispute forwards a locally requested dispute to the arbitrator. Once
// the arbitrator accepted it, the dispute is opened and the payout of the
// trade is in the arbitrator's hands.
func (s *Service) openDispute(tradeID string, attempt int) {
	trade, err := s.getTrade(tradeID)
	if err != nil {
		log.WithError(err).Warnf("trade %s: failed to load", tradeID)
		return
	}
	if trade.Dispute.Code != domain.DisputeRequested {
		return
	}
	arbitrator, ok := trade.Arbitrator.Get()
	if !ok {
		s.stall(tradeID, domain.StallDisputeFailure, ErrUnknownArbitrator)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, sendTimeout)
	defer cancel()
	if err := s.arbitration.OpenDispute(
		ctx, *trade, trade.Dispute.Reason,
	); err != nil {
		log.WithError(err).Warnf(
			"trade %s: failed to reach arbitrator %s (attempt %d)",
			tradeID, arbitrator, attempt+1,
		)
		if attempt < s.cfg.WalletMaxRetries {
			s.enqueueAfter(
				s.cfg.backoff(attempt), tradeID,
				event{kind: eventOpenDispute, attempt: attempt + 1},
			)
			return
		}
		s.stall(tradeID, domain.StallDisputeFailure, err)
		return
	}

	if _, _, err := s.update(tradeID, func(t *domain.Trade) (bool, error) {
		return t.OpenDispute(arbitrator, "")
	}); err != nil {
		log.WithError(err).Errorf("trade %s: failed to open dispute", tradeID)
		return
	}
	log.Infof("trade %s: dispute opened by arbitrator %s", tradeID, arbitrator)
}

// retryWallet retries a failed wallet operation with exponential backoff.
// Fatal errors and exhausted retries surface a wallet-failure stall, the
// operation is retried again on restart.
func (s *Service) retryWallet(tradeID string, kind eventKind, attempt int, err error) {
	s.metrics.walletErrors.WithLabelValues(kind.String()).Inc()

	if s.wallet.IsRetryable(err) && attempt < s.cfg.WalletMaxRetries {
		log.WithError(err).Debugf(
			"trade %s: %s failed (attempt %d), retrying", tradeID, kind, attempt+1,
		)
		s.enqueueAfter(
			s.cfg.backoff(attempt), tradeID, event{kind: kind, attempt: attempt + 1},
		)
		return
	}

	log.WithError(err).Warnf("trade %s: %s failed", tradeID, kind)
	s.stall(tradeID, domain.StallWalletFailure, fmt.Errorf("%s: %w", kind, err))
}

// retryPoll keeps polling a confirmation after a wallet error. The stall is
// surfaced after too many consecutive errors, but polling goes on so that
// the trade recovers as soon as the wallet does.
func (s *Service) retryPoll(tradeID string, kind eventKind, attempt int, err error) {
	s.metrics.walletErrors.WithLabelValues(kind.String()).Inc()

	if !s.wallet.IsRetryable(err) || attempt >= s.cfg.WalletMaxRetries {
		s.stall(tradeID, domain.StallWalletFailure, fmt.Errorf("%s: %w", kind, err))
		s.enqueueAfter(s.cfg.ConfirmPollInterval, tradeID, event{kind: kind})
		return
	}

	log.WithError(err).Debugf(
		"trade %s: %s failed (attempt %d), retrying", tradeID, kind, attempt+1,
	)
	s.enqueueAfter(
		s.cfg.backoff(attempt), tradeID, event{kind: kind, attempt: attempt + 1},
	)
}
