package protocol

import (
	"errors"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

func (s *Service) handleMessage(msg domain.Message) {
	switch msg.Type {
	case domain.MessageOfferTaken:
		s.handleOfferTaken(msg)
		return
	case domain.MessageDisputeRequested:
		if s.cfg.ArbitratorMode {
			s.handleDisputeRequestAsArbitrator(msg)
			return
		}
	}

	var applied, deferred bool
	var dropped error
	_, _, err := s.update(msg.TradeID, func(t *domain.Trade) (bool, error) {
		if t.ProcessModel.IsProcessed(msg.UID) {
			return t.ProcessModel.DropDeferred(msg.UID), nil
		}
		if err := checkSender(t, msg); err != nil {
			return false, err
		}

		wasDeferred := t.ProcessModel.DropDeferred(msg.UID)
		changed, err := applyMessage(t, msg)
		if err != nil {
			if arrivedEarly(t, msg, err) {
				if wasDeferred {
					deferred = true
					return false, nil
				}
				deferred = t.ProcessModel.Defer(msg)
				if !deferred {
					return false, err
				}
				return true, nil
			}
			if wasDeferred {
				dropped = err
				return true, nil
			}
			return false, err
		}
		if !changed {
			return wasDeferred, nil
		}
		t.ProcessModel.MarkProcessed(msg.UID)
		applied = true
		return true, nil
	})

	switch {
	case err != nil:
		s.reject(msg, err)
	case dropped != nil:
		s.reject(msg, dropped)
	case deferred:
		log.Debugf(
			"trade %s: %s from %s arrived ahead of its phase, deferred",
			msg.TradeID, msg.Type, msg.Sender,
		)
	case applied:
		log.Infof("trade %s: applied %s from %s", msg.TradeID, msg.Type, msg.Sender)
	default:
		s.metrics.rejected.WithLabelValues("duplicate").Inc()
		log.Debugf(
			"trade %s: %s %s already applied", msg.TradeID, msg.Type, msg.UID,
		)
	}
}

// messagePhases maps the trader messages to the phase they move the trade
// to.
var messagePhases = map[domain.MessageType]domain.Phase{
	domain.MessageDepositPublished: domain.PhaseDepositPublished,
	domain.MessagePaymentStarted:   domain.PhasePaymentStarted,
	domain.MessagePaymentReceived:  domain.PhasePaymentReceivedConfirmed,
	domain.MessagePayoutPublished:  domain.PhasePayoutPublished,
}

// arrivedEarly returns whether the message was refused only because the
// trade has not reached the phase preceding the one the message leads to.
// The counterparty may observe the chain before the local node does.
func arrivedEarly(t *domain.Trade, msg domain.Message, err error) bool {
	target, ok := messagePhases[msg.Type]
	if !ok || !domain.IsProtocolViolation(err) {
		return false
	}
	return !t.Phase.IsTerminal() && t.Phase < target
}

// applyMessage maps a peer message to the transition it triggers.
func applyMessage(t *domain.Trade, msg domain.Message) (bool, error) {
	switch msg.Type {
	case domain.MessageDepositPublished:
		return t.PublishDeposit(msg.SenderRole, msg.TxID)
	case domain.MessagePaymentStarted:
		return t.StartPayment(msg.SenderRole, msg.Payload[domain.PayloadProof])
	case domain.MessagePaymentReceived:
		return t.ConfirmPaymentReceived(msg.SenderRole)
	case domain.MessagePayoutPublished:
		return t.PublishPayout(msg.SenderRole, msg.TxID)
	case domain.MessageTradeCanceled:
		return t.Cancel(msg.SenderRole)
	case domain.MessageDisputeRequested:
		return t.RequestDispute(msg.SenderRole, msg.Payload[domain.PayloadReason])
	case domain.MessageDisputeOpened:
		return t.OpenDispute(msg.Sender, msg.Payload[domain.PayloadReason])
	case domain.MessageDisputeClosed:
		if msg.Outcome == nil {
			return false, domain.ErrMissingDisputeOutcome
		}
		return t.CloseDispute(domain.RoleArbitrator, *msg.Outcome)
	default:
		return false, fmt.Errorf(
			"%w: unexpected message type %s", domain.ErrProtocolViolation, msg.Type,
		)
	}
}

// checkSender makes sure the message comes from the party allowed to send
// it: the counterparty for trader messages, the arbitrator of the trade for
// dispute decisions.
func checkSender(t *domain.Trade, msg domain.Message) error {
	switch msg.Type {
	case domain.MessageDisputeOpened, domain.MessageDisputeClosed:
		if msg.SenderRole != domain.RoleArbitrator {
			return senderError(msg, "sender is not an arbitrator")
		}
		arbitrator, ok := t.Arbitrator.Get()
		if !ok {
			return senderError(msg, "trade has no arbitrator")
		}
		if arbitrator != msg.Sender {
			return senderError(msg, "sender is not the arbitrator of the trade")
		}
		return nil
	}

	if t.Role == domain.RoleArbitrator {
		if !msg.SenderRole.IsTrader() {
			return senderError(msg, "sender is not a trader")
		}
		if addr, ok := t.AddressOf(msg.SenderRole).Get(); ok && addr != msg.Sender {
			return senderError(msg, "sender address does not match its role")
		}
		return nil
	}

	if msg.SenderRole != t.CounterpartyRole() {
		return senderError(msg, "sender is not the counterparty")
	}
	if addr, ok := t.Counterparty().Get(); ok && addr != msg.Sender {
		return senderError(msg, "sender is not the counterparty")
	}
	return nil
}

func senderError(msg domain.Message, reason string) error {
	return fmt.Errorf(
		"%w: %s from %s (%s): %s", domain.ErrProtocolViolation,
		msg.Type, msg.Sender, msg.SenderRole, reason,
	)
}

func (s *Service) reject(msg domain.Message, err error) {
	reason := "error"
	switch {
	case errors.Is(err, domain.ErrTradeNotFound):
		reason = "unknown_trade"
	case domain.IsProtocolViolation(err),
		errors.Is(err, domain.ErrOfferNotAvailable),
		errors.Is(err, domain.ErrRoleNotPermitted),
		errors.Is(err, domain.ErrTradeInDispute),
		errors.Is(err, domain.ErrCancelNotAllowed),
		errors.Is(err, domain.ErrTradeClosed):
		reason = "protocol_violation"
	}
	s.metrics.rejected.WithLabelValues(reason).Inc()

	if reason == "error" {
		log.WithError(err).Errorf(
			"trade %s: failed to process %s %s", msg.TradeID, msg.Type, msg.UID,
		)
		return
	}
	log.WithError(err).Warnf(
		"trade %s: discarded %s from %s", msg.TradeID, msg.Type, msg.Sender,
	)
}

// handleOfferTaken creates the maker side of a trade when one of the local
// offers is taken. The trade id is chosen by the taker.
func (s *Service) handleOfferTaken(msg domain.Message) {
	// Takes of different trades run on different workers, the check of the
	// offer availability and the creation of the trade must not interleave.
	s.takeLock.Lock()
	defer s.takeLock.Unlock()

	if _, err := s.getTrade(msg.TradeID); err == nil {
		s.metrics.rejected.WithLabelValues("duplicate").Inc()
		log.Debugf("trade %s: offer already taken, skipping", msg.TradeID)
		return
	}

	trade, err := s.makerTradeFromMessage(msg)
	if err != nil {
		s.reject(msg, err)
		if errors.Is(err, domain.ErrOfferNotAvailable) {
			s.refuseTake(msg)
		}
		return
	}

	s.setDeadline(trade)
	if err := s.repoManager.TradeRepository().AddTrade(s.ctx, trade); err != nil {
		if errors.Is(err, domain.ErrTradeAlreadyExists) {
			s.metrics.rejected.WithLabelValues("duplicate").Inc()
			return
		}
		log.WithError(err).Errorf("trade %s: failed to persist", msg.TradeID)
		return
	}
	s.afterUpdate(trade)
	s.schedule(trade.Clone(), true, false)

	log.Infof(
		"offer %s taken by %s, trade %s created as %s",
		trade.Offer.ID, msg.Sender, trade.ID, trade.Role,
	)
}

func (s *Service) makerTradeFromMessage(msg domain.Message) (*domain.Trade, error) {
	offer, err := s.repoManager.OfferRepository().GetOffer(s.ctx, msg.OfferID)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: offer %s: %s", domain.ErrProtocolViolation, msg.OfferID, err,
		)
	}
	if msg.SenderRole != offer.TakerRole() {
		return nil, senderError(msg, "sender role does not match the offer")
	}
	if msg.Sender.IsZero() {
		return nil, senderError(msg, "missing sender address")
	}

	trades, err := s.repoManager.TradeRepository().GetTradesByOffer(
		s.ctx, offer.ID,
	)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateOfferAvailability(
		*offer, trades, msg.Amount,
	); err != nil {
		return nil, err
	}

	txFee, _ := strconv.ParseUint(msg.Payload[domain.PayloadTxFee], 10, 64)
	takerFee, _ := strconv.ParseUint(msg.Payload[domain.PayloadTakerFee], 10, 64)
	arbitrator := domain.UnknownAddress()
	if addr, err := domain.ParseNodeAddress(
		msg.Payload[domain.PayloadArbitrator],
	); err == nil {
		arbitrator = domain.KnownAddress(addr)
	}

	trade, err := domain.NewMakerTrade(
		*offer, txFee, takerFee, domain.KnownAddress(msg.Sender), arbitrator,
	)
	if err != nil {
		return nil, err
	}
	trade.ID = msg.TradeID
	if err := trade.SetAmount(msg.Amount); err != nil {
		return nil, err
	}
	trade.ProcessModel.MarkProcessed(msg.UID)
	return trade, nil
}

// refuseTake tells the taker that the offer can't back its trade anymore,
// so that the trade is canceled before any deposit.
func (s *Service) refuseTake(msg domain.Message) {
	offer, err := s.repoManager.OfferRepository().GetOffer(s.ctx, msg.OfferID)
	if err != nil {
		return
	}
	reply := domain.NewMessage(
		msg.TradeID, domain.MessageTradeCanceled, offer.MakerRole(), s.cfg.Self,
	)
	reply.OfferID = offer.ID
	reply.Payload[domain.PayloadReason] = domain.ErrOfferNotAvailable.Error()
	s.sendTo(msg.Sender, reply)
}

// handleDisputeRequestAsArbitrator takes over a dispute: the first request
// creates the arbitrator's copy of the trade and opens the dispute, the
// following ones re-notify the sender that the dispute is open.
func (s *Service) handleDisputeRequestAsArbitrator(msg domain.Message) {
	trade, err := s.getTrade(msg.TradeID)
	if err == nil {
		if trade.Role != domain.RoleArbitrator {
			s.reject(msg, fmt.Errorf(
				"%w: dispute request for a local trade", domain.ErrProtocolViolation,
			))
			return
		}
		if err := checkSender(trade, msg); err != nil {
			s.reject(msg, err)
			return
		}
		if trade.Dispute.Code == domain.DisputeOpened {
			s.sendTo(msg.Sender, s.disputeOpenedMessage(trade))
		}
		return
	}
	if !errors.Is(err, domain.ErrTradeNotFound) {
		log.WithError(err).Errorf("trade %s: failed to load", msg.TradeID)
		return
	}

	trade, err = s.arbitratorTradeFromMessage(msg)
	if err != nil {
		s.reject(msg, err)
		return
	}
	if err := s.repoManager.TradeRepository().AddTrade(s.ctx, trade); err != nil {
		log.WithError(err).Errorf("trade %s: failed to persist", msg.TradeID)
		return
	}
	s.afterUpdate(trade)

	opened := s.disputeOpenedMessage(trade)
	s.sendTo(trade.Maker.Address, opened)
	s.sendTo(trade.Taker.Address, opened)

	log.Infof(
		"dispute opened for trade %s on request of %s (%s)",
		trade.ID, msg.Sender, msg.SenderRole,
	)
}

func (s *Service) arbitratorTradeFromMessage(
	msg domain.Message,
) (*domain.Trade, error) {
	if msg.Offer == nil {
		return nil, fmt.Errorf("%w: missing offer", domain.ErrProtocolViolation)
	}
	if !msg.SenderRole.IsTrader() {
		return nil, senderError(msg, "sender is not a trader")
	}
	maker, err := domain.ParseNodeAddress(msg.Payload[domain.PayloadMaker])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProtocolViolation, err)
	}
	taker, err := domain.ParseNodeAddress(msg.Payload[domain.PayloadTaker])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProtocolViolation, err)
	}
	price, err := strconv.ParseUint(msg.Payload[domain.PayloadPrice], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid price", domain.ErrProtocolViolation)
	}

	trade, err := domain.NewArbitratorTrade(
		msg.TradeID, *msg.Offer, msg.Amount, price, maker, taker,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProtocolViolation, err)
	}
	if err := checkSender(trade, msg); err != nil {
		return nil, err
	}

	trade.Arbitrator = domain.KnownAddress(s.cfg.Self)
	reason := msg.Payload[domain.PayloadReason]
	trade.ProcessModel.Put(
		domain.StepDisputeRequest, reason, []byte(msg.SenderRole.String()),
	)
	if _, err := trade.OpenDispute(s.cfg.Self, reason); err != nil {
		return nil, err
	}
	trade.ProcessModel.MarkProcessed(msg.UID)
	return trade, nil
}

func (s *Service) disputeOpenedMessage(t *domain.Trade) domain.Message {
	msg := s.newMessage(t, domain.MessageDisputeOpened)
	msg.Payload[domain.PayloadReason] = t.Dispute.Reason
	return msg
}
