package protocol

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

// OnWalletDisconnected parks the wallet operations of the trades until the
// wallet is back. A trade whose operation is parked is stalled with a
// wallet failure.
func (s *Service) OnWalletDisconnected(cause error) {
	s.lock.Lock()
	s.walletDown = true
	s.walletCause = cause
	s.lock.Unlock()

	log.WithError(cause).Warn("escrow wallet disconnected, wallet operations paused")
}

// OnWalletConnected resumes the parked wallet operations and clears the
// wallet failure stalls of the pending trades. Operations that exhausted
// their retries are attempted again.
func (s *Service) OnWalletConnected() {
	s.lock.Lock()
	wasDown := s.walletDown
	s.walletDown = false
	s.walletCause = nil
	paused := s.paused
	s.paused = make(map[string]eventKind)
	s.lock.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	if wasDown {
		log.Info("escrow wallet connected, resuming wallet operations")
	}

	trades, err := s.repoManager.TradeRepository().GetPendingTrades(s.ctx)
	if err != nil {
		log.WithError(err).Warn("failed to load pending trades")
		return
	}
	for _, t := range trades {
		kind, wasPaused := paused[t.ID]
		if !wasPaused && t.Stall.Kind != domain.StallWalletFailure {
			continue
		}

		//nolint
		s.enqueue(t.ID, event{kind: eventWalletReconnected})
		if !wasPaused {
			var ok bool
			if kind, ok = publishOperation(t); !ok {
				continue
			}
		}
		//nolint
		s.enqueue(t.ID, event{kind: kind})
	}
}

// pauseIfWalletDown parks the given wallet operation while the wallet is
// disconnected and reports whether it did.
func (s *Service) pauseIfWalletDown(tradeID string, kind eventKind) bool {
	s.lock.Lock()
	if !s.walletDown {
		s.lock.Unlock()
		return false
	}
	s.paused[tradeID] = kind
	cause := s.walletCause
	s.lock.Unlock()

	err := ErrWalletDisconnected
	if cause != nil {
		err = fmt.Errorf("%w: %s", ErrWalletDisconnected, cause)
	}
	s.stall(tradeID, domain.StallWalletFailure, fmt.Errorf("%s: %w", kind, err))
	return true
}

func (s *Service) handleWalletReconnected(tradeID string) {
	_, changed, err := s.update(tradeID, func(t *domain.Trade) (bool, error) {
		if t.Stall.Kind != domain.StallWalletFailure {
			return false, nil
		}
		return t.ClearStall(), nil
	})
	if err != nil {
		log.WithError(err).Warnf("trade %s: failed to clear stall", tradeID)
		return
	}
	if changed {
		log.Debugf("trade %s: wallet failure cleared", tradeID)
	}
}

// publishOperation returns the wallet operation that moves the trade out of
// its current phase, if the local party is in charge of one.
func publishOperation(t *domain.Trade) (eventKind, bool) {
	switch t.Phase {
	case domain.PhaseOfferTaken:
		return eventPublishDeposit, true
	case domain.PhasePaymentReceivedConfirmed:
		return eventPublishPayout, true
	default:
		return 0, false
	}
}
