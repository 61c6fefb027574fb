package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/application/protocol"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
	"github.com/tdex-network/tdex-escrow/pkg/mathutil"
)

var (
	ErrServiceUnavailable        = fmt.Errorf("service is unavailable, retry later")
	ErrOwnOffer                  = errors.New("can't take an own offer")
	ErrNodeAddressUpdateRequired = errors.New(
		"legacy onion node addresses are not accepted anymore",
	)
	ErrOfferMissingCapability = errors.New(
		"maker does not support a mandatory capability",
	)
	ErrInvalidAmount = errors.New("invalid trade amount")
)

type Service struct {
	protocol    Protocol
	offerBook   ports.OfferBook
	repoManager ports.RepoManager
	clock       ports.Clock
	cfg         Config
}

func NewService(
	tradeProtocol Protocol,
	offerBook ports.OfferBook,
	repoManager ports.RepoManager,
	clock ports.Clock,
	cfg Config,
) (*Service, error) {
	if tradeProtocol == nil {
		return nil, fmt.Errorf("missing trade protocol")
	}
	if offerBook == nil {
		return nil, fmt.Errorf("missing offer book")
	}
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if clock == nil {
		clock = ports.SystemClock()
	}
	return &Service{tradeProtocol, offerBook, repoManager, clock, cfg}, nil
}

// TakeOffer creates a trade for the given amount of the offer, as taker, and
// starts the trade protocol with the maker.
func (s *Service) TakeOffer(
	ctx context.Context, offerID string, amount uint64,
) (*domain.Trade, error) {
	offer, err := s.offerBook.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if err := s.checkRestrictions(*offer); err != nil {
		return nil, err
	}

	if err := domain.ValidateTakeAmount(*offer, amount); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, err)
	}

	takerFee := mathutil.FeeAmount(amount, s.cfg.TakerFeeBasisPoint)
	trade, err := domain.NewTakerTrade(
		*offer, amount, s.cfg.TxFee, takerFee, offer.Price,
		s.cfg.Self, domain.UnknownAddress(), s.cfg.Arbitrator,
	)
	if err != nil {
		return nil, err
	}

	if err := s.protocol.OpenTrade(ctx, trade); err != nil {
		log.WithError(err).Warnf("failed to open trade for offer %s", offerID)
		return nil, err
	}
	log.Infof("offer %s taken, trade %s opened as %s", offerID, trade.ID, trade.Role)
	return trade, nil
}

func (s *Service) GetTrade(ctx context.Context, tradeID string) (*domain.Trade, error) {
	return s.repoManager.TradeRepository().GetTrade(ctx, tradeID)
}

// ListTrades returns the trades matching the filter, oldest first.
func (s *Service) ListTrades(
	ctx context.Context, filter Filter, page *domain.Page,
) ([]*domain.Trade, error) {
	repo := s.repoManager.TradeRepository()

	var (
		trades []*domain.Trade
		err    error
	)
	switch {
	case filter.OfferID != "":
		trades, err = repo.GetTradesByOffer(ctx, filter.OfferID)
	case filter.PendingOnly:
		trades, err = repo.GetPendingTrades(ctx)
	default:
		trades, err = repo.GetAllTrades(ctx)
	}
	if err != nil {
		log.WithError(err).Warn("failed to list trades")
		return nil, ErrServiceUnavailable
	}

	if filter.OfferID != "" && filter.PendingOnly {
		pending := make([]*domain.Trade, 0, len(trades))
		for _, t := range trades {
			if t.IsPending() {
				pending = append(pending, t)
			}
		}
		trades = pending
	}
	return paginate(trades, page), nil
}

// Advice returns the actionable message for the stalled or failed trade, if
// any.
func (s *Service) Advice(ctx context.Context, tradeID string) (string, error) {
	trade, err := s.GetTrade(ctx, tradeID)
	if err != nil {
		return "", err
	}
	return domain.Advice(trade), nil
}

func (s *Service) StartPayment(ctx context.Context, tradeID, proof string) error {
	return s.protocol.Do(ctx, tradeID, protocol.UserAction{
		Action: domain.ActionStartPayment,
		Proof:  proof,
	})
}

func (s *Service) ConfirmPaymentReceived(ctx context.Context, tradeID string) error {
	return s.protocol.Do(ctx, tradeID, protocol.UserAction{
		Action: domain.ActionConfirmPaymentReceived,
	})
}

func (s *Service) Cancel(ctx context.Context, tradeID string) error {
	return s.protocol.Do(ctx, tradeID, protocol.UserAction{
		Action: domain.ActionCancel,
	})
}

func (s *Service) RequestDispute(ctx context.Context, tradeID, reason string) error {
	return s.protocol.Do(ctx, tradeID, protocol.UserAction{
		Action: domain.ActionRequestDispute,
		Reason: reason,
	})
}

// CloseDispute applies the decision of the local arbitrator.
func (s *Service) CloseDispute(
	ctx context.Context, tradeID string, outcome domain.DisputeOutcome,
) error {
	return s.protocol.Do(ctx, tradeID, protocol.UserAction{
		Action:  domain.ActionCloseDispute,
		Outcome: outcome,
	})
}

func (s *Service) checkRestrictions(offer domain.Offer) error {
	if offer.MakerAddress == s.cfg.Self {
		return ErrOwnOffer
	}
	if domain.RequiresNodeAddressUpdate(s.now(), s.cfg.Network) &&
		(s.cfg.Self.IsLegacyOnion() || offer.MakerAddress.IsLegacyOnion()) {
		return ErrNodeAddressUpdateRequired
	}
	for _, c := range s.cfg.MandatoryCapabilities {
		if !domain.HasOfferMandatoryCapability(offer, c) {
			return fmt.Errorf("%w: %d", ErrOfferMissingCapability, c)
		}
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}
