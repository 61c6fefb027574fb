package offer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
	"github.com/tdex-network/tdex-escrow/pkg/mathutil"
)

var ErrInvalidOffer = errors.New("invalid offer")

// CreateOfferRequest holds the terms of a new offer. Amounts are in atomic
// units, the price has domain.PricePrecision decimals.
type CreateOfferRequest struct {
	Direction             domain.OfferDirection
	CounterCurrency       string
	PaymentMethod         string
	Price                 uint64
	Amount                uint64
	MinAmount             uint64
	BuyerSecurityDeposit  uint64
	SellerSecurityDeposit uint64
}

type Service struct {
	offerBook    ports.OfferBook
	clock        ports.Clock
	self         domain.NodeAddress
	network      domain.Network
	capabilities domain.Capabilities
}

// NewService returns the service managing the offers of the local node.
// The given capabilities are advertised in every offer created.
func NewService(
	offerBook ports.OfferBook, clock ports.Clock,
	self domain.NodeAddress, network domain.Network,
	capabilities domain.Capabilities,
) (*Service, error) {
	if offerBook == nil {
		return nil, fmt.Errorf("missing offer book")
	}
	if self.IsZero() {
		return nil, fmt.Errorf("missing node address")
	}
	if clock == nil {
		clock = ports.SystemClock()
	}
	return &Service{offerBook, clock, self, network, capabilities}, nil
}

func (s *Service) CreateOffer(
	ctx context.Context, req CreateOfferRequest,
) (*domain.Offer, error) {
	minAmount := req.MinAmount
	if minAmount == 0 {
		minAmount = req.Amount
	}
	offer := domain.Offer{
		ID:                    uuid.New().String(),
		Direction:             req.Direction,
		MakerAddress:          s.self,
		CounterCurrency:       req.CounterCurrency,
		PaymentMethod:         req.PaymentMethod,
		Price:                 req.Price,
		Amount:                req.Amount,
		MinAmount:             minAmount,
		BuyerSecurityDeposit:  req.BuyerSecurityDeposit,
		SellerSecurityDeposit: req.SellerSecurityDeposit,
		ExtraData: map[string]string{
			domain.OfferExtraDataCapabilities: s.capabilities.String(),
		},
		CreatedAt: s.clock.Now().Unix(),
	}
	if err := offer.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOffer, err)
	}
	if err := s.offerBook.AddOffer(ctx, offer); err != nil {
		return nil, err
	}

	log.Infof(
		"created offer %s to %s %s XMR at %s %s",
		offer.ID, offer.Direction,
		mathutil.FromAtomicUnits(offer.Amount, domain.XMRPrecision).String(),
		offer.FormattedPrice(), offer.CounterCurrency,
	)
	return &offer, nil
}

func (s *Service) GetOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	return s.offerBook.GetOffer(ctx, offerID)
}

// ListOffers returns the visible offers of the book. Offers of makers with
// a legacy node address are hidden once such addresses are not accepted
// anymore.
func (s *Service) ListOffers(
	ctx context.Context, page *domain.Page,
) ([]domain.Offer, error) {
	offers, err := s.offerBook.ListOffers(ctx)
	if err != nil {
		return nil, err
	}

	hideLegacy := domain.RequiresNodeAddressUpdate(s.clock.Now(), s.network)
	visible := make([]domain.Offer, 0, len(offers))
	for _, o := range offers {
		if hideLegacy && o.MakerAddress.IsLegacyOnion() {
			continue
		}
		visible = append(visible, o)
	}

	if page == nil {
		return visible, nil
	}
	start, end := page.Bounds(len(visible))
	return visible[start:end], nil
}
