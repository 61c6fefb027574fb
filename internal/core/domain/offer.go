package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tdex-network/tdex-escrow/pkg/mathutil"
)

// OfferDirection tells whether the maker of an offer buys or sells the base
// asset.
type OfferDirection int

const (
	OfferDirectionUnspecified OfferDirection = iota
	OfferBuy
	OfferSell
)

func (d OfferDirection) String() string {
	switch d {
	case OfferBuy:
		return "BUY"
	case OfferSell:
		return "SELL"
	default:
		return "UNSPECIFIED"
	}
}

// Offer is an advertised intent to trade at given terms. It's never mutated
// once published, a trade keeps its own copy of it.
type Offer struct {
	ID                    string
	Direction             OfferDirection
	MakerAddress          NodeAddress
	CounterCurrency       string
	PaymentMethod         string
	Price                 uint64
	Amount                uint64
	MinAmount             uint64
	BuyerSecurityDeposit  uint64
	SellerSecurityDeposit uint64
	ExtraData             map[string]string
	CreatedAt             int64
}

// Validate makes sure the offer terms are consistent.
func (o Offer) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("missing offer id")
	}
	if o.Direction != OfferBuy && o.Direction != OfferSell {
		return fmt.Errorf("invalid offer direction")
	}
	if o.MakerAddress.IsZero() {
		return fmt.Errorf("missing maker address")
	}
	if o.Price == 0 {
		return fmt.Errorf("price must not be zero")
	}
	if o.Amount == 0 {
		return fmt.Errorf("amount must not be zero")
	}
	if o.MinAmount > o.Amount {
		return fmt.Errorf("min amount must not exceed amount")
	}
	return nil
}

// Clone returns a deep copy of the offer.
func (o Offer) Clone() Offer {
	clone := o
	if o.ExtraData != nil {
		clone.ExtraData = make(map[string]string, len(o.ExtraData))
		for k, v := range o.ExtraData {
			clone.ExtraData[k] = v
		}
	}
	return clone
}

// IsRange returns whether the offer accepts amounts below its max amount.
func (o Offer) IsRange() bool {
	return o.MinAmount > 0 && o.MinAmount < o.Amount
}

// MakerRole returns the role assumed by the maker of the offer.
func (o Offer) MakerRole() Role {
	if o.Direction == OfferBuy {
		return RoleBuyer
	}
	return RoleSeller
}

// TakerRole returns the role assumed by whoever takes the offer.
func (o Offer) TakerRole() Role {
	if o.Direction == OfferBuy {
		return RoleSeller
	}
	return RoleBuyer
}

// FormattedPrice returns the price as a decimal string.
func (o Offer) FormattedPrice() string {
	return mathutil.FromAtomicUnits(o.Price, PricePrecision).String()
}

// VolumeOf returns the counter currency volume for the given amount of base
// asset at the offer price, with price precision.
func (o Offer) VolumeOf(amount uint64) decimal.Decimal {
	return mathutil.FromAtomicUnits(amount, XMRPrecision).
		Mul(mathutil.FromAtomicUnits(o.Price, PricePrecision))
}
