package domain

import (
	"fmt"
	"time"
)

const (
	// OfferExtraDataCapabilities is the offer extra data key holding the
	// comma separated list of capabilities of the maker.
	OfferExtraDataCapabilities = "capabilities"
)

var (
	// RequireNodeAddressV3Date is the cutover after which traders who have not
	// upgraded to a v3 onion node address cannot take offers anymore and their
	// offers become invisible.
	RequireNodeAddressV3Date = time.Date(2021, time.August, 15, 0, 0, 0, 0, time.UTC)

	// ToleratedSmallTradeAmount is the amount (2.5 XMR) up to which a taker
	// may trade below the min amount of a range offer.
	ToleratedSmallTradeAmount = 5 * AtomicUnitsPerXMR / 2
)

// RequiresNodeAddressUpdate returns whether legacy node addresses must be
// refused, that is when the cutover date has passed and the daemon runs on
// the production network.
func RequiresNodeAddressUpdate(now time.Time, network Network) bool {
	return now.After(RequireNodeAddressV3Date) && network.IsMainnet()
}

// HasOfferMandatoryCapability returns whether the maker of the offer declared
// the given capability. An offer without declared capabilities has none.
func HasOfferMandatoryCapability(offer Offer, mandatory Capability) bool {
	if offer.ExtraData == nil {
		return false
	}
	list, ok := offer.ExtraData[OfferExtraDataCapabilities]
	if !ok {
		return false
	}
	return CapabilitiesFromStringList(list).HasMandatory(mandatory)
}

// ValidateTakeAmount checks that the given amount can be used to take the
// offer. Amounts lower than the offer min amount are admitted only for range
// offers and only if not greater than ToleratedSmallTradeAmount.
func ValidateTakeAmount(offer Offer, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("amount must not be zero")
	}
	if amount > offer.Amount {
		return fmt.Errorf(
			"amount %d exceeds offer amount %d", amount, offer.Amount,
		)
	}
	if amount < offer.MinAmount &&
		(!offer.IsRange() || amount > ToleratedSmallTradeAmount) {
		return fmt.Errorf(
			"amount %d is below offer min amount %d", amount, offer.MinAmount,
		)
	}
	return nil
}

// CommittedAmount returns the amount of the offer locked by the given trades.
// Failed trades release what they committed.
func CommittedAmount(trades []*Trade) uint64 {
	committed := uint64(0)
	for _, t := range trades {
		if t.Phase == PhaseFailed {
			continue
		}
		committed += t.Amount
	}
	return committed
}

// ValidateOfferAvailability checks that the offer still has the given amount
// available, once subtracted what the existing trades committed.
func ValidateOfferAvailability(offer Offer, trades []*Trade, amount uint64) error {
	committed := CommittedAmount(trades)
	if committed >= offer.Amount || amount > offer.Amount-committed {
		return fmt.Errorf(
			"%w: %d requested, %d of %d already committed",
			ErrOfferNotAvailable, amount, committed, offer.Amount,
		)
	}
	return nil
}
