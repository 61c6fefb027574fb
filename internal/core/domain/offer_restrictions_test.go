package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

func TestRequiresNodeAddressUpdate(t *testing.T) {
	before := domain.RequireNodeAddressV3Date.Add(-time.Hour)
	after := domain.RequireNodeAddressV3Date.Add(time.Hour)

	tests := []struct {
		name     string
		now      time.Time
		network  domain.Network
		expected bool
	}{
		{"mainnet_after_cutover", after, domain.NetworkMainnet, true},
		{"mainnet_before_cutover", before, domain.NetworkMainnet, false},
		{"stagenet_after_cutover", after, domain.NetworkStagenet, false},
		{"local_after_cutover", after, domain.NetworkLocal, false},
		{"stagenet_before_cutover", before, domain.NetworkStagenet, false},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(
				t, tt.expected, domain.RequiresNodeAddressUpdate(tt.now, tt.network),
			)
		})
	}
}

func TestHasOfferMandatoryCapability(t *testing.T) {
	tests := []struct {
		name      string
		extraData map[string]string
		expected  bool
	}{
		{"nil_extra_data", nil, false},
		{"missing_key", map[string]string{"other": "9"}, false},
		{
			"declared",
			map[string]string{domain.OfferExtraDataCapabilities: "0, 1,9,10"},
			true,
		},
		{
			"not_declared",
			map[string]string{domain.OfferExtraDataCapabilities: "0,1,2"},
			false,
		},
		{
			"malformed_entries_skipped",
			map[string]string{domain.OfferExtraDataCapabilities: "x,,9,999,-1"},
			true,
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			offer := newOffer(domain.OfferSell)
			offer.ExtraData = tt.extraData
			require.Equal(
				t, tt.expected,
				domain.HasOfferMandatoryCapability(offer, domain.CapabilityMultisigEscrow),
			)
		})
	}
}

func TestCapabilities(t *testing.T) {
	caps := domain.CapabilitiesFromStringList("10,x,2,2,0")
	require.Len(t, caps, 3)
	require.True(t, caps.Contains(domain.CapabilityArbitration))
	require.False(t, caps.Contains(domain.CapabilityMediation))
	require.Equal(t, "0,2,10", caps.String())

	require.Equal(
		t, "5,9",
		domain.NewCapabilities(domain.CapabilityMultisigEscrow, domain.CapabilityMediation).String(),
	)
}

func TestValidateTakeAmount(t *testing.T) {
	offer := newOffer(domain.OfferSell)
	offer.Amount = xmr(10)
	offer.MinAmount = xmr(5)

	tests := []struct {
		name    string
		amount  uint64
		wantErr bool
	}{
		{"max_amount", xmr(10), false},
		{"min_amount", xmr(5), false},
		{"within_range", xmr(7), false},
		{"below_min_tolerated", xmr(2), false},
		{"tolerated_limit", domain.ToleratedSmallTradeAmount, false},
		{"below_min_not_tolerated", xmr(3), true},
		{"above_max", xmr(11), true},
		{"zero", 0, true},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			err := domain.ValidateTakeAmount(offer, tt.amount)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}

	t.Run("fixed_offer_not_tolerated", func(t *testing.T) {
		fixed := newOffer(domain.OfferSell)
		fixed.Amount = xmr(10)
		fixed.MinAmount = xmr(10)
		require.False(t, fixed.IsRange())

		require.NoError(t, domain.ValidateTakeAmount(fixed, xmr(10)))
		require.Error(t, domain.ValidateTakeAmount(fixed, xmr(2)))
		require.Error(t, domain.ValidateTakeAmount(fixed, domain.ToleratedSmallTradeAmount))
	})
}

func TestValidateOfferAvailability(t *testing.T) {
	offer := newOffer(domain.OfferSell)
	offer.Amount = xmr(10)
	offer.MinAmount = xmr(1)

	committedTrade := func(amount uint64, phase domain.Phase) *domain.Trade {
		return &domain.Trade{Amount: amount, Phase: phase}
	}

	tests := []struct {
		name              string
		trades            []*domain.Trade
		amount            uint64
		expectedCommitted uint64
		wantErr           bool
	}{
		{"no_trades", nil, xmr(10), 0, false},
		{
			"remaining_amount",
			[]*domain.Trade{
				committedTrade(xmr(4), domain.PhaseOfferTaken),
				committedTrade(xmr(3), domain.PhaseCompleted),
			},
			xmr(3), xmr(7), false,
		},
		{
			"exceeds_remaining",
			[]*domain.Trade{committedTrade(xmr(8), domain.PhaseDepositConfirmed)},
			xmr(3), xmr(8), true,
		},
		{
			"fully_committed",
			[]*domain.Trade{
				committedTrade(xmr(5), domain.PhaseOfferTaken),
				committedTrade(xmr(5), domain.PhasePaymentStarted),
			},
			xmr(1), xmr(10), true,
		},
		{
			"failed_trades_release_amount",
			[]*domain.Trade{
				committedTrade(xmr(5), domain.PhaseOfferTaken),
				committedTrade(xmr(5), domain.PhaseFailed),
			},
			xmr(5), xmr(5), false,
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expectedCommitted, domain.CommittedAmount(tt.trades))

			err := domain.ValidateOfferAvailability(offer, tt.trades, tt.amount)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrOfferNotAvailable)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestProcessModelDedupe(t *testing.T) {
	pm := domain.NewProcessModel()
	require.False(t, pm.IsProcessed("uid"))

	pm.MarkProcessed("uid")
	pm.MarkProcessed("")
	require.True(t, pm.IsProcessed("uid"))
	require.Len(t, pm.ProcessedMessages, 1)

	clone := pm.Clone()
	clone.MarkProcessed("other")
	require.False(t, pm.IsProcessed("other"))
}

func TestProcessModelDeferredMessages(t *testing.T) {
	pm := domain.NewProcessModel()

	msg := domain.NewMessage(
		"trade-id", domain.MessagePaymentStarted, domain.RoleBuyer, takerAddr,
	)
	msg.Payload[domain.PayloadProof] = "sepa-ref-42"

	require.True(t, pm.Defer(msg))
	require.False(t, pm.Defer(msg))
	require.True(t, pm.IsDeferred(msg.UID))

	// The kept message does not share state with the received one.
	msg.Payload[domain.PayloadProof] = "changed"
	require.Equal(t, "sepa-ref-42", pm.DeferredMessages[0].Payload[domain.PayloadProof])

	clone := pm.Clone()
	require.True(t, clone.DropDeferred(msg.UID))
	require.False(t, clone.DropDeferred(msg.UID))
	require.False(t, clone.IsDeferred(msg.UID))
	require.True(t, pm.IsDeferred(msg.UID))

	noUID := msg
	noUID.UID = ""
	require.False(t, pm.Defer(noUID))

	for len(pm.DeferredMessages) < domain.MaxDeferredMessages {
		require.True(t, pm.Defer(domain.NewMessage(
			"trade-id", domain.MessagePaymentStarted, domain.RoleBuyer, takerAddr,
		)))
	}
	require.False(t, pm.Defer(domain.NewMessage(
		"trade-id", domain.MessagePaymentStarted, domain.RoleBuyer, takerAddr,
	)))
}
