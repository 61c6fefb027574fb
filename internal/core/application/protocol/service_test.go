package protocol_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-escrow/internal/core/application/protocol"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
	"github.com/tdex-network/tdex-escrow/internal/infrastructure/storage/db/inmemory"
)

const (
	depositTxID = "deposit-tx"
	payoutTxID  = "payout-tx"

	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

var (
	ctx = context.Background()

	makerAddr      = domain.NodeAddress{Host: "maker.onion", Port: 9999}
	takerAddr      = domain.NodeAddress{Host: "taker.onion", Port: 9999}
	arbitratorAddr = domain.NodeAddress{Host: "arbitrator.onion", Port: 9999}
)

type testNode struct {
	addr        domain.NodeAddress
	svc         *protocol.Service
	repo        ports.RepoManager
	wallet      *mockWallet
	arbitration *mockArbitration
	publisher   *recordingPublisher
}

type nodeOpts struct {
	repo           ports.RepoManager
	arbitratorMode bool
	setupWallet    func(w *mockWallet)
	publishDelay   time.Duration
}

func newTestNode(
	t *testing.T, addr domain.NodeAddress, net *network, clock *fakeClock,
	opts nodeOpts,
) *testNode {
	repo := opts.repo
	if repo == nil {
		repo = inmemory.NewRepoManager()
	}
	wallet := &mockWallet{}
	if opts.setupWallet != nil {
		opts.setupWallet(wallet)
	}
	arbitration := &mockArbitration{}
	publisher := &recordingPublisher{delay: opts.publishDelay}

	cfg := protocol.DefaultConfig(addr)
	cfg.ArbitratorMode = opts.arbitratorMode
	cfg.WalletMaxRetries = 2

	svc, err := protocol.NewService(
		repo, wallet, net, arbitration, publisher, clock, cfg,
	)
	require.NoError(t, err)
	net.join(addr, svc)
	t.Cleanup(svc.Stop)

	return &testNode{addr, svc, repo, wallet, arbitration, publisher}
}

func (n *testNode) start(t *testing.T) *testNode {
	require.NoError(t, n.svc.Start(ctx))
	return n
}

func (n *testNode) trade(t *testing.T, tradeID string) *domain.Trade {
	trade, err := n.repo.TradeRepository().GetTrade(ctx, tradeID)
	require.NoError(t, err)
	return trade
}

func (n *testNode) waitFor(
	t *testing.T, tradeID string, cond func(*domain.Trade) bool,
) {
	require.Eventually(t, func() bool {
		trade, err := n.repo.TradeRepository().GetTrade(ctx, tradeID)
		return err == nil && cond(trade)
	}, waitFor, tick)
}

func (n *testNode) waitForPhase(t *testing.T, tradeID string, phase domain.Phase) {
	n.waitFor(t, tradeID, func(trade *domain.Trade) bool {
		return trade.Phase == phase
	})
}

func (n *testNode) do(tradeID string, action domain.Action) error {
	return n.svc.Do(ctx, tradeID, protocol.UserAction{Action: action})
}

func happyWallet(w *mockWallet) {
	w.On("PublishDeposit", mock.Anything, mock.Anything).Return(depositTxID, nil)
	w.On("ConfirmDeposit", mock.Anything, depositTxID).Return(true, nil)
	w.On("PublishPayout", mock.Anything, mock.Anything).Return(payoutTxID, nil)
	w.On("ConfirmPayout", mock.Anything, payoutTxID).Return(true, nil)
}

func newOffer() domain.Offer {
	return domain.Offer{
		ID:                    "offer-id",
		Direction:             domain.OfferSell,
		MakerAddress:          makerAddr,
		CounterCurrency:       "EUR",
		PaymentMethod:         "SEPA",
		Price:                 150 * 10000,
		Amount:                2 * domain.AtomicUnitsPerXMR,
		MinAmount:             domain.AtomicUnitsPerXMR / 2,
		BuyerSecurityDeposit:  domain.AtomicUnitsPerXMR / 10,
		SellerSecurityDeposit: domain.AtomicUnitsPerXMR / 10,
	}
}

func newTakerTrade(t *testing.T, offer domain.Offer) *domain.Trade {
	trade, err := domain.NewTakerTrade(
		offer, domain.AtomicUnitsPerXMR, 1000, 2000, offer.Price, takerAddr,
		domain.UnknownAddress(), domain.KnownAddress(arbitratorAddr),
	)
	require.NoError(t, err)
	return trade
}

func offerTakenMessage(trade *domain.Trade) domain.Message {
	msg := domain.NewMessage(
		trade.ID, domain.MessageOfferTaken, trade.Offer.TakerRole(), takerAddr,
	)
	msg.OfferID = trade.Offer.ID
	msg.Amount = trade.Amount
	msg.Payload[domain.PayloadTxFee] = fmt.Sprint(trade.TxFee)
	msg.Payload[domain.PayloadTakerFee] = fmt.Sprint(trade.TakerFee)
	msg.Payload[domain.PayloadArbitrator] = arbitratorAddr.String()
	return msg
}

func buyerMessage(
	tradeID string, msgType domain.MessageType,
) domain.Message {
	return domain.NewMessage(tradeID, msgType, domain.RoleBuyer, takerAddr)
}

func arbitratorMessage(
	tradeID string, msgType domain.MessageType,
) domain.Message {
	return domain.NewMessage(
		tradeID, msgType, domain.RoleArbitrator, arbitratorAddr,
	)
}

func TestNewService(t *testing.T) {
	repo := inmemory.NewRepoManager()
	wallet := &mockWallet{}
	net := newNetwork()
	arbitration := &mockArbitration{}
	cfg := protocol.DefaultConfig(makerAddr)

	tests := []struct {
		name        string
		repo        ports.RepoManager
		wallet      ports.Wallet
		messenger   ports.Messenger
		arbitration ports.Arbitration
		cfg         protocol.Config
		expectedErr string
	}{
		{"missing repo manager", nil, wallet, net, arbitration, cfg, "missing repo manager"},
		{"missing wallet", repo, nil, net, arbitration, cfg, "missing wallet"},
		{"missing messenger", repo, wallet, nil, arbitration, cfg, "missing messenger"},
		{"missing arbitration", repo, wallet, net, nil, cfg, "missing arbitration"},
		{"missing node address", repo, wallet, net, arbitration, protocol.DefaultConfig(domain.NodeAddress{}), "missing node address"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			svc, err := protocol.NewService(
				tt.repo, tt.wallet, tt.messenger, tt.arbitration, nil, nil, tt.cfg,
			)
			require.Error(t, err)
			require.Nil(t, svc)
			require.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestHappyPath(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	maker := newTestNode(t, makerAddr, net, clock, nodeOpts{setupWallet: happyWallet}).start(t)
	taker := newTestNode(t, takerAddr, net, clock, nodeOpts{setupWallet: happyWallet}).start(t)

	offer := newOffer()
	require.NoError(t, maker.repo.OfferRepository().AddOffer(ctx, offer))

	trade := newTakerTrade(t, offer)
	require.NoError(t, taker.svc.OpenTrade(ctx, trade))

	maker.waitForPhase(t, trade.ID, domain.PhaseDepositConfirmed)
	taker.waitForPhase(t, trade.ID, domain.PhaseDepositConfirmed)

	err := taker.svc.Do(ctx, trade.ID, protocol.UserAction{
		Action: domain.ActionStartPayment, Proof: "sepa-ref-42",
	})
	require.NoError(t, err)
	maker.waitForPhase(t, trade.ID, domain.PhasePaymentStarted)

	require.NoError(t, maker.do(trade.ID, domain.ActionConfirmPaymentReceived))

	maker.waitForPhase(t, trade.ID, domain.PhaseCompleted)
	taker.waitForPhase(t, trade.ID, domain.PhaseCompleted)

	makerTrade := maker.trade(t, trade.ID)
	require.True(t, makerTrade.IsMaker)
	require.Equal(t, domain.RoleSeller, makerTrade.Role)
	require.Equal(t, trade.Amount, makerTrade.Amount)
	require.Equal(t, trade.TakerFee, makerTrade.TakerFee)
	require.Equal(t, domain.KnownAddress(takerAddr), makerTrade.Taker)
	require.Equal(t, domain.KnownAddress(arbitratorAddr), makerTrade.Arbitrator)
	require.Equal(t, depositTxID, makerTrade.ProcessModel.DepositTxID())
	require.Equal(t, payoutTxID, makerTrade.ProcessModel.PayoutTxID())
	require.Equal(
		t, "sepa-ref-42", makerTrade.ProcessModel.Value(domain.StepPaymentSent),
	)
	require.Zero(t, makerTrade.Deadline)

	takerTrade := taker.trade(t, trade.ID)
	require.False(t, takerTrade.IsMaker)
	require.Equal(t, payoutTxID, takerTrade.ProcessModel.PayoutTxID())

	maker.wallet.AssertNotCalled(t, "PublishDeposit", mock.Anything, mock.Anything)
	taker.wallet.AssertNotCalled(t, "PublishPayout", mock.Anything, mock.Anything)
	taker.wallet.AssertNumberOfCalls(t, "PublishDeposit", 1)
	maker.wallet.AssertNumberOfCalls(t, "PublishPayout", 1)

	require.Eventually(t, func() bool {
		return clock.pendingTimers() == 0
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		stages := taker.publisher.stages(trade.ID)
		return len(stages) > 0 && contains(stages, domain.PhaseCompleted.String())
	}, waitFor, tick)
}

func TestDuplicateMessagesAreNoOps(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	maker := newTestNode(t, makerAddr, net, clock, nodeOpts{setupWallet: happyWallet}).start(t)

	offer := newOffer()
	require.NoError(t, maker.repo.OfferRepository().AddOffer(ctx, offer))
	trade := newTakerTrade(t, offer)

	offerTaken := offerTakenMessage(trade)
	require.NoError(t, maker.svc.HandleMessage(ctx, offerTaken))
	require.NoError(t, maker.svc.HandleMessage(ctx, offerTaken))

	deposit := buyerMessage(trade.ID, domain.MessageDepositPublished)
	deposit.TxID = depositTxID
	require.NoError(t, maker.svc.HandleMessage(ctx, deposit))
	require.NoError(t, maker.svc.HandleMessage(ctx, deposit))
	maker.waitForPhase(t, trade.ID, domain.PhaseDepositConfirmed)

	payment := buyerMessage(trade.ID, domain.MessagePaymentStarted)
	retransmitted := buyerMessage(trade.ID, domain.MessagePaymentStarted)
	require.NoError(t, maker.svc.HandleMessage(ctx, payment))
	require.NoError(t, maker.svc.HandleMessage(ctx, payment))
	require.NoError(t, maker.svc.HandleMessage(ctx, retransmitted))

	// Actions are queued after the messages, so they're all consumed once
	// this returns.
	require.NoError(t, maker.do(trade.ID, domain.ActionConfirmPaymentReceived))

	got := maker.trade(t, trade.ID)
	require.True(t, got.ProcessModel.IsProcessed(offerTaken.UID))
	require.True(t, got.ProcessModel.IsProcessed(payment.UID))
	require.False(t, got.ProcessModel.IsProcessed(retransmitted.UID))
	require.GreaterOrEqual(t, got.Phase, domain.PhasePaymentReceivedConfirmed)

	trades, err := maker.repo.TradeRepository().GetAllTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	maker.wallet.AssertNumberOfCalls(t, "ConfirmDeposit", 1)
}

func TestMessagesFromUnexpectedSenders(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	maker := newTestNode(t, makerAddr, net, clock, nodeOpts{setupWallet: happyWallet}).start(t)

	offer := newOffer()
	require.NoError(t, maker.repo.OfferRepository().AddOffer(ctx, offer))
	trade := newTakerTrade(t, offer)
	require.NoError(t, maker.svc.HandleMessage(ctx, offerTakenMessage(trade)))

	impostor := domain.NewMessage(
		trade.ID, domain.MessageDepositPublished, domain.RoleBuyer,
		domain.NodeAddress{Host: "impostor.onion", Port: 9999},
	)
	impostor.TxID = depositTxID
	wrongRole := domain.NewMessage(
		trade.ID, domain.MessageDepositPublished, domain.RoleSeller, takerAddr,
	)
	wrongRole.TxID = depositTxID
	fakeArbitrator := domain.NewMessage(
		trade.ID, domain.MessageDisputeOpened, domain.RoleArbitrator, takerAddr,
	)
	for _, msg := range []domain.Message{impostor, wrongRole, fakeArbitrator} {
		require.NoError(t, maker.svc.HandleMessage(ctx, msg))
	}
	require.NoError(t, maker.do(trade.ID, domain.ActionCancel))

	got := maker.trade(t, trade.ID)
	require.Equal(t, domain.PhaseFailed, got.Phase)
	require.Equal(t, domain.FailureCanceled, got.FailureReason)
	require.Equal(t, domain.DisputeNone, got.Dispute.Code)
	require.False(t, got.ProcessModel.IsProcessed(impostor.UID))
	require.Len(t, net.sentOfType(domain.MessageTradeCanceled), 1)
}

func TestHandleMessage(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	node := newTestNode(t, makerAddr, net, clock, nodeOpts{}).start(t)

	msg := buyerMessage("", domain.MessagePaymentStarted)
	err := node.svc.HandleMessage(ctx, msg)
	require.ErrorIs(t, err, domain.ErrProtocolViolation)

	msg = buyerMessage("trade-id", domain.MessagePaymentStarted)
	msg.UID = ""
	err = node.svc.HandleMessage(ctx, msg)
	require.ErrorIs(t, err, domain.ErrProtocolViolation)

	// Unknown trades are discarded.
	msg = buyerMessage("trade-id", domain.MessagePaymentStarted)
	require.NoError(t, node.svc.HandleMessage(ctx, msg))
	_, err = node.repo.TradeRepository().GetTrade(ctx, "trade-id")
	require.ErrorIs(t, err, domain.ErrTradeNotFound)
}

func TestDo(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	taker := newTestNode(t, takerAddr, net, clock, nodeOpts{setupWallet: happyWallet}).start(t)

	trade := newTakerTrade(t, newOffer())
	require.NoError(t, taker.svc.OpenTrade(ctx, trade))
	taker.waitForPhase(t, trade.ID, domain.PhaseDepositConfirmed)

	tests := []struct {
		name        string
		tradeID     string
		action      domain.Action
		expectedErr error
	}{
		{"unknown trade", "unknown", domain.ActionStartPayment, domain.ErrTradeNotFound},
		{"wallet action", trade.ID, domain.ActionPublishDeposit, protocol.ErrActionNotAllowed},
		{"action of the counterparty", trade.ID, domain.ActionConfirmPaymentReceived, domain.ErrRoleNotPermitted},
		{"cancel after deposit", trade.ID, domain.ActionCancel, domain.ErrCancelNotAllowed},
		{"close dispute as trader", trade.ID, domain.ActionCloseDispute, domain.ErrRoleNotPermitted},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := taker.do(tt.tradeID, tt.action)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}

	require.Equal(t, domain.PhaseDepositConfirmed, taker.trade(t, trade.ID).Phase)

	taker.svc.Stop()
	err := taker.do(trade.ID, domain.ActionStartPayment)
	require.ErrorIs(t, err, protocol.ErrServiceStopped)
}

func TestStalledTradeDoesNotFail(t *testing.T) {
	t.Run("waiting for the counterparty", func(t *testing.T) {
		net, clock := newNetwork(), newFakeClock()
		maker := newTestNode(t, makerAddr, net, clock, nodeOpts{}).start(t)

		offer := newOffer()
		require.NoError(t, maker.repo.OfferRepository().AddOffer(ctx, offer))
		trade := newTakerTrade(t, offer)
		require.NoError(t, maker.svc.HandleMessage(ctx, offerTakenMessage(trade)))
		maker.waitForPhase(t, trade.ID, domain.PhaseOfferTaken)

		require.Eventually(t, func() bool {
			clock.Advance(protocol.DefaultPhaseTimeout)
			got := maker.trade(t, trade.ID)
			return got.Stall.Kind == domain.StallTimeout
		}, waitFor, tick)

		got := maker.trade(t, trade.ID)
		require.Equal(t, domain.PhaseOfferTaken, got.Phase)
		require.Equal(t, domain.PhaseOfferTaken, got.Stall.Phase)
		require.True(t, got.Stall.EscalationOffered)

		// The late message is still accepted.
		deposit := buyerMessage(trade.ID, domain.MessageDepositPublished)
		deposit.TxID = depositTxID
		maker.wallet.On("ConfirmDeposit", mock.Anything, depositTxID).Return(false, nil)
		require.NoError(t, maker.svc.HandleMessage(ctx, deposit))
		maker.waitFor(t, trade.ID, func(trade *domain.Trade) bool {
			return trade.Phase == domain.PhaseDepositPublished &&
				!trade.Stall.IsStalled()
		})
	})

	t.Run("waiting for the deposit confirmation", func(t *testing.T) {
		net, clock := newNetwork(), newFakeClock()
		taker := newTestNode(t, takerAddr, net, clock, nodeOpts{
			setupWallet: func(w *mockWallet) {
				w.On("PublishDeposit", mock.Anything, mock.Anything).Return(depositTxID, nil)
				w.On("ConfirmDeposit", mock.Anything, depositTxID).Return(false, nil)
			},
		}).start(t)

		trade := newTakerTrade(t, newOffer())
		require.NoError(t, taker.svc.OpenTrade(ctx, trade))
		taker.waitForPhase(t, trade.ID, domain.PhaseDepositPublished)

		require.Eventually(t, func() bool {
			clock.Advance(protocol.DefaultWalletConfirmTimeout)
			got := taker.trade(t, trade.ID)
			return got.Stall.Kind == domain.StallTimeout
		}, waitFor, tick)

		got := taker.trade(t, trade.ID)
		require.Equal(t, domain.PhaseDepositPublished, got.Phase)
		require.NotEmpty(t, got.Stall.Detail)
		require.Equal(t, domain.PhaseDepositPublished.String(), got.Stage())
	})
}

func TestWalletFailures(t *testing.T) {
	t.Run("retries exhausted", func(t *testing.T) {
		net, clock := newNetwork(), newFakeClock()
		taker := newTestNode(t, takerAddr, net, clock, nodeOpts{
			setupWallet: func(w *mockWallet) {
				w.On("PublishDeposit", mock.Anything, mock.Anything).
					Return("", errWalletUnavailable)
			},
		}).start(t)

		trade := newTakerTrade(t, newOffer())
		require.NoError(t, taker.svc.OpenTrade(ctx, trade))

		require.Eventually(t, func() bool {
			clock.Advance(time.Minute)
			got := taker.trade(t, trade.ID)
			return got.Stall.Kind == domain.StallWalletFailure
		}, waitFor, tick)

		got := taker.trade(t, trade.ID)
		require.Equal(t, domain.PhaseOfferTaken, got.Phase)
		require.Contains(t, got.Stall.Detail, "node unavailable")
		// First attempt plus the configured retries.
		taker.wallet.AssertNumberOfCalls(t, "PublishDeposit", 3)
	})

	t.Run("fatal error", func(t *testing.T) {
		net, clock := newNetwork(), newFakeClock()
		taker := newTestNode(t, takerAddr, net, clock, nodeOpts{
			setupWallet: func(w *mockWallet) {
				w.On("PublishDeposit", mock.Anything, mock.Anything).
					Return("", errors.New("insufficient funds"))
			},
		}).start(t)

		trade := newTakerTrade(t, newOffer())
		require.NoError(t, taker.svc.OpenTrade(ctx, trade))

		taker.waitFor(t, trade.ID, func(trade *domain.Trade) bool {
			return trade.Stall.Kind == domain.StallWalletFailure
		})
		taker.wallet.AssertNumberOfCalls(t, "PublishDeposit", 1)
		require.Equal(t, domain.PhaseOfferTaken, taker.trade(t, trade.ID).Phase)
	})
}

func TestRestartRecovery(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	repo := inmemory.NewRepoManager()

	first := newTestNode(t, takerAddr, net, clock, nodeOpts{
		repo: repo,
		setupWallet: func(w *mockWallet) {
			w.On("PublishDeposit", mock.Anything, mock.Anything).Return(depositTxID, nil)
			w.On("ConfirmDeposit", mock.Anything, depositTxID).
				Return(false, errWalletUnavailable)
		},
	}).start(t)

	trade := newTakerTrade(t, newOffer())
	require.NoError(t, first.svc.OpenTrade(ctx, trade))
	first.waitForPhase(t, trade.ID, domain.PhaseDepositPublished)
	first.svc.Stop()

	second := newTestNode(t, takerAddr, net, clock, nodeOpts{
		repo:        repo,
		setupWallet: happyWallet,
	}).start(t)

	second.waitForPhase(t, trade.ID, domain.PhaseDepositConfirmed)
	second.wallet.AssertNotCalled(t, "PublishDeposit", mock.Anything, mock.Anything)

	got := second.trade(t, trade.ID)
	require.Equal(t, depositTxID, got.ProcessModel.DepositTxID())
	require.NotZero(t, got.Deadline)
}

func TestRestartWithExpiredDeadline(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	repo := inmemory.NewRepoManager()

	offer := newOffer()
	trade := newTakerTrade(t, offer)
	_, err := trade.PublishDeposit(trade.Role, depositTxID)
	require.NoError(t, err)
	_, err = trade.ConfirmDeposit(depositTxID)
	require.NoError(t, err)
	trade.Deadline = clock.Now().Add(-time.Minute).Unix()
	require.NoError(t, repo.TradeRepository().AddTrade(ctx, trade))

	node := newTestNode(t, takerAddr, net, clock, nodeOpts{repo: repo}).start(t)

	require.Eventually(t, func() bool {
		clock.Advance(0)
		return node.trade(t, trade.ID).Stall.Kind == domain.StallTimeout
	}, waitFor, tick)
	require.Equal(t, domain.PhaseDepositConfirmed, node.trade(t, trade.ID).Phase)
}

func TestDispute(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	maker := newTestNode(t, makerAddr, net, clock, nodeOpts{setupWallet: happyWallet}).start(t)
	taker := newTestNode(t, takerAddr, net, clock, nodeOpts{setupWallet: happyWallet}).start(t)
	taker.arbitration.On("OpenDispute", mock.Anything, mock.Anything, "seller unresponsive").
		Return(nil)

	offer := newOffer()
	require.NoError(t, maker.repo.OfferRepository().AddOffer(ctx, offer))
	trade := newTakerTrade(t, offer)
	require.NoError(t, taker.svc.OpenTrade(ctx, trade))
	maker.waitForPhase(t, trade.ID, domain.PhaseDepositConfirmed)
	taker.waitForPhase(t, trade.ID, domain.PhaseDepositConfirmed)

	err := taker.svc.Do(ctx, trade.ID, protocol.UserAction{
		Action: domain.ActionRequestDispute, Reason: "seller unresponsive",
	})
	require.NoError(t, err)

	taker.waitFor(t, trade.ID, func(trade *domain.Trade) bool {
		return trade.Dispute.Code == domain.DisputeOpened
	})
	maker.waitFor(t, trade.ID, func(trade *domain.Trade) bool {
		return trade.Dispute.Code == domain.DisputeRequested
	})

	// While the dispute is live the seller can't confirm, and the buyer loses
	// the right to confirm once the trade is arbitrated.
	err = maker.do(trade.ID, domain.ActionConfirmPaymentReceived)
	require.ErrorIs(t, err, domain.ErrTradeInDispute)
	err = taker.do(trade.ID, domain.ActionStartPayment)
	require.ErrorIs(t, err, domain.ErrTradeInDispute)
	err = maker.do(trade.ID, domain.ActionCancel)
	require.ErrorIs(t, err, domain.ErrTradeInDispute)

	takerTrade := taker.trade(t, trade.ID)
	require.True(t, takerTrade.Dispute.Arbitrated)
	require.Zero(t, takerTrade.Deadline)
	require.Equal(t, domain.DisputeOpened.String(), takerTrade.Stage())

	opened := arbitratorMessage(trade.ID, domain.MessageDisputeOpened)
	require.NoError(t, maker.svc.HandleMessage(ctx, opened))
	maker.waitFor(t, trade.ID, func(trade *domain.Trade) bool {
		return trade.Dispute.Code == domain.DisputeOpened
	})

	outcome := domain.DisputeOutcome{
		Resolution: domain.ResolutionPayoutBuyer,
		PayoutTxID: "dispute-payout-tx",
		Summary:    "payment proof verified",
	}
	for _, node := range []*testNode{maker, taker} {
		closed := arbitratorMessage(trade.ID, domain.MessageDisputeClosed)
		closed.Outcome = &outcome
		require.NoError(t, node.svc.HandleMessage(ctx, closed))
		node.waitForPhase(t, trade.ID, domain.PhaseCompleted)

		got := node.trade(t, trade.ID)
		require.Equal(t, domain.DisputeClosed, got.Dispute.Code)
		require.Equal(t, "dispute-payout-tx", got.ProcessModel.PayoutTxID())
	}

	maker.wallet.AssertNotCalled(t, "PublishPayout", mock.Anything, mock.Anything)
	taker.arbitration.AssertNumberOfCalls(t, "OpenDispute", 1)
}

func TestDisputeAbandoned(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	taker := newTestNode(t, takerAddr, net, clock, nodeOpts{setupWallet: happyWallet}).start(t)
	taker.arbitration.On("OpenDispute", mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	trade := newTakerTrade(t, newOffer())
	require.NoError(t, taker.svc.OpenTrade(ctx, trade))
	taker.waitForPhase(t, trade.ID, domain.PhaseDepositConfirmed)

	require.NoError(t, taker.do(trade.ID, domain.ActionRequestDispute))
	taker.waitFor(t, trade.ID, func(trade *domain.Trade) bool {
		return trade.Dispute.Code == domain.DisputeOpened
	})

	closed := arbitratorMessage(trade.ID, domain.MessageDisputeClosed)
	closed.Outcome = &domain.DisputeOutcome{Resolution: domain.ResolutionAbandon}
	require.NoError(t, taker.svc.HandleMessage(ctx, closed))

	taker.waitForPhase(t, trade.ID, domain.PhaseFailed)
	require.Equal(
		t, domain.FailureDisputeAbandoned, taker.trade(t, trade.ID).FailureReason,
	)
}

func TestDisputeFailure(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	taker := newTestNode(t, takerAddr, net, clock, nodeOpts{setupWallet: happyWallet}).start(t)
	taker.arbitration.On("OpenDispute", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("arbitrator offline"))

	trade := newTakerTrade(t, newOffer())
	require.NoError(t, taker.svc.OpenTrade(ctx, trade))
	taker.waitForPhase(t, trade.ID, domain.PhaseDepositConfirmed)

	require.NoError(t, taker.do(trade.ID, domain.ActionRequestDispute))

	require.Eventually(t, func() bool {
		clock.Advance(time.Minute)
		return taker.trade(t, trade.ID).Stall.Kind == domain.StallDisputeFailure
	}, waitFor, tick)

	got := taker.trade(t, trade.ID)
	require.Equal(t, domain.DisputeRequested, got.Dispute.Code)
	require.Equal(t, domain.PhaseDepositConfirmed, got.Phase)
	require.False(t, got.Stall.EscalationOffered)
	require.Contains(t, got.Stall.Detail, "arbitrator offline")
}

func TestArbitratorMode(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	arbitrator := newTestNode(t, arbitratorAddr, net, clock, nodeOpts{
		arbitratorMode: true,
	}).start(t)

	offer := newOffer()
	trade := newTakerTrade(t, offer)

	request := buyerMessage(trade.ID, domain.MessageDisputeRequested)
	request.OfferID = offer.ID
	request.Offer = &offer
	request.Amount = trade.Amount
	request.Payload[domain.PayloadReason] = "seller unresponsive"
	request.Payload[domain.PayloadPrice] = fmt.Sprint(trade.Price)
	request.Payload[domain.PayloadMaker] = makerAddr.String()
	request.Payload[domain.PayloadTaker] = takerAddr.String()
	require.NoError(t, arbitrator.svc.HandleMessage(ctx, request))

	arbitrator.waitFor(t, trade.ID, func(trade *domain.Trade) bool {
		return trade.Dispute.Code == domain.DisputeOpened
	})
	got := arbitrator.trade(t, trade.ID)
	require.Equal(t, domain.RoleArbitrator, got.Role)
	require.Equal(t, "seller unresponsive", got.Dispute.Reason)
	require.Equal(t, domain.KnownAddress(arbitratorAddr), got.Arbitrator)

	require.Eventually(t, func() bool {
		return len(net.sentOfType(domain.MessageDisputeOpened)) == 2
	}, waitFor, tick)
	recipients := make([]domain.NodeAddress, 0)
	for _, s := range net.sentOfType(domain.MessageDisputeOpened) {
		recipients = append(recipients, s.to)
	}
	require.ElementsMatch(t, []domain.NodeAddress{makerAddr, takerAddr}, recipients)

	outcome := domain.DisputeOutcome{Resolution: domain.ResolutionPayoutSeller}

	arbitrator.arbitration.On("CloseDispute", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("traders unreachable")).Once()
	err := arbitrator.svc.Do(ctx, trade.ID, protocol.UserAction{
		Action: domain.ActionCloseDispute, Outcome: outcome,
	})
	require.Error(t, err)
	got = arbitrator.trade(t, trade.ID)
	require.Equal(t, domain.DisputeOpened, got.Dispute.Code)
	require.Equal(t, domain.StallDisputeFailure, got.Stall.Kind)

	arbitrator.arbitration.On("CloseDispute", mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	err = arbitrator.svc.Do(ctx, trade.ID, protocol.UserAction{
		Action: domain.ActionCloseDispute, Outcome: outcome,
	})
	require.NoError(t, err)

	got = arbitrator.trade(t, trade.ID)
	require.Equal(t, domain.PhaseCompleted, got.Phase)
	require.Equal(t, domain.DisputeClosed, got.Dispute.Code)
	require.NotZero(t, got.Dispute.Outcome.ClosedAt)

	// Closing again is a no-op.
	err = arbitrator.svc.Do(ctx, trade.ID, protocol.UserAction{
		Action: domain.ActionCloseDispute, Outcome: outcome,
	})
	require.NoError(t, err)
	arbitrator.arbitration.AssertNumberOfCalls(t, "CloseDispute", 2)
}

func TestOfferAvailability(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	maker := newTestNode(t, makerAddr, net, clock, nodeOpts{}).start(t)

	offer := newOffer()
	require.NoError(t, maker.repo.OfferRepository().AddOffer(ctx, offer))

	refusals := func() int {
		count := 0
		for _, s := range net.sentOfType(domain.MessageTradeCanceled) {
			if s.to == takerAddr &&
				s.msg.Payload[domain.PayloadReason] == domain.ErrOfferNotAvailable.Error() {
				count++
			}
		}
		return count
	}
	makerTrades := func() []*domain.Trade {
		trades, err := maker.repo.TradeRepository().GetTradesByOffer(ctx, offer.ID)
		require.NoError(t, err)
		return trades
	}

	// Each take is for half of the offer amount.
	takes := make([]*domain.Trade, 0, 3)
	for i := 0; i < 3; i++ {
		trade := newTakerTrade(t, offer)
		takes = append(takes, trade)
		require.NoError(t, maker.svc.HandleMessage(ctx, offerTakenMessage(trade)))
	}

	require.Eventually(t, func() bool {
		return refusals() == 1
	}, waitFor, tick)
	require.Len(t, makerTrades(), 2)
	require.Equal(t, offer.Amount, domain.CommittedAmount(makerTrades()))

	refused := net.sentOfType(domain.MessageTradeCanceled)[0].msg
	require.Equal(t, domain.RoleSeller, refused.SenderRole)
	require.Equal(t, makerAddr, refused.Sender)
	_, err := maker.repo.TradeRepository().GetTrade(ctx, refused.TradeID)
	require.ErrorIs(t, err, domain.ErrTradeNotFound)

	// Canceling one of the trades frees its amount for a new take.
	var accepted *domain.Trade
	for _, trade := range takes {
		if trade.ID != refused.TradeID {
			accepted = trade
			break
		}
	}
	require.NoError(t, maker.do(accepted.ID, domain.ActionCancel))

	again := newTakerTrade(t, offer)
	require.NoError(t, maker.svc.HandleMessage(ctx, offerTakenMessage(again)))
	maker.waitForPhase(t, again.ID, domain.PhaseOfferTaken)

	require.Len(t, makerTrades(), 3)
	require.Equal(t, 1, refusals())
	require.Equal(t, offer.Amount, domain.CommittedAmount(makerTrades()))
}

func TestEarlyMessagesAreDeferred(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	maker := newTestNode(t, makerAddr, net, clock, nodeOpts{
		setupWallet: func(w *mockWallet) {
			w.On("ConfirmDeposit", mock.Anything, depositTxID).Return(false, nil).Once()
			w.On("ConfirmDeposit", mock.Anything, depositTxID).Return(true, nil)
		},
	}).start(t)

	offer := newOffer()
	require.NoError(t, maker.repo.OfferRepository().AddOffer(ctx, offer))
	trade := newTakerTrade(t, offer)
	require.NoError(t, maker.svc.HandleMessage(ctx, offerTakenMessage(trade)))

	deposit := buyerMessage(trade.ID, domain.MessageDepositPublished)
	deposit.TxID = depositTxID
	require.NoError(t, maker.svc.HandleMessage(ctx, deposit))
	maker.waitForPhase(t, trade.ID, domain.PhaseDepositPublished)

	// The buyer saw the deposit confirmed before the seller did.
	payment := buyerMessage(trade.ID, domain.MessagePaymentStarted)
	payment.Payload[domain.PayloadProof] = "sepa-ref-42"
	require.NoError(t, maker.svc.HandleMessage(ctx, payment))
	require.NoError(t, maker.svc.HandleMessage(ctx, payment))

	maker.waitFor(t, trade.ID, func(trade *domain.Trade) bool {
		return trade.ProcessModel.IsDeferred(payment.UID)
	})
	got := maker.trade(t, trade.ID)
	require.Equal(t, domain.PhaseDepositPublished, got.Phase)
	require.Len(t, got.ProcessModel.DeferredMessages, 1)
	require.False(t, got.ProcessModel.IsProcessed(payment.UID))

	require.Eventually(t, func() bool {
		clock.Advance(protocol.DefaultConfirmPollInterval)
		return maker.trade(t, trade.ID).Phase == domain.PhasePaymentStarted
	}, waitFor, tick)

	got = maker.trade(t, trade.ID)
	require.Empty(t, got.ProcessModel.DeferredMessages)
	require.True(t, got.ProcessModel.IsProcessed(payment.UID))
	require.Equal(t, "sepa-ref-42", got.ProcessModel.Value(domain.StepPaymentSent))
}

func TestDeferredMessagesSurviveRestart(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	repo := inmemory.NewRepoManager()

	offer := newOffer()
	trade, err := domain.NewMakerTrade(
		offer, 1000, 2000, domain.KnownAddress(takerAddr),
		domain.KnownAddress(arbitratorAddr),
	)
	require.NoError(t, err)
	require.NoError(t, trade.SetAmount(domain.AtomicUnitsPerXMR))
	_, err = trade.PublishDeposit(domain.RoleBuyer, depositTxID)
	require.NoError(t, err)
	_, err = trade.ConfirmDeposit(depositTxID)
	require.NoError(t, err)

	payment := buyerMessage(trade.ID, domain.MessagePaymentStarted)
	require.True(t, trade.ProcessModel.Defer(payment))
	require.NoError(t, repo.TradeRepository().AddTrade(ctx, trade))

	node := newTestNode(t, makerAddr, net, clock, nodeOpts{repo: repo}).start(t)

	node.waitForPhase(t, trade.ID, domain.PhasePaymentStarted)
	got := node.trade(t, trade.ID)
	require.Empty(t, got.ProcessModel.DeferredMessages)
	require.True(t, got.ProcessModel.IsProcessed(payment.UID))
}

func TestConcurrentEvents(t *testing.T) {
	const n = 10

	t.Run("actions", func(t *testing.T) {
		net, clock := newNetwork(), newFakeClock()
		taker := newTestNode(t, takerAddr, net, clock, nodeOpts{setupWallet: happyWallet}).start(t)

		trade := newTakerTrade(t, newOffer())
		require.NoError(t, taker.svc.OpenTrade(ctx, trade))
		taker.waitForPhase(t, trade.ID, domain.PhaseDepositConfirmed)

		var wg sync.WaitGroup
		paymentErrs := make(chan error, n)
		cancelErrs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				paymentErrs <- taker.do(trade.ID, domain.ActionStartPayment)
			}()
			go func() {
				defer wg.Done()
				cancelErrs <- taker.do(trade.ID, domain.ActionCancel)
			}()
		}
		wg.Wait()
		close(paymentErrs)
		close(cancelErrs)

		for err := range paymentErrs {
			require.NoError(t, err)
		}
		for err := range cancelErrs {
			require.ErrorIs(t, err, domain.ErrCancelNotAllowed)
		}

		require.Equal(t, domain.PhasePaymentStarted, taker.trade(t, trade.ID).Phase)
		require.Len(t, net.sentOfType(domain.MessagePaymentStarted), 1)
		require.Empty(t, net.sentOfType(domain.MessageTradeCanceled))

		stage := domain.PhasePaymentStarted.String()
		require.Eventually(t, func() bool {
			return contains(taker.publisher.stages(trade.ID), stage)
		}, waitFor, tick)
		count := 0
		for _, s := range taker.publisher.stages(trade.ID) {
			if s == stage {
				count++
			}
		}
		require.Equal(t, 1, count)
	})

	t.Run("messages", func(t *testing.T) {
		net, clock := newNetwork(), newFakeClock()
		maker := newTestNode(t, makerAddr, net, clock, nodeOpts{setupWallet: happyWallet}).start(t)

		offer := newOffer()
		require.NoError(t, maker.repo.OfferRepository().AddOffer(ctx, offer))
		trade := newTakerTrade(t, offer)
		require.NoError(t, maker.svc.HandleMessage(ctx, offerTakenMessage(trade)))

		deposit := buyerMessage(trade.ID, domain.MessageDepositPublished)
		deposit.TxID = depositTxID
		require.NoError(t, maker.svc.HandleMessage(ctx, deposit))
		maker.waitForPhase(t, trade.ID, domain.PhaseDepositConfirmed)

		payment := buyerMessage(trade.ID, domain.MessagePaymentStarted)
		uids := []string{payment.UID}
		retransmissions := make([]domain.Message, 0, n)
		for i := 0; i < n; i++ {
			msg := buyerMessage(trade.ID, domain.MessagePaymentStarted)
			retransmissions = append(retransmissions, msg)
			uids = append(uids, msg.UID)
		}

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				require.NoError(t, maker.svc.HandleMessage(ctx, payment))
			}()
			go func(msg domain.Message) {
				defer wg.Done()
				require.NoError(t, maker.svc.HandleMessage(ctx, msg))
			}(retransmissions[i])
		}
		wg.Wait()

		// Flush the messages queued ahead of the action.
		require.NoError(t, maker.do(trade.ID, domain.ActionConfirmPaymentReceived))

		got := maker.trade(t, trade.ID)
		processed := 0
		for _, uid := range uids {
			if got.ProcessModel.IsProcessed(uid) {
				processed++
			}
		}
		require.Equal(t, 1, processed)
		require.Empty(t, got.ProcessModel.DeferredMessages)
		require.GreaterOrEqual(t, got.Phase, domain.PhasePaymentReceivedConfirmed)
		require.Len(t, net.sentOfType(domain.MessagePaymentReceived), 1)
	})
}

func TestStopWaitsForPublishing(t *testing.T) {
	net, clock := newNetwork(), newFakeClock()
	taker := newTestNode(t, takerAddr, net, clock, nodeOpts{
		setupWallet:  happyWallet,
		publishDelay: 20 * time.Millisecond,
	}).start(t)

	trade := newTakerTrade(t, newOffer())
	require.NoError(t, taker.svc.OpenTrade(ctx, trade))
	require.Eventually(t, func() bool {
		return taker.publisher.inFlight.Load() > 0
	}, waitFor, time.Millisecond)

	taker.svc.Stop()
	require.Zero(t, taker.publisher.inFlight.Load())
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}
