package httpinterface

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/tdex-escrow/internal/core/application/offer"
	"github.com/tdex-network/tdex-escrow/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-escrow/internal/core/application/trade"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

type mockTradeService struct {
	mock.Mock
}

func (m *mockTradeService) TakeOffer(
	ctx context.Context, offerID string, amount uint64,
) (*domain.Trade, error) {
	args := m.Called(ctx, offerID, amount)
	var res *domain.Trade
	if a := args.Get(0); a != nil {
		res = a.(*domain.Trade)
	}
	return res, args.Error(1)
}

func (m *mockTradeService) GetTrade(
	ctx context.Context, tradeID string,
) (*domain.Trade, error) {
	args := m.Called(ctx, tradeID)
	var res *domain.Trade
	if a := args.Get(0); a != nil {
		res = a.(*domain.Trade)
	}
	return res, args.Error(1)
}

func (m *mockTradeService) ListTrades(
	ctx context.Context, filter trade.Filter, page *domain.Page,
) ([]*domain.Trade, error) {
	args := m.Called(ctx, filter, page)
	var res []*domain.Trade
	if a := args.Get(0); a != nil {
		res = a.([]*domain.Trade)
	}
	return res, args.Error(1)
}

func (m *mockTradeService) StartPayment(ctx context.Context, tradeID, proof string) error {
	return m.Called(ctx, tradeID, proof).Error(0)
}

func (m *mockTradeService) ConfirmPaymentReceived(ctx context.Context, tradeID string) error {
	return m.Called(ctx, tradeID).Error(0)
}

func (m *mockTradeService) Cancel(ctx context.Context, tradeID string) error {
	return m.Called(ctx, tradeID).Error(0)
}

func (m *mockTradeService) RequestDispute(ctx context.Context, tradeID, reason string) error {
	return m.Called(ctx, tradeID, reason).Error(0)
}

func (m *mockTradeService) CloseDispute(
	ctx context.Context, tradeID string, outcome domain.DisputeOutcome,
) error {
	return m.Called(ctx, tradeID, outcome).Error(0)
}

type mockOfferService struct {
	mock.Mock
}

func (m *mockOfferService) CreateOffer(
	ctx context.Context, req offer.CreateOfferRequest,
) (*domain.Offer, error) {
	args := m.Called(ctx, req)
	var res *domain.Offer
	if a := args.Get(0); a != nil {
		res = a.(*domain.Offer)
	}
	return res, args.Error(1)
}

func (m *mockOfferService) GetOffer(
	ctx context.Context, offerID string,
) (*domain.Offer, error) {
	args := m.Called(ctx, offerID)
	var res *domain.Offer
	if a := args.Get(0); a != nil {
		res = a.(*domain.Offer)
	}
	return res, args.Error(1)
}

func (m *mockOfferService) ListOffers(
	ctx context.Context, page *domain.Page,
) ([]domain.Offer, error) {
	args := m.Called(ctx, page)
	var res []domain.Offer
	if a := args.Get(0); a != nil {
		res = a.([]domain.Offer)
	}
	return res, args.Error(1)
}

type mockWebhookService struct {
	mock.Mock
}

func (m *mockWebhookService) AddWebhook(
	ctx context.Context, webhook pubsub.Webhook,
) (string, error) {
	args := m.Called(ctx, webhook)
	return args.String(0), args.Error(1)
}

func (m *mockWebhookService) RemoveWebhook(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockWebhookService) ListWebhooks(
	ctx context.Context, event string,
) ([]pubsub.WebhookInfo, error) {
	args := m.Called(ctx, event)
	var res []pubsub.WebhookInfo
	if a := args.Get(0); a != nil {
		res = a.([]pubsub.WebhookInfo)
	}
	return res, args.Error(1)
}

type mockMessageHandler struct {
	mock.Mock
}

func (m *mockMessageHandler) HandleMessage(ctx context.Context, msg domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}
