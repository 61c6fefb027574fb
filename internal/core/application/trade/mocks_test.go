package trade_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/tdex-escrow/internal/core/application/protocol"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
)

type mockProtocol struct {
	mock.Mock
}

func (m *mockProtocol) OpenTrade(ctx context.Context, trade *domain.Trade) error {
	args := m.Called(ctx, trade)
	return args.Error(0)
}

func (m *mockProtocol) Do(
	ctx context.Context, tradeID string, action protocol.UserAction,
) error {
	args := m.Called(ctx, tradeID, action)
	return args.Error(0)
}

type mockOfferBook struct {
	mock.Mock
}

func (m *mockOfferBook) GetOffer(
	ctx context.Context, offerID string,
) (*domain.Offer, error) {
	args := m.Called(ctx, offerID)
	var res *domain.Offer
	if a := args.Get(0); a != nil {
		res = a.(*domain.Offer)
	}
	return res, args.Error(1)
}

func (m *mockOfferBook) AddOffer(ctx context.Context, offer domain.Offer) error {
	args := m.Called(ctx, offer)
	return args.Error(0)
}

func (m *mockOfferBook) ListOffers(ctx context.Context) ([]domain.Offer, error) {
	args := m.Called(ctx)
	var res []domain.Offer
	if a := args.Get(0); a != nil {
		res = a.([]domain.Offer)
	}
	return res, args.Error(1)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func (c fixedClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	return time.AfterFunc(d, f)
}
