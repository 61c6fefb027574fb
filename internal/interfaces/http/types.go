package httpinterface

import (
	"strings"

	"github.com/tdex-network/tdex-escrow/internal/core/application/offer"
	"github.com/tdex-network/tdex-escrow/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/pkg/mathutil"
)

type createOfferRequest struct {
	Direction             string `json:"direction" validate:"required,oneof=BUY SELL"`
	CounterCurrency       string `json:"counter_currency" validate:"required,alpha,min=3,max=8"`
	PaymentMethod         string `json:"payment_method" validate:"required,max=64"`
	Price                 string `json:"price" validate:"required,amount"`
	Amount                string `json:"amount" validate:"required,amount"`
	MinAmount             string `json:"min_amount" validate:"omitempty,amount"`
	BuyerSecurityDeposit  string `json:"buyer_security_deposit" validate:"omitempty,amount"`
	SellerSecurityDeposit string `json:"seller_security_deposit" validate:"omitempty,amount"`
}

type takeOfferRequest struct {
	Amount string `json:"amount" validate:"required,amount"`
}

type paymentStartedRequest struct {
	Proof string `json:"proof" validate:"max=256"`
}

type disputeRequest struct {
	Reason string `json:"reason" validate:"max=1024"`
}

type closeDisputeRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=PAYOUT_BUYER PAYOUT_SELLER ABANDON"`
	PayoutTxID string `json:"payout_txid" validate:"required_unless=Resolution ABANDON,omitempty,hexadecimal"`
	Summary    string `json:"summary" validate:"max=1024"`
}

type addWebhookRequest struct {
	Event    string `json:"event" validate:"required"`
	Endpoint string `json:"endpoint" validate:"required,url"`
	Secret   string `json:"secret"`
}

type offerInfo struct {
	ID                    string            `json:"id"`
	Direction             string            `json:"direction"`
	MakerAddress          string            `json:"maker_address"`
	CounterCurrency       string            `json:"counter_currency"`
	PaymentMethod         string            `json:"payment_method"`
	Price                 string            `json:"price"`
	Amount                string            `json:"amount"`
	MinAmount             string            `json:"min_amount"`
	BuyerSecurityDeposit  string            `json:"buyer_security_deposit"`
	SellerSecurityDeposit string            `json:"seller_security_deposit"`
	ExtraData             map[string]string `json:"extra_data,omitempty"`
	CreatedAt             int64             `json:"created_at"`
}

func newOfferInfo(o domain.Offer) offerInfo {
	return offerInfo{
		ID:                    o.ID,
		Direction:             o.Direction.String(),
		MakerAddress:          o.MakerAddress.String(),
		CounterCurrency:       o.CounterCurrency,
		PaymentMethod:         o.PaymentMethod,
		Price:                 o.FormattedPrice(),
		Amount:                formatXMR(o.Amount),
		MinAmount:             formatXMR(o.MinAmount),
		BuyerSecurityDeposit:  formatXMR(o.BuyerSecurityDeposit),
		SellerSecurityDeposit: formatXMR(o.SellerSecurityDeposit),
		ExtraData:             o.ExtraData,
		CreatedAt:             o.CreatedAt,
	}
}

type stallInfo struct {
	Kind              string `json:"kind"`
	Phase             string `json:"phase"`
	Since             int64  `json:"since"`
	Detail            string `json:"detail"`
	EscalationOffered bool   `json:"escalation_offered"`
}

type disputeInfo struct {
	Code       string `json:"code"`
	Arbitrated bool   `json:"arbitrated"`
	Reason     string `json:"reason,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	PayoutTxID string `json:"payout_txid,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

type tradeInfo struct {
	ID            string      `json:"id"`
	Role          string      `json:"role"`
	IsMaker       bool        `json:"is_maker"`
	Stage         string      `json:"stage"`
	Phase         string      `json:"phase"`
	Offer         offerInfo   `json:"offer"`
	Amount        string      `json:"amount"`
	Price         string      `json:"price"`
	Volume        string      `json:"volume"`
	TxFee         string      `json:"tx_fee"`
	TakerFee      string      `json:"taker_fee"`
	Maker         string      `json:"maker"`
	Taker         string      `json:"taker"`
	Arbitrator    string      `json:"arbitrator"`
	DepositTxID   string      `json:"deposit_txid,omitempty"`
	PayoutTxID    string      `json:"payout_txid,omitempty"`
	Dispute       disputeInfo `json:"dispute"`
	Stall         *stallInfo  `json:"stall,omitempty"`
	Advice        string      `json:"advice,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
	Deadline      int64       `json:"deadline,omitempty"`
	CreatedAt     int64       `json:"created_at"`
	UpdatedAt     int64       `json:"updated_at"`
}

func newTradeInfo(t *domain.Trade) tradeInfo {
	info := tradeInfo{
		ID:            t.ID,
		Role:          t.Role.String(),
		IsMaker:       t.IsMaker,
		Stage:         t.Stage(),
		Phase:         t.Phase.String(),
		Offer:         newOfferInfo(t.Offer),
		Price:         mathutil.FromAtomicUnits(t.Price, domain.PricePrecision).String(),
		TxFee:         formatXMR(t.TxFee),
		TakerFee:      formatXMR(t.TakerFee),
		Maker:         t.Maker.String(),
		Taker:         t.Taker.String(),
		Arbitrator:    t.Arbitrator.String(),
		DepositTxID:   t.ProcessModel.DepositTxID(),
		PayoutTxID:    t.ProcessModel.PayoutTxID(),
		Dispute:       newDisputeInfo(t.Dispute),
		Advice:        domain.Advice(t),
		FailureReason: t.FailureReason,
		Deadline:      t.Deadline,
		CreatedAt:     t.Timestamp.Created,
		UpdatedAt:     t.Timestamp.PhaseUpdated,
	}
	if t.AmountSet {
		info.Amount = formatXMR(t.Amount)
		info.Volume = t.Offer.VolumeOf(t.Amount).String()
	}
	if t.Stall.IsStalled() {
		info.Stall = &stallInfo{
			Kind:              t.Stall.Kind.String(),
			Phase:             t.Stall.Phase.String(),
			Since:             t.Stall.Since,
			Detail:            t.Stall.Detail,
			EscalationOffered: t.Stall.EscalationOffered,
		}
	}
	return info
}

func newDisputeInfo(d domain.DisputeState) disputeInfo {
	info := disputeInfo{
		Code:       d.Code.String(),
		Arbitrated: d.IsArbitrated(),
		Reason:     d.Reason,
	}
	if d.Outcome != nil {
		info.Resolution = d.Outcome.Resolution.String()
		info.PayoutTxID = d.Outcome.PayoutTxID
		info.Summary = d.Outcome.Summary
	}
	return info
}

type webhookInfo struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	Endpoint  string `json:"endpoint"`
	IsSecured bool   `json:"is_secured"`
}

func newWebhookInfo(w pubsub.WebhookInfo) webhookInfo {
	return webhookInfo{w.ID, w.Event, w.Endpoint, w.IsSecured}
}

type errorResponse struct {
	Error string `json:"error"`
}

func formatXMR(units uint64) string {
	return mathutil.FromAtomicUnits(units, domain.XMRPrecision).String()
}

func (r createOfferRequest) toCreateOfferRequest() (offer.CreateOfferRequest, error) {
	direction := domain.OfferBuy
	if r.Direction == domain.OfferSell.String() {
		direction = domain.OfferSell
	}
	price, err := parsePrice(r.Price)
	if err != nil {
		return offer.CreateOfferRequest{}, err
	}
	amounts := make([]uint64, 4)
	for i, v := range []string{
		r.Amount, r.MinAmount, r.BuyerSecurityDeposit, r.SellerSecurityDeposit,
	} {
		if amounts[i], err = parseXMR(v); err != nil {
			return offer.CreateOfferRequest{}, err
		}
	}
	return offer.CreateOfferRequest{
		Direction:             direction,
		CounterCurrency:       strings.ToUpper(r.CounterCurrency),
		PaymentMethod:         r.PaymentMethod,
		Price:                 price,
		Amount:                amounts[0],
		MinAmount:             amounts[1],
		BuyerSecurityDeposit:  amounts[2],
		SellerSecurityDeposit: amounts[3],
	}, nil
}
