package escrowwallet

import "github.com/tdex-network/tdex-escrow/internal/core/domain"

type tradeParams struct {
	TradeID string `json:"trade_id"`
	OfferID string `json:"offer_id"`
	Role    string `json:"role"`
	Amount  uint64 `json:"amount"`
	Maker   string `json:"maker"`
	Taker   string `json:"taker"`
}

func newTradeParams(trade domain.Trade) tradeParams {
	return tradeParams{
		TradeID: trade.ID,
		OfferID: trade.Offer.ID,
		Role:    trade.Role.String(),
		Amount:  trade.Amount,
		Maker:   trade.Maker.String(),
		Taker:   trade.Taker.String(),
	}
}

type depositParams struct {
	tradeParams
	SecurityDeposit uint64 `json:"security_deposit"`
	TxFee           uint64 `json:"tx_fee"`
	TakerFee        uint64 `json:"taker_fee"`
}

type payoutParams struct {
	tradeParams
	DepositTxID  string `json:"deposit_txid"`
	PayoutAmount uint64 `json:"payout_amount,omitempty"`
	Resolution   string `json:"resolution,omitempty"`
}

type txStatusParams struct {
	TxID string `json:"txid"`
}

type connStatus int

const (
	statusUnknown connStatus = iota
	statusConnected
	statusDisconnected
)

type statusResult struct {
	Network string `json:"network"`
	Synced  bool   `json:"synced"`
}

type txResult struct {
	TxID string `json:"txid"`
}

type txStatusResult struct {
	Confirmed     bool   `json:"confirmed"`
	Confirmations uint64 `json:"confirmations"`
}
