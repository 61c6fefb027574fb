package pubsub

import (
	"time"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/pkg/mathutil"
)

func getTradePayload(trade domain.Trade) map[string]interface{} {
	payload := map[string]interface{}{
		"trade_id":         trade.ID,
		"role":             trade.Role.String(),
		"is_maker":         trade.IsMaker,
		"stage":            trade.Stage(),
		"phase":            trade.Phase.String(),
		"offer":            getOfferPayload(trade.Offer),
		"amount":           mathutil.FromAtomicUnits(trade.Amount, domain.XMRPrecision).String(),
		"price":            mathutil.FromAtomicUnits(trade.Price, domain.PricePrecision).String(),
		"volume":           trade.Offer.VolumeOf(trade.Amount).String(),
		"deposit_txid":     trade.ProcessModel.DepositTxID(),
		"payout_txid":      trade.ProcessModel.PayoutTxID(),
		"phase_updated_at": formatTime(trade.Timestamp.PhaseUpdated),
	}
	if trade.FailureReason != "" {
		payload["failure_reason"] = trade.FailureReason
	}
	if trade.Stall.IsStalled() {
		payload["stall"] = map[string]interface{}{
			"kind":               trade.Stall.Kind.String(),
			"phase":              trade.Stall.Phase.String(),
			"since":              formatTime(trade.Stall.Since),
			"detail":             trade.Stall.Detail,
			"escalation_offered": trade.Stall.EscalationOffered,
		}
	}
	if trade.Dispute.Code != domain.DisputeNone {
		payload["dispute"] = getDisputePayload(trade.Dispute)
	}
	return payload
}

func getOfferPayload(offer domain.Offer) map[string]interface{} {
	return map[string]interface{}{
		"id":               offer.ID,
		"direction":        offer.Direction.String(),
		"counter_currency": offer.CounterCurrency,
		"payment_method":   offer.PaymentMethod,
	}
}

func getDisputePayload(dispute domain.DisputeState) map[string]interface{} {
	payload := map[string]interface{}{
		"code":       dispute.Code.String(),
		"arbitrated": dispute.IsArbitrated(),
	}
	if dispute.Reason != "" {
		payload["reason"] = dispute.Reason
	}
	if dispute.Outcome != nil {
		payload["resolution"] = dispute.Outcome.Resolution.String()
		payload["payout_txid"] = dispute.Outcome.PayoutTxID
		payload["summary"] = dispute.Outcome.Summary
	}
	return payload
}

func formatTime(unix int64) string {
	if unix <= 0 {
		return ""
	}
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}
