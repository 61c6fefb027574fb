package domain

import "fmt"

// Advice returns an actionable, role aware message for the condition the
// trade is in, or an empty string if nothing is required from the user.
func Advice(t *Trade) string {
	switch {
	case t.Phase == PhaseFailed && t.FailureReason == FailureDisputeAbandoned:
		return "The arbitrator closed the dispute without payout. Contact the arbitrator for details."
	case t.Phase.IsTerminal():
		return ""
	case t.Stall.Kind == StallDisputeFailure:
		return "The arbitrator could not be reached. The trade stays in dispute, retry opening the dispute later."
	case t.Dispute.Code == DisputeOpened:
		return "The dispute is in the hands of the arbitrator. Provide any evidence the arbitrator asks for."
	case t.Dispute.Code == DisputeRequested:
		return "A dispute was requested. Wait for the arbitrator to open it."
	case t.Stall.Kind == StallWalletFailure:
		return walletFailureAdvice(t)
	case t.Stall.Kind == StallTimeout:
		return timeoutAdvice(t)
	default:
		return ""
	}
}

func walletFailureAdvice(t *Trade) string {
	msg := fmt.Sprintf(
		"The wallet failed repeatedly while in phase %s. Check the wallet connection and sync status.", t.Phase,
	)
	if t.Stall.EscalationOffered {
		msg += " If the problem persists, open a dispute."
	}
	return msg
}

func timeoutAdvice(t *Trade) string {
	var action string
	switch t.Phase {
	case PhaseOfferTaken:
		if t.Role == t.Offer.TakerRole() {
			action = "Your deposit was not published yet, check your wallet balance."
		} else {
			action = "The taker did not publish the deposit yet."
		}
	case PhaseDepositPublished:
		action = "The deposit transaction is not confirmed yet."
	case PhaseDepositConfirmed:
		if t.Role == RoleBuyer {
			action = "Send the payment to the seller and mark it as started."
		} else {
			action = "The buyer did not start the payment yet."
		}
	case PhasePaymentStarted:
		if t.Role == RoleSeller {
			action = "Check your account for the buyer's payment and confirm its receipt."
		} else {
			action = "The seller did not confirm the receipt of your payment yet."
		}
	case PhasePaymentReceivedConfirmed:
		if t.Role == RoleSeller {
			action = "Your payout was not published yet, check your wallet."
		} else {
			action = "The seller did not publish the payout yet."
		}
	case PhasePayoutPublished:
		action = "The payout transaction is not confirmed yet."
	}
	if t.Stall.EscalationOffered {
		return action + " The trade period is over, you can open a dispute."
	}
	return action
}
