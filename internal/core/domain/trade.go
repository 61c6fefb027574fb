package domain

import (
	"fmt"
	"time"
)

const (
	// FailureCanceled is the failure reason of a canceled trade.
	FailureCanceled = "canceled"
	// FailureDisputeAbandoned is the failure reason of a trade whose dispute
	// was closed without payout.
	FailureDisputeAbandoned = "dispute_abandoned"
)

// SetAmount resolves the amount of a trade created with a deferred amount.
// Setting the same amount twice is a no-op, while changing it is refused.
func (t *Trade) SetAmount(amount uint64) error {
	if t.AmountSet {
		if t.Amount == amount {
			return nil
		}
		return ErrAmountAlreadySet
	}
	if err := ValidateTakeAmount(t.Offer, amount); err != nil {
		return fmt.Errorf("%w: %s", ErrProtocolViolation, err)
	}
	t.Amount = amount
	t.AmountSet = true
	return nil
}

// SetTaker records the address of the taker, if not known yet.
func (t *Trade) SetTaker(addr NodeAddress) error {
	if known, ok := t.Taker.Get(); ok {
		if known != addr {
			return fmt.Errorf(
				"%w: taker address already set to %s", ErrProtocolViolation, known,
			)
		}
		return nil
	}
	t.Taker = KnownAddress(addr)
	return nil
}

// PayoutAmount returns the amount released to the local party at the end of
// the trade. It fails with a precondition error if the amount is unset.
func (t *Trade) PayoutAmount() (uint64, error) {
	b, err := behaviorFor(t.Role)
	if err != nil {
		return 0, err
	}
	return b.payoutAmount(t)
}

// ConfirmPermitted returns whether the local party may confirm its side of
// the trade (payment sent for the buyer, payment received for the seller).
func (t *Trade) ConfirmPermitted() bool {
	b, err := behaviorFor(t.Role)
	if err != nil {
		return false
	}
	return b.confirmPermitted(t)
}

// CanInitiate returns whether the local party may initiate the given action
// as opposed to only observe it.
func (t *Trade) CanInitiate(a Action) bool {
	if err := checkPermission(t.Role, a); err != nil {
		return false
	}
	if a == ActionPublishDeposit {
		return t.Role == t.Offer.TakerRole()
	}
	return true
}

// CounterpartyRole returns the role of the other trader.
func (t *Trade) CounterpartyRole() Role {
	switch t.Role {
	case RoleBuyer:
		return RoleSeller
	case RoleSeller:
		return RoleBuyer
	default:
		return RoleUnspecified
	}
}

// Counterparty returns the address of the other trader. The local party is
// identified by role and maker flag, never by comparing addresses.
func (t *Trade) Counterparty() MaybeAddress {
	if t.IsMaker {
		return t.Taker
	}
	return t.Maker
}

// AddressOf returns the address of the trader playing the given role.
func (t *Trade) AddressOf(role Role) MaybeAddress {
	switch role {
	case RoleArbitrator:
		return t.Arbitrator
	case t.Offer.MakerRole():
		return t.Maker
	case t.Offer.TakerRole():
		return t.Taker
	default:
		return UnknownAddress()
	}
}

// PublishDeposit brings the trade from OfferTaken to DepositPublished. Only
// the taker publishes the escrow deposit.
func (t *Trade) PublishDeposit(initiator Role, txID string) (bool, error) {
	if err := checkPermission(initiator, ActionPublishDeposit); err != nil {
		return false, err
	}
	if initiator != t.Offer.TakerRole() {
		return false, fmt.Errorf(
			"%w: only the taker publishes the deposit", ErrRoleNotPermitted,
		)
	}
	if ok, err := t.checkReplay(PhaseDepositPublished); ok || err != nil {
		return false, err
	}
	if txID == "" {
		return false, ErrMissingTxID
	}
	if !t.AmountSet {
		return false, ErrAmountNotSet
	}
	if t.Phase != PhaseOfferTaken {
		return false, ErrTradeMustBeOfferTaken
	}

	t.setPhase(PhaseDepositPublished)
	t.ProcessModel.Put(StepDepositTx, txID, nil)
	t.Timestamp.DepositPublished = t.Timestamp.PhaseUpdated
	return true, nil
}

// ConfirmDeposit brings the trade from DepositPublished to DepositConfirmed
// once the wallet reports the deposit as confirmed. If given, txID must match
// the published deposit.
func (t *Trade) ConfirmDeposit(txID string) (bool, error) {
	if ok, err := t.checkReplay(PhaseDepositConfirmed); ok || err != nil {
		return false, err
	}
	if t.Phase != PhaseDepositPublished {
		return false, ErrTradeMustBeDepositPublished
	}
	if txID != "" && txID != t.ProcessModel.DepositTxID() {
		return false, fmt.Errorf(
			"%w: confirmed tx %s is not the deposit", ErrProtocolViolation, txID,
		)
	}

	t.setPhase(PhaseDepositConfirmed)
	t.ProcessModel.Put(StepDepositConfirmation, t.ProcessModel.DepositTxID(), nil)
	return true, nil
}

// StartPayment brings the trade from DepositConfirmed to PaymentStarted when
// the buyer declares the counter currency payment as sent.
func (t *Trade) StartPayment(initiator Role, proof string) (bool, error) {
	if err := checkPermission(initiator, ActionStartPayment); err != nil {
		return false, err
	}
	if ok, err := t.checkReplay(PhasePaymentStarted); ok || err != nil {
		return false, err
	}
	if err := t.checkConfirmPermitted(initiator); err != nil {
		return false, err
	}
	if t.Phase != PhaseDepositConfirmed {
		return false, ErrTradeMustBeDepositConfirmed
	}

	t.setPhase(PhasePaymentStarted)
	t.ProcessModel.Put(StepPaymentSent, proof, nil)
	t.Timestamp.PaymentStarted = t.Timestamp.PhaseUpdated
	return true, nil
}

// ConfirmPaymentReceived brings the trade from PaymentStarted to
// PaymentReceivedConfirmed when the seller confirms the receipt of the
// counter currency payment.
func (t *Trade) ConfirmPaymentReceived(initiator Role) (bool, error) {
	if err := checkPermission(initiator, ActionConfirmPaymentReceived); err != nil {
		return false, err
	}
	if ok, err := t.checkReplay(PhasePaymentReceivedConfirmed); ok || err != nil {
		return false, err
	}
	if err := t.checkConfirmPermitted(initiator); err != nil {
		return false, err
	}
	if t.Phase != PhasePaymentStarted {
		return false, ErrTradeMustBePaymentStarted
	}

	t.setPhase(PhasePaymentReceivedConfirmed)
	t.ProcessModel.Put(StepPaymentReceived, initiator.String(), nil)
	return true, nil
}

// PublishPayout brings the trade from PaymentReceivedConfirmed to
// PayoutPublished. The payout is published by the seller once the payment
// is received.
func (t *Trade) PublishPayout(initiator Role, txID string) (bool, error) {
	if err := checkPermission(initiator, ActionPublishPayout); err != nil {
		return false, err
	}
	if ok, err := t.checkReplay(PhasePayoutPublished); ok || err != nil {
		return false, err
	}
	if txID == "" {
		return false, ErrMissingTxID
	}
	if t.Phase != PhasePaymentReceivedConfirmed {
		return false, ErrTradeMustBePaymentReceived
	}

	t.setPhase(PhasePayoutPublished)
	t.ProcessModel.Put(StepPayoutTx, txID, nil)
	return true, nil
}

// Complete brings the trade from PayoutPublished to Completed once the payout
// is confirmed. While a dispute is live, completion happens only through
// CloseDispute.
func (t *Trade) Complete() (bool, error) {
	if ok, err := t.checkReplay(PhaseCompleted); ok || err != nil {
		return false, err
	}
	if t.Dispute.IsLive() {
		return false, ErrTradeInDispute
	}
	if t.Phase != PhasePayoutPublished {
		return false, ErrTradeMustBePayoutPublished
	}

	t.setPhase(PhaseCompleted)
	t.Timestamp.Completed = t.Timestamp.PhaseUpdated
	return true, nil
}

// Cancel abandons the trade. It's allowed only before the deposit is
// published, since after that funds are escrowed and only a dispute or the
// happy path can release them.
func (t *Trade) Cancel(initiator Role) (bool, error) {
	if err := checkPermission(initiator, ActionCancel); err != nil {
		return false, err
	}
	if t.Phase == PhaseFailed && t.FailureReason == FailureCanceled {
		return false, nil
	}
	if t.Phase.IsTerminal() {
		return false, ErrTradeClosed
	}
	if t.Dispute.IsLive() {
		return false, ErrTradeInDispute
	}
	if t.Phase != PhaseOfferTaken {
		return false, ErrCancelNotAllowed
	}

	t.fail(FailureCanceled)
	return true, nil
}

// RequestDispute opens the dispute track of the trade. It can be requested
// from any non terminal phase by either trader.
func (t *Trade) RequestDispute(initiator Role, reason string) (bool, error) {
	if err := checkPermission(initiator, ActionRequestDispute); err != nil {
		return false, err
	}
	if t.Dispute.Code >= DisputeRequested {
		return false, nil
	}
	if t.Phase.IsTerminal() {
		return false, ErrTradeClosed
	}

	t.Dispute.Code = DisputeRequested
	t.Dispute.Reason = reason
	t.ProcessModel.Put(StepDisputeRequest, reason, []byte(initiator.String()))
	t.Stall = Stall{}
	return true, nil
}

// OpenDispute marks the dispute as taken over by the arbitrator. From now on
// the payout of the trade is controlled by the arbitration subsystem. A
// dispute opened by the counterparty may skip the Requested step.
func (t *Trade) OpenDispute(arbitrator NodeAddress, reason string) (bool, error) {
	if t.Dispute.Code >= DisputeOpened {
		return false, nil
	}
	if t.Phase.IsTerminal() {
		return false, ErrTradeClosed
	}

	if t.Dispute.Reason == "" {
		t.Dispute.Reason = reason
	}
	t.Dispute.Code = DisputeOpened
	t.Dispute.Arbitrated = true
	if !arbitrator.IsZero() {
		t.Arbitrator = KnownAddress(arbitrator)
	}
	t.Stall = Stall{}
	return true, nil
}

// CloseDispute applies the arbitrator's decision: the trade is Completed if
// the outcome releases the escrow, otherwise it's Failed.
func (t *Trade) CloseDispute(initiator Role, outcome DisputeOutcome) (bool, error) {
	if err := checkPermission(initiator, ActionCloseDispute); err != nil {
		return false, err
	}
	if t.Dispute.Code == DisputeClosed {
		return false, nil
	}
	if t.Dispute.Code != DisputeOpened {
		return false, ErrDisputeMustBeOpened
	}
	if !outcome.IsValid() {
		return false, ErrMissingDisputeOutcome
	}

	if outcome.ClosedAt == 0 {
		outcome.ClosedAt = time.Now().Unix()
	}
	t.Dispute.Code = DisputeClosed
	t.Dispute.Outcome = &outcome
	t.ProcessModel.Put(StepDisputeResolution, outcome.Resolution.String(), []byte(outcome.Summary))

	if !outcome.ReleasesFunds() {
		t.fail(FailureDisputeAbandoned)
		return true, nil
	}
	if outcome.PayoutTxID != "" {
		t.ProcessModel.Put(StepPayoutTx, outcome.PayoutTxID, nil)
	}
	t.setPhase(PhaseCompleted)
	t.Timestamp.Completed = t.Timestamp.PhaseUpdated
	return true, nil
}

// MarkStalled surfaces a stalled-trade condition without changing the phase.
// Dispute escalation is offered to traders unless a dispute is already live.
func (t *Trade) MarkStalled(kind StallKind, detail string) bool {
	if t.Phase.IsTerminal() || kind == StallNone {
		return false
	}
	if t.Stall.Kind == kind && t.Stall.Phase == t.Phase {
		return false
	}
	t.Stall = Stall{
		Kind:              kind,
		Phase:             t.Phase,
		Since:             time.Now().Unix(),
		Detail:            detail,
		EscalationOffered: t.Role.IsTrader() && !t.Dispute.IsLive(),
	}
	return true
}

// ClearStall removes the stall condition, if any.
func (t *Trade) ClearStall() bool {
	if !t.Stall.IsStalled() {
		return false
	}
	t.Stall = Stall{}
	return true
}

// Stage returns the combined view of phase and dispute track, as shown to
// users: the dispute code while a dispute is live, the phase otherwise.
func (t *Trade) Stage() string {
	if t.Dispute.IsLive() {
		return t.Dispute.Code.String()
	}
	return t.Phase.String()
}

// IsPending returns whether the trade is not in a terminal phase.
func (t *Trade) IsPending() bool {
	return !t.Phase.IsTerminal()
}

// IsCompleted ...
func (t *Trade) IsCompleted() bool {
	return t.Phase == PhaseCompleted
}

// IsFailed ...
func (t *Trade) IsFailed() bool {
	return t.Phase == PhaseFailed
}

// AddEvidence records a piece of protocol evidence for the given step.
func (t *Trade) AddEvidence(step, value string, blob []byte) {
	t.ProcessModel.Put(step, value, blob)
}

// checkReplay returns true if the trade already reached the target phase,
// meaning that the triggering event was already applied.
func (t *Trade) checkReplay(target Phase) (bool, error) {
	if t.Phase == PhaseFailed {
		return false, fmt.Errorf("%w: %s", ErrProtocolViolation, ErrTradeClosed)
	}
	return t.Phase >= target, nil
}

func (t *Trade) checkConfirmPermitted(initiator Role) error {
	b, err := behaviorFor(initiator)
	if err != nil {
		return err
	}
	if !b.confirmPermitted(t) {
		return fmt.Errorf("%w: %s cannot confirm", ErrTradeInDispute, initiator)
	}
	return nil
}

func (t *Trade) setPhase(p Phase) {
	t.Phase = p
	t.Timestamp.PhaseUpdated = time.Now().Unix()
	t.Deadline = 0
	t.Stall = Stall{}
}

func (t *Trade) fail(reason string) {
	t.setPhase(PhaseFailed)
	t.FailureReason = reason
}
