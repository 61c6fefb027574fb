package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType identifies a trade protocol message.
type MessageType string

const (
	MessageOfferTaken       MessageType = "OFFER_TAKEN"
	MessageDepositPublished MessageType = "DEPOSIT_PUBLISHED"
	MessagePaymentStarted   MessageType = "PAYMENT_STARTED"
	MessagePaymentReceived  MessageType = "PAYMENT_RECEIVED"
	MessagePayoutPublished  MessageType = "PAYOUT_PUBLISHED"
	MessageTradeCanceled    MessageType = "TRADE_CANCELED"
	MessageDisputeRequested MessageType = "DISPUTE_REQUESTED"
	MessageDisputeOpened    MessageType = "DISPUTE_OPENED"
	MessageDisputeClosed    MessageType = "DISPUTE_CLOSED"
)

// Keys of the message payload.
const (
	PayloadTxFee      = "tx_fee"
	PayloadTakerFee   = "taker_fee"
	PayloadPrice      = "price"
	PayloadArbitrator = "arbitrator"
	PayloadMaker      = "maker"
	PayloadTaker      = "taker"
	PayloadProof      = "proof"
	PayloadReason     = "reason"
)

// Message is a trade protocol message exchanged between the parties of a
// trade. The transport may deliver it more than once and out of order.
type Message struct {
	UID        string
	TradeID    string
	OfferID    string
	Type       MessageType
	SenderRole Role
	Sender     NodeAddress
	Amount     uint64
	TxID       string
	Payload    map[string]string
	Outcome    *DisputeOutcome
	// Offer is attached to the messages that let the receiver create the
	// trade, like a dispute request sent to the arbitrator.
	Offer     *Offer
	Timestamp int64
}

// NewMessage returns a message with a fresh uid.
func NewMessage(
	tradeID string, msgType MessageType, senderRole Role, sender NodeAddress,
) Message {
	return Message{
		UID:        uuid.New().String(),
		TradeID:    tradeID,
		Type:       msgType,
		SenderRole: senderRole,
		Sender:     sender,
		Payload:    make(map[string]string),
		Timestamp:  time.Now().Unix(),
	}
}

// Clone returns a copy of the message that shares no state with it.
func (m Message) Clone() Message {
	clone := m
	clone.Payload = make(map[string]string, len(m.Payload))
	for k, v := range m.Payload {
		clone.Payload[k] = v
	}
	if m.Outcome != nil {
		outcome := *m.Outcome
		clone.Outcome = &outcome
	}
	if m.Offer != nil {
		offer := m.Offer.Clone()
		clone.Offer = &offer
	}
	return clone
}
