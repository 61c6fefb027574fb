package domain

import "time"

// Evidence is a piece of protocol evidence collected during one step of the
// trade protocol, like a transaction id, a public key or a payment proof.
type Evidence struct {
	Value     string
	Blob      []byte
	UpdatedAt int64
}

// MaxDeferredMessages bounds the messages a trade keeps while waiting to
// reach the phase they apply to.
const MaxDeferredMessages = 16

// ProcessModel accumulates the evidence exchanged during the trade protocol.
// Entries are only added or overwritten, never removed while the trade is
// alive. It also keeps track of the messages already applied to the trade,
// so that a retransmitted message is recognized as such after a restart, and
// of the messages received ahead of the phase they apply to.
type ProcessModel struct {
	Steps             map[string]Evidence
	ProcessedMessages map[string]int64
	DeferredMessages  []Message
}

// NewProcessModel returns an empty process model.
func NewProcessModel() ProcessModel {
	return ProcessModel{
		Steps:             make(map[string]Evidence),
		ProcessedMessages: make(map[string]int64),
	}
}

// Put adds or overwrites the evidence for the given step.
func (p *ProcessModel) Put(step, value string, blob []byte) {
	if p.Steps == nil {
		p.Steps = make(map[string]Evidence)
	}
	p.Steps[step] = Evidence{
		Value:     value,
		Blob:      append([]byte(nil), blob...),
		UpdatedAt: time.Now().Unix(),
	}
}

// Get returns the evidence for the given step, if any.
func (p ProcessModel) Get(step string) (Evidence, bool) {
	e, ok := p.Steps[step]
	return e, ok
}

// Value returns the value of the evidence for the given step, or an empty
// string if missing.
func (p ProcessModel) Value(step string) string {
	return p.Steps[step].Value
}

// DepositTxID returns the id of the escrow deposit transaction.
func (p ProcessModel) DepositTxID() string {
	return p.Value(StepDepositTx)
}

// PayoutTxID returns the id of the payout transaction.
func (p ProcessModel) PayoutTxID() string {
	return p.Value(StepPayoutTx)
}

// MultisigAddress returns the address of the escrow wallet.
func (p ProcessModel) MultisigAddress() string {
	return p.Value(StepMultisigAddress)
}

// PeerPubkey returns the public key of the counterparty.
func (p ProcessModel) PeerPubkey() []byte {
	return p.Steps[StepPeerPubkey].Blob
}

// IsProcessed returns whether the message with the given uid was already
// applied.
func (p ProcessModel) IsProcessed(messageUID string) bool {
	_, ok := p.ProcessedMessages[messageUID]
	return ok
}

// MarkProcessed records the given message uid as applied.
func (p *ProcessModel) MarkProcessed(messageUID string) {
	if messageUID == "" {
		return
	}
	if p.ProcessedMessages == nil {
		p.ProcessedMessages = make(map[string]int64)
	}
	p.ProcessedMessages[messageUID] = time.Now().Unix()
}

// Defer keeps a message that arrived before the trade reached the phase it
// applies to. It returns false if the message is already kept or the limit
// is reached.
func (p *ProcessModel) Defer(msg Message) bool {
	if msg.UID == "" || p.IsDeferred(msg.UID) ||
		len(p.DeferredMessages) >= MaxDeferredMessages {
		return false
	}
	p.DeferredMessages = append(p.DeferredMessages, msg.Clone())
	return true
}

// IsDeferred returns whether the message with the given uid is kept for
// later.
func (p ProcessModel) IsDeferred(messageUID string) bool {
	for _, m := range p.DeferredMessages {
		if m.UID == messageUID {
			return true
		}
	}
	return false
}

// DropDeferred removes the message with the given uid from the deferred
// ones and returns whether it was there.
func (p *ProcessModel) DropDeferred(messageUID string) bool {
	for i, m := range p.DeferredMessages {
		if m.UID == messageUID {
			p.DeferredMessages = append(
				p.DeferredMessages[:i:i], p.DeferredMessages[i+1:]...,
			)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the process model.
func (p ProcessModel) Clone() ProcessModel {
	clone := NewProcessModel()
	for k, v := range p.Steps {
		v.Blob = append([]byte(nil), v.Blob...)
		clone.Steps[k] = v
	}
	for k, v := range p.ProcessedMessages {
		clone.ProcessedMessages[k] = v
	}
	for _, m := range p.DeferredMessages {
		clone.DeferredMessages = append(clone.DeferredMessages, m.Clone())
	}
	return clone
}
