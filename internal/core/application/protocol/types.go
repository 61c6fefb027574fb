package protocol

import (
	"fmt"
	"time"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

const (
	DefaultPhaseTimeout         = 24 * time.Hour
	DefaultWalletConfirmTimeout = 2 * time.Hour
	DefaultConfirmPollInterval  = 30 * time.Second
	DefaultWalletMaxRetries     = 5
	DefaultWalletRetryBackoff   = 2 * time.Second
	DefaultWorkerIdleTimeout    = time.Minute

	maxBackoffShift = 6
)

// Config holds the parameters of the trade protocol.
type Config struct {
	// Self is the address peers use to reach this node.
	Self domain.NodeAddress
	// ArbitratorMode makes the node accept dispute requests for trades it
	// doesn't know, acting as their arbitrator.
	ArbitratorMode bool
	// PhaseTimeout bounds the wait for a counterparty message or action.
	PhaseTimeout time.Duration
	// WalletConfirmTimeout bounds the wait for a deposit or payout
	// confirmation.
	WalletConfirmTimeout time.Duration
	ConfirmPollInterval  time.Duration
	WalletMaxRetries     int
	WalletRetryBackoff   time.Duration
	WorkerIdleTimeout    time.Duration
}

// DefaultConfig returns a config with default timeouts for the given node.
func DefaultConfig(self domain.NodeAddress) Config {
	return Config{
		Self:                 self,
		PhaseTimeout:         DefaultPhaseTimeout,
		WalletConfirmTimeout: DefaultWalletConfirmTimeout,
		ConfirmPollInterval:  DefaultConfirmPollInterval,
		WalletMaxRetries:     DefaultWalletMaxRetries,
		WalletRetryBackoff:   DefaultWalletRetryBackoff,
		WorkerIdleTimeout:    DefaultWorkerIdleTimeout,
	}
}

// Validate checks that every parameter is set to a usable value.
func (c Config) Validate() error {
	if c.Self.IsZero() {
		return fmt.Errorf("missing node address")
	}
	if c.PhaseTimeout <= 0 {
		return fmt.Errorf("phase timeout must be positive")
	}
	if c.WalletConfirmTimeout <= 0 {
		return fmt.Errorf("wallet confirm timeout must be positive")
	}
	if c.ConfirmPollInterval <= 0 {
		return fmt.Errorf("confirm poll interval must be positive")
	}
	if c.WalletMaxRetries < 0 {
		return fmt.Errorf("wallet max retries must not be negative")
	}
	if c.WalletRetryBackoff <= 0 {
		return fmt.Errorf("wallet retry backoff must be positive")
	}
	if c.WorkerIdleTimeout <= 0 {
		return fmt.Errorf("worker idle timeout must be positive")
	}
	return nil
}

// backoff returns the delay before the given retry attempt.
func (c Config) backoff(attempt int) time.Duration {
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	return c.WalletRetryBackoff << uint(attempt)
}

// UserAction is an action requested by the local user on a trade.
type UserAction struct {
	Action domain.Action
	// Proof is the optional payment proof attached to a started payment.
	Proof string
	// Reason is the optional reason of a dispute request.
	Reason string
	// Outcome is the decision of the arbitrator closing a dispute.
	Outcome domain.DisputeOutcome
}

// EventPublisher is notified of every persisted change of a trade.
type EventPublisher interface {
	PublishTradeUpdate(trade domain.Trade) error
}

type eventKind int

const (
	eventMessage eventKind = iota
	eventAction
	eventPublishDeposit
	eventPollDeposit
	eventPublishPayout
	eventPollPayout
	eventOpenDispute
	eventTimeout
	eventWalletReconnected
)

var eventKindNames = map[eventKind]string{
	eventMessage:           "message",
	eventAction:            "user action",
	eventPublishDeposit:    "publish deposit",
	eventPollDeposit:       "poll deposit",
	eventPublishPayout:     "publish payout",
	eventPollPayout:        "poll payout",
	eventOpenDispute:       "open dispute",
	eventTimeout:           "timeout",
	eventWalletReconnected: "wallet reconnected",
}

func (k eventKind) String() string {
	return eventKindNames[k]
}

// event is a unit of work for the worker of a trade.
type event struct {
	kind    eventKind
	msg     domain.Message
	action  UserAction
	attempt int
	phase   domain.Phase
	reply   chan error
}

// worker is the single consumer of the events of one trade.
type worker struct {
	tradeID string
	pending []event
	notify  chan struct{}
}

func newWorker(tradeID string) *worker {
	return &worker{tradeID: tradeID, notify: make(chan struct{}, 1)}
}
