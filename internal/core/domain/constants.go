package domain

import (
	"fmt"
	"strings"
)

const (
	// AtomicUnitsPerXMR is the number of atomic units in one XMR.
	AtomicUnitsPerXMR = uint64(1_000_000_000_000)
	// XMRPrecision is the number of decimals of the base asset.
	XMRPrecision = 12
	// PricePrecision is the number of decimals of a fixed point price.
	PricePrecision = 4

	// StepDepositTx ...
	StepDepositTx = "deposit_tx"
	// StepDepositConfirmation ...
	StepDepositConfirmation = "deposit_confirmation"
	// StepMultisigAddress ...
	StepMultisigAddress = "multisig_address"
	// StepPeerPubkey ...
	StepPeerPubkey = "peer_pubkey"
	// StepPaymentSent ...
	StepPaymentSent = "payment_sent"
	// StepPaymentReceived ...
	StepPaymentReceived = "payment_received"
	// StepPayoutTx ...
	StepPayoutTx = "payout_tx"
	// StepDisputeRequest ...
	StepDisputeRequest = "dispute_request"
	// StepDisputeResolution ...
	StepDisputeResolution = "dispute_resolution"
)

// Network identifies the base currency network the daemon runs on.
type Network int

const (
	NetworkUnspecified Network = iota
	NetworkMainnet
	NetworkStagenet
	NetworkLocal
)

var networkNames = map[Network]string{
	NetworkMainnet:  "mainnet",
	NetworkStagenet: "stagenet",
	NetworkLocal:    "local",
}

func (n Network) String() string {
	if name, ok := networkNames[n]; ok {
		return name
	}
	return "unspecified"
}

// IsMainnet returns whether the network is the production one.
func (n Network) IsMainnet() bool {
	return n == NetworkMainnet
}

// NetworkFromString parses a network name (case insensitive).
func NetworkFromString(name string) (Network, error) {
	for n, s := range networkNames {
		if strings.EqualFold(s, name) {
			return n, nil
		}
	}
	return NetworkUnspecified, fmt.Errorf("unknown network %q", name)
}
