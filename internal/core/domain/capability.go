package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Capability is a feature a node declares to support. Capabilities are
// exchanged as their ordinal value, so the order of the list must never
// change: new values go at the end.
type Capability int

const (
	CapabilityTradeStatistics Capability = iota
	CapabilityAccountAgeWitness
	CapabilityAckMessage
	CapabilityBundleOfEnvelopes
	CapabilitySignedAccountAgeWitness
	CapabilityMediation
	CapabilityRefundAgent
	CapabilityNoAddressPrefix
	CapabilityTradeStatisticsHashUpdate
	CapabilityMultisigEscrow
	CapabilityArbitration
	capabilityCount
)

// Capabilities is a set of capabilities.
type Capabilities map[Capability]struct{}

// NewCapabilities returns the set of the given capabilities.
func NewCapabilities(list ...Capability) Capabilities {
	caps := make(Capabilities, len(list))
	for _, c := range list {
		caps[c] = struct{}{}
	}
	return caps
}

// CapabilitiesFromStringList parses a comma separated list of capability
// ordinals. Entries that are not numbers or unknown ordinals are skipped, so
// that capabilities added by newer versions do not break older ones.
func CapabilitiesFromStringList(list string) Capabilities {
	caps := make(Capabilities)
	for _, s := range strings.Split(list, ",") {
		ordinal, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			continue
		}
		if ordinal < 0 || ordinal >= int(capabilityCount) {
			continue
		}
		caps[Capability(ordinal)] = struct{}{}
	}
	return caps
}

// Contains returns whether the set contains the given capability.
func (c Capabilities) Contains(capability Capability) bool {
	_, ok := c[capability]
	return ok
}

// HasMandatory returns whether the mandatory capability is declared.
func (c Capabilities) HasMandatory(mandatory Capability) bool {
	return c.Contains(mandatory)
}

// String returns the comma separated list of ordinals, sorted.
func (c Capabilities) String() string {
	ordinals := make([]int, 0, len(c))
	for capability := range c {
		ordinals = append(ordinals, int(capability))
	}
	sort.Ints(ordinals)
	list := make([]string, 0, len(ordinals))
	for _, o := range ordinals {
		list = append(list, strconv.Itoa(o))
	}
	return strings.Join(list, ",")
}
