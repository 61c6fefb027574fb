package domain

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	onionSuffix        = ".onion"
	legacyOnionHostLen = 16
)

// NodeAddress is the network address of a peer (onion host or ip and port).
type NodeAddress struct {
	Host string
	Port int
}

// ParseNodeAddress parses a <host:port> string into a NodeAddress.
func ParseNodeAddress(addr string) (NodeAddress, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("invalid node address %q: %w", addr, err)
	}
	if host == "" {
		return NodeAddress{}, fmt.Errorf("invalid node address %q: missing host", addr)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return NodeAddress{}, fmt.Errorf("invalid node address %q: bad port", addr)
	}
	return NodeAddress{Host: host, Port: p}, nil
}

func (a NodeAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// IsLegacyOnion returns whether the host is a v2 onion address, made of 16
// base32 chars.
func (a NodeAddress) IsLegacyOnion() bool {
	host := strings.TrimSuffix(a.Host, onionSuffix)
	return host != a.Host && len(host) == legacyOnionHostLen
}

// IsZero returns whether the address is the zero value.
func (a NodeAddress) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// MaybeAddress is a NodeAddress that might not be known yet, for example the
// taker's address on the maker side before the offer is taken.
type MaybeAddress struct {
	Address NodeAddress
	Known   bool
}

// KnownAddress wraps a known address.
func KnownAddress(addr NodeAddress) MaybeAddress {
	return MaybeAddress{Address: addr, Known: true}
}

// UnknownAddress returns an address that is not known yet.
func UnknownAddress() MaybeAddress {
	return MaybeAddress{}
}

// Get returns the address and whether it is known.
func (m MaybeAddress) Get() (NodeAddress, bool) {
	return m.Address, m.Known
}

func (m MaybeAddress) String() string {
	if !m.Known {
		return "unknown"
	}
	return m.Address.String()
}
