package interfaces

// Service is an inbound surface of the escrow daemon, the operator api or
// the endpoints reached by the other nodes. Start returns once the surface
// accepts connections, Stop drains the requests in flight.
type Service interface {
	Start() error
	Stop()
	// Addresses returns the addresses the surface is bound to, by name. It
	// is empty before Start.
	Addresses() map[string]string
}
