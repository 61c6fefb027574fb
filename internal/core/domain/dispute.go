package domain

// DisputeCode is the position of a trade on the dispute track, which is
// independent from the trade phase.
type DisputeCode int

const (
	DisputeNone DisputeCode = iota
	DisputeRequested
	DisputeOpened
	DisputeClosed
)

var disputeCodeNames = map[DisputeCode]string{
	DisputeNone:      "NO_DISPUTE",
	DisputeRequested: "DISPUTE_REQUESTED",
	DisputeOpened:    "DISPUTE_OPENED",
	DisputeClosed:    "DISPUTE_CLOSED",
}

func (c DisputeCode) String() string {
	return disputeCodeNames[c]
}

// DisputeResolution is the decision taken by the arbitrator.
type DisputeResolution int

const (
	ResolutionUnspecified DisputeResolution = iota
	// ResolutionPayoutBuyer releases the escrow to the buyer (refund buyer).
	ResolutionPayoutBuyer
	// ResolutionPayoutSeller releases the escrow to the seller.
	ResolutionPayoutSeller
	// ResolutionAbandon closes the dispute without a payout, the trade fails.
	ResolutionAbandon
)

var resolutionNames = map[DisputeResolution]string{
	ResolutionUnspecified:  "UNSPECIFIED",
	ResolutionPayoutBuyer:  "PAYOUT_BUYER",
	ResolutionPayoutSeller: "PAYOUT_SELLER",
	ResolutionAbandon:      "ABANDON",
}

func (r DisputeResolution) String() string {
	return resolutionNames[r]
}

// DisputeResolutionFromString parses a resolution name.
func DisputeResolutionFromString(s string) DisputeResolution {
	for r, name := range resolutionNames {
		if name == s {
			return r
		}
	}
	return ResolutionUnspecified
}

// DisputeOutcome is the result of a closed dispute.
type DisputeOutcome struct {
	Resolution DisputeResolution
	PayoutTxID string
	Summary    string
	ClosedAt   int64
}

// ReleasesFunds returns whether the outcome pays the escrow out.
func (o DisputeOutcome) ReleasesFunds() bool {
	return o.Resolution == ResolutionPayoutBuyer ||
		o.Resolution == ResolutionPayoutSeller
}

// IsValid returns whether the outcome carries a known resolution.
func (o DisputeOutcome) IsValid() bool {
	return o.Resolution > ResolutionUnspecified && o.Resolution <= ResolutionAbandon
}

// DisputeState holds the dispute track of a trade. Arbitrated is set once an
// arbitrator took over the case, and stays set after the dispute is closed.
type DisputeState struct {
	Code       DisputeCode
	Arbitrated bool
	Reason     string
	Outcome    *DisputeOutcome
}

// IsLive returns whether a dispute is requested or opened and not yet closed.
func (d DisputeState) IsLive() bool {
	return d.Code == DisputeRequested || d.Code == DisputeOpened
}

// IsArbitrated returns whether the payout of the trade is controlled by the
// arbitration subsystem.
func (d DisputeState) IsArbitrated() bool {
	return d.Arbitrated
}

// IsClosed ...
func (d DisputeState) IsClosed() bool {
	return d.Code == DisputeClosed
}

func (d DisputeState) String() string {
	if d.Code == DisputeClosed && d.Arbitrated {
		return "DISPUTE_CLOSED_ARBITRATED"
	}
	return d.Code.String()
}
