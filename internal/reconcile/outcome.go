package reconcile

// Outcome reports what a Reconciler did with an input.
type Outcome int

const (
	// OutcomeIgnored means the input was a duplicate or a no-op.
	OutcomeIgnored Outcome = iota
	// OutcomeApplied means the list changed.
	OutcomeApplied
	// OutcomeBuffered means the event was queued until Seed.
	OutcomeBuffered
	// OutcomeNeedsDetail means the owner must fetch the row and call ApplyDetail.
	OutcomeNeedsDetail
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeApplied:
		return "applied"
	case OutcomeBuffered:
		return "buffered"
	case OutcomeNeedsDetail:
		return "needs_detail"
	default:
		return "unknown"
	}
}

// Changed reports whether listeners should be notified.
func (o Outcome) Changed() bool {
	return o == OutcomeApplied
}
