package types

// MetricsCollector receives instrumentation events from the election
// driver.
//
// Implementations must be safe for concurrent use and must not block;
// the driver calls these methods inline between coordination calls.
// A Prometheus-backed implementation and a no-op implementation ship
// with the library.
type MetricsCollector interface {
	// IncrementTransition counts a state transition.
	IncrementTransition(from, to State)

	// IncrementClaim counts a claim attempt outcome
	// (won, lost, ambiguous).
	IncrementClaim(outcome string)

	// IncrementRetry counts a transient-error retry by operation
	// (resolve, track, renew).
	IncrementRetry(op string)

	// SetLeadership sets whether this candidate currently is the leader.
	SetLeadership(leader bool)

	// ObserveClaimLatency records the duration in seconds of one claim
	// attempt, from issuing Create to its classified outcome.
	ObserveClaimLatency(seconds float64)
}
