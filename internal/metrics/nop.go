// Package metrics provides MetricsCollector implementations for the
// campaign library.
package metrics

import "github.com/okanek/campaign/types"

// NopMetrics is a MetricsCollector that discards every observation.
//
// Used as the default collector when none is configured, and embedded by
// partial implementations to satisfy the full interface.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: Collector that performs no operations
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// IncrementTransition discards the observation.
func (n *NopMetrics) IncrementTransition(_ /* from */, _ /* to */ types.State) {}

// IncrementClaim discards the observation.
func (n *NopMetrics) IncrementClaim(_ /* outcome */ string) {}

// IncrementRetry discards the observation.
func (n *NopMetrics) IncrementRetry(_ /* op */ string) {}

// SetLeadership discards the observation.
func (n *NopMetrics) SetLeadership(_ /* leader */ bool) {}

// ObserveClaimLatency discards the observation.
func (n *NopMetrics) ObserveClaimLatency(_ /* seconds */ float64) {}
