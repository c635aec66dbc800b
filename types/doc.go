// Package types contains the core types and interfaces of the campaign
// library.
//
// This package exists so that internal packages and coordinator
// implementations can share definitions without importing the root
// campaign package, which would create an import cycle. Users normally
// interact with the aliases re-exported by the root package
// (campaign.State, campaign.Hooks, campaign.Coordinator, ...) instead of
// importing this package directly.
package types
