package campaign

import "github.com/okanek/campaign/types"

// Re-export types from the internal types package.
//
// This file provides a stable public API for the library's core types and
// interfaces. It uses type aliases to re-export definitions from the
// `types` subpackage, which contains the actual implementations.
//
// This pattern solves the "import cycle" problem by allowing internal
// packages and coordinator implementations to depend on `types` without
// depending on the root `campaign` package, while still providing a
// convenient `campaign.State`, `campaign.Hooks`, etc. for users.
type (
	State        = types.State
	SessionState = types.SessionState
	Permissions  = types.Permissions
	WatchEvent   = types.WatchEvent
)

// Re-export interfaces from the internal types package for convenience.
type (
	Coordinator      = types.Coordinator
	Watch            = types.Watch
	Hooks            = types.Hooks
	ReadHooks        = types.ReadHooks
	Logger           = types.Logger
	MetricsCollector = types.MetricsCollector
)

// Re-export State constants from the internal types package.
const (
	StateCreated  = types.StateCreated
	StateElecting = types.StateElecting
	StateLeader   = types.StateLeader
	StateFollower = types.StateFollower
	StateDone     = types.StateDone
)

// Re-export SessionState constants from the internal types package.
const (
	SessionHealthy    = types.SessionHealthy
	SessionDegraded   = types.SessionDegraded
	SessionAuthFailed = types.SessionAuthFailed
	SessionClosed     = types.SessionClosed
)

// OpenPermissions is the default, unrestricted permissions descriptor.
var OpenPermissions = types.OpenPermissions
