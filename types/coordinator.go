package types

import "context"

// Permissions is an opaque permissions descriptor for slot creation.
//
// It is passed through to Coordinator.Create unmodified and never
// interpreted by the election driver. Implementations that have no
// per-entry access control (e.g. NATS KV, where access control is
// bucket-level) are free to ignore it.
type Permissions any

// OpenPermissions is the default descriptor: everyone may read and
// delete the slot. Unsafe for untrusted environments.
var OpenPermissions Permissions = "open:unsafe"

// SessionState describes the liveness of the coordination session.
type SessionState int

const (
	// SessionHealthy means the session is usable.
	SessionHealthy SessionState = iota

	// SessionDegraded means the session is temporarily unusable
	// (e.g. reconnecting). Calls may fail transiently but the session
	// can recover.
	SessionDegraded

	// SessionAuthFailed means the session was rejected permanently by
	// the coordination service.
	SessionAuthFailed

	// SessionClosed means the session was closed and will never
	// recover.
	SessionClosed
)

// String returns the string representation of the session state.
func (s SessionState) String() string {
	switch s {
	case SessionHealthy:
		return "Healthy"
	case SessionDegraded:
		return "Degraded"
	case SessionAuthFailed:
		return "AuthFailed"
	case SessionClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Fatal reports whether the session is permanently dead. A fatal session
// routes the election driver to StateDone through the termination gate.
func (s SessionState) Fatal() bool {
	return s == SessionAuthFailed || s == SessionClosed
}

// WatchEventKind classifies a change observed on a watched slot.
type WatchEventKind int

const (
	// WatchCreated means the slot came into existence.
	WatchCreated WatchEventKind = iota

	// WatchDeleted means the slot was deleted or expired.
	WatchDeleted

	// WatchDataChanged means the slot content was replaced.
	WatchDataChanged

	// WatchOther covers events the coordinator cannot classify.
	WatchOther
)

// String returns the string representation of the event kind.
func (k WatchEventKind) String() string {
	switch k {
	case WatchCreated:
		return "Created"
	case WatchDeleted:
		return "Deleted"
	case WatchDataChanged:
		return "DataChanged"
	case WatchOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// WatchEvent is a single change notification for a watched slot.
type WatchEvent struct {
	// Kind classifies the change.
	Kind WatchEventKind

	// Value is the slot content after the change; nil for WatchDeleted.
	Value []byte
}

// Watch is an active change subscription on a slot.
type Watch interface {
	// Events returns the channel delivering change notifications.
	// The channel is closed when the watch terminates, either via Stop
	// or because the underlying session ended.
	Events() <-chan WatchEvent

	// Stop cancels the subscription and releases its resources.
	// Safe to call more than once.
	Stop() error
}

// Coordinator is the narrow capability interface the election consumes
// from a hierarchical coordination service.
//
// Implementations can use:
//   - NATS JetStream KV (built-in, see package natskv)
//   - External services (Consul, etcd, ZooKeeper)
//   - In-memory fakes for deterministic tests
//
// Outcome contract (see the sentinel errors in this package): every call
// either succeeds, fails with a well-known expected-negative sentinel
// that drives a defined state transition, or fails with any other error,
// which the driver always treats as transient and retries.
type Coordinator interface {
	// Create atomically creates the slot with the given content as a
	// session-scoped (TTL-bound) entry.
	//
	// Returns:
	//   - nil: the slot was created and this session owns it
	//   - ErrSlotTaken: the slot already exists
	//   - other error: outcome ambiguous, caller must resolve via Read
	Create(ctx context.Context, key string, value []byte, perms Permissions) error

	// Read returns the current content of the slot.
	//
	// Returns:
	//   - (value, nil): the slot exists with the given content
	//   - (nil, ErrSlotMissing): the slot does not exist
	//   - (nil, other): transient failure, caller retries
	Read(ctx context.Context, key string) ([]byte, error)

	// WatchExists atomically checks slot existence and installs a change
	// subscription. The returned Watch is armed in both outcomes so the
	// caller observes every change after the existence check, with no
	// gap in between.
	//
	// Returns:
	//   - (exists, watch, nil): check done, watch delivering future events
	//   - (false, nil, err): installation failed, caller retries
	WatchExists(ctx context.Context, key string) (bool, Watch, error)

	// Renew refreshes the session scope of a slot this candidate
	// created, keeping a TTL-bound claim alive. Failure means the claim
	// was lost or the refresh raced a takeover; the caller relies on its
	// watch to observe the actual slot state.
	Renew(ctx context.Context, key string, value []byte) error

	// SessionState reports the liveness of the coordination session.
	// Polled synchronously by the termination gate before every call.
	SessionState() SessionState
}
