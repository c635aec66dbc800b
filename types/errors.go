package types

import "errors"

// Sentinel errors for the campaign library.
//
// These errors provide type-safe error checking using errors.Is() and
// errors.As(). All components should use these sentinel errors for known
// error conditions and wrap external errors with context using
// fmt.Errorf("%s: %w", msg, err).

// Public API errors returned by Election and Reader.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCoordinatorRequired is returned when neither a NATS connection
	// nor a custom Coordinator is configured.
	ErrCoordinatorRequired = errors.New("a coordinator is required")

	// ErrInvalidState is returned when Start is called in any state
	// other than StateCreated. The wrapping error message carries the
	// current state.
	ErrInvalidState = errors.New("invalid state")
)

// Coordinator outcome errors - the expected-negative results of
// coordination calls. Anything else returned by a Coordinator is treated
// as transient.
var (
	// ErrSlotTaken is returned by Coordinator.Create when the contested
	// slot already exists.
	ErrSlotTaken = errors.New("slot already claimed")

	// ErrSlotMissing is returned by Coordinator.Read when the contested
	// slot does not exist.
	ErrSlotMissing = errors.New("slot not found")
)
