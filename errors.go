package campaign

import "github.com/okanek/campaign/types"

// Sentinel errors returned by the Election and Reader.
//
// These alias the instances in the types subpackage so that errors.Is
// matches regardless of which package an error was produced in.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrCoordinatorRequired is returned when neither a NATS connection
	// nor a custom Coordinator is configured.
	ErrCoordinatorRequired = types.ErrCoordinatorRequired

	// ErrInvalidState is returned when Start is called in any state other
	// than StateCreated.
	ErrInvalidState = types.ErrInvalidState

	// ErrSlotTaken is the expected-negative outcome of a claim against an
	// already-held slot.
	ErrSlotTaken = types.ErrSlotTaken

	// ErrSlotMissing is the expected-negative outcome of reading a slot
	// nobody holds.
	ErrSlotMissing = types.ErrSlotMissing
)
