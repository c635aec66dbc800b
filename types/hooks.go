package types

// Hooks defines callbacks for Election lifecycle events.
//
// All hooks are optional; a nil field makes that notification a no-op.
// Hooks are invoked synchronously on the election's dispatch goroutine,
// in a fixed order for every transition: OnStateChanged fires first, then
// the role-specific hook (OnWin, OnLose, OnVacant or OnFinish) for the
// same event.
//
// IMPORTANT: Hook execution behavior:
//   - A panic or returned error from a hook is logged and discarded; it
//     never aborts the election driver.
//   - Because dispatch is synchronous, a slow hook delays the next
//     coordination call. Complete quickly (< 1 second recommended).
//   - State() and Finish() are safe to call from inside a hook.
//
// Example:
//
//	hooks := &campaign.Hooks{
//	    OnWin: func() error {
//	        log.Println("I'm the leader.")
//	        return nil
//	    },
//	    OnStateChanged: func(from, to campaign.State) error {
//	        log.Printf("state changed from %s to %s", from, to)
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnStateChanged is called on every state transition, before any
	// role-specific hook for the same event.
	OnStateChanged func(from, to State) error

	// OnWin is called when this candidate won a leader election.
	OnWin func() error

	// OnLose is called when it is detected that another candidate is
	// the leader.
	OnLose func() error

	// OnVacant is called when it is detected that no leader exists.
	// A new claim is issued immediately afterwards.
	OnVacant func() error

	// OnFinish is called when the election driver stops for good, either
	// because Finish() was called or because the coordination session
	// died. Delivery is best-effort: in rare shutdown races it may fire
	// late or not at all.
	OnFinish func() error
}

// ReadHooks defines callbacks for Reader results.
//
// The same dispatch rules as Hooks apply: synchronous, fault-isolated,
// nil fields are no-ops.
type ReadHooks struct {
	// OnRead is called with the slot content once it was read
	// successfully. The Reader stops afterwards.
	OnRead func(value []byte) error

	// OnGaveUp is called when the Reader stops without having read the
	// slot, either because Finish() was called or because the
	// coordination session died. Best-effort, like Hooks.OnFinish.
	OnGaveUp func() error
}
