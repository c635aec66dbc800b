package types

// State represents the lifecycle state of an election candidate.
//
// States follow a defined progression during normal operation:
//
//	StateCreated → StateElecting → StateLeader / StateFollower
//
// The state moves back to StateElecting from StateLeader or StateFollower
// when the contested slot is observed to be deleted, and a new claim is
// issued without delay.
//
// StateDone is absorbing: once a candidate reaches it (via Finish or a
// dead coordination session) no further transition occurs.
type State int32

const (
	// StateCreated is the initial state before Start is called.
	StateCreated State = iota

	// StateElecting indicates a leader election is being conducted.
	StateElecting

	// StateLeader indicates this candidate won and currently is the leader.
	StateLeader

	// StateFollower indicates another candidate currently is the leader.
	StateFollower

	// StateDone indicates the candidate has stopped and will not join
	// leader election any further.
	StateDone
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateElecting:
		return "Electing"
	case StateLeader:
		return "Leader"
	case StateFollower:
		return "Follower"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state is absorbing.
func (s State) Terminal() bool {
	return s == StateDone
}
