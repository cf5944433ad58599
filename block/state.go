package block

// State represents the lifecycle state of a block as observed by the engine
type State int

const (
	// StateConstructed indicates the block was created but not yet added
	// to a graph
	StateConstructed State = iota
	// StateAttached indicates the block is part of a graph; connections
	// are optional
	StateAttached
	// StateActive indicates the block is receiving or emitting data
	StateActive
	// StateDetached indicates the block was removed from its graph and
	// accepts no further calls
	StateDetached
)

// String returns a string representation of the block state
func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateAttached:
		return "attached"
	case StateActive:
		return "active"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}
