package graph

// Bus topics the engine publishes on. Subscribers use Engine.Events().
const (
	// TopicBlockFault carries BlockFaultEvent for isolated computation
	// faults
	TopicBlockFault = "graph.block.fault"
	// TopicTopology carries TopologyEvent for applied mutations
	TopicTopology = "graph.topology"
	// TopicLifecycle carries LifecycleEvent for engine start/stop
	TopicLifecycle = "graph.lifecycle"
)

// BlockFaultEvent reports a block computation fault that was isolated by the
// engine. Sibling fan-out branches still received their delivery.
type BlockFaultEvent struct {
	Block string
	Port  string
	Err   error
}

// TopologyEvent reports an applied topology mutation.
type TopologyEvent struct {
	Operation  string // "add-block", "remove-block", "connect", "disconnect"
	Block      string
	Connection *Connection // nil for block operations
}

// LifecycleEvent reports an engine lifecycle transition.
type LifecycleEvent struct {
	Running bool
	Blocks  []string
}
