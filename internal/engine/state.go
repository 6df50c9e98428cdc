package engine

// State is the phase a compilation run has reached.
//
//	Configuring -> ContextBuilding -> Invoking -> Collecting -> Cleanup -> Done
//
// Failed is reachable from every non-terminal state.
type State int

const (
	StateConfiguring State = iota
	StateContextBuilding
	StateInvoking
	StateCollecting
	StateCleanup
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConfiguring:
		return "configuring"
	case StateContextBuilding:
		return "context_building"
	case StateInvoking:
		return "invoking"
	case StateCollecting:
		return "collecting"
	case StateCleanup:
		return "cleanup"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
