package enrichment

// State is where the scheduler is in a pass.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateFetching
	StateMerging
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateFetching:
		return "fetching"
	case StateMerging:
		return "merging"
	case StatePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}
