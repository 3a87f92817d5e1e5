package tracking

import "fmt"

// EntityState is the lifecycle state of a tracked entry.
type EntityState int

// Lifecycle states. Detached is both the initial state and the terminal
// state reached by stopping tracking.
const (
	Detached EntityState = iota
	Unchanged
	Added
	Modified
	Deleted
)

func (s EntityState) String() string {
	switch s {
	case Detached:
		return "detached"
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// isTracked reports whether the state places an entry in the identity map.
func (s EntityState) isTracked() bool { return s != Detached }

// keysFixed reports whether key properties are immutable in this state.
func (s EntityState) keysFixed() bool {
	return s == Unchanged || s == Modified || s == Deleted
}

func parseEntityState(raw string) (EntityState, error) {
	switch raw {
	case "detached":
		return Detached, nil
	case "unchanged":
		return Unchanged, nil
	case "added":
		return Added, nil
	case "modified":
		return Modified, nil
	case "deleted":
		return Deleted, nil
	default:
		return Detached, fmt.Errorf("unknown entity state %q", raw)
	}
}
