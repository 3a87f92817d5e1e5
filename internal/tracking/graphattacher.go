package tracking

// GraphAttacher walks the navigations reachable from a tracked entry and
// brings untracked objects into the state manager. A visited set keeps
// self-referencing and mutually referencing graphs from recursing forever.
type GraphAttacher struct {
	sm *StateManager
}

// AttachGraph attaches every untracked object reachable from the root
// entry's navigations. Untracked objects normally receive targetState, but
// an object that already carries a real, non-temporary key is treated as
// pre-existing and tracked as Unchanged.
func (a *GraphAttacher) AttachGraph(root *Entry, targetState EntityState) error {
	visited := make(map[any]struct{})
	return a.walk(root, targetState, visited)
}

// AttachObject attaches a single discovered object and then continues into
// its own reachable graph.
func (a *GraphAttacher) AttachObject(entity any, targetState EntityState) error {
	e, err := a.attach(entity, targetState)
	if err != nil {
		return err
	}
	return a.AttachGraph(e, targetState)
}

func (a *GraphAttacher) walk(e *Entry, targetState EntityState, visited map[any]struct{}) error {
	entity := e.Entity()
	if entity == nil {
		return nil
	}
	if _, seen := visited[entity]; seen {
		return nil
	}
	visited[entity] = struct{}{}

	for _, n := range e.EntityType().Navigations() {
		var reachable []any
		if n.IsCollection() {
			reachable = n.GetCollection(entity)
		} else if ref := n.GetValue(entity); ref != nil {
			reachable = []any{ref}
		}
		for _, obj := range reachable {
			next, err := a.attach(obj, targetState)
			if err != nil {
				return err
			}
			if err := a.walk(next, targetState, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *GraphAttacher) attach(entity any, targetState EntityState) (*Entry, error) {
	e, err := a.sm.GetOrCreateEntry(entity)
	if err != nil {
		return nil, err
	}
	if e.State() != Detached {
		return e, nil
	}
	state := targetState
	if targetState == Added && e.IsKeySet() {
		state = Unchanged
	}
	if err := e.SetState(state); err != nil {
		return nil, err
	}
	return e, nil
}
