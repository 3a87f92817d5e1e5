package tracking

// ChangeDetector reconciles entries against their snapshots for entity types
// that do not push change notifications themselves, and provides the lazy
// pre-change snapshot hook for types that do.
type ChangeDetector struct {
	sm *StateManager
}

// PropertyChanging is invoked just before a notifying object raises its
// pre-change event. Types with eager snapshots already hold pre-change
// values, so this is a no-op for them; otherwise the relationship snapshot
// is populated once from current values.
func (d *ChangeDetector) PropertyChanging(e *Entry, member string) {
	if e.EntityType().UsesEagerSnapshots() {
		return
	}
	if !e.hasRelationshipSnapshot() {
		e.takeRelationshipSnapshot()
	}
}

// DetectChangesAll applies single-entry detection to every tracked entry
// whose type requires pull-based scanning. Entries kept current by push
// notifications are skipped entirely.
func (d *ChangeDetector) DetectChangesAll() error {
	for _, e := range d.sm.Entries() {
		if !e.EntityType().RequiresDetectChanges() {
			continue
		}
		if e.State() == Deleted {
			continue
		}
		if err := d.DetectChanges(e); err != nil {
			return err
		}
	}
	return nil
}

// DetectChanges reconciles a single entry: scalar and key/foreign-key
// properties first, then navigations. Running it twice without intervening
// mutation produces no additional notifications.
func (d *ChangeDetector) DetectChanges(e *Entry) error {
	for _, p := range e.EntityType().Properties() {
		if p.IsKey() || p.IsForeignKey() {
			continue
		}
		if err := d.detectScalarChange(e, p); err != nil {
			return err
		}
	}
	for _, p := range e.EntityType().Properties() {
		if !p.IsKey() && !p.IsForeignKey() {
			continue
		}
		if err := d.detectKeyChange(e, p); err != nil {
			return err
		}
	}
	if e.Entity() == nil {
		return nil
	}
	for _, n := range e.EntityType().Navigations() {
		var err error
		if n.IsCollection() {
			err = d.detectCollectionChange(e, n)
		} else {
			err = d.detectReferenceChange(e, n)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *ChangeDetector) detectScalarChange(e *Entry, p *Property) error {
	if valuesEqual(e.GetCurrentValue(p), e.GetOriginalValue(p)) {
		return nil
	}
	return e.SetPropertyModified(p, true)
}

// detectKeyChange compares a key or foreign-key property against the
// relationship snapshot. Every transition away from the snapshot is reported,
// including a revert to the original value: fixup consumers depend on seeing
// the transition back.
func (d *ChangeDetector) detectKeyChange(e *Entry, p *Property) error {
	current := e.GetCurrentValue(p)
	snapshot := e.GetRelationshipSnapshotValue(p)
	if valuesEqual(current, snapshot) {
		return nil
	}
	if !p.IsKey() && !valuesEqual(current, e.GetOriginalValue(p)) {
		if err := e.SetPropertyModified(p, true); err != nil {
			return err
		}
	}
	e.SetRelationshipSnapshotValue(p, current)
	return d.sm.keyPropertyChanged(e, p, snapshot, current)
}

func (d *ChangeDetector) detectReferenceChange(e *Entry, n *Navigation) error {
	current := n.GetValue(e.Entity())
	snapshot, ok := e.GetNavigationSnapshot(n)
	if !ok {
		// No pre-change value exists to report a transition from; record a
		// baseline so the next mutation is visible.
		e.SetNavigationSnapshot(n, current)
		return nil
	}
	if current == snapshot {
		return nil
	}
	e.SetNavigationSnapshot(n, current)
	d.sm.navigationReferenceChanged(e, n, snapshot, current)
	if current != nil {
		if _, tracked := d.sm.TryGetEntry(current); !tracked {
			if err := d.sm.attacher.AttachObject(current, Added); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *ChangeDetector) detectCollectionChange(e *Entry, n *Navigation) error {
	current := n.GetCollection(e.Entity())
	snap, ok := e.GetNavigationSnapshot(n)
	if !ok {
		e.SetNavigationSnapshot(n, current)
		return nil
	}
	snapshot, _ := snap.([]any)
	currentSet := identitySet(current)
	snapshotSet := identitySet(snapshot)

	var added, removed []any
	for _, item := range current {
		if _, ok := snapshotSet[item]; !ok {
			added = append(added, item)
		}
	}
	for _, item := range snapshot {
		if _, ok := currentSet[item]; !ok {
			removed = append(removed, item)
		}
	}
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}
	e.SetNavigationSnapshot(n, current)
	d.sm.navigationCollectionChanged(e, n, added, removed)
	for _, item := range added {
		if _, tracked := d.sm.TryGetEntry(item); !tracked {
			if err := d.sm.attacher.AttachObject(item, Added); err != nil {
				return err
			}
		}
	}
	return nil
}

// propertyChanged reconciles a single named member for entries whose objects
// push "changed" events, keeping them current without a full scan.
func (d *ChangeDetector) propertyChanged(e *Entry, member string) error {
	if p, ok := e.EntityType().Property(member); ok {
		if p.IsKey() || p.IsForeignKey() {
			return d.detectKeyChange(e, p)
		}
		if e.EntityType().RequiresDetectChanges() {
			return d.detectScalarChange(e, p)
		}
		// A notifying object reports only real mutations, and no pre-change
		// scalar snapshot exists to compare against.
		return e.SetPropertyModified(p, true)
	}
	if n, ok := e.EntityType().Navigation(member); ok {
		if e.Entity() == nil {
			return nil
		}
		if n.IsCollection() {
			return d.detectCollectionChange(e, n)
		}
		return d.detectReferenceChange(e, n)
	}
	return nil
}
