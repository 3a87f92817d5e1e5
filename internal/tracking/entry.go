package tracking

import "fmt"

// storageShape discriminates how an entry stores current values. It replaces
// subclassing: fully shadow entries keep every value in an internal array,
// fully backed entries delegate to the live object's fields, and mixed
// entries do both.
type storageShape int

const (
	storageObject storageShape = iota
	storageShadow
	storageMixed
)

// Entry is the tracked unit of bookkeeping for one entity: one object (or
// shadow record) bound to one entity type, carrying current, original and
// relationship-snapshot values plus a lifecycle state. Entries are created
// by a StateManager and registered in its identity map while tracked.
type Entry struct {
	sm         *StateManager
	entityType *EntityType
	entity     any // nil for fully shadow entries
	shape      storageShape
	state      EntityState

	trackedKey string // identity-map key while tracked; maintained by the manager

	shadow      []any // indexed by property ordinal; only shadow slots used
	originals   sidecar
	relSnapshot sidecar // property ordinals, then navigations at navOffset
	modified    bitset
	temporary   bitset
}

func newEntry(sm *StateManager, entityType *EntityType, entity any) (*Entry, error) {
	e := &Entry{sm: sm, entityType: entityType, entity: entity, state: Detached}
	switch {
	case entity == nil:
		if entityType.HasBackedProperties() {
			return nil, fmt.Errorf("entity type %s has backed properties and requires a live object", entityType.Name())
		}
		e.shape = storageShadow
	case entityType.HasShadowProperties():
		e.shape = storageMixed
	default:
		e.shape = storageObject
	}
	return e, nil
}

// EntityType returns the metadata the entry is bound to.
func (e *Entry) EntityType() *EntityType { return e.entityType }

// Entity returns the live object, nil for fully shadow entries.
func (e *Entry) Entity() any { return e.entity }

// State returns the current lifecycle state.
func (e *Entry) State() EntityState { return e.state }

// StateManager returns the owning state manager.
func (e *Entry) StateManager() *StateManager { return e.sm }

func (e *Entry) navOffset(n *Navigation) int {
	return len(e.entityType.Properties()) + n.Index()
}

func (e *Entry) shadowValue(i int) any {
	if e.shadow == nil {
		return nil
	}
	return e.shadow[i]
}

func (e *Entry) setShadowValue(i int, v any) {
	if e.shadow == nil {
		e.shadow = make([]any, len(e.entityType.Properties()))
	}
	e.shadow[i] = v
}

// GetCurrentValue reads a property's current value: shadow properties from
// the entry's internal storage, backed properties through the live object.
func (e *Entry) GetCurrentValue(p *Property) any {
	if p.IsShadow() || e.entity == nil {
		return e.shadowValue(p.Index())
	}
	return p.GetValue(e.entity)
}

// SetCurrentValue writes a property's current value. Writing a key property
// after the entry has left Added/Detached fails. Writing a value equal to
// the current one is a no-op: it neither marks the property modified nor
// perturbs any snapshot or the temporary flag. Writing a different value
// clears the temporary flag and lazily diverges the original value.
func (e *Entry) SetCurrentValue(p *Property, value any) error {
	if p.IsKey() && e.state.keysFixed() {
		return KeyReadOnlyError{Property: p.Name(), EntityType: e.entityType.Name()}
	}
	old := e.GetCurrentValue(p)
	if valuesEqual(old, value) {
		return nil
	}
	if e.state.keysFixed() || e.state == Added {
		if _, ok := e.originals.get(p.Index()); !ok {
			e.originals.put(p.Index(), old)
		}
	}
	e.writeCurrentValue(p, value)
	e.temporary.clear(p.Index())
	return nil
}

func (e *Entry) writeCurrentValue(p *Property, value any) {
	if p.IsShadow() || e.entity == nil {
		e.setShadowValue(p.Index(), value)
		return
	}
	p.SetValue(e.entity, value)
}

// GetOriginalValue returns the last-known pre-change value, defaulting to
// the current value until the property diverges.
func (e *Entry) GetOriginalValue(p *Property) any {
	if v, ok := e.originals.get(p.Index()); ok {
		return v
	}
	return e.GetCurrentValue(p)
}

// SetOriginalValue explicitly diverges the stored original value, allocating
// original-value storage on first use.
func (e *Entry) SetOriginalValue(p *Property, value any) {
	e.originals.put(p.Index(), value)
}

// GetRelationshipSnapshotValue returns the snapshot value of a key, foreign
// key or navigation member, falling back to the current value when no
// snapshot has been taken.
func (e *Entry) GetRelationshipSnapshotValue(p *Property) any {
	if v, ok := e.relSnapshot.get(p.Index()); ok {
		return v
	}
	return e.GetCurrentValue(p)
}

// SetRelationshipSnapshotValue records a snapshot value for a property,
// allocating snapshot storage on first use. Snapshot storage is independent
// of original-value storage.
func (e *Entry) SetRelationshipSnapshotValue(p *Property, value any) {
	e.relSnapshot.put(p.Index(), value)
}

// GetNavigationSnapshot returns the snapshot of a navigation: the referenced
// object for references, the cloned member set for collections. The boolean
// reports whether a snapshot exists.
func (e *Entry) GetNavigationSnapshot(n *Navigation) (any, bool) {
	return e.relSnapshot.get(e.navOffset(n))
}

// SetNavigationSnapshot records a navigation snapshot.
func (e *Entry) SetNavigationSnapshot(n *Navigation, value any) {
	e.relSnapshot.put(e.navOffset(n), value)
}

// relationshipMembers yields the properties participating in the key or any
// foreign key, in property order.
func (e *Entry) relationshipMembers() []*Property {
	var out []*Property
	for _, p := range e.entityType.Properties() {
		if p.IsKey() || p.IsForeignKey() {
			out = append(out, p)
		}
	}
	return out
}

// takeRelationshipSnapshot populates the relationship snapshot from current
// values for every key, foreign-key and navigation member. Collection
// navigations are cloned so later membership edits do not leak in.
func (e *Entry) takeRelationshipSnapshot() {
	for _, p := range e.relationshipMembers() {
		e.relSnapshot.put(p.Index(), e.GetCurrentValue(p))
	}
	e.takeNavigationSnapshot()
}

// takeNavigationSnapshot records the current navigation values. Shadow
// entries have no navigations to read.
func (e *Entry) takeNavigationSnapshot() {
	if e.entity == nil {
		return
	}
	for _, n := range e.entityType.Navigations() {
		if n.IsCollection() {
			e.relSnapshot.put(e.navOffset(n), n.GetCollection(e.entity))
		} else {
			e.relSnapshot.put(e.navOffset(n), n.GetValue(e.entity))
		}
	}
}

// hasRelationshipSnapshot reports whether snapshot storage was allocated.
func (e *Entry) hasRelationshipSnapshot() bool { return e.relSnapshot.allocated() }

// snapshotOriginals eagerly captures every property's current value as its
// original value. Used when tracking starts for snapshot-strategy types,
// whose objects never report pre-change values themselves.
func (e *Entry) snapshotOriginals() {
	for _, p := range e.entityType.Properties() {
		e.originals.put(p.Index(), e.GetCurrentValue(p))
	}
}

// seedFromBuffer loads shadow storage and snapshots from an ordered value
// buffer without touching live-object getters.
func (e *Entry) seedFromBuffer(buf ValueBuffer) error {
	props := e.entityType.Properties()
	if buf.Len() != len(props) {
		return fmt.Errorf("value buffer has %d values but %s has %d properties", buf.Len(), e.entityType.Name(), len(props))
	}
	for _, p := range props {
		if p.IsShadow() || e.entity == nil {
			e.setShadowValue(p.Index(), buf.Get(p.Index()))
		}
		e.originals.put(p.Index(), buf.Get(p.Index()))
		if p.IsKey() || p.IsForeignKey() {
			e.relSnapshot.put(p.Index(), buf.Get(p.Index()))
		}
	}
	return nil
}

// IsModified reports whether the property carries the modified flag.
func (e *Entry) IsModified(p *Property) bool {
	return e.state == Modified && e.modified.has(p.Index())
}

// SetPropertyModified marks or clears a property's modified flag. Marking a
// key property modified always fails. Marking any property while Unchanged
// promotes the entry to Modified without blanket-marking other properties;
// clearing the last flag demotes a Modified entry back to Unchanged.
func (e *Entry) SetPropertyModified(p *Property, isModified bool) error {
	if isModified && p.IsKey() {
		return KeyReadOnlyError{Property: p.Name(), EntityType: e.entityType.Name()}
	}
	if isModified {
		e.modified.set(p.Index())
		if e.state == Unchanged {
			old := e.state
			e.state = Modified
			e.sm.entryStateChanged(e, old, Modified)
		}
		return nil
	}
	e.modified.clear(p.Index())
	if e.state == Modified && !e.modified.any() {
		old := e.state
		e.state = Unchanged
		e.sm.entryStateChanged(e, old, Unchanged)
	}
	return nil
}

// HasTemporaryValue reports whether the property holds a placeholder value
// pending store generation.
func (e *Entry) HasTemporaryValue(p *Property) bool {
	return e.temporary.has(p.Index())
}

// MarkAsTemporary flags or unflags a property value as a placeholder. A
// temporary value may only exist while the entry is Added or Detached.
func (e *Entry) MarkAsTemporary(p *Property, isTemporary bool) error {
	if isTemporary && e.state.keysFixed() {
		return TemporaryValueError{Property: p.Name(), EntityType: e.entityType.Name(), Target: e.state}
	}
	if isTemporary {
		e.temporary.set(p.Index())
	} else {
		e.temporary.clear(p.Index())
	}
	return nil
}

func (e *Entry) firstTemporary() (*Property, bool) {
	for _, p := range e.entityType.Properties() {
		if e.temporary.has(p.Index()) {
			return p, true
		}
	}
	return nil, false
}

// IsKeySet reports whether every key property holds a real, non-temporary
// value.
func (e *Entry) IsKeySet() bool {
	for _, p := range e.entityType.Key().Properties() {
		if e.temporary.has(p.Index()) {
			return false
		}
		if isZeroValue(p, e.GetCurrentValue(p)) {
			return false
		}
	}
	return true
}

// keyString builds the identity-map key from current key property values.
func (e *Entry) keyString() (string, error) {
	key := ""
	for i, p := range e.entityType.Key().Properties() {
		v := e.GetCurrentValue(p)
		if v == nil {
			return "", KeyUnsetError{Property: p.Name(), EntityType: e.entityType.Name()}
		}
		if i > 0 {
			key += "|"
		}
		key += fmt.Sprintf("%v", v)
	}
	return key, nil
}

// SetState drives the entry's lifecycle. Entering Added triggers value
// generation for properties that require it; entering any tracked-as-existing
// state validates that no temporary values remain; transitioning to Detached
// deregisters the entry and resets temporary values to their defaults.
func (e *Entry) SetState(target EntityState) error {
	return e.setState(target, false)
}

func (e *Entry) setState(target EntityState, acceptChanges bool) error {
	old := e.state
	if target.keysFixed() {
		if p, ok := e.firstTemporary(); ok {
			return TemporaryValueError{Property: p.Name(), EntityType: e.entityType.Name(), Target: target}
		}
	}
	if old == target {
		if target == Unchanged && acceptChanges {
			e.acceptValues()
		}
		return nil
	}

	if old == Detached {
		if err := e.enterTracking(target); err != nil {
			return err
		}
	}

	e.state = target

	switch target {
	case Modified:
		for _, p := range e.entityType.Properties() {
			if !p.IsKey() {
				e.modified.set(p.Index())
			}
		}
	case Unchanged:
		if acceptChanges {
			e.acceptValues()
		}
		e.modified.reset()
	}

	// Cascade while key values are still live; detaching resets temporary
	// keys, which would break dependent matching.
	if target == Deleted || target == Detached {
		e.sm.cascadeFrom(e, nil)
	}
	// Record the transition while the tracked key and modified flags are
	// still live; leaveTracking resets both.
	e.sm.entryStateChanged(e, old, target)
	if target == Detached {
		e.leaveTracking()
	}
	return nil
}

func (e *Entry) enterTracking(target EntityState) error {
	if target == Added {
		for _, p := range e.entityType.Properties() {
			if !p.RequiresValueGenerator() || !isZeroValue(p, e.GetCurrentValue(p)) {
				continue
			}
			value, temporary, err := e.sm.generateValue(e.entityType, p)
			if err != nil {
				return err
			}
			e.writeCurrentValue(p, value)
			if temporary {
				e.temporary.set(p.Index())
			}
		}
	} else if !e.IsKeySet() {
		p := e.entityType.Key().Properties()[0]
		for _, kp := range e.entityType.Key().Properties() {
			if isZeroValue(kp, e.GetCurrentValue(kp)) || e.temporary.has(kp.Index()) {
				p = kp
				break
			}
		}
		return KeyUnsetError{Property: p.Name(), EntityType: e.entityType.Name()}
	}

	if e.entityType.UsesEagerSnapshots() {
		if !e.hasRelationshipSnapshot() {
			e.takeRelationshipSnapshot()
		} else {
			// Query-seeded entries arrive holding key and foreign-key
			// snapshots only; navigations still need a baseline.
			e.takeNavigationSnapshot()
		}
	}
	if e.entityType.Strategy() == SnapshotStrategy && target != Added && !e.originals.allocated() {
		e.snapshotOriginals()
	}
	return e.sm.startTracking(e)
}

func (e *Entry) leaveTracking() {
	e.sm.stopTracking(e)
	for _, p := range e.entityType.Properties() {
		if e.temporary.has(p.Index()) {
			e.writeCurrentValue(p, p.ZeroValue())
		}
	}
	e.originals.reset()
	e.relSnapshot.reset()
	e.modified.reset()
	e.temporary.reset()
}

// acceptValues resets original values to current values and refreshes the
// relationship snapshot so a following change scan reports nothing.
func (e *Entry) acceptValues() {
	e.originals.reset()
	if e.entityType.UsesEagerSnapshots() {
		e.takeRelationshipSnapshot()
	} else {
		e.relSnapshot.reset()
	}
	if e.entityType.Strategy() == SnapshotStrategy {
		e.snapshotOriginals()
	}
	e.modified.reset()
	e.temporary.reset()
}

// AcceptChanges folds the entry's pending bookkeeping into a clean state:
// Added and Modified become Unchanged with originals reset to current
// values, Deleted detaches, Unchanged and Detached are no-ops.
func (e *Entry) AcceptChanges() error {
	switch e.state {
	case Added, Modified:
		return e.setState(Unchanged, true)
	case Deleted:
		return e.setState(Detached, false)
	default:
		return nil
	}
}

// PrepareToSave validates the read-only and generated-key constraints a save
// operation depends on, identifying the offending property on violation.
func (e *Entry) PrepareToSave() error {
	for _, p := range e.entityType.Properties() {
		switch e.state {
		case Added:
			if p.IsReadOnlyBeforeSave() && !e.temporary.has(p.Index()) && !isZeroValue(p, e.GetCurrentValue(p)) {
				return ReadOnlyBeforeSaveError{Property: p.Name(), EntityType: e.entityType.Name()}
			}
			if p.IsKey() && p.IsStoreGenerated() && !p.IsNullable() && e.GetCurrentValue(p) == nil && !e.temporary.has(p.Index()) {
				return NullKeyError{Property: p.Name(), EntityType: e.entityType.Name()}
			}
		case Modified:
			if p.IsReadOnlyAfterSave() && e.IsModified(p) {
				return ReadOnlyAfterSaveError{Property: p.Name(), EntityType: e.entityType.Name()}
			}
		}
	}
	return nil
}

// HandleConceptualNulls inspects each required foreign key for null values
// written by the application. A fully nulled cascade-configured relationship
// deletes the entry (detaches it when still Added); a fully nulled required
// relationship without a cascade path is an error; a partially nulled
// composite either errors (required) or marks the entry Modified (optional).
func (e *Entry) HandleConceptualNulls() error {
	for _, fk := range e.entityType.ForeignKeys() {
		nulls := 0
		var firstNull *Property
		for _, p := range fk.Properties() {
			if e.GetCurrentValue(p) == nil {
				nulls++
				if firstNull == nil {
					firstNull = p
				}
			}
		}
		if nulls == 0 {
			continue
		}
		fullyNull := nulls == len(fk.Properties())
		switch {
		case fullyNull && fk.IsRequired():
			if fk.DeleteBehavior() == DeleteCascade {
				if e.state == Added {
					return e.setState(Detached, false)
				}
				return e.setState(Deleted, false)
			}
			return RelationshipConceptualNullError{
				DependentType: e.entityType.Name(),
				PrincipalType: fk.PrincipalType().Name(),
			}
		case !fullyNull && fk.IsRequired():
			return PropertyConceptualNullError{Property: firstNull.Name(), EntityType: e.entityType.Name()}
		case !fullyNull:
			// Optional composite partially nulled: orphan the dependent.
			for _, p := range fk.Properties() {
				if e.GetCurrentValue(p) == nil {
					if err := e.SetPropertyModified(p, true); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// HandlePropertyChanging is the pre-change hook for objects that raise
// "changing" events; it delegates to the change detector's lazy snapshot.
func (e *Entry) HandlePropertyChanging(member string) {
	e.sm.detector.PropertyChanging(e, member)
}

// HandlePropertyChanged is the post-change hook for objects that raise
// "changed" events; it reconciles the single named member immediately so
// push-based entries never need a full scan.
func (e *Entry) HandlePropertyChanged(member string) error {
	return e.sm.detector.propertyChanged(e, member)
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s entry (%s)", e.entityType.Name(), e.state)
}
