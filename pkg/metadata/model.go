// Package metadata defines the resolved entity-type model consumed by the
// change-tracking core: entity types with their properties, keys, foreign
// keys, navigations, inheritance links, and per-type change-tracking
// strategy. A Model is immutable once built; the tracking layer never
// mutates it.
package metadata

import (
	"fmt"
	"reflect"
	"sort"
)

// ChangeTrackingStrategy declares how a tracked object reports mutations.
type ChangeTrackingStrategy int

// Strategies supported by the tracking core.
const (
	// Snapshot means the object raises no events; the change detector scans
	// eagerly captured value snapshots to find mutations.
	Snapshot ChangeTrackingStrategy = iota
	// ChangedNotifications means the object raises an event after each
	// mutation; snapshots are still needed for pre-change values.
	ChangedNotifications
	// ChangingAndChangedNotifications means the object raises events both
	// before and after a mutation, so snapshots can be taken lazily.
	ChangingAndChangedNotifications
)

func (s ChangeTrackingStrategy) String() string {
	switch s {
	case Snapshot:
		return "snapshot"
	case ChangedNotifications:
		return "changed_notifications"
	case ChangingAndChangedNotifications:
		return "changing_and_changed_notifications"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// DeleteBehavior declares what happens to dependents when a principal entry
// is deleted or detached.
type DeleteBehavior int

// Delete behaviors recognised by the state manager's cascade machinery.
const (
	// NoAction leaves dependents untouched; conceptual-null handling decides
	// their fate.
	NoAction DeleteBehavior = iota
	// SetNull clears the dependent foreign-key values.
	SetNull
	// Cascade deletes (or detaches, when still added) the dependents.
	Cascade
)

func (b DeleteBehavior) String() string {
	switch b {
	case NoAction:
		return "no_action"
	case SetNull:
		return "set_null"
	case Cascade:
		return "cascade"
	default:
		return fmt.Sprintf("delete_behavior(%d)", int(b))
	}
}

// Model is a resolved, immutable graph of entity types.
type Model struct {
	types  map[string]*EntityType
	byGo   map[reflect.Type]*EntityType
	sorted []*EntityType
}

// EntityType returns the entity type registered under name.
func (m *Model) EntityType(name string) (*EntityType, bool) {
	et, ok := m.types[name]
	return et, ok
}

// EntityTypeOf resolves the entity type for a live object by its runtime
// type. Objects are expected to be pointers to registered struct types.
func (m *Model) EntityTypeOf(entity any) (*EntityType, bool) {
	if entity == nil {
		return nil, false
	}
	t := reflect.TypeOf(entity)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	et, ok := m.byGo[t]
	return et, ok
}

// EntityTypes returns all registered entity types ordered by name.
func (m *Model) EntityTypes() []*EntityType {
	out := make([]*EntityType, len(m.sorted))
	copy(out, m.sorted)
	return out
}

func (m *Model) freeze() {
	m.sorted = make([]*EntityType, 0, len(m.types))
	for _, et := range m.types {
		m.sorted = append(m.sorted, et)
	}
	sort.Slice(m.sorted, func(i, j int) bool { return m.sorted[i].name < m.sorted[j].name })
}

// EntityType describes one class of trackable objects. Property, key and
// foreign-key index spaces are shared with the base type: a derived type's
// property list begins with its base's properties at the same indexes.
type EntityType struct {
	name        string
	goType      reflect.Type // nil for fully-shadow types
	base        *EntityType
	properties  []*Property
	byName      map[string]*Property
	key         *Key
	foreignKeys []*ForeignKey
	navigations []*Navigation
	navByName   map[string]*Navigation
	strategy    ChangeTrackingStrategy
	shadow      int // count of shadow properties
}

// Name returns the entity-type name.
func (t *EntityType) Name() string { return t.name }

// BaseType returns the direct base type, or nil for a root.
func (t *EntityType) BaseType() *EntityType { return t.base }

// RootType returns the least-derived type in the hierarchy, which owns the
// shared key space and value-generation scope.
func (t *EntityType) RootType() *EntityType {
	root := t
	for root.base != nil {
		root = root.base
	}
	return root
}

// IsAssignableFrom reports whether other is t or derives from t.
func (t *EntityType) IsAssignableFrom(other *EntityType) bool {
	for cur := other; cur != nil; cur = cur.base {
		if cur == t {
			return true
		}
	}
	return false
}

// Properties returns the flattened property list, base properties first.
func (t *EntityType) Properties() []*Property { return t.properties }

// Property returns the property registered under name.
func (t *EntityType) Property(name string) (*Property, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// Key returns the primary key, inherited from the base for derived types.
func (t *EntityType) Key() *Key { return t.key }

// ForeignKeys returns the foreign keys declared on this type and its bases.
func (t *EntityType) ForeignKeys() []*ForeignKey { return t.foreignKeys }

// Navigations returns the navigations declared on this type and its bases.
func (t *EntityType) Navigations() []*Navigation { return t.navigations }

// Navigation returns the navigation registered under name.
func (t *EntityType) Navigation(name string) (*Navigation, bool) {
	n, ok := t.navByName[name]
	return n, ok
}

// Strategy returns the declared change-tracking strategy.
func (t *EntityType) Strategy() ChangeTrackingStrategy { return t.strategy }

// HasShadowProperties reports whether any property lacks a backing field.
func (t *EntityType) HasShadowProperties() bool { return t.shadow > 0 }

// HasBackedProperties reports whether any property reads through a live
// object field.
func (t *EntityType) HasBackedProperties() bool { return t.shadow < len(t.properties) }

// RequiresDetectChanges reports whether the type depends on pull-based
// change scanning, i.e. its objects never push "changed" events.
func (t *EntityType) RequiresDetectChanges() bool { return t.strategy == Snapshot }

// UsesEagerSnapshots reports whether relationship snapshots must be captured
// when tracking starts rather than lazily before the first change event.
func (t *EntityType) UsesEagerSnapshots() bool { return t.strategy != ChangingAndChangedNotifications }

// Property describes a single tracked value of an entity type.
type Property struct {
	name          string
	index         int
	declaring     *EntityType
	fieldIndex    []int        // nil for shadow properties
	valueType     reflect.Type // nil when the value is untyped
	nullable      bool
	key           bool
	storeGen      bool
	roBeforeSave  bool
	roAfterSave   bool
	requiresValue bool
	concurrency   bool
	foreignKeys   []*ForeignKey // FKs this property participates in
	keys          []*Key        // keys this property participates in
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// Index returns the property's ordinal in the flattened property list. The
// ordinal is stable across the type hierarchy.
func (p *Property) Index() int { return p.index }

// DeclaringType returns the entity type the property was declared on.
func (p *Property) DeclaringType() *EntityType { return p.declaring }

// IsShadow reports whether the property has no backing field and lives
// entirely inside tracked entries.
func (p *Property) IsShadow() bool { return p.fieldIndex == nil }

// IsKey reports whether the property is part of the primary key.
func (p *Property) IsKey() bool { return p.key }

// IsForeignKey reports whether the property participates in any foreign key.
func (p *Property) IsForeignKey() bool { return len(p.foreignKeys) > 0 }

// IsNullable reports whether the store type admits NULL.
func (p *Property) IsNullable() bool { return p.nullable }

// IsStoreGenerated reports whether the store produces the value on insert.
func (p *Property) IsStoreGenerated() bool { return p.storeGen }

// IsReadOnlyBeforeSave reports whether the value may not be set before the
// entity has been saved.
func (p *Property) IsReadOnlyBeforeSave() bool { return p.roBeforeSave }

// IsReadOnlyAfterSave reports whether the value may not change once saved.
func (p *Property) IsReadOnlyAfterSave() bool { return p.roAfterSave }

// RequiresValueGenerator reports whether tracking must generate a value when
// the entity is added without one.
func (p *Property) RequiresValueGenerator() bool { return p.requiresValue }

// IsConcurrencyToken reports whether the property is a concurrency token.
func (p *Property) IsConcurrencyToken() bool { return p.concurrency }

// ContainingForeignKeys returns the foreign keys the property is part of.
func (p *Property) ContainingForeignKeys() []*ForeignKey { return p.foreignKeys }

// ContainingKeys returns the keys (primary or principal) the property is
// part of.
func (p *Property) ContainingKeys() []*Key { return p.keys }

// ValueType returns the Go type of the stored value, nil when untyped.
func (p *Property) ValueType() reflect.Type { return p.valueType }

// ZeroValue returns the default value for the property's store type. Nullable
// and untyped properties default to nil.
func (p *Property) ZeroValue() any {
	if p.nullable || p.valueType == nil {
		return nil
	}
	return reflect.Zero(p.valueType).Interface()
}

// GetValue reads the property from a live object. Nullable values held in
// pointer fields are dereferenced; nil pointers surface as untyped nil.
// Shadow properties cannot be read through the object and panic by contract;
// entries route them to internal storage instead.
func (p *Property) GetValue(entity any) any {
	if p.IsShadow() {
		panic(fmt.Sprintf("metadata: property %s.%s is shadow and has no backing field", p.declaring.name, p.name))
	}
	f := reflect.ValueOf(entity).Elem().FieldByIndex(p.fieldIndex)
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return nil
		}
		return f.Elem().Interface()
	}
	return f.Interface()
}

// SetValue writes the property on a live object, wrapping values into
// pointer fields for nullable properties. A nil value clears a pointer field
// and zeroes a value field.
func (p *Property) SetValue(entity any, value any) {
	if p.IsShadow() {
		panic(fmt.Sprintf("metadata: property %s.%s is shadow and has no backing field", p.declaring.name, p.name))
	}
	f := reflect.ValueOf(entity).Elem().FieldByIndex(p.fieldIndex)
	if f.Kind() == reflect.Pointer {
		if value == nil {
			f.Set(reflect.Zero(f.Type()))
			return
		}
		ptr := reflect.New(f.Type().Elem())
		ptr.Elem().Set(reflect.ValueOf(value).Convert(f.Type().Elem()))
		f.Set(ptr)
		return
	}
	if value == nil {
		f.Set(reflect.Zero(f.Type()))
		return
	}
	f.Set(reflect.ValueOf(value).Convert(f.Type()))
}

// Key is an ordered set of properties identifying an entity.
type Key struct {
	properties []*Property
	declaring  *EntityType
}

// Properties returns the key's ordered property list.
func (k *Key) Properties() []*Property { return k.properties }

// DeclaringType returns the entity type the key was declared on.
func (k *Key) DeclaringType() *EntityType { return k.declaring }

// ForeignKey associates an ordered dependent property list with a principal
// key.
type ForeignKey struct {
	name           string
	properties     []*Property
	principalKey   *Key
	principalType  *EntityType
	dependentType  *EntityType
	required       bool
	deleteBehavior DeleteBehavior
}

// Name returns the foreign-key name.
func (fk *ForeignKey) Name() string { return fk.name }

// Properties returns the dependent property list.
func (fk *ForeignKey) Properties() []*Property { return fk.properties }

// PrincipalKey returns the referenced principal key.
func (fk *ForeignKey) PrincipalKey() *Key { return fk.principalKey }

// PrincipalType returns the principal entity type.
func (fk *ForeignKey) PrincipalType() *EntityType { return fk.principalType }

// DependentType returns the dependent entity type.
func (fk *ForeignKey) DependentType() *EntityType { return fk.dependentType }

// IsRequired reports whether the relationship is mandatory. A required
// foreign key set to null is a conceptual null, not a storable state.
func (fk *ForeignKey) IsRequired() bool { return fk.required }

// DeleteBehavior returns the declared cascade configuration.
func (fk *ForeignKey) DeleteBehavior() DeleteBehavior { return fk.deleteBehavior }

// Navigation describes a relationship traversal exposed on a live object.
type Navigation struct {
	name       string
	index      int
	declaring  *EntityType
	foreignKey *ForeignKey
	collection bool
	toPrincip  bool
	inverse    *Navigation
	fieldIndex []int
}

// Name returns the navigation name.
func (n *Navigation) Name() string { return n.name }

// Index returns the navigation's ordinal among the type's navigations.
func (n *Navigation) Index() int { return n.index }

// DeclaringType returns the entity type the navigation was declared on.
func (n *Navigation) DeclaringType() *EntityType { return n.declaring }

// ForeignKey returns the association the navigation traverses.
func (n *Navigation) ForeignKey() *ForeignKey { return n.foreignKey }

// IsCollection reports whether the navigation is to-many.
func (n *Navigation) IsCollection() bool { return n.collection }

// PointsToPrincipal reports whether the navigation goes from dependent to
// principal.
func (n *Navigation) PointsToPrincipal() bool { return n.toPrincip }

// Inverse returns the navigation on the other end, or nil.
func (n *Navigation) Inverse() *Navigation { return n.inverse }

// TargetType returns the entity type the navigation points at.
func (n *Navigation) TargetType() *EntityType {
	if n.toPrincip {
		return n.foreignKey.principalType
	}
	return n.foreignKey.dependentType
}

// GetValue reads the navigation from a live object. Reference navigations
// return the referenced object or untyped nil; collection navigations return
// the raw slice.
func (n *Navigation) GetValue(entity any) any {
	f := reflect.ValueOf(entity).Elem().FieldByIndex(n.fieldIndex)
	if f.Kind() == reflect.Pointer && f.IsNil() {
		return nil
	}
	if f.Kind() == reflect.Slice && f.IsNil() {
		return nil
	}
	return f.Interface()
}

// SetValue writes a reference navigation on a live object. Collection
// navigations are owned by application code and are not written by the core.
func (n *Navigation) SetValue(entity any, value any) {
	if n.collection {
		panic(fmt.Sprintf("metadata: navigation %s.%s is a collection", n.declaring.name, n.name))
	}
	f := reflect.ValueOf(entity).Elem().FieldByIndex(n.fieldIndex)
	if value == nil {
		f.Set(reflect.Zero(f.Type()))
		return
	}
	f.Set(reflect.ValueOf(value))
}

// GetCollection reads a collection navigation into a flat element slice.
func (n *Navigation) GetCollection(entity any) []any {
	if !n.collection {
		panic(fmt.Sprintf("metadata: navigation %s.%s is not a collection", n.declaring.name, n.name))
	}
	f := reflect.ValueOf(entity).Elem().FieldByIndex(n.fieldIndex)
	if f.Kind() != reflect.Slice || f.IsNil() {
		return nil
	}
	out := make([]any, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		el := f.Index(i)
		if el.Kind() == reflect.Pointer && el.IsNil() {
			continue
		}
		out = append(out, el.Interface())
	}
	return out
}
