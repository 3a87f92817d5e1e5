package tracking

import "fmt"

// KeyReadOnlyError reports a write to a key property after the entry left
// the Added/Detached states.
type KeyReadOnlyError struct {
	Property   string
	EntityType string
}

func (e KeyReadOnlyError) Error() string {
	return fmt.Sprintf("key property %s on %s is read-only once the entity is tracked as existing", e.Property, e.EntityType)
}

// TemporaryValueError reports a state transition attempted while a property
// still holds a placeholder value.
type TemporaryValueError struct {
	Property   string
	EntityType string
	Target     EntityState
}

func (e TemporaryValueError) Error() string {
	return fmt.Sprintf("property %s on %s still holds a temporary value; it must be resolved before the entry becomes %s", e.Property, e.EntityType, e.Target)
}

// ReadOnlyBeforeSaveError reports a value assigned to a property that may
// only be written by the store.
type ReadOnlyBeforeSaveError struct {
	Property   string
	EntityType string
}

func (e ReadOnlyBeforeSaveError) Error() string {
	return fmt.Sprintf("property %s on %s is read-only before save", e.Property, e.EntityType)
}

// ReadOnlyAfterSaveError reports a modification of a property that is fixed
// once the entity has been saved.
type ReadOnlyAfterSaveError struct {
	Property   string
	EntityType string
}

func (e ReadOnlyAfterSaveError) Error() string {
	return fmt.Sprintf("property %s on %s is read-only after save", e.Property, e.EntityType)
}

// NullKeyError reports a store-generated or required key property holding
// nil when the entry is prepared for save.
type NullKeyError struct {
	Property   string
	EntityType string
}

func (e NullKeyError) Error() string {
	return fmt.Sprintf("key property %s on %s cannot be null", e.Property, e.EntityType)
}

// IdentityConflictError reports two distinct objects resolving to the same
// identity-map key.
type IdentityConflictError struct {
	EntityType string
	Key        string
}

func (e IdentityConflictError) Error() string {
	return fmt.Sprintf("another %s is already tracked with key %s", e.EntityType, e.Key)
}

// UntrackedTypeError reports an object whose runtime type has no entity type
// in the model.
type UntrackedTypeError struct {
	GoType string
}

func (e UntrackedTypeError) Error() string {
	return fmt.Sprintf("no entity type registered for %s", e.GoType)
}

// KeyUnsetError reports an entry that cannot be indexed because a key
// property has no usable value.
type KeyUnsetError struct {
	Property   string
	EntityType string
}

func (e KeyUnsetError) Error() string {
	return fmt.Sprintf("key property %s on %s has no value", e.Property, e.EntityType)
}

// RelationshipConceptualNullError reports a required relationship whose
// foreign key was fully nulled without a cascade path.
type RelationshipConceptualNullError struct {
	DependentType string
	PrincipalType string
}

func (e RelationshipConceptualNullError) Error() string {
	return fmt.Sprintf("relationship from %s to %s is required; clearing its foreign key without a cascade is not allowed", e.DependentType, e.PrincipalType)
}

// PropertyConceptualNullError reports a single property of a required
// composite foreign key set to null.
type PropertyConceptualNullError struct {
	Property   string
	EntityType string
}

func (e PropertyConceptualNullError) Error() string {
	return fmt.Sprintf("property %s on %s participates in a required foreign key and cannot be null", e.Property, e.EntityType)
}

// ConcurrentUseError reports reentrant or cross-goroutine use of a state
// manager, which the single-threaded contract forbids.
type ConcurrentUseError struct {
	Operation string
}

func (e ConcurrentUseError) Error() string {
	return fmt.Sprintf("state manager used concurrently during %s; a unit of work is single-threaded", e.Operation)
}
