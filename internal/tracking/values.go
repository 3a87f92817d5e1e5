package tracking

import "reflect"

// valuesEqual compares two property or navigation values. Comparable values
// use plain equality; slices and other non-comparable values fall back to a
// deep comparison.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	tb := reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// isZeroValue reports whether v is the property's default. Used to decide
// whether value generation must run when an entry enters Added.
func isZeroValue(p *Property, v any) bool {
	if v == nil {
		return true
	}
	zero := p.ZeroValue()
	if zero == nil {
		// Untyped or nullable: any non-nil value counts as set.
		return false
	}
	return valuesEqual(v, zero)
}

// referenceIdentity yields a map key identifying a live object. Objects are
// pointers, so interface equality is pointer identity.
type referenceIdentity = any

func identitySet(items []any) map[referenceIdentity]struct{} {
	set := make(map[referenceIdentity]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
