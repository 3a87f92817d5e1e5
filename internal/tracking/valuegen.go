package tracking

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// valueGenerator produces values for properties that require one when an
// entry enters Added. One generator exists per root entity type: sibling
// types sharing a base's key space draw from the same sequence and can never
// collide.
type valueGenerator struct {
	temp int64 // counts down; placeholder values pending store generation
	perm int64 // counts up; real generated values
}

// next produces a value assignable to the property. Store-generated integer
// properties receive negative placeholders flagged temporary; other integers
// draw from a positive sequence; strings receive UUIDs.
func (g *valueGenerator) next(p *Property) (value any, temporary bool, err error) {
	vt := p.ValueType()
	if vt == nil {
		if p.IsStoreGenerated() {
			g.temp--
			return g.temp, true, nil
		}
		return uuid.NewString(), false, nil
	}
	switch vt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if p.IsStoreGenerated() {
			if vt.Kind() >= reflect.Uint && vt.Kind() <= reflect.Uint64 {
				return nil, false, fmt.Errorf("property %s on %s is unsigned and cannot hold a temporary placeholder", p.Name(), p.DeclaringType().Name())
			}
			g.temp--
			return reflect.ValueOf(g.temp).Convert(vt).Interface(), true, nil
		}
		g.perm++
		return reflect.ValueOf(g.perm).Convert(vt).Interface(), false, nil
	case reflect.String:
		return uuid.NewString(), false, nil
	default:
		return nil, false, fmt.Errorf("no value generator for property %s on %s (%s)", p.Name(), p.DeclaringType().Name(), vt)
	}
}
