package tracking

import "fmt"

// ValueBuffer is an immutable ordered array of column values aligned to an
// entity type's property order. Query materialization hands one to the state
// manager so an entry can be seeded without reading live-object state.
type ValueBuffer struct {
	values []any
}

// NewValueBuffer copies the supplied values into an immutable buffer.
func NewValueBuffer(values []any) ValueBuffer {
	cp := make([]any, len(values))
	copy(cp, values)
	return ValueBuffer{values: cp}
}

// Len returns the number of values in the buffer.
func (b ValueBuffer) Len() int { return len(b.values) }

// Get returns the value at index i.
func (b ValueBuffer) Get(i int) any { return b.values[i] }

// Values returns a copy of the buffered values.
func (b ValueBuffer) Values() []any {
	cp := make([]any, len(b.values))
	copy(cp, b.values)
	return cp
}

func (b ValueBuffer) String() string {
	return fmt.Sprintf("ValueBuffer%v", b.values)
}
