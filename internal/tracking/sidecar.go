package tracking

// bitset is a lazily grown property-index bitset used for the modified and
// temporary flags. The zero value is empty and allocates nothing.
type bitset struct {
	words []uint64
}

func (b *bitset) set(i int) {
	w := i >> 6
	for len(b.words) <= w {
		b.words = append(b.words, 0)
	}
	b.words[w] |= 1 << (uint(i) & 63)
}

func (b *bitset) clear(i int) {
	w := i >> 6
	if w < len(b.words) {
		b.words[w] &^= 1 << (uint(i) & 63)
	}
}

func (b *bitset) has(i int) bool {
	w := i >> 6
	return w < len(b.words) && b.words[w]&(1<<(uint(i)&63)) != 0
}

func (b *bitset) any() bool {
	for _, w := range b.words {
		if w != 0 {
			return true
		}
	}
	return false
}

func (b *bitset) reset() {
	b.words = nil
}

// sidecar is a lazily allocated side store of values keyed by member index.
// Entries use one sidecar for diverged original values and a second,
// independent one for the relationship snapshot. The zero value allocates
// nothing, keeping untouched entries cheap.
type sidecar struct {
	values map[int]any
}

func (s *sidecar) allocated() bool { return s.values != nil }

func (s *sidecar) ensure() {
	if s.values == nil {
		s.values = make(map[int]any)
	}
}

func (s *sidecar) get(i int) (any, bool) {
	v, ok := s.values[i]
	return v, ok
}

func (s *sidecar) put(i int, v any) {
	s.ensure()
	s.values[i] = v
}

func (s *sidecar) delete(i int) {
	delete(s.values, i)
}

func (s *sidecar) reset() {
	s.values = nil
}
