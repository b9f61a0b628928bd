package vtab

// handleArena hands out opaque uint64 tokens for values whose lifetime is
// controlled by the host. A token encodes a slot index and the slot's
// generation at allocation time; releasing a slot bumps the generation, so
// a retained token from a destroyed handle is detected instead of resolving
// to whatever reused the slot.
type handleArena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	count int
}

type arenaSlot[T any] struct {
	val  T
	gen  uint32
	live bool
}

func (a *handleArena[T]) alloc(v T) uint64 {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		// Generation starts at 1 so the zero token is never valid.
		a.slots = append(a.slots, arenaSlot[T]{gen: 1})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.val = v
	s.live = true
	a.count++
	return uint64(s.gen)<<32 | uint64(idx)
}

func (a *handleArena[T]) get(h uint64) (T, bool) {
	idx, gen := uint32(h), uint32(h>>32)
	if int(idx) >= len(a.slots) {
		var zero T
		return zero, false
	}
	s := &a.slots[idx]
	if !s.live || s.gen != gen {
		var zero T
		return zero, false
	}
	return s.val, true
}

func (a *handleArena[T]) release(h uint64) (T, bool) {
	v, ok := a.get(h)
	if !ok {
		var zero T
		return zero, false
	}
	idx := uint32(h)
	s := &a.slots[idx]
	var zero T
	s.val = zero
	s.live = false
	s.gen++
	a.free = append(a.free, idx)
	a.count--
	return v, true
}

func (a *handleArena[T]) len() int { return a.count }

// each calls fn for every live handle. fn may release the handle it is
// given.
func (a *handleArena[T]) each(fn func(h uint64, v T)) {
	for idx := range a.slots {
		s := &a.slots[idx]
		if s.live {
			fn(uint64(s.gen)<<32|uint64(idx), s.val)
		}
	}
}
