package vtab

import "fmt"

// CursorHandle is the host's opaque token for one open cursor. A cursor
// never outlives its instance: disconnecting the instance invalidates its
// cursor handles too.
type CursorHandle uint64

type cursorPhase int

const (
	cursorUnpositioned cursorPhase = iota
	cursorPositioned
	cursorExhausted
)

type cursorState struct {
	inst  *instance
	cur   Cursor
	phase cursorPhase
}

// OpenCursor creates an unpositioned cursor over an instance. The cursor is
// not readable until a successful Filter call positions it.
func (c *Conn) OpenCursor(h InstanceHandle) (CursorHandle, error) {
	inst, ok := c.instances.get(uint64(h))
	if !ok {
		return 0, staleHandle("open")
	}
	cur, err := inst.table.Open()
	if err != nil {
		return 0, err
	}
	cs := &cursorState{inst: inst, cur: cur}
	ch := CursorHandle(c.cursors.alloc(cs))
	inst.cursors = append(inst.cursors, ch)
	c.tracef("open(%x) -> %x", h, ch)
	return ch, nil
}

// CloseCursor releases a cursor.
func (c *Conn) CloseCursor(h CursorHandle) error {
	cs, ok := c.cursors.release(uint64(h))
	if !ok {
		return staleHandle("close")
	}
	live := cs.inst.cursors[:0]
	for _, ch := range cs.inst.cursors {
		if ch != h {
			live = append(live, ch)
		}
	}
	cs.inst.cursors = live
	c.tracef("close(%x)", h)
	return nil
}

// Filter begins (or restarts) a scan. The plan id and payload are whatever
// the chosen plan's negotiation recorded, and args carries the constraint
// values in consumption order. On success the cursor is positioned at the
// first row, or already exhausted for an empty scan; on failure it is not
// readable.
func (c *Conn) Filter(h CursorHandle, planID int, planStr string, args []Value) error {
	cs, ok := c.cursors.get(uint64(h))
	if !ok {
		return staleHandle("filter")
	}
	cs.phase = cursorUnpositioned
	if err := cs.cur.Filter(planID, planStr, args); err != nil {
		return err
	}
	cs.settle()
	c.tracef("filter(%x, plan=%d, %v)", h, planID, args)
	return nil
}

// Next advances a positioned cursor one row. Calling it on a cursor that is
// not positioned is a caller bug.
func (c *Conn) Next(h CursorHandle) error {
	cs, ok := c.cursors.get(uint64(h))
	if !ok {
		return staleHandle("next")
	}
	cs.requirePositioned("Next")
	if err := cs.cur.Next(); err != nil {
		cs.phase = cursorUnpositioned
		return err
	}
	cs.settle()
	return nil
}

// EOF reports whether the cursor is exhausted.
func (c *Conn) EOF(h CursorHandle) bool {
	cs, ok := c.cursors.get(uint64(h))
	if !ok {
		panic(staleHandle("eof"))
	}
	return cs.phase == cursorExhausted
}

// Column fetches one column of the current row. noChange is the host's
// signal that the value is provably unchanged by the UPDATE being
// evaluated; in that case the cursor may omit the fetch, reported by the
// second return value being false. Calling Column on a cursor that is not
// positioned is a caller bug.
func (c *Conn) Column(h CursorHandle, idx int, noChange bool) (Value, bool, error) {
	cs, ok := c.cursors.get(uint64(h))
	if !ok {
		return Value{}, false, staleHandle("column")
	}
	cs.requirePositioned("Column")
	ctx := &ColumnContext{caps: c.caps, noChange: noChange}
	if err := cs.cur.Column(ctx, idx); err != nil {
		return Value{}, false, err
	}
	return ctx.result, ctx.wrote, nil
}

// Rowid returns the current row's row id. Calling it on a cursor that is
// not positioned is a caller bug.
func (c *Conn) Rowid(h CursorHandle) (int64, error) {
	cs, ok := c.cursors.get(uint64(h))
	if !ok {
		return 0, staleHandle("rowid")
	}
	cs.requirePositioned("Rowid")
	return cs.cur.Rowid()
}

// settle resolves the phase after a successful filter or next.
func (cs *cursorState) settle() {
	if cs.cur.EOF() {
		cs.phase = cursorExhausted
	} else {
		cs.phase = cursorPositioned
	}
}

func (cs *cursorState) requirePositioned(op string) {
	if cs.phase != cursorPositioned {
		panic(fmt.Sprintf("vtab: %s on a cursor that is not positioned", op))
	}
}
