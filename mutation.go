package vtab

// Mutate applies a single row change to an instance. The argument layout
// follows the classic update calling convention:
//
//   - one argument: delete the row whose rowid is args[0]
//   - args[0] is NULL: insert a row built from args[1:], returning the new
//     rowid (0 when the table picked one itself and declined to report it)
//   - otherwise: update the row whose rowid is args[0] with args[1:]
//
// Tables that do not support mutation report ErrUnsupported.
func (c *Conn) Mutate(h InstanceHandle, args []Value) (int64, error) {
	inst, ok := c.instances.get(uint64(h))
	if !ok {
		return 0, staleHandle("update")
	}
	if !inst.reg.mod.hasUpdate {
		return 0, ErrUnsupported
	}
	if len(args) == 0 {
		return 0, protocolf("update", "no arguments")
	}
	tab := inst.table.(UpdateTable)
	switch {
	case len(args) == 1:
		c.tracef("update(%x): delete rowid=%v", h, args[0])
		return 0, tab.Delete(args[0])
	case args[0].Type() == TypeNull:
		rowid, err := tab.Insert(args[1:])
		if err != nil {
			return 0, err
		}
		c.tracef("update(%x): insert rowid=%d", h, rowid)
		return rowid, nil
	default:
		c.tracef("update(%x): update rowid=%v", h, args[0])
		return 0, tab.Update(args[0], args[1:])
	}
}
