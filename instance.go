package vtab

import (
	"fmt"
	"unicode/utf8"
)

// InstanceHandle is the host's opaque token for one connected/created
// table. Tokens are generation-checked: a token kept past the destroying
// call fails with a stale-handle error instead of resolving to reused
// state.
type InstanceHandle uint64

type instance struct {
	reg   *Registration
	table Table
	tconn *TableConn
	txn   *txnState

	// live cursor handles, invalidated together with the instance
	cursors []CursorHandle
}

// Connect instantiates a table for one reference. It is called for every
// reference, including the first one for ambient tables. args holds module
// name, database name, table name, then user arguments; malformed argument
// text fails before any user code runs.
func (c *Conn) Connect(module string, args []string) (InstanceHandle, error) {
	return c.instantiate("connect", module, args, false)
}

// Create materializes a non-ambient table for the first time. For
// eponymous modules it behaves exactly like Connect; for eponymous-only
// modules it always fails.
func (c *Conn) Create(module string, args []string) (InstanceHandle, error) {
	return c.instantiate("create", module, args, true)
}

func (c *Conn) instantiate(op, module string, args []string, create bool) (InstanceHandle, error) {
	reg, ok := c.regs[module]
	if !ok {
		return 0, fmt.Errorf("vtab: %s %q: %w", op, module, ErrNoModule)
	}
	if create && reg.mod.kind == KindEponymousOnly {
		return 0, protocolf(op, "module %q is eponymous-only and cannot be created", module)
	}
	for i, a := range args {
		if !utf8.ValidString(a) {
			return 0, protocolf(op, "argument %d is not valid text", i)
		}
	}

	ctor := reg.mod.connect
	if create {
		ctor = reg.mod.create
	}
	tc := &TableConn{conn: c}
	ddl, table, err := ctor(tc, reg.aux, args)
	if err != nil {
		return 0, err
	}
	if err := c.host.DeclareSchema(ddl); err != nil {
		// The built state is discarded, but its teardown still runs.
		if derr := table.Disconnect(); derr != nil {
			c.tracef("%s(%q): teardown after failed declaration: %v", op, module, derr)
		}
		return 0, fmt.Errorf("vtab: %s %q: declare schema: %w", op, module, err)
	}

	inst := &instance{reg: reg, table: table, tconn: tc}
	reg.live++
	h := InstanceHandle(c.instances.alloc(inst))
	c.tracef("%s(%q, %v) -> %x", op, module, args, h)
	return h, nil
}

// Disconnect releases one reference to an instance. Teardown errors are
// reported but never keep the handle alive: the instance and its remaining
// cursors are gone when Disconnect returns, whatever the result.
func (c *Conn) Disconnect(h InstanceHandle) error {
	inst, ok := c.instances.release(uint64(h))
	if !ok {
		return staleHandle("disconnect")
	}
	err := inst.teardown(c)
	c.tracef("disconnect(%x) -> %v", h, err)
	return err
}

// Destroy deletes an instance's persisted state and tears it down. Unlike
// Disconnect, a failure leaves the instance connected and fully usable, so
// the host may retry.
func (c *Conn) Destroy(h InstanceHandle) error {
	inst, ok := c.instances.get(uint64(h))
	if !ok {
		return staleHandle("destroy")
	}
	if inst.reg.mod.kind != KindStandard {
		// Ambient tables have no persisted state; dropping one merely
		// releases the reference.
		return c.Disconnect(h)
	}
	if err := inst.table.(CreateTable).Destroy(); err != nil {
		c.tracef("destroy(%x) -> %v (instance kept)", h, err)
		return err
	}
	c.instances.release(uint64(h))
	err := inst.teardown(c)
	c.tracef("destroy(%x) -> %v", h, err)
	return err
}

func (inst *instance) teardown(c *Conn) error {
	for _, ch := range inst.cursors {
		c.cursors.release(uint64(ch))
	}
	inst.cursors = nil
	inst.reg.live--
	return inst.table.Disconnect()
}

// Rename changes an instance's identity in place, without recreation.
func (c *Conn) Rename(h InstanceHandle, name string) error {
	inst, ok := c.instances.get(uint64(h))
	if !ok {
		return staleHandle("rename")
	}
	if !utf8.ValidString(name) {
		return protocolf("rename", "name is not valid text")
	}
	if !inst.reg.mod.hasRename {
		return fmt.Errorf("vtab: rename: module %q: %w", inst.reg.name, ErrUnsupported)
	}
	err := inst.table.(RenameTable).Rename(name)
	c.tracef("rename(%x, %q) -> %v", h, name, err)
	return err
}

// BestIndex negotiates one candidate plan against an instance. A nil
// return means the plan is usable and its outputs have been validated;
// ErrConstraint rejects only this candidate. Consumption orders that are
// not a contiguous duplicate-free 0-based range are a protocol violation.
func (c *Conn) BestIndex(h InstanceHandle, ii *IndexInfo) error {
	inst, ok := c.instances.get(uint64(h))
	if !ok {
		return staleHandle("best_index")
	}
	if err := inst.table.BestIndex(ii); err != nil {
		return err
	}
	if err := ii.validateUsage(); err != nil {
		return err
	}
	c.tracef("best_index(%x) -> %v", h, ii)
	return nil
}
