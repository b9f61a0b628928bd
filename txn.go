package vtab

type txnState struct {
	txn        Transaction
	synced     bool
	savepoints []int
}

func (c *Conn) txnInstance(op string, h InstanceHandle) (*instance, error) {
	inst, ok := c.instances.get(uint64(h))
	if !ok {
		return nil, staleHandle(op)
	}
	if !inst.reg.mod.hasTxn {
		return nil, ErrUnsupported
	}
	return inst, nil
}

// Begin opens a transaction on an instance. At most one transaction may be
// open per instance; a second begin without an intervening commit or
// rollback is a protocol violation.
func (c *Conn) Begin(h InstanceHandle) error {
	inst, err := c.txnInstance("begin", h)
	if err != nil {
		return err
	}
	if inst.txn != nil {
		return protocolf("begin", "transaction already open")
	}
	txn, err := inst.table.(TransactionTable).Begin()
	if err != nil {
		return err
	}
	inst.txn = &txnState{txn: txn}
	c.tracef("begin(%x)", h)
	return nil
}

// Sync runs the first phase of a two-phase commit. A failed sync leaves the
// transaction open so the host can roll it back.
func (c *Conn) Sync(h InstanceHandle) error {
	inst, err := c.txnInstance("sync", h)
	if err != nil {
		return err
	}
	if inst.txn == nil {
		return protocolf("sync", "no transaction open")
	}
	if err := inst.txn.txn.Sync(); err != nil {
		return err
	}
	inst.txn.synced = true
	c.tracef("sync(%x)", h)
	return nil
}

// Commit runs the second phase of a two-phase commit. It requires a prior
// successful Sync on the same transaction. The transaction is consumed
// whether or not the table reports an error.
func (c *Conn) Commit(h InstanceHandle) error {
	inst, err := c.txnInstance("commit", h)
	if err != nil {
		return err
	}
	if inst.txn == nil {
		return protocolf("commit", "no transaction open")
	}
	if !inst.txn.synced {
		return protocolf("commit", "commit without a successful sync")
	}
	txn := inst.txn.txn
	inst.txn = nil
	c.tracef("commit(%x)", h)
	return txn.Commit()
}

// Rollback abandons the open transaction. The transaction is consumed
// whether or not the table reports an error.
func (c *Conn) Rollback(h InstanceHandle) error {
	inst, err := c.txnInstance("rollback", h)
	if err != nil {
		return err
	}
	if inst.txn == nil {
		return protocolf("rollback", "no transaction open")
	}
	txn := inst.txn.txn
	inst.txn = nil
	c.tracef("rollback(%x)", h)
	return txn.Rollback()
}

// Savepoint records a named point within the open transaction. Savepoint
// numbers must not decrease within one transaction.
func (c *Conn) Savepoint(h InstanceHandle, n int) error {
	inst, err := c.txnInstance("savepoint", h)
	if err != nil {
		return err
	}
	if !c.caps.SavepointHooks() {
		return ErrUnsupported
	}
	st := inst.txn
	if st == nil {
		return protocolf("savepoint", "no transaction open")
	}
	if len(st.savepoints) > 0 && n < st.savepoints[len(st.savepoints)-1] {
		return protocolf("savepoint", "savepoint %d below current %d", n, st.savepoints[len(st.savepoints)-1])
	}
	if err := st.txn.Savepoint(n); err != nil {
		return err
	}
	st.savepoints = append(st.savepoints, n)
	c.tracef("savepoint(%x, %d)", h, n)
	return nil
}

// ReleaseSavepoint releases savepoint n and every savepoint recorded after
// it. Releasing a savepoint that was never recorded is a protocol
// violation.
func (c *Conn) ReleaseSavepoint(h InstanceHandle, n int) error {
	inst, err := c.txnInstance("release", h)
	if err != nil {
		return err
	}
	if !c.caps.SavepointHooks() {
		return ErrUnsupported
	}
	st := inst.txn
	if st == nil {
		return protocolf("release", "no transaction open")
	}
	if len(st.savepoints) == 0 || n > st.savepoints[len(st.savepoints)-1] {
		return protocolf("release", "savepoint %d not recorded", n)
	}
	st.dropFrom(n)
	c.tracef("release(%x, %d)", h, n)
	return st.txn.Release(n)
}

// RollbackTo reverts the transaction to the state captured by the newest
// savepoint numbered at least n, and forgets every savepoint recorded at or
// after n.
func (c *Conn) RollbackTo(h InstanceHandle, n int) error {
	inst, err := c.txnInstance("rollback_to", h)
	if err != nil {
		return err
	}
	if !c.caps.SavepointHooks() {
		return ErrUnsupported
	}
	st := inst.txn
	if st == nil {
		return protocolf("rollback_to", "no transaction open")
	}
	st.dropFrom(n)
	c.tracef("rollback_to(%x, %d)", h, n)
	return st.txn.RollbackTo(n)
}

func (st *txnState) dropFrom(n int) {
	i := len(st.savepoints)
	for i > 0 && st.savepoints[i-1] >= n {
		i--
	}
	st.savepoints = st.savepoints[:i]
}
