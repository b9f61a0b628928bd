package vtab

import (
	"errors"
	"testing"
)

func TestTxnCommitSequence(t *testing.T) {
	c, h, tab := connectFull(t, modernHost)

	ok(t, c.Begin(h))
	ok(t, c.Sync(h))
	ok(t, c.Commit(h))
	deepEqual(t, tab.txnLog, []string{"begin", "sync", "commit"})

	// the next transaction starts cleanly
	ok(t, c.Begin(h))
	ok(t, c.Rollback(h))
	deepEqual(t, tab.txnLog, []string{"begin", "sync", "commit", "begin", "rollback"})
}

func TestTxnSecondBeginRejected(t *testing.T) {
	c, h, _ := connectFull(t, modernHost)
	ok(t, c.Begin(h))

	var pe *ProtocolError
	if err := c.Begin(h); !errors.As(err, &pe) {
		t.Fatalf("err = %v, wanted protocol violation", err)
	}
	ok(t, c.Rollback(h))
}

func TestTxnCommitWithoutSync(t *testing.T) {
	c, h, _ := connectFull(t, modernHost)
	ok(t, c.Begin(h))

	var pe *ProtocolError
	if err := c.Commit(h); !errors.As(err, &pe) {
		t.Fatalf("err = %v, wanted protocol violation", err)
	}
	// the transaction is still open and can be rolled back
	ok(t, c.Rollback(h))
}

func TestTxnFailedSyncLeavesTransactionOpen(t *testing.T) {
	c, h, tab := connectFull(t, modernHost)
	ok(t, c.Begin(h))
	tab.syncErr = errors.New("disk full")

	if err := c.Sync(h); err == nil {
		t.Fatalf("Sync() = nil, wanted an error")
	}
	ok(t, c.Rollback(h))
	deepEqual(t, tab.txnLog, []string{"begin", "rollback"})
}

func TestTxnCommitErrorStillConsumes(t *testing.T) {
	c, h, tab := connectFull(t, modernHost)
	ok(t, c.Begin(h))
	ok(t, c.Sync(h))
	tab.commitErr = errors.New("commit broke")

	if err := c.Commit(h); err == nil {
		t.Fatalf("Commit() = nil, wanted an error")
	}
	// consumed: a fresh begin is accepted
	tab.commitErr = nil
	ok(t, c.Begin(h))
	ok(t, c.Rollback(h))
}

func TestTxnOpsWithoutOpenTransaction(t *testing.T) {
	c, h, _ := connectFull(t, modernHost)
	var pe *ProtocolError
	for _, err := range []error{
		c.Sync(h), c.Commit(h), c.Rollback(h),
		c.Savepoint(h, 0), c.ReleaseSavepoint(h, 0), c.RollbackTo(h, 0),
	} {
		if !errors.As(err, &pe) {
			t.Errorf("** err = %v, wanted protocol violation", err)
		}
	}
}

func TestTxnUnsupportedTable(t *testing.T) {
	c, _ := newTestConn(t, modernHost)
	must(c.Register("ro", NewModule(newROTable), []int64{1}, nil))
	h := must(c.Connect("ro", []string{"ro", "main", "ro"}))

	if err := c.Begin(h); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, wanted ErrUnsupported", err)
	}
}

func TestTxnSavepoints(t *testing.T) {
	c, h, tab := connectFull(t, modernHost)
	ok(t, c.Begin(h))
	ok(t, c.Savepoint(h, 0))
	ok(t, c.Savepoint(h, 1))
	ok(t, c.Savepoint(h, 1)) // equal depth is allowed

	var pe *ProtocolError
	if err := c.Savepoint(h, 0); !errors.As(err, &pe) {
		t.Fatalf("err = %v, wanted protocol violation for a decreasing depth", err)
	}

	inst, _ := c.instances.get(uint64(h))
	ok(t, c.RollbackTo(h, 1))
	deepEqual(t, inst.txn.savepoints, []int{0})

	ok(t, c.Savepoint(h, 1))
	ok(t, c.ReleaseSavepoint(h, 0))
	deepEqual(t, len(inst.txn.savepoints), 0)

	if err := c.ReleaseSavepoint(h, 0); !errors.As(err, &pe) {
		t.Fatalf("err = %v, wanted protocol violation for an unknown savepoint", err)
	}

	ok(t, c.Rollback(h))
	deepEqual(t, tab.txnLog, []string{
		"begin", "savepoint 0", "savepoint 1", "savepoint 1",
		"rollback_to 1", "savepoint 1", "release 0", "rollback",
	})
}

func TestTxnSavepointsGatedByVersion(t *testing.T) {
	c, h, _ := connectFull(t, versionSavepoints-1)
	ok(t, c.Begin(h))
	defer c.Rollback(h)

	if err := c.Savepoint(h, 0); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, wanted ErrUnsupported", err)
	}
	if err := c.ReleaseSavepoint(h, 0); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, wanted ErrUnsupported", err)
	}
	if err := c.RollbackTo(h, 0); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, wanted ErrUnsupported", err)
	}
}
