package vtab

import (
	"errors"
	"testing"
)

func TestConnectDeclaresSchema(t *testing.T) {
	c, host := newTestConn(t, modernHost)
	must(c.Register("full", fullModule(), nil, nil))

	h := must(c.Create("full", []string{"full", "main", "t1"}))
	deepEqual(t, host.declared, []string{fullTableDDL})
	ok(t, c.Disconnect(h))
}

func TestConnectUnknownModule(t *testing.T) {
	c, _ := newTestConn(t, modernHost)
	if _, err := c.Connect("nope", []string{"nope", "main", "t"}); !errors.Is(err, ErrNoModule) {
		t.Fatalf("err = %v, wanted ErrNoModule", err)
	}
}

func TestConnectRejectsMalformedArguments(t *testing.T) {
	c, _ := newTestConn(t, modernHost)
	must(c.Register("full", fullModule(), nil, nil))

	_, err := c.Connect("full", []string{"full", "main", "t1", "bad=\xff\xfe"})
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, wanted protocol violation", err)
	}
}

func TestConnectDeclareFailureTearsDownInstance(t *testing.T) {
	c, host := newTestConn(t, modernHost)
	host.declareErr = errors.New("bad ddl")

	var built *fullTable
	probe := NewStandardModule[any](
		func(tc *TableConn, aux any, args []string) (string, *fullTable, error) {
			ddl, tab, err := newFullTable(tc, aux, args)
			built = tab
			return ddl, tab, err
		},
		newFullTable,
	)
	must(c.Register("probe", probe, nil, nil))

	if _, err := c.Create("probe", []string{"probe", "main", "t1"}); err == nil {
		t.Fatalf("create with failing declaration succeeded")
	}
	deepEqual(t, built.disconnected, true)
	deepEqual(t, c.instances.len(), 0)
}

func TestCreateEponymousOnlyRefused(t *testing.T) {
	c, _ := newTestConn(t, modernHost)
	must(c.Register("ro", NewEponymousOnlyModule(newROTable), []int64{1, 2}, nil))

	var pe *ProtocolError
	if _, err := c.Create("ro", []string{"ro", "main", "t"}); !errors.As(err, &pe) {
		t.Fatalf("err = %v, wanted protocol violation", err)
	}

	// ambient use still works
	h := must(c.Connect("ro", []string{"ro", "main", "ro"}))
	ok(t, c.Disconnect(h))
}

func TestCreateEponymousReusesConnect(t *testing.T) {
	c, _ := newTestConn(t, modernHost)
	must(c.Register("ro", NewModule(newROTable), []int64{1}, nil))
	h := must(c.Create("ro", []string{"ro", "main", "t"}))
	ok(t, c.Destroy(h)) // no persisted state, behaves like disconnect
	deepEqual(t, c.instances.len(), 0)
}

func TestDisconnectInvalidatesHandle(t *testing.T) {
	c, h, _ := connectFull(t, modernHost)
	ok(t, c.Disconnect(h))
	if err := c.Disconnect(h); !errors.Is(err, ErrStaleHandle) {
		t.Fatalf("err = %v, wanted ErrStaleHandle", err)
	}
}

func TestDisconnectReportsButProceeds(t *testing.T) {
	c, h, tab := connectFull(t, modernHost)
	tab.disconnectErr = errors.New("teardown broke")

	if err := c.Disconnect(h); err == nil {
		t.Fatalf("Disconnect() = nil, wanted the teardown error")
	}
	// the handle is gone regardless
	if err := c.Disconnect(h); !errors.Is(err, ErrStaleHandle) {
		t.Fatalf("err = %v, wanted ErrStaleHandle", err)
	}
}

func TestDestroyFailureKeepsInstanceUsable(t *testing.T) {
	c, h, tab := connectFull(t, modernHost)
	tab.seed(1, Text("a"), Int(10))
	tab.destroyErr = errors.New("busy")

	if err := c.Destroy(h); err == nil {
		t.Fatalf("Destroy() = nil, wanted an error")
	}
	deepEqual(t, tab.disconnected, false)

	// the instance still answers queries
	ch := must(c.OpenCursor(h))
	ok(t, c.Filter(ch, 0, "", nil))
	deepEqual(t, c.EOF(ch), false)
	ok(t, c.CloseCursor(ch))

	tab.destroyErr = nil
	ok(t, c.Destroy(h))
	deepEqual(t, tab.destroyed, true)
	deepEqual(t, tab.disconnected, true)
}

func TestDisconnectInvalidatesCursors(t *testing.T) {
	c, h, tab := connectFull(t, modernHost)
	tab.seed(1, Text("a"), Int(10))
	ch := must(c.OpenCursor(h))
	ok(t, c.Disconnect(h))

	if err := c.CloseCursor(ch); !errors.Is(err, ErrStaleHandle) {
		t.Fatalf("err = %v, wanted ErrStaleHandle", err)
	}
	deepEqual(t, c.cursors.len(), 0)
}

func TestRename(t *testing.T) {
	c, h, tab := connectFull(t, modernHost)
	ok(t, c.Rename(h, "renamed"))
	deepEqual(t, tab.name, "renamed")

	c2, _ := newTestConn(t, modernHost)
	must(c2.Register("ro", NewModule(newROTable), []int64{1}, nil))
	h2 := must(c2.Connect("ro", []string{"ro", "main", "ro"}))
	if err := c2.Rename(h2, "x"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, wanted ErrUnsupported", err)
	}
}

func TestBestIndexValidatesOutputs(t *testing.T) {
	c, h, _ := connectFull(t, modernHost)

	ii := NewIndexInfo(c.Caps(), []IndexConstraint{eqConstraint(0)}, nil)
	ok(t, c.BestIndex(h, ii))
	deepEqual(t, ii.PlanID(), 1)
	deepEqual(t, ii.ConsumedArgs(), []int{0})

	// a plan that assigns an unusable constraint is caught centrally
	c2, _ := newTestConn(t, modernHost)
	bad := NewModule(func(tc *TableConn, aux any, args []string) (string, *badPlanTable, error) {
		return "CREATE TABLE x(a)", &badPlanTable{}, nil
	})
	must(c2.Register("bad", bad, nil, nil))
	h2 := must(c2.Connect("bad", []string{"bad", "main", "bad"}))

	ii2 := NewIndexInfo(c2.Caps(), []IndexConstraint{{Column: 0, Op: OpEq, Usable: false}}, nil)
	var pe *ProtocolError
	if err := c2.BestIndex(h2, ii2); !errors.As(err, &pe) {
		t.Fatalf("err = %v, wanted protocol violation", err)
	}
}

func TestBestIndexConstraintRejectsPlan(t *testing.T) {
	c2, _ := newTestConn(t, modernHost)
	picky := NewModule(func(tc *TableConn, aux any, args []string) (string, *pickyTable, error) {
		return "CREATE TABLE x(a)", &pickyTable{}, nil
	})
	must(c2.Register("picky", picky, nil, nil))
	h := must(c2.Connect("picky", []string{"picky", "main", "picky"}))

	ii := NewIndexInfo(c2.Caps(), nil, nil)
	err := c2.BestIndex(h, ii)
	if !errors.Is(err, ErrConstraint) {
		t.Fatalf("err = %v, wanted ErrConstraint", err)
	}
	s, _ := StatusOf(err)
	deepEqual(t, s, StatusConstraint)
}

type badPlanTable struct{ roTable }

func (t *badPlanTable) BestIndex(ii *IndexInfo) error {
	ii.SetArgvIndex(0, 0)
	return nil
}

type pickyTable struct{ roTable }

func (t *pickyTable) BestIndex(ii *IndexInfo) error { return ErrConstraint }
