package vtab

import (
	"errors"
	"testing"
)

func TestRegisterDuplicateName(t *testing.T) {
	c, _ := newTestConn(t, modernHost)
	must(c.Register("t", fullModule(), nil, nil))
	if _, err := c.Register("t", fullModule(), nil, nil); err == nil {
		t.Fatalf("duplicate registration succeeded")
	}
}

func TestRegisterEponymousOnlyFailsClosedOnOldHost(t *testing.T) {
	old, _ := newTestConn(t, versionEponymousOnly-1)
	mod := NewEponymousOnlyModule(newROTable)
	if _, err := old.Register("ro", mod, []int64{1}, nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, wanted ErrUnsupported", err)
	}

	now, _ := newTestConn(t, versionEponymousOnly)
	must(now.Register("ro", mod, []int64{1}, nil))
}

func TestRegistrationCloseReleasesAuxOnce(t *testing.T) {
	c, _ := newTestConn(t, modernHost)
	released := 0
	reg := must(c.Register("t", fullModule(), "aux", func(aux any) {
		deepEqual(t, aux, any("aux"))
		released++
	}))

	ok(t, reg.Close())
	ok(t, reg.Close())
	deepEqual(t, released, 1)

	// the name is free again
	must(c.Register("t", fullModule(), nil, nil))
}

func TestRegistrationCloseWithLiveInstances(t *testing.T) {
	c, _ := newTestConn(t, modernHost)
	released := 0
	reg := must(c.Register("t", fullModule(), nil, func(any) { released++ }))
	h := must(c.Create("t", []string{"t", "main", "t1"}))

	if err := reg.Close(); err == nil {
		t.Fatalf("closing with a live instance succeeded")
	}
	deepEqual(t, released, 0)

	ok(t, c.Disconnect(h))
	ok(t, reg.Close())
	deepEqual(t, released, 1)
}

func TestConnCloseTearsEverythingDown(t *testing.T) {
	host := &fakeHost{version: modernHost}
	c := NewConn(host, Options{})
	released := 0
	must(c.Register("t", fullModule(), nil, func(any) { released++ }))
	h := must(c.Create("t", []string{"t", "main", "t1"}))
	inst, _ := c.instances.get(uint64(h))
	tab := inst.table.(*fullTable)

	ok(t, c.Close())
	deepEqual(t, tab.disconnected, true)
	deepEqual(t, released, 1)
	deepEqual(t, len(c.regs), 0)
	deepEqual(t, c.instances.len(), 0)
}

func TestConnCloseCollectsErrors(t *testing.T) {
	host := &fakeHost{version: modernHost}
	c := NewConn(host, Options{})
	must(c.Register("t", fullModule(), nil, nil))
	h := must(c.Create("t", []string{"t", "main", "t1"}))
	inst, _ := c.instances.get(uint64(h))
	inst.table.(*fullTable).disconnectErr = errors.New("teardown broke")

	err := c.Close()
	if err == nil {
		t.Fatalf("Close() = nil, wanted the teardown error")
	}
	// everything is still gone despite the error
	deepEqual(t, c.instances.len(), 0)
	deepEqual(t, len(c.regs), 0)
}
