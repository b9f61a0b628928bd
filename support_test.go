package vtab

import (
	"fmt"
	"reflect"
	"sort"
	"testing"
)

// modernHost supports every optional protocol feature.
const modernHost = 3_045_000

type fakeHost struct {
	version    int
	declared   []string
	declareErr error
}

func (h *fakeHost) Version() int { return h.version }

func (h *fakeHost) DeclareSchema(ddl string) error {
	if h.declareErr != nil {
		return h.declareErr
	}
	h.declared = append(h.declared, ddl)
	return nil
}

func newTestConn(t testing.TB, version int) (*Conn, *fakeHost) {
	t.Helper()
	host := &fakeHost{version: version}
	c := NewConn(host, Options{Logf: t.Logf})
	t.Cleanup(func() { _ = c.Close() })
	return c, host
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ok(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** unexpected error: %v", err)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func assertPanics(t testing.TB, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("** expected a panic")
		}
	}()
	fn()
}

// fullTable exercises every optional operation group: creation,
// mutation, transactions, renaming and function overloads.
type fullTable struct {
	rows   map[int64][]Value
	nextID int64

	disconnected  bool
	disconnectErr error
	destroyErr    error
	destroyed     bool
	name          string
	fns           FunctionList
	beginErr      error
	syncErr       error
	commitErr     error
	txnLog        []string
}

const fullTableDDL = "CREATE TABLE x(a, b)"

func newFullTable(tc *TableConn, aux any, args []string) (string, *fullTable, error) {
	t := &fullTable{rows: map[int64][]Value{}, nextID: 1}
	t.fns.Add(1, "upper", func(args []Value) (Value, error) {
		return Text("UPPER:" + args[0].Text()), nil
	})
	t.fns.AddWithConstraint(2, "near", OpFunctionBase, func(args []Value) (Value, error) {
		return Int(1), nil
	})
	return fullTableDDL, t, nil
}

func (t *fullTable) seed(id int64, cells ...Value) {
	t.rows[id] = cells
	if id >= t.nextID {
		t.nextID = id + 1
	}
}

func (t *fullTable) BestIndex(ii *IndexInfo) error {
	for i, con := range ii.Constraints() {
		if con.Usable && con.Column == 0 && con.Op == OpEq {
			ii.SetArgvIndex(i, 0)
			ii.SetOmit(i, true)
			ii.SetPlan(1)
			ii.SetEstimatedCost(1)
			ii.SetEstimatedRows(1)
			return nil
		}
	}
	ii.SetPlan(0)
	ii.SetEstimatedCost(1000)
	return nil
}

func (t *fullTable) Open() (Cursor, error) { return &fullCursor{table: t}, nil }

func (t *fullTable) Disconnect() error {
	t.disconnected = true
	return t.disconnectErr
}

func (t *fullTable) Destroy() error {
	if t.destroyErr != nil {
		return t.destroyErr
	}
	t.destroyed = true
	return nil
}

func (t *fullTable) Insert(args []Value) (int64, error) {
	id := args[0].Int()
	if args[0].IsNull() {
		id = t.nextID
	}
	if _, exists := t.rows[id]; exists {
		return 0, fmt.Errorf("row %d: %w", id, ErrConstraint)
	}
	if id >= t.nextID {
		t.nextID = id + 1
	}
	t.rows[id] = append([]Value(nil), args[1:]...)
	return id, nil
}

func (t *fullTable) Update(rowid Value, args []Value) error {
	id := rowid.Int()
	if _, exists := t.rows[id]; !exists {
		return fmt.Errorf("row %d not found", id)
	}
	t.rows[id] = append([]Value(nil), args[1:]...)
	return nil
}

func (t *fullTable) Delete(rowid Value) error {
	delete(t.rows, rowid.Int())
	return nil
}

func (t *fullTable) Begin() (Transaction, error) {
	if t.beginErr != nil {
		return nil, t.beginErr
	}
	t.txnLog = append(t.txnLog, "begin")
	return &fullTxn{table: t}, nil
}

func (t *fullTable) Rename(name string) error {
	t.name = name
	return nil
}

func (t *fullTable) Functions() *FunctionList { return &t.fns }

type fullTxn struct {
	table *fullTable
}

func (x *fullTxn) log(format string, args ...any) {
	x.table.txnLog = append(x.table.txnLog, fmt.Sprintf(format, args...))
}

func (x *fullTxn) Sync() error {
	if err := x.table.syncErr; err != nil {
		return err
	}
	x.log("sync")
	return nil
}

func (x *fullTxn) Commit() error {
	if err := x.table.commitErr; err != nil {
		return err
	}
	x.log("commit")
	return nil
}

func (x *fullTxn) Rollback() error       { x.log("rollback"); return nil }
func (x *fullTxn) Savepoint(n int) error { x.log("savepoint %d", n); return nil }
func (x *fullTxn) Release(n int) error   { x.log("release %d", n); return nil }
func (x *fullTxn) RollbackTo(n int) error {
	x.log("rollback_to %d", n)
	return nil
}

type fullCursor struct {
	table *fullTable
	ids   []int64
	pos   int
}

func (cur *fullCursor) Filter(planID int, planStr string, args []Value) error {
	cur.ids = cur.ids[:0]
	switch planID {
	case 1:
		id := args[0].Int()
		if _, exists := cur.table.rows[id]; exists {
			cur.ids = append(cur.ids, id)
		}
	default:
		for id := range cur.table.rows {
			cur.ids = append(cur.ids, id)
		}
		sort.Slice(cur.ids, func(i, j int) bool { return cur.ids[i] < cur.ids[j] })
	}
	cur.pos = 0
	return nil
}

func (cur *fullCursor) Next() error { cur.pos++; return nil }
func (cur *fullCursor) EOF() bool   { return cur.pos >= len(cur.ids) }

func (cur *fullCursor) Column(ctx *ColumnContext, idx int) error {
	if ctx.NoChange() {
		return nil
	}
	cells := cur.table.rows[cur.ids[cur.pos]]
	if idx >= len(cells) {
		ctx.ResultNull()
		return nil
	}
	ctx.ResultValue(cells[idx])
	return nil
}

func (cur *fullCursor) Rowid() (int64, error) { return cur.ids[cur.pos], nil }

// roTable implements nothing beyond the core group.
type roTable struct {
	vals []int64
}

func newROTable(tc *TableConn, aux []int64, args []string) (string, *roTable, error) {
	return "CREATE TABLE x(n)", &roTable{vals: aux}, nil
}

func (t *roTable) BestIndex(ii *IndexInfo) error { return nil }
func (t *roTable) Open() (Cursor, error)         { return &roCursor{vals: t.vals}, nil }
func (t *roTable) Disconnect() error             { return nil }

type roCursor struct {
	vals []int64
	pos  int
}

func (cur *roCursor) Filter(planID int, planStr string, args []Value) error {
	cur.pos = 0
	return nil
}

func (cur *roCursor) Next() error { cur.pos++; return nil }
func (cur *roCursor) EOF() bool   { return cur.pos >= len(cur.vals) }

func (cur *roCursor) Column(ctx *ColumnContext, idx int) error {
	ctx.ResultInt(cur.vals[cur.pos])
	return nil
}

func (cur *roCursor) Rowid() (int64, error) { return int64(cur.pos + 1), nil }

func fullModule() *Module {
	return NewStandardModule[any](newFullTable, newFullTable)
}

// connectFull registers a full-featured module and connects one instance.
func connectFull(t testing.TB, version int) (*Conn, InstanceHandle, *fullTable) {
	t.Helper()
	c, _ := newTestConn(t, version)
	_ = must(c.Register("full", fullModule(), nil, nil))
	h := must(c.Create("full", []string{"full", "main", "t1"}))
	inst, _ := c.instances.get(uint64(h))
	return c, h, inst.table.(*fullTable)
}
