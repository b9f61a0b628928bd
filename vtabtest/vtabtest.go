// Package vtabtest drives a vtab.Conn the way a real host would, for use in
// table implementation tests. The fake host records declared schemas and can
// be told to fail declarations; the TestConn helpers run the full plan,
// filter and scan protocol so table tests read as queries.
package vtabtest

import (
	"testing"

	vtab "github.com/CGamesPlay/sqlite3-ext-sub000"
)

// ModernVersion supports every optional protocol feature.
const ModernVersion = 3_045_000

// Host is a fake embedding engine.
type Host struct {
	HostVersion int
	Declared    []string
	DeclareErr  error
}

func (h *Host) Version() int { return h.HostVersion }

func (h *Host) DeclareSchema(ddl string) error {
	if h.DeclareErr != nil {
		return h.DeclareErr
	}
	h.Declared = append(h.Declared, ddl)
	return nil
}

// TestConn wraps a connection with test-fatal versions of the host calls.
type TestConn struct {
	*vtab.Conn

	T    testing.TB
	Host *Host
}

func New(t testing.TB, version int) *TestConn {
	t.Helper()
	host := &Host{HostVersion: version}
	tc := &TestConn{
		Conn: vtab.NewConn(host, vtab.Options{Logf: t.Logf}),
		T:    t,
		Host: host,
	}
	t.Cleanup(func() {
		if err := tc.Conn.Close(); err != nil {
			t.Errorf("** close: %v", err)
		}
	})
	return tc
}

func (tc *TestConn) MustRegister(name string, mod *vtab.Module, aux any) *vtab.Registration {
	tc.T.Helper()
	reg, err := tc.Register(name, mod, aux, nil)
	if err != nil {
		tc.T.Fatalf("** register %q: %v", name, err)
	}
	return reg
}

// MustConnect connects an ambient table. User arguments follow the three
// positional ones, which are synthesized as the host does.
func (tc *TestConn) MustConnect(module string, userArgs ...string) vtab.InstanceHandle {
	tc.T.Helper()
	h, err := tc.Connect(module, append([]string{module, "main", module}, userArgs...))
	if err != nil {
		tc.T.Fatalf("** connect %q: %v", module, err)
	}
	return h
}

func (tc *TestConn) MustCreate(module, table string, userArgs ...string) vtab.InstanceHandle {
	tc.T.Helper()
	h, err := tc.Create(module, append([]string{module, "main", table}, userArgs...))
	if err != nil {
		tc.T.Fatalf("** create %q: %v", table, err)
	}
	return h
}

// Plan negotiates one candidate plan and fails the test if the table
// rejects it or violates the protocol.
func (tc *TestConn) Plan(h vtab.InstanceHandle, constraints []vtab.IndexConstraint, orderBy []vtab.IndexOrderBy) *vtab.IndexInfo {
	tc.T.Helper()
	ii := vtab.NewIndexInfo(tc.Caps(), constraints, orderBy)
	if err := tc.BestIndex(h, ii); err != nil {
		tc.T.Fatalf("** best_index: %v", err)
	}
	return ii
}

// FilterArgs arranges per-constraint runtime values into the argument order
// the negotiated plan asked for. values is indexed by constraint position.
func (tc *TestConn) FilterArgs(ii *vtab.IndexInfo, values []vtab.Value) []vtab.Value {
	tc.T.Helper()
	consumed := ii.ConsumedArgs()
	args := make([]vtab.Value, len(consumed))
	for ord, ci := range consumed {
		if ci >= len(values) {
			tc.T.Fatalf("** plan consumes constraint %d, but only %d values were provided", ci, len(values))
		}
		args[ord] = values[ci]
	}
	return args
}

// Query runs one full scan protocol round: open, filter with the negotiated
// plan, then walk the cursor collecting ncols columns per row.
func (tc *TestConn) Query(h vtab.InstanceHandle, ii *vtab.IndexInfo, args []vtab.Value, ncols int) [][]vtab.Value {
	tc.T.Helper()
	ch, err := tc.OpenCursor(h)
	if err != nil {
		tc.T.Fatalf("** open: %v", err)
	}
	defer tc.CloseCursor(ch)

	if err := tc.Filter(ch, ii.PlanID(), ii.PlanString(), args); err != nil {
		tc.T.Fatalf("** filter: %v", err)
	}
	var rows [][]vtab.Value
	for !tc.EOF(ch) {
		row := make([]vtab.Value, ncols)
		for i := range row {
			v, wrote, err := tc.Column(ch, i, false)
			if err != nil {
				tc.T.Fatalf("** column %d: %v", i, err)
			}
			if !wrote {
				v = vtab.Null()
			}
			row[i] = v
		}
		rows = append(rows, row)
		if err := tc.Next(ch); err != nil {
			tc.T.Fatalf("** next: %v", err)
		}
	}
	return rows
}

// QueryInts is Query for single-column integer results.
func (tc *TestConn) QueryInts(h vtab.InstanceHandle, ii *vtab.IndexInfo, args []vtab.Value) []int64 {
	tc.T.Helper()
	rows := tc.Query(h, ii, args, 1)
	if len(rows) == 0 {
		return nil
	}
	out := make([]int64, len(rows))
	for i, row := range rows {
		out[i] = row[0].Int()
	}
	return out
}
