package vtab

import "fmt"

// Table is the functionality required of every virtual table. A read-only
// ambient table (a table-valued function, say) implements nothing else.
type Table interface {
	// BestIndex negotiates an access plan; see IndexInfo. Returning
	// ErrConstraint rejects this candidate plan without failing the query,
	// exactly as if the estimated cost were infinite.
	BestIndex(ii *IndexInfo) error

	// Open creates an unpositioned cursor over the table.
	Open() (Cursor, error)

	// Disconnect tears down the table state for one instance. The instance
	// handle is released even if Disconnect reports an error.
	Disconnect() error
}

// Cursor is one scan over a table instance for one query execution.
type Cursor interface {
	// Filter positions the cursor at the first row of a scan described by
	// the plan id and payload chosen during BestIndex. Constraint values
	// arrive in consumption order. Filter may be called again on the same
	// cursor to restart the scan with new values.
	Filter(planID int, planStr string, args []Value) error

	// Next advances one row.
	Next() error

	// EOF reports whether the cursor has moved past the last row.
	EOF() bool

	// Column writes the value of column idx for the current row into ctx.
	Column(ctx *ColumnContext, idx int) error

	// Rowid returns the current row's row id.
	Rowid() (int64, error)
}

// CreateTable is a table type that supports explicit creation, with
// persistent state to destroy when the table is dropped.
type CreateTable interface {
	Table

	// Destroy deletes the table's persisted state. If it fails the
	// instance stays connected and usable; contrast Disconnect.
	Destroy() error
}

// UpdateTable is a table type that accepts inserts, updates and deletes.
// All three may return ErrConstraint, which the host surfaces as a
// constraint failure rather than a statement abort.
type UpdateTable interface {
	Table

	// Insert adds a row. args[0] is the requested row id or NULL; the
	// returned row id is used when args[0] is NULL and ignored for tables
	// without row ids.
	Insert(args []Value) (int64, error)

	// Update rewrites the row identified by rowid. args[0] carries the new
	// row id, NULL meaning unchanged; the remaining args are column values,
	// some possibly marked Unchanged.
	Update(rowid Value, args []Value) error

	// Delete removes the row identified by rowid.
	Delete(rowid Value) error
}

// TransactionTable is an updatable table type that needs its own rollback
// handling because it modifies state outside the host's own storage.
type TransactionTable interface {
	UpdateTable

	// Begin opens a transaction. The coordinator rejects a second Begin
	// while one is open.
	Begin() (Transaction, error)
}

// Transaction is one open table transaction. It is consumed by exactly one
// of Commit or Rollback. The savepoint methods are only driven on hosts
// with the savepoint capability.
type Transaction interface {
	// Sync starts a two-phase commit; a failure aborts the commit of the
	// whole host transaction before any table commits.
	Sync() error

	Commit() error
	Rollback() error

	// Savepoint records the current state under depth n. Depths are
	// assigned monotonically while the transaction is open.
	Savepoint(n int) error

	// Release invalidates the record of savepoints with depth >= n; the
	// changes themselves remain pending.
	Release(n int) error

	// RollbackTo reverts to the most recent state recorded at depth >= n
	// and discards savepoints with depth >= n.
	RollbackTo(n int) error
}

// RenameTable is a table type that survives ALTER TABLE RENAME without
// being recreated.
type RenameTable interface {
	Table
	Rename(name string) error
}

// OverloadTable is a table type that overrides certain SQL functions when
// they are applied to its columns.
type OverloadTable interface {
	Table

	// Functions returns the instance's overload registry. Consulted during
	// planning; see FunctionList.
	Functions() *FunctionList
}

// ModuleKind selects how instances of a module come into being.
type ModuleKind int

const (
	// KindStandard tables exist only after explicit creation.
	KindStandard ModuleKind = iota
	// KindEponymous tables are ambiently available under the module name,
	// and may additionally be created with alternative arguments.
	KindEponymous
	// KindEponymousOnly tables are ambient and refuse explicit creation.
	KindEponymousOnly
)

func (k ModuleKind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindEponymous:
		return "eponymous"
	case KindEponymousOnly:
		return "eponymous-only"
	default:
		return fmt.Sprintf("ModuleKind(%d)", int(k))
	}
}

// Constructor builds one table instance. It returns the schema DDL the
// adapter declares to the host on the instance's behalf, along with the
// instance state. args holds the host-provided arguments: module name,
// database name, table name, then any user arguments.
type Constructor[A any, T Table] func(tc *TableConn, aux A, args []string) (string, T, error)

type rawConstructor func(tc *TableConn, aux any, args []string) (string, Table, error)

// Module is the static descriptor of one table type: its kind, its bound
// constructors, and which optional operation groups its instances support.
// Built once and registered by name on any number of connections.
type Module struct {
	kind    ModuleKind
	connect rawConstructor
	create  rawConstructor

	shadowNames []string

	hasUpdate    bool
	hasTxn       bool
	hasRename    bool
	hasOverloads bool
}

// NewModule declares an eponymous table type: ambiently available, with
// creation reusing the connect constructor.
func NewModule[A any, T Table](connect Constructor[A, T]) *Module {
	raw := adaptConstructor(connect)
	m := &Module{kind: KindEponymous, connect: raw, create: raw}
	detectGroups[T](m)
	return m
}

// NewStandardModule declares a table type that is only reachable after
// explicit creation. T must support destruction of its persisted state.
func NewStandardModule[A any, T CreateTable](create, connect Constructor[A, T]) *Module {
	m := &Module{
		kind:    KindStandard,
		connect: adaptConstructor(connect),
		create:  adaptConstructor(create),
	}
	detectGroups[T](m)
	return m
}

// NewEponymousOnlyModule declares an ambient table type for which explicit
// creation is forbidden. Registering it on a host that cannot enforce the
// restriction fails closed.
func NewEponymousOnlyModule[A any, T Table](connect Constructor[A, T]) *Module {
	m := &Module{kind: KindEponymousOnly, connect: adaptConstructor(connect)}
	detectGroups[T](m)
	return m
}

// WithShadowNames declares the auxiliary-object-name suffixes instances of
// this module own. Under defensive mode, hosts with the capability forbid
// direct modification of objects named <table>_<suffix>.
func (m *Module) WithShadowNames(names ...string) *Module {
	m.shadowNames = append(m.shadowNames, names...)
	return m
}

func (m *Module) Kind() ModuleKind { return m.kind }

// detectGroups resolves the optional operation groups from T's method set.
// This happens exactly once, at descriptor build time, never per call.
func detectGroups[T Table](m *Module) {
	var zero T
	_, m.hasUpdate = any(zero).(UpdateTable)
	_, m.hasTxn = any(zero).(TransactionTable)
	_, m.hasRename = any(zero).(RenameTable)
	_, m.hasOverloads = any(zero).(OverloadTable)
}

func adaptConstructor[A any, T Table](fn Constructor[A, T]) rawConstructor {
	return func(tc *TableConn, aux any, args []string) (string, Table, error) {
		var a A
		if aux != nil {
			var ok bool
			a, ok = aux.(A)
			if !ok {
				return "", nil, protocolf("connect", "auxiliary data is %T, module wants %T", aux, a)
			}
		}
		ddl, t, err := fn(tc, a, args)
		if err != nil {
			return "", nil, err
		}
		return ddl, t, nil
	}
}

// RiskLevel classifies how dangerous a table is to expose to untrusted SQL.
type RiskLevel int

const (
	// RiskNormal imposes no restrictions.
	RiskNormal RiskLevel = iota
	// RiskInnocuous marks the table safe to use even in untrusted schemas.
	RiskInnocuous
	// RiskDirectOnly restricts the table to direct top-level SQL.
	RiskDirectOnly
)

// TableConn is the constructor-scoped view of the connection, letting a
// table configure itself while it is being connected or created.
type TableConn struct {
	conn *Conn

	constraintSupport bool
	risk              RiskLevel
}

// Caps returns the connection's negotiated capability set.
func (tc *TableConn) Caps() Caps { return tc.conn.caps }

// EnableConstraints requests constraint-aware update handling for this
// instance. Harmless no-op on hosts without the capability.
func (tc *TableConn) EnableConstraints() {
	if tc.conn.caps.ConstraintSupport() {
		tc.constraintSupport = true
	}
}

// SetRisk declares the instance's risk level. Harmless no-op on hosts
// without the capability.
func (tc *TableConn) SetRisk(level RiskLevel) {
	if tc.conn.caps.RiskConfig() {
		tc.risk = level
	}
}
