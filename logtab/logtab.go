// Package logtab provides a table that logs every protocol call it
// receives, for tracing and for exercising the full protocol surface. The
// schema comes from a schema='...' argument; rows=N sets how many synthetic
// rows scans produce.
package logtab

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-pkgz/lgr"

	vtab "github.com/CGamesPlay/sqlite3-ext-sub000"
)

// Instance ids are spaced out so cursor and transaction ids (instance id
// plus a small counter) stay recognizable in the log.
var instanceIDs atomic.Int64

// New builds the module descriptor. Every optional operation group is
// enabled. The registration's auxiliary data is the lgr.L to log through;
// nil means lgr.Default().
func New() *vtab.Module {
	return vtab.NewStandardModule(
		func(tc *vtab.TableConn, aux lgr.L, args []string) (string, *table, error) {
			return connectCreate(aux, args, "create")
		},
		func(tc *vtab.TableConn, aux lgr.L, args []string) (string, *table, error) {
			return connectCreate(aux, args, "connect")
		},
	).WithShadowNames("shadow")
}

type table struct {
	id      int64
	numRows int64
	cursors int64
	txns    int64
	log     lgr.L
}

func connectCreate(log lgr.L, args []string, method string) (string, *table, error) {
	if log == nil {
		log = lgr.Default()
	}
	t := &table{id: instanceIDs.Add(100), log: log}
	t.logf("%s(tab=%d, args=%q)", method, t.id, args)

	var schema string
	for _, arg := range args[3:] {
		switch {
		case strings.HasPrefix(arg, "rows="):
			n, err := strconv.ParseInt(arg[len("rows="):], 10, 64)
			if err != nil {
				return "", nil, fmt.Errorf("logtab: bad rows argument %q: %w", arg, err)
			}
			t.numRows = n
		case strings.HasPrefix(arg, "schema='"):
			s, ok := unquote(arg[len("schema='"):])
			if !ok {
				return "", nil, fmt.Errorf("logtab: unterminated schema argument %q", arg)
			}
			schema = s
		default:
			return "", nil, fmt.Errorf("logtab: unrecognized argument %q", arg)
		}
	}
	if schema == "" {
		return "", nil, fmt.Errorf("logtab: schema not provided")
	}
	return schema, t, nil
}

// unquote consumes a ''-escaped string up to a closing quote, which must
// end the input.
func unquote(s string) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\'' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		return b.String(), i == len(s)-1
	}
	return "", false
}

func (t *table) logf(format string, args ...any) {
	t.log.Logf("[DEBUG] "+format, args...)
}

func (t *table) BestIndex(ii *vtab.IndexInfo) error {
	t.logf("best_index(tab=%d, input=%v)", t.id, ii)
	return nil
}

func (t *table) Open() (vtab.Cursor, error) {
	t.cursors++
	cur := &cursor{table: t, id: t.id + t.cursors}
	t.logf("open(tab=%d, cursor=%d)", t.id, cur.id)
	return cur, nil
}

func (t *table) Disconnect() error {
	t.logf("disconnect(tab=%d)", t.id)
	return nil
}

func (t *table) Destroy() error {
	t.logf("destroy(tab=%d)", t.id)
	return nil
}

func (t *table) Insert(args []vtab.Value) (int64, error) {
	t.logf("insert(tab=%d, args=%v)", t.id, args)
	return 1, nil
}

func (t *table) Update(rowid vtab.Value, args []vtab.Value) error {
	t.logf("update(tab=%d, rowid=%v, args=%v)", t.id, rowid, args)
	return nil
}

func (t *table) Delete(rowid vtab.Value) error {
	t.logf("delete(tab=%d, rowid=%v)", t.id, rowid)
	return nil
}

func (t *table) Begin() (vtab.Transaction, error) {
	t.txns++
	txn := &transaction{table: t, id: t.id + t.txns}
	t.logf("begin(tab=%d, transaction=%d)", t.id, txn.id)
	return txn, nil
}

func (t *table) Rename(name string) error {
	t.logf("rename(tab=%d, name=%q)", t.id, name)
	return nil
}

func (t *table) Functions() *vtab.FunctionList {
	t.logf("functions(tab=%d)", t.id)
	return &vtab.FunctionList{}
}

type cursor struct {
	table *table
	id    int64
	rowid int64
}

func (cur *cursor) Filter(planID int, planStr string, args []vtab.Value) error {
	cur.table.logf("filter(tab=%d, cursor=%d, plan=%d, args=%v)", cur.table.id, cur.id, planID, args)
	cur.rowid = 0
	return nil
}

func (cur *cursor) Next() error {
	cur.table.logf("next(tab=%d, cursor=%d) rowid %d -> %d", cur.table.id, cur.id, cur.rowid, cur.rowid+1)
	cur.rowid++
	return nil
}

func (cur *cursor) EOF() bool {
	eof := cur.rowid >= cur.table.numRows
	cur.table.logf("eof(tab=%d, cursor=%d) -> %v", cur.table.id, cur.id, eof)
	return eof
}

const alphabet = "abcdefghijklmnopqrstuvwxyz"

func (cur *cursor) Column(ctx *vtab.ColumnContext, idx int) error {
	var s string
	if idx < len(alphabet) {
		s = fmt.Sprintf("%c%d", alphabet[idx], cur.rowid)
	} else {
		s = fmt.Sprintf("{%d}%d", idx, cur.rowid)
	}
	cur.table.logf("column(tab=%d, cursor=%d, idx=%d) -> %q", cur.table.id, cur.id, idx, s)
	ctx.ResultText(s)
	return nil
}

func (cur *cursor) Rowid() (int64, error) {
	cur.table.logf("rowid(tab=%d, cursor=%d) -> %d", cur.table.id, cur.id, cur.rowid)
	return cur.rowid, nil
}

type transaction struct {
	table *table
	id    int64
}

func (x *transaction) Sync() error {
	x.table.logf("sync(tab=%d, transaction=%d)", x.table.id, x.id)
	return nil
}

func (x *transaction) Commit() error {
	x.table.logf("commit(tab=%d, transaction=%d)", x.table.id, x.id)
	return nil
}

func (x *transaction) Rollback() error {
	x.table.logf("rollback(tab=%d, transaction=%d)", x.table.id, x.id)
	return nil
}

func (x *transaction) Savepoint(n int) error {
	x.table.logf("savepoint(tab=%d, transaction=%d, n=%d)", x.table.id, x.id, n)
	return nil
}

func (x *transaction) Release(n int) error {
	x.table.logf("release(tab=%d, transaction=%d, n=%d)", x.table.id, x.id, n)
	return nil
}

func (x *transaction) RollbackTo(n int) error {
	x.table.logf("rollback_to(tab=%d, transaction=%d, n=%d)", x.table.id, x.id, n)
	return nil
}
