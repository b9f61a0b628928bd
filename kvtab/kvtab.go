// Package kvtab provides a persistent key/value table backed by a bbolt
// database. Each table owns one bucket; rows are msgpack-encoded and large
// rows are zstd-compressed. The row set is held in memory and written
// through immediately, except while a host transaction is open, in which
// case changes are buffered and the bucket is rewritten on commit.
//
// A table must have at most one live instance per bucket at a time; the
// in-memory row set is authoritative between connect and disconnect.
package kvtab

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	vtab "github.com/CGamesPlay/sqlite3-ext-sub000"
)

// Rows at or above this encoded size are stored zstd-compressed.
const compressThreshold = 64

const (
	colK = 0
	colV = 1
)

const (
	planFullScan  = 0
	planKeyLookup = 1
)

// Store owns the bbolt database and the compression codecs shared by every
// table registered against it.
type Store struct {
	db  *bolt.DB
	enc *zstd.Encoder
	dec *zstd.Decoder

	// DropGuard, when set, is consulted before a table's bucket is
	// deleted. A non-nil return vetoes the destruction and the instance
	// stays connected.
	DropGuard func(table string) error
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("kvtab: open %s: %w", path, err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

func (s *Store) Close() error {
	var errs *multierror.Error
	if err := s.enc.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	s.dec.Close()
	if err := s.db.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// New builds the module descriptor for tables stored in s.
func New(s *Store) *vtab.Module {
	return vtab.NewStandardModule(
		func(tc *vtab.TableConn, _ any, args []string) (string, *table, error) {
			return s.create(args)
		},
		func(tc *vtab.TableConn, _ any, args []string) (string, *table, error) {
			return s.connect(args)
		},
	).WithShadowNames("data", "state")
}

const tableDDL = "CREATE TABLE x(k, v)"

// cell is the storable form of one column value.
type cell struct {
	Type  int     `msgpack:"t"`
	Int   int64   `msgpack:"i,omitempty"`
	Float float64 `msgpack:"f,omitempty"`
	Text  string  `msgpack:"s,omitempty"`
	Blob  []byte  `msgpack:"b,omitempty"`
}

func cellOf(v vtab.Value) cell {
	switch v.Type() {
	case vtab.TypeInteger:
		return cell{Type: int(vtab.TypeInteger), Int: v.Int()}
	case vtab.TypeFloat:
		return cell{Type: int(vtab.TypeFloat), Float: v.Float()}
	case vtab.TypeText:
		return cell{Type: int(vtab.TypeText), Text: v.Text()}
	case vtab.TypeBlob:
		return cell{Type: int(vtab.TypeBlob), Blob: v.Blob()}
	default:
		return cell{Type: int(vtab.TypeNull)}
	}
}

func (c cell) value() vtab.Value {
	switch vtab.ValueType(c.Type) {
	case vtab.TypeInteger:
		return vtab.Int(c.Int)
	case vtab.TypeFloat:
		return vtab.Float(c.Float)
	case vtab.TypeText:
		return vtab.Text(c.Text)
	case vtab.TypeBlob:
		return vtab.Blob(c.Blob)
	default:
		return vtab.Null()
	}
}

func (c cell) eq(o cell) bool {
	if c.Type != o.Type {
		return false
	}
	switch vtab.ValueType(c.Type) {
	case vtab.TypeInteger:
		return c.Int == o.Int
	case vtab.TypeFloat:
		return c.Float == o.Float
	case vtab.TypeText:
		return c.Text == o.Text
	case vtab.TypeBlob:
		return string(c.Blob) == string(o.Blob)
	default:
		return false // NULL never equals NULL
	}
}

type record struct {
	K cell `msgpack:"k"`
	V cell `msgpack:"v"`
}

func (s *Store) encodeRecord(r record) ([]byte, error) {
	raw, err := msgpack.Marshal(r)
	if err != nil {
		return nil, err
	}
	if len(raw) >= compressThreshold {
		return append([]byte{1}, s.enc.EncodeAll(raw, nil)...), nil
	}
	return append([]byte{0}, raw...), nil
}

func (s *Store) decodeRecord(buf []byte) (record, error) {
	var r record
	if len(buf) == 0 {
		return r, fmt.Errorf("kvtab: empty record")
	}
	raw := buf[1:]
	if buf[0] == 1 {
		var err error
		raw, err = s.dec.DecodeAll(raw, nil)
		if err != nil {
			return r, fmt.Errorf("kvtab: decompress record: %w", err)
		}
	}
	if err := msgpack.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("kvtab: decode record: %w", err)
	}
	return r, nil
}

func rowKey(rowid int64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(rowid))
	return k[:]
}

type table struct {
	store  *Store
	bucket string
	rows   map[int64]record
	nextID int64
	txn    *txn
}

func (s *Store) create(args []string) (string, *table, error) {
	bucket := args[2]
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucket([]byte(bucket))
		return err
	})
	if err != nil {
		return "", nil, fmt.Errorf("kvtab: create %q: %w", bucket, err)
	}
	return tableDDL, &table{store: s, bucket: bucket, rows: map[int64]record{}, nextID: 1}, nil
}

func (s *Store) connect(args []string) (string, *table, error) {
	bucket := args[2]
	t := &table{store: s, bucket: bucket, rows: map[int64]record{}, nextID: 1}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("kvtab: no such table %q", bucket)
		}
		return b.ForEach(func(k, v []byte) error {
			rowid := int64(binary.BigEndian.Uint64(k))
			r, err := s.decodeRecord(v)
			if err != nil {
				return err
			}
			t.rows[rowid] = r
			if rowid >= t.nextID {
				t.nextID = rowid + 1
			}
			return nil
		})
	})
	if err != nil {
		return "", nil, err
	}
	return tableDDL, t, nil
}

// BestIndex prefers an equality lookup on the key column; everything else
// is a full scan priced by the current row count.
func (t *table) BestIndex(ii *vtab.IndexInfo) error {
	for i, con := range ii.Constraints() {
		if con.Usable && con.Column == colK && con.Op == vtab.OpEq {
			ii.SetArgvIndex(i, 0)
			ii.SetOmit(i, true)
			ii.SetPlan(planKeyLookup)
			ii.SetEstimatedCost(10)
			ii.SetEstimatedRows(1)
			return nil
		}
	}
	ii.SetPlan(planFullScan)
	ii.SetEstimatedCost(float64(len(t.rows) + 1))
	ii.SetEstimatedRows(int64(len(t.rows)))
	return nil
}

func (t *table) Open() (vtab.Cursor, error) { return &cursor{table: t}, nil }

func (t *table) Disconnect() error { return nil }

func (t *table) Destroy() error {
	if t.store.DropGuard != nil {
		if err := t.store.DropGuard(t.bucket); err != nil {
			return err
		}
	}
	return t.store.db.Update(func(tx *bolt.Tx) error {
		return tx.DeleteBucket([]byte(t.bucket))
	})
}

func (t *table) Insert(args []vtab.Value) (int64, error) {
	rowid := args[0].Int()
	if args[0].IsNull() {
		rowid = t.nextID
	} else if _, exists := t.rows[rowid]; exists {
		return 0, fmt.Errorf("kvtab: rowid %d: %w", rowid, vtab.ErrConstraint)
	}
	r := record{K: cellOf(args[1]), V: cellOf(args[2])}
	if rowid >= t.nextID {
		t.nextID = rowid + 1
	}
	t.rows[rowid] = r
	if t.txn == nil {
		return rowid, t.writeThrough(rowid, &r)
	}
	return rowid, nil
}

func (t *table) Update(rowid vtab.Value, args []vtab.Value) error {
	id := rowid.Int()
	old, exists := t.rows[id]
	if !exists {
		return fmt.Errorf("kvtab: rowid %d not found", id)
	}
	if !args[0].IsNull() && args[0].Int() != id {
		return fmt.Errorf("kvtab: rowid change is not supported")
	}
	r := record{K: cellOf(args[1]), V: cellOf(args[2])}
	if args[1].NoChange() {
		r.K = old.K
	}
	if args[2].NoChange() {
		r.V = old.V
	}
	t.rows[id] = r
	if t.txn == nil {
		return t.writeThrough(id, &r)
	}
	return nil
}

func (t *table) Delete(rowid vtab.Value) error {
	id := rowid.Int()
	delete(t.rows, id)
	if t.txn == nil {
		return t.writeThrough(id, nil)
	}
	return nil
}

// writeThrough applies a single-row change to the bucket. r == nil deletes.
func (t *table) writeThrough(rowid int64, r *record) error {
	return t.store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(t.bucket))
		if b == nil {
			return fmt.Errorf("kvtab: no such table %q", t.bucket)
		}
		if r == nil {
			return b.Delete(rowKey(rowid))
		}
		buf, err := t.store.encodeRecord(*r)
		if err != nil {
			return err
		}
		return b.Put(rowKey(rowid), buf)
	})
}

func cloneRows(rows map[int64]record) map[int64]record {
	out := make(map[int64]record, len(rows))
	for id, r := range rows {
		out[id] = r
	}
	return out
}

func (t *table) Begin() (vtab.Transaction, error) {
	x := &txn{table: t, base: cloneRows(t.rows), baseNext: t.nextID}
	t.txn = x
	return x, nil
}

type snapshot struct {
	depth  int
	rows   map[int64]record
	nextID int64
}

// txn buffers mutations in the table's in-memory row set. Savepoints are
// full snapshots; commit rewrites the bucket from the final row set.
type txn struct {
	table    *table
	base     map[int64]record
	baseNext int64
	saves    []snapshot
}

func (x *txn) Sync() error { return nil }

func (x *txn) Commit() error {
	t := x.table
	t.txn = nil
	return t.store.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(t.bucket)); err != nil {
			return err
		}
		b, err := tx.CreateBucket([]byte(t.bucket))
		if err != nil {
			return err
		}
		for rowid, r := range t.rows {
			buf, err := t.store.encodeRecord(r)
			if err != nil {
				return err
			}
			if err := b.Put(rowKey(rowid), buf); err != nil {
				return err
			}
		}
		return nil
	})
}

func (x *txn) Rollback() error {
	t := x.table
	t.txn = nil
	t.rows = x.base
	t.nextID = x.baseNext
	return nil
}

func (x *txn) Savepoint(n int) error {
	x.saves = append(x.saves, snapshot{depth: n, rows: cloneRows(x.table.rows), nextID: x.table.nextID})
	return nil
}

func (x *txn) Release(n int) error {
	x.drop(n)
	return nil
}

func (x *txn) RollbackTo(n int) error {
	for i := len(x.saves) - 1; i >= 0; i-- {
		if x.saves[i].depth >= n {
			x.table.rows = cloneRows(x.saves[i].rows)
			x.table.nextID = x.saves[i].nextID
			x.drop(n)
			return nil
		}
	}
	return fmt.Errorf("kvtab: no savepoint at depth %d", n)
}

// drop forgets the record of savepoints with depth >= n.
func (x *txn) drop(n int) {
	i := len(x.saves)
	for i > 0 && x.saves[i-1].depth >= n {
		i--
	}
	x.saves = x.saves[:i]
}

type cursor struct {
	table *table
	ids   []int64
	pos   int
}

func (cur *cursor) Filter(planID int, _ string, args []vtab.Value) error {
	cur.ids = cur.ids[:0]
	switch planID {
	case planKeyLookup:
		want := cellOf(args[0])
		for id, r := range cur.table.rows {
			if r.K.eq(want) {
				cur.ids = append(cur.ids, id)
			}
		}
	default:
		for id := range cur.table.rows {
			cur.ids = append(cur.ids, id)
		}
	}
	sort.Slice(cur.ids, func(i, j int) bool { return cur.ids[i] < cur.ids[j] })
	cur.pos = 0
	return nil
}

func (cur *cursor) Next() error { cur.pos++; return nil }
func (cur *cursor) EOF() bool   { return cur.pos >= len(cur.ids) }

func (cur *cursor) Column(ctx *vtab.ColumnContext, idx int) error {
	if ctx.NoChange() {
		return nil
	}
	r := cur.table.rows[cur.ids[cur.pos]]
	switch idx {
	case colK:
		ctx.ResultValue(r.K.value())
	case colV:
		ctx.ResultValue(r.V.value())
	default:
		ctx.ResultNull()
	}
	return nil
}

func (cur *cursor) Rowid() (int64, error) { return cur.ids[cur.pos], nil }
