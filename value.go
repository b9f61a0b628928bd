package vtab

import (
	"fmt"
	"strconv"
)

// ValueType identifies the storage class of a Value. The numeric values
// match the host's fundamental datatype codes.
type ValueType int

const (
	TypeInteger ValueType = 1
	TypeFloat   ValueType = 2
	TypeText    ValueType = 3
	TypeBlob    ValueType = 4
	TypeNull    ValueType = 5
)

func (t ValueType) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "FLOAT"
	case TypeText:
		return "TEXT"
	case TypeBlob:
		return "BLOB"
	case TypeNull:
		return "NULL"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// Value is the narrow carrier for data crossing the host boundary: filter
// arguments, mutation arguments and planning-time constraint operands. It
// is a plain copyable value; the adapter never retains host buffers.
type Value struct {
	typ      ValueType
	n        int64
	f        float64
	s        string
	b        []byte
	ptr      any
	list     []Value
	noChange bool
}

func Int(v int64) Value     { return Value{typ: TypeInteger, n: v} }
func Float(v float64) Value { return Value{typ: TypeFloat, f: v} }
func Text(s string) Value   { return Value{typ: TypeText, s: s} }
func Blob(b []byte) Value   { return Value{typ: TypeBlob, b: b} }
func Null() Value           { return Value{typ: TypeNull} }
func Pointer(p any) Value   { return Value{typ: TypeNull, ptr: p} }

// ValueList packs the complete right-hand side of an IN constraint into a
// single filter argument. The host only delivers one when the table asked
// for it during planning; see IndexInfo.WantValueList.
func ValueList(vs ...Value) Value {
	return Value{typ: TypeNull, list: vs}
}

// Unchanged marks an update argument whose column value is not being
// modified by the current statement.
func Unchanged() Value {
	return Value{typ: TypeNull, noChange: true}
}

func (v Value) Type() ValueType { return v.typ }
func (v Value) IsNull() bool    { return v.typ == TypeNull }

// NoChange reports whether this update argument carries no new value for
// its column.
func (v Value) NoChange() bool { return v.noChange }

// List returns the packed IN-constraint values, if any.
func (v Value) List() ([]Value, bool) {
	return v.list, v.list != nil
}

func (v Value) Pointer() any { return v.ptr }

// Int returns the value coerced to an integer.
func (v Value) Int() int64 {
	switch v.typ {
	case TypeInteger:
		return v.n
	case TypeFloat:
		return int64(v.f)
	case TypeText:
		n, _ := strconv.ParseInt(v.s, 10, 64)
		return n
	default:
		return 0
	}
}

// Float returns the value coerced to a float.
func (v Value) Float() float64 {
	switch v.typ {
	case TypeInteger:
		return float64(v.n)
	case TypeFloat:
		return v.f
	case TypeText:
		f, _ := strconv.ParseFloat(v.s, 64)
		return f
	default:
		return 0
	}
}

// Text returns the value coerced to a string.
func (v Value) Text() string {
	switch v.typ {
	case TypeInteger:
		return strconv.FormatInt(v.n, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case TypeText:
		return v.s
	case TypeBlob:
		return string(v.b)
	default:
		return ""
	}
}

// Blob returns the value's bytes. Text converts; other types are nil.
func (v Value) Blob() []byte {
	switch v.typ {
	case TypeText:
		return []byte(v.s)
	case TypeBlob:
		return v.b
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.typ {
	case TypeNull:
		if v.noChange {
			return "<nochange>"
		}
		if v.list != nil {
			return fmt.Sprintf("<list of %d>", len(v.list))
		}
		if v.ptr != nil {
			return fmt.Sprintf("<ptr %T>", v.ptr)
		}
		return "NULL"
	case TypeBlob:
		return fmt.Sprintf("x'%x'", v.b)
	default:
		return v.Text()
	}
}

// ColumnContext is the output channel of a single column fetch. The cursor
// writes exactly one result through it, or writes nothing at all when
// NoChange reports true and the value is known to be unchanged.
type ColumnContext struct {
	caps     Caps
	noChange bool
	wrote    bool
	result   Value
}

// NoChange reports whether the column is being fetched as part of an UPDATE
// during which its value will not change, so the fetch may be skipped. This
// is an optimization hint: it may report false even for unchanged values,
// and always reports false below the host version that introduced it.
func (ctx *ColumnContext) NoChange() bool {
	return ctx.noChange && ctx.caps.NoChange()
}

func (ctx *ColumnContext) set(v Value) {
	if ctx.wrote {
		panic("vtab: column result written twice")
	}
	ctx.wrote = true
	ctx.result = v
}

func (ctx *ColumnContext) ResultInt(v int64)     { ctx.set(Int(v)) }
func (ctx *ColumnContext) ResultFloat(v float64) { ctx.set(Float(v)) }
func (ctx *ColumnContext) ResultText(s string)   { ctx.set(Text(s)) }
func (ctx *ColumnContext) ResultBlob(b []byte)   { ctx.set(Blob(b)) }
func (ctx *ColumnContext) ResultNull()           { ctx.set(Null()) }
func (ctx *ColumnContext) ResultPointer(p any)   { ctx.set(Pointer(p)) }
func (ctx *ColumnContext) ResultValue(v Value)   { ctx.set(v) }
