// Package seriestab provides an ambient table producing a bounded integer
// series. The table has one visible column, value, and three hidden input
// columns: start, stop and step.
package seriestab

import (
	"errors"
	"math"

	vtab "github.com/CGamesPlay/sqlite3-ext-sub000"
)

const (
	colValue = 0
	colStart = 1
	colStop  = 2
	colStep  = 3
)

// Plan bits. The low three bits record which input columns are bound by an
// equality constraint; the direction bits record the output order.
const (
	planStart = 1 << iota
	planStop
	planStep
	planDesc
	planAsc
)

var errMissingStart = errors.New(`first argument to "generate_series()" missing or unusable`)

// New builds the module descriptor. The table is eponymous: it needs no
// creation and carries no per-table state.
func New() *vtab.Module {
	return vtab.NewModule(connect)
}

func connect(tc *vtab.TableConn, _ any, _ []string) (string, *table, error) {
	tc.SetRisk(vtab.RiskInnocuous)
	return "CREATE TABLE x(value, start HIDDEN, stop HIDDEN, step HIDDEN)", &table{}, nil
}

type table struct{}

// BestIndex binds equality constraints on the hidden input columns. A plan
// with both start and stop bound gets a tiny cost, anything else a huge row
// estimate, steering the planner toward join orders that bound the series.
func (t *table) BestIndex(ii *vtab.IndexInfo) error {
	plan := 0
	unusable := 0
	hasStart := false
	argIdx := [3]int{-1, -1, -1}
	for i, con := range ii.Constraints() {
		if con.Column < colStart || con.Column > colStep {
			continue
		}
		bit := con.Column - colStart
		if con.Column == colStart {
			hasStart = true
		}
		if !con.Usable {
			unusable |= 1 << bit
			continue
		}
		if con.Op == vtab.OpEq {
			plan |= 1 << bit
			argIdx[bit] = i
		}
	}
	order := 0
	for bit := range argIdx {
		if j := argIdx[bit]; j >= 0 {
			ii.SetArgvIndex(j, order)
			ii.SetOmit(j, true)
			order++
		}
	}
	if !hasStart {
		return errMissingStart
	}
	if unusable&^plan != 0 {
		// The inputs are driven by the constraints, so an unusable
		// constraint on an unbound input makes the whole plan unusable.
		return vtab.ErrConstraint
	}
	if plan&(planStart|planStop) == planStart|planStop {
		cost := 2.0
		if plan&planStep != 0 {
			cost = 1.0
		}
		ii.SetEstimatedCost(cost)
		ii.SetEstimatedRows(1000)
		if ob := ii.OrderBy(); len(ob) > 0 && ob[0].Column == colValue {
			if ob[0].Desc {
				plan |= planDesc
			} else {
				plan |= planAsc
			}
			ii.SetOrderByConsumed(true)
		}
	} else {
		ii.SetEstimatedRows(math.MaxInt64 / 2)
	}
	ii.SetPlan(plan)
	return nil
}

func (t *table) Open() (vtab.Cursor, error) { return &cursor{}, nil }

func (t *table) Disconnect() error { return nil }

type cursor struct {
	desc     bool
	rowid    int64
	value    int64
	minValue int64
	maxValue int64
	step     int64
}

func (cur *cursor) Filter(plan int, _ string, args []vtab.Value) error {
	*cur = cursor{}
	for _, a := range args {
		// A NULL input produces no rows rather than a NULL-bounded scan.
		if a.IsNull() {
			cur.maxValue = -1
			return nil
		}
	}
	next := 0
	take := func() int64 {
		v := args[next].Int()
		next++
		return v
	}
	if plan&planStart != 0 {
		cur.minValue = take()
	}
	if plan&planStop != 0 {
		cur.maxValue = take()
	} else {
		cur.maxValue = math.MaxInt64
	}
	if plan&planStep != 0 {
		cur.step = take()
		if cur.step == 0 {
			cur.step = 1
		} else if cur.step < 0 {
			cur.step = -cur.step
			if plan&planAsc == 0 {
				plan |= planDesc
			}
		}
	} else {
		cur.step = 1
	}
	if plan&planDesc != 0 {
		cur.desc = true
		cur.value = cur.maxValue
		if cur.step > 0 {
			cur.value -= (cur.maxValue - cur.minValue) % cur.step
		}
	} else {
		cur.value = cur.minValue
	}
	cur.rowid = 1
	return nil
}

func (cur *cursor) Next() error {
	if cur.desc {
		cur.value -= cur.step
	} else {
		cur.value += cur.step
	}
	cur.rowid++
	return nil
}

func (cur *cursor) EOF() bool {
	if cur.desc {
		return cur.value < cur.minValue
	}
	return cur.value > cur.maxValue
}

func (cur *cursor) Column(ctx *vtab.ColumnContext, idx int) error {
	switch idx {
	case colStart:
		ctx.ResultInt(cur.minValue)
	case colStop:
		ctx.ResultInt(cur.maxValue)
	case colStep:
		ctx.ResultInt(cur.step)
	default:
		ctx.ResultInt(cur.value)
	}
	return nil
}

func (cur *cursor) Rowid() (int64, error) { return cur.rowid, nil }
