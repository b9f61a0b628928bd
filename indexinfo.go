package vtab

import (
	"fmt"
	"strings"
)

// ConstraintOp identifies the predicate operator of one planning
// constraint. The numeric values match the host's operator codes; values of
// OpFunctionBase and above are operator tags of overloaded functions (see
// FunctionList).
type ConstraintOp int

const (
	OpEq        ConstraintOp = 2
	OpGt        ConstraintOp = 4
	OpLe        ConstraintOp = 8
	OpLt        ConstraintOp = 16
	OpGe        ConstraintOp = 32
	OpMatch     ConstraintOp = 64
	OpLike      ConstraintOp = 65
	OpGlob      ConstraintOp = 66
	OpRegexp    ConstraintOp = 67
	OpNe        ConstraintOp = 68
	OpIsNot     ConstraintOp = 69
	OpIsNotNull ConstraintOp = 70
	OpIsNull    ConstraintOp = 71
	OpIs        ConstraintOp = 72
	OpLimit     ConstraintOp = 73
	OpOffset    ConstraintOp = 74

	OpFunctionBase ConstraintOp = 150
)

func (op ConstraintOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpGt:
		return ">"
	case OpLe:
		return "<="
	case OpLt:
		return "<"
	case OpGe:
		return ">="
	case OpMatch:
		return "MATCH"
	case OpLike:
		return "LIKE"
	case OpGlob:
		return "GLOB"
	case OpRegexp:
		return "REGEXP"
	case OpNe:
		return "!="
	case OpIsNot:
		return "IS NOT"
	case OpIsNotNull:
		return "IS NOT NULL"
	case OpIsNull:
		return "IS NULL"
	case OpIs:
		return "IS"
	case OpLimit:
		return "LIMIT"
	case OpOffset:
		return "OFFSET"
	default:
		if op >= OpFunctionBase {
			return fmt.Sprintf("FUNCTION(%d)", int(op))
		}
		return fmt.Sprintf("ConstraintOp(%d)", int(op))
	}
}

// RowidColumn is the column index of the reserved row-id pseudo-column in
// constraints and order-by terms.
const RowidColumn = -1

// IndexConstraint is one predicate term offered to the table for planning.
// Unusable constraints must not be assigned a consumption order: they exist
// so the table can tell whether a plan is workable at all given the current
// join order.
type IndexConstraint struct {
	Column    int // RowidColumn for the row-id pseudo-column
	Op        ConstraintOp
	Usable    bool
	Collation string

	// RHS is the constraint's literal operand when the host knows it at
	// planning time; visibility is capability-gated, see IndexInfo.RHS.
	RHS *Value

	// BatchOK reports that the host could deliver all values of this IN
	// constraint as one value list.
	BatchOK bool
}

// IndexOrderBy is one term of the requested output ordering.
type IndexOrderBy struct {
	Column int
	Desc   bool
}

// DistinctMode describes how strictly the requested ordering must be
// honored when consuming it. The modes are progressively less demanding;
// a table that satisfies DistinctOrdered may always consume the ordering.
type DistinctMode int

const (
	// DistinctOrdered: rows must come back exactly in the requested order.
	DistinctOrdered DistinctMode = 0
	// DistinctGrouped: rows of equal order-by values must be adjacent, but
	// group order is free. Used when planning GROUP BY.
	DistinctGrouped DistinctMode = 1
	// DistinctDistinct: like grouped, and the table may additionally skip
	// duplicate rows within a group. Used when planning DISTINCT.
	DistinctDistinct DistinctMode = 2
)

const unusedArg = -1

type constraintUsage struct {
	argvIndex int // consumption order, unusedArg when not consumed
	omit      bool
	wantBatch bool
}

// IndexInfo carries one plan negotiation. The host fills in the candidate
// constraints and ordering, the table's BestIndex inspects them and records
// its chosen plan through the setters, and the adapter validates the result
// before handing it back.
type IndexInfo struct {
	caps        Caps
	constraints []IndexConstraint
	orderBy     []IndexOrderBy
	usage       []constraintUsage

	columnsUsed uint64
	distinct    DistinctMode

	planID          int
	planStr         string
	orderByConsumed bool
	estimatedCost   float64
	estimatedRows   int64
	scanFlags       int
}

// NewIndexInfo starts a plan negotiation. It is called by the host (or a
// test harness standing in for one) once per candidate plan.
func NewIndexInfo(caps Caps, constraints []IndexConstraint, orderBy []IndexOrderBy) *IndexInfo {
	ii := &IndexInfo{
		caps:          caps,
		constraints:   constraints,
		orderBy:       orderBy,
		usage:         make([]constraintUsage, len(constraints)),
		estimatedCost: 5e98, // the host's default for an unconstrained scan
		estimatedRows: 25,
	}
	for i := range ii.usage {
		ii.usage[i].argvIndex = unusedArg
	}
	return ii
}

// SetColumnsUsed records the bitmap of columns the query reads. Host side.
func (ii *IndexInfo) SetColumnsUsed(mask uint64) { ii.columnsUsed = mask }

// SetDistinct records the strictness of the ordering requirement. Host side.
func (ii *IndexInfo) SetDistinct(m DistinctMode) { ii.distinct = m }

// Constraints returns the candidate constraints. The slice is shared; the
// table must treat it as read-only.
func (ii *IndexInfo) Constraints() []IndexConstraint { return ii.constraints }

// OrderBy returns the requested output ordering.
func (ii *IndexInfo) OrderBy() []IndexOrderBy { return ii.orderBy }

// ColumnsUsed returns the bitmap of columns the query actually reads, or
// ErrUnsupported when the host does not report it.
func (ii *IndexInfo) ColumnsUsed() (uint64, error) {
	if !ii.caps.ColumnsUsed() {
		return 0, ErrUnsupported
	}
	return ii.columnsUsed, nil
}

// Distinct returns the ordering strictness. Hosts without the capability
// always require exact ordering, which is safe for every consumer.
func (ii *IndexInfo) Distinct() DistinctMode {
	if !ii.caps.DistinctHints() {
		return DistinctOrdered
	}
	return ii.distinct
}

// RHS returns the literal operand of constraint i when the host knows it at
// planning time. ErrNoValue when unknown (expressions, other columns, host
// parameters, operand-less operators) and on hosts without the capability.
func (ii *IndexInfo) RHS(i int) (Value, error) {
	if !ii.caps.ConstraintRHS() {
		return Value{}, ErrNoValue
	}
	if v := ii.constraints[i].RHS; v != nil {
		return *v, nil
	}
	return Value{}, ErrNoValue
}

// BatchAvailable reports whether all values of IN constraint i could be
// delivered at once. Always false on hosts without the capability.
func (ii *IndexInfo) BatchAvailable(i int) bool {
	return ii.caps.ValueLists() && ii.constraints[i].BatchOK
}

// WantValueList asks the host to deliver constraint i's IN values as one
// batched filter argument. The request only takes effect if the constraint
// was also assigned a consumption order. Reports whether batching will
// actually happen; when it reports false the host falls back to one filter
// call per value.
func (ii *IndexInfo) WantValueList(i int, want bool) bool {
	if !ii.BatchAvailable(i) {
		ii.usage[i].wantBatch = false
		return false
	}
	ii.usage[i].wantBatch = want
	return want
}

// SetArgvIndex assigns constraint i the given consumption order: the
// position, starting at 0, at which the constraint's runtime value is
// delivered to the cursor's filter call. Orders assigned within one
// negotiation must form a contiguous range with no duplicates. Pass a
// negative order to mark the constraint unused again.
func (ii *IndexInfo) SetArgvIndex(i int, order int) {
	if order < 0 {
		order = unusedArg
	}
	ii.usage[i].argvIndex = order
}

// ArgvIndex returns constraint i's consumption order, or -1 if unused.
func (ii *IndexInfo) ArgvIndex(i int) int { return ii.usage[i].argvIndex }

// SetOmit advises the host that the table fully checks constraint i, so the
// host may skip re-checking it. A hint except for OpOffset, which the host
// always honors.
func (ii *IndexInfo) SetOmit(i int, omit bool) { ii.usage[i].omit = omit }

func (ii *IndexInfo) Omit(i int) bool { return ii.usage[i].omit }

// SetPlan records the opaque plan id later passed to filter.
func (ii *IndexInfo) SetPlan(id int) { ii.planID = id }

func (ii *IndexInfo) PlanID() int { return ii.planID }

// SetPlanString records the opaque plan payload later passed to filter.
func (ii *IndexInfo) SetPlanString(s string) { ii.planStr = s }

func (ii *IndexInfo) PlanString() string { return ii.planStr }

// SetOrderByConsumed declares that the plan natively produces the requested
// ordering (under the strictness returned by Distinct), letting the host
// skip its own sort.
func (ii *IndexInfo) SetOrderByConsumed(v bool) { ii.orderByConsumed = v }

func (ii *IndexInfo) OrderByConsumed() bool { return ii.orderByConsumed }

// SetEstimatedCost records the plan's cost estimate. Only relative order
// across candidate plans matters; it steers join ordering.
func (ii *IndexInfo) SetEstimatedCost(cost float64) { ii.estimatedCost = cost }

func (ii *IndexInfo) EstimatedCost() float64 { return ii.estimatedCost }

// SetEstimatedRows records the expected result size. No-op on hosts that do
// not use row estimates.
func (ii *IndexInfo) SetEstimatedRows(rows int64) {
	if ii.caps.EstimatedRows() {
		ii.estimatedRows = rows
	}
}

func (ii *IndexInfo) EstimatedRows() (int64, error) {
	if !ii.caps.EstimatedRows() {
		return 0, ErrUnsupported
	}
	return ii.estimatedRows, nil
}

// SetScanFlags records plan scan flags. No-op on hosts without them.
func (ii *IndexInfo) SetScanFlags(flags int) {
	if ii.caps.ScanFlags() {
		ii.scanFlags = flags
	}
}

func (ii *IndexInfo) ScanFlags() (int, error) {
	if !ii.caps.ScanFlags() {
		return 0, ErrUnsupported
	}
	return ii.scanFlags, nil
}

// ConsumedArgs returns the constraint indexes in consumption order: element
// k is the constraint whose value the host must deliver as filter argument
// k. Valid only after a successful negotiation.
func (ii *IndexInfo) ConsumedArgs() []int {
	n := 0
	for i := range ii.usage {
		if ii.usage[i].argvIndex != unusedArg {
			n++
		}
	}
	args := make([]int, n)
	for i := range ii.usage {
		if ord := ii.usage[i].argvIndex; ord != unusedArg {
			args[ord] = i
		}
	}
	return args
}

// BatchWanted reports whether constraint i's values will be delivered as
// one value list.
func (ii *IndexInfo) BatchWanted(i int) bool { return ii.usage[i].wantBatch }

// validateUsage checks the negotiation outputs: consumption orders must be
// a contiguous 0-based range with no duplicates, and only usable
// constraints may be consumed.
func (ii *IndexInfo) validateUsage() error {
	n := 0
	for i := range ii.usage {
		if ii.usage[i].argvIndex != unusedArg {
			n++
		}
	}
	seen := make([]bool, n)
	for i := range ii.usage {
		ord := ii.usage[i].argvIndex
		if ord == unusedArg {
			continue
		}
		if !ii.constraints[i].Usable {
			return protocolf("best_index", "unusable constraint %d assigned consumption order %d", i, ord)
		}
		if ord >= n {
			return protocolf("best_index", "consumption orders not contiguous: order %d with %d consumed constraints", ord, n)
		}
		if seen[ord] {
			return protocolf("best_index", "duplicate consumption order %d", ord)
		}
		seen[ord] = true
	}
	return nil
}

func (ii *IndexInfo) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "plan=%d", ii.planID)
	if ii.planStr != "" {
		fmt.Fprintf(&sb, " planStr=%q", ii.planStr)
	}
	fmt.Fprintf(&sb, " cost=%g", ii.estimatedCost)
	for i, c := range ii.constraints {
		fmt.Fprintf(&sb, " [c%d col=%d %s usable=%v argv=%d]", i, c.Column, c.Op, c.Usable, ii.usage[i].argvIndex)
	}
	for _, o := range ii.orderBy {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " [order col=%d %s]", o.Column, dir)
	}
	if ii.orderByConsumed {
		sb.WriteString(" consumed")
	}
	return sb.String()
}
