package vtab

// OverloadFunc is a table-bound implementation of an overloaded SQL
// function. Overloads are closures over the table instance, so no separate
// binding step exists.
type OverloadFunc func(args []Value) (Value, error)

type overload struct {
	nArgs int
	name  string
	op    ConstraintOp
	hasOp bool
	fn    OverloadFunc
}

// FunctionList holds the SQL functions a table instance overrides. It is
// populated during construction and consulted by the host during planning
// whenever a function's first argument is a column of the table.
type FunctionList struct {
	items []overload
}

// Add registers an overload for name with the given arity; arity -1 accepts
// any number of arguments. An overload registered with the exact arity wins
// over a variable-arity one.
func (fl *FunctionList) Add(nArgs int, name string, fn OverloadFunc) {
	fl.add(nArgs, name, 0, false, fn)
}

// AddWithConstraint registers an overload that the table can additionally
// exploit during planning: when the function appears as a WHERE term on the
// table, op is offered to BestIndex as a pseudo-operator constraint. op
// must be OpFunctionBase or above.
func (fl *FunctionList) AddWithConstraint(nArgs int, name string, op ConstraintOp, fn OverloadFunc) {
	if op < OpFunctionBase {
		panic("vtab: function constraint operator below OpFunctionBase")
	}
	fl.add(nArgs, name, op, true, fn)
}

func (fl *FunctionList) add(nArgs int, name string, op ConstraintOp, hasOp bool, fn OverloadFunc) {
	if nArgs < -1 || nArgs >= 128 {
		panic("vtab: overload arity out of range")
	}
	fl.items = append(fl.items, overload{nArgs: nArgs, name: name, op: op, hasOp: hasOp, fn: fn})
}

func (fl *FunctionList) find(nArgs int, name string) *overload {
	for try := 0; try < 2; try++ {
		want := nArgs
		if try == 1 {
			want = -1
		}
		for i := range fl.items {
			if fl.items[i].nArgs == want && fl.items[i].name == name {
				return &fl.items[i]
			}
		}
	}
	return nil
}

// FoundFunction is a resolved overload: the callable plus the optional
// operator tag fed back into planning. HasOp is never true on hosts that
// cannot carry function constraints.
type FoundFunction struct {
	Func  OverloadFunc
	Op    ConstraintOp
	HasOp bool
}

// FindFunction resolves a function overload on the given instance. It
// reports false when the instance's table type does not overload functions
// or has no overload for this name and arity.
func (c *Conn) FindFunction(h InstanceHandle, nArgs int, name string) (FoundFunction, bool) {
	inst, ok := c.instances.get(uint64(h))
	if !ok {
		return FoundFunction{}, false
	}
	if !inst.reg.mod.hasOverloads {
		return FoundFunction{}, false
	}
	fl := inst.table.(OverloadTable).Functions()
	if fl == nil {
		return FoundFunction{}, false
	}
	o := fl.find(nArgs, name)
	if o == nil {
		return FoundFunction{}, false
	}
	found := FoundFunction{Func: o.fn}
	if o.hasOp && c.caps.FunctionConstraints() {
		found.Op = o.op
		found.HasOp = true
	}
	return found, true
}
