package derived

import (
	"math"
	"time"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/qerr"
)

// operandKind is the static type of a calculated expression.
type operandKind int

const (
	numeric operandKind = iota
	datetime
)

func (k operandKind) String() string {
	if k == datetime {
		return "DATETIME"
	}
	return "NUMERIC"
}

func (rs *resolution) calculated(id string, d objectset.CalculatedProperty) (plan.DerivedField, error) {
	want := numeric
	out := ontology.PropertyType{Base: ontology.TypeDouble}
	if d.Kind == objectset.CalculatedDatetime {
		want = datetime
		out = ontology.PropertyType{Base: ontology.TypeTimestamp}
	}
	expr, got, err := rs.expr(d.Operation, rs.path)
	if err != nil {
		return plan.DerivedField{}, err
	}
	if got != want {
		return plan.DerivedField{}, qerr.Validation(qerr.CodeCalculatedTypeMismatch,
			"calculated property %q is declared %s but its operation yields %s", id, want, got)
	}
	return plan.DerivedField{ID: id, Type: out, Def: plan.CalculatedDef{Expr: expr, Datetime: want == datetime}}, nil
}

func mismatch(path, format string, args ...any) error {
	return qerr.Validation(qerr.CodeCalculatedTypeMismatch, format, args...).At(path)
}

// expr type-checks op and compiles it.
func (rs *resolution) expr(op objectset.Operation, path string) (plan.Expr, operandKind, error) {
	operands := func(name string, ops []objectset.Operation) ([]plan.Expr, error) {
		if len(ops) == 0 {
			return nil, qerr.Validation(qerr.CodeInvalidArgument, "%s needs at least one operand", name).At(path)
		}
		args := make([]plan.Expr, len(ops))
		for i, o := range ops {
			e, err := rs.numericExpr(o, objectset.Elem(objectset.Child(path, name, "operands"), i))
			if err != nil {
				return nil, err
			}
			args[i] = e
		}
		return args, nil
	}
	binary := func(name string, l, r objectset.Operation) ([]plan.Expr, error) {
		left, err := rs.numericExpr(l, objectset.Child(path, name, "left"))
		if err != nil {
			return nil, err
		}
		right, err := rs.numericExpr(r, objectset.Child(path, name, "right"))
		if err != nil {
			return nil, err
		}
		return []plan.Expr{left, right}, nil
	}
	arith := func(op plan.ArithOp, args []plan.Expr, err error) (plan.Expr, operandKind, error) {
		if err != nil {
			return nil, 0, err
		}
		return plan.Arith{Op: op, Args: args}, numeric, nil
	}

	switch n := op.(type) {
	case nil:
		return nil, 0, qerr.Validation(qerr.CodeInvalidArgument, "operation is missing").At(path)
	case objectset.Literal:
		switch v := n.Value.(type) {
		case ir.Int, ir.Double:
			return plan.Const{Value: v}, numeric, nil
		case ir.Timestamp:
			return plan.Const{Value: v}, datetime, nil
		case ir.String:
			ts, err := ir.ParseTimestamp(string(v))
			if err != nil {
				return nil, 0, mismatch(path, "literal %q is neither a number nor a datetime", string(v))
			}
			return plan.Const{Value: ts}, datetime, nil
		default:
			return nil, 0, mismatch(path, "literal of kind %s is neither a number nor a datetime", ir.KindOf(n.Value))
		}
	case objectset.PropertyRef:
		f, err := rs.native(n.Property)
		if err != nil {
			return nil, 0, qerr.WithPath(err, path)
		}
		switch {
		case f.Type.Array:
			return nil, 0, mismatch(path, "array property %q cannot be an operand", n.Property)
		case f.Type.IsNumeric():
			return plan.Prop{Field: f}, numeric, nil
		case f.Type.IsDate():
			return plan.Prop{Field: f}, datetime, nil
		default:
			return nil, 0, mismatch(path, "property %q of type %s is neither numeric nor a datetime", n.Property, f.Type.Base)
		}
	case objectset.Add:
		return arith(plan.OpAdd, operands("add", n.Operands))
	case objectset.Multiply:
		return arith(plan.OpMultiply, operands("multiply", n.Operands))
	case objectset.Least:
		return arith(plan.OpLeast, operands("least", n.Operands))
	case objectset.Greatest:
		return arith(plan.OpGreatest, operands("greatest", n.Operands))
	case objectset.Subtract:
		return arith(plan.OpSubtract, binary("subtract", n.Left, n.Right))
	case objectset.Divide:
		return arith(plan.OpDivide, binary("divide", n.Left, n.Right))
	case objectset.Negate:
		e, err := rs.numericExpr(n.Operand, objectset.Child(path, "negate", "operand"))
		return arith(plan.OpNegate, []plan.Expr{e}, err)
	case objectset.Absolute:
		e, err := rs.numericExpr(n.Operand, objectset.Child(path, "absolute", "operand"))
		return arith(plan.OpAbsolute, []plan.Expr{e}, err)
	case objectset.DateAdd:
		if !n.Unit.Valid() {
			return nil, 0, qerr.Validation(qerr.CodeInvalidArgument, "unknown time unit %q", n.Unit).At(path)
		}
		date, err := rs.datetimeExpr(n.Operand, objectset.Child(path, "dateAdd", "operand"))
		if err != nil {
			return nil, 0, err
		}
		amount, err := rs.numericExpr(n.Amount, objectset.Child(path, "dateAdd", "amount"))
		if err != nil {
			return nil, 0, err
		}
		return plan.DateAdd{Date: date, Amount: amount, Unit: n.Unit}, datetime, nil
	case objectset.DateDiff:
		if !n.Unit.Valid() {
			return nil, 0, qerr.Validation(qerr.CodeInvalidArgument, "unknown time unit %q", n.Unit).At(path)
		}
		left, err := rs.datetimeExpr(n.Left, objectset.Child(path, "dateDiff", "left"))
		if err != nil {
			return nil, 0, err
		}
		right, err := rs.datetimeExpr(n.Right, objectset.Child(path, "dateDiff", "right"))
		if err != nil {
			return nil, 0, err
		}
		return plan.DateDiff{Left: left, Right: right, Unit: n.Unit}, numeric, nil
	default:
		return nil, 0, qerr.NotSupported("operation %T", op).At(path)
	}
}

func (rs *resolution) numericExpr(op objectset.Operation, path string) (plan.Expr, error) {
	return rs.typedExpr(op, numeric, path)
}

func (rs *resolution) datetimeExpr(op objectset.Operation, path string) (plan.Expr, error) {
	return rs.typedExpr(op, datetime, path)
}

func (rs *resolution) typedExpr(op objectset.Operation, want operandKind, path string) (plan.Expr, error) {
	e, got, err := rs.expr(op, path)
	if err != nil {
		return nil, err
	}
	if got != want {
		return nil, mismatch(path, "operand yields %s where %s is required", got, want)
	}
	return e, nil
}

// Eval evaluates a calculated expression on obj. Nulls propagate through
// arithmetic; least and greatest skip them. Division by zero is Null.
func Eval(e plan.Expr, obj *plan.Object) ir.Value {
	switch n := e.(type) {
	case plan.Const:
		return n.Value
	case plan.Prop:
		return obj.Value(n.Field)
	case plan.Arith:
		args := make([]ir.Value, len(n.Args))
		for i, a := range n.Args {
			args[i] = Eval(a, obj)
		}
		return arith(n.Op, args)
	case plan.DateAdd:
		date, ok := Eval(n.Date, obj).(ir.Timestamp)
		amount, isNum := ir.Float64(Eval(n.Amount, obj))
		if !ok || !isNum {
			return ir.Null{}
		}
		return ir.NewTimestamp(addUnits(date.Time(), n.Unit, int(math.Trunc(amount))))
	case plan.DateDiff:
		left, lok := Eval(n.Left, obj).(ir.Timestamp)
		right, rok := Eval(n.Right, obj).(ir.Timestamp)
		if !lok || !rok {
			return ir.Null{}
		}
		return ir.Int(diffUnits(left.Time(), right.Time(), n.Unit))
	default:
		return ir.Null{}
	}
}

func arith(op plan.ArithOp, args []ir.Value) ir.Value {
	if op == plan.OpLeast || op == plan.OpGreatest {
		var best ir.Value
		for _, a := range args {
			if ir.IsNull(a) {
				continue
			}
			if best == nil {
				best = a
				continue
			}
			c := ir.Compare(a, best)
			if (op == plan.OpLeast && c < 0) || (op == plan.OpGreatest && c > 0) {
				best = a
			}
		}
		if best == nil {
			return ir.Null{}
		}
		return best
	}

	ints := true
	nums := make([]float64, len(args))
	for i, a := range args {
		f, ok := ir.Float64(a)
		if !ok {
			return ir.Null{}
		}
		if _, isInt := a.(ir.Int); !isInt {
			ints = false
		}
		nums[i] = f
	}
	switch op {
	case plan.OpAdd:
		if ints {
			if total, ok := foldInts(args, 0, addInt); ok {
				return total
			}
		}
		var total float64
		for _, n := range nums {
			total += n
		}
		return ir.Double(total)
	case plan.OpMultiply:
		if ints {
			if total, ok := foldInts(args, 1, mulInt); ok {
				return total
			}
		}
		total := 1.0
		for _, n := range nums {
			total *= n
		}
		return ir.Double(total)
	case plan.OpSubtract:
		if ints {
			if d, ok := subInt(int64(args[0].(ir.Int)), int64(args[1].(ir.Int))); ok {
				return ir.Int(d)
			}
		}
		return ir.Double(nums[0] - nums[1])
	case plan.OpDivide:
		if nums[1] == 0 {
			return ir.Null{}
		}
		return ir.Double(nums[0] / nums[1])
	case plan.OpNegate:
		if ints {
			if n, ok := subInt(0, int64(args[0].(ir.Int))); ok {
				return ir.Int(n)
			}
		}
		return ir.Double(-nums[0])
	case plan.OpAbsolute:
		if ints {
			n := int64(args[0].(ir.Int))
			if n >= 0 {
				return ir.Int(n)
			}
			if neg, ok := subInt(0, n); ok {
				return ir.Int(neg)
			}
		}
		return ir.Double(math.Abs(nums[0]))
	default:
		return ir.Null{}
	}
}

// Integer arithmetic that overflows int64 falls back to doubles.

func foldInts(args []ir.Value, start int64, op func(a, b int64) (int64, bool)) (ir.Value, bool) {
	total := start
	for _, a := range args {
		var ok bool
		if total, ok = op(total, int64(a.(ir.Int))); !ok {
			return nil, false
		}
	}
	return ir.Int(total), true
}

func addInt(a, b int64) (int64, bool) {
	s := a + b
	return s, (s > a) == (b > 0)
}

func subInt(a, b int64) (int64, bool) {
	d := a - b
	return d, (d < a) == (b > 0)
}

func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return p, true
}

// addUnits adds n units to t. Calendar units normalise overflowing days the
// way time.AddDate does.
func addUnits(t time.Time, unit objectset.TimeUnit, n int) time.Time {
	switch unit {
	case objectset.UnitSecond:
		return t.Add(time.Duration(n) * time.Second)
	case objectset.UnitMinute:
		return t.Add(time.Duration(n) * time.Minute)
	case objectset.UnitHour:
		return t.Add(time.Duration(n) * time.Hour)
	case objectset.UnitDay:
		return t.AddDate(0, 0, n)
	case objectset.UnitWeek:
		return t.AddDate(0, 0, 7*n)
	case objectset.UnitMonth:
		return t.AddDate(0, n, 0)
	case objectset.UnitQuarter:
		return t.AddDate(0, 3*n, 0)
	case objectset.UnitYear:
		return t.AddDate(n, 0, 0)
	default:
		return t
	}
}

// diffUnits is the whole number of units from right to left, truncated
// toward zero.
func diffUnits(left, right time.Time, unit objectset.TimeUnit) int64 {
	d := left.Sub(right)
	switch unit {
	case objectset.UnitSecond:
		return int64(d / time.Second)
	case objectset.UnitMinute:
		return int64(d / time.Minute)
	case objectset.UnitHour:
		return int64(d / time.Hour)
	case objectset.UnitDay:
		return int64(d / (24 * time.Hour))
	case objectset.UnitWeek:
		return int64(d / (7 * 24 * time.Hour))
	}

	sign := int64(1)
	if left.Before(right) {
		left, right, sign = right, left, -1
	}
	left, right = left.UTC(), right.UTC()
	months := (left.Year()-right.Year())*12 + int(left.Month()-right.Month())
	if right.AddDate(0, months, 0).After(left) {
		months--
	}
	switch unit {
	case objectset.UnitQuarter:
		return sign * int64(months/3)
	case objectset.UnitYear:
		return sign * int64(months/12)
	default:
		return sign * int64(months)
	}
}
