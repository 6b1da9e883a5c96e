package plan

import (
	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/metric"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
)

// DerivedField is the evaluation plan of one derived property.
type DerivedField struct {
	ID   string
	Type ontology.PropertyType
	Def  DerivedDef
}

// DerivedDef is a sealed derived property computation.
type DerivedDef interface {
	derivedDef()
}

// NativeDef copies a stored property.
type NativeDef struct {
	Field Field
}

func (NativeDef) derivedDef() {}

// Hop is one resolved link step. Toward is SOURCE or TARGET, the end of the
// link the next objects sit on.
type Hop struct {
	Link   string
	Toward objectset.RelationSide
}

// Chain is a link path from one object type and the property read at its
// end. Property is empty for metrics that read no property.
type Chain struct {
	Hops     []Hop
	EndType  string
	Property string
}

// LinkedDef reads the property at the end of a cardinality preserving
// chain. Chains are keyed by the starting object type.
type LinkedDef struct {
	Chains map[string]Chain
}

func (LinkedDef) derivedDef() {}

// LinkAggregateDef computes Metric over every object reached by the chain.
type LinkAggregateDef struct {
	Chains map[string]Chain
	Metric metric.Spec
}

func (LinkAggregateDef) derivedDef() {}

// CalculatedDef evaluates Expr per object.
type CalculatedDef struct {
	Expr     Expr
	Datetime bool
}

func (CalculatedDef) derivedDef() {}

// ByTypeDef dispatches on object type when several typed entries define
// the same derived property. Types without a definition read Null.
type ByTypeDef struct {
	Defs map[string]DerivedDef
}

func (ByTypeDef) derivedDef() {}

// Expr is a sealed calculated-property expression.
type Expr interface {
	exprNode()
}

// Const is a literal operand.
type Const struct {
	Value ir.Value
}

func (Const) exprNode() {}

// Prop reads a native property.
type Prop struct {
	Field Field
}

func (Prop) exprNode() {}

// ArithOp is a numeric operator.
type ArithOp string

const (
	OpAdd      ArithOp = "add"
	OpSubtract ArithOp = "subtract"
	OpMultiply ArithOp = "multiply"
	OpDivide   ArithOp = "divide"
	OpNegate   ArithOp = "negate"
	OpAbsolute ArithOp = "absolute"
	OpLeast    ArithOp = "least"
	OpGreatest ArithOp = "greatest"
)

// Arith applies Op to Args. Subtract and Divide take exactly two args,
// Negate and Absolute exactly one.
type Arith struct {
	Op   ArithOp
	Args []Expr
}

func (Arith) exprNode() {}

// DateAdd adds Amount units to Date.
type DateAdd struct {
	Date   Expr
	Amount Expr
	Unit   objectset.TimeUnit
}

func (DateAdd) exprNode() {}

// DateDiff is the whole number of units from Right to Left.
type DateDiff struct {
	Left  Expr
	Right Expr
	Unit  objectset.TimeUnit
}

func (DateDiff) exprNode() {}
