package objectset

import "github.com/roach88/osq/internal/ir"

// DerivedProperty is a request-scoped property computed rather than
// stored. Its ID may not collide with a native property of the target
// type, and its Definition may not reference another derived property.
type DerivedProperty struct {
	ID         string
	Definition DerivedDefinition
}

// DerivedDefinition is a sealed derived property definition.
type DerivedDefinition interface {
	derivedDefinition()
}

// LinkHop is one step of a link chain. Side names the end of the link the
// next objects sit on; EITHER (or empty) infers it from the link endpoints.
type LinkHop struct {
	Link string
	Side RelationSide
}

// NativeProperty re-exposes a stored property under a new identifier.
type NativeProperty struct {
	Property string
}

func (NativeProperty) derivedDefinition() {}

// LinkedObjectProperty reads Property from the single object reached over
// Link. The link must be one-to-one, or one-to-many traversed towards the
// "one" side.
type LinkedObjectProperty struct {
	Link     LinkHop
	Property string
}

func (LinkedObjectProperty) derivedDefinition() {}

// LinkedObjectsAggregationProperty computes Aggregation over every object
// reached over Link.
type LinkedObjectsAggregationProperty struct {
	Link        LinkHop
	Aggregation Metric
}

func (LinkedObjectsAggregationProperty) derivedDefinition() {}

// LinkedProperty reads Property at the end of a chain of cardinality
// preserving links.
type LinkedProperty struct {
	Links    []LinkHop
	Property string
}

func (LinkedProperty) derivedDefinition() {}

// CalculatedKind is the declared output kind of a calculated property.
type CalculatedKind string

const (
	CalculatedNumeric  CalculatedKind = "NUMERIC"
	CalculatedDatetime CalculatedKind = "DATETIME"
)

// CalculatedProperty evaluates an operation tree per object.
type CalculatedProperty struct {
	Kind      CalculatedKind
	Operation Operation
}

func (CalculatedProperty) derivedDefinition() {}

// Operation is a node of a calculated property expression.
type Operation interface {
	operationNode()
}

// Literal is a constant operand.
type Literal struct {
	Value ir.Value
}

func (Literal) operationNode() {}

// PropertyRef reads a native property of the object.
type PropertyRef struct {
	Property string
}

func (PropertyRef) operationNode() {}

// Add sums its operands.
type Add struct{ Operands []Operation }

func (Add) operationNode() {}

// Subtract computes Left - Right.
type Subtract struct{ Left, Right Operation }

func (Subtract) operationNode() {}

// Multiply multiplies its operands.
type Multiply struct{ Operands []Operation }

func (Multiply) operationNode() {}

// Divide computes Left / Right. Division by zero yields null.
type Divide struct{ Left, Right Operation }

func (Divide) operationNode() {}

type Negate struct{ Operand Operation }

func (Negate) operationNode() {}

type Absolute struct{ Operand Operation }

func (Absolute) operationNode() {}

// Least is the minimum of its non-null operands.
type Least struct{ Operands []Operation }

func (Least) operationNode() {}

// Greatest is the maximum of its non-null operands.
type Greatest struct{ Operands []Operation }

func (Greatest) operationNode() {}

// TimeUnit is a calendar unit for date arithmetic and date bucketing.
type TimeUnit string

const (
	UnitSecond  TimeUnit = "SECOND"
	UnitMinute  TimeUnit = "MINUTE"
	UnitHour    TimeUnit = "HOUR"
	UnitDay     TimeUnit = "DAY"
	UnitWeek    TimeUnit = "WEEK"
	UnitMonth   TimeUnit = "MONTH"
	UnitQuarter TimeUnit = "QUARTER"
	UnitYear    TimeUnit = "YEAR"
)

// DateAdd adds Amount units to a datetime operand.
type DateAdd struct {
	Operand Operation
	Amount  Operation
	Unit    TimeUnit
}

func (DateAdd) operationNode() {}

// DateDiff is the number of whole units from Right to Left, so a later
// Left gives a positive result.
type DateDiff struct {
	Left, Right Operation
	Unit        TimeUnit
}

func (DateDiff) operationNode() {}

// TypedDerivedPropertiesEntry declares derived properties for one type.
type TypedDerivedPropertiesEntry struct {
	Target     TypeRef
	Properties []DerivedProperty
}

// TypedDerivedProperties is the derived properties of a request.
type TypedDerivedProperties []TypedDerivedPropertiesEntry
