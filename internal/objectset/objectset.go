package objectset

import "github.com/roach88/osq/internal/ir"

// ObjectSet is an expression denoting a derived collection of objects.
//
// This is a sealed interface - only types in this package implement it.
// The marker method enables exhaustive type switches in the evaluator.
// An ObjectSet is a finite tree: children are values, never references
// back up the tree. Referenced sets are resolved by RID at evaluation time,
// where cycles between saved sets are detected.
type ObjectSet interface {
	objectSetNode() // Marker method - seals interface to this package
}

// RelationSide names one end of a link. In a search-around it is the end
// the resulting objects sit on; the input objects are on the opposite end.
type RelationSide string

const (
	SideSource RelationSide = "SOURCE"
	SideTarget RelationSide = "TARGET"
	SideEither RelationSide = "EITHER"
)

// Base is every object of one object type.
type Base struct {
	ObjectType string
}

func (Base) objectSetNode() {}

// InterfaceBase is every object whose type implements an interface,
// directly or through an extending interface.
type InterfaceBase struct {
	InterfaceType string
}

func (InterfaceBase) objectSetNode() {}

// ObjectLocator identifies one object by type and primary key.
type ObjectLocator struct {
	ObjectType string
	PrimaryKey string
}

// Static is an explicit list of objects. Locators naming objects that no
// longer exist drop out at match time.
type Static struct {
	ObjectType string
	Objects    []ObjectLocator
	Provenance string
}

func (Static) objectSetNode() {}

// Referenced is a saved object set looked up by RID.
type Referenced struct {
	RID string
}

func (Referenced) objectSetNode() {}

// Filtered keeps the objects of ObjectSet matching Filter.
type Filtered struct {
	ObjectSet ObjectSet
	Filter    Filter
}

func (Filtered) objectSetNode() {}

// Intersected is the objects present in every input set.
type Intersected struct {
	ObjectSets []ObjectSet
}

func (Intersected) objectSetNode() {}

// Unioned is the objects present in any input set.
type Unioned struct {
	ObjectSets []ObjectSet
}

func (Unioned) objectSetNode() {}

// Subtracted is the first set minus every other set. Its scope is the
// scope of the first set alone.
type Subtracted struct {
	ObjectSets []ObjectSet
}

func (Subtracted) objectSetNode() {}

// SearchAround traverses a stored link from every object of ObjectSet.
type SearchAround struct {
	ObjectSet ObjectSet
	Link      string
	Side      RelationSide
}

func (SearchAround) objectSetNode() {}

// SoftLinkSearchAround traverses a soft link, joining on property values.
type SoftLinkSearchAround struct {
	ObjectSet ObjectSet
	Link      string
	Side      RelationSide
}

func (SoftLinkSearchAround) objectSetNode() {}

// InterfaceLinkSearchAround traverses an interface link through each
// member type's concrete binding.
type InterfaceLinkSearchAround struct {
	ObjectSet     ObjectSet
	InterfaceLink string
	Side          RelationSide
}

func (InterfaceLinkSearchAround) objectSetNode() {}

// TypeKind distinguishes the two kinds of type a TypeRef can name.
type TypeKind string

const (
	KindObjectType TypeKind = "objectType"
	KindInterface  TypeKind = "interface"
)

// TypeRef names an object type or an interface.
type TypeRef struct {
	Kind    TypeKind
	APIName string
}

// AsType rescopes ObjectSet to EntityType, dropping objects that do not
// satisfy it.
type AsType struct {
	ObjectSet  ObjectSet
	EntityType TypeRef
}

func (AsType) objectSetNode() {}

// AsBaseObjectTypes strips interface views from ObjectSet's scope.
type AsBaseObjectTypes struct {
	ObjectSet ObjectSet
}

func (AsBaseObjectTypes) objectSetNode() {}

// Knn is the K objects of ObjectSet nearest to Vector on a vector property.
type Knn struct {
	ObjectSet ObjectSet
	Property  string
	K         int
	Vector    []float64
}

func (Knn) objectSetNode() {}

// VectorQuery is a sealed kNN query: a literal vector or text to embed.
type VectorQuery interface {
	vectorQuery()
}

// VectorLiteral queries with an explicit vector.
type VectorLiteral struct {
	Vector []float64
}

func (VectorLiteral) vectorQuery() {}

// TextQuery queries with text embedded by the backend.
type TextQuery struct {
	Text string
}

func (TextQuery) vectorQuery() {}

// KnnV2 is Knn with a query that may be text.
type KnnV2 struct {
	ObjectSet ObjectSet
	Property  string
	K         int
	Query     VectorQuery
}

func (KnnV2) objectSetNode() {}

// MethodInput is a placeholder bound only inside method definitions.
// Evaluating it directly is NOT_SUPPORTED.
type MethodInput struct {
	ID string
}

func (MethodInput) objectSetNode() {}

// WithProperties attaches derived properties to ObjectSet without changing
// its membership.
type WithProperties struct {
	ObjectSet         ObjectSet
	DerivedProperties []DerivedProperty
}

func (WithProperties) objectSetNode() {}

// Context carries per-request parameters. It is never persisted.
type Context struct {
	Branch     string
	SnapshotID string
	OwningRID  string

	// ParameterOverrides binds filter parameters by id.
	ParameterOverrides map[string]ir.Value

	UserID   string
	GroupIDs []string
}

// DefaultBranch is used when Context.Branch is empty.
const DefaultBranch = "master"

// BranchOrDefault returns the request branch.
func (c Context) BranchOrDefault() string {
	if c.Branch == "" {
		return DefaultBranch
	}
	return c.Branch
}

// ResponseOptions controls optional response metadata.
type ResponseOptions struct {
	IncludeUsageCost bool
}

// ExecutionMode trades aggregation accuracy for speed.
type ExecutionMode string

const (
	PreferAccuracy ExecutionMode = "PREFER_ACCURACY"
	PreferSpeed    ExecutionMode = "PREFER_SPEED"
)
