package engine

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/qerr"
)

// Requests decode from YAML documents, and therefore from JSON ones. Object
// sets, aggregations and derived properties use their JSON wire shapes.

type contextDoc struct {
	Branch             string         `yaml:"branch"`
	SnapshotID         string         `yaml:"snapshotId"`
	OwningRID          string         `yaml:"owningRid"`
	ParameterOverrides map[string]any `yaml:"parameterOverrides"`
	UserID             string         `yaml:"userId"`
	GroupIDs           []string       `yaml:"groupIds"`
}

func (d contextDoc) context() (objectset.Context, error) {
	c := objectset.Context{
		Branch:     d.Branch,
		SnapshotID: d.SnapshotID,
		OwningRID:  d.OwningRID,
		UserID:     d.UserID,
		GroupIDs:   d.GroupIDs,
	}
	if len(d.ParameterOverrides) > 0 {
		c.ParameterOverrides = make(map[string]ir.Value, len(d.ParameterOverrides))
		for k, raw := range d.ParameterOverrides {
			v, err := ir.FromAny(raw)
			if err != nil {
				return c, qerr.Validation(qerr.CodeInvalidArgument, "parameter override %q: %v", k, err).
					At("context.parameterOverrides")
			}
			c.ParameterOverrides[k] = v
		}
	}
	return c, nil
}

// requestDoc is the union of every request's fields.
type requestDoc struct {
	ObjectSet               yaml.Node    `yaml:"objectSet"`
	Select                  []string     `yaml:"select"`
	OrderBy                 []OrderBy    `yaml:"orderBy"`
	PageSize                int          `yaml:"pageSize"`
	PageToken               string       `yaml:"pageToken"`
	RequireConsistentPaging bool         `yaml:"requireConsistentPaging"`
	Aggregation             yaml.Node    `yaml:"aggregation"`
	ExecutionMode           string       `yaml:"executionMode"`
	Property                string       `yaml:"property"`
	Input                   SuggestInput `yaml:"input"`
	NumRequestedValues      int          `yaml:"numRequestedValues"`
	DerivedProperties       yaml.Node    `yaml:"derivedProperties"`
	Context                 contextDoc   `yaml:"context"`
	Backend                 string       `yaml:"backend"`
	IncludeUsageCost        bool         `yaml:"includeUsageCost"`
}

// Keys shared by every request.
var commonKeys = []string{"objectSet", "derivedProperties", "context", "backend"}

func decodeRequest(n *yaml.Node, kind string, keys ...string) (*requestDoc, error) {
	if n.Kind != yaml.MappingNode {
		return nil, qerr.Validation(qerr.CodeInvalidArgument, "%s request must be a mapping", kind).At(objectset.RootPath)
	}
	for i := 0; i < len(n.Content); i += 2 {
		k := n.Content[i].Value
		if !slices.Contains(keys, k) && !slices.Contains(commonKeys, k) {
			return nil, qerr.Validation(qerr.CodeInvalidArgument, "unknown %s request field %q (line %d)", kind, k, n.Content[i].Line).
				At(k)
		}
	}
	var doc requestDoc
	if err := n.Decode(&doc); err != nil {
		return nil, qerr.Validation(qerr.CodeInvalidArgument, "decode %s request: %v", kind, err).At(objectset.RootPath)
	}
	return &doc, nil
}

func tree(n *yaml.Node) (any, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// common decodes the fields every request shares.
func (d *requestDoc) common() (query, error) {
	var q query
	if d.ObjectSet.Kind == 0 {
		return q, qerr.Validation(qerr.CodeInvalidArgument, "object set is required").At("objectSet")
	}
	raw, err := tree(&d.ObjectSet)
	if err != nil {
		return q, qerr.Validation(qerr.CodeInvalidExpression, "objectSet: %v", err).At("objectSet")
	}
	if q.ObjectSet, err = objectset.ParseObjectSet(raw); err != nil {
		return q, err
	}
	if d.DerivedProperties.Kind != 0 {
		raw, err := tree(&d.DerivedProperties)
		if err != nil {
			return q, qerr.Validation(qerr.CodeInvalidExpression, "derivedProperties: %v", err).At("derivedProperties")
		}
		if q.DerivedProperties, err = objectset.ParseDerivedProperties(raw); err != nil {
			return q, qerr.WithPath(err, "derivedProperties")
		}
	}
	if q.Context, err = d.Context.context(); err != nil {
		return q, err
	}
	q.Backend = backend.Kind(d.Backend)
	return q, nil
}

func (d *requestDoc) options() objectset.ResponseOptions {
	return objectset.ResponseOptions{IncludeUsageCost: d.IncludeUsageCost}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *LoadPageRequest) UnmarshalYAML(n *yaml.Node) error {
	d, err := decodeRequest(n, "loadPage", "select", "orderBy", "pageSize", "pageToken", "requireConsistentPaging", "includeUsageCost")
	if err != nil {
		return err
	}
	q, err := d.common()
	if err != nil {
		return err
	}
	*r = LoadPageRequest{
		ObjectSet:               q.ObjectSet,
		Select:                  d.Select,
		OrderBy:                 d.OrderBy,
		PageSize:                d.PageSize,
		PageToken:               d.PageToken,
		RequireConsistentPaging: d.RequireConsistentPaging,
		DerivedProperties:       q.DerivedProperties,
		Context:                 q.Context,
		Backend:                 q.Backend,
		Options:                 d.options(),
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *LoadScrollRequest) UnmarshalYAML(n *yaml.Node) error {
	d, err := decodeRequest(n, "loadScroll", "select", "orderBy", "pageSize", "includeUsageCost")
	if err != nil {
		return err
	}
	q, err := d.common()
	if err != nil {
		return err
	}
	*r = LoadScrollRequest{
		ObjectSet:         q.ObjectSet,
		Select:            d.Select,
		OrderBy:           d.OrderBy,
		PageSize:          d.PageSize,
		DerivedProperties: q.DerivedProperties,
		Context:           q.Context,
		Backend:           q.Backend,
		Options:           d.options(),
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *AggregateRequest) UnmarshalYAML(n *yaml.Node) error {
	d, err := decodeRequest(n, "aggregate", "aggregation", "executionMode", "includeUsageCost")
	if err != nil {
		return err
	}
	q, err := d.common()
	if err != nil {
		return err
	}
	raw, err := tree(&d.Aggregation)
	if err != nil {
		return qerr.Validation(qerr.CodeInvalidExpression, "aggregation: %v", err).At("aggregation")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	agg, err := objectset.ParseAggregation(raw)
	if err != nil {
		return qerr.WithPath(err, "aggregation")
	}
	*r = AggregateRequest{
		Aggregation:       agg,
		ObjectSet:         q.ObjectSet,
		ExecutionMode:     objectset.ExecutionMode(d.ExecutionMode),
		DerivedProperties: q.DerivedProperties,
		Context:           q.Context,
		Backend:           q.Backend,
		Options:           d.options(),
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *SuggestRequest) UnmarshalYAML(n *yaml.Node) error {
	d, err := decodeRequest(n, "suggest", "property", "input", "numRequestedValues")
	if err != nil {
		return err
	}
	q, err := d.common()
	if err != nil {
		return err
	}
	*r = SuggestRequest{
		ObjectSet:          q.ObjectSet,
		Property:           d.Property,
		Input:              d.Input,
		NumRequestedValues: d.NumRequestedValues,
		DerivedProperties:  q.DerivedProperties,
		Context:            q.Context,
		Backend:            q.Backend,
	}
	return nil
}

// DecodeRequest decodes a YAML or JSON request document into req, which
// must be a pointer to one of the request types.
func DecodeRequest(data []byte, req any) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return qerr.Validation(qerr.CodeInvalidArgument, "parse request: %v", err).At(objectset.RootPath)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return qerr.Validation(qerr.CodeInvalidArgument, "empty request").At(objectset.RootPath)
	}
	switch req.(type) {
	case *LoadPageRequest, *LoadScrollRequest, *AggregateRequest, *SuggestRequest:
	default:
		return fmt.Errorf("decode request: unsupported request type %T", req)
	}
	return doc.Content[0].Decode(req)
}
