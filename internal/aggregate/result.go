package aggregate

import (
	"encoding/json"

	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/ir"
)

// Accuracy reports whether every metric of a result was computed exactly.
type Accuracy string

const (
	Accurate    Accuracy = "ACCURATE"
	Approximate Accuracy = "APPROXIMATE"
)

// Result is an evaluated RootAggregation.
type Result struct {
	Metrics         ir.Object         `json:"metrics"`
	SubAggregations map[string]*Group `json:"subAggregations,omitempty"`
	Accuracy        Accuracy          `json:"accuracy"`

	// Stats is the backend work spent on the result.
	Stats backend.Stats `json:"-"`
}

// Group is one evaluated aggregation. With a dimension the candidates are
// partitioned into Buckets; without one Metrics and SubAggregations cover
// every candidate.
type Group struct {
	Metrics             ir.Object         `json:"metrics,omitempty"`
	Buckets             []*Bucket         `json:"buckets,omitempty"`
	ItemsInOtherBuckets int               `json:"itemsInOtherBuckets"`
	SubAggregations     map[string]*Group `json:"subAggregations,omitempty"`
}

// Bucket is one partition of a dimension. Key is Null for the null-value
// bucket.
type Bucket struct {
	Key             ir.Value
	Count           int
	Metrics         ir.Object
	SubAggregations map[string]*Group

	order ir.Value
}

func (b *Bucket) MarshalJSON() ([]byte, error) {
	key, err := ir.MarshalValue(b.Key)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Key             json.RawMessage   `json:"key"`
		Count           int               `json:"count"`
		Metrics         ir.Object         `json:"metrics,omitempty"`
		SubAggregations map[string]*Group `json:"subAggregations,omitempty"`
	}{key, b.Count, b.Metrics, b.SubAggregations})
}
