package backend

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/qerr"
)

// Similarity functions a vector property may declare.
const (
	SimilarityCosine    = "cosine"
	SimilarityEuclidean = "euclidean"
	SimilarityDot       = "dot_product"
)

// nearest returns the n.K objects of in closest to the query, closest
// first. Ties are broken by key. Objects without a vector of the right
// dimension are not candidates.
func (x *executor) nearest(ctx context.Context, n plan.Nearest, in []plan.Object) ([]plan.Object, error) {
	query := n.Vector
	if query == nil {
		if x.view.embedder == nil {
			return nil, qerr.NotSupported("kNN text queries need an embedding model; none is configured")
		}
		var err error
		query, err = x.view.embedder.Embed(ctx, n.Text, n.Field.Type.VectorDimension)
		if err != nil {
			return nil, err
		}
	}
	distance, err := distanceFunc(n.Similarity)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		obj  plan.Object
		dist float64
	}
	var cands []candidate
	for _, o := range in {
		vec, ok := vector(o.Value(n.Field), len(query))
		if !ok {
			continue
		}
		cands = append(cands, candidate{obj: o, dist: distance(query, vec)})
	}
	slices.SortFunc(cands, func(a, b candidate) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return plan.CompareKeys(a.obj.Key, b.obj.Key)
	})

	out := make([]plan.Object, 0, min(n.K, len(cands)))
	for _, c := range cands[:min(n.K, len(cands))] {
		d := c.dist
		c.obj.Distance = &d
		out = append(out, c.obj)
	}
	return out, nil
}

func distanceFunc(similarity string) (func(a, b []float64) float64, error) {
	switch similarity {
	case SimilarityCosine, "":
		return cosineDistance, nil
	case SimilarityEuclidean:
		return euclideanDistance, nil
	case SimilarityDot:
		return func(a, b []float64) float64 { return -dot(a, b) }, nil
	default:
		return nil, qerr.NotSupported("vector similarity %q", similarity)
	}
}

// vector reads v as a vector of dim numbers.
func vector(v ir.Value, dim int) ([]float64, bool) {
	arr, ok := v.(ir.Array)
	if !ok || len(arr) != dim {
		return nil, false
	}
	out := make([]float64, dim)
	for i, e := range arr {
		f, ok := ir.Float64(e)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// cosineDistance is 1 - cos(a, b). A zero vector is at distance 1 from
// everything.
func cosineDistance(a, b []float64) float64 {
	na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot(a, b)/(na*nb)
}

func euclideanDistance(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}
