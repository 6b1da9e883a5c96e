package engine

import (
	"context"
	"time"

	"github.com/roach88/osq/internal/aggregate"
	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/qerr"
	"github.com/roach88/osq/internal/usage"
)

// AggregateRequest computes an aggregation over an object set.
type AggregateRequest struct {
	Aggregation objectset.RootAggregation
	ObjectSet   objectset.ObjectSet

	// ExecutionMode defaults to PREFER_ACCURACY.
	ExecutionMode objectset.ExecutionMode

	DerivedProperties objectset.TypedDerivedProperties
	Context           objectset.Context
	Backend           backend.Kind
	Options           objectset.ResponseOptions
}

// AggregateResponse is an aggregation result with its optional cost.
type AggregateResponse struct {
	*aggregate.Result
	Usage *usage.Cost `json:"usageCost,omitempty"`
}

// Aggregate evaluates req.Aggregation over the members of req.ObjectSet.
func (e *Engine) Aggregate(ctx context.Context, req AggregateRequest) (resp *AggregateResponse, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, OpAggregate, start, err) }()

	switch req.ExecutionMode {
	case "", objectset.PreferAccuracy, objectset.PreferSpeed:
	default:
		return nil, qerr.Validation(qerr.CodeInvalidArgument, "unknown execution mode %q", req.ExecutionMode).
			At("executionMode")
	}
	p, err := e.prepare(ctx, query{
		ObjectSet:         req.ObjectSet,
		DerivedProperties: req.DerivedProperties,
		Context:           req.Context,
		Backend:           req.Backend,
	})
	if err != nil {
		return nil, err
	}
	compiled, err := e.aggregator.Compile(req.Aggregation, p.set, req.Context)
	if err != nil {
		return nil, err
	}
	snap, err := e.snapshot(ctx, p.backend, req.Context)
	if err != nil {
		return nil, err
	}

	res, err := e.aggregator.Execute(ctx, p.backend, compiled, aggregate.Options{
		ExecutionMode: req.ExecutionMode,
		Context:       req.Context,
		Snapshot:      snap,
	})
	if err != nil {
		return nil, err
	}
	e.metrics.Scanned(string(p.kind), res.Stats.ObjectsScanned)
	return &AggregateResponse{
		Result: res,
		Usage:  e.usage.Attach(ctx, req.Context, res.Stats, req.Options),
	}, nil
}
