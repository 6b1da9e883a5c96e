// Package usage estimates the compute cost of a request from the work its
// backend calls performed.
//
// Estimation is best-effort. Attach never fails the operation it reports
// on: a cost model that errors or panics is logged and the cost is
// omitted.
package usage

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/objectset"
)

// Cost is the estimate attached to a response.
type Cost struct {
	ComputeUsage float64 `json:"computeUsage" yaml:"computeUsage"`
}

// CostModel prices the work of one request.
type CostModel interface {
	Estimate(stats backend.Stats) (float64, error)
}

// CostModelFunc adapts a function to CostModel.
type CostModelFunc func(backend.Stats) (float64, error)

// Estimate calls f.
func (f CostModelFunc) Estimate(stats backend.Stats) (float64, error) { return f(stats) }

// LinearModel charges a fixed rate per unit of work.
type LinearModel struct {
	Base      float64
	PerObject float64
	PerLink   float64
	PerNode   float64
}

// DefaultModel is the model an Accountant uses unless told otherwise.
var DefaultModel = LinearModel{PerObject: 0.001, PerLink: 0.0005, PerNode: 0.01}

// Estimate implements CostModel.
func (m LinearModel) Estimate(stats backend.Stats) (float64, error) {
	return m.Base +
		m.PerObject*float64(stats.ObjectsScanned) +
		m.PerLink*float64(stats.LinksScanned) +
		m.PerNode*float64(stats.Nodes), nil
}

// Accountant attaches usage estimates to responses.
//
// Thread-safety: Accountant is safe for concurrent use when its model is.
type Accountant struct {
	model  CostModel
	logger *slog.Logger
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithModel sets the cost model.
func WithModel(m CostModel) Option {
	return func(a *Accountant) {
		a.model = m
	}
}

// WithLogger sets the logger estimation failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(a *Accountant) {
		a.logger = l
	}
}

// New creates an Accountant using DefaultModel.
func New(opts ...Option) *Accountant {
	a := &Accountant{model: DefaultModel, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Estimate prices stats. A negative or non-finite estimate is an error.
func (a *Accountant) Estimate(stats backend.Stats) (Cost, error) {
	v, err := a.model.Estimate(stats)
	if err != nil {
		return Cost{}, fmt.Errorf("estimate usage: %w", err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return Cost{}, fmt.Errorf("estimate usage: invalid estimate %v", v)
	}
	return Cost{ComputeUsage: v}, nil
}

// Attach returns the cost of stats when the caller asked for it, and nil
// otherwise or when estimation fails.
func (a *Accountant) Attach(ctx context.Context, octx objectset.Context, stats backend.Stats, opts objectset.ResponseOptions) (cost *Cost) {
	if !opts.IncludeUsageCost {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.WarnContext(ctx, "usage estimation panicked", "panic", r, "owning_rid", octx.OwningRID)
			cost = nil
		}
	}()

	c, err := a.Estimate(stats)
	if err != nil {
		a.logger.WarnContext(ctx, "usage estimation failed", "error", err, "owning_rid", octx.OwningRID)
		return nil
	}
	a.logger.DebugContext(ctx, "usage estimated",
		"compute_usage", c.ComputeUsage,
		"owning_rid", octx.OwningRID,
		"objects_scanned", stats.ObjectsScanned,
	)
	return &c
}
