package usage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/objectset"
)

var (
	stats   = backend.Stats{ObjectsScanned: 1000, LinksScanned: 200, Nodes: 3}
	include = objectset.ResponseOptions{IncludeUsageCost: true}
)

func TestLinearModel_Estimate(t *testing.T) {
	got, err := DefaultModel.Estimate(stats)
	require.NoError(t, err)
	assert.InDelta(t, 1.0+0.1+0.03, got, 1e-9)

	got, err = LinearModel{Base: 2}.Estimate(backend.Stats{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
}

func TestAccountant_Estimate(t *testing.T) {
	tests := []struct {
		name    string
		model   CostModel
		want    float64
		wantErr bool
	}{
		{name: "default", model: DefaultModel, want: 1.13},
		{name: "model error", model: CostModelFunc(func(backend.Stats) (float64, error) { return 0, errors.New("boom") }), wantErr: true},
		{name: "negative", model: CostModelFunc(func(backend.Stats) (float64, error) { return -1, nil }), wantErr: true},
		{name: "nan", model: CostModelFunc(func(backend.Stats) (float64, error) { return math.NaN(), nil }), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(WithModel(tt.model)).Estimate(stats)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got.ComputeUsage, 1e-9)
		})
	}
}

func TestAccountant_Attach(t *testing.T) {
	ctx := context.Background()
	octx := objectset.Context{OwningRID: "ri.owner.1"}

	tests := []struct {
		name   string
		model  CostModel
		opts   objectset.ResponseOptions
		want   *Cost
		warned string
	}{
		{name: "not requested", model: DefaultModel},
		{name: "requested", model: LinearModel{PerNode: 1}, opts: include, want: &Cost{ComputeUsage: 3}},
		{
			name:   "error degrades to omitted",
			model:  CostModelFunc(func(backend.Stats) (float64, error) { return 0, errors.New("no pricing") }),
			opts:   include,
			warned: "usage estimation failed",
		},
		{
			name:   "panic degrades to omitted",
			model:  CostModelFunc(func(backend.Stats) (float64, error) { panic("pricing table missing") }),
			opts:   include,
			warned: "usage estimation panicked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
			a := New(WithModel(tt.model), WithLogger(logger))

			assert.Equal(t, tt.want, a.Attach(ctx, octx, stats, tt.opts))
			if tt.warned == "" {
				assert.Empty(t, logs.String())
				return
			}
			assert.Contains(t, logs.String(), tt.warned)
			assert.Contains(t, logs.String(), "owning_rid=ri.owner.1")
		})
	}
}
