package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/osq/internal/qerr"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	return m, reg
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", want: OutcomeSuccess},
		{name: "canceled", err: fmt.Errorf("page: %w", context.Canceled), want: OutcomeCanceled},
		{name: "deadline", err: context.DeadlineExceeded, want: OutcomeCanceled},
		{name: "validation", err: qerr.Validation(qerr.CodeInvalidArgument, "bad"), want: "validation"},
		{name: "resource", err: qerr.Resource(qerr.CodeScrollExpired, "gone"), want: "resource"},
		{name: "wrapped backend", err: fmt.Errorf("x: %w", qerr.Backend(true, errors.New("busy"), "scan")), want: "backend"},
		{name: "plain", err: errors.New("boom"), want: OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}

func TestMetrics_Observe(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.Observe("loadPage", time.Now(), nil)
	m.Observe("loadPage", time.Now(), nil)
	m.Observe("loadPage", time.Now(), qerr.Resource(qerr.CodeInvalidPageToken, "bad token"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("loadPage", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("loadPage", "resource")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var samples uint64
	for _, mf := range families {
		if mf.GetName() == "osq_operation_duration_seconds" {
			samples = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(3), samples)
}

func TestMetrics_GaugesAndCounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetScrollCursors(4)
	m.Scanned("PHONOGRAPH", 10)
	m.Scanned("PHONOGRAPH", 0)
	m.Scanned("HIGHBURY", 2)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.ScrollCursors))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.ObjectsScanned.WithLabelValues("PHONOGRAPH")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ObjectsScanned.WithLabelValues("HIGHBURY")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observe("aggregate", time.Now(), nil)
		m.Scanned("PHONOGRAPH", 1)
		m.SetScrollCursors(1)
	})
}

func TestNew_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg)
	require.NoError(t, err)
	b, err := New(reg)
	require.NoError(t, err)

	b.Operations.WithLabelValues("suggest", "success").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Operations.WithLabelValues("suggest", "success")))
}

func TestWriteText(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.SetScrollCursors(2)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	assert.Contains(t, buf.String(), "# TYPE osq_scroll_cursors gauge")
	assert.Contains(t, buf.String(), "osq_scroll_cursors 2")
}
