// Package telemetry records Prometheus metrics for osq operations.
//
// Metrics are registered on an injected prometheus.Registerer so tests and
// embedders can keep them off the default registry. A nil *Metrics is
// valid and records nothing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/osq/internal/qerr"
)

const namespace = "osq"

// Outcomes label values beyond the lowercased error categories.
const (
	OutcomeSuccess  = "success"
	OutcomeCanceled = "canceled"
	OutcomeError    = "error"
)

// Metrics holds the collectors of one osq process.
//
// Thread-safety: all methods are safe for concurrent use.
type Metrics struct {
	// Operations counts operations by name and outcome.
	Operations *prometheus.CounterVec

	// Duration is the wall time of operations by name.
	Duration *prometheus.HistogramVec

	// ScrollCursors is the number of live scroll cursors.
	ScrollCursors prometheus.Gauge

	// ObjectsScanned counts object rows read, by backend kind.
	ObjectsScanned *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. Collectors that
// are already registered are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation wall time in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation"}),
		ScrollCursors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scroll_cursors",
			Help:      "Live server-held scroll cursors.",
		}),
		ObjectsScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_objects_scanned_total",
			Help:      "Object rows read by each backend.",
		}, []string{"backend"}),
	}

	var err error
	if m.Operations, err = register(reg, m.Operations); err != nil {
		return nil, err
	}
	if m.Duration, err = register(reg, m.Duration); err != nil {
		return nil, err
	}
	if m.ScrollCursors, err = register(reg, m.ScrollCursors); err != nil {
		return nil, err
	}
	if m.ObjectsScanned, err = register(reg, m.ObjectsScanned); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metrics: %w", err)
	}
	return c, nil
}

// Observe records one finished operation.
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, Outcome(err)).Inc()
	m.Duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Scanned adds n object rows read by backend.
func (m *Metrics) Scanned(backend string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ObjectsScanned.WithLabelValues(backend).Add(float64(n))
}

// SetScrollCursors records the number of live scroll cursors.
func (m *Metrics) SetScrollCursors(n int) {
	if m == nil {
		return
	}
	m.ScrollCursors.Set(float64(n))
}

// Outcome labels err: success, canceled, the lowercased error category,
// or error for unclassified failures.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	}
	if cat := qerr.CategoryOf(err); cat != "" {
		return strings.ToLower(string(cat))
	}
	return OutcomeError
}

// WriteText gathers g and writes the text exposition format to w.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	return writeFamilies(w, families)
}

func writeFamilies(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
