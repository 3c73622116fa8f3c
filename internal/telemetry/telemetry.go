// Package telemetry holds the Prometheus metrics and OpenTelemetry tracer
// shared by graph construction, iteration assembly and the NLP backend.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("gocollo")

var (
	callbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gocollo_nlp_callback_total",
		Help: "Total NLP callback evaluations by callback",
	}, []string{"callback"})

	callbackDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gocollo_nlp_callback_duration_seconds",
		Help:    "Duration of NLP callback evaluations",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10µs to ~160ms
	}, []string{"callback"})

	derivativeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gocollo_derivative_build_duration_seconds",
		Help:    "Duration of symbolic derivative construction by function",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
	}, []string{"function"})

	jacobianNonZeros = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gocollo_jacobian_nonzeros",
		Help: "Number of declared constraint Jacobian nonzeros for the current mesh",
	})

	solveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gocollo_nlp_solve_total",
		Help: "NLP solves by backend and outcome",
	}, []string{"backend", "status"})
)

// ObserveCallback records one evaluation of the named NLP callback.
func ObserveCallback(name string, start time.Time) {
	callbackTotal.WithLabelValues(name).Inc()
	callbackDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

// ObserveDerivative records how long building a derivative took.
func ObserveDerivative(function string, start time.Time) {
	derivativeDuration.WithLabelValues(function).Observe(time.Since(start).Seconds())
}

// SetJacobianNonZeros publishes the size of the sparsity pattern.
func SetJacobianNonZeros(n int) { jacobianNonZeros.Set(float64(n)) }

// ObserveSolve counts a finished NLP solve.
func ObserveSolve(backend, status string) { solveTotal.WithLabelValues(backend, status).Inc() }

// Start opens a span named op with the given attributes.
func Start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, op, trace.WithAttributes(attrs...))
}

// End closes span, recording err when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// WriteSummary prints every gocollo counter and gauge, and the sample count
// of every histogram, from the default registry.
func WriteSummary(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "gocollo_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				v = float64(m.GetHistogram().GetSampleCount())
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), v))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
