package service

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

const instrumentationName = "github.com/Joffythetrophy/Casino-savings/internal/service"

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_operations_total",
			Help: "Treasury operations by outcome",
		},
		[]string{"operation", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "treasury_operation_duration_seconds",
			Help:    "Duration of treasury operations",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2},
		},
		[]string{"operation"},
	)

	sideEffectErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_side_effect_errors_total",
			Help: "Post-commit cache and audit stream failures",
		},
		[]string{"kind"},
	)
)

// observe opens a span and starts the duration timer for op. The returned
// func must be called with the operation's final error.
func (s *Service) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "treasury."+op, trace.WithAttributes(attrs...))
	timer := prometheus.NewTimer(operationDuration.WithLabelValues(op))

	return ctx, func(err error) {
		timer.ObserveDuration()
		result := resultLabel(err)
		operationsTotal.WithLabelValues(op, result).Inc()

		span.SetAttributes(attribute.String("treasury.result", result))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var terr *treasury.Error
	if errors.As(err, &terr) {
		return string(terr.Code)
	}
	return "error"
}
