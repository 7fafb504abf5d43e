package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span and metric attributes must stay low cardinality: operation names, profiles, backends
// and status values only. Download ids, URLs, titles and file paths belong in logs.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

func statusOf(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}

// InstrumentOperation instruments a generic operation with a span.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		// The message goes to the status, not to an attribute.
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", statusOf(err)),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	t.RecordDBOperation(ctx, operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentExtraction instruments one extractor run.
func (t *Telemetry) InstrumentExtraction(ctx context.Context, profile string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "extraction", "extractor", fn)

	t.RecordExtractionAttempt(ctx, profile, statusOf(err))

	return err
}

// InstrumentDownload instruments a whole /download call, retries included. The outcome
// metric is recorded separately by the caller, which knows the failure category.
func (t *Telemetry) InstrumentDownload(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	t.IncrementActiveDownloads(ctx)
	defer t.DecrementActiveDownloads(ctx)

	return t.InstrumentOperation(ctx, "download", "downloader", fn)
}

// InstrumentBackgroundRemoval instruments a background removal with the given backend.
func (t *Telemetry) InstrumentBackgroundRemoval(ctx context.Context, backend string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "remove_background", "imaging", fn)

	t.RecordBackgroundRemoval(ctx, backend, statusOf(err), time.Since(start))

	return err
}
