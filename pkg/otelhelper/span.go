package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Fail records err on span and marks it failed. A non-empty status is kept as
// the round status attribute.
func Fail(span trace.Span, err error, status string) {
	if status != "" {
		span.SetAttributes(attribute.String(StatusKey, status))
	}

	if err == nil {
		span.SetStatus(codes.Error, status)

		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Succeed marks span successful with the final status.
func Succeed(span trace.Span, status string) {
	span.SetAttributes(attribute.String(StatusKey, status))
	span.SetStatus(codes.Ok, "")
}
