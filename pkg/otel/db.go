package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ExecuteWithSpan executes a database operation with OpenTelemetry instrumentation
func ExecuteWithSpan(ctx context.Context, table, operation string, fn func(context.Context) error) error {
	tracer := otel.Tracer("leadagent")

	spanName := fmt.Sprintf("db.%s", operation)
	spanCtx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemKey.String("sqlite"),
			semconv.DBSQLTableKey.String(table),
			attribute.String("db.operation", operation),
		),
	)
	defer span.End()

	err := fn(spanCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
