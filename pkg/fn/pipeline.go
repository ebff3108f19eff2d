package fn

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/WessleyAI/routes-aggregator/pkg/fn"

// Stage is one step of a pipeline.
type Stage[In, Out any] func(context.Context, In) Result[Out]

// Then runs second on the value of first. None and Err stop the pipeline.
func Then[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return func(ctx context.Context, a A) Result[C] {
		r := first(ctx, a)
		if r.st != stateOk {
			return Result[C]{err: r.err, st: r.st}
		}
		return second(ctx, r.val)
	}
}

// TapStage runs f for its side effect and passes the value on.
func TapStage[T any](f func(context.Context, T)) Stage[T, T] {
	return func(ctx context.Context, t T) Result[T] {
		f(ctx, t)
		return Ok(t)
	}
}

// TracedStage runs stage inside a span called name. The span records the
// outcome: an error status for Err, result.none=true for None.
func TracedStage[In, Out any](name string, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		ctx, span := otel.Tracer(tracerName).Start(ctx, name)
		defer span.End()
		r := stage(ctx, in)
		switch r.st {
		case stateErr:
			span.RecordError(r.err)
			span.SetStatus(codes.Error, r.err.Error())
		case stateNone:
			span.SetAttributes(attribute.Bool("result.none", true))
		}
		return r
	}
}
