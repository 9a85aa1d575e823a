// Package rpctrace is the tracing hook spec §10.5 carries regardless of
// the telemetry-backend Non-goal: a thin wrapper over
// go.opentelemetry.io/otel/trace's Tracer/Span interfaces, started per
// call by pkg/client and pkg/server. No exporter is wired; the default
// TracerProvider is otel's noop, matching the teacher's pkg/telemetry
// span-per-call shape without adopting its gRPC-specific interceptors.
package rpctrace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"conduit/pkg/rpcinfo"
)

// Hook starts and ends one span per call. The span name follows the
// original_source convention `{service}::{method}` (SPEC_FULL.md §12,
// grounded on volo-thrift/volo-grpc's tracing.rs).
type Hook struct {
	tracer trace.Tracer
}

// NewHook builds a Hook from provider, or otel's noop provider if nil.
func NewHook(provider trace.TracerProvider) *Hook {
	if provider == nil {
		provider = trace.NewNoopTracerProvider()
	}
	return &Hook{tracer: provider.Tracer("conduit")}
}

// StartCall opens a span for cx's RpcInfo and returns a context carrying
// it plus a finish func the caller must invoke with the call's outcome.
func (h *Hook) StartCall(ctx context.Context, cx *rpcinfo.Context) (context.Context, func(error)) {
	if h == nil || cx.Info == nil {
		return ctx, func(error) {}
	}

	name := cx.Info.Callee.ServiceName() + "::" + cx.Info.Method
	kind := trace.SpanKindClient
	if cx.Info.Role == rpcinfo.RoleServer {
		kind = trace.SpanKindServer
	}

	spanCtx, span := h.tracer.Start(ctx, name, trace.WithSpanKind(kind))
	span.SetAttributes(
		attribute.String("rpc.method", cx.Info.Method),
		attribute.Int64("rpc.seq_id", int64(cx.SeqID)),
	)
	if addr, ok := cx.Info.Callee.Address(); ok {
		span.SetAttributes(attribute.String("rpc.peer", addr.String()))
	}

	return spanCtx, func(err error) {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
