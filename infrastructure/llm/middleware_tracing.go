package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanLLMRequest names the span created for each request.
const SpanLLMRequest = "llm.request"

type tracedLLM struct {
	next   CoreLLM
	tracer trace.Tracer
}

// TracingMiddleware wraps every request in a span from the global tracer
// provider.
func TracingMiddleware(serviceName string) Middleware {
	return TracingMiddlewareWithProvider(serviceName, otel.GetTracerProvider())
}

// TracingMiddlewareWithProvider is TracingMiddleware with an explicit
// provider.
func TracingMiddlewareWithProvider(serviceName string, tp trace.TracerProvider) Middleware {
	tracer := tp.Tracer(serviceName)
	return func(next CoreLLM) CoreLLM {
		return &tracedLLM{next: next, tracer: tracer}
	}
}

func (t *tracedLLM) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (Completion, error) {
	ctx, span := t.tracer.Start(ctx, SpanLLMRequest,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.model", opts.Model),
			attribute.String("llm.provider", providerForModel(opts.Model)),
			attribute.Int("llm.prompt_chars", len(prompt)),
			attribute.Int("llm.max_tokens", opts.MaxTokens),
			attribute.Bool("llm.streaming", opts.Streaming()),
		))
	defer span.End()

	completion, err := t.next.DoRequest(ctx, prompt, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return completion, err
	}

	span.SetAttributes(
		attribute.Int("llm.tokens_in", completion.TokensIn),
		attribute.Int("llm.tokens_out", completion.TokensOut),
	)
	span.SetStatus(codes.Ok, "")
	return completion, nil
}

func (t *tracedLLM) GetModel() string { return t.next.GetModel() }
