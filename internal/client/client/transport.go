package client

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/netx"
	"github.com/dmitrijs2005/sessionkeeper/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// transport performs traced JSON calls and classifies their failures.
type transport struct {
	hc       *http.Client
	clientID string
	tracer   trace.Tracer
}

func newTransport(hc *http.Client, clientID string) *transport {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &transport{hc: hc, clientID: clientID, tracer: telemetry.Tracer()}
}

func (t *transport) do(ctx context.Context, op string, req netx.Request, out any) error {
	ctx, span := t.tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.request.method", req.Method)),
	)
	defer span.End()

	if req.Header == nil {
		req.Header = http.Header{}
	}
	if t.clientID != "" {
		req.Header.Set(common.ClientIDHeaderName, t.clientID)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	if err := netx.DoJSON(ctx, t.hc, req, out); err != nil {
		mapped := mapError(err)
		span.RecordError(mapped)
		span.SetStatus(codes.Error, mapped.Error())
		return mapped
	}
	return nil
}
