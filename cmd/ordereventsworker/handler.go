package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"order-service/internal/telemetry"
	"order-service/pkg/events"
)

// eventHandler consumes order.created events.
type eventHandler struct {
	received *prometheus.CounterVec // By kind: validated or simple.
	invalid  prometheus.Counter
	revenue  prometheus.Counter
	log      *logrus.Entry
}

func newEventHandler(reg prometheus.Registerer, logger *logrus.Entry) *eventHandler {
	h := &eventHandler{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_events_received_total",
			Help: "Total order.created events received",
		}, []string{"kind"}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_events_invalid_total",
			Help: "Total order.created events that could not be decoded",
		}),
		revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_events_revenue_total",
			Help: "Sum of total_price over received order.created events",
		}),
		log: logger,
	}
	reg.MustRegister(h.received, h.invalid, h.revenue)
	return h
}

// handle decodes one message. The publisher's trace context is restored
// from the headers so the log line joins the originating request's trace.
func (h *eventHandler) handle(msg *nats.Msg) {
	ctx := context.Background()
	if msg.Header != nil {
		ctx = telemetry.ExtractHTTP(ctx, http.Header(msg.Header))
	}
	ctx, span := telemetry.Tracer().Start(ctx, "receive "+msg.Subject,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination.name", msg.Subject)),
	)
	defer span.End()
	l := h.log.WithContext(ctx).WithField("subject", msg.Subject)

	var event events.OrderCreatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil || event.OrderID == "" {
		h.invalid.Inc()
		l.WithError(err).WithField("msg_size", len(msg.Data)).Error("Failed to decode order.created event")
		return
	}

	kind := "simple"
	if event.ProductID != "" {
		kind = "validated"
	}
	h.received.WithLabelValues(kind).Inc()
	if event.TotalPrice > 0 {
		h.revenue.Add(event.TotalPrice)
	}

	l.WithFields(logrus.Fields{
		"order_id":     event.OrderID,
		"event_id":     event.EventID,
		"user_id":      event.UserID,
		"user_name":    event.UserName,
		"product_name": event.ProductName,
		"quantity":     event.Quantity,
		"total_price":  event.TotalPrice,
		"kind":         kind,
	}).Info("Order created")
}
