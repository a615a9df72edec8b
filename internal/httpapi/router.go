package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"order-service/internal/metrics"
)

// NewRouter wires the order API, /health and /metrics.
func NewRouter(h *Handler, m *metrics.Metrics, logger *logrus.Entry) http.Handler {
	r := newBaseRouter(h.serviceName, m, logger)

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", m.Handler()).Methods("GET")

	r.HandleFunc("/api/orders", h.CreateOrder).Methods("POST")
	r.HandleFunc("/api/orders", h.ListOrders).Methods("GET")
	r.HandleFunc("/api/orders/validated", h.CreateValidatedOrder).Methods("POST")
	r.HandleFunc("/api/orders/{id}", h.GetOrder).Methods("GET")
	return r
}

// newBaseRouter returns a router carrying the middleware chain, outermost
// first: request id, server span joined to the caller's trace, metrics and
// access log, panic recovery. Recovery sits inside instrument so a panic is
// counted and logged as the 500 it becomes.
func newBaseRouter(serviceName string, m *metrics.Metrics, logger *logrus.Entry) *mux.Router {
	r := mux.NewRouter()
	r.Use(
		middleware.RequestID,
		echoRequestID,
		otelmux.Middleware(serviceName),
		instrument(m, logger),
		middleware.Recoverer,
	)
	return r
}
